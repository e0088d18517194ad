// Package spec carries the embedded OpenAPI description served at
// /openapi.yaml.
package spec

import _ "embed"

//go:embed openapi.yaml
var OpenAPI []byte
