package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"notathome.app/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/",
	"/healthz",
	"/readyz",
	"/metrics",
	"/openapi.yaml",
	"/v1/info",
	"/v1/auth/token",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.tokens == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get(authHeader)
		if header == "" && isCodeCapabilityPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(header)
		if err != nil {
			unauthorized(w, r, err.Error())
			return
		}

		claims, err := a.tokens.Parse(token)
		if err != nil {
			unauthorized(w, r, "invalid token")
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), claims.Principal())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireManage ensures the caller holds an overseer binding for the
// congregation. On failure it writes the response and returns false.
func (a *API) requireManage(w http.ResponseWriter, r *http.Request, congregationID string) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		unauthorized(w, r, "missing bearer token")
		return auth.Principal{}, false
	}
	if !principal.CanManage(congregationID) {
		forbidden(w, r, "overseer binding required")
		return auth.Principal{}, false
	}
	return principal, true
}

// requireMember ensures the caller holds any binding for the congregation.
func (a *API) requireMember(w http.ResponseWriter, r *http.Request, congregationID string) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		unauthorized(w, r, "missing bearer token")
		return auth.Principal{}, false
	}
	if !principal.CanRecord(congregationID) {
		forbidden(w, r, "congregation binding required")
		return auth.Principal{}, false
	}
	return principal, true
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="notathome"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}

func forbidden(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
	writeError(w, r, http.StatusForbidden, msg)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// isCodeCapabilityPath reports whether the route serves volunteers who hold
// only a spoken join code: the code lookup, the session itself, ledger reads
// and writes, and the live stream. Possession of the code, and through it the
// session id, is the credential. A bearer token on these routes is still
// validated when present so entries can be attributed.
func isCodeCapabilityPath(path string) bool {
	if strings.HasPrefix(path, "/v1/sessions/by-code/") {
		return true
	}
	rest, ok := strings.CutPrefix(path, "/v1/sessions/")
	if !ok || rest == "" {
		return false
	}
	if !strings.Contains(rest, "/") {
		return true // GET /v1/sessions/{id}
	}
	return strings.HasSuffix(rest, "/addresses") || strings.HasSuffix(rest, "/stream")
}
