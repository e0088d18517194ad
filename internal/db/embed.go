package db

import "embed"

// MigrationFS embeds the SQL migration files under internal/db/migrations.
// The migrate runner applies them with golang-migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
