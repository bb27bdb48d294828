package db

import "embed"

// MigrationFS holds the session store schema (sessions, tenant policies, audit log).
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
