package commshub

import "embed"

// Migrations holds the embedded SQL migration files applied at startup.
//
//go:embed migrations/*.sql
var Migrations embed.FS
