package resources

import "embed"

// Migrations holds the admin database schema, applied with goose.
//
//go:embed db/migrations
var Migrations embed.FS

const SharedMigrationsPath = "db/migrations/shared"
