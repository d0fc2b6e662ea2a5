package database

import _ "embed"

// Schema is the single source of truth for the ingestion core's tables, applied by
// DB.Migrate(). This module owns exactly one logical schema, so it is embedded directly
// instead of located on disk at runtime.
//
//go:embed schema.sql
var Schema string
