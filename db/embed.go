// Package db provides the embedded database schema.
package db

import _ "embed"

// Schema contains the idempotent DDL for all application tables. It is
// applied on every start.
//
//go:embed migrations/001_schema.sql
var Schema string
