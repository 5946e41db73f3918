// Package db embeds the back-office schema: tables, the invoice number
// index and the triggers feeding the backoffice_changes channel.
package db

import _ "embed"

// Schema is idempotent and applied on every start.
//
//go:embed migrations/001_schema.sql
var Schema string
