// Package stores provides the run history store for OpenMantle. It
// keeps one record per ingestion run plus per-entity outcome rows in a
// local SQLite database with WAL mode, connection pooling, and
// embedded schema migrations. The runs command reads it back out.
package stores
