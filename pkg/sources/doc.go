// Package sources implements the discovery connectors that expand
// discovery declarations into concrete entity declarations. A connector
// walks its backing system (a PostgreSQL server, an S3-compatible data
// lake, an SFTP tree) and emits the service, database, schema, and
// table declarations the entity handlers know how to validate and
// build.
//
// Connectors are constructed from source declarations at startup and
// resolved by name through the Registry; the engine brackets every
// discovery request with Connect and Disconnect.
package sources
