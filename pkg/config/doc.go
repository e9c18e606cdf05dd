// Package config loads and validates ingestion configuration for the
// OpenMantle catalog.
//
// # Overview
//
// A configuration document declares the catalog connection, discovery
// sources, and the entities to ingest. Documents are written in YAML or
// CUE; CUE files are unified with an embedded schema before decoding, so
// malformed sections and unknown entity types are rejected with positions.
//
// # Features
//
//   - YAML and CUE configuration loading through one entry point
//   - ${VAR} environment substitution with missing-variable errors
//   - Struct-tag validation plus cross-field rules (name-or-discovery,
//     source references, duplicate source names)
//   - Optional Starlark transform hook applied to the raw document
//   - Documented defaults filled in after decoding
//
// # Usage Example
//
//	loader := config.NewLoader()
//	cfg, err := loader.Load(ctx, "ingest.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Metadata.Name)
//
// # Configuration Structure
//
// A minimal document:
//
//	metadata:
//	  name: warehouse-ingest
//	catalog:
//	  host: http://catalog.internal:8585
//	  auth:
//	    type: jwt
//	    token: ${CATALOG_TOKEN}
//	entities:
//	  - type: database_service
//	    name: warehouse
//	    properties:
//	      serviceType: postgres
//	  - type: database
//	    name: analytics
//	    properties:
//	      service: warehouse
//
// # Starlark Transform
//
// When transform.script is set, the raw document is passed to the
// script's transform(config) function before validation. The hook is
// sandboxed: no filesystem or network access, print suppressed, and a
// configurable timeout (default 30 seconds).
//
//	def transform(config):
//	    for i in range(3):
//	        config["entities"].append({
//	            "type": "database",
//	            "name": "shard_" + str(i),
//	            "properties": {"service": "warehouse"},
//	        })
//	    return config
//
// # Thread Safety
//
// Loader instances are safe for concurrent use.
package config
