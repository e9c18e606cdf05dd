// Package entities implements the per-type handlers that turn entity
// declarations into catalog payloads. Each handler validates its
// declaration's properties, computes the fully qualified name and the
// parent FQNs the entity depends on, and builds the typed wire entity.
//
// Handlers are stateless and registered explicitly in NewRegistry; the
// engine resolves them by entity type at execution time.
package entities
