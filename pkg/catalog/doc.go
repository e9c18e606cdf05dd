// Package catalog implements the OpenMantle catalog REST client and the
// typed wire entities exchanged with it. The client retries transient
// failures with exponential backoff, rate-limits outgoing requests, and
// treats writes as no-ops in dry-run mode while keeping reads live.
package catalog
