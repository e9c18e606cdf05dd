package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// ingestionSchema is the CUE definition every .cue configuration is
// unified with before decoding. It rejects unknown entity types and
// malformed sections at evaluation time.
const ingestionSchema = `
#EntityType: "database_service" | "database" | "database_schema" | "table" |
	"pipeline_service" | "pipeline" | "task" |
	"messaging_service" | "topic" |
	"ml_model_service" | "ml_model" |
	"search_service" | "search_index" |
	"tag_category" | "tag" | "user" | "team" | "glossary" | "glossary_term"

#Idempotency: "skip" | "update" | "fail"

#Entity: {
	type: #EntityType
	name?: string
	fqn?: string
	properties?: {...}
	discovery?: {
		source: string
		filter?: {...}
		include_pattern?: string
		exclude_pattern?: string
	}
	idempotency?: #Idempotency
}

#Source: {
	name: string
	type: "postgres" | "lake" | "sftp"
	properties?: {...}
}

#Ingestion: {
	metadata: {
		name:         string
		version?:     string
		description?: string
	}
	catalog: {
		host: string
		api_version?: string
		auth?: {
			type?:     "none" | "basic" | "jwt"
			username?: string
			password?: string
			token?:    string
		}
		verify_ssl?: bool
		timeout?:    string | number
		retry?: {...}
		rate_limit?: {...}
	}
	sources?: [...#Source]
	defaults?: idempotency?: #Idempotency
	entities: [...#Entity]
	audit?: {...}
	execution?: {...}
	policy?: {...}
	telemetry?: {...}
	schedule?: cron: string
	transform?: {...}
}
`

// CueLoader evaluates CUE configuration files against the embedded schema.
type CueLoader struct {
	ctx    *cue.Context
	schema cue.Value
}

// NewCueLoader creates a loader with the embedded ingestion schema compiled.
func NewCueLoader() *CueLoader {
	ctx := cuecontext.New()
	return &CueLoader{
		ctx:    ctx,
		schema: ctx.CompileString(ingestionSchema).LookupPath(cue.ParsePath("#Ingestion")),
	}
}

// Load compiles content, unifies it with the schema, and decodes the
// result. The content has already had environment references expanded.
func (c *CueLoader) Load(path, content string) (*IngestionConfig, error) {
	val := c.ctx.CompileString(content, cue.Filename(path))
	if err := val.Err(); err != nil {
		return nil, cueError(path, err)
	}

	unified := c.schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(path, err)
	}

	// Export through JSON so custom unmarshalers apply.
	data, err := unified.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export CUE configuration: %w", err)
	}

	var cfg IngestionConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode CUE configuration: %w", err)
	}
	return &cfg, nil
}

// cueError flattens CUE's error list into one message with positions.
func cueError(path string, err error) error {
	var lines []string
	for _, e := range cueerrors.Errors(err) {
		msg := e.Error()
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			msg = fmt.Sprintf("%s:%d:%d: %s", pos[0].Filename(), pos[0].Line(), pos[0].Column(), msg)
		}
		lines = append(lines, msg)
	}
	if len(lines) == 0 {
		lines = append(lines, err.Error())
	}
	return fmt.Errorf("invalid CUE configuration in %s:\n  %s", path, strings.Join(lines, "\n  "))
}
