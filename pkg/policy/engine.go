package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/engine"
	"github.com/openmantle/openmantle/pkg/telemetry"
)

// Engine evaluates Rego policies over entity batches. It implements
// engine.PolicyGate.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy

	mode   string
	paths  []string
	loader *Loader
	logger *telemetry.Logger
}

// compiledPolicy is a policy with its prepared deny query.
type compiledPolicy struct {
	policy   Policy
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// evalInput is the document policies receive. Rules guard on
// input.entity for per-entity evaluation or input.entities for the
// batch pass.
type evalInput struct {
	Entity   *config.EntityConfig  `json:"entity,omitempty"`
	Entities []config.EntityConfig `json:"entities,omitempty"`
	Context  evalContext           `json:"context"`
}

// evalContext carries run-level facts into every evaluation.
type evalContext struct {
	TotalEntities int       `json:"total_entities"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewEngine compiles the built-in policies plus any policies declared
// under the configured paths. A path policy with the same name as a
// built-in replaces it.
func NewEngine(cfg config.PolicyConfig, tel *telemetry.Telemetry) (*Engine, error) {
	if tel == nil {
		tel = telemetry.Nop()
	}

	mode := cfg.Mode
	if mode == "" {
		mode = "advisory"
	}

	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		mode:     mode,
		paths:    cfg.Paths,
		loader:   NewLoader(tel),
		logger:   tel.Logger.NewComponentLogger("policy-engine"),
	}

	loaded, err := e.loader.LoadFromPaths(cfg.Paths)
	if err != nil {
		return nil, engine.NewConfigurationError("failed to load policies", err)
	}

	compiled, err := compileSet(append(BuiltinPolicies(), loaded...))
	if err != nil {
		return nil, err
	}
	e.policies = compiled

	e.logger.WithFields(map[string]interface{}{
		"policies": len(e.policies),
		"mode":     e.mode,
	}).Info("Policy engine ready")
	return e, nil
}

// compileSet parses and prepares every policy, keyed by name so later
// entries replace earlier ones.
func compileSet(policies []Policy) (map[string]*compiledPolicy, error) {
	compiled := make(map[string]*compiledPolicy, len(policies))
	for _, p := range policies {
		cp, err := compile(p)
		if err != nil {
			return nil, err
		}
		compiled[p.Name] = cp
	}
	return compiled, nil
}

// compile parses the module, extracts its package path, and prepares
// the deny query for reuse across evaluations.
func compile(p Policy) (*compiledPolicy, error) {
	module, err := ast.ParseModule(p.Name+".rego", p.Rego)
	if err != nil {
		return nil, engine.NewConfigurationError(
			fmt.Sprintf("failed to parse policy %s", p.Name), err)
	}
	p.Package = strings.TrimPrefix(module.Package.Path.String(), "data.")

	query, err := rego.New(
		rego.Query(fmt.Sprintf("data.%s.deny", p.Package)),
		rego.Module(p.Name+".rego", p.Rego),
	).PrepareForEval(context.Background())
	if err != nil {
		return nil, engine.NewConfigurationError(
			fmt.Sprintf("failed to compile policy %s", p.Name), err)
	}

	return &compiledPolicy{
		policy:   p,
		query:    query,
		compiled: time.Now(),
	}, nil
}

// Evaluate runs every policy against the batch: once per entity and
// once over the whole batch. In enforcing mode any error-severity
// violation denies the run; advisory mode always allows.
func (e *Engine) Evaluate(ctx context.Context, entities []config.EntityConfig) (*engine.PolicyReport, error) {
	start := time.Now()

	e.mu.RLock()
	compiled := e.sortedPolicies()
	mode := e.mode
	e.mu.RUnlock()

	evalCtx := evalContext{
		TotalEntities: len(entities),
		Timestamp:     start.UTC(),
	}

	var violations []engine.PolicyViolation
	for _, cp := range compiled {
		for i := range entities {
			input := evalInput{Entity: &entities[i], Context: evalCtx}
			found, err := e.evalPolicy(ctx, cp, input, entities[i].Identifier())
			if err != nil {
				return nil, err
			}
			violations = append(violations, found...)
		}

		input := evalInput{Entities: entities, Context: evalCtx}
		found, err := e.evalPolicy(ctx, cp, input, "")
		if err != nil {
			return nil, err
		}
		violations = append(violations, found...)
	}

	allowed := true
	if mode == "enforcing" {
		for i := range violations {
			if violations[i].Severity == string(SeverityError) {
				allowed = false
				break
			}
		}
	}

	e.logger.WithFields(map[string]interface{}{
		"policies":   len(compiled),
		"entities":   len(entities),
		"violations": len(violations),
		"allowed":    allowed,
		"duration":   time.Since(start).String(),
	}).Debug("Policy evaluation completed")

	return &engine.PolicyReport{
		Allowed:     allowed,
		Violations:  violations,
		EvaluatedAt: time.Now(),
	}, nil
}

// evalPolicy runs one prepared query against one input document. An
// evaluation error fails the whole run: a silently skipped policy
// could let an enforcing denial through.
func (e *Engine) evalPolicy(ctx context.Context, cp *compiledPolicy, input evalInput, fallbackEntity string) ([]engine.PolicyViolation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy %s evaluation failed: %w", cp.policy.Name, err)
	}

	var violations []engine.PolicyViolation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denials, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, denial := range denials {
				violations = append(violations, violation(cp.policy, denial, fallbackEntity))
			}
		}
	}
	return violations, nil
}

// violation maps one deny result to the engine's violation shape. Deny
// rules produce either a bare message string or an object with
// message, severity, and entity keys.
func violation(p Policy, denial interface{}, fallbackEntity string) engine.PolicyViolation {
	v := engine.PolicyViolation{
		Policy:   p.Name,
		Severity: string(p.Severity),
		Entity:   fallbackEntity,
	}

	switch d := denial.(type) {
	case string:
		v.Message = d
	case map[string]interface{}:
		if msg, ok := d["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := d["severity"].(string); ok {
			if parsed, valid := parseSeverity(sev); valid {
				v.Severity = string(parsed)
			}
		}
		if entity, ok := d["entity"].(string); ok {
			v.Entity = entity
		}
	default:
		v.Message = fmt.Sprintf("%v", denial)
	}
	return v
}

// Reload swaps in a fresh policy set built from the built-ins plus the
// given policies. A compile failure keeps the previous set active.
func (e *Engine) Reload(policies []Policy) error {
	compiled, err := compileSet(append(BuiltinPolicies(), policies...))
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.policies = compiled
	e.mu.Unlock()

	e.logger.WithField("policies", len(compiled)).Info("Policy set reloaded")
	return nil
}

// Watch hot-reloads the policy set whenever a configured path changes.
// Stop releases the watcher.
func (e *Engine) Watch() error {
	if len(e.paths) == 0 {
		return nil
	}
	return e.loader.Watch(e.paths, e.Reload)
}

// Stop stops watching for policy changes.
func (e *Engine) Stop() error {
	return e.loader.StopWatching()
}

// Policies lists the active policy set sorted by name.
func (e *Engine) Policies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.sortedPolicies() {
		policies = append(policies, cp.policy)
	}
	return policies
}

// Mode reports whether violations deny runs ("enforcing") or only log
// ("advisory").
func (e *Engine) Mode() string { return e.mode }

// sortedPolicies returns the compiled policies in name order for
// deterministic violation ordering. Callers hold at least a read lock.
func (e *Engine) sortedPolicies() []*compiledPolicy {
	compiled := make([]*compiledPolicy, 0, len(e.policies))
	for _, cp := range e.policies {
		compiled = append(compiled, cp)
	}
	sort.Slice(compiled, func(i, j int) bool {
		return compiled[i].policy.Name < compiled[j].policy.Name
	})
	return compiled
}
