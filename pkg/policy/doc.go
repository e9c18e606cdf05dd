// Package policy provides Open Policy Agent (OPA) integration for
// OpenMantle.
//
// This package gates ingestion runs behind Rego policies. After
// discovery expansion and dependency resolution the engine hands the
// ordered entity batch to the gate; deny rules decide whether the run
// may execute. It includes built-in policies for common catalog
// governance requirements and supports custom policy loading with hot
// reload.
//
// # Architecture
//
// The policy system consists of three main components:
//
//  1. Engine - Compiles Rego policies and evaluates entity batches
//  2. Loader - Loads .rego files from paths and watches them for changes
//  3. Built-in Policies - Pre-defined catalog governance rules
//
// # Usage
//
// Creating a policy engine from configuration:
//
//	gate, err := policy.NewEngine(cfg.Policy, tel)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	report, err := gate.Evaluate(ctx, entities)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if !report.Allowed {
//	    for _, violation := range report.Violations {
//	        fmt.Printf("Policy %s violated: %s\n", violation.Policy, violation.Message)
//	    }
//	}
//
// # Input Document
//
// Each policy is evaluated once per entity and once for the whole
// batch. Rules select their granularity by guarding on the input shape:
//
//   - input.entity - one entity declaration (type, name, fqn, properties)
//   - input.entities - the full ordered batch
//   - input.context - evaluation context (total_entities, timestamp)
//
// # Custom Policies
//
// Custom policies are Rego files whose deny rules produce either a
// message string or a violation object:
//
//	# severity: warning
//	# Tables feeding dashboards must carry an owner.
//	package mantle.policies.ownership
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.entity
//	    entity := input.entity
//	    entity.type == "table"
//	    not entity.properties.owner
//
//	    violation := {
//	        "message": sprintf("Table %s has no owner", [entity.name]),
//	        "severity": "warning",
//	        "entity": sprintf("table:%s", [entity.name]),
//	    }
//	}
//
// The optional "# severity:" header comment sets the default severity
// for violations that do not carry their own; without it a deny rule is
// an error.
//
// # Modes
//
// The gate runs in one of two modes:
//
//   - advisory: violations are reported but the run proceeds
//   - enforcing: any error-severity violation denies the run
//
// # Hot Reload
//
// Watch re-reads the configured paths whenever a .rego file changes and
// swaps the compiled policy set atomically. A reload that fails to
// compile keeps the previous set active.
package policy
