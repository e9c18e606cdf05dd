package policy

// BuiltinPolicies returns the catalog governance policies that ship
// with the engine. A loaded policy with the same name replaces the
// built-in.
func BuiltinPolicies() []Policy {
	return []Policy{
		entityNamingPolicy(),
		serviceDescriptionPolicy(),
		tableColumnsPolicy(),
		batchSizePolicy(),
	}
}

// entityNamingPolicy rejects names that would corrupt fully qualified
// names. FQN levels are dot separated, so a dot inside an entity name
// creates phantom hierarchy levels.
func entityNamingPolicy() Policy {
	return Policy{
		Name:        "entity-naming",
		Description: "Entity names must not contain FQN separators",
		Severity:    SeverityError,
		Rego: `package mantle.policies.naming

import rego.v1

deny contains violation if {
	input.entity
	entity := input.entity
	not entity.fqn

	contains(entity.name, ".")
	violation := {
		"message": sprintf("Entity name '%s' must not contain dots; dots separate FQN levels", [entity.name]),
		"severity": "error",
		"entity": sprintf("%s:%s", [entity.type, entity.name]),
	}
}`,
	}
}

// serviceDescriptionPolicy nudges service declarations toward carrying
// documentation.
func serviceDescriptionPolicy() Policy {
	return Policy{
		Name:        "service-description",
		Description: "Service entities should carry a description",
		Severity:    SeverityWarning,
		Rego: `package mantle.policies.documentation

import rego.v1

deny contains violation if {
	input.entity
	entity := input.entity
	endswith(entity.type, "_service")

	not entity.properties.description
	violation := {
		"message": sprintf("Service %s has no description", [entity.name]),
		"severity": "warning",
		"entity": sprintf("%s:%s", [entity.type, entity.name]),
	}
}`,
	}
}

// tableColumnsPolicy flags tables entering the catalog without a
// schema, usually a failed or missing inference.
func tableColumnsPolicy() Policy {
	return Policy{
		Name:        "table-columns",
		Description: "Tables should declare their column schema",
		Severity:    SeverityWarning,
		Rego: `package mantle.policies.schema

import rego.v1

deny contains violation if {
	input.entity
	entity := input.entity
	entity.type == "table"

	not entity.properties.columns
	violation := {
		"message": sprintf("Table %s declares no columns", [entity.name]),
		"severity": "warning",
		"entity": sprintf("table:%s", [entity.name]),
	}
}`,
	}
}

// batchSizePolicy asks for a second look before unusually large runs.
func batchSizePolicy() Policy {
	return Policy{
		Name:        "batch-size",
		Description: "Large entity batches deserve review before ingestion",
		Severity:    SeverityWarning,
		Rego: `package mantle.policies.batch

import rego.v1

deny contains violation if {
	input.entities
	count(input.entities) > 500

	violation := {
		"message": sprintf("Run declares %d entities - review before ingesting", [count(input.entities)]),
		"severity": "warning",
	}
}`,
	}
}
