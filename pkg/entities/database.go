package entities

import (
	"strings"

	"github.com/openmantle/openmantle/pkg/catalog"
	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/engine"
)

// dataTypes maps accepted column type spellings to canonical labels.
// Aliases collapse (TEXT to STRING, INTEGER to INT, BOOL to BOOLEAN) so
// equivalent declarations compare equal in schema diffs.
var dataTypes = map[string]string{
	"VARCHAR":   "VARCHAR",
	"STRING":    "STRING",
	"TEXT":      "STRING",
	"CHAR":      "CHAR",
	"INT":       "INT",
	"INTEGER":   "INT",
	"BIGINT":    "BIGINT",
	"SMALLINT":  "SMALLINT",
	"TINYINT":   "TINYINT",
	"FLOAT":     "FLOAT",
	"DOUBLE":    "DOUBLE",
	"DECIMAL":   "DECIMAL",
	"NUMERIC":   "NUMERIC",
	"BOOLEAN":   "BOOLEAN",
	"BOOL":      "BOOLEAN",
	"TIMESTAMP": "TIMESTAMP",
	"DATE":      "DATE",
	"TIME":      "TIME",
	"DATETIME":  "DATETIME",
	"BINARY":    "BINARY",
	"VARBINARY": "VARBINARY",
	"ARRAY":     "ARRAY",
	"STRUCT":    "STRUCT",
	"MAP":       "MAP",
	"JSON":      "JSON",
}

// tableTypes is the accepted set of table type labels. Unknown labels
// fall back to Regular.
var tableTypes = map[string]struct{}{
	"Regular":          {},
	"External":         {},
	"View":             {},
	"SecureView":       {},
	"MaterializedView": {},
	"Iceberg":          {},
	"Local":            {},
	"Partitioned":      {},
	"Foreign":          {},
	"Transient":        {},
}

// DatabaseServiceHandler ingests database platform registrations, the
// roots of the database hierarchy.
type DatabaseServiceHandler struct{}

func (DatabaseServiceHandler) Type() config.EntityType       { return config.TypeDatabaseService }
func (DatabaseServiceHandler) SupportsSchemaEvolution() bool { return false }

func (DatabaseServiceHandler) Validate(entity *config.EntityConfig) error {
	if err := requireName(entity); err != nil {
		return err
	}
	_, err := requireProperty(entity, "service_type")
	return err
}

func (DatabaseServiceHandler) Fqn(entity *config.EntityConfig) (string, error) {
	return joinFqn(entity), nil
}

func (DatabaseServiceHandler) Dependencies(entity *config.EntityConfig) ([]string, error) {
	return nil, nil
}

func (DatabaseServiceHandler) Build(entity *config.EntityConfig) (engine.Entity, error) {
	serviceType, err := requireProperty(entity, "service_type")
	if err != nil {
		return nil, err
	}
	return &catalog.DatabaseService{
		Name:               entity.Name,
		FullyQualifiedName: joinFqn(entity),
		Description:        entity.StringProperty("description"),
		ServiceType:        serviceType,
		Connection:         databaseConnection(entity, serviceType),
	}, nil
}

// databaseConnection builds the connection block for a database
// service. Datalake services wrap their config_source; other types pass
// the connection property through untouched.
func databaseConnection(entity *config.EntityConfig, serviceType string) map[string]interface{} {
	if strings.EqualFold(serviceType, "datalake") {
		configSource := mapProperty(entity, "config_source")
		if configSource == nil {
			configSource = map[string]interface{}{}
		}
		return map[string]interface{}{"configSource": configSource}
	}
	return mapProperty(entity, "connection")
}

// DatabaseHandler ingests databases under a database service.
type DatabaseHandler struct{}

func (DatabaseHandler) Type() config.EntityType       { return config.TypeDatabase }
func (DatabaseHandler) SupportsSchemaEvolution() bool { return false }

func (DatabaseHandler) Validate(entity *config.EntityConfig) error {
	if err := requireName(entity); err != nil {
		return err
	}
	_, err := requireProperty(entity, "service")
	return err
}

func (DatabaseHandler) Fqn(entity *config.EntityConfig) (string, error) {
	service, err := requireProperty(entity, "service")
	if err != nil {
		return "", err
	}
	return joinFqn(entity, service), nil
}

func (DatabaseHandler) Dependencies(entity *config.EntityConfig) ([]string, error) {
	service, err := requireProperty(entity, "service")
	if err != nil {
		return nil, err
	}
	return []string{service}, nil
}

func (DatabaseHandler) Build(entity *config.EntityConfig) (engine.Entity, error) {
	service, err := requireProperty(entity, "service")
	if err != nil {
		return nil, err
	}
	return &catalog.Database{
		Name:               entity.Name,
		FullyQualifiedName: joinFqn(entity, service),
		Description:        entity.StringProperty("description"),
		Service:            service,
	}, nil
}

// DatabaseSchemaHandler ingests schemas under a database.
type DatabaseSchemaHandler struct{}

func (DatabaseSchemaHandler) Type() config.EntityType       { return config.TypeDatabaseSchema }
func (DatabaseSchemaHandler) SupportsSchemaEvolution() bool { return false }

func (DatabaseSchemaHandler) Validate(entity *config.EntityConfig) error {
	if err := requireName(entity); err != nil {
		return err
	}
	if _, err := requireProperty(entity, "service"); err != nil {
		return err
	}
	_, err := requireProperty(entity, "database")
	return err
}

func (DatabaseSchemaHandler) Fqn(entity *config.EntityConfig) (string, error) {
	databaseFqn, err := schemaParentFqn(entity)
	if err != nil {
		return "", err
	}
	return joinFqn(entity, databaseFqn), nil
}

func (DatabaseSchemaHandler) Dependencies(entity *config.EntityConfig) ([]string, error) {
	databaseFqn, err := schemaParentFqn(entity)
	if err != nil {
		return nil, err
	}
	return []string{databaseFqn}, nil
}

func (DatabaseSchemaHandler) Build(entity *config.EntityConfig) (engine.Entity, error) {
	databaseFqn, err := schemaParentFqn(entity)
	if err != nil {
		return nil, err
	}
	return &catalog.DatabaseSchema{
		Name:               entity.Name,
		FullyQualifiedName: joinFqn(entity, databaseFqn),
		Description:        entity.StringProperty("description"),
		Database:           databaseFqn,
	}, nil
}

func schemaParentFqn(entity *config.EntityConfig) (string, error) {
	service, err := requireProperty(entity, "service")
	if err != nil {
		return "", err
	}
	database, err := requireProperty(entity, "database")
	if err != nil {
		return "", err
	}
	return service + "." + database, nil
}

// TableHandler ingests tables with their column schemas. Tables are the
// only entity type tracked for schema evolution.
type TableHandler struct{}

func (TableHandler) Type() config.EntityType       { return config.TypeTable }
func (TableHandler) SupportsSchemaEvolution() bool { return true }

func (TableHandler) Validate(entity *config.EntityConfig) error {
	if err := requireName(entity); err != nil {
		return err
	}
	if _, err := requireProperty(entity, "service"); err != nil {
		return err
	}
	if _, err := requireProperty(entity, "database"); err != nil {
		return err
	}
	if _, err := requireProperty(entity, "database_schema"); err != nil {
		return err
	}
	return validateColumns(entity)
}

func (TableHandler) Fqn(entity *config.EntityConfig) (string, error) {
	schemaFqn, err := tableParentFqn(entity)
	if err != nil {
		return "", err
	}
	return joinFqn(entity, schemaFqn), nil
}

func (TableHandler) Dependencies(entity *config.EntityConfig) ([]string, error) {
	schemaFqn, err := tableParentFqn(entity)
	if err != nil {
		return nil, err
	}
	return []string{schemaFqn}, nil
}

func (TableHandler) Build(entity *config.EntityConfig) (engine.Entity, error) {
	schemaFqn, err := tableParentFqn(entity)
	if err != nil {
		return nil, err
	}
	columns, err := buildColumns(entity)
	if err != nil {
		return nil, err
	}
	return &catalog.Table{
		Name:               entity.Name,
		FullyQualifiedName: joinFqn(entity, schemaFqn),
		Description:        entity.StringProperty("description"),
		DatabaseSchema:     schemaFqn,
		TableType:          tableType(entity),
		Columns:            columns,
	}, nil
}

func tableParentFqn(entity *config.EntityConfig) (string, error) {
	service, err := requireProperty(entity, "service")
	if err != nil {
		return "", err
	}
	database, err := requireProperty(entity, "database")
	if err != nil {
		return "", err
	}
	schema, err := requireProperty(entity, "database_schema")
	if err != nil {
		return "", err
	}
	return strings.Join([]string{service, database, schema}, "."), nil
}

// validateColumns checks shape only; data type values are checked at
// build time so discovery output with empty columns still validates.
func validateColumns(entity *config.EntityConfig) error {
	columns, err := listProperty(entity, "columns", "Column")
	if err != nil {
		return err
	}
	for idx, column := range columns {
		if _, ok := column["name"]; !ok {
			return validationError(entity, "Column at index %d missing 'name'", idx)
		}
		if _, ok := column["dataType"]; !ok {
			return validationError(entity, "Column '%s' missing 'dataType'", stringKey(column, "name"))
		}
	}
	return nil
}

func buildColumns(entity *config.EntityConfig) ([]catalog.Column, error) {
	declared, err := listProperty(entity, "columns", "Column")
	if err != nil {
		return nil, err
	}
	if len(declared) == 0 {
		return nil, nil
	}
	columns := make([]catalog.Column, 0, len(declared))
	for _, item := range declared {
		raw := stringKey(item, "dataType")
		dataType, ok := dataTypes[strings.ToUpper(raw)]
		if !ok {
			return nil, validationError(entity, "Invalid data type '%s' for column '%s'", raw, stringKey(item, "name"))
		}
		columns = append(columns, catalog.Column{
			Name:        stringKey(item, "name"),
			DataType:    dataType,
			DataLength:  intKey(item, "dataLength"),
			Precision:   intKey(item, "precision"),
			Scale:       intKey(item, "scale"),
			Description: stringKey(item, "description"),
			Constraint:  stringKey(item, "constraint"),
		})
	}
	return columns, nil
}

func tableType(entity *config.EntityConfig) string {
	declared := entity.StringProperty("table_type")
	if _, ok := tableTypes[declared]; ok {
		return declared
	}
	return "Regular"
}
