package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/engine"
	"github.com/openmantle/openmantle/pkg/telemetry"
)

// discoveryMaxConns bounds the pool; discovery runs a handful of
// sequential catalog queries and never needs more.
const discoveryMaxConns = 4

// pgDataTypes maps information_schema type names to the column type
// labels table handlers accept. Unlisted names fall back to STRING.
var pgDataTypes = map[string]string{
	"character varying":           "VARCHAR",
	"character":                   "CHAR",
	"text":                        "TEXT",
	"integer":                     "INT",
	"bigint":                      "BIGINT",
	"smallint":                    "SMALLINT",
	"boolean":                     "BOOLEAN",
	"numeric":                     "NUMERIC",
	"real":                        "FLOAT",
	"double precision":            "DOUBLE",
	"money":                       "DOUBLE",
	"timestamp without time zone": "TIMESTAMP",
	"timestamp with time zone":    "TIMESTAMP",
	"date":                        "DATE",
	"time without time zone":      "TIME",
	"time with time zone":         "TIME",
	"json":                        "JSON",
	"jsonb":                       "JSON",
	"bytea":                       "BINARY",
	"uuid":                        "VARCHAR",
	"ARRAY":                       "ARRAY",
}

// PostgresSource discovers the database hierarchy of a PostgreSQL
// server by walking information_schema.
//
// Connection properties:
//   - host: server hostname (required)
//   - port: server port (default 5432)
//   - database: database to inspect (required)
//   - username: login role (default postgres)
//   - password: login password (optional)
//   - sslmode: libpq sslmode value (default prefer)
//   - service_name: discovered service name (default "<name>_service")
type PostgresSource struct {
	name     string
	host     string
	port     int
	database string
	username string
	password string
	sslMode  string

	serviceName string

	pool   *pgxpool.Pool
	logger *telemetry.Logger
}

// NewPostgresSource builds the connector from a source declaration.
func NewPostgresSource(cfg config.SourceConfig, tel *telemetry.Telemetry) (*PostgresSource, error) {
	host, err := requireSourceProperty(cfg, "host")
	if err != nil {
		return nil, err
	}
	database, err := requireSourceProperty(cfg, "database")
	if err != nil {
		return nil, err
	}
	if tel == nil {
		tel = telemetry.Nop()
	}
	return &PostgresSource{
		name:        cfg.Name,
		host:        host,
		port:        intSourceProperty(cfg, "port", 5432),
		database:    database,
		username:    cfg.StringProperty("username", "postgres"),
		password:    cfg.StringProperty("password", ""),
		sslMode:     cfg.StringProperty("sslmode", "prefer"),
		serviceName: cfg.StringProperty("service_name", cfg.Name+"_service"),
		logger:      tel.Logger.WithSource(cfg.Name, string(config.SourcePostgres)),
	}, nil
}

// Name returns the configured source name.
func (s *PostgresSource) Name() string { return s.name }

// Type returns the connector type.
func (s *PostgresSource) Type() config.SourceType { return config.SourcePostgres }

// Connect opens a connection pool and verifies the server answers.
func (s *PostgresSource) Connect(ctx context.Context) error {
	poolConfig, err := pgxpool.ParseConfig(s.connString())
	if err != nil {
		return fmt.Errorf("invalid postgres connection settings for source '%s': %w", s.name, err)
	}
	poolConfig.MaxConns = discoveryMaxConns
	poolConfig.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres at %s:%d: %w", s.host, s.port, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to connect to postgres at %s:%d: %w", s.host, s.port, err)
	}

	s.pool = pool
	s.logger.Infof("Connected to postgres at %s:%d/%s", s.host, s.port, s.database)
	return nil
}

// Disconnect closes the connection pool.
func (s *PostgresSource) Disconnect(ctx context.Context) error {
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
		s.logger.Debugf("Disconnected from postgres at %s:%d", s.host, s.port)
	}
	return nil
}

// Discover walks information_schema for the requested entity type. The
// optional "schema" filter restricts table discovery to one schema;
// include and exclude patterns match discovered names.
func (s *PostgresSource) Discover(ctx context.Context, req engine.DiscoveryRequest) ([]config.EntityConfig, error) {
	if s.pool == nil {
		return nil, errNotConnected
	}
	filter, err := newNameFilter(req)
	if err != nil {
		return nil, err
	}

	switch req.EntityType {
	case config.TypeDatabaseService:
		return []config.EntityConfig{s.serviceConfig()}, nil
	case config.TypeDatabase:
		return []config.EntityConfig{s.databaseConfig()}, nil
	case config.TypeDatabaseSchema:
		return s.discoverSchemas(ctx, filter)
	case config.TypeTable:
		schema, _ := req.Filter["schema"].(string)
		return s.discoverTables(ctx, schema, filter)
	default:
		return nil, unsupportedType(s.name, req.EntityType)
	}
}

func (s *PostgresSource) serviceConfig() config.EntityConfig {
	return config.EntityConfig{
		Type: config.TypeDatabaseService,
		Name: s.serviceName,
		Properties: map[string]interface{}{
			"service_type": "Postgres",
			"description":  fmt.Sprintf("PostgreSQL server at %s:%d", s.host, s.port),
			"connection": map[string]interface{}{
				"hostPort": fmt.Sprintf("%s:%d", s.host, s.port),
				"database": s.database,
			},
		},
	}
}

func (s *PostgresSource) databaseConfig() config.EntityConfig {
	return config.EntityConfig{
		Type: config.TypeDatabase,
		Name: s.database,
		Properties: map[string]interface{}{
			"service":     s.serviceName,
			"description": fmt.Sprintf("Database %s on %s:%d", s.database, s.host, s.port),
		},
	}
}

// discoverSchemas lists user schemas, skipping the server's own.
func (s *PostgresSource) discoverSchemas(ctx context.Context, filter *nameFilter) ([]config.EntityConfig, error) {
	const query = `
		SELECT schema_name FROM information_schema.schemata
		WHERE schema_name NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY schema_name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}
	defer rows.Close()

	var discovered []config.EntityConfig
	for rows.Next() {
		var schema string
		if err := rows.Scan(&schema); err != nil {
			return nil, fmt.Errorf("failed to list schemas: %w", err)
		}
		if !filter.keep(schema) {
			continue
		}
		discovered = append(discovered, config.EntityConfig{
			Type: config.TypeDatabaseSchema,
			Name: schema,
			Properties: map[string]interface{}{
				"service":  s.serviceName,
				"database": s.database,
			},
		})
	}
	return discovered, rows.Err()
}

// discoverTables lists tables and views with their column schemas.
func (s *PostgresSource) discoverTables(ctx context.Context, schema string, filter *nameFilter) ([]config.EntityConfig, error) {
	query := `
		SELECT table_schema, table_name, table_type
		FROM information_schema.tables
		WHERE table_schema NOT IN ('pg_catalog', 'information_schema')`
	args := []interface{}{}
	if schema != "" {
		query += ` AND table_schema = $1`
		args = append(args, schema)
	}
	query += ` ORDER BY table_schema, table_name`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	type tableRef struct {
		schema, name, tableType string
	}
	var refs []tableRef
	for rows.Next() {
		var ref tableRef
		if err := rows.Scan(&ref.schema, &ref.name, &ref.tableType); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to list tables: %w", err)
		}
		refs = append(refs, ref)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	var discovered []config.EntityConfig
	for _, ref := range refs {
		if !filter.keep(ref.name) {
			continue
		}
		columns, err := s.tableColumns(ctx, ref.schema, ref.name)
		if err != nil {
			return nil, err
		}
		discovered = append(discovered, s.tableConfig(ref.schema, ref.name, ref.tableType, columns))
	}
	s.logger.Infof("Discovered %d tables in %s", len(discovered), s.database)
	return discovered, nil
}

// tableColumns reads one table's column schema in ordinal order.
func (s *PostgresSource) tableColumns(ctx context.Context, schema, table string) ([]interface{}, error) {
	const query = `
		SELECT column_name, data_type,
			COALESCE(character_maximum_length, 0),
			COALESCE(numeric_precision, 0),
			COALESCE(numeric_scale, 0)
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`

	rows, err := s.pool.Query(ctx, query, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var columns []interface{}
	for rows.Next() {
		var name, dataType string
		var length, precision, scale int
		if err := rows.Scan(&name, &dataType, &length, &precision, &scale); err != nil {
			return nil, fmt.Errorf("failed to read columns of %s.%s: %w", schema, table, err)
		}
		col := column(name, pgDataType(dataType))
		if length > 0 {
			col["dataLength"] = length
		}
		if precision > 0 {
			col["precision"] = precision
		}
		if scale > 0 {
			col["scale"] = scale
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (s *PostgresSource) tableConfig(schema, table, tableType string, columns []interface{}) config.EntityConfig {
	properties := map[string]interface{}{
		"service":         s.serviceName,
		"database":        s.database,
		"database_schema": schema,
		"table_type":      pgTableType(tableType),
	}
	if len(columns) > 0 {
		properties["columns"] = columns
	}
	return config.EntityConfig{
		Type:       config.TypeTable,
		Name:       table,
		Properties: properties,
	}
}

// connString renders the pool DSN in URL form.
func (s *PostgresSource) connString() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", s.host, s.port),
		Path:   "/" + s.database,
	}
	if s.username != "" {
		if s.password != "" {
			u.User = url.UserPassword(s.username, s.password)
		} else {
			u.User = url.User(s.username)
		}
	}
	query := url.Values{}
	query.Set("sslmode", s.sslMode)
	u.RawQuery = query.Encode()
	return u.String()
}

// pgDataType normalizes an information_schema type name.
func pgDataType(raw string) string {
	if mapped, ok := pgDataTypes[raw]; ok {
		return mapped
	}
	return "STRING"
}

// pgTableType maps information_schema table_type values to catalog
// table type labels.
func pgTableType(raw string) string {
	switch {
	case strings.Contains(raw, "VIEW"):
		return "View"
	case strings.Contains(raw, "FOREIGN"):
		return "Foreign"
	case strings.Contains(raw, "TEMPORARY"):
		return "Local"
	default:
		return "Regular"
	}
}
