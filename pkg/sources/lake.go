package sources

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/engine"
	"github.com/openmantle/openmantle/pkg/telemetry"
)

// hudiMarker is the metadata directory every Hudi table carries; its
// presence under a prefix is what makes that prefix a table.
const hudiMarker = ".hoodie/"

// LakeSource discovers Apache Hudi tables from an S3-compatible object
// store. A first-level prefix under the configured prefix is a table
// when it contains a .hoodie marker directory; column schemas are read
// from parquet file footers.
//
// Connection properties:
//   - endpoint: object store endpoint URL (required)
//   - bucket: bucket to scan (required)
//   - prefix: key prefix to scan under (optional)
//   - region: bucket region (optional)
//   - access_key, secret_key: static credentials (optional, anonymous
//     access when unset)
//   - use_ssl: force TLS when the endpoint scheme does not say (optional)
//   - service_name: discovered service name (default "<bucket>_datalake")
//   - database_name: discovered database name (default bucket)
//   - schema_name: discovered schema name (default "default")
type LakeSource struct {
	name      string
	endpoint  string
	bucket    string
	prefix    string
	region    string
	accessKey string
	secretKey string
	useSSL    bool

	serviceName  string
	databaseName string
	schemaName   string

	client *minio.Client
	logger *telemetry.Logger
}

// NewLakeSource builds the connector from a source declaration.
func NewLakeSource(cfg config.SourceConfig, tel *telemetry.Telemetry) (*LakeSource, error) {
	endpoint, err := requireSourceProperty(cfg, "endpoint")
	if err != nil {
		return nil, err
	}
	bucket, err := requireSourceProperty(cfg, "bucket")
	if err != nil {
		return nil, err
	}
	if tel == nil {
		tel = telemetry.Nop()
	}
	return &LakeSource{
		name:         cfg.Name,
		endpoint:     endpoint,
		bucket:       bucket,
		prefix:       cfg.StringProperty("prefix", ""),
		region:       cfg.StringProperty("region", ""),
		accessKey:    cfg.StringProperty("access_key", ""),
		secretKey:    cfg.StringProperty("secret_key", ""),
		useSSL:       boolSourceProperty(cfg, "use_ssl", false),
		serviceName:  cfg.StringProperty("service_name", bucket+"_datalake"),
		databaseName: cfg.StringProperty("database_name", bucket),
		schemaName:   cfg.StringProperty("schema_name", "default"),
		logger:       tel.Logger.WithSource(cfg.Name, string(config.SourceLake)),
	}, nil
}

// Name returns the configured source name.
func (s *LakeSource) Name() string { return s.name }

// Type returns the connector type.
func (s *LakeSource) Type() config.SourceType { return config.SourceLake }

// Connect creates the object store client and verifies bucket access.
func (s *LakeSource) Connect(ctx context.Context) error {
	endpoint := s.endpoint
	secure := s.useSSL
	if u, err := url.Parse(s.endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			secure = true
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(s.accessKey, s.secretKey, ""),
		Secure: secure,
		Region: s.region,
	})
	if err != nil {
		return fmt.Errorf("failed to create object store client for source '%s': %w", s.name, err)
	}

	exists, err := client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to connect to object store at %s: %w", s.endpoint, err)
	}
	if !exists {
		return fmt.Errorf("bucket '%s' not found at %s", s.bucket, s.endpoint)
	}

	s.client = client
	s.logger.Infof("Connected to object store bucket %s at %s", s.bucket, s.endpoint)
	return nil
}

// Disconnect releases the client.
func (s *LakeSource) Disconnect(ctx context.Context) error {
	s.client = nil
	return nil
}

// Discover scans the bucket for the requested entity type. Include and
// exclude patterns match table names.
func (s *LakeSource) Discover(ctx context.Context, req engine.DiscoveryRequest) ([]config.EntityConfig, error) {
	if s.client == nil {
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
		return []config.EntityConfig{s.schemaConfig()}, nil
	case config.TypeTable:
		return s.discoverTables(ctx, filter)
	default:
		return nil, unsupportedType(s.name, req.EntityType)
	}
}

func (s *LakeSource) serviceConfig() config.EntityConfig {
	return config.EntityConfig{
		Type: config.TypeDatabaseService,
		Name: s.serviceName,
		Properties: map[string]interface{}{
			"service_type": "Datalake",
			"description":  fmt.Sprintf("S3 datalake service for bucket: %s", s.bucket),
			"config_source": map[string]interface{}{
				"bucketName": s.bucket,
				"prefix":     s.prefix,
			},
		},
	}
}

func (s *LakeSource) databaseConfig() config.EntityConfig {
	return config.EntityConfig{
		Type: config.TypeDatabase,
		Name: s.databaseName,
		Properties: map[string]interface{}{
			"service":     s.serviceName,
			"description": fmt.Sprintf("Database for S3 bucket: %s", s.bucket),
		},
	}
}

func (s *LakeSource) schemaConfig() config.EntityConfig {
	return config.EntityConfig{
		Type: config.TypeDatabaseSchema,
		Name: s.schemaName,
		Properties: map[string]interface{}{
			"service":     s.serviceName,
			"database":    s.databaseName,
			"description": fmt.Sprintf("Schema for Hudi tables in %s", s.bucket),
		},
	}
}

// discoverTables scans first-level prefixes for Hudi markers.
func (s *LakeSource) discoverTables(ctx context.Context, filter *nameFilter) ([]config.EntityConfig, error) {
	searchPrefix := s.prefix
	if searchPrefix != "" && !strings.HasSuffix(searchPrefix, "/") {
		searchPrefix += "/"
	}
	s.logger.Infof("Discovering Hudi tables in s3://%s/%s", s.bucket, searchPrefix)

	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var discovered []config.EntityConfig
	for obj := range s.client.ListObjects(listCtx, s.bucket, minio.ListObjectsOptions{
		Prefix:    searchPrefix,
		Recursive: false,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to discover Hudi tables: %w", obj.Err)
		}
		if !strings.HasSuffix(obj.Key, "/") {
			continue
		}

		isTable, err := s.hasObjects(ctx, obj.Key+hudiMarker)
		if err != nil {
			return nil, fmt.Errorf("failed to discover Hudi tables: %w", err)
		}
		if !isTable {
			continue
		}

		tableName := path.Base(strings.TrimSuffix(obj.Key, "/"))
		if !filter.keep(tableName) {
			continue
		}

		columns, err := s.tableColumns(ctx, obj.Key)
		if err != nil {
			// Schema inference is best effort; a table without readable
			// parquet files is still worth cataloging.
			s.logger.WithError(err).Warnf("Failed to infer schema for table %s", tableName)
			columns = nil
		}
		discovered = append(discovered, s.tableConfig(tableName, obj.Key, columns))
	}

	s.logger.Infof("Discovered %d Hudi tables", len(discovered))
	return discovered, nil
}

// hasObjects reports whether any object exists under the prefix.
func (s *LakeSource) hasObjects(ctx context.Context, prefix string) (bool, error) {
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range s.client.ListObjects(listCtx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
		MaxKeys:   1,
	}) {
		if obj.Err != nil {
			return false, obj.Err
		}
		return true, nil
	}
	return false, nil
}

// tableColumns infers the column schema from the footer of the first
// data file under the table prefix.
func (s *LakeSource) tableColumns(ctx context.Context, tablePrefix string) ([]interface{}, error) {
	key, err := s.firstParquetKey(ctx, tablePrefix)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("no parquet files under %s", tablePrefix)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return columnsFromParquet(data)
}

// firstParquetKey returns the first data file under a table prefix,
// skipping Hudi metadata.
func (s *LakeSource) firstParquetKey(ctx context.Context, tablePrefix string) (string, error) {
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range s.client.ListObjects(listCtx, s.bucket, minio.ListObjectsOptions{
		Prefix:    tablePrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return "", obj.Err
		}
		if strings.Contains(obj.Key, "/"+hudiMarker) {
			continue
		}
		if strings.HasSuffix(obj.Key, ".parquet") {
			return obj.Key, nil
		}
	}
	return "", nil
}

func (s *LakeSource) tableConfig(tableName, tablePrefix string, columns []interface{}) config.EntityConfig {
	location := fmt.Sprintf("s3://%s/%s", s.bucket, tablePrefix)
	properties := map[string]interface{}{
		"service":         s.serviceName,
		"database":        s.databaseName,
		"database_schema": s.schemaName,
		"table_type":      "External",
		"description":     fmt.Sprintf("Hudi table at %s", location),
	}
	if len(columns) > 0 {
		properties["columns"] = columns
	}
	return config.EntityConfig{
		Type:       config.TypeTable,
		Name:       tableName,
		Properties: properties,
	}
}

// columnsFromParquet reads the schema from a parquet footer.
func columnsFromParquet(data []byte) ([]interface{}, error) {
	pr, err := reader.NewParquetReader(buffer.NewBufferFileFromBytes(data), nil, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet footer: %w", err)
	}
	defer pr.ReadStop()
	return parquetColumns(pr.Footer.Schema), nil
}

// parquetColumns maps footer schema elements to column declarations.
// Group nodes and Hudi bookkeeping columns are dropped.
func parquetColumns(elements []*parquet.SchemaElement) []interface{} {
	var columns []interface{}
	for _, element := range elements {
		if !element.IsSetType() {
			// Root and group nodes carry no physical type.
			continue
		}
		if strings.HasPrefix(element.Name, "_hoodie_") {
			continue
		}
		columns = append(columns, column(element.Name, parquetDataType(element)))
	}
	return columns
}

// parquetDataType maps a parquet schema element to a column type label,
// preferring the logical converted type over the physical one.
func parquetDataType(element *parquet.SchemaElement) string {
	if element.IsSetConvertedType() {
		switch element.GetConvertedType() {
		case parquet.ConvertedType_UTF8:
			return "STRING"
		case parquet.ConvertedType_DATE:
			return "DATE"
		case parquet.ConvertedType_TIME_MILLIS, parquet.ConvertedType_TIME_MICROS:
			return "TIME"
		case parquet.ConvertedType_TIMESTAMP_MILLIS, parquet.ConvertedType_TIMESTAMP_MICROS:
			return "TIMESTAMP"
		case parquet.ConvertedType_DECIMAL:
			return "DECIMAL"
		case parquet.ConvertedType_JSON:
			return "JSON"
		case parquet.ConvertedType_LIST:
			return "ARRAY"
		case parquet.ConvertedType_MAP, parquet.ConvertedType_MAP_KEY_VALUE:
			return "MAP"
		case parquet.ConvertedType_INT_8, parquet.ConvertedType_INT_16, parquet.ConvertedType_INT_32,
			parquet.ConvertedType_UINT_8, parquet.ConvertedType_UINT_16, parquet.ConvertedType_UINT_32:
			return "INT"
		case parquet.ConvertedType_INT_64, parquet.ConvertedType_UINT_64:
			return "BIGINT"
		}
	}
	switch element.GetType() {
	case parquet.Type_BOOLEAN:
		return "BOOLEAN"
	case parquet.Type_INT32:
		return "INT"
	case parquet.Type_INT64:
		return "BIGINT"
	case parquet.Type_INT96:
		// Hudi writes timestamps as INT96.
		return "TIMESTAMP"
	case parquet.Type_FLOAT:
		return "FLOAT"
	case parquet.Type_DOUBLE:
		return "DOUBLE"
	case parquet.Type_FIXED_LEN_BYTE_ARRAY:
		return "BINARY"
	case parquet.Type_BYTE_ARRAY:
		return "BINARY"
	default:
		return "STRING"
	}
}
