package sources

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/engine"
)

func sftpSourceConfig(props map[string]interface{}) config.SourceConfig {
	merged := map[string]interface{}{
		"host":     "files.example.com",
		"username": "ingest",
		"password": "secret",
	}
	for key, value := range props {
		merged[key] = value
	}
	return sourceConfig("drop", config.SourceSFTP, merged)
}

func TestNewSFTPSource_RequiresHost(t *testing.T) {
	cfg := sourceConfig("drop", config.SourceSFTP, map[string]interface{}{
		"username": "ingest",
		"password": "secret",
	})

	_, err := NewSFTPSource(cfg, nil)
	assertConfigError(t, err, "source 'drop' requires property 'host'")
}

func TestNewSFTPSource_RequiresUsername(t *testing.T) {
	cfg := sourceConfig("drop", config.SourceSFTP, map[string]interface{}{
		"host":     "files.example.com",
		"password": "secret",
	})

	_, err := NewSFTPSource(cfg, nil)
	assertConfigError(t, err, "source 'drop' requires property 'username'")
}

func TestNewSFTPSource_RequiresCredentials(t *testing.T) {
	cfg := sourceConfig("drop", config.SourceSFTP, map[string]interface{}{
		"host":     "files.example.com",
		"username": "ingest",
	})

	_, err := NewSFTPSource(cfg, nil)
	assertConfigError(t, err, "source 'drop' requires either 'password' or 'private_key'")
}

func TestNewSFTPSource_Defaults(t *testing.T) {
	source, err := NewSFTPSource(sftpSourceConfig(nil), nil)
	if err != nil {
		t.Fatalf("Expected source to build, got %v", err)
	}

	if source.Name() != "drop" {
		t.Errorf("Expected name drop, got %s", source.Name())
	}
	if source.Type() != config.SourceSFTP {
		t.Errorf("Expected type sftp, got %s", source.Type())
	}
	if source.port != 22 {
		t.Errorf("Expected port 22, got %d", source.port)
	}
	if source.root != "." {
		t.Errorf("Expected root '.', got %s", source.root)
	}
	if source.serviceName != "drop_service" {
		t.Errorf("Expected service name drop_service, got %s", source.serviceName)
	}
	if source.databaseName != "files_example_com" {
		t.Errorf("Expected database name files_example_com, got %s", source.databaseName)
	}
	if source.schemaName != "default" {
		t.Errorf("Expected schema name default, got %s", source.schemaName)
	}
}

func TestSFTPSource_ServiceConfig(t *testing.T) {
	source, err := NewSFTPSource(sftpSourceConfig(map[string]interface{}{
		"root": "/srv/exports",
	}), nil)
	if err != nil {
		t.Fatalf("Expected source to build, got %v", err)
	}

	entity := source.serviceConfig()
	if entity.Type != config.TypeDatabaseService {
		t.Errorf("Expected type %s, got %s", config.TypeDatabaseService, entity.Type)
	}
	if entity.Name != "drop_service" {
		t.Errorf("Expected name drop_service, got %s", entity.Name)
	}
	assertProperty(t, entity, "service_type", "Sftp")

	connection, ok := entity.Properties["connection"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected connection map, got %T", entity.Properties["connection"])
	}
	if connection["host"] != "files.example.com" {
		t.Errorf("Expected host files.example.com, got %v", connection["host"])
	}
	if connection["port"] != 22 {
		t.Errorf("Expected port 22, got %v", connection["port"])
	}
	if connection["root"] != "/srv/exports" {
		t.Errorf("Expected root /srv/exports, got %v", connection["root"])
	}
}

func TestSFTPSource_TableConfig(t *testing.T) {
	source, err := NewSFTPSource(sftpSourceConfig(nil), nil)
	if err != nil {
		t.Fatalf("Expected source to build, got %v", err)
	}

	columns := []interface{}{column("id", "BIGINT")}
	entity := source.tableConfig("exports_orders", "/srv/exports/orders.csv", columns)

	if entity.Type != config.TypeTable {
		t.Errorf("Expected type %s, got %s", config.TypeTable, entity.Type)
	}
	if entity.Name != "exports_orders" {
		t.Errorf("Expected name exports_orders, got %s", entity.Name)
	}
	assertProperty(t, entity, "service", "drop_service")
	assertProperty(t, entity, "database", "files_example_com")
	assertProperty(t, entity, "database_schema", "default")
	assertProperty(t, entity, "table_type", "External")
	assertProperty(t, entity, "description", "File dataset at sftp://files.example.com/srv/exports/orders.csv")

	bare := source.tableConfig("notes", "notes.json", nil)
	if _, present := bare.Properties["columns"]; present {
		t.Error("Expected columns to be omitted when none were inferred")
	}
}

func TestDatasetName(t *testing.T) {
	cases := []struct {
		rel  string
		want string
	}{
		{"orders.csv", "orders"},
		{"raw/orders.csv", "raw_orders"},
		{"exports/daily.2024.csv", "exports_daily_2024"},
		{"models/features.parquet", "models_features"},
	}
	for _, tc := range cases {
		if got := datasetName(tc.rel); got != tc.want {
			t.Errorf("Expected datasetName(%q) = %s, got %s", tc.rel, tc.want, got)
		}
	}
}

func TestRelativeTo(t *testing.T) {
	cases := []struct {
		root string
		path string
		want string
	}{
		{".", "./data/orders.csv", "data/orders.csv"},
		{".", "data/orders.csv", "data/orders.csv"},
		{"", "orders.csv", "orders.csv"},
		{"/srv/data", "/srv/data/orders.csv", "orders.csv"},
		{"/srv/data/", "/srv/data/raw/orders.csv", "raw/orders.csv"},
	}
	for _, tc := range cases {
		if got := relativeTo(tc.root, tc.path); got != tc.want {
			t.Errorf("Expected relativeTo(%q, %q) = %s, got %s", tc.root, tc.path, tc.want, got)
		}
	}
}

func TestCsvDataType(t *testing.T) {
	cases := []struct {
		value string
		want  string
	}{
		{"", "VARCHAR"},
		{"42", "BIGINT"},
		{" 7 ", "BIGINT"},
		{"-13", "BIGINT"},
		{"3.14", "DOUBLE"},
		{"true", "BOOLEAN"},
		{"FALSE", "BOOLEAN"},
		{"hello", "VARCHAR"},
		{"2024-01-01", "VARCHAR"},
	}
	for _, tc := range cases {
		if got := csvDataType(tc.value); got != tc.want {
			t.Errorf("Expected csvDataType(%q) = %s, got %s", tc.value, tc.want, got)
		}
	}
}

func TestCsvColumnsFromReader(t *testing.T) {
	input := "id,name,price,active\n1,Widget,9.99,true\n"

	columns, err := csvColumnsFromReader(strings.NewReader(input), ',')
	if err != nil {
		t.Fatalf("Expected inference to succeed, got %v", err)
	}
	if len(columns) != 4 {
		t.Fatalf("Expected 4 columns, got %d", len(columns))
	}

	want := []struct {
		name     string
		dataType string
	}{
		{"id", "BIGINT"},
		{"name", "VARCHAR"},
		{"price", "DOUBLE"},
		{"active", "BOOLEAN"},
	}
	for idx, expected := range want {
		col, ok := columns[idx].(map[string]interface{})
		if !ok {
			t.Fatalf("Expected column map, got %T", columns[idx])
		}
		if col["name"] != expected.name || col["dataType"] != expected.dataType {
			t.Errorf("Expected column %s %s, got %v", expected.name, expected.dataType, col)
		}
	}
}

func TestCsvColumnsFromReader_HeaderOnly(t *testing.T) {
	columns, err := csvColumnsFromReader(strings.NewReader("id,name\n"), ',')
	if err != nil {
		t.Fatalf("Expected inference to succeed, got %v", err)
	}
	if len(columns) != 2 {
		t.Fatalf("Expected 2 columns, got %d", len(columns))
	}
	for _, raw := range columns {
		col := raw.(map[string]interface{})
		if col["dataType"] != "VARCHAR" {
			t.Errorf("Expected VARCHAR without a sample row, got %v", col["dataType"])
		}
	}
}

func TestCsvColumnsFromReader_EmptyFile(t *testing.T) {
	_, err := csvColumnsFromReader(strings.NewReader(""), ',')
	if err == nil {
		t.Fatal("Expected an error for an empty file")
	}
	if !strings.Contains(err.Error(), "failed to read header") {
		t.Errorf("Expected header error, got %v", err)
	}
}

func TestCsvColumnsFromReader_TabSeparated(t *testing.T) {
	input := "id\tname\n7\tBolt\n"

	columns, err := csvColumnsFromReader(strings.NewReader(input), '\t')
	if err != nil {
		t.Fatalf("Expected inference to succeed, got %v", err)
	}
	if len(columns) != 2 {
		t.Fatalf("Expected 2 columns, got %d", len(columns))
	}
	first := columns[0].(map[string]interface{})
	if first["name"] != "id" || first["dataType"] != "BIGINT" {
		t.Errorf("Expected column id BIGINT, got %v", first)
	}
}

func TestSFTPSource_DiscoverNotConnected(t *testing.T) {
	source, err := NewSFTPSource(sftpSourceConfig(nil), nil)
	if err != nil {
		t.Fatalf("Expected source to build, got %v", err)
	}

	_, err = source.Discover(context.Background(), engine.DiscoveryRequest{EntityType: config.TypeTable})
	if !errors.Is(err, errNotConnected) {
		t.Errorf("Expected errNotConnected, got %v", err)
	}
}
