package sources

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/engine"
	"github.com/openmantle/openmantle/pkg/telemetry"
)

const (
	// sftpConnectTimeout bounds the SSH handshake.
	sftpConnectTimeout = 30 * time.Second

	// csvSampleBytes bounds how much of a file header inference reads.
	csvSampleBytes = 1 << 20
)

// datasetExtensions marks the file formats treated as table-like
// datasets during the walk.
var datasetExtensions = map[string]struct{}{
	".csv":     {},
	".tsv":     {},
	".parquet": {},
	".json":    {},
	".jsonl":   {},
	".avro":    {},
	".orc":     {},
}

// SFTPSource discovers file datasets from a directory tree on an SFTP
// server. Every structured data file under the root becomes a table;
// csv, tsv, and parquet files get an inferred column schema.
//
// Connection properties:
//   - host: server hostname (required)
//   - port: server port (default 22)
//   - username: login user (required)
//   - password: login password (optional when private_key is set)
//   - private_key: path to a private key file (optional when password is set)
//   - passphrase: private key passphrase (optional)
//   - known_hosts: path to a known_hosts file; host keys are not
//     verified when unset
//   - root: remote directory to walk (default ".")
//   - service_name: discovered service name (default "<name>_service")
//   - database_name: discovered database name (default host with dots
//     flattened)
//   - schema_name: discovered schema name (default "default")
type SFTPSource struct {
	name       string
	host       string
	port       int
	username   string
	password   string
	privateKey string
	passphrase string
	knownHosts string
	root       string

	serviceName  string
	databaseName string
	schemaName   string

	sshClient  *ssh.Client
	sftpClient *sftp.Client
	logger     *telemetry.Logger
}

// NewSFTPSource builds the connector from a source declaration.
func NewSFTPSource(cfg config.SourceConfig, tel *telemetry.Telemetry) (*SFTPSource, error) {
	host, err := requireSourceProperty(cfg, "host")
	if err != nil {
		return nil, err
	}
	username, err := requireSourceProperty(cfg, "username")
	if err != nil {
		return nil, err
	}
	password := cfg.StringProperty("password", "")
	privateKey := cfg.StringProperty("private_key", "")
	if password == "" && privateKey == "" {
		return nil, engine.NewConfigurationError(
			fmt.Sprintf("source '%s' requires either 'password' or 'private_key'", cfg.Name), nil)
	}
	if tel == nil {
		tel = telemetry.Nop()
	}
	return &SFTPSource{
		name:         cfg.Name,
		host:         host,
		port:         intSourceProperty(cfg, "port", 22),
		username:     username,
		password:     password,
		privateKey:   privateKey,
		passphrase:   cfg.StringProperty("passphrase", ""),
		knownHosts:   cfg.StringProperty("known_hosts", ""),
		root:         cfg.StringProperty("root", "."),
		serviceName:  cfg.StringProperty("service_name", cfg.Name+"_service"),
		databaseName: cfg.StringProperty("database_name", strings.ReplaceAll(host, ".", "_")),
		schemaName:   cfg.StringProperty("schema_name", "default"),
		logger:       tel.Logger.WithSource(cfg.Name, string(config.SourceSFTP)),
	}, nil
}

// Name returns the configured source name.
func (s *SFTPSource) Name() string { return s.name }

// Type returns the connector type.
func (s *SFTPSource) Type() config.SourceType { return config.SourceSFTP }

// Connect dials the server, starts the SFTP subsystem, and verifies the
// root directory is readable.
func (s *SFTPSource) Connect(ctx context.Context) error {
	clientConfig, err := s.sshClientConfig()
	if err != nil {
		return engine.NewConfigurationError(
			fmt.Sprintf("invalid ssh settings for source '%s'", s.name), err)
	}
	address := fmt.Sprintf("%s:%d", s.host, s.port)

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)
	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- client
	}()

	var sshClient *ssh.Client
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errChan:
		return fmt.Errorf("failed to connect to sftp at %s: %w", address, err)
	case sshClient = <-connChan:
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return fmt.Errorf("failed to start sftp subsystem at %s: %w", address, err)
	}
	if _, err := sftpClient.Stat(s.root); err != nil {
		_ = sftpClient.Close()
		_ = sshClient.Close()
		return fmt.Errorf("failed to access root '%s' at %s: %w", s.root, address, err)
	}

	s.sshClient = sshClient
	s.sftpClient = sftpClient
	s.logger.Infof("Connected to sftp at %s", address)
	return nil
}

// Disconnect closes the SFTP session and the SSH connection.
func (s *SFTPSource) Disconnect(ctx context.Context) error {
	var err error
	if s.sftpClient != nil {
		err = s.sftpClient.Close()
		s.sftpClient = nil
	}
	if s.sshClient != nil {
		if closeErr := s.sshClient.Close(); err == nil {
			err = closeErr
		}
		s.sshClient = nil
	}
	return err
}

// Discover walks the remote tree for the requested entity type. Include
// and exclude patterns match dataset names.
func (s *SFTPSource) Discover(ctx context.Context, req engine.DiscoveryRequest) ([]config.EntityConfig, error) {
	if s.sftpClient == nil {
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
		return s.discoverDatasets(ctx, filter)
	default:
		return nil, unsupportedType(s.name, req.EntityType)
	}
}

func (s *SFTPSource) serviceConfig() config.EntityConfig {
	return config.EntityConfig{
		Type: config.TypeDatabaseService,
		Name: s.serviceName,
		Properties: map[string]interface{}{
			"service_type": "Sftp",
			"description":  fmt.Sprintf("SFTP file service at %s:%d", s.host, s.port),
			"connection": map[string]interface{}{
				"host": s.host,
				"port": s.port,
				"root": s.root,
			},
		},
	}
}

func (s *SFTPSource) databaseConfig() config.EntityConfig {
	return config.EntityConfig{
		Type: config.TypeDatabase,
		Name: s.databaseName,
		Properties: map[string]interface{}{
			"service":     s.serviceName,
			"description": fmt.Sprintf("File datasets on %s", s.host),
		},
	}
}

func (s *SFTPSource) schemaConfig() config.EntityConfig {
	return config.EntityConfig{
		Type: config.TypeDatabaseSchema,
		Name: s.schemaName,
		Properties: map[string]interface{}{
			"service":     s.serviceName,
			"database":    s.databaseName,
			"description": fmt.Sprintf("Datasets under %s on %s", s.root, s.host),
		},
	}
}

// discoverDatasets walks the tree and emits one table per data file.
// Hidden files and directories are skipped; unreadable paths are logged
// and skipped.
func (s *SFTPSource) discoverDatasets(ctx context.Context, filter *nameFilter) ([]config.EntityConfig, error) {
	s.logger.Infof("Discovering datasets under %s on %s", s.root, s.host)

	seen := make(map[string]struct{})
	var discovered []config.EntityConfig

	walker := s.sftpClient.Walk(s.root)
	for walker.Step() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := walker.Err(); err != nil {
			s.logger.WithError(err).Warnf("Skipping unreadable path %s", walker.Path())
			continue
		}
		info := walker.Stat()
		if strings.HasPrefix(info.Name(), ".") && walker.Path() != s.root {
			if info.IsDir() {
				walker.SkipDir()
			}
			continue
		}
		if info.IsDir() {
			continue
		}
		ext := strings.ToLower(path.Ext(info.Name()))
		if _, ok := datasetExtensions[ext]; !ok {
			continue
		}

		name := datasetName(relativeTo(s.root, walker.Path()))
		if !filter.keep(name) {
			continue
		}
		if _, dup := seen[name]; dup {
			s.logger.Warnf("Skipping %s: dataset name '%s' already discovered", walker.Path(), name)
			continue
		}
		seen[name] = struct{}{}

		columns, err := s.inferColumns(walker.Path(), ext)
		if err != nil {
			s.logger.WithError(err).Warnf("Failed to infer schema for %s", walker.Path())
			columns = nil
		}
		discovered = append(discovered, s.tableConfig(name, walker.Path(), columns))
	}

	s.logger.Infof("Discovered %d datasets", len(discovered))
	return discovered, nil
}

func (s *SFTPSource) tableConfig(name, remotePath string, columns []interface{}) config.EntityConfig {
	properties := map[string]interface{}{
		"service":         s.serviceName,
		"database":        s.databaseName,
		"database_schema": s.schemaName,
		"table_type":      "External",
		"description":     fmt.Sprintf("File dataset at sftp://%s/%s", s.host, strings.TrimPrefix(remotePath, "/")),
	}
	if len(columns) > 0 {
		properties["columns"] = columns
	}
	return config.EntityConfig{
		Type:       config.TypeTable,
		Name:       name,
		Properties: properties,
	}
}

// inferColumns reads a column schema out of formats that carry one.
func (s *SFTPSource) inferColumns(remotePath, ext string) ([]interface{}, error) {
	switch ext {
	case ".csv":
		return s.csvColumns(remotePath, ',')
	case ".tsv":
		return s.csvColumns(remotePath, '\t')
	case ".parquet":
		file, err := s.sftpClient.Open(remotePath)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, err
		}
		return columnsFromParquet(data)
	default:
		return nil, nil
	}
}

// csvColumns infers a column schema from the head of a remote file.
func (s *SFTPSource) csvColumns(remotePath string, comma rune) ([]interface{}, error) {
	file, err := s.sftpClient.Open(remotePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return csvColumnsFromReader(io.LimitReader(file, csvSampleBytes), comma)
}

// csvColumnsFromReader infers column names from the header row and
// types from the first data row.
func csvColumnsFromReader(r io.Reader, comma rune) ([]interface{}, error) {
	records := csv.NewReader(r)
	records.Comma = comma
	header, err := records.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	sample, err := records.Read()
	if err != nil {
		// Header-only files still describe their columns.
		sample = nil
	}

	columns := make([]interface{}, 0, len(header))
	for idx, name := range header {
		dataType := "VARCHAR"
		if idx < len(sample) {
			dataType = csvDataType(sample[idx])
		}
		columns = append(columns, column(strings.TrimSpace(name), dataType))
	}
	return columns, nil
}

// csvDataType guesses a column type from one sampled value.
func csvDataType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "VARCHAR"
	}
	if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		return "BIGINT"
	}
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return "DOUBLE"
	}
	if _, err := strconv.ParseBool(value); err == nil {
		return "BOOLEAN"
	}
	return "VARCHAR"
}

// datasetName flattens a root-relative path into a dataset name. FQN
// levels are dot separated, so path separators and dots inside the
// path collapse to underscores.
func datasetName(rel string) string {
	rel = strings.TrimSuffix(rel, path.Ext(rel))
	rel = strings.ReplaceAll(rel, "/", "_")
	return strings.ReplaceAll(rel, ".", "_")
}

// relativeTo strips the walk root from a remote path.
func relativeTo(root, p string) string {
	root = strings.TrimSuffix(root, "/")
	if root == "." || root == "" {
		return strings.TrimPrefix(p, "./")
	}
	return strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
}

// sshClientConfig builds the SSH client settings from the declared
// authentication properties.
func (s *SFTPSource) sshClientConfig() (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod
	if s.privateKey != "" {
		keyBytes, err := os.ReadFile(s.privateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		var signer ssh.Signer
		if s.passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(s.passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}
	if s.password != "" {
		authMethods = append(authMethods, ssh.Password(s.password))
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if s.knownHosts != "" {
		callback, err := knownhosts.New(s.knownHosts)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
		hostKeyCallback = callback
	}

	return &ssh.ClientConfig{
		User:            s.username,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         sftpConnectTimeout,
	}, nil
}
