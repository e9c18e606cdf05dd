package catalog

import (
	"fmt"

	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/engine"
)

// paths maps each entity type to its REST collection under /api/{version}.
var paths = map[config.EntityType]string{
	config.TypeDatabaseService:  "databaseServices",
	config.TypeDatabase:         "databases",
	config.TypeDatabaseSchema:   "databaseSchemas",
	config.TypeTable:            "tables",
	config.TypePipelineService:  "pipelineServices",
	config.TypePipeline:         "pipelines",
	config.TypeTask:             "tasks",
	config.TypeMessagingService: "messagingServices",
	config.TypeTopic:            "topics",
	config.TypeMLModelService:   "mlModelServices",
	config.TypeMLModel:          "mlModels",
	config.TypeSearchService:    "searchServices",
	config.TypeSearchIndex:      "searchIndexes",
	config.TypeTagCategory:      "tagCategories",
	config.TypeTag:              "tags",
	config.TypeUser:             "users",
	config.TypeTeam:             "teams",
	config.TypeGlossary:         "glossaries",
	config.TypeGlossaryTerm:     "glossaryTerms",
}

// PathFor returns the REST collection path for an entity type.
func PathFor(entityType config.EntityType) (string, error) {
	path, ok := paths[entityType]
	if !ok {
		return "", fmt.Errorf("no catalog path for entity type: %s", entityType)
	}
	return path, nil
}

// New returns an empty wire entity of the given type for response decoding.
func New(entityType config.EntityType) (engine.Entity, error) {
	switch entityType {
	case config.TypeDatabaseService:
		return &DatabaseService{}, nil
	case config.TypeDatabase:
		return &Database{}, nil
	case config.TypeDatabaseSchema:
		return &DatabaseSchema{}, nil
	case config.TypeTable:
		return &Table{}, nil
	case config.TypePipelineService:
		return &PipelineService{}, nil
	case config.TypePipeline:
		return &Pipeline{}, nil
	case config.TypeTask:
		return &Task{}, nil
	case config.TypeMessagingService:
		return &MessagingService{}, nil
	case config.TypeTopic:
		return &Topic{}, nil
	case config.TypeMLModelService:
		return &MLModelService{}, nil
	case config.TypeMLModel:
		return &MLModel{}, nil
	case config.TypeSearchService:
		return &SearchService{}, nil
	case config.TypeSearchIndex:
		return &SearchIndex{}, nil
	case config.TypeTagCategory:
		return &TagCategory{}, nil
	case config.TypeTag:
		return &Tag{}, nil
	case config.TypeUser:
		return &User{}, nil
	case config.TypeTeam:
		return &Team{}, nil
	case config.TypeGlossary:
		return &Glossary{}, nil
	case config.TypeGlossaryTerm:
		return &GlossaryTerm{}, nil
	}
	return nil, fmt.Errorf("no wire entity for entity type: %s", entityType)
}

// DatabaseService is a database platform registration (postgres, mysql,
// datalake, ...).
type DatabaseService struct {
	ID                 string                 `json:"id,omitempty"`
	Name               string                 `json:"name"`
	FullyQualifiedName string                 `json:"fullyQualifiedName"`
	Description        string                 `json:"description,omitempty"`
	ServiceType        string                 `json:"serviceType"`
	Connection         map[string]interface{} `json:"connection,omitempty"`
}

func (e *DatabaseService) EntityType() config.EntityType   { return config.TypeDatabaseService }
func (e *DatabaseService) Fqn() string                     { return e.FullyQualifiedName }
func (e *DatabaseService) SchemaFields() map[string]string { return nil }

// Database groups schemas under a database service.
type Database struct {
	ID                 string `json:"id,omitempty"`
	Name               string `json:"name"`
	FullyQualifiedName string `json:"fullyQualifiedName"`
	Description        string `json:"description,omitempty"`

	// Service is the parent database service FQN.
	Service string `json:"service"`
}

func (e *Database) EntityType() config.EntityType   { return config.TypeDatabase }
func (e *Database) Fqn() string                     { return e.FullyQualifiedName }
func (e *Database) SchemaFields() map[string]string { return nil }

// DatabaseSchema groups tables under a database.
type DatabaseSchema struct {
	ID                 string `json:"id,omitempty"`
	Name               string `json:"name"`
	FullyQualifiedName string `json:"fullyQualifiedName"`
	Description        string `json:"description,omitempty"`

	// Database is the parent database FQN.
	Database string `json:"database"`
}

func (e *DatabaseSchema) EntityType() config.EntityType   { return config.TypeDatabaseSchema }
func (e *DatabaseSchema) Fqn() string                     { return e.FullyQualifiedName }
func (e *DatabaseSchema) SchemaFields() map[string]string { return nil }

// Column is one table column.
type Column struct {
	Name        string `json:"name"`
	DataType    string `json:"dataType"`
	DataLength  *int   `json:"dataLength,omitempty"`
	Precision   *int   `json:"precision,omitempty"`
	Scale       *int   `json:"scale,omitempty"`
	Description string `json:"description,omitempty"`
	Constraint  string `json:"constraint,omitempty"`
}

// Table is a table with its column schema. Tables are the only entity
// type tracked for schema evolution.
type Table struct {
	ID                 string `json:"id,omitempty"`
	Name               string `json:"name"`
	FullyQualifiedName string `json:"fullyQualifiedName"`
	Description        string `json:"description,omitempty"`

	// DatabaseSchema is the parent schema FQN.
	DatabaseSchema string `json:"databaseSchema"`

	// TableType is Regular, View, External, or MaterializedView.
	TableType string   `json:"tableType,omitempty"`
	Columns   []Column `json:"columns,omitempty"`
}

func (e *Table) EntityType() config.EntityType { return config.TypeTable }
func (e *Table) Fqn() string                   { return e.FullyQualifiedName }

// SchemaFields returns the column name to data type map used for schema
// comparison.
func (e *Table) SchemaFields() map[string]string {
	if len(e.Columns) == 0 {
		return nil
	}
	fields := make(map[string]string, len(e.Columns))
	for _, col := range e.Columns {
		fields[col.Name] = col.DataType
	}
	return fields
}

// PipelineService is a pipeline platform registration (airflow, dagster, ...).
type PipelineService struct {
	ID                 string                 `json:"id,omitempty"`
	Name               string                 `json:"name"`
	FullyQualifiedName string                 `json:"fullyQualifiedName"`
	Description        string                 `json:"description,omitempty"`
	ServiceType        string                 `json:"serviceType"`
	Connection         map[string]interface{} `json:"connection,omitempty"`
}

func (e *PipelineService) EntityType() config.EntityType   { return config.TypePipelineService }
func (e *PipelineService) Fqn() string                     { return e.FullyQualifiedName }
func (e *PipelineService) SchemaFields() map[string]string { return nil }

// Pipeline is a data pipeline under a pipeline service.
type Pipeline struct {
	ID                 string `json:"id,omitempty"`
	Name               string `json:"name"`
	FullyQualifiedName string `json:"fullyQualifiedName"`
	Description        string `json:"description,omitempty"`

	// Service is the parent pipeline service FQN.
	Service   string `json:"service"`
	SourceURL string `json:"sourceUrl,omitempty"`
}

func (e *Pipeline) EntityType() config.EntityType   { return config.TypePipeline }
func (e *Pipeline) Fqn() string                     { return e.FullyQualifiedName }
func (e *Pipeline) SchemaFields() map[string]string { return nil }

// Task is one step of a pipeline.
type Task struct {
	ID                 string `json:"id,omitempty"`
	Name               string `json:"name"`
	FullyQualifiedName string `json:"fullyQualifiedName"`
	Description        string `json:"description,omitempty"`

	// Pipeline is the parent pipeline FQN.
	Pipeline        string   `json:"pipeline"`
	TaskType        string   `json:"taskType,omitempty"`
	SourceURL       string   `json:"sourceUrl,omitempty"`
	DownstreamTasks []string `json:"downstreamTasks,omitempty"`
}

func (e *Task) EntityType() config.EntityType   { return config.TypeTask }
func (e *Task) Fqn() string                     { return e.FullyQualifiedName }
func (e *Task) SchemaFields() map[string]string { return nil }

// MessagingService is a message broker registration (kafka, pulsar, ...).
type MessagingService struct {
	ID                 string                 `json:"id,omitempty"`
	Name               string                 `json:"name"`
	FullyQualifiedName string                 `json:"fullyQualifiedName"`
	Description        string                 `json:"description,omitempty"`
	ServiceType        string                 `json:"serviceType"`
	Connection         map[string]interface{} `json:"connection,omitempty"`
}

func (e *MessagingService) EntityType() config.EntityType   { return config.TypeMessagingService }
func (e *MessagingService) Fqn() string                     { return e.FullyQualifiedName }
func (e *MessagingService) SchemaFields() map[string]string { return nil }

// Topic is a message stream under a messaging service.
type Topic struct {
	ID                 string `json:"id,omitempty"`
	Name               string `json:"name"`
	FullyQualifiedName string `json:"fullyQualifiedName"`
	Description        string `json:"description,omitempty"`

	// Service is the parent messaging service FQN.
	Service           string `json:"service"`
	Partitions        int    `json:"partitions,omitempty"`
	ReplicationFactor int    `json:"replicationFactor,omitempty"`
	MessageSchema     string `json:"messageSchema,omitempty"`
}

func (e *Topic) EntityType() config.EntityType   { return config.TypeTopic }
func (e *Topic) Fqn() string                     { return e.FullyQualifiedName }
func (e *Topic) SchemaFields() map[string]string { return nil }

// MLModelService is an ML platform registration (mlflow, sagemaker, ...).
type MLModelService struct {
	ID                 string                 `json:"id,omitempty"`
	Name               string                 `json:"name"`
	FullyQualifiedName string                 `json:"fullyQualifiedName"`
	Description        string                 `json:"description,omitempty"`
	ServiceType        string                 `json:"serviceType"`
	Connection         map[string]interface{} `json:"connection,omitempty"`
}

func (e *MLModelService) EntityType() config.EntityType   { return config.TypeMLModelService }
func (e *MLModelService) Fqn() string                     { return e.FullyQualifiedName }
func (e *MLModelService) SchemaFields() map[string]string { return nil }

// MLFeature is one input feature of a model.
type MLFeature struct {
	Name string `json:"name"`

	// DataType is "numerical" or "categorical".
	DataType         string `json:"dataType"`
	Description      string `json:"description,omitempty"`
	FeatureAlgorithm string `json:"featureAlgorithm,omitempty"`
}

// MLHyperParameter is one training hyperparameter of a model.
type MLHyperParameter struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

// MLStore locates a model's storage and serving image.
type MLStore struct {
	Storage         string `json:"storage,omitempty"`
	ImageRepository string `json:"imageRepository,omitempty"`
}

// MLModel is a trained model under an ML model service.
type MLModel struct {
	ID                 string `json:"id,omitempty"`
	Name               string `json:"name"`
	FullyQualifiedName string `json:"fullyQualifiedName"`
	Description        string `json:"description,omitempty"`

	// Service is the parent ML model service FQN.
	Service         string             `json:"service"`
	Algorithm       string             `json:"algorithm"`
	Features        []MLFeature        `json:"mlFeatures,omitempty"`
	HyperParameters []MLHyperParameter `json:"mlHyperParameters,omitempty"`
	Store           *MLStore           `json:"mlStore,omitempty"`
	SourceURL       string             `json:"sourceUrl,omitempty"`
}

func (e *MLModel) EntityType() config.EntityType   { return config.TypeMLModel }
func (e *MLModel) Fqn() string                     { return e.FullyQualifiedName }
func (e *MLModel) SchemaFields() map[string]string { return nil }

// SearchService is a search platform registration (elasticsearch, opensearch, ...).
type SearchService struct {
	ID                 string                 `json:"id,omitempty"`
	Name               string                 `json:"name"`
	FullyQualifiedName string                 `json:"fullyQualifiedName"`
	Description        string                 `json:"description,omitempty"`
	ServiceType        string                 `json:"serviceType"`
	Connection         map[string]interface{} `json:"connection,omitempty"`
}

func (e *SearchService) EntityType() config.EntityType   { return config.TypeSearchService }
func (e *SearchService) Fqn() string                     { return e.FullyQualifiedName }
func (e *SearchService) SchemaFields() map[string]string { return nil }

// SearchField is one indexed field of a search index.
type SearchField struct {
	Name        string `json:"name"`
	DataType    string `json:"dataType"`
	Description string `json:"description,omitempty"`
}

// SearchIndex is an index under a search service.
type SearchIndex struct {
	ID                 string `json:"id,omitempty"`
	Name               string `json:"name"`
	FullyQualifiedName string `json:"fullyQualifiedName"`
	Description        string `json:"description,omitempty"`

	// Service is the parent search service FQN.
	Service string        `json:"service"`
	Fields  []SearchField `json:"fields,omitempty"`
}

func (e *SearchIndex) EntityType() config.EntityType   { return config.TypeSearchIndex }
func (e *SearchIndex) Fqn() string                     { return e.FullyQualifiedName }
func (e *SearchIndex) SchemaFields() map[string]string { return nil }

// TagCategory groups tags.
type TagCategory struct {
	ID                 string `json:"id,omitempty"`
	Name               string `json:"name"`
	FullyQualifiedName string `json:"fullyQualifiedName"`
	DisplayName        string `json:"displayName,omitempty"`
	Description        string `json:"description,omitempty"`
}

func (e *TagCategory) EntityType() config.EntityType   { return config.TypeTagCategory }
func (e *TagCategory) Fqn() string                     { return e.FullyQualifiedName }
func (e *TagCategory) SchemaFields() map[string]string { return nil }

// Tag is a classification label under a tag category.
type Tag struct {
	ID                 string `json:"id,omitempty"`
	Name               string `json:"name"`
	FullyQualifiedName string `json:"fullyQualifiedName"`
	Description        string `json:"description,omitempty"`

	// Category is the parent tag category FQN.
	Category string `json:"category"`
}

func (e *Tag) EntityType() config.EntityType   { return config.TypeTag }
func (e *Tag) Fqn() string                     { return e.FullyQualifiedName }
func (e *Tag) SchemaFields() map[string]string { return nil }

// User is a catalog user account.
type User struct {
	ID                 string   `json:"id,omitempty"`
	Name               string   `json:"name"`
	FullyQualifiedName string   `json:"fullyQualifiedName"`
	Email              string   `json:"email,omitempty"`
	DisplayName        string   `json:"displayName,omitempty"`
	Description        string   `json:"description,omitempty"`
	Teams              []string `json:"teams,omitempty"`
}

func (e *User) EntityType() config.EntityType   { return config.TypeUser }
func (e *User) Fqn() string                     { return e.FullyQualifiedName }
func (e *User) SchemaFields() map[string]string { return nil }

// Team is a group of catalog users.
type Team struct {
	ID                 string   `json:"id,omitempty"`
	Name               string   `json:"name"`
	FullyQualifiedName string   `json:"fullyQualifiedName"`
	DisplayName        string   `json:"displayName,omitempty"`
	Description        string   `json:"description,omitempty"`
	Users              []string `json:"users,omitempty"`
}

func (e *Team) EntityType() config.EntityType   { return config.TypeTeam }
func (e *Team) Fqn() string                     { return e.FullyQualifiedName }
func (e *Team) SchemaFields() map[string]string { return nil }

// Glossary is a collection of business terms.
type Glossary struct {
	ID                 string `json:"id,omitempty"`
	Name               string `json:"name"`
	FullyQualifiedName string `json:"fullyQualifiedName"`
	DisplayName        string `json:"displayName,omitempty"`
	Description        string `json:"description,omitempty"`
}

func (e *Glossary) EntityType() config.EntityType   { return config.TypeGlossary }
func (e *Glossary) Fqn() string                     { return e.FullyQualifiedName }
func (e *Glossary) SchemaFields() map[string]string { return nil }

// GlossaryTerm is a business term under a glossary.
type GlossaryTerm struct {
	ID                 string `json:"id,omitempty"`
	Name               string `json:"name"`
	FullyQualifiedName string `json:"fullyQualifiedName"`
	DisplayName        string `json:"displayName,omitempty"`
	Description        string `json:"description,omitempty"`

	// Glossary is the parent glossary FQN.
	Glossary string   `json:"glossary"`
	Synonyms []string `json:"synonyms,omitempty"`
}

func (e *GlossaryTerm) EntityType() config.EntityType   { return config.TypeGlossaryTerm }
func (e *GlossaryTerm) Fqn() string                     { return e.FullyQualifiedName }
func (e *GlossaryTerm) SchemaFields() map[string]string { return nil }
