package entities

import (
	"github.com/openmantle/openmantle/pkg/catalog"
	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/engine"
)

// SearchServiceHandler ingests search platform registrations
// (elasticsearch, opensearch, ...).
type SearchServiceHandler struct{}

func (SearchServiceHandler) Type() config.EntityType       { return config.TypeSearchService }
func (SearchServiceHandler) SupportsSchemaEvolution() bool { return false }

func (SearchServiceHandler) Validate(entity *config.EntityConfig) error {
	if err := requireName(entity); err != nil {
		return err
	}
	_, err := requireProperty(entity, "service_type")
	return err
}

func (SearchServiceHandler) Fqn(entity *config.EntityConfig) (string, error) {
	return joinFqn(entity), nil
}

func (SearchServiceHandler) Dependencies(entity *config.EntityConfig) ([]string, error) {
	return nil, nil
}

func (SearchServiceHandler) Build(entity *config.EntityConfig) (engine.Entity, error) {
	serviceType, err := requireProperty(entity, "service_type")
	if err != nil {
		return nil, err
	}
	return &catalog.SearchService{
		Name:               entity.Name,
		FullyQualifiedName: joinFqn(entity),
		Description:        entity.StringProperty("description"),
		ServiceType:        serviceType,
		Connection:         mapProperty(entity, "connection"),
	}, nil
}

// SearchIndexHandler ingests indexes under a search service.
type SearchIndexHandler struct{}

func (SearchIndexHandler) Type() config.EntityType       { return config.TypeSearchIndex }
func (SearchIndexHandler) SupportsSchemaEvolution() bool { return false }

func (SearchIndexHandler) Validate(entity *config.EntityConfig) error {
	if err := requireName(entity); err != nil {
		return err
	}
	if _, err := requireProperty(entity, "service"); err != nil {
		return err
	}
	fields, err := listProperty(entity, "fields", "Field")
	if err != nil {
		return err
	}
	for idx, field := range fields {
		if _, ok := field["name"]; !ok {
			return validationError(entity, "Field at index %d missing 'name'", idx)
		}
	}
	return nil
}

func (SearchIndexHandler) Fqn(entity *config.EntityConfig) (string, error) {
	service, err := requireProperty(entity, "service")
	if err != nil {
		return "", err
	}
	return joinFqn(entity, service), nil
}

func (SearchIndexHandler) Dependencies(entity *config.EntityConfig) ([]string, error) {
	service, err := requireProperty(entity, "service")
	if err != nil {
		return nil, err
	}
	return []string{service}, nil
}

func (SearchIndexHandler) Build(entity *config.EntityConfig) (engine.Entity, error) {
	service, err := requireProperty(entity, "service")
	if err != nil {
		return nil, err
	}
	fields, err := buildSearchFields(entity)
	if err != nil {
		return nil, err
	}
	return &catalog.SearchIndex{
		Name:               entity.Name,
		FullyQualifiedName: joinFqn(entity, service),
		Description:        entity.StringProperty("description"),
		Service:            service,
		Fields:             fields,
	}, nil
}

func buildSearchFields(entity *config.EntityConfig) ([]catalog.SearchField, error) {
	declared, err := listProperty(entity, "fields", "Field")
	if err != nil {
		return nil, err
	}
	if len(declared) == 0 {
		return nil, nil
	}
	fields := make([]catalog.SearchField, 0, len(declared))
	for _, item := range declared {
		dataType := stringKey(item, "dataType")
		if dataType == "" {
			dataType = "TEXT"
		}
		fields = append(fields, catalog.SearchField{
			Name:        stringKey(item, "name"),
			DataType:    dataType,
			Description: stringKey(item, "description"),
		})
	}
	return fields, nil
}
