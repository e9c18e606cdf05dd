package entities

import (
	"strings"

	"github.com/openmantle/openmantle/pkg/catalog"
	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/engine"
)

// featureTypes maps accepted feature type spellings to the two
// canonical labels. Unknown spellings default to numerical.
var featureTypes = map[string]string{
	"numerical":   "numerical",
	"numeric":     "numerical",
	"number":      "numerical",
	"integer":     "numerical",
	"float":       "numerical",
	"categorical": "categorical",
	"string":      "categorical",
	"text":        "categorical",
	"category":    "categorical",
}

func featureType(raw string) string {
	if canonical, ok := featureTypes[strings.ToLower(raw)]; ok {
		return canonical
	}
	return "numerical"
}

// MLModelServiceHandler ingests ML platform registrations. Mlflow
// services require a tracking URI; the registry URI falls back to it.
type MLModelServiceHandler struct{}

func (MLModelServiceHandler) Type() config.EntityType       { return config.TypeMLModelService }
func (MLModelServiceHandler) SupportsSchemaEvolution() bool { return false }

func (MLModelServiceHandler) Validate(entity *config.EntityConfig) error {
	if err := requireName(entity); err != nil {
		return err
	}
	serviceType, err := requireProperty(entity, "service_type")
	if err != nil {
		return err
	}
	if strings.EqualFold(serviceType, "mlflow") {
		if _, err := requireProperty(entity, "tracking_uri"); err != nil {
			return err
		}
	}
	return nil
}

func (MLModelServiceHandler) Fqn(entity *config.EntityConfig) (string, error) {
	return joinFqn(entity), nil
}

func (MLModelServiceHandler) Dependencies(entity *config.EntityConfig) ([]string, error) {
	return nil, nil
}

func (MLModelServiceHandler) Build(entity *config.EntityConfig) (engine.Entity, error) {
	serviceType, err := requireProperty(entity, "service_type")
	if err != nil {
		return nil, err
	}
	connection, err := mlConnection(entity, serviceType)
	if err != nil {
		return nil, err
	}
	return &catalog.MLModelService{
		Name:               entity.Name,
		FullyQualifiedName: joinFqn(entity),
		Description:        entity.StringProperty("description"),
		ServiceType:        serviceType,
		Connection:         connection,
	}, nil
}

func mlConnection(entity *config.EntityConfig, serviceType string) (map[string]interface{}, error) {
	if !strings.EqualFold(serviceType, "mlflow") {
		return mapProperty(entity, "connection"), nil
	}
	trackingURI, err := requireProperty(entity, "tracking_uri")
	if err != nil {
		return nil, err
	}
	registryURI := entity.StringProperty("registry_uri")
	if registryURI == "" {
		registryURI = trackingURI
	}
	return map[string]interface{}{
		"trackingUri": trackingURI,
		"registryUri": registryURI,
	}, nil
}

// MLModelHandler ingests trained models under an ML model service.
type MLModelHandler struct{}

func (MLModelHandler) Type() config.EntityType       { return config.TypeMLModel }
func (MLModelHandler) SupportsSchemaEvolution() bool { return false }

func (MLModelHandler) Validate(entity *config.EntityConfig) error {
	if err := requireName(entity); err != nil {
		return err
	}
	if _, err := requireProperty(entity, "service"); err != nil {
		return err
	}
	features, err := listProperty(entity, "mlFeatures", "Feature")
	if err != nil {
		return err
	}
	for idx, feature := range features {
		if _, ok := feature["name"]; !ok {
			return validationError(entity, "Feature at index %d missing 'name'", idx)
		}
	}
	params, err := listProperty(entity, "mlHyperParameters", "Hyperparameter")
	if err != nil {
		return err
	}
	for idx, param := range params {
		if _, ok := param["name"]; !ok {
			return validationError(entity, "Hyperparameter at index %d missing 'name'", idx)
		}
	}
	return nil
}

func (MLModelHandler) Fqn(entity *config.EntityConfig) (string, error) {
	service, err := requireProperty(entity, "service")
	if err != nil {
		return "", err
	}
	return joinFqn(entity, service), nil
}

func (MLModelHandler) Dependencies(entity *config.EntityConfig) ([]string, error) {
	service, err := requireProperty(entity, "service")
	if err != nil {
		return nil, err
	}
	return []string{service}, nil
}

func (MLModelHandler) Build(entity *config.EntityConfig) (engine.Entity, error) {
	service, err := requireProperty(entity, "service")
	if err != nil {
		return nil, err
	}
	features, err := buildFeatures(entity)
	if err != nil {
		return nil, err
	}
	params, err := buildHyperParameters(entity)
	if err != nil {
		return nil, err
	}
	algorithm := entity.StringProperty("algorithm")
	if algorithm == "" {
		algorithm = "mlmodel"
	}
	return &catalog.MLModel{
		Name:               entity.Name,
		FullyQualifiedName: joinFqn(entity, service),
		Description:        entity.StringProperty("description"),
		Service:            service,
		Algorithm:          algorithm,
		Features:           features,
		HyperParameters:    params,
		Store:              buildStore(entity),
		SourceURL:          entity.StringProperty("sourceUrl"),
	}, nil
}

func buildFeatures(entity *config.EntityConfig) ([]catalog.MLFeature, error) {
	declared, err := listProperty(entity, "mlFeatures", "Feature")
	if err != nil {
		return nil, err
	}
	if len(declared) == 0 {
		return nil, nil
	}
	features := make([]catalog.MLFeature, 0, len(declared))
	for _, item := range declared {
		raw := stringKey(item, "dataType")
		if raw == "" {
			raw = "numerical"
		}
		features = append(features, catalog.MLFeature{
			Name:             stringKey(item, "name"),
			DataType:         featureType(raw),
			Description:      stringKey(item, "description"),
			FeatureAlgorithm: stringKey(item, "featureAlgorithm"),
		})
	}
	return features, nil
}

func buildHyperParameters(entity *config.EntityConfig) ([]catalog.MLHyperParameter, error) {
	declared, err := listProperty(entity, "mlHyperParameters", "Hyperparameter")
	if err != nil {
		return nil, err
	}
	if len(declared) == 0 {
		return nil, nil
	}
	params := make([]catalog.MLHyperParameter, 0, len(declared))
	for _, item := range declared {
		params = append(params, catalog.MLHyperParameter{
			Name:        stringKey(item, "name"),
			Value:       stringifyKey(item, "value"),
			Description: stringKey(item, "description"),
		})
	}
	return params, nil
}

func buildStore(entity *config.EntityConfig) *catalog.MLStore {
	store := mapProperty(entity, "mlStore")
	if store == nil {
		return nil
	}
	return &catalog.MLStore{
		Storage:         stringKey(store, "storage"),
		ImageRepository: stringKey(store, "imageRepository"),
	}
}
