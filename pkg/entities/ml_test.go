package entities

import (
	"testing"

	"github.com/openmantle/openmantle/pkg/catalog"
	"github.com/openmantle/openmantle/pkg/config"
)

func TestMLModelServiceHandler_MlflowRequiresTrackingURI(t *testing.T) {
	err := MLModelServiceHandler{}.Validate(newEntity(config.TypeMLModelService, "mlflow-prod", map[string]interface{}{
		"service_type": "mlflow",
	}))
	assertValidationError(t, err, "Missing required property 'tracking_uri'")
}

func TestMLModelServiceHandler_MlflowConnection(t *testing.T) {
	h := MLModelServiceHandler{}

	built, err := h.Build(newEntity(config.TypeMLModelService, "mlflow-prod", map[string]interface{}{
		"service_type": "mlflow",
		"tracking_uri": "http://mlflow:5000",
	}))
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	connection := built.(*catalog.MLModelService).Connection
	if connection["trackingUri"] != "http://mlflow:5000" {
		t.Errorf("Unexpected trackingUri: %v", connection["trackingUri"])
	}
	if connection["registryUri"] != "http://mlflow:5000" {
		t.Errorf("Expected registryUri to default to the tracking URI, got %v", connection["registryUri"])
	}

	built, err = h.Build(newEntity(config.TypeMLModelService, "mlflow-prod", map[string]interface{}{
		"service_type": "mlflow",
		"tracking_uri": "http://mlflow:5000",
		"registry_uri": "http://registry:5001",
	}))
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	connection = built.(*catalog.MLModelService).Connection
	if connection["registryUri"] != "http://registry:5001" {
		t.Errorf("Expected explicit registryUri, got %v", connection["registryUri"])
	}
}

func TestMLModelServiceHandler_GenericConnection(t *testing.T) {
	built, err := MLModelServiceHandler{}.Build(newEntity(config.TypeMLModelService, "sm", map[string]interface{}{
		"service_type": "sagemaker",
		"connection":   map[string]interface{}{"awsRegion": "eu-west-1"},
	}))
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	connection := built.(*catalog.MLModelService).Connection
	if connection["awsRegion"] != "eu-west-1" {
		t.Errorf("Expected connection passthrough, got %v", connection)
	}
}

func TestMLModelHandler_FqnAndDependencies(t *testing.T) {
	h := MLModelHandler{}
	entity := newEntity(config.TypeMLModel, "churn", map[string]interface{}{
		"service": "mlflow-prod",
	})

	fqn, err := h.Fqn(entity)
	if err != nil {
		t.Fatalf("Fqn returned error: %v", err)
	}
	if fqn != "mlflow-prod.churn" {
		t.Errorf("Expected FQN mlflow-prod.churn, got %q", fqn)
	}

	deps, err := h.Dependencies(entity)
	if err != nil {
		t.Fatalf("Dependencies returned error: %v", err)
	}
	if len(deps) != 1 || deps[0] != "mlflow-prod" {
		t.Errorf("Expected dependencies [mlflow-prod], got %v", deps)
	}
}

func TestMLModelHandler_BuildDefaults(t *testing.T) {
	entity := newEntity(config.TypeMLModel, "churn", map[string]interface{}{
		"service": "mlflow-prod",
		"mlFeatures": []interface{}{
			map[string]interface{}{"name": "age"},
			map[string]interface{}{"name": "tenure", "dataType": "integer"},
			map[string]interface{}{"name": "segment", "dataType": "text"},
			map[string]interface{}{"name": "score", "dataType": "weird"},
		},
		"mlHyperParameters": []interface{}{
			map[string]interface{}{"name": "max_depth"},
			map[string]interface{}{"name": "learning_rate", "value": 0.1},
		},
	})

	built, err := MLModelHandler{}.Build(entity)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	model := built.(*catalog.MLModel)

	if model.Algorithm != "mlmodel" {
		t.Errorf("Expected default algorithm mlmodel, got %q", model.Algorithm)
	}

	wantTypes := []string{"numerical", "numerical", "categorical", "numerical"}
	if len(model.Features) != len(wantTypes) {
		t.Fatalf("Expected %d features, got %d", len(wantTypes), len(model.Features))
	}
	for i, want := range wantTypes {
		if model.Features[i].DataType != want {
			t.Errorf("Feature %d: expected %s, got %s", i, want, model.Features[i].DataType)
		}
	}

	if len(model.HyperParameters) != 2 {
		t.Fatalf("Expected 2 hyperparameters, got %d", len(model.HyperParameters))
	}
	if model.HyperParameters[0].Value != "" {
		t.Errorf("Expected empty default value, got %q", model.HyperParameters[0].Value)
	}
	if model.HyperParameters[1].Value != "0.1" {
		t.Errorf("Expected numeric value rendered as string, got %q", model.HyperParameters[1].Value)
	}
}

func TestMLModelHandler_ValidateFeatureShapes(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]interface{}
		want  string
	}{
		{
			"features not a list",
			map[string]interface{}{"service": "mlflow-prod", "mlFeatures": "age"},
			"'mlFeatures' must be a list",
		},
		{
			"feature missing name",
			map[string]interface{}{
				"service":    "mlflow-prod",
				"mlFeatures": []interface{}{map[string]interface{}{"dataType": "numerical"}},
			},
			"Feature at index 0 missing 'name'",
		},
		{
			"hyperparameter missing name",
			map[string]interface{}{
				"service": "mlflow-prod",
				"mlHyperParameters": []interface{}{
					map[string]interface{}{"name": "max_depth"},
					map[string]interface{}{"value": "10"},
				},
			},
			"Hyperparameter at index 1 missing 'name'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MLModelHandler{}.Validate(newEntity(config.TypeMLModel, "churn", tt.props))
			assertValidationError(t, err, tt.want)
		})
	}
}

func TestMLModelHandler_Store(t *testing.T) {
	built, err := MLModelHandler{}.Build(newEntity(config.TypeMLModel, "churn", map[string]interface{}{
		"service": "mlflow-prod",
		"mlStore": map[string]interface{}{
			"storage":         "s3://models/churn",
			"imageRepository": "registry.internal/churn",
		},
	}))
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	store := built.(*catalog.MLModel).Store
	if store == nil {
		t.Fatal("Expected ML store, got nil")
	}
	if store.Storage != "s3://models/churn" {
		t.Errorf("Unexpected storage: %q", store.Storage)
	}
	if store.ImageRepository != "registry.internal/churn" {
		t.Errorf("Unexpected image repository: %q", store.ImageRepository)
	}

	built, err = MLModelHandler{}.Build(newEntity(config.TypeMLModel, "churn", map[string]interface{}{
		"service": "mlflow-prod",
	}))
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if built.(*catalog.MLModel).Store != nil {
		t.Error("Expected nil store when mlStore is absent")
	}
}
