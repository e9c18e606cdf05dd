package entities

import (
	"github.com/openmantle/openmantle/pkg/catalog"
	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/engine"
)

// PipelineServiceHandler ingests pipeline platform registrations
// (airflow, dagster, ...).
type PipelineServiceHandler struct{}

func (PipelineServiceHandler) Type() config.EntityType       { return config.TypePipelineService }
func (PipelineServiceHandler) SupportsSchemaEvolution() bool { return false }

func (PipelineServiceHandler) Validate(entity *config.EntityConfig) error {
	if err := requireName(entity); err != nil {
		return err
	}
	_, err := requireProperty(entity, "service_type")
	return err
}

func (PipelineServiceHandler) Fqn(entity *config.EntityConfig) (string, error) {
	return joinFqn(entity), nil
}

func (PipelineServiceHandler) Dependencies(entity *config.EntityConfig) ([]string, error) {
	return nil, nil
}

func (PipelineServiceHandler) Build(entity *config.EntityConfig) (engine.Entity, error) {
	serviceType, err := requireProperty(entity, "service_type")
	if err != nil {
		return nil, err
	}
	return &catalog.PipelineService{
		Name:               entity.Name,
		FullyQualifiedName: joinFqn(entity),
		Description:        entity.StringProperty("description"),
		ServiceType:        serviceType,
		Connection:         mapProperty(entity, "connection"),
	}, nil
}

// PipelineHandler ingests pipelines under a pipeline service.
type PipelineHandler struct{}

func (PipelineHandler) Type() config.EntityType       { return config.TypePipeline }
func (PipelineHandler) SupportsSchemaEvolution() bool { return false }

func (PipelineHandler) Validate(entity *config.EntityConfig) error {
	if err := requireName(entity); err != nil {
		return err
	}
	_, err := requireProperty(entity, "service")
	return err
}

func (PipelineHandler) Fqn(entity *config.EntityConfig) (string, error) {
	service, err := requireProperty(entity, "service")
	if err != nil {
		return "", err
	}
	return joinFqn(entity, service), nil
}

func (PipelineHandler) Dependencies(entity *config.EntityConfig) ([]string, error) {
	service, err := requireProperty(entity, "service")
	if err != nil {
		return nil, err
	}
	return []string{service}, nil
}

func (PipelineHandler) Build(entity *config.EntityConfig) (engine.Entity, error) {
	service, err := requireProperty(entity, "service")
	if err != nil {
		return nil, err
	}
	return &catalog.Pipeline{
		Name:               entity.Name,
		FullyQualifiedName: joinFqn(entity, service),
		Description:        entity.StringProperty("description"),
		Service:            service,
		SourceURL:          entity.StringProperty("sourceUrl"),
	}, nil
}

// TaskHandler ingests tasks under a pipeline.
type TaskHandler struct{}

func (TaskHandler) Type() config.EntityType       { return config.TypeTask }
func (TaskHandler) SupportsSchemaEvolution() bool { return false }

func (TaskHandler) Validate(entity *config.EntityConfig) error {
	if err := requireName(entity); err != nil {
		return err
	}
	if _, err := requireProperty(entity, "service"); err != nil {
		return err
	}
	_, err := requireProperty(entity, "pipeline")
	return err
}

func (TaskHandler) Fqn(entity *config.EntityConfig) (string, error) {
	pipelineFqn, err := taskParentFqn(entity)
	if err != nil {
		return "", err
	}
	return joinFqn(entity, pipelineFqn), nil
}

func (TaskHandler) Dependencies(entity *config.EntityConfig) ([]string, error) {
	pipelineFqn, err := taskParentFqn(entity)
	if err != nil {
		return nil, err
	}
	return []string{pipelineFqn}, nil
}

func (TaskHandler) Build(entity *config.EntityConfig) (engine.Entity, error) {
	pipelineFqn, err := taskParentFqn(entity)
	if err != nil {
		return nil, err
	}
	return &catalog.Task{
		Name:               entity.Name,
		FullyQualifiedName: joinFqn(entity, pipelineFqn),
		Description:        entity.StringProperty("description"),
		Pipeline:           pipelineFqn,
		TaskType:           entity.StringProperty("task_type"),
		SourceURL:          entity.StringProperty("sourceUrl"),
		DownstreamTasks:    stringListProperty(entity, "downstream_tasks"),
	}, nil
}

func taskParentFqn(entity *config.EntityConfig) (string, error) {
	service, err := requireProperty(entity, "service")
	if err != nil {
		return "", err
	}
	pipeline, err := requireProperty(entity, "pipeline")
	if err != nil {
		return "", err
	}
	return service + "." + pipeline, nil
}
