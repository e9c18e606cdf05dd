package entities

import (
	"github.com/openmantle/openmantle/pkg/catalog"
	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/engine"
)

// MessagingServiceHandler ingests message broker registrations (kafka,
// pulsar, ...).
type MessagingServiceHandler struct{}

func (MessagingServiceHandler) Type() config.EntityType       { return config.TypeMessagingService }
func (MessagingServiceHandler) SupportsSchemaEvolution() bool { return false }

func (MessagingServiceHandler) Validate(entity *config.EntityConfig) error {
	if err := requireName(entity); err != nil {
		return err
	}
	_, err := requireProperty(entity, "service_type")
	return err
}

func (MessagingServiceHandler) Fqn(entity *config.EntityConfig) (string, error) {
	return joinFqn(entity), nil
}

func (MessagingServiceHandler) Dependencies(entity *config.EntityConfig) ([]string, error) {
	return nil, nil
}

func (MessagingServiceHandler) Build(entity *config.EntityConfig) (engine.Entity, error) {
	serviceType, err := requireProperty(entity, "service_type")
	if err != nil {
		return nil, err
	}
	return &catalog.MessagingService{
		Name:               entity.Name,
		FullyQualifiedName: joinFqn(entity),
		Description:        entity.StringProperty("description"),
		ServiceType:        serviceType,
		Connection:         mapProperty(entity, "connection"),
	}, nil
}

// TopicHandler ingests message streams under a messaging service.
type TopicHandler struct{}

func (TopicHandler) Type() config.EntityType       { return config.TypeTopic }
func (TopicHandler) SupportsSchemaEvolution() bool { return false }

func (TopicHandler) Validate(entity *config.EntityConfig) error {
	if err := requireName(entity); err != nil {
		return err
	}
	_, err := requireProperty(entity, "service")
	return err
}

func (TopicHandler) Fqn(entity *config.EntityConfig) (string, error) {
	service, err := requireProperty(entity, "service")
	if err != nil {
		return "", err
	}
	return joinFqn(entity, service), nil
}

func (TopicHandler) Dependencies(entity *config.EntityConfig) ([]string, error) {
	service, err := requireProperty(entity, "service")
	if err != nil {
		return nil, err
	}
	return []string{service}, nil
}

func (TopicHandler) Build(entity *config.EntityConfig) (engine.Entity, error) {
	service, err := requireProperty(entity, "service")
	if err != nil {
		return nil, err
	}
	return &catalog.Topic{
		Name:               entity.Name,
		FullyQualifiedName: joinFqn(entity, service),
		Description:        entity.StringProperty("description"),
		Service:            service,
		Partitions:         intProperty(entity, "partitions", 1),
		ReplicationFactor:  intProperty(entity, "replication_factor", 0),
		MessageSchema:      entity.StringProperty("message_schema"),
	}, nil
}
