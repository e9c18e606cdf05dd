package entities

import (
	"fmt"
	"sort"

	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/engine"
)

// Registry resolves entity types to their handlers. Handlers are
// stateless; one instance per type is held for the life of the
// registry.
type Registry struct {
	handlers map[config.EntityType]engine.EntityHandler
}

// NewRegistry returns a registry with every built-in handler
// registered.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[config.EntityType]engine.EntityHandler)}
	for _, handler := range []engine.EntityHandler{
		DatabaseServiceHandler{},
		DatabaseHandler{},
		DatabaseSchemaHandler{},
		TableHandler{},
		PipelineServiceHandler{},
		PipelineHandler{},
		TaskHandler{},
		MessagingServiceHandler{},
		TopicHandler{},
		MLModelServiceHandler{},
		MLModelHandler{},
		SearchServiceHandler{},
		SearchIndexHandler{},
		TagCategoryHandler{},
		TagHandler{},
		UserHandler{},
		TeamHandler{},
		GlossaryHandler{},
		GlossaryTermHandler{},
	} {
		r.Register(handler)
	}
	return r
}

// Register adds or replaces the handler for its entity type.
func (r *Registry) Register(handler engine.EntityHandler) {
	r.handlers[handler.Type()] = handler
}

// Handler returns the handler for an entity type.
func (r *Registry) Handler(entityType config.EntityType) (engine.EntityHandler, error) {
	handler, ok := r.handlers[entityType]
	if !ok {
		return nil, engine.NewConfigurationError(
			fmt.Sprintf("no handler registered for entity type: %s", entityType), nil)
	}
	return handler, nil
}

// Types lists the registered entity types in stable order.
func (r *Registry) Types() []config.EntityType {
	types := make([]config.EntityType, 0, len(r.handlers))
	for entityType := range r.handlers {
		types = append(types, entityType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
