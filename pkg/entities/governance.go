package entities

import (
	"github.com/openmantle/openmantle/pkg/catalog"
	"github.com/openmantle/openmantle/pkg/config"
	"github.com/openmantle/openmantle/pkg/engine"
)

// TagCategoryHandler ingests tag categories.
type TagCategoryHandler struct{}

func (TagCategoryHandler) Type() config.EntityType       { return config.TypeTagCategory }
func (TagCategoryHandler) SupportsSchemaEvolution() bool { return false }

func (TagCategoryHandler) Validate(entity *config.EntityConfig) error {
	return requireName(entity)
}

func (TagCategoryHandler) Fqn(entity *config.EntityConfig) (string, error) {
	return joinFqn(entity), nil
}

func (TagCategoryHandler) Dependencies(entity *config.EntityConfig) ([]string, error) {
	return nil, nil
}

func (TagCategoryHandler) Build(entity *config.EntityConfig) (engine.Entity, error) {
	return &catalog.TagCategory{
		Name:               entity.Name,
		FullyQualifiedName: joinFqn(entity),
		DisplayName:        entity.StringProperty("display_name"),
		Description:        entity.StringProperty("description"),
	}, nil
}

// TagHandler ingests tags under a tag category.
type TagHandler struct{}

func (TagHandler) Type() config.EntityType       { return config.TypeTag }
func (TagHandler) SupportsSchemaEvolution() bool { return false }

func (TagHandler) Validate(entity *config.EntityConfig) error {
	if err := requireName(entity); err != nil {
		return err
	}
	_, err := requireProperty(entity, "category")
	return err
}

func (TagHandler) Fqn(entity *config.EntityConfig) (string, error) {
	category, err := requireProperty(entity, "category")
	if err != nil {
		return "", err
	}
	return joinFqn(entity, category), nil
}

func (TagHandler) Dependencies(entity *config.EntityConfig) ([]string, error) {
	category, err := requireProperty(entity, "category")
	if err != nil {
		return nil, err
	}
	return []string{category}, nil
}

func (TagHandler) Build(entity *config.EntityConfig) (engine.Entity, error) {
	category, err := requireProperty(entity, "category")
	if err != nil {
		return nil, err
	}
	return &catalog.Tag{
		Name:               entity.Name,
		FullyQualifiedName: joinFqn(entity, category),
		Description:        entity.StringProperty("description"),
		Category:           category,
	}, nil
}

// UserHandler ingests catalog user accounts.
type UserHandler struct{}

func (UserHandler) Type() config.EntityType       { return config.TypeUser }
func (UserHandler) SupportsSchemaEvolution() bool { return false }

func (UserHandler) Validate(entity *config.EntityConfig) error {
	if err := requireName(entity); err != nil {
		return err
	}
	_, err := requireProperty(entity, "email")
	return err
}

func (UserHandler) Fqn(entity *config.EntityConfig) (string, error) {
	return joinFqn(entity), nil
}

func (UserHandler) Dependencies(entity *config.EntityConfig) ([]string, error) {
	return nil, nil
}

func (UserHandler) Build(entity *config.EntityConfig) (engine.Entity, error) {
	email, err := requireProperty(entity, "email")
	if err != nil {
		return nil, err
	}
	return &catalog.User{
		Name:               entity.Name,
		FullyQualifiedName: joinFqn(entity),
		Email:              email,
		DisplayName:        entity.StringProperty("display_name"),
		Description:        entity.StringProperty("description"),
		Teams:              stringListProperty(entity, "teams"),
	}, nil
}

// TeamHandler ingests teams of catalog users.
type TeamHandler struct{}

func (TeamHandler) Type() config.EntityType       { return config.TypeTeam }
func (TeamHandler) SupportsSchemaEvolution() bool { return false }

func (TeamHandler) Validate(entity *config.EntityConfig) error {
	return requireName(entity)
}

func (TeamHandler) Fqn(entity *config.EntityConfig) (string, error) {
	return joinFqn(entity), nil
}

func (TeamHandler) Dependencies(entity *config.EntityConfig) ([]string, error) {
	return nil, nil
}

func (TeamHandler) Build(entity *config.EntityConfig) (engine.Entity, error) {
	return &catalog.Team{
		Name:               entity.Name,
		FullyQualifiedName: joinFqn(entity),
		DisplayName:        entity.StringProperty("display_name"),
		Description:        entity.StringProperty("description"),
		Users:              stringListProperty(entity, "users"),
	}, nil
}

// GlossaryHandler ingests glossaries.
type GlossaryHandler struct{}

func (GlossaryHandler) Type() config.EntityType       { return config.TypeGlossary }
func (GlossaryHandler) SupportsSchemaEvolution() bool { return false }

func (GlossaryHandler) Validate(entity *config.EntityConfig) error {
	return requireName(entity)
}

func (GlossaryHandler) Fqn(entity *config.EntityConfig) (string, error) {
	return joinFqn(entity), nil
}

func (GlossaryHandler) Dependencies(entity *config.EntityConfig) ([]string, error) {
	return nil, nil
}

func (GlossaryHandler) Build(entity *config.EntityConfig) (engine.Entity, error) {
	return &catalog.Glossary{
		Name:               entity.Name,
		FullyQualifiedName: joinFqn(entity),
		DisplayName:        entity.StringProperty("display_name"),
		Description:        entity.StringProperty("description"),
	}, nil
}

// GlossaryTermHandler ingests terms under a glossary.
type GlossaryTermHandler struct{}

func (GlossaryTermHandler) Type() config.EntityType       { return config.TypeGlossaryTerm }
func (GlossaryTermHandler) SupportsSchemaEvolution() bool { return false }

func (GlossaryTermHandler) Validate(entity *config.EntityConfig) error {
	if err := requireName(entity); err != nil {
		return err
	}
	_, err := requireProperty(entity, "glossary")
	return err
}

func (GlossaryTermHandler) Fqn(entity *config.EntityConfig) (string, error) {
	glossary, err := requireProperty(entity, "glossary")
	if err != nil {
		return "", err
	}
	return joinFqn(entity, glossary), nil
}

func (GlossaryTermHandler) Dependencies(entity *config.EntityConfig) ([]string, error) {
	glossary, err := requireProperty(entity, "glossary")
	if err != nil {
		return nil, err
	}
	return []string{glossary}, nil
}

func (GlossaryTermHandler) Build(entity *config.EntityConfig) (engine.Entity, error) {
	glossary, err := requireProperty(entity, "glossary")
	if err != nil {
		return nil, err
	}
	return &catalog.GlossaryTerm{
		Name:               entity.Name,
		FullyQualifiedName: joinFqn(entity, glossary),
		DisplayName:        entity.StringProperty("display_name"),
		Description:        entity.StringProperty("description"),
		Glossary:           glossary,
		Synonyms:           stringListProperty(entity, "synonyms"),
	}, nil
}
