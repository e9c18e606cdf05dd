package engine

import (
	"fmt"
	"sort"

	"github.com/openmantle/openmantle/pkg/config"
)

// DependencyRules maps each entity type to the parent types that must be
// processed before it. Service types and the standalone governance types
// have no parents.
var DependencyRules = map[config.EntityType][]config.EntityType{
	config.TypeDatabaseService: {},
	config.TypeDatabase:        {config.TypeDatabaseService},
	config.TypeDatabaseSchema:  {config.TypeDatabase},
	config.TypeTable:           {config.TypeDatabaseSchema},

	config.TypePipelineService: {},
	config.TypePipeline:        {config.TypePipelineService},
	config.TypeTask:            {config.TypePipeline},

	config.TypeMessagingService: {},
	config.TypeTopic:            {config.TypeMessagingService},

	config.TypeMLModelService: {},
	config.TypeMLModel:        {config.TypeMLModelService},

	config.TypeSearchService: {},
	config.TypeSearchIndex:   {config.TypeSearchService},

	config.TypeTagCategory:  {},
	config.TypeTag:          {config.TypeTagCategory},
	config.TypeUser:         {},
	config.TypeTeam:         {},
	config.TypeGlossary:     {},
	config.TypeGlossaryTerm: {config.TypeGlossary},
}

// parentPropertyKeys maps a parent type to the property key a child
// declaration uses to reference it.
var parentPropertyKeys = map[config.EntityType]string{
	config.TypeDatabaseService:  "service",
	config.TypeDatabase:         "database",
	config.TypeDatabaseSchema:   "database_schema",
	config.TypePipelineService:  "service",
	config.TypePipeline:         "pipeline",
	config.TypeMessagingService: "service",
	config.TypeMLModelService:   "service",
	config.TypeSearchService:    "service",
	config.TypeTagCategory:      "category",
	config.TypeGlossary:         "glossary",
}

// DependencyResolver orders entity declarations so parents are processed
// before children.
type DependencyResolver struct {
	byID  map[string]*config.EntityConfig
	order []string
}

// NewDependencyResolver indexes the declarations by identifier. Insertion
// order is preserved so independent entities keep their declared order in
// the resolved output. When two declarations share an identifier the
// later one wins.
func NewDependencyResolver(entities []config.EntityConfig) *DependencyResolver {
	r := &DependencyResolver{
		byID: make(map[string]*config.EntityConfig, len(entities)),
	}
	for i := range entities {
		id := entities[i].Identifier()
		if _, seen := r.byID[id]; !seen {
			r.order = append(r.order, id)
		}
		r.byID[id] = &entities[i]
	}
	return r
}

// Resolve returns the declarations in dependency order using Kahn's
// algorithm. Parent references that do not resolve to a declaration in
// the batch are tolerated here; they may exist in the catalog already,
// and ValidateDependencies reports the ones that matter before a run.
func (r *DependencyResolver) Resolve() ([]config.EntityConfig, error) {
	children := make(map[string][]string)
	inDegree := make(map[string]int, len(r.order))
	for _, id := range r.order {
		inDegree[id] = 0
	}

	for _, id := range r.order {
		entity := r.byID[id]
		for _, parentType := range DependencyRules[entity.Type] {
			ref := parentReference(entity, parentType)
			if ref == "" {
				continue
			}
			parentID := r.findParent(ref, parentType)
			if parentID == "" {
				continue
			}
			children[parentID] = append(children[parentID], id)
			inDegree[id]++
		}
	}

	queue := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	ordered := make([]config.EntityConfig, 0, len(r.order))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		ordered = append(ordered, *r.byID[id])

		for _, child := range children[id] {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	if len(ordered) != len(r.order) {
		remaining := make([]string, 0, len(r.order)-len(ordered))
		for _, id := range r.order {
			if inDegree[id] > 0 {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return nil, NewCircularDependencyError(remaining)
	}

	return ordered, nil
}

// ValidateDependencies checks that every declaration's required parents
// resolve within the batch, without ordering anything. It returns one
// message per problem, in declaration order.
func (r *DependencyResolver) ValidateDependencies() []string {
	var problems []string
	for _, id := range r.order {
		entity := r.byID[id]
		for _, parentType := range DependencyRules[entity.Type] {
			ref := parentReference(entity, parentType)
			if ref == "" {
				problems = append(problems, fmt.Sprintf(
					"Entity %s is missing required parent of type %s", id, parentType))
				continue
			}
			if r.findParent(ref, parentType) == "" {
				problems = append(problems, fmt.Sprintf(
					"Entity %s references unknown parent '%s' of type %s", id, ref, parentType))
			}
		}
	}
	return problems
}

// findParent resolves a parent reference to a batch identifier. The
// reference may be a full identifier, a bare name, or an FQN.
func (r *DependencyResolver) findParent(ref string, parentType config.EntityType) string {
	if _, ok := r.byID[ref]; ok {
		return ref
	}
	typed := fmt.Sprintf("%s:%s", parentType, ref)
	if _, ok := r.byID[typed]; ok {
		return typed
	}
	for _, id := range r.order {
		entity := r.byID[id]
		if entity.Type != parentType {
			continue
		}
		if entity.Name == ref || entity.Fqn == ref {
			return id
		}
	}
	return ""
}

// parentReference extracts the reference to a parent of the given type
// from the child declaration's properties.
func parentReference(entity *config.EntityConfig, parentType config.EntityType) string {
	key, ok := parentPropertyKeys[parentType]
	if !ok {
		return ""
	}
	return entity.StringProperty(key)
}
