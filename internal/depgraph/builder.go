package depgraph

import "github.com/me/jobcascade/pkg/model"

// Builder computes a dependency graph from the full set of projects.
type Builder interface {
	Build(projects []*model.Project) (*Graph, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(projects []*model.Project) (*Graph, error)

func (f BuilderFunc) Build(projects []*model.Project) (*Graph, error) { return f(projects) }

// DefaultBuilder derives edges from each project's build trigger property.
type DefaultBuilder struct{}

func (DefaultBuilder) Build(projects []*model.Project) (*Graph, error) {
	nodes := make([]string, 0, len(projects))
	edges := make(map[string][]string)
	for _, p := range projects {
		nodes = append(nodes, p.Name())
		trigger, ok := p.Property(model.PropertyBuildTrigger).(*model.BuildTriggerProperty)
		if !ok || len(trigger.Downstream) == 0 {
			continue
		}
		edges[p.Name()] = append([]string(nil), trigger.Downstream...)
	}
	return NewGraph(nodes, edges)
}
