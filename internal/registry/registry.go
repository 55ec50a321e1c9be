// Package registry holds the live set of projects keyed by name. Template
// references and dependency edges are resolved through it.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/me/jobcascade/pkg/model"
)

// Loader supplies the persisted projects.
type Loader interface {
	AllProjects(ctx context.Context) ([]*model.Project, error)
}

// Registry maps project names to projects. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	projects map[string]*model.Project
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{projects: make(map[string]*model.Project)}
}

// Load replaces the registry contents with the projects returned by l.
func (r *Registry) Load(ctx context.Context, l Loader) error {
	projects, err := l.AllProjects(ctx)
	if err != nil {
		return fmt.Errorf("load projects: %w", err)
	}
	m := make(map[string]*model.Project, len(projects))
	for _, p := range projects {
		m[p.Name()] = p
	}
	r.mu.Lock()
	r.projects = m
	r.mu.Unlock()
	return nil
}

// Lookup returns the project with the given name, or nil.
func (r *Registry) Lookup(name string) *model.Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.projects[name]
}

// Put adds p, replacing any project with the same name.
func (r *Registry) Put(p *model.Project) {
	r.mu.Lock()
	r.projects[p.Name()] = p
	r.mu.Unlock()
}

// Add adds p unless the name is taken. It reports whether p was added.
func (r *Registry) Add(p *model.Project) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[p.Name()]; ok {
		return false
	}
	r.projects[p.Name()] = p
	return true
}

// Remove drops the named project. Projects that use it as a template are left
// alone; their template lookup misses from then on.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[name]; !ok {
		return false
	}
	delete(r.projects, name)
	return true
}

// All returns every project sorted by name.
func (r *Registry) All() []*model.Project {
	r.mu.RLock()
	out := make([]*model.Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Dependents returns the projects whose template is name, sorted by name.
func (r *Registry) Dependents(name string) []*model.Project {
	var out []*model.Project
	for _, p := range r.All() {
		if p.TemplateName() == name {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of registered projects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.projects)
}
