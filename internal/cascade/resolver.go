// Package cascade computes effective project configuration by walking the
// template chain and falling back to global defaults.
package cascade

import (
	"log/slog"
	"strings"

	"github.com/me/jobcascade/pkg/model"
)

// TemplateLookup resolves a template name to its project. It returns nil when
// no project has that name.
type TemplateLookup interface {
	Lookup(name string) *model.Project
}

// Defaults supplies the process-wide fallback for cascaded fields that have one.
type Defaults interface {
	QuietPeriod() int
	SCMCheckoutRetryCount() int
}

// Resolver computes effective values and applies the auto-re-inherit rule on
// writes. It holds no per-project state and is safe for concurrent use; callers
// must serialize writes to the same project and its template.
type Resolver struct {
	templates TemplateLookup
	defaults  Defaults
	logger    *slog.Logger
}

// New creates a Resolver.
func New(templates TemplateLookup, defaults Defaults, logger *slog.Logger) *Resolver {
	return &Resolver{
		templates: templates,
		defaults:  defaults,
		logger:    logger.With("component", "cascade"),
	}
}

// Template returns the project's template, or nil when it has none or the
// named template does not exist.
func (r *Resolver) Template(p *model.Project) *model.Project {
	name := p.TemplateName()
	if name == "" || r.templates == nil {
		return nil
	}
	t := r.templates.Lookup(name)
	if t == nil {
		r.logger.Debug("template not found", "project", p.Name(), "template", name)
	}
	return t
}

// field describes how one cascaded field is read.
type field[T any] struct {
	name string
	// own returns the project's override and whether it counts as set.
	own func(p *model.Project) (T, bool)
	// fallback returns the global default, if the field has one.
	fallback func(d Defaults) (T, bool)
}

// resolve walks p and its templates until a project with the field set is
// found. A cycle in the chain stops the walk and yields the global default.
func resolve[T any](r *Resolver, p *model.Project, f field[T]) (T, bool) {
	seen := make(map[string]bool)
	var chain []string
	for cur := p; cur != nil; cur = r.Template(cur) {
		if seen[cur.Name()] {
			r.logger.Warn("template cycle detected, using global default",
				"field", f.name, "project", p.Name(), "chain", strings.Join(append(chain, cur.Name()), " -> "))
			break
		}
		seen[cur.Name()] = true
		chain = append(chain, cur.Name())

		if v, ok := f.own(cur); ok {
			return v, true
		}
	}
	if f.fallback == nil || r.defaults == nil {
		var zero T
		return zero, false
	}
	return f.fallback(r.defaults)
}

// inherits reports whether p has a template whose effective value for f
// satisfies same. It is the comparison half of the auto-re-inherit rule.
func inherits[T any](r *Resolver, p *model.Project, f field[T], same func(T) bool) bool {
	t := r.Template(p)
	if t == nil {
		return false
	}
	v, ok := resolve(r, t, f)
	return ok && same(v)
}
