// Package lifecycle seeds creation metadata and creator grants on projects at
// the moment they become usable.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/me/jobcascade/internal/metrics"
	"github.com/me/jobcascade/pkg/model"
)

// UserSource resolves the acting identity. It returns nil for anonymous callers.
type UserSource interface {
	CurrentUser(ctx context.Context) *model.Identity
}

// AuthorizationSource reports the active authorization strategy.
type AuthorizationSource interface {
	ActiveStrategy(ctx context.Context) model.AuthorizationStrategy
}

// NodeSource lists the build agents known to the service. An empty list does
// not affect initialization.
type NodeSource interface {
	Nodes(ctx context.Context) []string
}

// UserFunc adapts a function to UserSource.
type UserFunc func(ctx context.Context) *model.Identity

func (f UserFunc) CurrentUser(ctx context.Context) *model.Identity { return f(ctx) }

// Initializer runs the one-shot setup for new and copied projects.
type Initializer struct {
	users   UserSource
	authz   AuthorizationSource
	nodes   NodeSource
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures an Initializer.
type Option func(*Initializer)

// WithNodes sets the agent source consulted during initialization.
func WithNodes(n NodeSource) Option {
	return func(i *Initializer) { i.nodes = n }
}

// WithMetrics records each initialization on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Initializer) { i.metrics = m }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(i *Initializer) { i.now = now }
}

// New creates an Initializer. users and authz may be nil; a nil UserSource makes
// every caller anonymous and a nil AuthorizationSource never grants.
func New(users UserSource, authz AuthorizationSource, logger *slog.Logger, opts ...Option) *Initializer {
	i := &Initializer{
		users:  users,
		authz:  authz,
		logger: logger.With("component", "lifecycle"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// OnCreatedFromScratch initializes a project created without a source.
func (i *Initializer) OnCreatedFromScratch(ctx context.Context, p *model.Project) {
	granted := i.initialize(ctx, p)
	i.metrics.ProjectInitialized("scratch", granted)
}

// OnCopiedFrom initializes a project copied from src. Only metadata and the
// creator grant are seeded here; ordinary fields are copied by the caller.
func (i *Initializer) OnCopiedFrom(ctx context.Context, p, src *model.Project) {
	granted := i.initialize(ctx, p)
	p.SetNextBuildNumber(1)
	p.SetHoldOffBuildUntilSave(true)

	from := ""
	if src != nil {
		from = src.Name()
	}
	i.logger.Debug("project copied", "project", p.Name(), "source", from)
	i.metrics.ProjectInitialized("copy", granted)
}

// initialize stamps the creation time and creator and attaches the creator
// grant when a project-scoped strategy is active. It reports whether a grant
// was attached.
func (i *Initializer) initialize(ctx context.Context, p *model.Project) bool {
	if i.nodes != nil {
		i.logger.Debug("initializing project", "project", p.Name(), "nodes", len(i.nodes.Nodes(ctx)))
	}

	var user *model.Identity
	if i.users != nil {
		user = i.users.CurrentUser(ctx)
	}
	if user.IsAnonymous() {
		p.StampCreation(i.now(), "")
		return false
	}
	p.StampCreation(i.now(), user.ID)

	if i.authz == nil || !i.authz.ActiveStrategy(ctx).IsProjectScoped() {
		return false
	}
	p.PutProperty(model.NewAuthorizationMatrixProperty(user.ID, model.CreatorPermissions))
	i.logger.Info("granted creator permissions", "project", p.Name(), "user", user.ID)
	return true
}
