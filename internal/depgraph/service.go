package depgraph

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/me/jobcascade/internal/metrics"
	"github.com/me/jobcascade/pkg/model"
)

// ProjectSource supplies the projects the graph is built from.
type ProjectSource interface {
	All() []*model.Project
	Lookup(name string) *model.Project
}

// TriggerExecutor schedules one dependent after an upstream build. It handles
// and reports its own failures so that one dependent cannot stop the others.
type TriggerExecutor interface {
	FireTrigger(ctx context.Context, build *model.Build, dependent *model.Project, listener io.Writer)
}

// Service holds the current graph snapshot and dispatches downstream triggers.
// Readers always see a complete snapshot; rebuilds are serialized.
type Service struct {
	projects ProjectSource
	builder  Builder
	executor TriggerExecutor
	metrics  *metrics.Metrics
	logger   *slog.Logger

	rebuildMu sync.Mutex
	current   atomic.Pointer[Graph]
}

// Option configures a Service.
type Option func(*Service)

// WithBuilder replaces the DefaultBuilder.
func WithBuilder(b Builder) Option {
	return func(s *Service) { s.builder = b }
}

// WithMetrics records rebuilds on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a Service with an empty graph. Call Rebuild to populate it.
func NewService(projects ProjectSource, executor TriggerExecutor, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		projects: projects,
		builder:  DefaultBuilder{},
		executor: executor,
		logger:   logger.With("component", "depgraph"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(emptyGraph)
	return s
}

// Graph returns the current snapshot without recomputing it.
func (s *Service) Graph() *Graph {
	return s.current.Load()
}

// Rebuild recomputes the graph from the current projects. On failure the
// previous snapshot stays in place and the error is returned.
func (s *Service) Rebuild(ctx context.Context) error {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.logger.Debug("Rebuilding dependency graph")
	start := time.Now()
	g, err := s.builder.Build(s.projects.All())
	if err != nil {
		s.metrics.GraphRebuilt(time.Since(start), 0, err)
		s.logger.Error("dependency graph rebuild failed", "error", err)
		return fmt.Errorf("rebuilding dependency graph: %w", err)
	}
	s.current.Store(g)
	s.metrics.GraphRebuilt(time.Since(start), g.Len(), nil)
	s.logger.Info("dependency graph rebuilt", "projects", g.Len(), "duration", time.Since(start))
	return nil
}

// TriggerDependents fires the trigger of every project downstream of build's
// project in the current snapshot. build and listener are required.
func (s *Service) TriggerDependents(ctx context.Context, build *model.Build, listener io.Writer) error {
	if build == nil {
		return fmt.Errorf("build: %w", ErrNilArgument)
	}
	if listener == nil {
		return fmt.Errorf("listener: %w", ErrNilArgument)
	}

	s.logger.Debug("Maybe triggering dependents of build", "build", build.FullDisplayName())
	for _, name := range s.Graph().Downstream(build.ProjectName) {
		dependent := s.projects.Lookup(name)
		if dependent == nil {
			s.logger.Debug("dependent no longer exists", "build", build.FullDisplayName(), "dependent", name)
			continue
		}
		s.executor.FireTrigger(ctx, build, dependent, listener)
	}
	return nil
}
