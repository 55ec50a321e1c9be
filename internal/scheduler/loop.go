package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/me/jobcascade/internal/depgraph"
	"github.com/me/jobcascade/internal/metrics"
	"github.com/me/jobcascade/pkg/model"
)

// Config holds scheduler configuration.
type Config struct {
	PollInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{PollInterval: 2 * time.Second}
}

// Queue is the part of the store the loop reads and drains.
type Queue interface {
	ListQueue(ctx context.Context) ([]*model.QueueItem, error)
	ReadyQueue(ctx context.Context, now time.Time) ([]*model.QueueItem, error)
	Dequeue(ctx context.Context, id string) (bool, error)
}

// ProjectLookup finds a project by name, returning nil when it does not exist.
type ProjectLookup interface {
	Lookup(name string) *model.Project
}

// BlockingFlags reports the effective blocking settings of a project.
type BlockingFlags interface {
	BlockBuildWhenUpstreamBuilding(p *model.Project) bool
	BlockBuildWhenDownstreamBuilding(p *model.Project) bool
}

// GraphSource returns the current dependency graph snapshot.
type GraphSource interface {
	Graph() *depgraph.Graph
}

// Option configures a Loop.
type Option func(*Loop)

// WithRunner replaces the default LogRunner.
func WithRunner(r Runner) Option {
	return func(l *Loop) { l.runner = r }
}

// WithMetrics records dispatch outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// WithClock overrides the time used to decide which items are ready.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// Loop implements the Scheduler interface with a polling dispatch loop.
type Loop struct {
	queue    Queue
	projects ProjectLookup
	flags    BlockingFlags
	graph    GraphSource
	runner   Runner
	metrics  *metrics.Metrics
	now      func() time.Time
	config   Config
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewLoop creates a new scheduler loop.
func NewLoop(q Queue, projects ProjectLookup, flags BlockingFlags, graph GraphSource, cfg Config, logger *slog.Logger, opts ...Option) *Loop {
	l := &Loop{
		queue:    q,
		projects: projects,
		flags:    flags,
		graph:    graph,
		now:      time.Now,
		config:   cfg,
		logger:   logger.With("component", "scheduler"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.runner == nil {
		l.runner = LogRunner{Logger: l.logger}
	}
	return l
}

// Start begins the dispatch loop. Blocks until ctx is cancelled or Stop is called.
func (l *Loop) Start(ctx context.Context) error {
	l.logger.Info("scheduler started", "poll_interval", l.config.PollInterval)
	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("scheduler stopping (context cancelled)")
			close(l.doneCh)
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("scheduler stopping (stop called)")
			close(l.doneCh)
			return nil
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				l.logger.Error("tick error", "error", err)
			}
		}
	}
}

// Stop gracefully shuts down the scheduler and waits for the current tick to finish.
func (l *Loop) Stop() error {
	close(l.stopCh)
	<-l.doneCh
	return nil
}

// Tick runs a single dispatch iteration. Ready items of deleted or disabled
// projects are dropped. Items whose project blocks on a queued upstream or
// downstream project stay queued. Everything else is handed to the runner
// and removed from the queue once the runner accepts it.
func (l *Loop) Tick(ctx context.Context) error {
	ready, err := l.queue.ReadyQueue(ctx, l.now())
	if err != nil {
		return fmt.Errorf("list ready items: %w", err)
	}
	if len(ready) == 0 {
		return nil
	}

	all, err := l.queue.ListQueue(ctx)
	if err != nil {
		return fmt.Errorf("list queue: %w", err)
	}
	pending := make(map[string]bool, len(all))
	for _, item := range all {
		pending[item.ProjectName] = true
	}

	g := l.graph.Graph()
	started := 0
	for _, item := range ready {
		p := l.projects.Lookup(item.ProjectName)
		switch {
		case p == nil:
			l.drop(ctx, item, "project no longer exists")
			delete(pending, item.ProjectName)
			continue
		case p.Disabled():
			l.drop(ctx, item, "project is disabled")
			delete(pending, item.ProjectName)
			continue
		}

		if blocker, dir := l.blockedBy(g, p, pending); blocker != "" {
			l.logger.Debug("build blocked", "project", p.Name(), "by", blocker, "direction", dir)
			l.metrics.QueueDispatched(metrics.DispatchBlocked)
			continue
		}

		if err := l.runner.Run(ctx, item, p); err != nil {
			l.logger.Error("start build", "project", p.Name(), "queue_id", item.ID, "error", err)
			l.metrics.QueueDispatched(metrics.DispatchFailed)
			continue
		}
		if _, err := l.queue.Dequeue(ctx, item.ID); err != nil {
			return fmt.Errorf("dequeue %s: %w", item.ID, err)
		}
		delete(pending, item.ProjectName)
		l.metrics.QueueDispatched(metrics.DispatchStarted)
		started++
	}

	if started > 0 {
		l.logger.Debug("tick complete", "ready", len(ready), "started", started)
	}
	return nil
}

// blockedBy returns the first queued project p waits for, and whether it is
// upstream or downstream of p.
func (l *Loop) blockedBy(g *depgraph.Graph, p *model.Project, pending map[string]bool) (string, string) {
	up := l.flags.BlockBuildWhenUpstreamBuilding(p)
	down := l.flags.BlockBuildWhenDownstreamBuilding(p)
	if !up && !down {
		return "", ""
	}
	for _, name := range slices.Sorted(maps.Keys(pending)) {
		if name == p.Name() {
			continue
		}
		if up && g.HasDependency(name, p.Name()) {
			return name, "upstream"
		}
		if down && g.HasDependency(p.Name(), name) {
			return name, "downstream"
		}
	}
	return "", ""
}

func (l *Loop) drop(ctx context.Context, item *model.QueueItem, reason string) {
	if _, err := l.queue.Dequeue(ctx, item.ID); err != nil {
		l.logger.Error("drop queue item", "project", item.ProjectName, "queue_id", item.ID, "error", err)
		return
	}
	l.logger.Info("queue item dropped", "project", item.ProjectName, "queue_id", item.ID, "reason", reason)
	l.metrics.QueueDispatched(metrics.DispatchDropped)
}
