// Package trigger schedules downstream builds after an upstream build
// completes.
package trigger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/me/jobcascade/internal/metrics"
	"github.com/me/jobcascade/pkg/model"
)

// Queue accepts build requests. Enqueue reports false when the project already
// has a pending request and the new one was coalesced into it.
type Queue interface {
	Enqueue(ctx context.Context, item *model.QueueItem) (bool, error)
}

// QuietPeriods supplies a project's effective quiet period in seconds.
type QuietPeriods interface {
	QuietPeriod(p *model.Project) int
}

// ProjectLookup resolves an upstream project by name.
type ProjectLookup interface {
	Lookup(name string) *model.Project
}

// Executor fires downstream triggers. Failures are reported to the listener
// and the log; they never propagate to the caller.
type Executor struct {
	queue    Queue
	quiet    QuietPeriods
	projects ProjectLookup
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithMetrics records trigger outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithClock overrides the queue timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// NewExecutor creates an Executor. projects is used to read the upstream
// project's result threshold; when nil every result triggers.
func NewExecutor(queue Queue, quiet QuietPeriods, projects ProjectLookup, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		queue:    queue,
		quiet:    quiet,
		projects: projects,
		logger:   logger.With("component", "trigger"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FireTrigger schedules dependent after build, honoring the upstream result
// threshold and the dependent's effective quiet period.
func (e *Executor) FireTrigger(ctx context.Context, build *model.Build, dependent *model.Project, listener io.Writer) {
	log := e.logger.With("build", build.FullDisplayName(), "dependent", dependent.Name())

	if dependent.Disabled() {
		fmt.Fprintf(listener, "%s is disabled. Triggering skipped\n", dependent.Name())
		log.Debug("dependent disabled")
		e.metrics.TriggerFired(metrics.OutcomeDisabled)
		return
	}

	if threshold, ok := e.threshold(build.ProjectName); ok && !build.Result.IsBetterOrEqualTo(threshold) {
		fmt.Fprintf(listener, "%s not triggered: %s is worse than %s\n", dependent.Name(), build.Result, threshold)
		log.Debug("result below threshold", "result", build.Result, "threshold", threshold)
		return
	}

	quiet := 0
	if e.quiet != nil {
		quiet = e.quiet.QuietPeriod(dependent)
	}
	now := e.now().UTC()
	item := &model.QueueItem{
		ID:          "qi_" + uuid.New().String(),
		ProjectName: dependent.Name(),
		Cause: model.Cause{
			UpstreamProject: build.ProjectName,
			UpstreamBuild:   build.Number,
		},
		QueuedAt:  now,
		NotBefore: now.Add(time.Duration(quiet) * time.Second),
	}

	added, err := e.queue.Enqueue(ctx, item)
	if err != nil {
		fmt.Fprintf(listener, "Failed to trigger %s: %v\n", dependent.Name(), err)
		log.Error("enqueue failed", "error", err)
		e.metrics.TriggerFired(metrics.OutcomeError)
		return
	}

	fmt.Fprintf(listener, "Triggering a new build of %s\n", dependent.Name())
	if !added {
		log.Debug("coalesced into pending build")
		e.metrics.TriggerFired(metrics.OutcomeCoalesced)
		return
	}
	log.Info("build queued", "quiet_period", quiet, "queue_item", item.ID)
	e.metrics.TriggerFired(metrics.OutcomeQueued)
}

// threshold returns the upstream project's trigger threshold. It reports false
// when no threshold applies.
func (e *Executor) threshold(upstream string) (model.BuildResult, bool) {
	if e.projects == nil {
		return "", false
	}
	p := e.projects.Lookup(upstream)
	if p == nil {
		return model.ResultSuccess, true
	}
	if t, ok := p.Property(model.PropertyBuildTrigger).(*model.BuildTriggerProperty); ok {
		return t.EffectiveThreshold(), true
	}
	return model.ResultSuccess, true
}
