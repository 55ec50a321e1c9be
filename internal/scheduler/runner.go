package scheduler

import (
	"context"
	"log/slog"

	"github.com/me/jobcascade/pkg/model"
)

// Runner starts the build requested by a queue item. An error leaves the item
// queued for the next tick.
type Runner interface {
	Run(ctx context.Context, item *model.QueueItem, p *model.Project) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, item *model.QueueItem, p *model.Project) error

func (f RunnerFunc) Run(ctx context.Context, item *model.QueueItem, p *model.Project) error {
	return f(ctx, item, p)
}

// LogRunner only logs the build start. It is the default when no build
// executor is attached.
type LogRunner struct {
	Logger *slog.Logger
}

func (r LogRunner) Run(_ context.Context, item *model.QueueItem, p *model.Project) error {
	r.Logger.Info("build started",
		"project", p.Name(),
		"queue_id", item.ID,
		"upstream", item.Cause.UpstreamProject,
		"upstream_build", item.Cause.UpstreamBuild,
	)
	return nil
}
