package scheduler

import "context"

// Scheduler hands queued builds whose quiet period has elapsed to a Runner.
type Scheduler interface {
	// Start begins the dispatch loop. Blocks until ctx is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the scheduler.
	Stop() error

	// Tick runs a single dispatch iteration. Used for testing.
	Tick(ctx context.Context) error
}
