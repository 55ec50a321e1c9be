package store

import (
	"context"
	"time"

	"github.com/me/jobcascade/pkg/model"
)

// Store defines the persistence layer for projects, builds and the build queue.
// Projects are stored as their own overrides; effective values are never
// persisted.
type Store interface {
	// Project CRUD
	CreateProject(ctx context.Context, p *model.Project) error
	GetProject(ctx context.Context, name string) (*model.Project, error)
	ListProjects(ctx context.Context, opts model.ListOptions) ([]*model.Project, int, error)
	AllProjects(ctx context.Context) ([]*model.Project, error)
	UpdateProject(ctx context.Context, p *model.Project) error
	DeleteProject(ctx context.Context, name string) error

	// Builds
	RecordBuild(ctx context.Context, b *model.Build) error
	ListBuilds(ctx context.Context, project string) ([]*model.Build, error)

	// Queue operations
	Enqueue(ctx context.Context, item *model.QueueItem) (bool, error)
	ListQueue(ctx context.Context) ([]*model.QueueItem, error)
	ReadyQueue(ctx context.Context, now time.Time) ([]*model.QueueItem, error)
	Dequeue(ctx context.Context, id string) (bool, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
