package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/me/jobcascade/internal/cascade"
	"github.com/me/jobcascade/internal/config"
	"github.com/me/jobcascade/internal/depgraph"
	"github.com/me/jobcascade/internal/lifecycle"
	"github.com/me/jobcascade/internal/metrics"
	"github.com/me/jobcascade/internal/registry"
	"github.com/me/jobcascade/internal/store"
	"github.com/me/jobcascade/internal/trigger"
	"github.com/me/jobcascade/pkg/model"
)

// app is the wired core: store, registry, resolver, initializer and graph.
type app struct {
	logger      *slog.Logger
	store       *store.SQLiteStore
	projects    *registry.Registry
	resolver    *cascade.Resolver
	initializer *lifecycle.Initializer
	graph       *depgraph.Service
	metrics     *metrics.Metrics // nil when metrics are disabled
}

// openApp opens the configured database, loads every project and builds the
// dependency graph. A graph that cannot be built is logged, not fatal.
func openApp(ctx context.Context, cfg *config.Config, users lifecycle.UserSource, logger *slog.Logger) (*app, error) {
	dbPath, err := cfg.ResolveDBPath()
	if err != nil {
		return nil, err
	}
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	logger.Debug("database ready", "path", dbPath)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	projects := registry.New()
	if err := projects.Load(ctx, st); err != nil {
		st.Close()
		return nil, fmt.Errorf("load projects: %w", err)
	}

	resolver := cascade.New(projects, config.NewGlobalDefaults(cfg.Defaults), logger)
	initializer := lifecycle.New(users, config.NewAuthorizationProvider(cfg.Authorization), logger,
		lifecycle.WithMetrics(m), lifecycle.WithNodes(config.NewAgentList(cfg.Agents)))
	executor := trigger.NewExecutor(st, resolver, projects, logger, trigger.WithMetrics(m))
	graph := depgraph.NewService(projects, executor, logger, depgraph.WithMetrics(m))

	a := &app{
		logger:      logger,
		store:       st,
		projects:    projects,
		resolver:    resolver,
		initializer: initializer,
		graph:       graph,
		metrics:     m,
	}
	if err := graph.Rebuild(ctx); err != nil {
		logger.Warn("dependency graph unavailable", "error", err)
	}
	return a, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// fixedUser acts as the identity named by --user, anonymous when empty.
func fixedUser(id string) lifecycle.UserSource {
	return lifecycle.UserFunc(func(context.Context) *model.Identity {
		if id == "" {
			return nil
		}
		return &model.Identity{ID: id}
	})
}
