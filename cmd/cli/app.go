package cli

import (
	"context"
	"fmt"

	"hadiscover/internal/config"
	"hadiscover/internal/database"
	"hadiscover/internal/observability"
	"hadiscover/internal/parser"
	"hadiscover/internal/services"
	"hadiscover/pkg/github"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// app holds the wired services shared by the serve and index-now commands.
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	db      *gorm.DB
	search  *services.SearchService
	indexer *services.IndexerService // nil when no GitHub client could be built
	close   func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := config.InitLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Monitoring.Tracing)
	if err != nil {
		logger.Warnf("Tracing disabled: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	db, err := database.Open(cfg.Database, cfg.Monitoring.Tracing.Enabled, logger)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		search: services.NewSearchService(db, logger),
	}

	client, err := github.NewClient(githubConfig(cfg.GitHub), nil, logger)
	if err != nil {
		logger.WithError(err).Warn("GitHub client unavailable, indexing disabled")
	} else {
		a.indexer = services.NewIndexerService(db, client, parser.New(logger), logger)
		a.indexer.SetSelfRepo(cfg.GitHub.SelfRepo)
	}

	a.close = func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warnf("Tracing shutdown: %v", err)
		}
	}
	return a, nil
}

func githubConfig(gc config.GitHubConfig) *github.Config {
	cfg := github.DefaultConfig()
	cfg.Token = gc.Token
	if gc.Host != "" {
		cfg.Host = gc.Host
	}
	if gc.Topic != "" {
		cfg.Topic = gc.Topic
	}
	cfg.NoTopicSearch = gc.NoTopicSearch
	cfg.MaxRepositories = gc.MaxRepositories
	if gc.Timeout > 0 {
		cfg.Timeout = gc.Timeout
	}
	return cfg
}
