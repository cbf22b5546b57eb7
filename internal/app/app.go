// Package app wires configuration into the database, backup and export services.
package app

import (
	"context"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/joseph-ayodele/cobrancas/internal/backup"
	"github.com/joseph-ayodele/cobrancas/internal/common"
	"github.com/joseph-ayodele/cobrancas/internal/export"
	"github.com/joseph-ayodele/cobrancas/internal/repository"
)

// App holds the long-lived components shared by the daemon and the CLI.
type App struct {
	Config   *common.Config
	DB       *repository.DB
	Repo     repository.CobrancaRepository
	Git      *backup.Git
	Backups  *backup.Service
	XLSX     *export.Service
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// NewLogger builds the process logger at the configured level.
func NewLogger(cfg *common.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
}

// Open connects to the database, applies the schema and builds the services.
func Open(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := repository.Open(ctx, repository.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(ctx, db, logger); err != nil {
		repository.Close(db, logger)
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	repo := repository.NewCobrancaRepository(db.Driver, logger)
	git := backup.NewGit(cfg.Backup.GitBinary, cfg.Backup.RepoRoot, cfg.Backup.GitTimeout, logger)
	svc, err := backup.NewService(repo, git, backup.Options{
		Dir:          cfg.Backup.Dir,
		SystemName:   cfg.Backup.SystemName,
		LatestWindow: cfg.Backup.LatestWindow,
		Metrics:      backup.NewMetrics(reg),
		Logger:       logger,
	})
	if err != nil {
		repository.Close(db, logger)
		return nil, err
	}

	return &App{
		Config:   cfg,
		DB:       db,
		Repo:     repo,
		Git:      git,
		Backups:  svc,
		XLSX:     export.NewService(repo, logger),
		Registry: reg,
		Logger:   logger,
	}, nil
}

// Health pings the database.
func (a *App) Health(ctx context.Context) error {
	return repository.HealthCheck(ctx, a.DB, a.Config.Database.DialTimeout, a.Logger)
}

func (a *App) Close() {
	repository.Close(a.DB, a.Logger)
}
