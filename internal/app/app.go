// Package app wires configuration, storage, repositories and services
// into one process-wide object graph.
package app

import (
	"context"
	"fmt"

	redisclient "github.com/formbridge/benefits-backend/internal/clients/redis"
	"github.com/formbridge/benefits-backend/internal/data/repos"
	"github.com/formbridge/benefits-backend/internal/db"
	"github.com/formbridge/benefits-backend/internal/platform/logger"
	"github.com/formbridge/benefits-backend/internal/platform/txmgr"
	"github.com/formbridge/benefits-backend/internal/services"
)

type App struct {
	Config   Config
	Log      *logger.Logger
	Postgres *db.PostgresService

	Versions  repos.VersionRepo
	Questions repos.QuestionRepo
	Programs  repos.ProgramRepo

	TxManager *txmgr.Manager
	Engine    *services.VersionService
	Seeder    *services.Seeder
}

func New(log *logger.Logger) (*App, error) {
	cfg := LoadConfig(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		return nil, err
	}
	if err := pg.AutoMigrateAll(); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	var cache repos.VersionCache
	if cfg.CacheEnabled {
		versionCache, err := redisclient.NewVersionCache(log)
		if err != nil {
			return nil, err
		}
		cache = versionCache
	}

	versions := repos.NewVersionRepo(pg.DB, cache, log)
	questions := repos.NewQuestionRepo(pg.DB, log)
	programs := repos.NewProgramRepo(pg.DB, log)
	manager := txmgr.New(pg.DB, log)
	engine := services.NewVersionService(versions, questions, programs, cache, manager, log)

	return &App{
		Config:    cfg,
		Log:       log,
		Postgres:  pg,
		Versions:  versions,
		Questions: questions,
		Programs:  programs,
		TxManager: manager,
		Engine:    engine,
		Seeder:    services.NewSeeder(engine, log),
	}, nil
}

// Bootstrap runs startup work that needs the full graph: seeding when
// SEED_FILE is set.
func (a *App) Bootstrap(ctx context.Context) error {
	if a.Config.SeedFile == "" {
		return nil
	}
	a.Log.Info("seeding from file", "path", a.Config.SeedFile)
	return a.Seeder.SeedFromFile(ctx, a.Config.SeedFile)
}

func (a *App) Close() {
	if err := a.Postgres.Close(); err != nil {
		a.Log.Warn("closing postgres", "error", err)
	}
}
