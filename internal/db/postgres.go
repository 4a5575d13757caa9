package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/formbridge/benefits-backend/internal/domain"
	"github.com/formbridge/benefits-backend/internal/platform/logger"
	"github.com/formbridge/benefits-backend/internal/utils"
)

type PostgresService struct {
	DB  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(baseLog *logger.Logger) (*PostgresService, error) {
	log := baseLog.With("service", "PostgresService")
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		utils.GetEnv("DB_HOST", "localhost", log),
		utils.GetEnv("DB_PORT", "5432", log),
		utils.GetEnv("DB_USER", "postgres", log),
		utils.GetEnv("DB_PASSWORD", "postgres", log),
		utils.GetEnv("DB_NAME", "benefits", log),
		utils.GetEnv("DB_SSLMODE", "disable", log),
	)
	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	log.Info("connected to postgres")
	return &PostgresService{DB: gormDB, log: log}, nil
}

// AutoMigrateAll creates the schema, including the partial unique index
// that is the last line of defense for the one-draft invariant.
func (s *PostgresService) AutoMigrateAll() error {
	if err := s.DB.AutoMigrate(
		&domain.Version{},
		&domain.Question{},
		&domain.Program{},
		&domain.VersionQuestion{},
		&domain.VersionProgram{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return s.DB.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS versions_one_draft ON versions (lifecycle_stage) WHERE lifecycle_stage = 'draft'`,
	).Error
}

func (s *PostgresService) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
