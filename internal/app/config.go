package app

import (
	"github.com/formbridge/benefits-backend/internal/platform/logger"
	"github.com/formbridge/benefits-backend/internal/utils"
)

type Config struct {
	Mode         string
	CacheEnabled bool
	SeedFile     string
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Mode:         utils.GetEnv("APP_MODE", "dev", log),
		CacheEnabled: utils.GetEnvAsBool("CACHE_ENABLED", false, log),
		SeedFile:     utils.GetEnv("SEED_FILE", "", log),
	}
}
