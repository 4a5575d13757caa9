// Package utils holds small environment helpers shared by config
// loading. log may be nil for callers that run before the logger is up.
package utils

import (
	"os"
	"strconv"

	"github.com/formbridge/benefits-backend/internal/platform/logger"
)

// GetEnv reads key from the environment, falling back to def when the
// variable is unset.
func GetEnv(key, def string, log *logger.Logger) string {
	val, ok := os.LookupEnv(key)
	if !ok {
		debug(log, "environment variable unset, using default", key, def)
		return def
	}
	return val
}

// GetEnvAsInt reads key as an integer. Unset or unparsable values fall
// back to def.
func GetEnvAsInt(key string, def int, log *logger.Logger) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		debug(log, "environment variable unset, using default", key, def)
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		warn(log, "environment variable is not an integer, using default", key, raw, def)
		return def
	}
	return val
}

// GetEnvAsBool reads key as a boolean per strconv.ParseBool. Unset or
// unparsable values fall back to def.
func GetEnvAsBool(key string, def bool, log *logger.Logger) bool {
	raw, ok := os.LookupEnv(key)
	if !ok {
		debug(log, "environment variable unset, using default", key, def)
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		warn(log, "environment variable is not a boolean, using default", key, raw, def)
		return def
	}
	return val
}

func debug(log *logger.Logger, msg, key string, def any) {
	if log != nil {
		log.Debug(msg, "env_var", key, "default", def)
	}
}

func warn(log *logger.Logger, msg, key, raw string, def any) {
	if log != nil {
		log.Warn(msg, "env_var", key, "value", raw, "default", def)
	}
}
