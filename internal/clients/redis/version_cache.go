// Package redis implements the version-keyed read cache over a redis
// server. Entries hold the full question/program sets of published
// versions; the draft is never cached.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/formbridge/benefits-backend/internal/domain"
	"github.com/formbridge/benefits-backend/internal/platform/logger"
	"github.com/formbridge/benefits-backend/internal/utils"
)

type VersionCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewVersionCache connects to redis using REDIS_ADDR, REDIS_PASSWORD,
// REDIS_DB and VERSION_CACHE_TTL_MINUTES. The connection is verified
// with a ping so a misconfigured cache fails at startup, not on the
// first read.
func NewVersionCache(baseLog *logger.Logger) (*VersionCache, error) {
	log := baseLog.With("client", "VersionCache")
	client := redis.NewClient(&redis.Options{
		Addr:     utils.GetEnv("REDIS_ADDR", "localhost:6379", log),
		Password: utils.GetEnv("REDIS_PASSWORD", "", log),
		DB:       utils.GetEnvAsInt("REDIS_DB", 0, log),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	ttl := time.Duration(utils.GetEnvAsInt("VERSION_CACHE_TTL_MINUTES", 60, log)) * time.Minute
	return &VersionCache{client: client, ttl: ttl, log: log}, nil
}

func questionsKey(versionID int64) string {
	return "version:questions:" + strconv.FormatInt(versionID, 10)
}

func programsKey(versionID int64) string {
	return "version:programs:" + strconv.FormatInt(versionID, 10)
}

func (c *VersionCache) GetQuestions(ctx context.Context, versionID int64) ([]*domain.Question, bool) {
	var questions []*domain.Question
	if !c.get(ctx, questionsKey(versionID), &questions) {
		return nil, false
	}
	return questions, true
}

func (c *VersionCache) SetQuestions(ctx context.Context, versionID int64, questions []*domain.Question) {
	c.set(ctx, questionsKey(versionID), questions)
}

func (c *VersionCache) GetPrograms(ctx context.Context, versionID int64) ([]*domain.Program, bool) {
	var programs []*domain.Program
	if !c.get(ctx, programsKey(versionID), &programs) {
		return nil, false
	}
	return programs, true
}

func (c *VersionCache) SetPrograms(ctx context.Context, versionID int64, programs []*domain.Program) {
	c.set(ctx, programsKey(versionID), programs)
}

// Invalidate drops both entries for a version. Called on lifecycle
// transitions.
func (c *VersionCache) Invalidate(ctx context.Context, versionID int64) {
	if err := c.client.Del(ctx, questionsKey(versionID), programsKey(versionID)).Err(); err != nil {
		c.log.Warn("cache invalidate failed", "version_id", versionID, "error", err)
	}
}

func (c *VersionCache) get(ctx context.Context, key string, out any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.log.Warn("cache read failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.log.Warn("cache entry corrupt, dropping", "key", key, "error", err)
		_ = c.client.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *VersionCache) set(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Warn("cache write failed", "key", key, "error", err)
	}
}
