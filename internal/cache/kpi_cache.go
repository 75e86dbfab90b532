// Package cache holds the KPI snapshot cache. Redis backs it when enabled;
// otherwise every lookup misses.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/config"
	"github.com/offerflow/offerflow-api/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const kpiKeyPrefix = "offerflow:kpi:"

// ErrMiss is returned by Get when no snapshot is cached for the organization
var ErrMiss = errors.New("kpi snapshot not cached")

type KPICache interface {
	Get(ctx context.Context, orgID uuid.UUID) (*domain.KPISnapshotDTO, error)
	Set(ctx context.Context, orgID uuid.UUID, snapshot *domain.KPISnapshotDTO) error
	Invalidate(ctx context.Context, orgID uuid.UUID) error
}

// KPIKey is the redis key holding an organization's snapshot
func KPIKey(orgID uuid.UUID) string {
	return kpiKeyPrefix + orgID.String()
}

type RedisKPICache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisKPICache(client *redis.Client, ttl time.Duration) *RedisKPICache {
	return &RedisKPICache{client: client, ttl: ttl}
}

func (c *RedisKPICache) Get(ctx context.Context, orgID uuid.UUID) (*domain.KPISnapshotDTO, error) {
	raw, err := c.client.Get(ctx, KPIKey(orgID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var snapshot domain.KPISnapshotDTO
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		// stale shape after a deploy; treat as a miss and let the caller overwrite it
		return nil, ErrMiss
	}
	return &snapshot, nil
}

func (c *RedisKPICache) Set(ctx context.Context, orgID uuid.UUID, snapshot *domain.KPISnapshotDTO) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return c.client.Set(ctx, KPIKey(orgID), raw, c.ttl).Err()
}

func (c *RedisKPICache) Invalidate(ctx context.Context, orgID uuid.UUID) error {
	return c.client.Del(ctx, KPIKey(orgID)).Err()
}

// NoopKPICache never stores anything
type NoopKPICache struct{}

func (NoopKPICache) Get(context.Context, uuid.UUID) (*domain.KPISnapshotDTO, error) {
	return nil, ErrMiss
}

func (NoopKPICache) Set(context.Context, uuid.UUID, *domain.KPISnapshotDTO) error { return nil }

func (NoopKPICache) Invalidate(context.Context, uuid.UUID) error { return nil }

// New builds the cache from configuration. When redis is disabled or unreachable at
// startup the service runs without a cache. The returned close func is always non-nil.
func New(ctx context.Context, cfg *config.RedisConfig, logger *zap.Logger) (KPICache, func() error) {
	if !cfg.Enabled {
		logger.Info("KPI cache disabled")
		return NoopKPICache{}, func() error { return nil }
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		logger.Warn("Invalid redis URL, running without KPI cache", zap.Error(err))
		return NoopKPICache{}, func() error { return nil }
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis not reachable, running without KPI cache",
			zap.String("addr", opts.Addr),
			zap.Error(err),
		)
		_ = client.Close()
		return NoopKPICache{}, func() error { return nil }
	}

	logger.Info("KPI cache connected",
		zap.String("addr", opts.Addr),
		zap.Duration("ttl", cfg.CacheTTLDuration()),
	)
	return NewRedisKPICache(client, cfg.CacheTTLDuration()), client.Close
}
