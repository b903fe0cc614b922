package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	types "github.com/yungbote/recipe-backend/internal/domain"
	"github.com/yungbote/recipe-backend/internal/pkg/logger"
)

// RecipeCache stores successfully parsed drafts keyed by source object.
type RecipeCache interface {
	Get(ctx context.Context, bucket, sourcePath string) (*types.RecipeDraft, bool, error)
	Put(ctx context.Context, bucket, sourcePath string, draft types.RecipeDraft) error
	Invalidate(ctx context.Context, bucket, sourcePath string) error
}

type cacheCmdable interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

type recipeCache struct {
	log    *logger.Logger
	rdb    cacheCmdable
	ttl    time.Duration
	prefix string
}

func NewRecipeCache(log *logger.Logger, rdb cacheCmdable, ttl time.Duration) RecipeCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &recipeCache{
		log:    log.With("service", "RecipeCache"),
		rdb:    rdb,
		ttl:    ttl,
		prefix: "recipe:draft:",
	}
}

func (c *recipeCache) key(bucket, sourcePath string) string {
	sum := sha256.Sum256([]byte(bucket + "/" + sourcePath))
	return c.prefix + hex.EncodeToString(sum[:16])
}

func (c *recipeCache) Get(ctx context.Context, bucket, sourcePath string) (*types.RecipeDraft, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(bucket, sourcePath)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("recipe cache get: %w", err)
	}
	var draft types.RecipeDraft
	if err := json.Unmarshal(raw, &draft); err != nil {
		c.log.Warn("Dropping unreadable cache entry", "source_path", sourcePath, "error", err)
		_ = c.rdb.Del(ctx, c.key(bucket, sourcePath)).Err()
		return nil, false, nil
	}
	draft = draft.Normalize()
	return &draft, true, nil
}

func (c *recipeCache) Put(ctx context.Context, bucket, sourcePath string, draft types.RecipeDraft) error {
	raw, err := json.Marshal(draft.Normalize())
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, c.key(bucket, sourcePath), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("recipe cache put: %w", err)
	}
	return nil
}

func (c *recipeCache) Invalidate(ctx context.Context, bucket, sourcePath string) error {
	return c.rdb.Del(ctx, c.key(bucket, sourcePath)).Err()
}
