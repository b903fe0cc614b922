package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	types "github.com/yungbote/recipe-backend/internal/domain"
	"github.com/yungbote/recipe-backend/internal/pkg/logger"
)

// JobEventBus fans recipe job transitions out over Redis pub/sub, one
// channel per job run.
type JobEventBus interface {
	Publish(ctx context.Context, ev types.JobEvent) error
	Subscribe(ctx context.Context, jobRunID string, onEvent func(ev types.JobEvent)) error
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
}

type jobEventBus struct {
	log    *logger.Logger
	pub    publisher
	rdb    *goredis.Client
	prefix string
}

func NewJobEventBus(log *logger.Logger, rdb *goredis.Client) JobEventBus {
	return &jobEventBus{
		log:    log.With("service", "RedisJobEventBus"),
		pub:    rdb,
		rdb:    rdb,
		prefix: "recipe-jobs:",
	}
}

func (b *jobEventBus) channel(jobRunID string) string { return b.prefix + jobRunID }

func (b *jobEventBus) Publish(ctx context.Context, ev types.JobEvent) error {
	if b == nil || b.pub == nil {
		return fmt.Errorf("redis job event bus not initialized")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.pub.Publish(ctx, b.channel(ev.JobRunID), raw).Err()
}

// Subscribe blocks until ctx is done or the subscription closes, invoking
// onEvent for each event on the job's channel.
func (b *jobEventBus) Subscribe(ctx context.Context, jobRunID string, onEvent func(ev types.JobEvent)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis job event bus not initialized")
	}
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	sub := b.rdb.Subscribe(ctx, b.channel(jobRunID))
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok || m == nil {
				return nil
			}
			var ev types.JobEvent
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				b.log.Warn("bad redis job event payload", "error", err)
				continue
			}
			onEvent(ev)
		}
	}
}
