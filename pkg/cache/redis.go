package cache

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"BranchChat/pkg/logger"
)

// RedisSummaries keeps conversation summaries in Redis so several API
// processes and the worker share one view.
type RedisSummaries struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisSummaries connects to url and verifies the connection.
func NewRedisSummaries(url string, ttl time.Duration, log *logger.Logger) (*RedisSummaries, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisSummaries{client: c, ttl: ttl, log: log}, nil
}

func (r *RedisSummaries) GetSummary(ctx context.Context, conversationID string) (string, bool) {
	res, err := r.client.Get(ctx, SummaryKey(conversationID)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		r.log.Warn("redis get failed", "conversation_id", conversationID, "error", err)
		return "", false
	}
	return res, true
}

func (r *RedisSummaries) SetSummary(ctx context.Context, conversationID, summary string) {
	if err := r.client.Set(ctx, SummaryKey(conversationID), summary, r.ttl).Err(); err != nil {
		r.log.Warn("redis set failed", "conversation_id", conversationID, "error", err)
	}
}

func (r *RedisSummaries) InvalidateSummary(ctx context.Context, conversationIDs ...string) {
	if len(conversationIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(conversationIDs))
	for _, id := range conversationIDs {
		keys = append(keys, SummaryKey(id))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.log.Warn("redis del failed", "keys", len(keys), "error", err)
	}
}

func (r *RedisSummaries) Close() error {
	return r.client.Close()
}
