package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ai-playground/internal/domain"
)

// Redis keeps each session's activity as a capped JSON list.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	max    int
}

func NewRedis(client redis.UniversalClient, ttl time.Duration, maxPerSession int) (*Redis, error) {
	if client == nil {
		return nil, errors.New("repository: redis client must not be nil")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{client: client, ttl: ttl, max: maxPerSession}, nil
}

func activityKey(sessionID string) string {
	return "activity:" + sessionID
}

func (r *Redis) Record(ctx context.Context, a domain.Activity) error {
	if a.SessionID == "" {
		return ErrSessionID
	}
	val, err := json.Marshal(stamp(a))
	if err != nil {
		return fmt.Errorf("repository: marshal activity: %w", err)
	}

	key := activityKey(a.SessionID)
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, val)
		if r.max > 0 {
			p.LTrim(ctx, key, int64(-r.max), -1)
		}
		p.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("repository: Record: %w", err)
	}
	return nil
}

func (r *Redis) List(ctx context.Context, sessionID string, limit int) ([]domain.Activity, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	vals, err := r.client.LRange(ctx, activityKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("repository: List: %w", err)
	}

	acts := make([]domain.Activity, 0, len(vals))
	for _, v := range vals {
		var a domain.Activity
		if err := json.Unmarshal([]byte(v), &a); err != nil {
			return nil, fmt.Errorf("repository: List unmarshal: %w", err)
		}
		acts = append(acts, a)
	}
	return acts, nil
}

func (r *Redis) Count(ctx context.Context, sessionID string) (int, error) {
	n, err := r.client.LLen(ctx, activityKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("repository: Count: %w", err)
	}
	return int(n), nil
}
