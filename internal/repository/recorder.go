// Package repository keeps an optional transcript of successful screen round
// trips per session. The client never reads it back into requests; it exists
// so a session's history can be shown or audited later.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"

	"ai-playground/internal/domain"
)

// Recorder stores and lists session activity.
type Recorder interface {
	Record(ctx context.Context, a domain.Activity) error
	List(ctx context.Context, sessionID string, limit int) ([]domain.Activity, error)
	Count(ctx context.Context, sessionID string) (int, error)
}

// Backend names a Recorder implementation.
type Backend string

const (
	BackendNone     Backend = "none"
	BackendMemory   Backend = "memory"
	BackendDynamoDB Backend = "dynamodb"
	BackendRedis    Backend = "redis"
)

const defaultTTL = 30 * 24 * time.Hour

var (
	ErrInvalidBackend = errors.New("repository: unknown backend")
	ErrInvalidConfig  = errors.New("repository: backend is missing required configuration")
	ErrSessionID      = errors.New("repository: session id must not be empty")
)

// Option configures NewRecorder.
type Option func(*options)

type options struct {
	dynamo    dynamodbAPI
	table     string
	redis     redis.UniversalClient
	ttl       time.Duration
	maxPerKey int
}

func WithDynamoDB(api *dynamodb.Client, table string) Option {
	return func(o *options) {
		if api != nil {
			o.dynamo = api
		}
		o.table = table
	}
}

func WithRedis(client redis.UniversalClient) Option {
	return func(o *options) {
		o.redis = client
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithMaxEntries caps how many activities are kept per session (memory, redis).
func WithMaxEntries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPerKey = n
		}
	}
}

// NewRecorder returns the Recorder for backend. BackendNone yields (nil, nil);
// callers treat a nil Recorder as "do not record".
func NewRecorder(backend Backend, opts ...Option) (Recorder, error) {
	o := &options{ttl: defaultTTL, maxPerKey: 200}
	for _, opt := range opts {
		opt(o)
	}

	switch backend {
	case BackendNone, "":
		return nil, nil
	case BackendMemory:
		return NewMemory(o.maxPerKey), nil
	case BackendDynamoDB:
		if o.dynamo == nil || o.table == "" {
			return nil, ErrInvalidConfig
		}
		return NewDynamo(o.dynamo, o.table, o.ttl)
	case BackendRedis:
		if o.redis == nil {
			return nil, ErrInvalidConfig
		}
		return NewRedis(o.redis, o.ttl, o.maxPerKey)
	default:
		return nil, ErrInvalidBackend
	}
}

func stamp(a domain.Activity) domain.Activity {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a
}
