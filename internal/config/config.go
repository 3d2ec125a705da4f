// Package config reads the process configuration from the environment once,
// at startup. Nothing else in the module reads environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"ai-playground/internal/integrations/aiservice"
	"ai-playground/internal/repository"
)

// BaseURLParam is the parameter key, below PARAM_PREFIX, holding the AI
// service base URL.
const BaseURLParam = "api_base_url"

type Config struct {
	APIBaseURL     string
	RequestTimeout time.Duration
	LogLevel       slog.Level

	// ParamPrefix enables the SSM lookup of the base URL when APIBaseURL
	// was not set explicitly.
	ParamPrefix string

	HistoryBackend    repository.Backend
	HistoryTable      string
	RedisAddr         string
	HistoryTTL        time.Duration
	HistoryMaxEntries int

	MetricsAddr string
	PlayerCmd   []string

	baseURLFromEnv bool
}

// Getenv matches os.Getenv.
type Getenv func(key string) string

// Load builds a Config from getenv.
func Load(getenv Getenv) (Config, error) {
	if getenv == nil {
		return Config{}, errors.New("config: getenv must not be nil")
	}

	cfg := Config{
		APIBaseURL:        strings.TrimSpace(getenv("API_BASE_URL")),
		ParamPrefix:       strings.TrimSpace(getenv("PARAM_PREFIX")),
		HistoryBackend:    repository.Backend(strings.ToLower(envString(getenv, "HISTORY_BACKEND", string(repository.BackendNone)))),
		HistoryTable:      strings.TrimSpace(getenv("HISTORY_TABLE")),
		RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR")),
		HistoryMaxEntries: envInt(getenv, "HISTORY_MAX_ENTRIES", 200),
		MetricsAddr:       strings.TrimSpace(getenv("METRICS_ADDR")),
		PlayerCmd:         strings.Fields(getenv("PLAYER_CMD")),
	}
	cfg.baseURLFromEnv = cfg.APIBaseURL != ""
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = aiservice.DefaultBaseURL
	}

	timeoutMS := envInt(getenv, "REQUEST_TIMEOUT_MS", int(aiservice.DefaultTimeout/time.Millisecond))
	if timeoutMS <= 0 {
		return Config{}, fmt.Errorf("config: REQUEST_TIMEOUT_MS must be positive, got %d", timeoutMS)
	}
	cfg.RequestTimeout = time.Duration(timeoutMS) * time.Millisecond
	cfg.HistoryTTL = time.Duration(envInt(getenv, "HISTORY_TTL_HOURS", 24*30)) * time.Hour

	if err := cfg.LogLevel.UnmarshalText([]byte(envString(getenv, "LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}

	switch cfg.HistoryBackend {
	case repository.BackendNone, repository.BackendMemory:
	case repository.BackendDynamoDB:
		if _, err := mustEnv(getenv, "HISTORY_TABLE"); err != nil {
			return Config{}, err
		}
	case repository.BackendRedis:
		if _, err := mustEnv(getenv, "REDIS_ADDR"); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("config: HISTORY_BACKEND %q: %w", cfg.HistoryBackend, repository.ErrInvalidBackend)
	}
	return cfg, nil
}

// NeedsParamStore reports whether the base URL still has to be read from SSM.
func (c Config) NeedsParamStore() bool {
	return !c.baseURLFromEnv && c.ParamPrefix != ""
}

// NeedsAWS reports whether any configured component talks to AWS.
func (c Config) NeedsAWS() bool {
	return c.NeedsParamStore() || c.HistoryBackend == repository.BackendDynamoDB
}

// ParamLookup reads a single parameter by key.
type ParamLookup interface {
	Lookup(ctx context.Context, key string) (string, error)
}

// ResolveBaseURL replaces the default base URL with the value stored under
// BaseURLParam. It is a no-op unless NeedsParamStore reports true.
func (c *Config) ResolveBaseURL(ctx context.Context, params ParamLookup) error {
	if !c.NeedsParamStore() {
		return nil
	}
	if params == nil {
		return errors.New("config: parameter store must not be nil")
	}
	v, err := params.Lookup(ctx, BaseURLParam)
	if err != nil {
		return fmt.Errorf("config: resolve base url: %w", err)
	}
	if v == "" {
		return errors.New("config: resolve base url: empty parameter value")
	}
	c.APIBaseURL = v
	c.baseURLFromEnv = true
	return nil
}

// Logger returns a JSON logger at the configured level.
func (c Config) Logger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: c.LogLevel}))
}

func mustEnv(getenv Getenv, key string) (string, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return "", fmt.Errorf("config: required environment variable %s is not set", key)
	}
	return v, nil
}

func envString(getenv Getenv, key, def string) string {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(getenv Getenv, key string, def int) int {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
