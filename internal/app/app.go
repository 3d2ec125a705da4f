// Package app wires the configured collaborators shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"

	"ai-playground/internal/config"
	"ai-playground/internal/integrations/aiservice"
	"ai-playground/internal/integrations/paramstore"
	"ai-playground/internal/repository"
)

// App holds the long-lived clients built from a Config.
type App struct {
	Config   config.Config
	Gateway  *aiservice.Client
	Recorder repository.Recorder // nil when history is disabled
	Logger   *slog.Logger

	closers []func() error
}

// loadAWSConfig is swapped in tests.
var loadAWSConfig = func(ctx context.Context) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx)
}

// New resolves remaining configuration and builds the gateway and recorder.
// AWS configuration is loaded only when a component needs it.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Logger: logger}

	var awsCfg aws.Config
	if cfg.NeedsAWS() {
		var err error
		awsCfg, err = loadAWSConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: load AWS config: %w", err)
		}
	}

	if cfg.NeedsParamStore() {
		params, err := paramstore.New(awsssm.NewFromConfig(awsCfg), cfg.ParamPrefix)
		if err != nil {
			return nil, fmt.Errorf("app: create parameter store client: %w", err)
		}
		if err := cfg.ResolveBaseURL(ctx, params); err != nil {
			return nil, err
		}
	}

	gw, err := aiservice.NewClient(
		aiservice.WithBaseURL(cfg.APIBaseURL),
		aiservice.WithTimeout(cfg.RequestTimeout),
		aiservice.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("app: create AI service client: %w", err)
	}
	a.Gateway = gw

	opts := []repository.Option{
		repository.WithTTL(cfg.HistoryTTL),
		repository.WithMaxEntries(cfg.HistoryMaxEntries),
	}
	switch cfg.HistoryBackend {
	case repository.BackendDynamoDB:
		opts = append(opts, repository.WithDynamoDB(awsdynamodb.NewFromConfig(awsCfg), cfg.HistoryTable))
	case repository.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.closers = append(a.closers, rdb.Close)
		opts = append(opts, repository.WithRedis(rdb))
	}
	rec, err := repository.NewRecorder(cfg.HistoryBackend, opts...)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app: create history recorder: %w", err)
	}
	a.Recorder = rec
	a.Config = cfg

	logger.Info("app configured",
		"base_url", gw.BaseURL(),
		"timeout", cfg.RequestTimeout.String(),
		"history", string(cfg.HistoryBackend),
	)
	return a, nil
}

// Close releases connections opened by New.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
