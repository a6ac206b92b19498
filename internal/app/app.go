// Package app wires the chat service from configuration. Both the Lambda and
// the local entrypoints build through here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"portfolio-chat/internal/config"
	"portfolio-chat/internal/integrations/openai"
	"portfolio-chat/internal/integrations/paramstore"
	"portfolio-chat/internal/intent"
	"portfolio-chat/internal/knowledge"
	"portfolio-chat/internal/repository"
	"portfolio-chat/internal/usecase"
)

const (
	knowledgeParameter = "knowledge_base"
	generatorKeyParam  = "generator_api_key"
	appTitle           = "portfolio-chat"
)

// App holds the wired service and the resources to release on shutdown.
type App struct {
	Chat    *usecase.ChatService
	closers []func() error
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build creates every dependency named by cfg. AWS configuration is only
// loaded when DynamoDB or SSM is in use.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{}

	var (
		awsCfg    aws.Config
		awsLoaded bool
	)
	loadAWS := func() (aws.Config, error) {
		if awsLoaded {
			return awsCfg, nil
		}
		c, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return aws.Config{}, fmt.Errorf("app: load AWS config: %w", err)
		}
		awsCfg, awsLoaded = c, true
		return awsCfg, nil
	}

	var params *paramstore.Client
	if cfg.ParamPrefix != "" {
		ac, err := loadAWS()
		if err != nil {
			return nil, err
		}
		params, err = paramstore.New(awsssm.NewFromConfig(ac), cfg.ParamPrefix)
		if err != nil {
			return nil, fmt.Errorf("app: create SSM client: %w", err)
		}
	}

	store, err := a.buildStore(ctx, cfg, loadAWS)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	loaderOpts := []knowledge.LoaderOption{knowledge.WithFile(cfg.KnowledgeFile)}
	if params != nil {
		loaderOpts = append(loaderOpts, knowledge.WithParameter(params, knowledgeParameter))
	}

	opts := usecase.Options{
		ClassifierKind:   intent.Kind(cfg.Classifier),
		MaxMessageLength: cfg.MaxMessageLength,
		IdleTimeout:      cfg.IdleTimeout,
		StoreBackend:     cfg.StateBackend,
		Logger:           logger,
	}
	if cfg.Generator.Enabled {
		gen, err := buildGenerator(cfg.Generator, params)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		opts.Generator = gen
		opts.Model = cfg.Generator.Model
		opts.GeneratorTimeout = cfg.Generator.Timeout
	}

	svc, err := usecase.NewChatService(knowledge.NewLoader(loaderOpts...), store, opts)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app: create chat service: %w", err)
	}
	a.Chat = svc
	return a, nil
}

func (a *App) buildStore(ctx context.Context, cfg config.Config, loadAWS func() (aws.Config, error)) (usecase.SessionStore, error) {
	switch cfg.StateBackend {
	case config.BackendDynamoDB:
		ac, err := loadAWS()
		if err != nil {
			return nil, err
		}
		store, err := repository.NewDynamoStore(awsdynamodb.NewFromConfig(ac), cfg.StateTable, cfg.SessionTTL)
		if err != nil {
			return nil, fmt.Errorf("app: create dynamodb store: %w", err)
		}
		return store, nil
	case config.BackendRedis:
		client, err := repository.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		store, err := repository.NewRedisStore(client, cfg.SessionTTL)
		if err != nil {
			return nil, fmt.Errorf("app: create redis store: %w", err)
		}
		return store, nil
	case config.BackendMemory, "":
		store, err := repository.NewMemoryStore(cfg.MemoryStoreCapacity, cfg.SessionTTL)
		if err != nil {
			return nil, fmt.Errorf("app: create memory store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("app: unknown state backend %q", cfg.StateBackend)
	}
}

func buildGenerator(cfg config.GeneratorConfig, params *paramstore.Client) (*openai.Client, error) {
	opts := []openai.Option{
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		openai.WithHeader("X-Title", appTitle),
	}
	switch {
	case cfg.APIKey != "":
		opts = append(opts, openai.WithAPIKey(cfg.APIKey))
	case params != nil:
		opts = append(opts, openai.WithTokenParameter(params, generatorKeyParam))
	}
	client, err := openai.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("app: create generator client: %w", err)
	}
	return client, nil
}
