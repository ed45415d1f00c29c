package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"document-assistant/internal/config"
	"document-assistant/internal/extract"
	"document-assistant/internal/integrations/gemini"
	"document-assistant/internal/integrations/openai"
	"document-assistant/internal/integrations/paramstore"
	"document-assistant/internal/logger"
	"document-assistant/internal/repository"
	"document-assistant/internal/server"
	"document-assistant/internal/tracer"
	"document-assistant/internal/usecase"
)

// runtime holds everything a command needs once configuration is loaded.
type runtime struct {
	cfg      *config.Config
	log      *zap.Logger
	svc      server.Assistant
	shutdown func(context.Context) error
}

func (r *runtime) close(ctx context.Context) {
	if r.shutdown != nil {
		if err := r.shutdown(ctx); err != nil {
			r.log.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = r.log.Sync()
}

// newRuntime is a variable so command tests can substitute the service.
var newRuntime = func(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.App.LogFilePath, cfg.IsProduction())
	shutdown := tracer.Init(ctx, cfg.Otel.Enabled, cfg.Otel.Endpoint, log)

	svc, err := buildService(ctx, cfg, log)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}
	return &runtime{cfg: cfg, log: log, svc: svc, shutdown: shutdown}, nil
}

func buildService(ctx context.Context, cfg *config.Config, log *zap.Logger) (*usecase.AssistantService, error) {
	loader := &awsLoader{}

	store, err := newStore(ctx, cfg.Store, loader)
	if err != nil {
		return nil, err
	}
	tokens, err := newTokenSource(ctx, cfg.LLM, loader)
	if err != nil {
		return nil, err
	}
	gen, err := newGenerator(cfg.LLM, tokens)
	if err != nil {
		return nil, err
	}
	ex, err := extract.New(cfg.Upload.Dir, cfg.Upload.MaxBytes)
	if err != nil {
		return nil, err
	}

	log.Info("assistant configured",
		zap.String("provider", cfg.LLM.Provider),
		zap.String("model", cfg.LLM.Model),
		zap.String("store", cfg.Store.Backend),
	)
	return usecase.NewAssistantService(store, gen, ex, log, usecase.Options{
		HistoryWindow:     cfg.LLM.HistoryWindow,
		GenerationTimeout: cfg.LLM.GenerationTimeout,
	})
}

// awsLoader loads the shared AWS config on first use so local runs without
// AWS credentials never touch it.
type awsLoader struct {
	once sync.Once
	cfg  aws.Config
	err  error
}

func (l *awsLoader) load(ctx context.Context) (aws.Config, error) {
	l.once.Do(func() {
		l.cfg, l.err = awsconfig.LoadDefaultConfig(ctx)
		if l.err != nil {
			l.err = fmt.Errorf("load AWS config: %w", l.err)
		}
	})
	return l.cfg, l.err
}

func newStore(ctx context.Context, cfg config.StoreConfig, loader *awsLoader) (usecase.DocumentStore, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return repository.NewMemoryStore(), nil
	case config.BackendDynamoDB:
		awsCfg, err := loader.load(ctx)
		if err != nil {
			return nil, err
		}
		store, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
}

func newTokenSource(ctx context.Context, cfg config.LLMConfig, loader *awsLoader) (*paramstore.TokenSource, error) {
	if cfg.APIKey != "" {
		return paramstore.StaticToken(cfg.APIKey), nil
	}
	if cfg.ParamPrefix == "" {
		return nil, errors.New("no API key or parameter prefix configured")
	}
	awsCfg, err := loader.load(ctx)
	if err != nil {
		return nil, err
	}
	getter, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, err
	}
	return paramstore.NewTokenSource(getter, paramstore.TokenParameterName(cfg.ParamPrefix, cfg.Provider))
}

func newGenerator(cfg config.LLMConfig, tokens *paramstore.TokenSource) (usecase.Generator, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		var opts []gemini.Option
		if cfg.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
		}
		client, err := gemini.NewClient(tokens, cfg.Model, opts...)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.ProviderOpenAI:
		var opts []openai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		client, err := openai.NewClient(tokens, cfg.Model, opts...)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
}
