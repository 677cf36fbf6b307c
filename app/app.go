// Package app assembles a session manager from environment configuration.
// Every entry point under cmd/ goes through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"mealchat"
	"mealchat/candidate"
	"mealchat/completion"
	"mealchat/completion/bedrock"
	"mealchat/completion/gemini"
	"mealchat/completion/mock"
	"mealchat/conversation"
	"mealchat/notify"
	"mealchat/preference"
	"mealchat/session"
	"mealchat/store"
	"mealchat/weekly"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joeshaw/envdecode"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type Config struct {
	Model   mealchat.ModelConfig
	Planner mealchat.PlannerConfig
	Store   mealchat.StoreConfig
	Notify  mealchat.NotifyConfig
}

// LoadConfig decodes every section from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg.Model); err != nil {
		return Config{}, fmt.Errorf("model config: %w", err)
	}
	if err := envdecode.Decode(&cfg.Planner); err != nil {
		return Config{}, fmt.Errorf("planner config: %w", err)
	}
	if err := envdecode.Decode(&cfg.Store); err != nil {
		return Config{}, fmt.Errorf("store config: %w", err)
	}
	if err := envdecode.Decode(&cfg.Notify); err != nil {
		return Config{}, fmt.Errorf("notify config: %w", err)
	}
	return cfg, nil
}

// Options carries the observability plumbing. Nil providers fall back to the
// global ones, which are no-ops until InitOtel runs.
type Options struct {
	TurnLogger     mealchat.TurnLogger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

type App struct {
	Sessions *session.Manager
	closers  []func() error
}

func New(ctx context.Context, cfg Config, opts Options) (*App, error) {
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = otel.GetMeterProvider()
	}
	meter := opts.MeterProvider.Meter(mealchat.MeterName)

	a := &App{}

	svc, closeSvc, err := NewService(ctx, cfg.Model)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeSvc)

	svc = completion.NewObserved(
		completion.Bounded(svc, cfg.Model.CallTimeout),
		opts.TurnLogger,
		opts.TracerProvider.Tracer(mealchat.TracerNameCompletion),
		meter,
	)

	policy, err := preference.ParsePolicy(cfg.Planner.Readiness, cfg.Planner.ReadinessTurns)
	if err != nil {
		a.Close()
		return nil, err
	}

	target := weekly.Target{
		Calories: cfg.Planner.TargetCalories,
		Protein:  cfg.Planner.TargetProtein,
		Carbs:    cfg.Planner.TargetCarbs,
		Fats:     cfg.Planner.TargetFats,
	}
	if err := target.Validate(); err != nil {
		a.Close()
		return nil, err
	}

	st, closeStore, err := NewStore(ctx, cfg.Store)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeStore)

	a.Sessions = session.NewManager(session.Config{
		Conversation: conversation.NewEngine(svc, policy),
		Generator:    candidate.NewGenerator(svc, cfg.Planner.BatchSize),
		Store:        st,
		Notifier:     NewNotifier(cfg.Notify),
		Target:       target,
		WriteTimeout: cfg.Planner.WriteTimeout,
		Meter:        meter,
	})

	slog.Info("SETUP: Sessions ready",
		"provider", cfg.Model.Provider,
		"store", cfg.Store.Driver,
		"readiness", cfg.Planner.Readiness,
		"batch_size", cfg.Planner.BatchSize)
	return a, nil
}

// Close waits for pending triage writes and releases the service and store.
func (a *App) Close() error {
	if a.Sessions != nil {
		a.Sessions.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func nop() error { return nil }

// NewService builds the completion service for cfg.Provider: bedrock, gemini or mock.
func NewService(ctx context.Context, cfg mealchat.ModelConfig) (completion.Service, func() error, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "bedrock":
		brc, err := newBedrockRuntimeClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Bedrock client: %w", err)
		}
		return bedrock.NewLLMClient(brc, bedrock.LLMOptions{
			ModelID:     cfg.ModelID,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
		}), nop, nil
	case "gemini":
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return gemini.NewLLMClient(client, gemini.LLMOptions{
			ModelID:     cfg.ModelID,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
		}), client.Close, nil
	case "mock":
		return mock.NewLLMClient(), nop, nil
	default:
		return nil, nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

func newBedrockRuntimeClient(ctx context.Context) (*bedrockruntime.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
	if err != nil {
		return nil, err
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
}

// NewStore opens the store named by cfg.Driver: memory, sqlite or s3.
func NewStore(ctx context.Context, cfg mealchat.StoreConfig) (store.Store, func() error, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return store.NewMemory(), nop, nil
	case "sqlite":
		s, err := store.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, nil, errors.New("missing S3 config: STORE_S3_BUCKET must be set")
		}
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return store.NewS3(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.S3Prefix), nop, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// NewNotifier posts to the webhook when one is configured and logs otherwise.
func NewNotifier(cfg mealchat.NotifyConfig) mealchat.Notifier {
	if cfg.WebhookURL == "" {
		return notify.Log{}
	}
	return notify.Multi{notify.Log{}, notify.NewWebhook(cfg.WebhookURL, cfg.Channel, http.DefaultClient)}
}
