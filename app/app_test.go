package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mealchat"
	"mealchat/notify"
	"mealchat/weekly"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func mockConfig(t *testing.T) Config {
	return Config{
		Model: mealchat.ModelConfig{Provider: "mock", CallTimeout: time.Second},
		Planner: mealchat.PlannerConfig{
			Readiness:      "any",
			BatchSize:      3,
			TargetCalories: 2000,
			TargetProtein:  150,
			TargetCarbs:    200,
			TargetFats:     65,
			WriteTimeout:   time.Second,
		},
		Store: mealchat.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "mealchat.db")},
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "mock")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "mock", cfg.Model.Provider)
	assert.Equal(t, 30*time.Second, cfg.Model.CallTimeout)
	assert.Equal(t, "any", cfg.Planner.Readiness)
	assert.Equal(t, 5, cfg.Planner.BatchSize)
	assert.Equal(t, weekly.DefaultTarget().Calories, cfg.Planner.TargetCalories)
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestNew_Flow(t *testing.T) {
	ctx := context.Background()
	turns := &countingTurnLogger{}
	a, err := New(ctx, mockConfig(t), Options{
		TurnLogger:     turns,
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  metricnoop.NewMeterProvider(),
	})
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	s, err := a.Sessions.Get("alice")
	require.NoError(t, err)
	_, err = s.Send(ctx, "mexican please")
	require.NoError(t, err)
	meals, err := s.Generate(ctx)
	require.NoError(t, err)
	assert.Len(t, meals, 3)
	assert.Equal(t, 2, turns.n, "every completion call is logged")
}

func TestNew_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Model.Provider = "carrier-pigeon" }},
		{"unknown policy", func(c *Config) { c.Planner.Readiness = "whenever" }},
		{"turns without count", func(c *Config) { c.Planner.Readiness = "turns" }},
		{"zero target", func(c *Config) { c.Planner.TargetCalories = 0 }},
		{"unknown store", func(c *Config) { c.Store.Driver = "tape" }},
		{"s3 without bucket", func(c *Config) { c.Store.Driver = "s3" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := mockConfig(t)
			tt.modify(&cfg)
			_, err := New(context.Background(), cfg, Options{MeterProvider: metricnoop.NewMeterProvider()})
			assert.Error(t, err)
		})
	}
}

func TestNewNotifier(t *testing.T) {
	assert.IsType(t, notify.Log{}, NewNotifier(mealchat.NotifyConfig{}))

	n := NewNotifier(mealchat.NotifyConfig{WebhookURL: "https://hooks.example.com/x", Channel: "#meals"})
	multi, ok := n.(notify.Multi)
	require.True(t, ok)
	assert.Len(t, multi, 2)
}

type countingTurnLogger struct {
	n int
}

func (c *countingTurnLogger) LogTurn(mealchat.TurnLog) error {
	c.n++
	return nil
}
