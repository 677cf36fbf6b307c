package mealchat

import "time"

type ModelConfig struct {
	Provider     string        `env:"MODEL_PROVIDER,default=bedrock"`
	ModelID      string        `env:"MODEL_ID"`
	MaxTokens    int32         `env:"MAX_TOKENS,default=2048"`
	Temperature  float32       `env:"TEMPERATURE,default=0.2"`
	TopP         float32       `env:"TOP_P,default=0.9"`
	CallTimeout  time.Duration `env:"MODEL_CALL_TIMEOUT,default=30s"`
	GeminiAPIKey string        `env:"GEMINI_API_KEY"`
}

type PlannerConfig struct {
	Readiness      string  `env:"READINESS_POLICY,default=any"`
	ReadinessTurns int     `env:"READINESS_TURNS,default=3"`
	BatchSize      int     `env:"CANDIDATE_BATCH_SIZE,default=5"`
	TargetCalories float64 `env:"TARGET_CALORIES,default=2000"`
	TargetProtein  float64 `env:"TARGET_PROTEIN,default=150"`
	TargetCarbs    float64 `env:"TARGET_CARBS,default=200"`
	TargetFats     float64 `env:"TARGET_FATS,default=65"`
	// WriteTimeout bounds each fire-and-forget triage write.
	WriteTimeout time.Duration `env:"TRIAGE_WRITE_TIMEOUT,default=10s"`
}

type StoreConfig struct {
	Driver     string `env:"STORE_DRIVER,default=memory"`
	SQLitePath string `env:"SQLITE_PATH,default=mealchat.db"`
	S3Bucket   string `env:"STORE_S3_BUCKET"`
	S3Prefix   string `env:"STORE_S3_PREFIX,default=mealchat"`
}

type NotifyConfig struct {
	WebhookURL string `env:"NOTIFY_WEBHOOK_URL"`
	Channel    string `env:"NOTIFY_CHANNEL,default=#mealchat"`
}

type ServerConfig struct {
	Addr        string `env:"LISTEN_ADDR,default=:8080"`
	OtelEnabled bool   `env:"OTEL_ENABLED,default=false"`
	TurnLogDir  string `env:"TURN_LOG_DIR"`
}
