package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"trivia-forge"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Postgres   Postgres
	Redis      Redis
	LLM        LLM
	Preload    Preload
	Generation Generation
	History    History
}

// Postgres captures connection info for the SQL database.
type Postgres struct {
	Host     string `env:"PG_HOST,notEmpty"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER,notEmpty"`
	Password string `env:"PG_PASSWORD,notEmpty"`
	Database string `env:"PG_DATABASE,notEmpty"`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
}

// Redis holds the question cache configuration.
type Redis struct {
	Addr      string        `env:"REDIS_ADDR,notEmpty"`
	DB        int           `env:"REDIS_DB" envDefault:"0"`
	PoolSize  int           `env:"REDIS_POOL_SIZE" envDefault:"20"`
	KeyPrefix string        `env:"REDIS_CACHE_PREFIX" envDefault:"qcache"`
	EntryTTL  time.Duration `env:"REDIS_CACHE_TTL" envDefault:"6h"`
}

// LLM configures providers, the model allow-list and the shared call budget.
type LLM struct {
	GeminiAPIKey   string   `env:"GEMINI_API_KEY"`
	GeminiModels   []string `env:"LLM_GEMINI_MODELS" envSeparator:"," envDefault:"gemini-2.5-flash-lite,gemini-2.5-flash,gemini-2.0-flash-lite,gemini-2.0-flash,gemma-3-27b-it"`
	OpenAIBaseURL  string   `env:"OPENAI_BASE_URL"`
	OpenAIAPIKey   string   `env:"OPENAI_API_KEY"`
	OpenAIModels   []string `env:"LLM_OPENAI_MODELS" envSeparator:","`
	ModelLanguages []string `env:"LLM_MODEL_LANGUAGES" envSeparator:"," envDefault:"pl,en"`
	FallbackModel  string   `env:"LLM_FALLBACK_MODEL" envDefault:"gemini-2.0-flash"`

	MaxConcurrentCalls int           `env:"LLM_MAX_CONCURRENT_CALLS" envDefault:"4"`
	CallsPerWindow     int           `env:"LLM_CALLS_PER_WINDOW" envDefault:"15"`
	RateWindow         time.Duration `env:"LLM_RATE_WINDOW" envDefault:"60s"`
	CallTimeout        time.Duration `env:"LLM_CALL_TIMEOUT" envDefault:"40s"`
	RateLimitRetries   int           `env:"LLM_RATE_LIMIT_RETRIES" envDefault:"3"`
	BackoffBase        time.Duration `env:"LLM_BACKOFF_BASE" envDefault:"2s"`
	AuditCapacity      int           `env:"LLM_AUDIT_CAPACITY" envDefault:"50"`
}

// Preload governs the speculative background producer.
type Preload struct {
	CategoryQuota         int           `env:"PRELOAD_CATEGORY_QUOTA" envDefault:"2"`
	MaxConcurrentSessions int           `env:"PRELOAD_MAX_CONCURRENT_SESSIONS" envDefault:"2"`
	MinInterval           time.Duration `env:"PRELOAD_MIN_INTERVAL" envDefault:"5s"`
	AttemptTimeout        time.Duration `env:"PRELOAD_ATTEMPT_TIMEOUT" envDefault:"30s"`
	Temperature           float32       `env:"PRELOAD_TEMPERATURE" envDefault:"1.2"`
	RoundPacing           time.Duration `env:"PRELOAD_ROUND_PACING" envDefault:"500ms"`
	MaxRounds             int           `env:"PRELOAD_MAX_ROUNDS" envDefault:"8"`
}

// Generation configures the on-demand request path.
type Generation struct {
	PreloadWait     time.Duration `env:"GENERATION_PRELOAD_WAIT" envDefault:"20s"`
	Attempts        int           `env:"GENERATION_ATTEMPTS" envDefault:"3"`
	RetryDelay      time.Duration `env:"GENERATION_RETRY_DELAY" envDefault:"1s"`
	Temperature     float32       `env:"GENERATION_TEMPERATURE" envDefault:"1.2"`
	ContentTemp     float32       `env:"GENERATION_CONTENT_TEMPERATURE" envDefault:"1.0"`
	ReuseCooldown   time.Duration `env:"GENERATION_REUSE_COOLDOWN" envDefault:"1h"`
	ReuseCandidates int           `env:"GENERATION_REUSE_CANDIDATES" envDefault:"5"`
	TemplatePath    string        `env:"PROMPT_TEMPLATE_PATH"`
}

// History bounds the per-category repetition memory.
type History struct {
	SubcategoryCapacity int `env:"HISTORY_SUBCATEGORY_CAPACITY" envDefault:"15"`
	EntityCapacity      int `env:"HISTORY_ENTITY_CAPACITY" envDefault:"25"`
	MaxCategories       int `env:"HISTORY_MAX_CATEGORIES" envDefault:"200"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: false}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.LLM.GeminiAPIKey == "" && cfg.LLM.OpenAIBaseURL == "" {
		return nil, fmt.Errorf("parse config: set GEMINI_API_KEY or OPENAI_BASE_URL")
	}
	return cfg, nil
}
