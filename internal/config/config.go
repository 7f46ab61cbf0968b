package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "DOCQA"

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`

	ChunkSize     int `envconfig:"CHUNK_SIZE" default:"500"`
	ChunkOverlap  int `envconfig:"CHUNK_OVERLAP" default:"50"`
	MinChunkChars int `envconfig:"MIN_CHUNK_CHARS" default:"50"`

	DefaultTopK       int `envconfig:"DEFAULT_TOP_K" default:"5"`
	CrossDocumentTopK int `envconfig:"CROSS_DOCUMENT_TOP_K" default:"8"`

	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	EmbeddingBatchSize  int    `envconfig:"EMBEDDING_BATCH_SIZE" default:"32"`
	ChatModel           string `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`

	SnapshotDir      string        `envconfig:"SNAPSHOT_DIR" default:"data"`
	SnapshotInterval time.Duration `envconfig:"SNAPSHOT_INTERVAL" default:"5s"`

	S3Endpoint     string `envconfig:"S3_ENDPOINT"`
	S3AccessKey    string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey    string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket       string `envconfig:"S3_BUCKET" default:"docqa-indices"`
	S3Region       string `envconfig:"S3_REGION" default:"us-east-1"`
	S3UsePathStyle bool   `envconfig:"S3_USE_PATH_STYLE" default:"true"`

	// DatabaseURL enables the Postgres document catalog when set.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	MaxUploadBytes int64 `envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`
}

// Load reads .env if present, then the DOCQA_* environment, and validates
// the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate fails fast on settings the services would reject later.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return domain.Wrap(domain.ErrInvalidChunkConfig,
			fmt.Errorf("CHUNK_SIZE=%d CHUNK_OVERLAP=%d", c.ChunkSize, c.ChunkOverlap))
	}
	if c.DefaultTopK <= 0 || c.CrossDocumentTopK <= 0 {
		return domain.NewDomainError(domain.ErrCodeConfiguration, "top-k settings must be positive")
	}
	if c.SnapshotInterval <= 0 {
		return domain.NewDomainError(domain.ErrCodeConfiguration, "SNAPSHOT_INTERVAL must be positive")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration, "invalid LOG_LEVEL", err)
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// TracesSampleRate samples everything in development and 10% elsewhere.
func (c *Config) TracesSampleRate() float64 {
	if c.Environment == "development" {
		return 1.0
	}
	return 0.1
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT. DEBUG
// forces debug level.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	if c.Debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(s))
	return level, err
}
