// Package config provides unified configuration loading for the answer engine.
// Supports YAML files, a .env file, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the answer engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Vector        VectorConfig        `yaml:"vector"`
	Cache         CacheConfig         `yaml:"cache"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Generator     GeneratorConfig     `yaml:"generator"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Ingestion     IngestionConfig     `yaml:"ingestion"`
	Breaker       BreakerConfig       `yaml:"breaker"`
	Webhooks      WebhookConfig       `yaml:"webhooks"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnectAttempts int           `yaml:"connect_attempts"`
	ConnectBackoff  time.Duration `yaml:"connect_backoff"`
}

// VectorConfig holds vector index settings.
type VectorConfig struct {
	Adapter        string        `yaml:"adapter"` // memory or http
	URL            string        `yaml:"url"`
	APIKey         string        `yaml:"api_key"`
	Collection     string        `yaml:"collection"`
	Dimension      int           `yaml:"dimension"`
	ScoreThreshold float64       `yaml:"score_threshold"`
	Timeout        time.Duration `yaml:"timeout"`
	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory, redis, or none
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	ProviderURL     string        `yaml:"provider_url"`
	APIKey          string        `yaml:"api_key"`
	Model           string        `yaml:"model"`
	Dimension       int           `yaml:"dimension"`
	BatchTokenLimit int           `yaml:"batch_token_limit"`
	Timeout         time.Duration `yaml:"timeout"`
}

// GeneratorConfig holds LLM generator settings.
type GeneratorConfig struct {
	ProviderURL string        `yaml:"provider_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RetrievalConfig holds hybrid retrieval settings.
type RetrievalConfig struct {
	RRFK        int      `yaml:"rrf_k"`
	TopK        int      `yaml:"top_k"`
	CorpusLimit int      `yaml:"corpus_limit"`
	PolicyTerms []string `yaml:"policy_terms"`
}

// IngestionConfig holds ingestion pipeline settings.
type IngestionConfig struct {
	MaxFileBytes          int64  `yaml:"max_file_bytes"`
	ChunkTargetChars      int    `yaml:"chunk_target_chars"`
	ChunkOverlapSentences int    `yaml:"chunk_overlap_sentences"`
	StoragePath           string `yaml:"storage_path"`
}

// BreakerConfig holds circuit breaker settings shared by external dependencies.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
}

// WebhookConfig holds per-channel webhook secrets. An empty secret disables
// signature validation for that channel.
type WebhookConfig struct {
	WhatsAppSecret string `yaml:"whatsapp_secret"`
	TelegramSecret string `yaml:"telegram_secret"`
	TeamsSecret    string `yaml:"teams_secret"`
	VerifyToken    string `yaml:"verify_token"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8086,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			RequestTimeout:   60 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/answer-engine.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
				ConnectAttempts: 3,
				ConnectBackoff:  time.Second,
			},
		},
		Vector: VectorConfig{
			Adapter:        "memory",
			Collection:     "knowledge_chunks",
			Dimension:      256,
			ScoreThreshold: 0.3,
			Timeout:        10 * time.Second,
			RetryAttempts:  3,
			RetryDelay:     200 * time.Millisecond,
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        300 * time.Second,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Embedding: EmbeddingConfig{
			Model:           "text-embedding-3-small",
			Dimension:       256,
			BatchTokenLimit: 280000,
			Timeout:         30 * time.Second,
		},
		Generator: GeneratorConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.3,
			Timeout:     60 * time.Second,
		},
		Retrieval: RetrievalConfig{
			RRFK:        60,
			TopK:        10,
			CorpusLimit: 2000,
			PolicyTerms: []string{
				"currency", "conversion", "unwithdrawn", "withdrawn", "loan",
				"amount", "approved currency", "variable spread", "minimum", "maximum",
			},
		},
		Ingestion: IngestionConfig{
			MaxFileBytes:          10 << 20,
			ChunkTargetChars:      1400,
			ChunkOverlapSentences: 2,
			StoragePath:           "/tmp/answer-engine/documents",
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  60 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "answer-engine",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Vector.Adapter != "memory" && c.Vector.Adapter != "http" {
		return fmt.Errorf("invalid vector adapter: %s", c.Vector.Adapter)
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" && c.Cache.Driver != "none" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > 50 {
		return fmt.Errorf("retrieval top_k must be between 1 and 50")
	}

	if c.Ingestion.ChunkTargetChars < 100 {
		return fmt.Errorf("chunk_target_chars must be at least 100")
	}

	if c.Ingestion.MaxFileBytes <= 0 {
		return fmt.Errorf("max_file_bytes must be positive")
	}

	return nil
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// WebhookSecret returns the shared secret for a channel, or "".
func (c *Config) WebhookSecret(channel string) string {
	switch strings.ToLower(channel) {
	case "whatsapp":
		return c.Webhooks.WhatsAppSecret
	case "telegram":
		return c.Webhooks.TelegramSecret
	case "teams":
		return c.Webhooks.TeamsSecret
	}
	return ""
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("EMBEDDING_PROVIDER_URL"); v != "" {
		cfg.Embedding.ProviderURL = v
	}
	if v := os.Getenv("EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("EMBED_BATCH_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Embedding.BatchTokenLimit = n
		}
	}

	if v := os.Getenv("GENERATOR_PROVIDER_URL"); v != "" {
		cfg.Generator.ProviderURL = v
	}
	if v := os.Getenv("GENERATOR_API_KEY"); v != "" {
		cfg.Generator.APIKey = v
	}
	if v := os.Getenv("GENERATOR_MODEL"); v != "" {
		cfg.Generator.Model = v
	}
	if v := os.Getenv("GENERATOR_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Generator.Temperature = f
		}
	}

	if v := os.Getenv("VECTOR_INDEX_URL"); v != "" {
		cfg.Vector.Adapter = "http"
		cfg.Vector.URL = v
	}
	if v := os.Getenv("VECTOR_INDEX_API_KEY"); v != "" {
		cfg.Vector.APIKey = v
	}

	if v := os.Getenv("CACHE_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}
	if v := os.Getenv("CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.TTL = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("DOCUMENT_STORAGE_PATH"); v != "" {
		cfg.Ingestion.StoragePath = v
	}
	if v := os.Getenv("MAX_FILE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Ingestion.MaxFileBytes = n
		}
	}
	if v := os.Getenv("CHUNK_TARGET_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingestion.ChunkTargetChars = n
		}
	}
	if v := os.Getenv("CHUNK_OVERLAP_SENTENCES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingestion.ChunkOverlapSentences = n
		}
	}

	if v := os.Getenv("RRF_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.RRFK = n
		}
	}
	if v := os.Getenv("RETRIEVE_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.TopK = n
		}
	}
	if v := os.Getenv("CORPUS_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.CorpusLimit = n
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}

	if v := os.Getenv("WEBHOOK_SECRET_WHATSAPP"); v != "" {
		cfg.Webhooks.WhatsAppSecret = v
	}
	if v := os.Getenv("WEBHOOK_SECRET_TELEGRAM"); v != "" {
		cfg.Webhooks.TelegramSecret = v
	}
	if v := os.Getenv("WEBHOOK_SECRET_TEAMS"); v != "" {
		cfg.Webhooks.TeamsSecret = v
	}
	if v := os.Getenv("WEBHOOK_VERIFY_TOKEN"); v != "" {
		cfg.Webhooks.VerifyToken = v
	}
}
