package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "PRESSROOM"

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Postgres  PostgresConfig
	Milvus    MilvusConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Vector    VectorConfig
	Retrieval RetrievalConfig
	Ingestion IngestionConfig
	Quota     QuotaConfig
	RateLimit RateLimitConfig
	Limits    LimitsConfig
	Tracing   TracingConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	Development    bool
}

type SQLiteConfig struct {
	Path string
}

type PostgresConfig struct {
	DSN string
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
}

type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         int
	Password     string
	DB           int
	EmbeddingTTL int
}

type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
	EmbeddingModel string
}

// VectorConfig selects the semantic search strategy. Strategy is "json" for
// in-process cosine over stored JSON embeddings, or "native-vector" for a
// server-side similarity query against Backend.
type VectorConfig struct {
	Strategy      string
	Backend       string
	Metric        string
	Dimension     int
	JSONScanLimit int
}

type RetrievalConfig struct {
	Limit              int
	MaxChars           int
	MinScore           float64
	StageTimeoutMs     int
	BreakerFailures    int
	BreakerCooldownSec int
}

type IngestionConfig struct {
	ChunkSize int
}

type QuotaConfig struct {
	MonthlyTokenLimit int
}

type RateLimitConfig struct {
	WindowSec int
	MaxCalls  int
	Store     string
}

// LimitsConfig holds the tri-state switch shared by quota and rate limiting:
// "off" (limits enforced), "soft" (log only) or "full-bypass".
type LimitsConfig struct {
	Disable string
}

type TracingConfig struct {
	ExportIntervalSec int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// Load reads config.yaml (if present), a local .env file (if present) and
// PRESSROOM_* environment variables, in increasing priority.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pressroom")

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	var problems []string

	switch c.Vector.Strategy {
	case "json", "native-vector":
	default:
		problems = append(problems, fmt.Sprintf("vector.strategy must be json or native-vector, got %q", c.Vector.Strategy))
	}
	switch c.Vector.Backend {
	case "pgvector", "milvus":
	default:
		problems = append(problems, fmt.Sprintf("vector.backend must be pgvector or milvus, got %q", c.Vector.Backend))
	}
	switch c.Vector.Metric {
	case "cosine", "euclidean":
	default:
		problems = append(problems, fmt.Sprintf("vector.metric must be cosine or euclidean, got %q", c.Vector.Metric))
	}
	switch c.Limits.Disable {
	case "off", "soft", "full-bypass":
	default:
		problems = append(problems, fmt.Sprintf("limits.disable must be off, soft or full-bypass, got %q", c.Limits.Disable))
	}
	switch c.RateLimit.Store {
	case "memory", "redis":
	default:
		problems = append(problems, fmt.Sprintf("ratelimit.store must be memory or redis, got %q", c.RateLimit.Store))
	}
	if c.RateLimit.Store == "redis" && !c.Redis.Enabled {
		problems = append(problems, "ratelimit.store=redis requires redis.enabled")
	}
	if c.RateLimit.WindowSec <= 0 || c.RateLimit.MaxCalls <= 0 {
		problems = append(problems, "ratelimit.windowSec and ratelimit.maxCalls must be positive")
	}
	if c.Quota.MonthlyTokenLimit <= 0 {
		problems = append(problems, "quota.monthlyTokenLimit must be positive")
	}
	if c.Ingestion.ChunkSize <= 0 {
		problems = append(problems, "ingestion.chunkSize must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 60)
	v.SetDefault("server.writeTimeout", 120)
	v.SetDefault("server.bodyLimit", 10485760)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.development", false)

	v.SetDefault("sqlite.path", "./data/pressroom.db")

	v.SetDefault("postgres.dsn", "")

	v.SetDefault("milvus.endpoint", "localhost:19530")
	v.SetDefault("milvus.apiKey", "")
	v.SetDefault("milvus.collectionName", "pressroom_documents")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.embeddingTTL", 86400)

	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.baseURL", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.4)
	v.SetDefault("llm.maxTokens", 2048)
	v.SetDefault("llm.timeoutSec", 60)
	v.SetDefault("llm.embeddingModel", "text-embedding-3-small")

	v.SetDefault("vector.strategy", "json")
	v.SetDefault("vector.backend", "pgvector")
	v.SetDefault("vector.metric", "cosine")
	v.SetDefault("vector.dimension", 1536)
	v.SetDefault("vector.jsonScanLimit", 200)

	v.SetDefault("retrieval.limit", 5)
	v.SetDefault("retrieval.maxChars", 4000)
	v.SetDefault("retrieval.minScore", 0.0)
	v.SetDefault("retrieval.stageTimeoutMs", 5000)
	v.SetDefault("retrieval.breakerFailures", 5)
	v.SetDefault("retrieval.breakerCooldownSec", 60)

	v.SetDefault("ingestion.chunkSize", 2000)

	v.SetDefault("quota.monthlyTokenLimit", 200000)

	v.SetDefault("ratelimit.windowSec", 60)
	v.SetDefault("ratelimit.maxCalls", 60)
	v.SetDefault("ratelimit.store", "memory")

	v.SetDefault("limits.disable", "off")

	v.SetDefault("tracing.exportIntervalSec", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
