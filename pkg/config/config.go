// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Store, Kafka, Index, Search, Logging, Metrics) including
// the per-attribute analyzer pipelines the index is built from.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Index    IndexConfig    `yaml:"index"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings for the searcher service.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// StoreConfig selects the key-value store backend the index lives in.
type StoreConfig struct {
	// Backend is one of "redis", "postgres", or "memory".
	Backend string `yaml:"backend"`
}

// RedisConfig holds Redis connection parameters and query-cache settings.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds the change-stream broker and consumer settings.
type KafkaConfig struct {
	Brokers         []string      `yaml:"brokers"`
	ConsumerGroup   string        `yaml:"consumerGroup"`
	Topic           string        `yaml:"topic"`
	InvalidateTopic string        `yaml:"invalidateTopic"`
	BatchSize       int           `yaml:"batchSize"`
	BatchLinger     time.Duration `yaml:"batchLinger"`
}

// IndexConfig describes the indexed table: its name, the source collection's
// key schema, and every searchable attribute with its analyzer pipeline.
type IndexConfig struct {
	Table      string            `yaml:"table"`
	Key        KeySchemaConfig   `yaml:"key"`
	Attributes []AttributeConfig `yaml:"attributes"`
}

// KeySchemaConfig names the source collection's primary-key attributes.
// The partition attribute is required, the sort attribute optional.
type KeySchemaConfig struct {
	PartitionAttribute string `yaml:"partitionAttribute"`
	SortAttribute      string `yaml:"sortAttribute"`
}

// AttributeConfig maps a searchable attribute to its analyzer, storage short
// name, and default query-time boost.
type AttributeConfig struct {
	Name      string         `yaml:"name"`
	ShortName string         `yaml:"shortName"`
	Boost     float64        `yaml:"boost"`
	Analyzer  AnalyzerConfig `yaml:"analyzer"`
}

// AnalyzerConfig describes a character-filter → tokenizer → token-filter
// pipeline.
type AnalyzerConfig struct {
	CharFilters  []CharFilterConfig  `yaml:"charFilters"`
	Tokenizer    TokenizerConfig     `yaml:"tokenizer"`
	TokenFilters []TokenFilterConfig `yaml:"tokenFilters"`
}

// CharFilterConfig configures one character filter stage.
// Type is one of "normalize" (Form: nfc|nfd|nfkc|nfkd), "htmlStrip", or
// "patternReplace" (Pattern, Replacement).
type CharFilterConfig struct {
	Type        string `yaml:"type"`
	Form        string `yaml:"form"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// TokenizerConfig configures the single tokenizer stage.
// Type is one of "keyword", "delimiter" (Delimiter, empty = whitespace),
// "ngram" (MinGram, MaxGram), "path" (Delimiter), "unicode", or "morph".
type TokenizerConfig struct {
	Type      string `yaml:"type"`
	Delimiter string `yaml:"delimiter"`
	MinGram   int    `yaml:"minGram"`
	MaxGram   int    `yaml:"maxGram"`
}

// TokenFilterConfig configures one token filter stage.
// Type is one of "lowercase", "width", "stopwords" (Words), "baseform",
// "partOfSpeech" (PartsOfSpeech), or "stem" (Language, default english).
type TokenFilterConfig struct {
	Type          string   `yaml:"type"`
	Words         []string `yaml:"words"`
	PartsOfSpeech []string `yaml:"partsOfSpeech"`
	Language      string   `yaml:"language"`
}

// SearchConfig controls query execution defaults and limits.
type SearchConfig struct {
	MaxItems     int     `yaml:"maxItems"`
	MinScore     float64 `yaml:"minScore"`
	CacheEnabled bool    `yaml:"cacheEnabled"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural invariants that cannot be expressed in YAML:
// a partition key attribute must be named, attribute names and short names
// must be unique, and boosts must not be negative.
func (c *Config) Validate() error {
	if c.Index.Key.PartitionAttribute == "" {
		return fmt.Errorf("index.key.partitionAttribute is required")
	}
	names := make(map[string]struct{}, len(c.Index.Attributes))
	shorts := make(map[string]struct{}, len(c.Index.Attributes))
	for _, attr := range c.Index.Attributes {
		if attr.Name == "" {
			return fmt.Errorf("index.attributes: attribute with empty name")
		}
		if _, dup := names[attr.Name]; dup {
			return fmt.Errorf("index.attributes: duplicate attribute %q", attr.Name)
		}
		names[attr.Name] = struct{}{}
		short := attr.ShortName
		if short == "" {
			short = attr.Name
		}
		if _, dup := shorts[short]; dup {
			return fmt.Errorf("index.attributes: duplicate short name %q", short)
		}
		shorts[short] = struct{}{}
		if attr.Boost < 0 {
			return fmt.Errorf("index.attributes: attribute %q has negative boost", attr.Name)
		}
	}
	switch c.Store.Backend {
	case "redis", "postgres", "memory":
	default:
		return fmt.Errorf("store.backend must be redis, postgres, or memory, got %q", c.Store.Backend)
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Backend: "redis",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "streamsearch",
			User:            "streamsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:         []string{"localhost:9092"},
			ConsumerGroup:   "streamsearch-indexer",
			Topic:           "change-events",
			InvalidateTopic: "cache-invalidate",
			BatchSize:       100,
			BatchLinger:     250 * time.Millisecond,
		},
		Index: IndexConfig{
			Table: "search-index",
		},
		Search: SearchConfig{
			MaxItems:     100,
			MinScore:     0,
			CacheEnabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SS_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("SS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SS_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SS_KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("SS_KAFKA_GROUP"); v != "" {
		cfg.Kafka.ConsumerGroup = v
	}
	if v := os.Getenv("SS_INDEX_TABLE"); v != "" {
		cfg.Index.Table = v
	}
	if v := os.Getenv("SS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SS_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
