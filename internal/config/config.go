package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/domain"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendS3   = "s3"
	BackendHTTP = "http"
	BackendFile = "file"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	LogLevel  string
	LogFormat string
	// LogFile is the rotating log file; "-" disables file logging.
	LogFile         string
	ShutdownTimeout time.Duration

	// Remote store access.
	StoreBackend     string
	StoreRoot        string
	AWSRegion        string
	StoreEndpoint    string
	StoreTimeout     time.Duration
	RetryMaxElapsed  time.Duration
	FetchConcurrency int
	ChunkCacheSize   int
	MaxCells         int

	MetricsAddr string
	MetricsLog  string

	// Optional Kafka row sink; disabled when KafkaBrokers is empty.
	KafkaBrokers   []string
	KafkaSinkTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	storeTimeout, err := parseDuration("STORE_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	retryMaxElapsed, err := parseDuration("RETRY_MAX_ELAPSED", "2m")
	if err != nil {
		return nil, err
	}
	concurrency, err := parseInt("FETCH_CONCURRENCY", 8, 1)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseInt("CHUNK_CACHE_SIZE", 256, 0)
	if err != nil {
		return nil, err
	}
	maxCells, err := parseInt("MAX_CELLS", 50_000_000, 1)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:        strings.ToLower(sharedcfg.EnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(sharedcfg.EnvOrDefault("LOG_FORMAT", "text")),
		LogFile:         sharedcfg.EnvOrDefault("LOG_FILE", "nwm_retrospective.log"),
		ShutdownTimeout: shutdownTimeout,

		StoreBackend:     strings.ToLower(sharedcfg.EnvOrDefault("STORE_BACKEND", BackendS3)),
		StoreRoot:        os.Getenv("STORE_ROOT"),
		AWSRegion:        sharedcfg.EnvOrDefault("AWS_REGION", "us-east-1"),
		StoreEndpoint:    os.Getenv("STORE_ENDPOINT"),
		StoreTimeout:     storeTimeout,
		RetryMaxElapsed:  retryMaxElapsed,
		FetchConcurrency: concurrency,
		ChunkCacheSize:   cacheSize,
		MaxCells:         maxCells,

		MetricsAddr: os.Getenv("METRICS_ADDR"),
		MetricsLog:  sharedcfg.EnvOrDefault("METRICS_LOG", "metrics.csv"),

		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "nwm-retrospective-rows"),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	switch cfg.StoreBackend {
	case BackendS3, BackendHTTP:
	case BackendFile:
		if cfg.StoreRoot == "" {
			return nil, &domain.ConfigError{Key: "STORE_ROOT", Reason: "is required when STORE_BACKEND is file"}
		}
	default:
		return nil, &domain.ConfigError{Key: "STORE_BACKEND", Reason: "must be one of s3, http, file"}
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, &domain.ConfigError{Key: "LOG_LEVEL", Reason: "must be one of debug, info, warn, error"}
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, &domain.ConfigError{Key: "LOG_FORMAT", Reason: "must be json or text"}
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaSinkTopic == "" {
		return nil, &domain.ConfigError{Key: "KAFKA_SINK_TOPIC", Reason: "is required when KAFKA_BROKERS is set"}
	}

	return cfg, nil
}

// KafkaEnabled reports whether rows should also be published to Kafka.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, &domain.ConfigError{Key: key, Reason: "must be a positive duration"}
	}
	return d, nil
}

func parseInt(key string, def, minimum int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minimum {
		return 0, &domain.ConfigError{Key: key, Reason: "must be an integer >= " + strconv.Itoa(minimum)}
	}
	return n, nil
}
