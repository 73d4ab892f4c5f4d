package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/Ramsey-B/juniper/pkg/database"
	"github.com/Ramsey-B/juniper/pkg/kafka"
	"github.com/Ramsey-B/juniper/pkg/processor"
	"github.com/Ramsey-B/juniper/pkg/redis"
	"github.com/Ramsey-B/juniper/pkg/routes"
	"github.com/Ramsey-B/juniper/pkg/salestax"
	"github.com/Ramsey-B/juniper/pkg/tracing"
	"github.com/Ramsey-B/juniper/pkg/utils"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                string        `env:"APP_NAME" env-default:"juniper-api" validate:"required"`
	Version                string        `env:"APP_VERSION" env-default:"dev"`
	Port                   int           `env:"PORT" env-default:"3000" validate:"min=1,max=65535"`
	LogLevel               string        `env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	PrettyLogs             bool          `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeout time.Duration `env:"HTTP_SERVER_WRITE_TIMEOUT" env-default:"10s"`
	HttpServerReadTimeout  time.Duration `env:"HTTP_SERVER_READ_TIMEOUT" env-default:"10s"`
	HttpServerIdleTimeout  time.Duration `env:"HTTP_SERVER_IDLE_TIMEOUT" env-default:"60s"`
	ReadHeaderTimeout      time.Duration `env:"HTTP_SERVER_READ_HEADER_TIMEOUT" env-default:"10s"`
	MaxHeaderBytes         int           `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"`
	BodyLimit              string        `env:"HTTP_SERVER_BODY_LIMIT" env-default:"2M"`
	AllowOrigins           []string      `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods           []string      `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST"`
	ShutdownTimeout        time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"15s"`
	StartupMaxAttempts     int           `env:"STARTUP_MAX_ATTEMPTS" env-default:"5" validate:"min=1"`

	// Database host. Corporation settings fall back to defaults when empty.
	DatabaseHost string `env:"DB_HOST" env-default:""`
	// Database port
	DatabasePort int `env:"DB_PORT" env-default:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" env-default:""`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" env-default:""`
	// Database name
	DatabaseName string `env:"DB_NAME" env-default:"juniper"`
	// Database SSL mode
	DatabaseSSLMode string `env:"DB_SSL_MODE" env-default:"disable"`
	// Max Open Conns
	DatabaseMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	// Max Idle Conns
	DatabaseMaxIdleConns int `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	// Conn Max Lifetime
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`
	// Database Migration Version, 0 migrates to the latest
	DatabaseMigrationVersion uint `env:"DB_MIGRATION_VERSION" env-default:"0"`
	// Database Migration Force
	DatabaseMigrationForce int `env:"DB_MIGRATION_FORCE" env-default:"0"`
	// Database Migration Auto Rollback
	DatabaseMigrationAutoRollback bool `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis host. Directory lookups are not cached and events are not
	// deduplicated when empty.
	RedisHost     string        `env:"REDIS_HOST" env-default:""`
	RedisPort     int           `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string        `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int           `env:"REDIS_DB" env-default:"0"`
	CacheTTL      time.Duration `env:"DIRECTORY_CACHE_TTL" env-default:"10m"`

	// Sales-tax service
	SalesTaxBaseURL         string        `env:"SALES_TAX_BASE_URL" env-default:"" validate:"omitempty,url"`
	SalesTaxAPIKey          string        `env:"SALES_TAX_API_KEY" env-default:""`
	SalesTaxTimeout         time.Duration `env:"SALES_TAX_TIMEOUT" env-default:"30s"`
	SalesTaxMaxIdleConns    int           `env:"SALES_TAX_MAX_IDLE_CONNS" env-default:"100"`
	SalesTaxIdleConnTimeout time.Duration `env:"SALES_TAX_IDLE_CONN_TIMEOUT" env-default:"90s"`
	SalesTaxRetryAttempts   uint          `env:"SALES_TAX_RETRY_ATTEMPTS" env-default:"3" validate:"min=1"`
	SalesTaxRetryInterval   time.Duration `env:"SALES_TAX_RETRY_INTERVAL" env-default:"200ms"`

	// Circuit breaker around the sales-tax service
	BreakerMaxRequests         uint32        `env:"BREAKER_MAX_REQUESTS" env-default:"1"`
	BreakerInterval            time.Duration `env:"BREAKER_INTERVAL" env-default:"60s"`
	BreakerTimeout             time.Duration `env:"BREAKER_TIMEOUT" env-default:"30s"`
	BreakerConsecutiveFailures uint32        `env:"BREAKER_CONSECUTIVE_FAILURES" env-default:"5" validate:"min=1"`

	// Kafka Consumer
	KafkaBrokers         []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaInputTopic      string   `env:"KAFKA_INPUT_TOPIC" env-default:"stripe-events"`
	KafkaConsumerGroup   string   `env:"KAFKA_CONSUMER_GROUP" env-default:"juniper-consumer"`
	KafkaConsumerEnabled bool     `env:"KAFKA_CONSUMER_ENABLED" env-default:"false"`
	KafkaStartFromOldest bool     `env:"KAFKA_START_FROM_OLDEST" env-default:"false"`

	// Kafka Producer
	KafkaCanonicalTopic   string        `env:"KAFKA_CANONICAL_TOPIC" env-default:"canonical-records"`
	KafkaTaxRequestTopic  string        `env:"KAFKA_TAX_REQUEST_TOPIC" env-default:"tax-requests"`
	KafkaCalculationTopic string        `env:"KAFKA_CALCULATION_TOPIC" env-default:"tax-calculations"`
	KafkaErrorTopic       string        `env:"KAFKA_ERROR_TOPIC" env-default:"juniper-errors"`
	KafkaBatchSize        int           `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout     time.Duration `env:"KAFKA_BATCH_TIMEOUT" env-default:"100ms"`
	KafkaRequiredAcks     int           `env:"KAFKA_REQUIRED_ACKS" env-default:"1" validate:"oneof=-1 0 1"`
	KafkaCompression      string        `env:"KAFKA_COMPRESSION" env-default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`

	// Processor
	ProcessorTimeout   time.Duration `env:"PROCESSOR_TIMEOUT" env-default:"30s"`
	ProcessorCalculate bool          `env:"PROCESSOR_CALCULATE" env-default:"false"`
	ProcessorDedupeTTL time.Duration `env:"PROCESSOR_DEDUPE_TTL" env-default:"24h"`

	// Tracing collector host:port. Spans are not exported when empty.
	TracingEndpoint string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:""`
	TracingInsecure bool          `env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"`
	TracingTimeout  time.Duration `env:"OTEL_EXPORTER_OTLP_TIMEOUT" env-default:"10s"`
}

// Load reads an optional .env file, then the environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if _, err := utils.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) DatabaseEnabled() bool {
	return c.DatabaseHost != ""
}

func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

func (c *Config) SalesTaxEnabled() bool {
	return c.SalesTaxBaseURL != ""
}

func (c *Config) Database() database.Config {
	return database.Config{
		Host:            c.DatabaseHost,
		Port:            c.DatabasePort,
		User:            c.DatabaseUserName,
		Password:        c.DatabasePassword,
		Name:            c.DatabaseName,
		SSLMode:         c.DatabaseSSLMode,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

func (c *Config) Migration(source fs.FS) *database.MigrationConfig {
	return &database.MigrationConfig{
		Source:       source,
		Dir:          ".",
		Version:      c.DatabaseMigrationVersion,
		Force:        c.DatabaseMigrationForce,
		AutoRollback: c.DatabaseMigrationAutoRollback,
	}
}

func (c *Config) Redis() redis.Config {
	return redis.Config{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func (c *Config) SalesTax() salestax.Config {
	cfg := salestax.DefaultConfig()
	cfg.BaseURL = c.SalesTaxBaseURL
	cfg.APIKey = c.SalesTaxAPIKey
	cfg.Timeout = c.SalesTaxTimeout
	cfg.MaxIdleConns = c.SalesTaxMaxIdleConns
	cfg.IdleConnTimeout = c.SalesTaxIdleConnTimeout
	cfg.Breaker = salestax.BreakerConfig{
		MaxRequests:         c.BreakerMaxRequests,
		Interval:            c.BreakerInterval,
		Timeout:             c.BreakerTimeout,
		ConsecutiveFailures: c.BreakerConsecutiveFailures,
	}
	cfg.Retry.MaxAttempts = c.SalesTaxRetryAttempts
	cfg.Retry.InitialInterval = c.SalesTaxRetryInterval
	return cfg
}

func (c *Config) KafkaConsumer() kafka.ConsumerConfig {
	cfg := kafka.DefaultConsumerConfig()
	cfg.Brokers = c.KafkaBrokers
	cfg.Topic = c.KafkaInputTopic
	cfg.GroupID = c.KafkaConsumerGroup
	if c.KafkaStartFromOldest {
		cfg.StartOffset = kafka.FirstOffset
	}
	return cfg
}

func (c *Config) KafkaProducer() kafka.ProducerConfig {
	cfg := kafka.DefaultProducerConfig()
	cfg.Brokers = c.KafkaBrokers
	cfg.Topic = c.KafkaCanonicalTopic
	cfg.BatchSize = c.KafkaBatchSize
	cfg.BatchTimeout = c.KafkaBatchTimeout
	cfg.RequiredAcks = c.KafkaRequiredAcks
	cfg.Compression = c.KafkaCompression
	return cfg
}

func (c *Config) Processor() processor.ProcessorConfig {
	return processor.ProcessorConfig{
		ProcessTimeout:   c.ProcessorTimeout,
		CanonicalTopic:   c.KafkaCanonicalTopic,
		TaxRequestTopic:  c.KafkaTaxRequestTopic,
		Calculate:        c.ProcessorCalculate && c.SalesTaxEnabled(),
		CalculationTopic: c.KafkaCalculationTopic,
		ErrorTopic:       c.KafkaErrorTopic,
		DedupeTTL:        c.ProcessorDedupeTTL,
	}
}

func (c *Config) Tracing() tracing.Config {
	return tracing.Config{
		ServiceName: c.AppName,
		Endpoint:    c.TracingEndpoint,
		Insecure:    c.TracingInsecure,
		Timeout:     c.TracingTimeout,
	}
}

func (c *Config) Server() routes.ServerConfig {
	return routes.ServerConfig{
		ServiceName:  c.AppName,
		AllowOrigins: c.AllowOrigins,
		AllowMethods: c.AllowMethods,
		BodyLimit:    c.BodyLimit,
	}
}
