package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/usageline/usageline/internal/types"
)

type Configuration struct {
	Deployment  DeploymentConfig  `validate:"required"`
	Server      ServerConfig      `validate:"required"`
	Postgres    PostgresConfig    `validate:"required"`
	Redis       RedisConfig       `validate:"required"`
	Logging     LoggingConfig     `validate:"required"`
	API         APIConfig         `validate:"required"`
	Processor   ProcessorConfig   `validate:"required"`
	Aggregation AggregationConfig `validate:"required"`
	Retention   RetentionConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type ServerConfig struct {
	Address string `validate:"required"`
}

type PostgresConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	MaxOpenConn int `mapstructure:"max_open_conn"`
	MaxIdleConn int `mapstructure:"max_idle_conn"`
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type LoggingConfig struct {
	Level  types.LogLevel  `validate:"required"`
	Format types.LogFormat `mapstructure:"format"`
}

type APIConfig struct {
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
	RateLimitBurst     int `mapstructure:"rate_limit_burst"`
	MaxBatchSize       int `mapstructure:"max_batch_size"`
}

type ProcessorConfig struct {
	BatchSize          int `mapstructure:"batch_size"`
	PopTimeoutSeconds  int `mapstructure:"pop_timeout_seconds"`
	MaxRetries         int `mapstructure:"max_retries"`
	WorkerCount        int `mapstructure:"worker_count"`
	PublishMaxAttempts int `mapstructure:"publish_max_attempts"`
}

type AggregationConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
	TopUsersPerCell int `mapstructure:"top_users_per_cell"`
	TopUsersBilling int `mapstructure:"top_users_billing"`
}

type RetentionConfig struct {
	EventDays     int `mapstructure:"event_days"`
	AggregateDays int `mapstructure:"aggregate_days"`
}

func NewConfig() (*Configuration, error) {
	// Best effort .env load for local development
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/usageline")

	v.SetEnvPrefix("USAGELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", types.ModeLocal)
	v.SetDefault("server.address", "0.0.0.0:8000")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "usageline")
	v.SetDefault("postgres.password", "usageline")
	v.SetDefault("postgres.dbname", "usageline")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conn", 20)
	v.SetDefault("postgres.max_idle_conn", 10)

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("logging.level", types.LogLevelInfo)
	v.SetDefault("logging.format", types.LogFormatJSON)

	v.SetDefault("api.rate_limit_per_minute", 1000)
	v.SetDefault("api.rate_limit_burst", 100)
	v.SetDefault("api.max_batch_size", 1000)

	v.SetDefault("processor.batch_size", 10)
	v.SetDefault("processor.pop_timeout_seconds", 30)
	v.SetDefault("processor.max_retries", 3)
	v.SetDefault("processor.worker_count", 1)
	v.SetDefault("processor.publish_max_attempts", 3)

	v.SetDefault("aggregation.interval_seconds", 300)
	v.SetDefault("aggregation.top_users_per_cell", 100)
	v.SetDefault("aggregation.top_users_billing", 50)

	v.SetDefault("retention.event_days", 365)
	v.SetDefault("retention.aggregate_days", 1095)
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts or other non-web applications
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelDebug, Format: types.LogFormatConsole},
		API:        APIConfig{RateLimitPerMinute: 1000, RateLimitBurst: 100, MaxBatchSize: 1000},
		Processor:  ProcessorConfig{BatchSize: 10, PopTimeoutSeconds: 30, MaxRetries: 3, WorkerCount: 1, PublishMaxAttempts: 3},
		Aggregation: AggregationConfig{
			IntervalSeconds: 300,
			TopUsersPerCell: 100,
			TopUsersBilling: 50,
		},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}
