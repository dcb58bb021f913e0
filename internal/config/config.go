// Package config provides configuration management for the listing service.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "DISCOVERY"

// Config holds all configuration for the listing service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Listing contains pagination and geographic radius settings.
	Listing ListingConfig `mapstructure:"listing"`
	// Ranking contains recommendation score weights.
	Ranking RankingConfig `mapstructure:"ranking"`
	// RateLimit contains the per-client limiter for mutation endpoints.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	// Kafka contains the review event consumer settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is read from DISCOVERY_DATABASE_PASSWORD only.
	Password string `mapstructure:"-"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool (default: 30).
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open (default: 5).
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace"`
}

// ListingConfig holds listing engine settings.
type ListingConfig struct {
	// DefaultPageSize is used when a request does not ask for a page size.
	DefaultPageSize int `mapstructure:"default_page_size"`
	// MaxPageSize caps the requested page size.
	MaxPageSize int `mapstructure:"max_page_size"`
	// ImplicitRadiusKm bounds located requests without search text or region.
	ImplicitRadiusKm float64 `mapstructure:"implicit_radius_km"`
	// DistanceRadiusKm bounds explicit distance sorts.
	DistanceRadiusKm float64 `mapstructure:"distance_radius_km"`
	// MaxSearchTerms caps the number of free-text terms.
	MaxSearchTerms int `mapstructure:"max_search_terms"`
	// ReviewPageSize is the default review feed page size.
	ReviewPageSize int `mapstructure:"review_page_size"`
}

// RankingConfig holds recommendation score weights.
type RankingConfig struct {
	// Shrinkage is the Bayesian prior strength M.
	Shrinkage float64 `mapstructure:"shrinkage"`
	// Popularity is W_POP.
	Popularity float64 `mapstructure:"popularity"`
	// CohortShrinkage is M_COHORT.
	CohortShrinkage float64 `mapstructure:"cohort_shrinkage"`
	// CohortRating is W_COHORT_R.
	CohortRating float64 `mapstructure:"cohort_rating"`
	// CohortPopularity is W_COHORT_POP.
	CohortPopularity float64 `mapstructure:"cohort_popularity"`
	// CalibrationFile optionally overrides the weights from a JSON file.
	CalibrationFile string `mapstructure:"calibration_file"`
}

// RateLimitConfig holds the per-client token bucket settings.
type RateLimitConfig struct {
	// Enabled turns the limiter on for mutation endpoints.
	Enabled bool `mapstructure:"enabled"`
	// RequestsPerSecond is the sustained rate per client.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	// Burst is the bucket size per client.
	Burst int `mapstructure:"burst"`
	// ClientTTL evicts idle client buckets.
	ClientTTL time.Duration `mapstructure:"client_ttl"`
}

// KafkaConfig holds review event consumer settings.
type KafkaConfig struct {
	// Enabled controls whether the worker consumes review events.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic carries review lifecycle events.
	Topic string `mapstructure:"topic"`
	// GroupID is the consumer group.
	GroupID string `mapstructure:"group_id"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: params.Encode(),
	}
	return u.String()
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/listing-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Brokers arrive as a comma separated string from the environment.
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.Database.Password = os.Getenv(EnvPrefix + "_DATABASE_PASSWORD")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "discovery")
	v.SetDefault("database.name", "restaurant_discovery")
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 30)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "listing_service")

	// Listing defaults
	v.SetDefault("listing.default_page_size", 20)
	v.SetDefault("listing.max_page_size", 50)
	v.SetDefault("listing.implicit_radius_km", 10.0)
	v.SetDefault("listing.distance_radius_km", 5.0)
	v.SetDefault("listing.max_search_terms", 5)
	v.SetDefault("listing.review_page_size", 5)

	// Ranking defaults
	v.SetDefault("ranking.shrinkage", 20.0)
	v.SetDefault("ranking.popularity", 0.05)
	v.SetDefault("ranking.cohort_shrinkage", 15.0)
	v.SetDefault("ranking.cohort_rating", 0.15)
	v.SetDefault("ranking.cohort_popularity", 0.02)
	v.SetDefault("ranking.calibration_file", "")

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 5.0)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("rate_limit.client_ttl", "10m")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "review-events")
	v.SetDefault("kafka.group_id", "listing-service")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	// Validate database config
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate listing config
	if c.Listing.DefaultPageSize <= 0 {
		return fmt.Errorf("listing default_page_size must be positive")
	}
	if c.Listing.MaxPageSize < c.Listing.DefaultPageSize {
		return fmt.Errorf("listing max_page_size (%d) must be >= default_page_size (%d)",
			c.Listing.MaxPageSize, c.Listing.DefaultPageSize)
	}
	if c.Listing.ImplicitRadiusKm < 0 || c.Listing.DistanceRadiusKm <= 0 {
		return fmt.Errorf("listing radii must be positive")
	}
	if c.Listing.MaxSearchTerms <= 0 {
		return fmt.Errorf("listing max_search_terms must be positive")
	}
	if c.Listing.ReviewPageSize <= 0 {
		return fmt.Errorf("listing review_page_size must be positive")
	}

	// Validate ranking config
	if c.Ranking.Shrinkage <= 0 || c.Ranking.CohortShrinkage <= 0 {
		return fmt.Errorf("ranking shrinkage strengths must be positive")
	}
	if c.Ranking.Popularity < 0 || c.Ranking.CohortRating < 0 || c.Ranking.CohortPopularity < 0 {
		return fmt.Errorf("ranking weights must not be negative")
	}

	// Validate rate limit config
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit requires positive requests_per_second and burst")
	}

	// Validate kafka config
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" || c.Kafka.GroupID == "") {
		return fmt.Errorf("kafka brokers, topic and group_id are required when kafka is enabled")
	}

	return nil
}
