package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment names
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	RabbitMQ RabbitMQConfig
	SMTP     SMTPConfig
	Alerts   AlertsConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
	SiteBase     string        `mapstructure:"site_base"`
}

// DatabaseConfig holds storage configuration. Driver selects between the
// CSV table store ("csv") and PostgreSQL ("postgres").
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DataDir         string        `mapstructure:"data_dir"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Validate checks that the storage configuration is usable in the given environment.
func (c *DatabaseConfig) Validate(environment string) error {
	switch c.Driver {
	case "csv":
		if c.DataDir == "" {
			return errors.New("LIFETAG_DATABASE_DATA_DIR required when driver is csv")
		}
	case "postgres":
		if environment == EnvProduction || environment == EnvStaging {
			if c.Host == "" || c.Host == "localhost" {
				return errors.New("LIFETAG_DATABASE_HOST must be set to a non-localhost value in " + environment)
			}
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Driver)
	}
	return nil
}

// RabbitMQConfig holds RabbitMQ connection configuration.
// An empty URL disables event publishing.
type RabbitMQConfig struct {
	URL            string        `mapstructure:"url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	MaxRetries     int           `mapstructure:"max_retries"`
	PrefetchCount  int           `mapstructure:"prefetch_count"`
}

// SMTPConfig holds outbound mail configuration.
// With an empty Host the service logs messages instead of sending them.
type SMTPConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	FromEmail     string        `mapstructure:"from_email"`
	PharmacyEmail string        `mapstructure:"pharmacy_email"`
	AdminEmail    string        `mapstructure:"admin_email"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// AlertsConfig holds the alert engine thresholds and cadence.
type AlertsConfig struct {
	ExpiryThresholdDays int           `mapstructure:"expiry_threshold_days"`
	LowStockThreshold   int           `mapstructure:"low_stock_threshold"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
	RenotifyInterval    time.Duration `mapstructure:"renotify_interval"`
	DispatchQueueSize   int           `mapstructure:"dispatch_queue_size"`
	DispatchWorkers     int           `mapstructure:"dispatch_workers"`
}

// Load loads configuration from environment and config files with
// development defaults applied.
func Load(serviceName string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("LIFETAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(serviceName)
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/lifetag")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadWithValidation loads configuration and validates it for the current
// environment. Use this in service main() for fail-fast behavior.
func LoadWithValidation(serviceName string) (*Config, error) {
	cfg, err := Load(serviceName)
	if err != nil {
		return nil, err
	}

	if err := cfg.Database.Validate(cfg.Server.Environment); err != nil {
		return nil, fmt.Errorf("database configuration error: %w", err)
	}

	if cfg.Server.Environment == EnvProduction || cfg.Server.Environment == EnvStaging {
		if cfg.SMTP.Host == "" {
			return nil, errors.New("LIFETAG_SMTP_HOST must be set in " + cfg.Server.Environment)
		}
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.site_base", "http://localhost:8080")

	v.SetDefault("database.driver", "csv")
	v.SetDefault("database.data_dir", "./data")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "lifetag")
	v.SetDefault("database.password", "devpassword")
	v.SetDefault("database.database", "lifetag_pharmacy")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.reconnect_delay", 5*time.Second)
	v.SetDefault("rabbitmq.max_retries", 5)
	v.SetDefault("rabbitmq.prefetch_count", 10)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.user", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from_email", "alerts@lifetag.local")
	v.SetDefault("smtp.pharmacy_email", "pharmacy@lifetag.local")
	v.SetDefault("smtp.admin_email", "")
	v.SetDefault("smtp.timeout", 20*time.Second)

	v.SetDefault("alerts.expiry_threshold_days", 15)
	v.SetDefault("alerts.low_stock_threshold", 5)
	v.SetDefault("alerts.sweep_interval", 24*time.Hour)
	v.SetDefault("alerts.renotify_interval", 168*time.Hour)
	v.SetDefault("alerts.dispatch_queue_size", 256)
	v.SetDefault("alerts.dispatch_workers", 2)
}
