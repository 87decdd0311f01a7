package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for our application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Business  BusinessConfig  `mapstructure:"business"`
	Health    HealthConfig    `mapstructure:"health"`
	Officers  OfficersConfig  `mapstructure:"officers"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	Env          string        `mapstructure:"env"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      string `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	Channel   string `mapstructure:"channel"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type SchedulerConfig struct {
	OverdueCron string `mapstructure:"overdue_cron"`
	Timezone    string `mapstructure:"timezone"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type BusinessConfig struct {
	AllowOverpayment bool `mapstructure:"allow_overpayment"`
	DefaultPageSize  int  `mapstructure:"default_page_size"`
	MaxPageSize      int  `mapstructure:"max_page_size"`
}

type HealthConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type OfficersConfig struct {
	Names string `mapstructure:"names"`
}

// setting binds a config key to its environment variable and default.
type setting struct {
	key      string
	env      string
	fallback any
}

var settings = []setting{
	{"server.port", "SERVER_PORT", "8080"},
	{"server.host", "SERVER_HOST", "0.0.0.0"},
	{"server.env", "ENV", "development"},
	{"server.read_timeout", "SERVER_READ_TIMEOUT", "15s"},
	{"server.write_timeout", "SERVER_WRITE_TIMEOUT", "15s"},

	{"database.driver", "DATABASE_DRIVER", "postgres"},
	{"database.url", "DATABASE_URL", ""},
	{"database.host", "DATABASE_HOST", "localhost"},
	{"database.port", "DATABASE_PORT", "5432"},
	{"database.name", "DATABASE_NAME", "loan_ledger"},
	{"database.user", "DATABASE_USER", "postgres"},
	{"database.password", "DATABASE_PASSWORD", ""},
	{"database.sslmode", "DATABASE_SSLMODE", "disable"},
	{"database.max_open_conns", "DATABASE_MAX_OPEN_CONNS", 25},
	{"database.max_idle_conns", "DATABASE_MAX_IDLE_CONNS", 5},
	{"database.conn_max_lifetime", "DATABASE_CONN_MAX_LIFETIME", "30m"},

	{"redis.enabled", "REDIS_ENABLED", true},
	{"redis.host", "REDIS_HOST", "localhost"},
	{"redis.port", "REDIS_PORT", "6379"},
	{"redis.password", "REDIS_PASSWORD", ""},
	{"redis.db", "REDIS_DB", 0},
	{"redis.channel", "REDIS_INVALIDATION_CHANNEL", "loan-ledger:invalidations"},
	{"redis.key_prefix", "REDIS_KEY_PREFIX", "loan-ledger:cache:"},

	{"scheduler.overdue_cron", "SCHEDULER_OVERDUE_CRON", "0 0 0 * * *"},
	{"scheduler.timezone", "SCHEDULER_TIMEZONE", "UTC"},

	{"logging.level", "LOG_LEVEL", "info"},
	{"logging.format", "LOG_FORMAT", "json"},

	{"business.allow_overpayment", "ALLOW_OVERPAYMENT", false},
	{"business.default_page_size", "DEFAULT_PAGE_SIZE", 10},
	{"business.max_page_size", "MAX_PAGE_SIZE", 100},

	{"health.timeout", "HEALTH_CHECK_TIMEOUT", "5s"},

	{"officers.names", "OFFICER_NAMES", ""},
}

// Load reads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	// Don't fail if .env file doesn't exist
	_ = godotenv.Load()

	v := viper.New()
	for _, s := range settings {
		v.SetDefault(s.key, s.fallback)
		if err := v.BindEnv(s.key, s.env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", s.env, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" && c.Database.Host == "" {
			return fmt.Errorf("DATABASE_URL or DATABASE_HOST is required")
		}
	case "memory":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be postgres or memory, got %q", c.Database.Driver)
	}

	if c.Business.DefaultPageSize <= 0 {
		return fmt.Errorf("DEFAULT_PAGE_SIZE must be greater than 0")
	}

	if c.Business.MaxPageSize < c.Business.DefaultPageSize {
		return fmt.Errorf("MAX_PAGE_SIZE must not be below DEFAULT_PAGE_SIZE")
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE must be a valid IANA zone: %w", err)
	}

	if c.Health.Timeout <= 0 {
		return fmt.Errorf("HEALTH_CHECK_TIMEOUT must be a positive duration")
	}

	return nil
}

// DSN returns the postgres connection string. DATABASE_URL wins when set.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// Location returns the scheduler time zone, UTC if it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// OfficerNames parses OFFICER_NAMES ("id=Display Name,id2=Other").
func (c *Config) OfficerNames() map[string]string {
	names := make(map[string]string)
	for _, pair := range strings.Split(c.Officers.Names, ",") {
		id, name, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		id, name = strings.TrimSpace(id), strings.TrimSpace(name)
		if id != "" && name != "" {
			names[id] = name
		}
	}
	return names
}
