// Package config loads the process configuration from the environment.
//
// Values come from OS environment variables, falling back to a .env file in
// the working directory and finally to the defaults declared on the structs.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"traffic-platform/pkg/database"
)

// Data sources for the combined series
const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// Config is the top-level configuration shared by the binaries
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Logging   LoggingConfig
	Data      DataConfig
	Weather   WeatherConfig
	Forecast  ForecastConfig
	Dashboard DashboardConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `envconfig:"SERVER_PORT" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds Postgres connection and pool settings
type DatabaseConfig struct {
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432" validate:"min=1,max=65535"`
	User            string        `envconfig:"DB_USER" default:"traffic"`
	Password        string        `envconfig:"DB_PASSWORD"`
	Database        string        `envconfig:"DB_NAME" default:"traffic"`
	SSLMode         string        `envconfig:"DB_SSLMODE" default:"disable" validate:"oneof=disable require verify-ca verify-full"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"10" validate:"min=1"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5" validate:"min=0"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`
	ConnMaxIdleTime time.Duration `envconfig:"DB_CONN_MAX_IDLE_TIME" default:"5m"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
}

// DataConfig locates the raw exports, the combined series and the station table
type DataConfig struct {
	RawDir       string `envconfig:"DATA_RAW_DIR" default:"data/raw"`
	Pattern      string `envconfig:"DATA_PATTERN" default:"*.csv"`
	CombinedPath string `envconfig:"DATA_COMBINED_PATH" default:"data/combined.csv.gz" validate:"required"`
	StationsPath string `envconfig:"DATA_STATIONS_PATH" default:"data/Dauerzaehlstellen_latlon.csv" validate:"required"`
	Source       string `envconfig:"DATA_SOURCE" default:"file" validate:"oneof=file postgres"`
	Watch        bool   `envconfig:"DATA_WATCH" default:"true"`
	ReloadCron   string `envconfig:"DATA_RELOAD_CRON" default:"0 15 3 * * *"`
}

// WeatherConfig holds the forecast provider settings
type WeatherConfig struct {
	BaseURL    string        `envconfig:"WEATHER_BASE_URL" default:"https://api.brightsky.dev" validate:"required,url"`
	Timeout    time.Duration `envconfig:"WEATHER_TIMEOUT" default:"10s"`
	UserAgent  string        `envconfig:"WEATHER_USER_AGENT" default:"traffic-platform/1.0"`
	CacheSize  int           `envconfig:"WEATHER_CACHE_SIZE" default:"256" validate:"min=1"`
	CacheTTL   time.Duration `envconfig:"WEATHER_CACHE_TTL" default:"30m"`
	PurgeCron  string        `envconfig:"WEATHER_PURGE_CRON" default:"0 0 * * * *"`
	MaxRetries int           `envconfig:"WEATHER_MAX_RETRIES" default:"2" validate:"min=0,max=10"`
}

// ForecastConfig holds baseline forecaster settings
type ForecastConfig struct {
	Horizon     int  `envconfig:"FORECAST_HORIZON" default:"1" validate:"min=1"`
	HistoryDays int  `envconfig:"FORECAST_HISTORY_DAYS" default:"7" validate:"min=1"`
	Interpolate bool `envconfig:"FORECAST_INTERPOLATE" default:"false"`
}

// DashboardConfig holds dashboard defaults
type DashboardConfig struct {
	// DefaultDate in YYYY-MM-DD; empty means the day after the last observation
	DefaultDate string `envconfig:"DASHBOARD_DEFAULT_DATE" validate:"omitempty,datetime=2006-01-02"`
}

// LoadConfig reads the configuration from the environment and an optional .env file
func LoadConfig() (*Config, error) {
	// absent .env is fine; existing variables are not overridden
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks field constraints and cross-field rules
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("configuration validation failed: DB_MAX_IDLE_CONNS (%d) exceeds DB_MAX_OPEN_CONNS (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Data.Source == SourcePostgres && c.Database.Password == "" {
		return fmt.Errorf("configuration validation failed: DB_PASSWORD is required when DATA_SOURCE=postgres")
	}

	return nil
}

// PostgresConfig converts the settings into a pkg/database pool configuration
func (c *DatabaseConfig) PostgresConfig() *database.Config {
	return &database.Config{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		Database:        c.Database,
		SSLMode:         c.SSLMode,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
	}
}

// DSN returns a lib/pq connection string
func (c *DatabaseConfig) DSN() string {
	return c.PostgresConfig().DSN()
}
