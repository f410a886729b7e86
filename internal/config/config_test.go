package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, SourceFile, cfg.Data.Source)
	assert.Equal(t, "https://api.brightsky.dev", cfg.Weather.BaseURL)
	assert.Equal(t, 30*time.Minute, cfg.Weather.CacheTTL)
	assert.Equal(t, 1, cfg.Forecast.Horizon)
	assert.Equal(t, 7, cfg.Forecast.HistoryDays)
	assert.False(t, cfg.Forecast.Interpolate)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATA_COMBINED_PATH", "/tmp/combined.csv.zst")
	t.Setenv("FORECAST_INTERPOLATE", "true")
	t.Setenv("WEATHER_CACHE_TTL", "5m")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/tmp/combined.csv.zst", cfg.Data.CombinedPath)
	assert.True(t, cfg.Forecast.Interpolate)
	assert.Equal(t, 5*time.Minute, cfg.Weather.CacheTTL)
}

func TestLoadConfig_ParseError(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "verbose"}, wantErr: true},
		{name: "bad source", env: map[string]string{"DATA_SOURCE": "s3"}, wantErr: true},
		{name: "postgres without password", env: map[string]string{"DATA_SOURCE": "postgres"}, wantErr: true},
		{name: "postgres with password", env: map[string]string{"DATA_SOURCE": "postgres", "DB_PASSWORD": "secret"}},
		{name: "idle above open", env: map[string]string{"DB_MAX_OPEN_CONNS": "2", "DB_MAX_IDLE_CONNS": "4"}, wantErr: true},
		{name: "zero horizon", env: map[string]string{"FORECAST_HORIZON": "0"}, wantErr: true},
		{name: "bad default date", env: map[string]string{"DASHBOARD_DEFAULT_DATE": "10.06.2021"}, wantErr: true},
		{name: "good default date", env: map[string]string{"DASHBOARD_DEFAULT_DATE": "2021-06-10"}},
		{name: "bad weather url", env: map[string]string{"WEATHER_BASE_URL": "not a url"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfig()
			require.NoError(t, err)

			err = cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "traffic", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=traffic sslmode=disable", db.DSN())
}

func TestPostgresConfig(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5433, MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: 30 * time.Minute}
	pg := db.PostgresConfig()
	assert.Equal(t, "db", pg.Host)
	assert.Equal(t, 10, pg.MaxOpenConns)
	assert.Equal(t, 5, pg.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, pg.ConnMaxLifetime)
}
