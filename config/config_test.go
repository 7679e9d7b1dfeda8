package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "APP_ENV", "DB_DRIVER", "DB_PATH", "DB_MAX_CONNS", "DB_MAX_CONN_LIFETIME", "LOG_LEVEL", "LOG_FORMAT", "CORS_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.Driver)
	assert.Equal(t, "lending.db", cfg.DBPath)
	assert.Equal(t, int32(10), cfg.DBMaxConns)
	assert.Equal(t, 30*time.Minute, cfg.DBMaxConnLifetime)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.NotEmpty(t, cfg.CORSOrigins)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/lending")
	t.Setenv("DB_MAX_CONNS", "25")
	t.Setenv("DB_MAX_CONN_LIFETIME", "5m")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")

	cfg := Load()

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.Driver)
	assert.Equal(t, "postgres://u:p@db:5432/lending", cfg.DatabaseURL)
	assert.Equal(t, int32(25), cfg.DBMaxConns)
	assert.Equal(t, 5*time.Minute, cfg.DBMaxConnLifetime)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	require.NoError(t, cfg.Validate())
}

func TestLoad_BadNumbersFallBack(t *testing.T) {
	t.Setenv("PORT", "eighty")
	t.Setenv("DB_MAX_CONN_LIFETIME", "forever")

	cfg := Load()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30*time.Minute, cfg.DBMaxConnLifetime)
}

func TestValidate(t *testing.T) {
	base := Config{Port: 8080, Driver: DriverMemory}
	assert.NoError(t, base.Validate())

	bad := base
	bad.Driver = "mongo"
	assert.Error(t, bad.Validate())

	bad = base
	bad.Port = 70000
	assert.Error(t, bad.Validate())

	bad = base
	bad.Driver, bad.DBPath = DriverSQLite, ""
	assert.Error(t, bad.Validate())

	bad = base
	bad.Driver, bad.DatabaseURL = DriverPostgres, ""
	assert.Error(t, bad.Validate())
}

func TestNewLogger(t *testing.T) {
	text := Config{LogLevel: "debug", LogFormat: "text", Env: "local"}.NewLogger()
	assert.Equal(t, logrus.DebugLevel, text.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, text.Formatter)

	prod := Config{LogLevel: "nonsense", Env: "production"}.NewLogger()
	assert.Equal(t, logrus.InfoLevel, prod.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, prod.Formatter)
}
