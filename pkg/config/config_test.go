package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("stockflow-orders", 8082)
	require.NoError(t, err)

	assert.Equal(t, "stockflow-orders", cfg.App.Name)
	assert.Equal(t, "stockflow_orders", cfg.DB.DBName)
	assert.Equal(t, "0.0.0.0:8082", cfg.HTTP.Addr())
	assert.Equal(t, 5*time.Second, cfg.Services.CallTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Cache.VolatileTTL)
	assert.Equal(t, 30*time.Minute, cfg.Cache.ReferenceTTL)
	assert.Equal(t, int64(10), cfg.Stock.DefaultMinQuantity)
	assert.Equal(t, time.UTC, cfg.App.Location())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("SERVICE_CALL_TIMEOUT", "3")
	t.Setenv("CACHE_TTL_VOLATILE", "90s")
	t.Setenv("OUTBOX_MAX_ATTEMPTS", "4")
	t.Setenv("APP_TIMEZONE", "America/Bogota")

	cfg, err := Load("stockflow-inventory", 8081)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 3*time.Second, cfg.Services.CallTimeout)
	assert.Equal(t, 90*time.Second, cfg.Cache.VolatileTTL)
	assert.Equal(t, 4, cfg.Outbox.MaxAttempts)
	assert.Equal(t, "America/Bogota", cfg.App.Timezone)
}

func TestLoad_RechazaTimeoutFueraDeRango(t *testing.T) {
	t.Setenv("SERVICE_CALL_TIMEOUT", "30s")
	_, err := Load("stockflow-gateway", 8080)
	assert.Error(t, err)
}

func TestDBConfig_ConnectionString(t *testing.T) {
	c := DBConfig{Host: "db", Port: 5432, User: "app", Password: "p@ss", DBName: "inv", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:p%40ss@db:5432/inv?sslmode=disable", c.ConnectionString())

	c.DatabaseURL = "postgres://x"
	assert.Equal(t, "postgres://x", c.ConnectionString())
}
