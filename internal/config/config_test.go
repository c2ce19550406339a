package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	for k, v := range map[string]string{
		"APP_ENV":                   "test",
		"APP_PORT":                  "8080",
		"DB_USER":                   "warwickgg",
		"DB_HOST":                   "localhost",
		"DB_PORT":                   "3306",
		"DB_NAME":                   "warwickgg",
		"JWT_SECRET":                "jwt-secret",
		"ACCESS_TOKEN_TTL_MIN":      "15",
		"REFRESH_TOKEN_TTL_DAYS":    "30",
		"BCRYPT_COST":               "4",
		"CHECKOUT_REFERENCE_SECRET": "ref-secret",
	} {
		t.Setenv(k, v)
	}
}

func TestLoad(t *testing.T) {
	setRequired(t)
	t.Setenv("UWCS_API_KEY", "uwcs-key")
	t.Setenv("PAYMENT_WEBHOOK_TOLERANCE", "2m")
	t.Setenv("WORKER_CONCURRENCY", "")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15, cfg.AccessTTLMin)
	assert.Equal(t, "uwcs-key", cfg.MembershipKeys["UWCS"])
	assert.Equal(t, 2*time.Minute, cfg.WebhookTolerance)
	assert.Equal(t, 5, cfg.WorkerConcurrency)
	assert.False(t, cfg.IsProd())
}

func TestLoad_ReportsEveryProblem(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_NAME", "")
	t.Setenv("BCRYPT_COST", "high")

	_, err := Load()

	require.Error(t, err)
	assert.ErrorContains(t, err, "JWT_SECRET")
	assert.ErrorContains(t, err, "DB_NAME")
	assert.ErrorContains(t, err, `invalid int for BCRYPT_COST: "high"`)
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("WARWICKGG_DOTENV_TEST=from-file\nAPP_PORT=9999\n"), 0o600))
	t.Setenv("APP_PORT", "8080")
	t.Cleanup(func() { os.Unsetenv("WARWICKGG_DOTENV_TEST") })

	require.NoError(t, LoadDotenv(path, filepath.Join(dir, "missing.env")))

	assert.Equal(t, "from-file", os.Getenv("WARWICKGG_DOTENV_TEST"))
	assert.Equal(t, "8080", os.Getenv("APP_PORT"), "real environment wins")
}

func TestLoadRateLimitConfig_Clamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_SIGNUP_CAPACITY", "-3")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	t.Setenv("RATE_LIMIT_ENABLED", "off")

	rl := LoadRateLimitConfig()

	assert.False(t, rl.Enabled)
	assert.Equal(t, 1, rl.Capacity)
	assert.Equal(t, 1, rl.SignupCapacity)
	assert.Equal(t, 10*time.Second, rl.TTL)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head ,")
	t.Setenv("CACHE_TTL", "1m")

	c := LoadCacheConfig()

	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, c.Methods)
	assert.Equal(t, time.Minute, c.TTL)
}

func TestLoadRedisConfig(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("REDIS_HOST", "")
	t.Setenv("REDIS_PORT", "")
	assert.Equal(t, "cache:6380", LoadRedisConfig().Addr)

	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("REDIS_TLS", "true")
	rc := LoadRedisConfig()
	assert.Equal(t, "redis:6379", rc.Addr)
	assert.NotNil(t, rc.AsynqOpt().TLSConfig)
}
