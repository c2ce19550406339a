// Package config loads application configuration from the environment.
// A .env file in the working directory is read first when present; real
// environment variables always win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env            string // APP_ENV (dev, test, prod)
	Port           string // APP_PORT
	DBUser         string // DB_USER
	DBPass         string // DB_PASS (empty allowed)
	DBHost         string // DB_HOST
	DBPort         string // DB_PORT
	DBName         string // DB_NAME
	JWTSecret      string // JWT_SECRET, signs access tokens
	AccessTTLMin   int    // ACCESS_TOKEN_TTL_MIN
	RefreshTTLDays int    // REFRESH_TOKEN_TTL_DAYS
	BcryptCost     int    // BCRYPT_COST

	ReferenceSecret string // CHECKOUT_REFERENCE_SECRET, signs checkout references

	PaymentAPIBase       string        // PAYMENT_API_BASE
	PaymentSecretKey     string        // PAYMENT_SECRET_KEY
	PaymentWebhookSecret string        // PAYMENT_WEBHOOK_SECRET
	CheckoutSuccessURL   string        // CHECKOUT_SUCCESS_URL
	CheckoutCancelURL    string        // CHECKOUT_CANCEL_URL
	WebhookTolerance     time.Duration // PAYMENT_WEBHOOK_TOLERANCE

	MembershipAPIBase string            // MEMBERSHIP_API_BASE
	MembershipKeys    map[string]string // UWCS_API_KEY, ESPORTS_API_KEY
	ExternalTimeout   time.Duration     // EXTERNAL_TIMEOUT

	RabbitURL   string // RABBITMQ_URL; empty disables domain events
	AuditLogDir string // AUDIT_LOG_DIR

	WorkerConcurrency int    // WORKER_CONCURRENCY
	SeedFile          string // SEED_FILE
}

// LoadDotenv reads the given env files, ignoring ones that do not exist.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration values from environment variables.  Every
// missing or malformed required variable is reported in one error.
func Load() (Config, error) {
	var l loader
	cfg := Config{
		Env:            l.must("APP_ENV"),
		Port:           l.must("APP_PORT"),
		DBUser:         l.must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"),
		DBHost:         l.must("DB_HOST"),
		DBPort:         l.must("DB_PORT"),
		DBName:         l.must("DB_NAME"),
		JWTSecret:      l.must("JWT_SECRET"),
		AccessTTLMin:   l.mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: l.mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     l.mustInt("BCRYPT_COST"),

		ReferenceSecret: l.must("CHECKOUT_REFERENCE_SECRET"),

		PaymentAPIBase:       envStr("PAYMENT_API_BASE", "https://api.stripe.com"),
		PaymentSecretKey:     os.Getenv("PAYMENT_SECRET_KEY"),
		PaymentWebhookSecret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		CheckoutSuccessURL:   envStr("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success"),
		CheckoutCancelURL:    envStr("CHECKOUT_CANCEL_URL", "http://localhost:3000/checkout/cancel"),
		WebhookTolerance:     envDur("PAYMENT_WEBHOOK_TOLERANCE", 5*time.Minute),

		MembershipAPIBase: envStr("MEMBERSHIP_API_BASE", "https://www.warwicksu.com"),
		MembershipKeys: map[string]string{
			"UWCS": os.Getenv("UWCS_API_KEY"),
			"WE":   os.Getenv("ESPORTS_API_KEY"),
		},
		ExternalTimeout: envDur("EXTERNAL_TIMEOUT", 10*time.Second),

		RabbitURL:   os.Getenv("RABBITMQ_URL"),
		AuditLogDir: envStr("AUDIT_LOG_DIR", "logs"),

		WorkerConcurrency: envInt("WORKER_CONCURRENCY", 5),
		SeedFile:          envStr("SEED_FILE", "seed/events.yaml"),
	}
	if l.err() != nil {
		return Config{}, l.err()
	}
	return cfg, nil
}

// IsProd reports whether the app runs in production.
func (c Config) IsProd() bool { return strings.EqualFold(c.Env, "prod") }

// loader records every missing required variable.
type loader struct{ problems []string }

func (l *loader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		l.problems = append(l.problems, "missing required env var: "+key)
	}
	return v
}

func (l *loader) mustInt(key string) int {
	s := l.must(key)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		l.problems = append(l.problems, fmt.Sprintf("invalid int for %s: %q", key, s))
	}
	return n
}

func (l *loader) err() error {
	if len(l.problems) == 0 {
		return nil
	}
	return errors.New(strings.Join(l.problems, "; "))
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch strings.ToLower(os.Getenv(k)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	if dur, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return dur
	}
	return d
}
