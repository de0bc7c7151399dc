// Package config provides application configuration loaded from environment variables.
// Use the package-level Get() function to obtain the singleton Config instance.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sub-config structs
// ──────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port                 string        // e.g. "8080"
	BackofficePort       string        // e.g. "8081"
	Env                  string        // "development" | "production"
	Version              string        // reported by /health
	ReadTimeout          time.Duration // default 10s
	WriteTimeout         time.Duration // default 10s
	BackofficeAllowedIPs string        // comma-separated IPs; "" = allow all
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Driver          string        // "postgres" | "memory"
	DSN             string        // full postgres DSN
	MaxOpenConns    int           // default 25
	MaxIdleConns    int           // default 10
	ConnMaxLifetime time.Duration // default 5m
	AutoMigrate     bool          // apply embedded migrations at boot
}

// JWTConfig holds the settings for verifying tokens minted by the identity
// provider.
type JWTConfig struct {
	AccessSecret string        // must be set
	Issuer       string        // "" = issuer not checked
	AccessTTL    time.Duration // lifetime of tokens minted by cmd tooling
}

// RedisConfig holds the pub/sub notifier settings.
type RedisConfig struct {
	Addr     string // "" disables the redis notifier
	Password string
	DB       int
	Channel  string // default "risk:circuit-breakers"
}

// WSConfig holds WebSocket settings.
type WSConfig struct {
	AllowedOrigins []string // empty = allow all (dev)
}

// RateLimitConfig holds the per-caller limits applied to write routes.
type RateLimitConfig struct {
	WriteRPS   float64 // default 200
	WriteBurst int     // default 400
}

// SchedulerConfig holds background job settings.
type SchedulerConfig struct {
	Interval          time.Duration // default 30s
	BreakerStaleAfter time.Duration // default 1h
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application.
type Config struct {
	Server    ServerConfig
	DB        DBConfig
	JWT       JWTConfig
	Redis     RedisConfig
	WS        WSConfig
	RateLimit RateLimitConfig
	Scheduler SchedulerConfig
}

// IsProd returns true when running in the production environment.
func (c *Config) IsProd() bool {
	return c.Server.Env == "production"
}

// Validate checks that all required configuration values are present and
// valid. Every problem is reported, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.AccessSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET must be set"))
	}
	if c.IsProd() && len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET must be at least 32 bytes in production"))
	}

	switch c.DB.Driver {
	case DriverPostgres:
		if c.IsProd() && os.Getenv("DATABASE_DSN") == "" {
			errs = append(errs, errors.New("DATABASE_DSN must be set in production"))
		}
	case DriverMemory:
		if c.IsProd() {
			errs = append(errs, errors.New("STORE_DRIVER=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q",
			DriverPostgres, DriverMemory, c.DB.Driver))
	}

	if c.RateLimit.WriteRPS <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_WRITE_RPS must be positive, got %.2f", c.RateLimit.WriteRPS))
	}
	if c.RateLimit.WriteBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_WRITE_BURST must be >= 1, got %d", c.RateLimit.WriteBurst))
	}
	if c.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("SCHEDULER_INTERVAL must be positive"))
	}
	if c.Scheduler.BreakerStaleAfter <= 0 {
		errs = append(errs, errors.New("BREAKER_STALE_AFTER must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Singleton
// ──────────────────────────────────────────────────────────────────────────────

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Config, loading it once from environment variables.
// Panics if loading fails; call this early in main() to catch misconfigurations
// at startup.
func Get() *Config {
	once.Do(func() {
		instance, loadErr = Load()
	})
	if loadErr != nil {
		panic(fmt.Sprintf("config: failed to load: %v", loadErr))
	}
	return instance
}

// MustLoad loads and validates configuration. Intended for use in main().
// Panics on any error so misconfiguration is caught immediately at boot.
func MustLoad() *Config {
	cfg := Get()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: validation failed: %v", err))
	}
	return cfg
}

// ──────────────────────────────────────────────────────────────────────────────
// Loader
// ──────────────────────────────────────────────────────────────────────────────

// Load reads the environment without caching or validating.
func Load() (*Config, error) {
	cfg := &Config{}

	// ── Server ────────────────────────────────────────────────────────────────
	cfg.Server = ServerConfig{
		Port:                 getEnv("SERVER_PORT", "8080"),
		BackofficePort:       getEnv("BACKOFFICE_PORT", "8081"),
		Env:                  getEnv("ENVIRONMENT", "development"),
		Version:              getEnv("APP_VERSION", "0.1.0"),
		ReadTimeout:          getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:         getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		BackofficeAllowedIPs: getEnv("BACKOFFICE_ALLOWED_IPS", ""),
	}

	// ── Database ──────────────────────────────────────────────────────────────
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		// Build DSN from individual components for convenience in dev
		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_NAME", "risk_events"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}

	maxOpen, err := getInt("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS: %w", err)
	}
	maxIdle, err := getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_IDLE_CONNS: %w", err)
	}
	autoMigrate, err := getBool("DB_AUTO_MIGRATE", true)
	if err != nil {
		return nil, fmt.Errorf("DB_AUTO_MIGRATE: %w", err)
	}

	cfg.DB = DBConfig{
		Driver:          strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		DSN:             dsn,
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		AutoMigrate:     autoMigrate,
	}

	// ── JWT ───────────────────────────────────────────────────────────────────
	cfg.JWT = JWTConfig{
		AccessSecret: getEnv("JWT_ACCESS_SECRET", ""),
		Issuer:       getEnv("JWT_ISSUER", ""),
		AccessTTL:    getDuration("JWT_ACCESS_TTL", 15*time.Minute),
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	redisDB, err := getInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("REDIS_DB: %w", err)
	}
	cfg.Redis = RedisConfig{
		Addr:     getEnv("REDIS_ADDR", ""),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       redisDB,
		Channel:  getEnv("REDIS_CHANNEL", "risk:circuit-breakers"),
	}

	// ── WebSocket ─────────────────────────────────────────────────────────────
	cfg.WS = WSConfig{
		AllowedOrigins: splitList(getEnv("WS_ALLOWED_ORIGINS", "")),
	}

	// ── Rate limiting ─────────────────────────────────────────────────────────
	rps, err := getFloat("RATE_LIMIT_WRITE_RPS", 200)
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_WRITE_RPS: %w", err)
	}
	burst, err := getInt("RATE_LIMIT_WRITE_BURST", 400)
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_WRITE_BURST: %w", err)
	}
	cfg.RateLimit = RateLimitConfig{WriteRPS: rps, WriteBurst: burst}

	// ── Scheduler ─────────────────────────────────────────────────────────────
	cfg.Scheduler = SchedulerConfig{
		Interval:          getDuration("SCHEDULER_INTERVAL", 30*time.Second),
		BreakerStaleAfter: getDuration("BREAKER_STALE_AFTER", time.Hour),
	}

	return cfg, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper functions
// ──────────────────────────────────────────────────────────────────────────────

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q", v)
	}
	return f, nil
}

func getBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid bool %q", v)
	}
	return b, nil
}

// getDuration parses an env var as a Go duration string (e.g. "15m", "2s").
// Falls back to defaultVal if the variable is unset or unparsable.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
