package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
)

// Config holds application configuration
type Config struct {
	Port        int            `toml:"port"`
	Environment string         `toml:"environment"`
	AppURL      string         `toml:"app_url"`
	JWTSecret   string         `toml:"jwt_secret"`
	CORSOrigins []string       `toml:"cors_origins"`
	Database    DatabaseConfig `toml:"database"`
	Monitor     MonitorConfig  `toml:"monitor"`
	Jobs        JobsConfig     `toml:"jobs"`
	RateLimit   RateLimit      `toml:"rate_limit"`
	Log         LogConfig      `toml:"log"`
	Notify      NotifyConfig   `toml:"notify"`

	// set when the JWT secret was generated rather than configured
	GeneratedSecret bool `toml:"-"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type         string `toml:"type"` // postgres or memory
	DSN          string `toml:"dsn"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// MonitorConfig holds probing and target policy settings
type MonitorConfig struct {
	ProbeTimeout       Duration `toml:"probe_timeout"`
	UptimeWindow       int      `toml:"uptime_window"`
	MaxTargetsPerOwner int      `toml:"max_targets_per_owner"`
	MaxIntervalMinutes int      `toml:"max_interval_minutes"`
	AllowPrivateIPs    bool     `toml:"allow_private_ips"`
}

// JobsConfig holds cron expressions for background jobs
type JobsConfig struct {
	ReconcileSchedule string `toml:"reconcile_schedule"`
	SummarySchedule   string `toml:"summary_schedule"`
}

// Duration decodes TOML strings such as "10s" into a time.Duration.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type RateLimit struct {
	RPS   float64 `toml:"rps"`
	Burst int     `toml:"burst"`
}

type LogConfig struct {
	Dir   string `toml:"dir"`
	Level string `toml:"level"`
}

// NotifyConfig holds outbound notification targets. Empty values disable
// the corresponding provider.
type NotifyConfig struct {
	WebhookURL      string `toml:"webhook_url"`
	SlackWebhookURL string `toml:"slack_webhook_url"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Port:        8080,
		Environment: "production",
		Database: DatabaseConfig{
			Type:         "postgres",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Monitor: MonitorConfig{
			ProbeTimeout:       Duration{10 * time.Second},
			UptimeWindow:       100,
			MaxTargetsPerOwner: 0,
			MaxIntervalMinutes: 1440,
		},
		Jobs: JobsConfig{
			ReconcileSchedule: "*/5 * * * *",
			SummarySchedule:   "0 * * * *",
		},
		RateLimit: RateLimit{RPS: 10, Burst: 20},
		Log:       LogConfig{Dir: "logs", Level: "info"},
	}
}

// Load builds the configuration from defaults, an optional TOML file and
// environment overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.Database.DSN == "" && cfg.Database.Type == "postgres" {
		cfg.Database.DSN = buildPostgresDSN()
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = defaultCORSOrigins(cfg.AppURL)
	}
	if cfg.JWTSecret == "" && cfg.Environment != "production" {
		secret, err := generateRandomSecret()
		if err != nil {
			return nil, err
		}
		cfg.JWTSecret = secret
		cfg.GeneratedSecret = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnvInt("PORT", c.Port)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.AppURL = strings.TrimRight(getEnv("APP_URL", c.AppURL), "/")
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		c.CORSOrigins = splitAndTrim(origins, ",")
	}

	c.Database.Type = getEnv("DATABASE_TYPE", c.Database.Type)
	c.Database.DSN = getEnv("DATABASE_DSN", c.Database.DSN)
	c.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)

	c.Monitor.ProbeTimeout.Duration = getEnvDuration("PROBE_TIMEOUT", c.Monitor.ProbeTimeout.Duration)
	c.Monitor.UptimeWindow = getEnvInt("UPTIME_WINDOW", c.Monitor.UptimeWindow)
	c.Monitor.MaxTargetsPerOwner = getEnvInt("MAX_TARGETS_PER_OWNER", c.Monitor.MaxTargetsPerOwner)
	c.Monitor.MaxIntervalMinutes = getEnvInt("MAX_INTERVAL_MINUTES", c.Monitor.MaxIntervalMinutes)
	c.Monitor.AllowPrivateIPs = getEnvBool("ALLOW_PRIVATE_IPS", c.Monitor.AllowPrivateIPs)

	c.Jobs.ReconcileSchedule = getEnv("RECONCILE_SCHEDULE", c.Jobs.ReconcileSchedule)
	c.Jobs.SummarySchedule = getEnv("SUMMARY_SCHEDULE", c.Jobs.SummarySchedule)

	c.RateLimit.RPS = getEnvFloat("RATE_LIMIT_RPS", c.RateLimit.RPS)
	c.RateLimit.Burst = getEnvInt("RATE_LIMIT_BURST", c.RateLimit.Burst)

	c.Log.Dir = getEnv("LOG_DIR", c.Log.Dir)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	c.Notify.WebhookURL = getEnv("NOTIFY_WEBHOOK_URL", c.Notify.WebhookURL)
	c.Notify.SlackWebhookURL = getEnv("NOTIFY_SLACK_WEBHOOK_URL", c.Notify.SlackWebhookURL)
}

func buildPostgresDSN() string {
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	user := getEnv("POSTGRES_USER", "targetwatch")
	password := getEnv("POSTGRES_PASSWORD", "secret")
	dbName := getEnv("POSTGRES_DB", "targetwatch")
	sslMode := getEnv("POSTGRES_SSLMODE", "disable")

	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(user, password),
		Host:   fmt.Sprintf("%s:%s", host, port),
		Path:   dbName,
	}

	query := u.Query()
	query.Set("sslmode", sslMode)
	u.RawQuery = query.Encode()

	return u.String()
}

var insecureSecrets = []string{
	"change-this-secret-in-production",
	"change-me-in-production",
	"secret",
	"password",
	"changeme",
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs error

	if c.Port <= 0 || c.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}

	if c.JWTSecret == "" {
		errs = multierr.Append(errs, errors.New("JWT_SECRET is required in production"))
	} else if c.Environment == "production" {
		if len(c.JWTSecret) < 32 {
			errs = multierr.Append(errs, errors.New("JWT_SECRET must be at least 32 characters in production"))
		}
		for _, insecure := range insecureSecrets {
			if c.JWTSecret == insecure {
				errs = multierr.Append(errs, errors.New("JWT_SECRET is set to an insecure default value"))
				break
			}
		}
	}

	if len(c.CORSOrigins) == 0 {
		errs = multierr.Append(errs, errors.New("at least one CORS origin must be configured"))
	}

	switch c.Database.Type {
	case "postgres":
		if c.Database.DSN == "" {
			errs = multierr.Append(errs, errors.New("DATABASE_DSN is required for postgres"))
		}
	case "memory":
	default:
		errs = multierr.Append(errs, fmt.Errorf("unsupported database type: %s", c.Database.Type))
	}

	if c.Monitor.ProbeTimeout.Duration <= 0 {
		errs = multierr.Append(errs, errors.New("PROBE_TIMEOUT must be positive"))
	}
	if c.Monitor.UptimeWindow <= 0 {
		errs = multierr.Append(errs, errors.New("UPTIME_WINDOW must be positive"))
	}
	if c.Monitor.MaxTargetsPerOwner < 0 {
		errs = multierr.Append(errs, errors.New("MAX_TARGETS_PER_OWNER must not be negative"))
	}
	if c.Monitor.MaxIntervalMinutes < 1 {
		errs = multierr.Append(errs, errors.New("MAX_INTERVAL_MINUTES must be at least 1"))
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		errs = multierr.Append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}

	return errs
}

// IsDevelopment reports whether the process runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func defaultCORSOrigins(appURL string) []string {
	if appURL != "" {
		return []string{appURL}
	}
	return []string{"http://localhost:3000", "http://localhost:8080"}
}

func splitAndTrim(s, sep string) []string {
	var parts []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func generateRandomSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate random secret: %w", err)
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}
