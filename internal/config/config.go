package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names recognized by the loader. Env values win over file values.
const (
	EnvConfigPath    = "CONFIG_PATH"
	EnvBotToken      = "BOT_TOKEN"
	EnvBotOwnerID    = "BOT_OWNER_ID"
	EnvBotAPIBaseURL = "BOT_API_BASE_URL"
	EnvWebhookSecret = "WEBHOOK_SECRET"
	EnvWebhookURL    = "WEBHOOK_URL"
	EnvTMDBAPIKey    = "TMDB_API_KEY"
	EnvOMDBAPIKey    = "OMDB_API_KEY"
	EnvPort          = "PORT"
	EnvDatabaseDSN   = "DATABASE_DSN"
	EnvJWTSecret     = "JWT_SECRET"
	EnvJWTExpiry     = "JWT_EXPIRY"
	EnvLogLevel      = "LOG_LEVEL"
	EnvLogFile       = "LOG_FILE"
)

// Defaults applied when the file and environment leave a value unset or invalid.
const (
	DefaultWebhookSecret     = "wh_dev"
	DefaultRateLimitRequests = 15
	DefaultRateWindowSeconds = 30
	DefaultCacheMaxEntries   = 1024
	DefaultCacheTTLSeconds   = 900
	DefaultConcurrencyLimit  = 8
	DefaultHandlerTimeoutSec = 20
	DefaultPort              = 10000
	DefaultDatabaseDSN       = "file:ultrapro.db"
	DefaultLogLevel          = "info"
)

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// BotConfig holds platform bot credentials.
type BotConfig struct {
	Token      string `yaml:"token"`
	OwnerID    int64  `yaml:"owner_id"`
	APIBaseURL string `yaml:"api_base_url"` // Empty selects the hosted Bot API.
}

// WebhookConfig holds inbound webhook verification settings.
type WebhookConfig struct {
	SharedSecret string `yaml:"shared_secret"`
	PublicURL    string `yaml:"public_url"`
}

// RateLimitConfig holds per-identity admission settings.
type RateLimitConfig struct {
	MaxRequests   int `yaml:"max_requests"`
	WindowSeconds int `yaml:"window_seconds"`
}

// Window returns the admission window as a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries"`
	TTLSeconds int `yaml:"ttl_seconds"`
}

// TTL returns the cache entry lifetime as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// HandlerConfig holds handler pool settings.
type HandlerConfig struct {
	ConcurrencyLimit int `yaml:"concurrency_limit"`
	TimeoutSeconds   int `yaml:"timeout_seconds"`
}

// Timeout returns the handler deadline as a duration.
func (c HandlerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MoviesConfig holds upstream movie API credentials.
type MoviesConfig struct {
	TMDBAPIKey string `yaml:"tmdb_api_key"`
	OMDBAPIKey string `yaml:"omdb_api_key"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DatabaseConfig holds persistence settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string
	Expiry time.Duration
}

// LoggingConfig holds log level and optional rotating file sink settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Config is the full resolved service configuration.
type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Handler   HandlerConfig   `yaml:"handler"`
	Movies    MoviesConfig    `yaml:"movies"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       JWTConfig       `yaml:"-"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// fileJWT maps the raw YAML jwt section; expiry is parsed separately.
type fileJWT struct {
	Secret string `yaml:"secret"`
	Expiry string `yaml:"expiry"`
}

// fileConfig maps the YAML document shape.
type fileConfig struct {
	Bot       BotConfig       `yaml:"bot"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Handler   HandlerConfig   `yaml:"handler"`
	Movies    MoviesConfig    `yaml:"movies"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       fileJWT         `yaml:"jwt"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Load reads the config file when present, applies env overrides, and clamps defaults.
func Load(configPath string) (Config, error) {
	var file fileConfig

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, &file); errUnmarshal != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", configPath, errUnmarshal)
		}
	} else if !os.IsNotExist(errRead) {
		return Config{}, fmt.Errorf("config: read %s: %w", configPath, errRead)
	}

	cfg := Config{
		Bot:       file.Bot,
		Webhook:   file.Webhook,
		RateLimit: file.RateLimit,
		Cache:     file.Cache,
		Handler:   file.Handler,
		Movies:    file.Movies,
		Server:    file.Server,
		Database:  file.Database,
		Logging:   file.Logging,
	}
	cfg.JWT = JWTConfig{Secret: strings.TrimSpace(file.JWT.Secret), Expiry: parseExpiry(file.JWT.Expiry)}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

// applyEnvOverrides replaces file values with environment values when set.
func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvBotToken)); v != "" {
		cfg.Bot.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBotOwnerID)); v != "" {
		if id, errParse := strconv.ParseInt(v, 10, 64); errParse == nil {
			cfg.Bot.OwnerID = id
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvBotAPIBaseURL)); v != "" {
		cfg.Bot.APIBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvWebhookSecret)); v != "" {
		cfg.Webhook.SharedSecret = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvWebhookURL)); v != "" {
		cfg.Webhook.PublicURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTMDBAPIKey)); v != "" {
		cfg.Movies.TMDBAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvOMDBAPIKey)); v != "" {
		cfg.Movies.OMDBAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPort)); v != "" {
		if port, errParse := strconv.Atoi(v); errParse == nil {
			cfg.Server.Port = port
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvDatabaseDSN)); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvJWTSecret)); v != "" {
		cfg.JWT.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); v != "" {
		if expiry, errParse := time.ParseDuration(v); errParse == nil && expiry > 0 {
			cfg.JWT.Expiry = expiry
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

// applyDefaults fills unset values and clamps invalid ones.
func applyDefaults(cfg *Config) {
	cfg.Bot.Token = strings.TrimSpace(cfg.Bot.Token)
	cfg.Bot.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.Bot.APIBaseURL), "/")
	cfg.Webhook.SharedSecret = strings.TrimSpace(cfg.Webhook.SharedSecret)
	cfg.Webhook.PublicURL = strings.TrimRight(strings.TrimSpace(cfg.Webhook.PublicURL), "/")

	if cfg.Webhook.SharedSecret == "" {
		cfg.Webhook.SharedSecret = DefaultWebhookSecret
	}
	if cfg.RateLimit.MaxRequests <= 0 {
		cfg.RateLimit.MaxRequests = DefaultRateLimitRequests
	}
	if cfg.RateLimit.WindowSeconds <= 0 {
		cfg.RateLimit.WindowSeconds = DefaultRateWindowSeconds
	}
	if cfg.Cache.MaxEntries <= 0 {
		cfg.Cache.MaxEntries = DefaultCacheMaxEntries
	}
	if cfg.Cache.TTLSeconds <= 0 {
		cfg.Cache.TTLSeconds = DefaultCacheTTLSeconds
	}
	if cfg.Handler.ConcurrencyLimit <= 0 {
		cfg.Handler.ConcurrencyLimit = DefaultConcurrencyLimit
	}
	if cfg.Handler.TimeoutSeconds <= 0 {
		cfg.Handler.TimeoutSeconds = DefaultHandlerTimeoutSec
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		cfg.Server.Port = DefaultPort
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		cfg.Database.DSN = DefaultDatabaseDSN
	}
	if cfg.JWT.Expiry <= 0 {
		cfg.JWT.Expiry = defaultJWTExpiry
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
}

// parseExpiry parses a duration string, returning zero on failure.
func parseExpiry(raw string) time.Duration {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0
	}
	expiry, errParse := time.ParseDuration(trimmed)
	if errParse != nil || expiry <= 0 {
		return 0
	}
	return expiry
}
