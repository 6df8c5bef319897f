package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Env                string         `yaml:"env"`
	HTTPAddr           string         `yaml:"http_addr"`
	FrontendURL        string         `yaml:"frontend_url"`
	LogLevel           string         `yaml:"log_level"`
	SessionSecret      string         `yaml:"session_secret"`
	SessionDatabaseURL string         `yaml:"session_database_url"`
	Identity           IdentityConfig `yaml:"identity"`
	Storage            StorageConfig  `yaml:"storage"`
	RateLimit          RateConfig     `yaml:"rate_limit"`
	Settings           SettingsConfig `yaml:"settings"`
}

type IdentityConfig struct {
	URL              string        `yaml:"url"`
	AnonKey          string        `yaml:"anon_key"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	OAuthProvider    string        `yaml:"oauth_provider"`
	OAuthCallbackURL string        `yaml:"oauth_callback_url"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Key    string `yaml:"key"`
}

type RateConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

type SettingsConfig struct {
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

func Default() Config {
	return Config{
		Env:         "dev",
		HTTPAddr:    "127.0.0.1:9999",
		FrontendURL: "http://localhost:5173",
		LogLevel:    "info",
		Identity: IdentityConfig{
			RequestTimeout:   15 * time.Second,
			OAuthProvider:    "google",
			OAuthCallbackURL: "http://127.0.0.1:9999/auth/google/callback",
		},
		Storage: StorageConfig{
			Driver: "file",
			Key:    "easierfocus-auth-token",
		},
		RateLimit: RateConfig{
			PerSecond: 1,
			Burst:     5,
		},
		Settings: SettingsConfig{
			CacheSize: 64,
			CacheTTL:  5 * time.Minute,
		},
	}
}

// Load reads .env (when present), then the optional YAML file at path, then
// environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		if err := loadFromYAML(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.Identity.URL == "" {
		missing = append(missing, "IDENTITY_URL")
	}
	if c.Identity.AnonKey == "" {
		missing = append(missing, "IDENTITY_ANON_KEY")
	}
	if c.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("environment variables (%s) are required", strings.Join(missing, ", "))
	}
	return nil
}

func loadFromYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("unmarshal config yaml: %w", err)
	}

	return nil
}

func applyEnvOverrides(cfg *Config) error {
	overrideString("APP_ENV", &cfg.Env)
	overrideString("HTTP_ADDR", &cfg.HTTPAddr)
	overrideString("FRONTEND_URL", &cfg.FrontendURL)
	overrideString("LOG_LEVEL", &cfg.LogLevel)
	overrideString("SESSION_SECRET", &cfg.SessionSecret)
	overrideString("SESSION_DATABASE_URL", &cfg.SessionDatabaseURL)

	overrideString("IDENTITY_URL", &cfg.Identity.URL)
	overrideString("IDENTITY_ANON_KEY", &cfg.Identity.AnonKey)
	overrideString("OAUTH_PROVIDER", &cfg.Identity.OAuthProvider)
	overrideString("OAUTH_CALLBACK_URL", &cfg.Identity.OAuthCallbackURL)
	if err := overrideDuration("REQUEST_TIMEOUT", &cfg.Identity.RequestTimeout); err != nil {
		return err
	}

	overrideString("STORAGE_DRIVER", &cfg.Storage.Driver)
	overrideString("STORAGE_DSN", &cfg.Storage.DSN)
	overrideString("STORAGE_KEY", &cfg.Storage.Key)

	if err := overrideFloat("AUTH_RATE_PER_SEC", &cfg.RateLimit.PerSecond); err != nil {
		return err
	}
	if err := overrideInt("AUTH_RATE_BURST", &cfg.RateLimit.Burst); err != nil {
		return err
	}

	if err := overrideInt("SETTINGS_CACHE_SIZE", &cfg.Settings.CacheSize); err != nil {
		return err
	}
	if err := overrideDuration("SETTINGS_CACHE_TTL", &cfg.Settings.CacheTTL); err != nil {
		return err
	}

	return nil
}

func overrideString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func overrideDuration(key string, target *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s duration: %w", key, err)
	}
	*target = d
	return nil
}

func overrideInt(key string, target *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s int: %w", key, err)
	}
	*target = n
	return nil
}

func overrideFloat(key string, target *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("parse %s float: %w", key, err)
	}
	*target = f
	return nil
}
