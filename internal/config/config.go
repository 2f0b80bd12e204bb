// Package config loads service settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"roadplan/internal/model"
)

type Server struct {
	Addr               string  `yaml:"addr"`
	DatabaseURL        string  `yaml:"databaseUrl"`
	Migrate            *bool   `yaml:"migrate"`
	RedisURL           string  `yaml:"redisUrl"`
	RateRPS            float64 `yaml:"rateRps"`
	RateBurst          int     `yaml:"rateBurst"`
	WebhookMaxAttempts int     `yaml:"webhookMaxAttempts"`
	WebhookSecret      string  `yaml:"webhookSecret"`
	AllowOrigins       string  `yaml:"allowOrigins"`
}

type Config struct {
	Server    Server         `yaml:"server"`
	Optimizer model.ParamsIn `yaml:"optimizer"`
}

// Default is used when neither a file nor the environment sets a value.
func Default() Config {
	return Config{Server: Server{
		Addr:               ":8080",
		RateRPS:            5,
		RateBurst:          10,
		WebhookMaxAttempts: 5,
	}}
}

// Load reads path (skipped when empty) over the defaults, then applies env overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		c.Server.Addr = ":" + v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.Server.DatabaseURL = v
	}
	if v := getenv("DB_MIGRATE"); v != "" {
		on := v != "false"
		c.Server.Migrate = &on
	}
	if v := getenv("REDIS_URL"); v != "" {
		c.Server.RedisURL = v
	}
	if v := getenv("WEBHOOK_SECRET"); v != "" {
		c.Server.WebhookSecret = v
	}
	if v := getenv("ALLOW_ORIGINS"); v != "" {
		c.Server.AllowOrigins = v
	}
	if v := getenv("RATE_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATE_RPS: %w", err)
		}
		c.Server.RateRPS = f
	}
	if v := getenv("RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RATE_BURST: %w", err)
		}
		c.Server.RateBurst = n
	}
	if v := getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WEBHOOK_MAX_ATTEMPTS: %w", err)
		}
		c.Server.WebhookMaxAttempts = n
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is empty"))
	}
	if c.Server.RateRPS < 0 {
		errs = append(errs, errors.New("server.rateRps must be >= 0"))
	}
	if c.Server.RateBurst < 0 {
		errs = append(errs, errors.New("server.rateBurst must be >= 0"))
	}
	if c.Server.WebhookMaxAttempts < 1 {
		errs = append(errs, errors.New("server.webhookMaxAttempts must be >= 1"))
	}
	return errors.Join(errs...)
}

// MigrateEnabled defaults to true.
func (s Server) MigrateEnabled() bool {
	return s.Migrate == nil || *s.Migrate
}

// Summary is the non-secret view shown on /debug/vars.
func (c Config) Summary() map[string]any {
	return map[string]any{
		"addr":               c.Server.Addr,
		"rateRps":            c.Server.RateRPS,
		"rateBurst":          c.Server.RateBurst,
		"webhookMaxAttempts": c.Server.WebhookMaxAttempts,
		"allowOrigins":       c.Server.AllowOrigins,
		"hasDatabaseUrl":     c.Server.DatabaseURL != "",
		"hasRedisUrl":        c.Server.RedisURL != "",
		"hasWebhookSecret":   c.Server.WebhookSecret != "",
		"optimizer":          c.Optimizer,
	}
}
