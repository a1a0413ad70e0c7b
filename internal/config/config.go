package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	PoolSize int    `yaml:"pool_size"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // plan template cache TTL
}

type APIConfig struct {
	Port         int           `yaml:"port"`
	AdminSecret  string        `yaml:"admin_secret"` // HMAC secret for admin sessions
	SessionTTL   time.Duration `yaml:"session_ttl"`
	SecureCookie bool          `yaml:"secure_cookie"`
	CookieDomain string        `yaml:"cookie_domain"`
}

type QuotaConfig struct {
	ConsumeTimeout time.Duration `yaml:"consume_timeout"`
}

type SchedulerConfig struct {
	FeatureSweepInterval time.Duration `yaml:"feature_sweep_interval"`
	SubscriptionExpiry   string        `yaml:"subscription_expiry_cron"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	API       APIConfig       `yaml:"api"`
	Quota     QuotaConfig     `yaml:"quota"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads and validates the YAML config file.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.PoolSize <= 0 {
		cfg.Database.PoolSize = 10
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = time.Hour
	}
	if cfg.API.Port <= 0 {
		cfg.API.Port = 8080
	}
	if cfg.API.SessionTTL <= 0 {
		cfg.API.SessionTTL = 30 * time.Minute
	}
	if cfg.Quota.ConsumeTimeout <= 0 {
		cfg.Quota.ConsumeTimeout = 5 * time.Second
	}
	if cfg.Scheduler.FeatureSweepInterval <= 0 {
		cfg.Scheduler.FeatureSweepInterval = 15 * time.Minute
	}
	if cfg.Scheduler.SubscriptionExpiry == "" {
		cfg.Scheduler.SubscriptionExpiry = "0 9 * * *"
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.API.AdminSecret == "" && !dev {
		return nil, errors.New("api.admin_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
