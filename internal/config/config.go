package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port    int `yaml:"port"`
	Workers int `yaml:"workers"` // event-bus worker pool size
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	DedupTTL time.Duration `yaml:"dedup_ttl"` // webhook reservation lifetime
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// ProviderConfig is shared by every processor entry: routing priority
// (lower is tried first) plus the enable switch.
type ProviderConfig struct {
	Enabled  bool `yaml:"enabled"`
	Priority int  `yaml:"priority"`
}

type ProvidersConfig struct {
	Stripe struct {
		ProviderConfig `yaml:",inline"`
		APIKey         string `yaml:"api_key"`
		WebhookSecret  string `yaml:"webhook_secret"`
	} `yaml:"stripe"`
	ZarinPal struct {
		ProviderConfig `yaml:",inline"`
		MerchantID     string `yaml:"merchant_id"`
		CallbackURL    string `yaml:"callback_url"`
		Sandbox        bool   `yaml:"sandbox"`
		AccessToken    string `yaml:"access_token"`
		WebhookSecret  string `yaml:"webhook_secret"`
	} `yaml:"zarinpal"`
}

type OrchestratorConfig struct {
	HealthCooldown time.Duration `yaml:"health_cooldown"`

	Breaker struct {
		ErrorRateThreshold float64       `yaml:"error_rate_threshold"`
		MinRequests        uint32        `yaml:"min_requests"`
		Interval           time.Duration `yaml:"interval"`
		ResetTimeout       time.Duration `yaml:"reset_timeout"`
		CallTimeout        time.Duration `yaml:"call_timeout"`
	} `yaml:"breaker"`
}

type ReconciliationConfig struct {
	Enabled  bool          `yaml:"enabled"`
	RunAt    string        `yaml:"run_at"`    // daily wall-clock time, "HH:MM" UTC
	PageSize int           `yaml:"page_size"` // provider listing page size
	MaxPages int           `yaml:"max_pages"` // budget per run
	Timeout  time.Duration `yaml:"timeout"`   // per-run bound
}

type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Log            LogConfig            `yaml:"log"`
	Database       DatabaseConfig       `yaml:"database"`
	Redis          RedisConfig          `yaml:"redis"`
	Auth           AuthConfig           `yaml:"auth"`
	Providers      ProvidersConfig      `yaml:"providers"`
	Orchestrator   OrchestratorConfig   `yaml:"orchestrator"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, errors.New("redis.addr is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}
	if cfg.Providers.Stripe.Enabled && cfg.Providers.Stripe.APIKey == "" {
		return nil, errors.New("providers.stripe.api_key is required when stripe is enabled")
	}
	if cfg.Providers.ZarinPal.Enabled && cfg.Providers.ZarinPal.MerchantID == "" {
		return nil, errors.New("providers.zarinpal.merchant_id is required when zarinpal is enabled")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Workers <= 0 {
		cfg.Server.Workers = 8
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Redis.DedupTTL <= 0 {
		cfg.Redis.DedupTTL = 24 * time.Hour
	}
	if cfg.Orchestrator.HealthCooldown <= 0 {
		cfg.Orchestrator.HealthCooldown = 30 * time.Second
	}
	if cfg.Reconciliation.RunAt == "" {
		cfg.Reconciliation.RunAt = "02:00"
	}
	if cfg.Reconciliation.PageSize <= 0 {
		cfg.Reconciliation.PageSize = 100
	}
	if cfg.Reconciliation.MaxPages <= 0 {
		cfg.Reconciliation.MaxPages = 200
	}
	if cfg.Reconciliation.Timeout <= 0 {
		cfg.Reconciliation.Timeout = 30 * time.Minute
	}
}
