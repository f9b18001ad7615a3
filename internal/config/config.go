// Package config holds the service configuration, loaded from YAML with
// environment overrides.
package config

import (
	"errors"
	"time"

	"github.com/jonesrussell/catalog-classifier/internal/aiclient"
	"github.com/jonesrussell/catalog-classifier/internal/cache"
	"github.com/jonesrussell/catalog-classifier/internal/logger"
	"github.com/jonesrussell/catalog-classifier/internal/shopify"
)

// Default configuration values.
const (
	defaultServiceName       = "catalog-classifier"
	defaultServiceVersion    = "1.0.0"
	defaultServicePort       = 8080
	defaultRuleFile          = "rules.yml"
	defaultHistoryPath       = "classifier_history.db"
	defaultFallbackThreshold = 0.8
	defaultDefaultCategory   = "Uncategorized"
	defaultLanguage          = "en"
	defaultMaxJobRecords     = 200
	defaultReadTimeout       = 30 * time.Second
	defaultWriteTimeout      = 60 * time.Second
)

// Config holds all configuration for the service.
type Config struct {
	Service        ServiceConfig        `yaml:"service"`
	Shop           shopify.Config       `yaml:"shop"`
	Classification ClassificationConfig `yaml:"classification"`
	AI             aiclient.Config      `yaml:"ai"`
	Cache          cache.Config         `yaml:"cache"`
	Auth           AuthConfig           `yaml:"auth"`
	Logging        logger.Config        `yaml:"logging"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name          string        `yaml:"name"`
	Version       string        `yaml:"version"`
	Port          int           `env:"SERVICE_PORT" yaml:"port"`
	Debug         bool          `env:"APP_DEBUG"    yaml:"debug"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	HistoryPath   string        `env:"HISTORY_PATH" yaml:"history_path"`
	MaxJobRecords int           `yaml:"max_job_records"`
}

// ClassificationConfig holds classifier settings.
type ClassificationConfig struct {
	RuleFile          string  `env:"RULE_FILE" yaml:"rule_file"`
	DefaultCategory   string  `yaml:"default_category"`
	FallbackThreshold float64 `yaml:"fallback_threshold"`
	Language          string  `yaml:"language"`
	WatchRuleFile     bool    `yaml:"watch_rule_file"`
}

// AuthConfig holds the shared secrets guarding each inbound surface.
type AuthConfig struct {
	WebhookSecret  string `env:"WEBHOOK_SECRET"  yaml:"webhook_secret"`
	CommandSecret  string `env:"COMMAND_SECRET"  yaml:"command_secret"`
	BackfillSecret string `env:"BACKFILL_SECRET" yaml:"backfill_secret"`
}

// SetDefaults applies default values to the config if not set.
func (c *Config) SetDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = defaultServiceName
	}
	if c.Service.Version == "" {
		c.Service.Version = defaultServiceVersion
	}
	if c.Service.Port == 0 {
		c.Service.Port = defaultServicePort
	}
	if c.Service.ReadTimeout <= 0 {
		c.Service.ReadTimeout = defaultReadTimeout
	}
	if c.Service.WriteTimeout <= 0 {
		c.Service.WriteTimeout = defaultWriteTimeout
	}
	if c.Service.HistoryPath == "" {
		c.Service.HistoryPath = defaultHistoryPath
	}
	if c.Service.MaxJobRecords <= 0 {
		c.Service.MaxJobRecords = defaultMaxJobRecords
	}
	if c.Classification.RuleFile == "" {
		c.Classification.RuleFile = defaultRuleFile
	}
	if c.Classification.DefaultCategory == "" {
		c.Classification.DefaultCategory = defaultDefaultCategory
	}
	if c.Classification.FallbackThreshold <= 0 {
		c.Classification.FallbackThreshold = defaultFallbackThreshold
	}
	if c.Classification.Language == "" {
		c.Classification.Language = defaultLanguage
	}
	c.Shop.SetDefaults()
	c.AI.SetDefaults()
}

// Validate rejects configurations that cannot serve traffic.
func (c *Config) Validate() error {
	if c.Shop.ShopURL == "" {
		return errors.New("shop URL is required")
	}
	if c.Shop.AccessToken == "" {
		return errors.New("shop access token is required")
	}
	if c.Auth.WebhookSecret == "" {
		return errors.New("webhook secret is required")
	}
	return nil
}
