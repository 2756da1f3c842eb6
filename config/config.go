// Package config loads the fidelity configuration from YAML, fills in
// defaults and applies environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level fidelity configuration.
type Config struct {
	Listen           string          `yaml:"listen"`
	DBPath           string          `yaml:"db_path"`
	AllowPrivateURLs bool            `yaml:"allow_private_urls"`
	MaxBody          int64           `yaml:"max_body"`
	RateLimit        RateLimitConfig `yaml:"rate_limit"`
	AuditRetention   time.Duration   `yaml:"audit_retention"`
	// TrustedProxies are CIDRs or IPs of reverse proxies whose
	// X-Forwarded-For identifies the client for rate limiting.
	TrustedProxies []string `yaml:"trusted_proxies"`
	Design           DesignConfig    `yaml:"design"`
	Browser          BrowserConfig   `yaml:"browser"`
}

// RateLimitConfig limits comparisons per client IP. Each comparison opens
// a browser tab.
type RateLimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// DesignConfig configures the design-tool API client.
type DesignConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Token    string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"`
	MaxBytes int64         `yaml:"max_bytes"`
}

// BrowserConfig controls the Chrome used to render pages.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	Stealth          *bool         `yaml:"stealth"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	MaxCaptures      int           `yaml:"max_captures"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	NavTimeout       time.Duration `yaml:"nav_timeout"`
	Settle           time.Duration `yaml:"settle"`
	ViewportWidth    int           `yaml:"viewport_width"`
	ViewportHeight   int           `yaml:"viewport_height"`
}

// StealthEnabled reports whether stealth tabs are on. Default: true.
func (b BrowserConfig) StealthEnabled() bool {
	return b.Stealth == nil || *b.Stealth
}

// Load reads path (if non-empty), applies defaults, then environment
// overrides: FIGMA_TOKEN, FIDELITY_DB, FIDELITY_ADDR.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		c, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = *c
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFile reads a YAML configuration file and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("FIGMA_TOKEN"); v != "" {
		c.Design.Token = v
	}
	if v := getenv("FIDELITY_DB"); v != "" {
		c.DBPath = v
	}
	if v := getenv("FIDELITY_ADDR"); v != "" {
		c.Listen = v
	}
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8420"
	}
	if c.DBPath == "" {
		c.DBPath = "fidelity.db"
	}
	if c.MaxBody <= 0 {
		c.MaxBody = 1 << 20
	}
	if c.AuditRetention <= 0 {
		c.AuditRetention = 30 * 24 * time.Hour
	}
	if c.RateLimit.MaxRequests <= 0 {
		c.RateLimit.MaxRequests = 10
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = time.Minute
	}
	if c.Design.BaseURL == "" {
		c.Design.BaseURL = "https://api.figma.com"
	}
	if c.Design.Timeout <= 0 {
		c.Design.Timeout = 60 * time.Second
	}
	if c.Design.MaxBytes <= 0 {
		c.Design.MaxBytes = 64 << 20
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.MaxCaptures <= 0 {
		c.Browser.MaxCaptures = 500
	}
	if c.Browser.ResourceBlocking == nil {
		c.Browser.ResourceBlocking = []string{"images", "media"}
	}
	if c.Browser.NavTimeout <= 0 {
		c.Browser.NavTimeout = 30 * time.Second
	}
	if c.Browser.Settle <= 0 {
		c.Browser.Settle = 2 * time.Second
	}
	if c.Browser.ViewportWidth <= 0 {
		c.Browser.ViewportWidth = 1440
	}
	if c.Browser.ViewportHeight <= 0 {
		c.Browser.ViewportHeight = 900
	}
}
