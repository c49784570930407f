package config

import "fmt"

// Config is the main configuration struct.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Assistant AssistantConfig `yaml:"assistant"`
	Tools     ToolsConfig     `yaml:"tools"`
	Calendar  CalendarConfig  `yaml:"calendar"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds http, storage and tls settings.
type ServerConfig struct {
	Address string    `yaml:"address"`
	Port    int       `yaml:"port"`
	DBPath  string    `yaml:"db_path"`
	TLS     TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AssistantConfig holds upstream provider settings. The API key is never
// read from the config file; it is resolved from the environment
// (OPENAI_API_KEY) during ParseConfigEnvs.
type AssistantConfig struct {
	BaseURL     string `yaml:"base_url"`
	AssistantID string `yaml:"assistant_id"`
	TimeoutSec  int    `yaml:"timeout_sec"`
	APIKey      string `yaml:"-"`
}

// ToolsConfig holds settings for the capability handlers.
type ToolsConfig struct {
	Search SearchConfig `yaml:"search"`
	Scrape ScrapeConfig `yaml:"scrape"`
}

// SearchConfig holds web-search settings. The subscription token is
// resolved from the environment (BRAVE_API_KEY), not the file.
type SearchConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"-"`
}

// ScrapeConfig holds page-fetch settings.
type ScrapeConfig struct {
	TimeoutSec int `yaml:"timeout_sec"`
}

// CalendarConfig holds feed cache settings.
type CalendarConfig struct {
	// CacheTTL is a Go duration string; default 24h.
	CacheTTL string `yaml:"cache_ttl"`
	// SweepCron schedules removal of stale cache entries; default daily @02:00.
	SweepCron string `yaml:"sweep_cron"`
}

// SecurityConfig holds rate limiting and session settings.
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Session   SessionConfig   `yaml:"session"`
}

// RateLimitConfig holds per-session limiter settings.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// SessionConfig holds session cookie settings.
type SessionConfig struct {
	CookieName string `yaml:"cookie_name"`
	TTLHours   int    `yaml:"ttl_hours"`
	Secure     bool   `yaml:"secure"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Addr returns host:port for the HTTP server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}
