// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Site    SiteConfig    `yaml:"site"`
	Feed    FeedConfig    `yaml:"feed"`
	Media   MediaConfig   `yaml:"media"`
	Session SessionConfig `yaml:"session"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig lists shell commands run around the server lifetime.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// SiteConfig represents the static texts of the podcast site.
type SiteConfig struct {
	Title       string       `yaml:"title" default:"Periférico" validate:"required"`
	Description string       `yaml:"description" default:"CeSIUM - Centro de Estudantes de Engenharia Informática da UMinho"`
	About       string       `yaml:"about"`
	Links       []LinkConfig `yaml:"links" validate:"dive"`
}

// LinkConfig represents a "listen on" link.
type LinkConfig struct {
	Label string `yaml:"label" validate:"required"`
	URL   string `yaml:"url" validate:"required,url"`
}

// FeedConfig represents the podcast feed source.
type FeedConfig struct {
	URL           string `yaml:"url" default:"https://anchor.fm/s/54719978/podcast/rss" validate:"required,url"`
	RevalidateSec int    `yaml:"revalidate_sec" default:"10" validate:"gte=1,lte=86400"`
	TimeoutSec    int    `yaml:"timeout_sec" default:"10" validate:"gte=1,lte=120"`
	CachePath     string `yaml:"cache_path"` // BoltDB snapshot file, empty disables the cache
}

// MediaConfig selects the media loader and its settings.
type MediaConfig struct {
	Type     string         `yaml:"type" default:"http" validate:"oneof=http clock"`
	Settings map[string]any `yaml:"settings"`
}

// SessionConfig represents listener session configuration.
type SessionConfig struct {
	CookieName       string `yaml:"cookie_name" default:"periferico_session" validate:"required"`
	IdleTimeoutMin   int    `yaml:"idle_timeout_min" default:"30" validate:"gte=1"`
	SweepIntervalSec int    `yaml:"sweep_interval_sec" default:"60" validate:"gte=1"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("FEED_URL"); v != "" {
		c.Feed.URL = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// RevalidateInterval returns how often the feed is refetched.
func (c *FeedConfig) RevalidateInterval() time.Duration {
	return time.Duration(c.RevalidateSec) * time.Second
}

// Timeout returns the feed request timeout.
func (c *FeedConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// IdleTimeout returns how long an unused session is kept.
func (c *SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMin) * time.Minute
}

// SweepInterval returns how often idle sessions are collected.
func (c *SessionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}
