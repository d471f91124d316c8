package mixd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config is the top-level configuration for mixd.
type Config struct {
	Server       ServerConfig       `toml:"server"`
	Jellyfin     JellyfinConfig     `toml:"jellyfin"`
	Follower     FollowerConfig     `toml:"follower"`
	Lastfm       LastfmConfig       `toml:"lastfm"`
	EmbeddedMQTT EmbeddedMQTTConfig `toml:"embedded_mqtt"`
}

// ServerConfig defines shared server settings.
type ServerConfig struct {
	Broker    string     `toml:"broker"`
	Identity  string     `toml:"identity"`
	TopicBase string     `toml:"topic_base"`
	LogLevel  string     `toml:"log_level"`
	LogFormat string     `toml:"log_format"`
	LogOutput string     `toml:"log_output"`
	Auth      AuthConfig `toml:"auth"`
}

// AuthConfig holds MQTT auth credentials.
type AuthConfig struct {
	User string `toml:"user"`
	Pass string `toml:"pass"`
}

// JellyfinConfig configures the Jellyfin connection.
type JellyfinConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	UserID    string `toml:"user_id"`
	TimeoutMS int64  `toml:"timeout_ms"`
}

// FollowerConfig configures the reconciliation module.
type FollowerConfig struct {
	NodeID          string       `toml:"node_id"`
	Interval        string       `toml:"interval"`
	RunOnStart      bool         `toml:"run_on_start"`
	Public          bool         `toml:"public"`
	FetchCommands   []string     `toml:"fetch_commands"`
	AcquireCommands []string     `toml:"acquire_commands"`
	Feeds           []FeedConfig `toml:"feed"`
}

// FeedConfig configures one chart feed source.
type FeedConfig struct {
	Name string `toml:"name"`
	URL  string `toml:"url"`
}

// LastfmConfig configures the last.fm recommendation adapter.
type LastfmConfig struct {
	Enabled bool         `toml:"enabled"`
	BaseURL string       `toml:"base_url"`
	Links   []LastfmLink `toml:"link"`
}

// LastfmLink maps a Jellyfin user to a linked last.fm username.
type LastfmLink struct {
	UserID   string `toml:"user_id"`
	Username string `toml:"username"`
}

// EmbeddedMQTTConfig configures the embedded MQTT broker.
type EmbeddedMQTTConfig struct {
	Enabled        bool   `toml:"enabled"`
	Listen         string `toml:"listen"`
	AllowAnonymous bool   `toml:"allow_anonymous"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
}

// envOverrides are applied on top of the loaded file so deployments can
// keep secrets out of it.
type envOverrides struct {
	Broker         string `env:"MIXD_BROKER"`
	LogLevel       string `env:"MIXD_LOG_LEVEL"`
	JellyfinURL    string `env:"MIXD_JELLYFIN_URL"`
	JellyfinAPIKey string `env:"MIXD_JELLYFIN_API_KEY"`
	JellyfinUserID string `env:"MIXD_JELLYFIN_USER_ID"`
}

// LoadConfig loads a config file, applies environment overrides and
// defaults, and validates the result.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}

	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return Config{}, err
	}
	cfg.apply(overrides)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) apply(o envOverrides) {
	if o.Broker != "" {
		c.Server.Broker = o.Broker
	}
	if o.LogLevel != "" {
		c.Server.LogLevel = o.LogLevel
	}
	if o.JellyfinURL != "" {
		c.Jellyfin.BaseURL = o.JellyfinURL
	}
	if o.JellyfinAPIKey != "" {
		c.Jellyfin.APIKey = o.JellyfinAPIKey
	}
	if o.JellyfinUserID != "" {
		c.Jellyfin.UserID = o.JellyfinUserID
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Identity == "" {
		c.Server.Identity = "mixd"
	}
	if c.Server.TopicBase == "" {
		c.Server.TopicBase = "mixfollower/v1"
	}
	if c.Follower.NodeID == "" {
		c.Follower.NodeID = "mix:follower:main"
	}
	if c.Follower.Interval == "" {
		c.Follower.Interval = "24h"
	}
	if c.Jellyfin.TimeoutMS == 0 {
		c.Jellyfin.TimeoutMS = 10000
	}
	c.Follower.FetchCommands = dropEmpty(c.Follower.FetchCommands)
	c.Follower.AcquireCommands = dropEmpty(c.Follower.AcquireCommands)
}

// Validate checks the fields every run depends on.
func (c Config) Validate() error {
	if c.Jellyfin.BaseURL == "" {
		return errors.New("jellyfin base_url required")
	}
	if c.Jellyfin.APIKey == "" {
		return errors.New("jellyfin api_key required")
	}
	if c.Jellyfin.UserID == "" {
		return errors.New("jellyfin user_id required")
	}
	if _, err := c.IntervalDuration(); err != nil {
		return err
	}
	for _, feed := range c.Follower.Feeds {
		if feed.Name == "" || feed.URL == "" {
			return errors.New("feed entries need both name and url")
		}
	}
	for _, link := range c.Lastfm.Links {
		if link.UserID == "" || link.Username == "" {
			return errors.New("lastfm links need both user_id and username")
		}
	}
	return nil
}

// IntervalDuration parses the follower interval.
func (c Config) IntervalDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Follower.Interval)
	if err != nil {
		return 0, fmt.Errorf("follower interval: %w", err)
	}
	if d <= 0 {
		return 0, errors.New("follower interval must be positive")
	}
	return d, nil
}

// DefaultConfigPath returns the default config location.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "mixd", "mixd.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "mixd", "mixd.toml"), nil
}

func dropEmpty(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
