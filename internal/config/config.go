// Package config loads the scrolly server configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration.
type Config struct {
	Title   string        `yaml:"title"`
	Stories StoriesConfig `yaml:"stories"`
	Server  ServerConfig  `yaml:"server"`
	Engine  EngineConfig  `yaml:"engine"`
	Record  RecordConfig  `yaml:"record"`
}

// StoriesConfig locates the story sources.
type StoriesConfig struct {
	Dir       string `yaml:"dir"`        // directory of .md story files
	HotReload *bool  `yaml:"hot_reload"` // rebuild stories on file change (default: true)
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port      int              `yaml:"port"`
	Host      string           `yaml:"host"`
	Debug     bool             `yaml:"debug"`
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// RateLimitConfig throttles page requests.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"` // default: 10
	Burst             int     `yaml:"burst,omitempty"`               // default: 20
}

// EngineConfig holds engine-level defaults applied when a story's
// frontmatter does not set them.
type EngineConfig struct {
	Throttle string `yaml:"throttle,omitempty"` // recompute interval, e.g. "100ms"
}

// RecordConfig controls the sqlite event recorder.
type RecordConfig struct {
	Enabled bool   `yaml:"enabled"`
	DB      string `yaml:"db,omitempty"` // default: ./scrolly.db
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// IsHotReload reports whether story files are watched for changes.
func (c *Config) IsHotReload() bool {
	return c.Stories.HotReload == nil || *c.Stories.HotReload
}

// GetRateLimitRPS returns the rate limit in requests per second (default: 10).
func (c *ServerConfig) GetRateLimitRPS() float64 {
	if c.RateLimit == nil || c.RateLimit.RequestsPerSecond <= 0 {
		return 10
	}
	return c.RateLimit.RequestsPerSecond
}

// GetRateLimitBurst returns the burst size (default: 20).
func (c *ServerConfig) GetRateLimitBurst() int {
	if c.RateLimit == nil || c.RateLimit.Burst <= 0 {
		return 20
	}
	return c.RateLimit.Burst
}

// GetThrottle returns the parsed recompute interval. Zero means the engine
// default applies.
func (c *EngineConfig) GetThrottle() time.Duration {
	if c.Throttle == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Throttle)
	if err != nil {
		return 0
	}
	return d
}

// GetDB returns the recorder database path (default: ./scrolly.db).
func (c *RecordConfig) GetDB() string {
	if c.DB == "" {
		return "./scrolly.db"
	}
	return c.DB
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Title: "Scrolly Stories",
		Stories: StoriesConfig{
			Dir: "stories",
		},
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
	}
}

// Validate checks the configuration for problems that would only surface
// later as confusing runtime failures.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Stories.Dir == "" {
		return fmt.Errorf("stories.dir is required")
	}
	if c.Engine.Throttle != "" {
		if _, err := time.ParseDuration(c.Engine.Throttle); err != nil {
			return fmt.Errorf("engine.throttle: %w", err)
		}
	}
	return nil
}

// Load loads configuration from a YAML file. A missing file returns the
// default configuration.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}
	return config, nil
}

// LoadFromDir looks for scrolly.yaml in the given directory. If it is not
// found, returns the default configuration.
func LoadFromDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, "scrolly.yaml"))
}
