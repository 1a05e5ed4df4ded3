// Package config loads sideboard server configuration from YAML with
// environment variable overrides.
package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	sberrors "github.com/odvcencio/sideboard/pkg/errors"
)

// Config is the top-level server configuration.
type Config struct {
	Listen  string        `yaml:"listen"`
	Logging LoggingConfig `yaml:"logging"`
	NATS    NATSConfig    `yaml:"nats"`
	Sidebar SidebarConfig `yaml:"sidebar"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// NATSConfig enables frame delivery over NATS instead of local WebSockets.
type NATSConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	Name          string        `yaml:"name"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	Timeout       time.Duration `yaml:"timeout"`
}

// SidebarConfig declares the sidebar content served to viewers.
type SidebarConfig struct {
	Title         string        `yaml:"title"`
	TitleFrames   []string      `yaml:"title_frames"`
	TitlePeriod   time.Duration `yaml:"title_period"`
	RefreshPeriod time.Duration `yaml:"refresh_period"`
	Lines         []string      `yaml:"lines"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen: ":8080",
		Logging: LoggingConfig{
			Level: "info",
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://127.0.0.1:4222",
			Name:          "sideboard",
			SubjectPrefix: "sideboard.viewer",
			Timeout:       30 * time.Second,
		},
		Sidebar: SidebarConfig{
			Title:         "&6&lSideboard",
			TitlePeriod:   50 * time.Millisecond,
			RefreshPeriod: time.Second,
		},
	}
}

// Load reads the config at path, falling back to defaults when path is
// empty or the file does not exist. Environment overrides apply last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, sberrors.Wrap(err, sberrors.ErrCodeConfigLoad, "read config file").
					WithContext("path", path)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, sberrors.Wrap(err, sberrors.ErrCodeConfigParse, "parse config file").
				WithContext("path", path)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SIDEBOARD_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("SIDEBOARD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SIDEBOARD_NATS_URL"); v != "" {
		cfg.NATS.Enabled = true
		cfg.NATS.URL = v
	}
	if v := os.Getenv("SIDEBOARD_TITLE"); v != "" {
		cfg.Sidebar.Title = v
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return sberrors.New(sberrors.ErrCodeConfigInvalid, "listen address is required")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return sberrors.New(sberrors.ErrCodeConfigInvalid, "invalid log level").
			WithContext("level", c.Logging.Level)
	}

	if c.NATS.Enabled && strings.TrimSpace(c.NATS.URL) == "" {
		return sberrors.New(sberrors.ErrCodeConfigInvalid, "nats url is required when nats is enabled")
	}

	if c.Sidebar.Title == "" && len(c.Sidebar.TitleFrames) == 0 {
		return sberrors.New(sberrors.ErrCodeConfigInvalid, "sidebar title or title frames are required")
	}
	if len(c.Sidebar.TitleFrames) > 0 && c.Sidebar.TitlePeriod <= 0 {
		return sberrors.New(sberrors.ErrCodeConfigInvalid, "title period must be positive for animated titles")
	}
	if c.Sidebar.RefreshPeriod < 0 {
		return sberrors.New(sberrors.ErrCodeConfigInvalid, "refresh period must not be negative")
	}

	return nil
}
