// Package config provides configuration management for Mirage
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/Hausmaster333/MirageGen/internal/audio"
	"github.com/Hausmaster333/MirageGen/internal/engine"
	"github.com/Hausmaster333/MirageGen/internal/logging"
	"github.com/Hausmaster333/MirageGen/internal/presets"
	"github.com/Hausmaster333/MirageGen/internal/stream"
)

const (
	dirName   = ".mirage"
	envPrefix = "MIRAGE"
)

// Config holds all application configuration
type Config struct {
	Server  stream.Config  `mapstructure:"server"`
	Engine  engine.Config  `mapstructure:"engine"`
	Presets presets.Config `mapstructure:"presets"`
	Audio   audio.Config   `mapstructure:"audio"`
	Logging logging.Config `mapstructure:"logging"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
}

// MetricsConfig configures the prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Server:  stream.DefaultConfig(),
		Engine:  engine.DefaultConfig(),
		Presets: presets.DefaultConfig(),
		Audio:   audio.DefaultConfig(),
		Logging: *logging.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  "127.0.0.1:9464",
			Path:    "/metrics",
		},
	}
}

// Load reads configuration from configPath, or from config.yaml in the
// config directory or the working directory when configPath is empty.
// MIRAGE_* environment variables override file values, with nested keys
// joined by underscores (MIRAGE_SERVER_BASE_URL).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := GetConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Presets.Dir = expandHome(cfg.Presets.Dir)
	cfg.Logging.LogDir = expandHome(cfg.Logging.LogDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration to config.yaml in the config directory
func Save(cfg *Config) error {
	dir, err := GetConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return SaveToFile(cfg, filepath.Join(dir, "config.yaml"))
}

// SaveToFile writes the configuration to path. Sections are keyed by their
// mapstructure names so the file reads back through Load.
func SaveToFile(cfg *Config, path string) error {
	var sections map[string]any
	if err := mapstructure.Decode(cfg, &sections); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	v := viper.New()
	for name, section := range sections {
		var values map[string]any
		if err := mapstructure.Decode(section, &values); err != nil {
			return fmt.Errorf("failed to encode %s config: %w", name, err)
		}
		v.Set(name, values)
	}
	return v.WriteConfigAs(path)
}

// Validate checks the values the engine cannot run with
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server base_url is required")
	}
	if c.Engine.TickRate <= 0 || c.Engine.TickRate > 1000 {
		return fmt.Errorf("invalid engine tick_rate: %d (must be 1-1000)", c.Engine.TickRate)
	}
	if c.Engine.Crossfade < 0 {
		return fmt.Errorf("invalid engine crossfade: %v", c.Engine.Crossfade)
	}
	if c.Engine.IdleBaseline < 0 || c.Engine.IdleBaseline > 1 {
		return fmt.Errorf("invalid engine idle_baseline: %v (must be 0-1)", c.Engine.IdleBaseline)
	}
	if c.Server.SessionTimeout < 0 {
		return fmt.Errorf("invalid server session_timeout: %v", c.Server.SessionTimeout)
	}
	switch c.Audio.Format {
	case audio.FormatWAV, audio.FormatPCM, audio.FormatMP3, audio.FormatOpus:
	default:
		return fmt.Errorf("invalid audio format: %s (must be wav, pcm, mp3 or opus)", c.Audio.Format)
	}
	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			return fmt.Errorf("invalid metrics listen address %q: %w", c.Metrics.Listen, err)
		}
	}
	return nil
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, dirName), nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.base_url", d.Server.BaseURL)
	v.SetDefault("server.stream_path", d.Server.StreamPath)
	v.SetDefault("server.chat_path", d.Server.ChatPath)
	v.SetDefault("server.health_path", d.Server.HealthPath)
	v.SetDefault("server.dial_timeout", d.Server.DialTimeout)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout)
	v.SetDefault("server.session_timeout", d.Server.SessionTimeout)

	v.SetDefault("engine.tick_rate", d.Engine.TickRate)
	v.SetDefault("engine.crossfade", d.Engine.Crossfade)
	v.SetDefault("engine.idle_baseline", d.Engine.IdleBaseline)
	v.SetDefault("engine.idle_approach", d.Engine.IdleApproach)
	v.SetDefault("engine.viseme_attack", d.Engine.VisemeAttack)
	v.SetDefault("engine.viseme_decay", d.Engine.VisemeDecay)
	v.SetDefault("engine.viseme_threshold", d.Engine.VisemeThreshold)
	v.SetDefault("engine.smoothing", d.Engine.Smoothing)
	v.SetDefault("engine.motion_attack", d.Engine.MotionAttack)
	v.SetDefault("engine.motion_relax", d.Engine.MotionRelax)
	v.SetDefault("engine.work_queue", d.Engine.WorkQueue)

	v.SetDefault("presets.dir", d.Presets.Dir)
	v.SetDefault("presets.fallback", d.Presets.Fallback)
	v.SetDefault("presets.watch", d.Presets.Watch)
	v.SetDefault("presets.idle", d.Presets.Idle)
	v.SetDefault("presets.thinking", d.Presets.Thinking)

	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.format", string(d.Audio.Format))

	v.SetDefault("logging.log_dir", d.Logging.LogDir)
	v.SetDefault("logging.level", string(d.Logging.Level))
	v.SetDefault("logging.console", d.Logging.Console)
	v.SetDefault("logging.file", d.Logging.File)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
	v.SetDefault("metrics.path", d.Metrics.Path)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
