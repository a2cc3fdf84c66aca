// Package config handles configuration management using Viper
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	// Connection configuration
	Connection ConnectionConfig `mapstructure:"connection"`

	// Input pipeline tuning
	Input InputConfig `mapstructure:"input"`

	// Adaptive quality loop targets
	Quality QualityConfig `mapstructure:"quality"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// ConnectionConfig describes the remote framebuffer endpoint and the
// session-issuance service.
type ConnectionConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Path           string `mapstructure:"path"`
	Secure         bool   `mapstructure:"secure"`    // wss:// when true
	AuthURL        string `mapstructure:"auth_url"`  // session-issuance endpoint
	ReconnectDelay int    `mapstructure:"reconnect_delay"` // seconds between reconnect attempts
	MaxReconnects  int    `mapstructure:"max_reconnects"`  // consecutive failures before giving up
}

// InputConfig tunes the per-modality handlers.
type InputConfig struct {
	MovementThreshold float64 `mapstructure:"movement_threshold"` // px
	SmoothingFactor   float64 `mapstructure:"smoothing_factor"`   // 0 disables smoothing
	DoubleClickMs     int     `mapstructure:"double_click_ms"`
	RepeatDelayMs     int     `mapstructure:"repeat_delay_ms"`
	RepeatIntervalMs  int     `mapstructure:"repeat_interval_ms"`
	LongPressMs       int     `mapstructure:"long_press_ms"`
	SwipeThreshold    float64 `mapstructure:"swipe_threshold"` // px
	KeyboardLayout    string  `mapstructure:"keyboard_layout"`
	MaxEventsPerSec   int     `mapstructure:"max_events_per_sec"` // per-modality rate limit
}

// QualityConfig holds the initial preset and the adaptive-loop targets.
type QualityConfig struct {
	Preset            string  `mapstructure:"preset"` // high, balanced, low
	TargetFrameRate   float64 `mapstructure:"target_frame_rate"`
	BandwidthCeiling  float64 `mapstructure:"bandwidth_ceiling_kbps"`
	AdaptiveEnabled   bool    `mapstructure:"adaptive_enabled"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	FileLogging bool   `mapstructure:"file_logging"`
	LogLevel    string `mapstructure:"log_level"` // Override LOG_LEVEL env var
	AuditPath   string `mapstructure:"audit_path"`
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Connection: ConnectionConfig{
			Host:           "",
			Port:           5901,
			Path:           "/websockify",
			Secure:         true,
			AuthURL:        "",
			ReconnectDelay: 3,
			MaxReconnects:  10,
		},
		Input: InputConfig{
			MovementThreshold: 3,
			SmoothingFactor:   0,
			DoubleClickMs:     300,
			RepeatDelayMs:     500,
			RepeatIntervalMs:  40,
			LongPressMs:       550,
			SwipeThreshold:    50,
			KeyboardLayout:    "us",
			MaxEventsPerSec:   240,
		},
		Quality: QualityConfig{
			Preset:           "balanced",
			TargetFrameRate:  30,
			BandwidthCeiling: 8000,
			AdaptiveEnabled:  true,
		},
		Logging: LoggingConfig{
			FileLogging: true,
			LogLevel:    "",
			AuditPath:   "",
		},
	}

	// Global config instance
	cfg *Config

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("deskbridge")
	viper.SetConfigType("toml")

	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		viper.AddConfigPath("/etc/deskbridge")
		if home := os.Getenv("HOME"); home != "" && home != "/root" {
			viper.AddConfigPath(filepath.Join(home, ".config", "deskbridge"))
		}
		viper.AddConfigPath(".")
	}

	// Set defaults - individual fields so file values merge over them
	viper.SetDefault("connection.host", DefaultConfig.Connection.Host)
	viper.SetDefault("connection.port", DefaultConfig.Connection.Port)
	viper.SetDefault("connection.path", DefaultConfig.Connection.Path)
	viper.SetDefault("connection.secure", DefaultConfig.Connection.Secure)
	viper.SetDefault("connection.auth_url", DefaultConfig.Connection.AuthURL)
	viper.SetDefault("connection.reconnect_delay", DefaultConfig.Connection.ReconnectDelay)
	viper.SetDefault("connection.max_reconnects", DefaultConfig.Connection.MaxReconnects)

	viper.SetDefault("input.movement_threshold", DefaultConfig.Input.MovementThreshold)
	viper.SetDefault("input.smoothing_factor", DefaultConfig.Input.SmoothingFactor)
	viper.SetDefault("input.double_click_ms", DefaultConfig.Input.DoubleClickMs)
	viper.SetDefault("input.repeat_delay_ms", DefaultConfig.Input.RepeatDelayMs)
	viper.SetDefault("input.repeat_interval_ms", DefaultConfig.Input.RepeatIntervalMs)
	viper.SetDefault("input.long_press_ms", DefaultConfig.Input.LongPressMs)
	viper.SetDefault("input.swipe_threshold", DefaultConfig.Input.SwipeThreshold)
	viper.SetDefault("input.keyboard_layout", DefaultConfig.Input.KeyboardLayout)
	viper.SetDefault("input.max_events_per_sec", DefaultConfig.Input.MaxEventsPerSec)

	viper.SetDefault("quality.preset", DefaultConfig.Quality.Preset)
	viper.SetDefault("quality.target_frame_rate", DefaultConfig.Quality.TargetFrameRate)
	viper.SetDefault("quality.bandwidth_ceiling_kbps", DefaultConfig.Quality.BandwidthCeiling)
	viper.SetDefault("quality.adaptive_enabled", DefaultConfig.Quality.AdaptiveEnabled)

	viper.SetDefault("logging.file_logging", DefaultConfig.Logging.FileLogging)
	viper.SetDefault("logging.log_level", DefaultConfig.Logging.LogLevel)
	viper.SetDefault("logging.audit_path", DefaultConfig.Logging.AuditPath)

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}

	return nil
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		// Return defaults if not initialized
		return &DefaultConfig
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfg = c
}

// Save saves the current configuration to file
func Save() error {
	configPath := GetConfigPath()

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		if os.IsPermission(err) && strings.Contains(configPath, "/etc/") {
			return fmt.Errorf("failed to create config directory %s: permission denied. Try running with sudo", dir)
		}
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}

	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/deskbridge/deskbridge.toml"
	}

	return filepath.Join(home, ".config", "deskbridge", "deskbridge.toml")
}

// ServerURL assembles the websocket endpoint URL from the connection
// settings. Scheme follows the security context: wss over TLS,
// plaintext ws otherwise.
func (c *ConnectionConfig) ServerURL() string {
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	path := c.Path
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, c.Host, c.Port, path)
}
