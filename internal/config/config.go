// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Server() ServerConfig
	Engine() EngineConfig
	Browser() BrowserConfig
	Inspect() InspectConfig
	Session() SessionConfig

	// Browser Setters
	SetBrowserHeadless(bool)

	// Server Setters
	SetServerDebug(bool)
}

// Config holds the entire application configuration.
// Access in application code goes through the Interface's getter methods.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	ServerCfg  ServerConfig  `mapstructure:"server" yaml:"server"`
	EngineCfg  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	InspectCfg InspectConfig `mapstructure:"inspect" yaml:"inspect"`
	SessionCfg SessionConfig `mapstructure:"session" yaml:"session"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Server() ServerConfig   { return c.ServerCfg }
func (c *Config) Engine() EngineConfig   { return c.EngineCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Inspect() InspectConfig { return c.InspectCfg }
func (c *Config) Session() SessionConfig { return c.SessionCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool) { c.BrowserCfg.Headless = b }
func (c *Config) SetServerDebug(b bool)     { c.ServerCfg.Debug = b }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// ServerConfig identifies the MCP server and its runtime toggles.
type ServerConfig struct {
	Name    string `mapstructure:"name" yaml:"name"`
	Version string `mapstructure:"version" yaml:"version"`
	Debug   bool   `mapstructure:"debug" yaml:"debug"`
}

// EngineConfig configures the natural-language automation engine.
type EngineConfig struct {
	APIKey           string        `mapstructure:"api_key" yaml:"-"`
	Model            string        `mapstructure:"model" yaml:"model"`
	MaxSteps         int           `mapstructure:"max_steps" yaml:"max_steps"`
	ActTimeout       time.Duration `mapstructure:"act_timeout" yaml:"act_timeout"`
	StartTimeout     time.Duration `mapstructure:"start_timeout" yaml:"start_timeout"`
	MaxRetryAttempts int           `mapstructure:"max_retry_attempts" yaml:"max_retry_attempts"`
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	ProfilesDir     string   `mapstructure:"profiles_dir" yaml:"profiles_dir"`
	DefaultIdentity string   `mapstructure:"default_identity" yaml:"default_identity"`
	Args            []string `mapstructure:"args" yaml:"args"`
}

// InspectConfig tunes the page inspection and screenshot capture behavior.
type InspectConfig struct {
	ScreenshotQuality   int `mapstructure:"screenshot_quality" yaml:"screenshot_quality"`
	MaxInlineImageBytes int `mapstructure:"max_inline_image_bytes" yaml:"max_inline_image_bytes"`
}

// SessionConfig controls session registry housekeeping.
type SessionConfig struct {
	Retention   time.Duration `mapstructure:"retention" yaml:"retention"`
	GCInterval  time.Duration `mapstructure:"gc_interval" yaml:"gc_interval"`
	QueueSize   int           `mapstructure:"queue_size" yaml:"queue_size"`
	MaxFileSize int64         `mapstructure:"max_file_size" yaml:"max_file_size"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "novaact-mcp")
	v.SetDefault("logger.log_file", "novaact-mcp.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Server --
	v.SetDefault("server.name", "novaact-mcp")
	v.SetDefault("server.version", "1.0")
	v.SetDefault("server.debug", false)

	// -- Engine --
	v.SetDefault("engine.model", "gemini-2.5-flash")
	v.SetDefault("engine.max_steps", 30)
	v.SetDefault("engine.act_timeout", "180s")
	v.SetDefault("engine.start_timeout", "60s")
	v.SetDefault("engine.max_retry_attempts", 2)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.profiles_dir", "~/.novaact-mcp/profiles")
	v.SetDefault("browser.default_identity", "default")

	// -- Inspect --
	v.SetDefault("inspect.screenshot_quality", 70)
	v.SetDefault("inspect.max_inline_image_bytes", 1<<20)

	// -- Session --
	v.SetDefault("session.retention", "600s")
	v.SetDefault("session.gc_interval", "60s")
	v.SetDefault("session.queue_size", 32)
	v.SetDefault("session.max_file_size", 10*1024*1024)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("engine.api_key", "NOVA_ACT_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	expanded, err := homedir.Expand(cfg.BrowserCfg.ProfilesDir)
	if err != nil {
		return nil, fmt.Errorf("error expanding browser.profiles_dir: %w", err)
	}
	cfg.BrowserCfg.ProfilesDir = expanded

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.EngineCfg.MaxSteps <= 0 {
		return fmt.Errorf("engine.max_steps must be a positive integer")
	}
	if c.EngineCfg.ActTimeout <= 0 {
		return fmt.Errorf("engine.act_timeout must be a positive duration")
	}
	if c.EngineCfg.MaxRetryAttempts < 0 {
		return fmt.Errorf("engine.max_retry_attempts must not be negative")
	}
	if c.SessionCfg.Retention <= 0 {
		return fmt.Errorf("session.retention must be a positive duration")
	}
	if c.SessionCfg.QueueSize <= 0 {
		return fmt.Errorf("session.queue_size must be a positive integer")
	}
	if q := c.InspectCfg.ScreenshotQuality; q < 1 || q > 100 {
		return fmt.Errorf("inspect.screenshot_quality must be between 1 and 100")
	}
	return nil
}
