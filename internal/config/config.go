// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/duckduckgo/shared-web-tests/internal/retry"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Locator() LocatorConfig
	WebDriver() WebDriverConfig
	Server() ServerConfig
	Build() BuildConfig

	SetBrowserHeadless(bool)
	SetWebDriverPort(int)
	SetServerDir(string)
	SetServerPort(int)

	Validate() error
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	LocatorCfg   LocatorConfig   `mapstructure:"locator" yaml:"locator"`
	WebDriverCfg WebDriverConfig `mapstructure:"webdriver" yaml:"webdriver"`
	ServerCfg    ServerConfig    `mapstructure:"server" yaml:"server"`
	BuildCfg     BuildConfig     `mapstructure:"build" yaml:"build"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Locator() LocatorConfig     { return c.LocatorCfg }
func (c *Config) WebDriver() WebDriverConfig { return c.WebDriverCfg }
func (c *Config) Server() ServerConfig       { return c.ServerCfg }
func (c *Config) Build() BuildConfig         { return c.BuildCfg }

// -- Setters for CLI flag overrides --
func (c *Config) SetBrowserHeadless(b bool) { c.BrowserCfg.Headless = b }
func (c *Config) SetWebDriverPort(p int)    { c.WebDriverCfg.Port = p }
func (c *Config) SetServerDir(d string)     { c.ServerCfg.Dir = d }
func (c *Config) SetServerPort(p int)       { c.ServerCfg.Port = p }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the Chrome instance driven over CDP.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// LocatorConfig is the retry budget of a find element invocation.
type LocatorConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseUnit      time.Duration `mapstructure:"base_unit" yaml:"base_unit"`
	Cap           time.Duration `mapstructure:"cap" yaml:"cap"`
	ScriptTimeout time.Duration `mapstructure:"script_timeout" yaml:"script_timeout"`
}

// Policy converts the settings into a retry policy.
func (l LocatorConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts: l.MaxAttempts,
		BaseUnit:    l.BaseUnit,
		Cap:         l.Cap,
	}
}

// WebDriverConfig configures the WebDriver HTTP endpoint.
type WebDriverConfig struct {
	Host         string   `mapstructure:"host" yaml:"host"`
	Port         int      `mapstructure:"port" yaml:"port"`
	AllowedHosts []string `mapstructure:"allowed_hosts" yaml:"allowed_hosts"`
	StartURL     string   `mapstructure:"start_url" yaml:"start_url"`
}

// ServerConfig configures the static server for the assembled test tree.
type ServerConfig struct {
	Dir  string `mapstructure:"dir" yaml:"dir"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// BuildConfig describes how the servable test tree is assembled from the
// upstream corpus.
type BuildConfig struct {
	SourceRoot      string   `mapstructure:"source_root" yaml:"source_root"`
	OutputDir       string   `mapstructure:"output_dir" yaml:"output_dir"`
	Files           []string `mapstructure:"files" yaml:"files"`
	Dirs            []string `mapstructure:"dirs" yaml:"dirs"`
	PatchFile       string   `mapstructure:"patch_file" yaml:"patch_file"`
	ManifestCommand []string `mapstructure:"manifest_command" yaml:"manifest_command"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
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
	v.SetDefault("logger.service_name", "shared-web-tests")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.navigation_timeout", "30s")

	// -- Locator --
	v.SetDefault("locator.max_attempts", retry.DefaultMaxAttempts)
	v.SetDefault("locator.base_unit", retry.DefaultBaseUnit)
	v.SetDefault("locator.cap", retry.DefaultCap)
	v.SetDefault("locator.script_timeout", "30s")

	// -- WebDriver --
	v.SetDefault("webdriver.host", "localhost")
	v.SetDefault("webdriver.port", 4444)
	v.SetDefault("webdriver.allowed_hosts", []string{"localhost", "127.0.0.1", "::1"})
	v.SetDefault("webdriver.start_url", "about:blank")

	// -- Static server --
	v.SetDefault("server.dir", "build/")
	v.SetDefault("server.port", 8383)

	// -- Build --
	v.SetDefault("build.source_root", "web-platform-tests")
	v.SetDefault("build.output_dir", "build")
	v.SetDefault("build.files", []string{
		"resources/testharness.js",
		"resources/testharnessreport.js",
		"referrer-policy/generic/test-case.sub.js",
	})
	v.SetDefault("build.dirs", []string{
		"html/browsers/browsing-the-web/navigating-across-documents/multiple-globals",
	})
	v.SetDefault("build.patch_file", "")
	v.SetDefault("build.manifest_command", []string{})
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	v.SetEnvPrefix("SWT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The static server keeps the harness's unprefixed variables.
	_ = v.BindEnv("server.dir", "SERVER_DIR")
	_ = v.BindEnv("server.port", "SERVER_PORT")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.LocatorCfg.Policy().Validate(); err != nil {
		return fmt.Errorf("locator configuration invalid: %w", err)
	}
	if c.LocatorCfg.ScriptTimeout <= 0 {
		return fmt.Errorf("locator.script_timeout must be a positive duration")
	}
	if c.BrowserCfg.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be a positive duration")
	}
	if c.WebDriverCfg.Port < 0 || c.WebDriverCfg.Port > 65535 {
		return fmt.Errorf("webdriver.port must be between 0 and 65535")
	}
	if c.ServerCfg.Port < 0 || c.ServerCfg.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535")
	}
	if c.ServerCfg.Dir == "" {
		return fmt.Errorf("server.dir is a required configuration field")
	}
	return nil
}

// Validate checks the build plan settings.
func (b BuildConfig) Validate() error {
	if b.SourceRoot == "" {
		return fmt.Errorf("build.source_root is required")
	}
	if b.OutputDir == "" {
		return fmt.Errorf("build.output_dir is required")
	}
	return nil
}
