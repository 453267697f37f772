// Package config loads the server configuration from a YAML file with
// PORTALPILOT_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"portalpilot-go/domain/target"
	"portalpilot-go/infrastructure/browser"
	"portalpilot-go/infrastructure/logging"
	"portalpilot-go/infrastructure/repository"
	"portalpilot-go/infrastructure/vault"
)

// Config holds the full server configuration.
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Browser BrowserConfig  `yaml:"browser"`
	Session SessionConfig  `yaml:"session"`
	Mongo   MongoConfig    `yaml:"mongo"`
	Vault   VaultConfig    `yaml:"vault"`
	Logging LoggingConfig  `yaml:"logging"`
	Targets []TargetConfig `yaml:"targets"`
}

// ServerConfig configures the command gateway transports.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	PingInterval    time.Duration `yaml:"pingInterval"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	MaxMessageSize  int64         `yaml:"maxMessageSize"`
	CommandRate     float64       `yaml:"commandRate"` // inbound push-channel commands per second
	CommandBurst    int           `yaml:"commandBurst"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// BrowserConfig configures the headless browser of each session.
type BrowserConfig struct {
	Headless          bool          `yaml:"headless"`
	ViewportWidth     int           `yaml:"viewportWidth"`
	ViewportHeight    int           `yaml:"viewportHeight"`
	NavigationTimeout time.Duration `yaml:"navigationTimeout"`
	ActionTimeout     time.Duration `yaml:"actionTimeout"`
	ScreenshotTimeout time.Duration `yaml:"screenshotTimeout"`
	UserDataDir       string        `yaml:"userDataDir"`
	NoSandbox         bool          `yaml:"noSandbox"`
	SnapshotDir       string        `yaml:"snapshotDir"` // replay failure snapshots; empty disables
}

// SessionConfig configures session lifecycle.
type SessionConfig struct {
	IdleTimeout   time.Duration `yaml:"idleTimeout"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
	CommandBuffer int           `yaml:"commandBuffer"`
	CloseTimeout  time.Duration `yaml:"closeTimeout"`
}

// MongoConfig configures persistence. An empty URI selects in-memory stores.
type MongoConfig struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	PingTimeout    time.Duration `yaml:"pingTimeout"`
}

// VaultConfig configures the credential vault. An empty BaseURL selects the
// static vault built from Static.
type VaultConfig struct {
	BaseURL        string                       `yaml:"baseURL"`
	Token          string                       `yaml:"token"`
	Timeout        time.Duration                `yaml:"timeout"`
	HealthInterval time.Duration                `yaml:"healthInterval"`
	Static         map[string]map[string]string `yaml:"static"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Dir        string `yaml:"dir"`
	JSON       bool   `yaml:"json"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// TargetConfig seeds a target into the in-memory store.
type TargetConfig struct {
	ID          string   `yaml:"id"`
	DisplayName string   `yaml:"displayName"`
	InitialURL  string   `yaml:"initialURL"`
	Bindings    []string `yaml:"bindings"`
}

// Default returns the built-in configuration.
func Default() *Config {
	drv := browser.DefaultDriverConfig()
	mongo := repository.DefaultMongoDBConfig()
	vc := vault.DefaultClientConfig()
	lc := logging.DefaultConfig()

	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			PingInterval:    30 * time.Second,
			WriteTimeout:    10 * time.Second,
			ReadTimeout:     60 * time.Second,
			MaxMessageSize:  65536,
			CommandRate:     20,
			CommandBurst:    40,
			ShutdownTimeout: 10 * time.Second,
		},
		Browser: BrowserConfig{
			Headless:          drv.Headless,
			ViewportWidth:     drv.ViewportWidth,
			ViewportHeight:    drv.ViewportHeight,
			NavigationTimeout: drv.NavigationTimeout,
			ActionTimeout:     drv.ActionTimeout,
			ScreenshotTimeout: drv.ScreenshotTimeout,
		},
		Session: SessionConfig{
			IdleTimeout:   15 * time.Minute,
			SweepInterval: 30 * time.Second,
			CommandBuffer: 16,
			CloseTimeout:  5 * time.Second,
		},
		Mongo: MongoConfig{
			Database:       mongo.Database,
			ConnectTimeout: mongo.ConnectTimeout,
			PingTimeout:    mongo.PingTimeout,
		},
		Vault: VaultConfig{
			Timeout:        vc.Timeout,
			HealthInterval: vc.HealthInterval,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
			MaxAgeDays: lc.MaxAgeDays,
			Compress:   lc.Compress,
		},
	}
}

// Load reads path (if non-empty) over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = getEnv("PORTALPILOT_ADDR", c.Server.Addr)
	c.Mongo.URI = getEnv("PORTALPILOT_MONGO_URI", c.Mongo.URI)
	c.Mongo.Database = getEnv("PORTALPILOT_MONGO_DATABASE", c.Mongo.Database)
	c.Vault.BaseURL = getEnv("PORTALPILOT_VAULT_URL", c.Vault.BaseURL)
	c.Vault.Token = getEnv("PORTALPILOT_VAULT_TOKEN", c.Vault.Token)
	c.Logging.Level = getEnv("PORTALPILOT_LOG_LEVEL", c.Logging.Level)
	c.Logging.Dir = getEnv("PORTALPILOT_LOG_DIR", c.Logging.Dir)
	c.Browser.Headless = getEnvBool("PORTALPILOT_HEADLESS", c.Browser.Headless)
	c.Browser.NoSandbox = getEnvBool("PORTALPILOT_NO_SANDBOX", c.Browser.NoSandbox)
	c.Browser.SnapshotDir = getEnv("PORTALPILOT_SNAPSHOT_DIR", c.Browser.SnapshotDir)
	c.Browser.ActionTimeout = getEnvDurationMs("PORTALPILOT_ACTION_TIMEOUT_MS", c.Browser.ActionTimeout)
	c.Browser.NavigationTimeout = getEnvDurationMs("PORTALPILOT_NAVIGATION_TIMEOUT_MS", c.Browser.NavigationTimeout)
	c.Session.IdleTimeout = getEnvDurationMs("PORTALPILOT_IDLE_TIMEOUT_MS", c.Session.IdleTimeout)
	c.Server.MaxMessageSize = int64(getEnvInt("PORTALPILOT_WS_MAX_MESSAGE_SIZE", int(c.Server.MaxMessageSize)))
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport must be positive, got %dx%d", c.Browser.ViewportWidth, c.Browser.ViewportHeight)
	}
	if c.Session.IdleTimeout <= 0 {
		return fmt.Errorf("session idleTimeout must be positive")
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("session sweepInterval must be positive")
	}
	if c.Browser.ActionTimeout <= 0 || c.Browser.NavigationTimeout <= 0 || c.Browser.ScreenshotTimeout <= 0 {
		return fmt.Errorf("browser timeouts must be positive")
	}
	seen := make(map[string]bool, len(c.Targets))
	for _, t := range c.Targets {
		if t.ID == "" {
			return fmt.Errorf("target without id")
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate target %q", t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}

// DriverConfig converts the browser section.
func (c *Config) DriverConfig() *browser.DriverConfig {
	d := browser.DefaultDriverConfig()
	d.Headless = c.Browser.Headless
	d.ViewportWidth = c.Browser.ViewportWidth
	d.ViewportHeight = c.Browser.ViewportHeight
	d.NavigationTimeout = c.Browser.NavigationTimeout
	d.ActionTimeout = c.Browser.ActionTimeout
	d.ScreenshotTimeout = c.Browser.ScreenshotTimeout
	d.UserDataDir = c.Browser.UserDataDir
	d.NoSandbox = c.Browser.NoSandbox
	return d
}

// MongoDBConfig converts the mongo section.
func (c *Config) MongoDBConfig() *repository.MongoDBConfig {
	return &repository.MongoDBConfig{
		URI:            c.Mongo.URI,
		Database:       c.Mongo.Database,
		ConnectTimeout: c.Mongo.ConnectTimeout,
		PingTimeout:    c.Mongo.PingTimeout,
	}
}

// VaultClientConfig converts the vault section.
func (c *Config) VaultClientConfig() *vault.ClientConfig {
	vc := vault.DefaultClientConfig()
	vc.BaseURL = c.Vault.BaseURL
	vc.Token = c.Vault.Token
	vc.Timeout = c.Vault.Timeout
	vc.HealthInterval = c.Vault.HealthInterval
	return vc
}

// LoggingSetup converts the logging section.
func (c *Config) LoggingSetup() *logging.Config {
	return &logging.Config{
		Level:      logging.ParseLevel(c.Logging.Level),
		Dir:        c.Logging.Dir,
		JSON:       c.Logging.JSON,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}

// SeedTargets converts the targets section.
func (c *Config) SeedTargets() []*target.Target {
	out := make([]*target.Target, len(c.Targets))
	for i, t := range c.Targets {
		out[i] = &target.Target{
			ID:                 t.ID,
			DisplayName:        t.DisplayName,
			InitialURL:         t.InitialURL,
			CredentialBindings: append([]string(nil), t.Bindings...),
		}
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDurationMs(key string, defaultVal time.Duration) time.Duration {
	ms := getEnvInt(key, -1)
	if ms < 0 {
		return defaultVal
	}
	return time.Duration(ms) * time.Millisecond
}
