package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Flow      FlowConfig      `mapstructure:"flow" yaml:"flow"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge" yaml:"knowledge"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig contains configuration for the WebSocket turn endpoint.
type ServerConfig struct {
	// Host is the listen address (default: localhost)
	Host string `mapstructure:"host" yaml:"host"`
	// Port is the listen port (default: 8732)
	Port int `mapstructure:"port" yaml:"port"`
	// WriteTimeout bounds a single response write (e.g. "10s")
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// StorageConfig contains configuration for the transcript store.
type StorageConfig struct {
	// Enabled determines whether turns are persisted at all
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// DataDir is the directory holding the SQLite transcript database
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
}

// FlowConfig contains configuration for the conversation flow.
type FlowConfig struct {
	// Path is the flow specification YAML file; empty means the built-in flow
	Path string `mapstructure:"path" yaml:"path"`
}

// KnowledgeConfig contains configuration for fact retrieval.
type KnowledgeConfig struct {
	// FactsPath is a YAML file of static facts; empty disables retrieval
	FactsPath string `mapstructure:"facts_path" yaml:"facts_path"`
}

// LoggingConfig contains configuration for application logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error")
	Level string `mapstructure:"level" yaml:"level"`
	// File is the path to the log file; empty logs to stderr
	File string `mapstructure:"file" yaml:"file"`
	// Pretty enables human-readable console output instead of JSON
	Pretty bool `mapstructure:"pretty" yaml:"pretty"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".rudder")

	return &Config{
		Server: ServerConfig{
			Host:         "localhost",
			Port:         8732,
			WriteTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Enabled: true,
			DataDir: dataDir,
		},
		Flow:      FlowConfig{Path: ""},
		Knowledge: KnowledgeConfig{FactsPath: ""},
		Logging: LoggingConfig{
			Level:  "info",
			File:   "",
			Pretty: false,
		},
	}
}

// Load reads configuration from the default location (~/.rudder/config.yaml)
// and merges with environment variables. If no config file exists, it creates
// one with default values.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".rudder", "config.yaml")
	return LoadFromPath(configPath)
}

// LoadFromPath reads configuration from a specific file path and merges with
// environment variables. If the file doesn't exist, it creates one with
// default values.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := writeConfigFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Environment variable overrides, e.g. RUDDER_SERVER_PORT.
	v.SetEnvPrefix("RUDDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir)
	cfg.Flow.Path = expandPath(cfg.Flow.Path)
	cfg.Knowledge.FactsPath = expandPath(cfg.Knowledge.FactsPath)
	cfg.Logging.File = expandPath(cfg.Logging.File)

	return &cfg, nil
}

// SaveToPath writes the current configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return writeConfigFile(path, c)
}

// Addr returns the server listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate performs basic sanity checks on the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if c.Storage.Enabled && c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir cannot be empty when storage is enabled")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// writeConfigFile writes a Config struct to a YAML file.
// Uses gopkg.in/yaml.v3 directly to ensure proper tag-based serialization.
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandPath expands ~ to the user's home directory in a path string.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
