// Package config loads and persists the daemon configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration.
type Config struct {
	ServerPort int    `json:"server_port" yaml:"server_port" mapstructure:"server_port"`
	LogLevel   string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty  bool   `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`

	// ThumbnailMaxDim bounds the longer side of delivered thumbnails.
	ThumbnailMaxDim int `json:"thumbnail_max_dim" yaml:"thumbnail_max_dim" mapstructure:"thumbnail_max_dim"`

	// ThumbnailCacheSize is the number of encoded thumbnails the API
	// server keeps in its LRU cache.
	ThumbnailCacheSize int `json:"thumbnail_cache_size" yaml:"thumbnail_cache_size" mapstructure:"thumbnail_cache_size"`
}

// Manager loads the configuration from disk and serves consistent copies.
type Manager struct {
	mu   sync.RWMutex
	cfg  Config
	path string
}

// DefaultConfigPath returns ~/.config/waytrack/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "waytrack", "config.yaml"), nil
}

// NewManager loads configuration from the given file, or from the default
// location when path is empty. A missing config file is not an error; the
// defaults apply.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetDefault("server_port", 8087)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)
	v.SetDefault("thumbnail_max_dim", 128)
	v.SetDefault("thumbnail_cache_size", 256)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	m := &Manager{path: path}
	if err := v.Unmarshal(&m.cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return m, nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Path returns the config file location in use.
func (m *Manager) Path() string {
	return m.path
}

// SetPort overrides the API server port.
func (m *Manager) SetPort(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.ServerPort = port
}

// SetLogLevel overrides the log level.
func (m *Manager) SetLogLevel(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.LogLevel = level
}

// Save writes the current configuration back to disk, creating the config
// directory if needed.
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.cfg
	m.mu.RUnlock()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", m.path, err)
	}
	return nil
}
