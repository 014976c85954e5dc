// Package config provides configuration loading and structs for the Meishi server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Assistant AssistantConfig `yaml:"assistant"`
	Enrich    EnrichConfig    `yaml:"enrich"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database, indices, and staged uploads.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	VectorIndexPath  string `yaml:"vector_index_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
	StagingDir       string `yaml:"staging_dir"`
}

// EmbeddingConfig holds hosted embedding API settings. APIKey falls back to the
// OPENAI_API_KEY environment variable when empty.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"`
}

// ResolveAPIKey returns the configured API key or the OPENAI_API_KEY environment value.
func (e *EmbeddingConfig) ResolveAPIKey() string {
	if e.APIKey != "" {
		return e.APIKey
	}
	return os.Getenv("OPENAI_API_KEY")
}

// AssistantConfig holds chat completion settings for the assistant endpoint.
type AssistantConfig struct {
	Model            string `yaml:"model"`
	MaxContextChunks int    `yaml:"max_context_chunks"`
	MaxHistory       int    `yaml:"max_history"`
}

// EnrichConfig holds import reconciliation settings.
type EnrichConfig struct {
	// SessionTTLMinutes is how long a pending match report is held before its
	// staged files are reclaimed.
	SessionTTLMinutes int  `yaml:"session_ttl_minutes"`
	DefaultOverwrite  bool `yaml:"default_overwrite"`
}

// WatchConfig holds inbox auto-import settings. Contact files dropped into a
// watched directory are imported with default actions on behalf of UserEmail.
// The watcher only runs when both directories and user_email are set.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	UserEmail   string   `yaml:"user_email"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)
	cfg.Storage.StagingDir = expandPath(cfg.Storage.StagingDir, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
