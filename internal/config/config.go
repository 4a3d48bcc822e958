// Package config stores the formsync CLI settings in
// ~/.config/formsync/config.json.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	configFile = "config.json"

	// DefaultServerURL is used when neither the environment nor the config
	// file names a server.
	DefaultServerURL = "http://localhost:8080"
)

// Config is the CLI's persisted state.
type Config struct {
	ServerURL string `json:"server_url,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	Email     string `json:"email,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// Dir returns the config directory, creating it if necessary.
// FORMSYNC_CONFIG_DIR overrides the default ~/.config/formsync.
func Dir() (string, error) {
	dir := os.Getenv("FORMSYNC_CONFIG_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home dir: %w", err)
		}
		dir = filepath.Join(home, ".config", "formsync")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// Load reads the config from dir. A missing file yields an empty config.
func Load(dir string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, configFile))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configFile, err)
	}
	return &cfg, nil
}

// Save writes the config to dir using atomic write (temp file + rename).
// The file holds an API key, so it is private to the user.
func Save(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "config-*.json.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, filepath.Join(dir, configFile))
}

// Update loads the config, applies fn and saves the result while holding
// the config lock, so concurrent CLI invocations do not lose writes.
func Update(dir string, fn func(*Config) error) error {
	return withLock(dir, func() error {
		cfg, err := Load(dir)
		if err != nil {
			return err
		}
		if err := fn(cfg); err != nil {
			return err
		}
		return Save(dir, cfg)
	})
}

// Keys returns the names accepted by Get and Set.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var fields = map[string]func(*Config) *string{
	"server_url": func(c *Config) *string { return &c.ServerURL },
	"api_key":    func(c *Config) *string { return &c.APIKey },
	"email":      func(c *Config) *string { return &c.Email },
	"user_id":    func(c *Config) *string { return &c.UserID },
}

// Get returns the value stored under key.
func (c *Config) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(Keys(), ", "))
	}
	return *f(c), nil
}

// Set stores value under key.
func (c *Config) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(Keys(), ", "))
	}
	if key == "server_url" {
		value = strings.TrimRight(value, "/")
	}
	*f(c) = value
	return nil
}

// ResolveServerURL returns the server URL.
// Priority: FORMSYNC_SERVER env > config.json > default.
func (c *Config) ResolveServerURL() string {
	if v := os.Getenv("FORMSYNC_SERVER"); v != "" {
		return v
	}
	if c != nil && c.ServerURL != "" {
		return c.ServerURL
	}
	return DefaultServerURL
}

// ResolveAPIKey returns the API key.
// Priority: FORMSYNC_API_KEY env > config.json.
func (c *Config) ResolveAPIKey() string {
	if v := os.Getenv("FORMSYNC_API_KEY"); v != "" {
		return v
	}
	if c != nil {
		return c.APIKey
	}
	return ""
}
