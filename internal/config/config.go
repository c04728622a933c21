package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents ~/.memegram/config.toml. Environment variables take
// precedence over file values so credentials can stay out of the file.
type Config struct {
	BackendURL string `toml:"backend_url"`
	AnonKey    string `toml:"anon_key"`
	GiphyKey   string `toml:"giphy_api_key"`
}

// Load reads config from the given path, then applies environment
// overrides. A missing file is not an error as long as the environment
// provides everything.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MEMEGRAM_BACKEND_URL"); v != "" {
		c.BackendURL = v
	}
	if v := os.Getenv("MEMEGRAM_ANON_KEY"); v != "" {
		c.AnonKey = v
	}
	if v := os.Getenv("GIPHY_API_KEY"); v != "" {
		c.GiphyKey = v
	}
}

// Validate checks that every required value is present and well-formed.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("backend_url is required (config.toml or MEMEGRAM_BACKEND_URL)")
	}
	parsed, err := url.Parse(c.BackendURL)
	if err != nil || parsed.Scheme == "" {
		return fmt.Errorf("backend_url must include a scheme: %q", c.BackendURL)
	}
	if c.AnonKey == "" {
		return fmt.Errorf("anon_key is required (config.toml or MEMEGRAM_ANON_KEY)")
	}
	if c.GiphyKey == "" {
		return fmt.Errorf("giphy_api_key is required (config.toml or GIPHY_API_KEY)")
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
