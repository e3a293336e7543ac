package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/evcraddock/carevisit/internal/geo"
)

const defaultServerURL = "http://localhost:8080"

// CLIConfig is the caregiver's local settings, stored as YAML in
// ~/.config/cv/config.yaml.
type CLIConfig struct {
	ServerURL   string     `yaml:"server_url,omitempty"`
	APIKey      string     `yaml:"api_key,omitempty"`
	CaregiverID string     `yaml:"caregiver_id,omitempty"`
	Location    geo.Config `yaml:"location,omitempty"`
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".config", "cv", "config.yaml"), nil
}

// loadConfig reads the config file. A missing file is an empty config;
// unknown keys are rejected so a misspelt location setting is not ignored.
func loadConfig() (CLIConfig, error) {
	var cfg CLIConfig

	path, err := configPath()
	if err != nil {
		return cfg, err
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return cfg, nil
	case err != nil:
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return CLIConfig{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// saveConfig replaces the config file through a temp file in the same
// directory, so a failed write never leaves a truncated config behind.
func saveConfig(cfg CLIConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// setting resolves one value: the environment wins, then the config file,
// then fallback. An unreadable config file counts as empty.
func setting(env string, pick func(CLIConfig) string, fallback string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	if cfg, err := loadConfig(); err == nil {
		if v := pick(cfg); v != "" {
			return v
		}
	}
	return fallback
}

func getServerURL() string {
	return setting("CV_SERVER_URL", func(c CLIConfig) string { return c.ServerURL }, defaultServerURL)
}

func getAPIKey() string {
	return setting("CV_API_KEY", func(c CLIConfig) string { return c.APIKey }, "")
}

func getCaregiverID() string {
	return setting("CV_CAREGIVER_ID", func(c CLIConfig) string { return c.CaregiverID }, "")
}
