// Package config loads client and authority settings from an optional YAML
// file with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Client configures the local store and reconciler side.
type Client struct {
	// DBPath is the local SQLite mirror. Defaults under the user config dir.
	DBPath string `yaml:"db_path" env:"TEND_DB"`

	// Endpoint pins the authority API base, e.g. "http://host:8000/api".
	// Empty means last-used endpoint, then mDNS discovery.
	Endpoint string `yaml:"endpoint" env:"TEND_ENDPOINT"`

	// Token is the bearer credential printed by the authority at startup.
	Token string `yaml:"token" env:"TEND_TOKEN"`

	HistoryLimit     int           `yaml:"history_limit" env:"TEND_HISTORY_LIMIT" env-default:"10"`
	CallTimeout      time.Duration `yaml:"call_timeout" env:"TEND_CALL_TIMEOUT" env-default:"10s"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout" env:"TEND_DISCOVERY_TIMEOUT" env-default:"5s"`
}

// Server configures the authority side.
type Server struct {
	Host    string `yaml:"host" env:"TEND_SERVER_HOST" env-default:"0.0.0.0"`
	Port    int    `yaml:"port" env:"TEND_SERVER_PORT" env-default:"8000"`
	DBPath  string `yaml:"db_path" env:"TEND_SERVER_DB"`
	DataDir string `yaml:"data_dir" env:"TEND_SERVER_DATA_DIR"`
	MDNS    bool   `yaml:"mdns" env:"TEND_SERVER_MDNS" env-default:"true"`
}

// Config is the full configuration tree.
type Config struct {
	Client Client `yaml:"client"`
	Server Server `yaml:"server"`
}

// Load reads the YAML file at path (when non-empty and present) and applies
// environment overrides, then fills path defaults.
func Load(path string) (Config, error) {
	var cfg Config

	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}

	base, err := defaultDataDir()
	if err != nil {
		return Config{}, err
	}
	if cfg.Server.DataDir == "" {
		cfg.Server.DataDir = base
	}
	if cfg.Server.DBPath == "" {
		cfg.Server.DBPath = filepath.Join(cfg.Server.DataDir, "events.db")
	}
	if cfg.Client.DBPath == "" {
		cfg.Client.DBPath = filepath.Join(base, "local.db")
	}

	return cfg, nil
}

func defaultDataDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "tend"), nil
}
