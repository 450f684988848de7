package server

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the server configuration. Every field has a working default
// so the server runs with no config file at all.
type Config struct {
	ListenAddr string `toml:"listen_addr"`
	ReposRoot  string `toml:"repos_root"`
	LogLevel   string `toml:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		ListenAddr: ":8417",
		ReposRoot:  "repos",
		LogLevel:   "info",
	}
}

// LoadConfig reads a TOML config file, layering it over the defaults. A
// missing path (empty string) just returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
