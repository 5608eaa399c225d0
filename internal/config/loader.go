package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is read when neither a path nor CONFIG_PATH is given.
const DefaultPath = "./config.yaml"

// Load reads configuration from the file named by CONFIG_PATH, falling back
// to DefaultPath. See LoadFrom.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("CONFIG_PATH"))
}

// LoadFrom reads configuration from a YAML file and environment variables
// with priority ENV > YAML > env-default tags. An explicit path must exist;
// a missing DefaultPath means ENV and defaults only.
func LoadFrom(path string) (*Config, error) {
	var cfg Config

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	case explicit || !errors.Is(statErr, fs.ErrNotExist):
		return nil, fmt.Errorf("config: file %s: %w", path, statErr)
	default:
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config: read env: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}
