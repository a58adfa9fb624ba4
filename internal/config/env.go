package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv loads a ".env" file, if present, into the process environment
// before config values are read from os.Getenv. A missing file is not an
// error — godotenv files are an optional convenience, not a requirement.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// Load is the full bootstrap sequence: load .env, load the YAML config
// file (if any), then apply the MURMUR_DATA_DIR override, then validate.
func Load(configPath, envPath string) (*Config, error) {
	if err := LoadEnv(envPath); err != nil {
		return nil, err
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		return nil, err
	}

	cfg.ApplyDataDirOverride()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
