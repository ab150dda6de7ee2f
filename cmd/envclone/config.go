// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nextjsreact/loft-envclone/envclone"
)

// Config is the environments file the CLI reads.
type Config struct {
	Environments []envclone.Environment `yaml:"environments"`
}

// LoadConfig reads the YAML environments file. A .env alongside the working
// directory is loaded first so passwords can stay out of the YAML; a missing
// .env is not an error.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	// Passwords may come from the environment instead of the file:
	// ENVCLONE_PASSWORD_<ID> wins over an empty YAML value.
	for i := range cfg.Environments {
		env := &cfg.Environments[i]
		if env.Credentials.Password == "" {
			key := "ENVCLONE_PASSWORD_" + strings.ToUpper(strings.ReplaceAll(env.ID, "-", "_"))
			env.Credentials.Password = os.Getenv(key)
		}
	}
	return &cfg, nil
}

// Environment finds one environment by ID.
func (c *Config) Environment(id string) (envclone.Environment, error) {
	for _, env := range c.Environments {
		if env.ID == id {
			return env, nil
		}
	}
	return envclone.Environment{}, fmt.Errorf("environment %q not found in config", id)
}
