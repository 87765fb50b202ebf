// Dashfeed - Real-Time Business Metrics Distribution
// Copyright 2026 Dashfeed Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dashfeed/dashfeed

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/dashfeed/config.yaml",
	"/etc/dashfeed/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the
// config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load reads configuration from all sources with koanf.
//
// Sources in precedence order (highest wins):
//
//  1. Environment variables (SERVER_PORT -> server.port)
//  2. Config file (optional YAML)
//  3. Built-in defaults
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path of the first file found, or empty string if none.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// configSections are the top-level config keys an environment variable may
// target. Only variables whose first token matches a section are mapped;
// everything else (PATH, HOME, ...) is ignored.
var configSections = map[string]bool{
	"server":   true,
	"database": true,
	"cache":    true,
	"notifier": true,
	"stream":   true,
	"logging":  true,
}

// envTransformFunc transforms environment variable names to koanf paths.
//
// Examples:
//   - SERVER_PORT -> server.port
//   - DATABASE_MAX_OPEN_CONNS -> database.max_open_conns
//   - NOTIFIER_MISS_WAIT -> notifier.miss_wait
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	section, rest, found := strings.Cut(key, "_")
	if !found || rest == "" {
		return ""
	}
	if !configSections[section] {
		return ""
	}

	return section + "." + rest
}
