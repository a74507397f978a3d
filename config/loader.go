// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Global is the process-wide singleton loaded by Load.
var (
	Global CohearaConfig
	once   sync.Once
	loadErr error
)

// Load reads ~/.coheara/coheara.yaml into Global, creating a default file
// on first run. Safe to call more than once; only the first call does
// any work.
func Load() error {
	once.Do(func() {
		loadErr = loadInternal()
	})
	return loadErr
}

func loadInternal() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("could not find the user's home directory: %w", err)
	}
	configPath := filepath.Join(home, ".coheara", "coheara.yaml")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := createDefault(configPath); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	Global = DefaultConfig()
	if err := yaml.Unmarshal(data, &Global); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
