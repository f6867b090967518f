package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// WriteDefaultConfigFile writes the default settings as YAML to path, or to
// ~/.ventricle/config.yaml when path is empty. An existing file is left
// alone unless force is set. It reports whether the file was written.
func WriteDefaultConfigFile(path string, force bool) (bool, error) {
	if path == "" {
		defaultPath, err := DefaultPath()
		if err != nil {
			return false, err
		}
		path = defaultPath
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	data, err := yaml.Marshal(defaultSettings())
	if err != nil {
		return false, fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0700: owner-only access
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}
	// 0600: owner-only read/write
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return false, fmt.Errorf("failed to write config file: %w", err)
	}

	return true, nil
}
