package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PlaceholderAPIKey is used when no credential file exists yet.
const PlaceholderAPIKey = "your_default_api_key_here"

// ReadAPIKey returns the trimmed contents of the key file at path. A missing
// file is not an error: the placeholder key is returned instead.
func ReadAPIKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return PlaceholderAPIKey, nil
		}
		return "", fmt.Errorf("reading API key file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteAPIKey overwrites the key file at path with key.
func WriteAPIKey(path, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return &ValidationError{Field: "api_key", Value: key, Reason: "must not be empty"}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating key file dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(key), 0o600); err != nil {
		return fmt.Errorf("writing API key file: %w", err)
	}
	return nil
}
