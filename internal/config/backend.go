package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// ConfigBackend abstracts persistent config storage. The default
// implementation is a flat JSON file; tests substitute an in-memory map.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

func newPlatformBackend() ConfigBackend {
	return openJSONFile(configFilePath())
}

// configFilePath is $XDG_CONFIG_HOME/sheetprompt/config.json.
func configFilePath() string {
	return filepath.Join(configDir(), "config.json")
}

// jsonFile keeps every key of a flat JSON object in memory and rewrites the
// whole file on each change.
type jsonFile struct {
	path   string
	values map[string]any
}

// openJSONFile reads path. A missing file is empty; an unreadable or garbled
// one is reported and treated as empty so defaults apply.
func openJSONFile(path string) *jsonFile {
	f := &jsonFile{path: path, values: map[string]any{}}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return f
	case err != nil:
		slog.Warn("config file unreadable, using defaults", "path", path, "error", err)
		return f
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&f.values); err != nil {
		slog.Warn("config file is not a JSON object, using defaults", "path", path, "error", err)
		f.values = map[string]any{}
	}
	return f
}

func (f *jsonFile) GetString(key string) (string, bool, error) {
	v, ok := f.values[key]
	if !ok {
		return "", false, nil
	}
	if s, isString := v.(string); isString {
		return s, true, nil
	}
	return fmt.Sprint(v), true, nil
}

func (f *jsonFile) GetInt(key string) (int, bool, error) {
	v, ok := f.values[key]
	if !ok {
		return 0, false, nil
	}

	var text string
	switch val := v.(type) {
	case json.Number:
		text = val.String()
	case string:
		text = val
	case int:
		return val, true, nil
	default:
		return 0, true, fmt.Errorf("%s: expected an integer, got %T", key, v)
	}

	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %q is not an integer", key, text)
	}
	return n, true, nil
}

func (f *jsonFile) SetString(key, val string) error {
	f.values[key] = val
	return f.flush()
}

func (f *jsonFile) SetInt(key string, val int) error {
	f.values[key] = val
	return f.flush()
}

func (f *jsonFile) Delete(key string) error {
	delete(f.values, key)
	return f.flush()
}

// flush replaces the file through a rename so readers never see a partial
// write.
func (f *jsonFile) flush() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".config-*.json")
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing config: %w", err)
	}
	return nil
}
