package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Generation modes.
const (
	ModeSingle       = "single"
	ModeConversation = "conversation"
)

type Config struct {
	Generation  GenerationConfig
	Pacing      PacingConfig
	Server      ServerConfig
	Storage     StorageConfig
	Credentials CredentialsConfig
	Log         LogConfig
}

type GenerationConfig struct {
	BaseURL      string
	Model        string
	Mode         string
	SystemPrompt string
	Timeout      string
}

type PacingConfig struct {
	RateLimit     int
	ResponseLimit int
}

type ServerConfig struct {
	Port  int
	Token string
}

type StorageConfig struct {
	DataDir string
}

type CredentialsConfig struct {
	KeyFile string
	APIKey  string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Generation: GenerationConfig{
			BaseURL:      "https://api.openai.com/v1",
			Model:        "gpt-3.5-turbo-instruct",
			Mode:         ModeSingle,
			SystemPrompt: "You are a helpful assistant.",
			Timeout:      "60s",
		},
		Pacing: PacingConfig{
			RateLimit:     3,
			ResponseLimit: 100,
		},
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Credentials: CredentialsConfig{
			KeyFile: filepath.Join(configDir(), "api_key.txt"),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file, environment variables,
// and the plain-text credential file.
//
// The config file lives at $XDG_CONFIG_HOME/sheetprompt/config.json.
// Environment variables (SHEETPROMPT_*) override file values. The API key is
// read from credentials.key_file unless SHEETPROMPT_API_KEY is set; a missing
// key file yields a placeholder key rather than an error.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Credentials.APIKey == "" {
		key, err := ReadAPIKey(cfg.Credentials.KeyFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Credentials.APIKey = key
	}

	// Aliases such as "chat" are accepted anywhere a mode is read, but only
	// the canonical name is handed on.
	if mode, err := ParseMode(cfg.Generation.Mode); err == nil {
		cfg.Generation.Mode = mode
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid value in cfg.
func (c Config) Validate() error {
	if c.Pacing.RateLimit <= 0 {
		return &ValidationError{Field: "pacing.rate_limit", Value: fmt.Sprint(c.Pacing.RateLimit), Reason: "must be a positive integer"}
	}
	if c.Pacing.ResponseLimit <= 0 {
		return &ValidationError{Field: "pacing.response_limit", Value: fmt.Sprint(c.Pacing.ResponseLimit), Reason: "must be a positive integer"}
	}
	if _, err := ParseMode(c.Generation.Mode); err != nil {
		return err
	}
	if _, err := time.ParseDuration(c.Generation.Timeout); err != nil {
		return &ValidationError{Field: "generation.timeout", Value: c.Generation.Timeout, Reason: "must be a duration such as 60s"}
	}
	return nil
}

// RequestTimeout returns the parsed generation timeout, falling back to 60s.
func (c Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Generation.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// ParseMode normalizes a generation mode name.
func ParseMode(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ModeSingle, "single-turn", "completion":
		return ModeSingle, nil
	case ModeConversation, "chat", "conversational":
		return ModeConversation, nil
	default:
		return "", &ValidationError{Field: "generation.mode", Value: raw, Reason: "must be single or conversation"}
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "sheetprompt-data"
		}
	}
	return filepath.Join(dir, "sheetprompt")
}

func configDir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "sheetprompt")
}
