package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key      string
	typ      keyType
	env      string
	secret   bool
	positive bool
	apply    func(cfg *Config, v any)
	extract  func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "generation.base_url", typ: kString, env: "SHEETPROMPT_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Generation.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.BaseURL },
	},
	{
		key: "generation.model", typ: kString, env: "SHEETPROMPT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Generation.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.Model },
	},
	{
		key: "generation.mode", typ: kString, env: "SHEETPROMPT_MODE",
		apply:   func(cfg *Config, v any) { cfg.Generation.Mode = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.Mode },
	},
	{
		key: "generation.system_prompt", typ: kString, env: "SHEETPROMPT_SYSTEM_PROMPT",
		apply:   func(cfg *Config, v any) { cfg.Generation.SystemPrompt = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.SystemPrompt },
	},
	{
		key: "generation.timeout", typ: kString, env: "SHEETPROMPT_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Generation.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.Timeout },
	},
	{
		key: "pacing.rate_limit", typ: kInt, env: "SHEETPROMPT_RATE_LIMIT", positive: true,
		apply:   func(cfg *Config, v any) { cfg.Pacing.RateLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Pacing.RateLimit },
	},
	{
		key: "pacing.response_limit", typ: kInt, env: "SHEETPROMPT_RESPONSE_LIMIT", positive: true,
		apply:   func(cfg *Config, v any) { cfg.Pacing.ResponseLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Pacing.ResponseLimit },
	},
	{
		key: "server.port", typ: kInt, env: "SHEETPROMPT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "SHEETPROMPT_SERVER_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SHEETPROMPT_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "credentials.key_file", typ: kString, env: "SHEETPROMPT_KEY_FILE",
		apply:   func(cfg *Config, v any) { cfg.Credentials.KeyFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Credentials.KeyFile },
	},
	{
		key: "credentials.api_key", typ: kString, env: "SHEETPROMPT_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Credentials.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Credentials.APIKey },
	},
	{
		key: "log.level", typ: kString, env: "SHEETPROMPT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
