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
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	envAlt  string // read when env is unset
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "STOCKAI_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "STOCKAI_SERVER_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "storage.data_dir", typ: kString, env: "STOCKAI_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.pending_dir", typ: kString, env: "STOCKAI_STORAGE_PENDING_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.PendingDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.PendingDir },
	},
	{
		key: "storage.processed_dir", typ: kString, env: "STOCKAI_STORAGE_PROCESSED_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.ProcessedDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.ProcessedDir },
	},
	{
		key: "storage.stores_dir", typ: kString, env: "STOCKAI_STORAGE_STORES_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.StoresDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.StoresDir },
	},
	{
		key: "oracle.backend", typ: kString, env: "STOCKAI_ORACLE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Oracle.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Oracle.Backend },
	},
	{
		key: "oracle.base_url", typ: kString, env: "STOCKAI_ORACLE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Oracle.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Oracle.BaseURL },
	},
	{
		key: "oracle.api_key", typ: kString, env: "STOCKAI_ORACLE_API_KEY", envAlt: "OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Oracle.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Oracle.APIKey },
	},
	{
		key: "oracle.extract_model", typ: kString, env: "STOCKAI_ORACLE_EXTRACT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Oracle.ExtractModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Oracle.ExtractModel },
	},
	{
		key: "oracle.normalize_model", typ: kString, env: "STOCKAI_ORACLE_NORMALIZE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Oracle.NormalizeModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Oracle.NormalizeModel },
	},
	{
		key: "oracle.timeout", typ: kString, env: "STOCKAI_ORACLE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Oracle.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Oracle.Timeout },
	},
	{
		key: "ollama.base_url", typ: kString, env: "STOCKAI_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "reorder.lead_days", typ: kInt, env: "STOCKAI_REORDER_LEAD_DAYS",
		apply:   func(cfg *Config, v any) { cfg.Reorder.LeadDays = v.(int) },
		extract: func(cfg Config) any { return cfg.Reorder.LeadDays },
	},
	{
		key: "reorder.safety_days", typ: kInt, env: "STOCKAI_REORDER_SAFETY_DAYS",
		apply:   func(cfg *Config, v any) { cfg.Reorder.SafetyDays = v.(int) },
		extract: func(cfg Config) any { return cfg.Reorder.SafetyDays },
	},
	{
		key: "reorder.safety_factor", typ: kFloat, env: "STOCKAI_REORDER_SAFETY_FACTOR",
		apply:   func(cfg *Config, v any) { cfg.Reorder.SafetyFactor = v.(float64) },
		extract: func(cfg Config) any { return cfg.Reorder.SafetyFactor },
	},
	{
		key: "log.level", typ: kString, env: "STOCKAI_LOG_LEVEL",
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
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" && s.envAlt != "" {
			raw = os.Getenv(s.envAlt)
		}
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
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
