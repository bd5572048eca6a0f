// Package config loads stockai settings from defaults, a JSON file and
// STOCKAI_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Oracle  OracleConfig
	Ollama  OllamaConfig
	Reorder ReorderConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port  int
	Token string
}

// StorageConfig holds the filesystem layout. Empty sub-directories are
// placed under DataDir by Load.
type StorageConfig struct {
	DataDir      string
	PendingDir   string
	ProcessedDir string
	StoresDir    string
}

type OracleConfig struct {
	Backend        string
	BaseURL        string
	APIKey         string
	ExtractModel   string
	NormalizeModel string
	Timeout        string
}

type OllamaConfig struct {
	BaseURL string
}

type ReorderConfig struct {
	LeadDays     int
	SafetyDays   int
	SafetyFactor float64
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Oracle: OracleConfig{
			Backend:        "openai",
			BaseURL:        "https://api.openai.com/v1",
			ExtractModel:   "gpt-4o",
			NormalizeModel: "gpt-4o",
			Timeout:        "60s",
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
		},
		Reorder: ReorderConfig{
			LeadDays:     5,
			SafetyDays:   7,
			SafetyFactor: 0.2,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the JSON file at FilePath and applies environment overrides.
// Secrets are read from the environment only. Load does not validate; call
// Validate before building an oracle.
func Load() (Config, error) {
	return loadWith(newFileBackend(FilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	cfg.resolveDirs()

	return cfg, nil
}

func (c *Config) resolveDirs() {
	if c.Storage.PendingDir == "" {
		c.Storage.PendingDir = filepath.Join(c.Storage.DataDir, "facturas")
	}
	if c.Storage.ProcessedDir == "" {
		c.Storage.ProcessedDir = filepath.Join(c.Storage.DataDir, "facturas_procesadas")
	}
	if c.Storage.StoresDir == "" {
		c.Storage.StoresDir = filepath.Join(c.Storage.DataDir, "bases_datos")
	}
}

// OracleTimeout parses Oracle.Timeout. An empty value means no timeout.
func (c Config) OracleTimeout() (time.Duration, error) {
	if c.Oracle.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Oracle.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid oracle.timeout %q: %w", c.Oracle.Timeout, err)
	}
	return d, nil
}

// Validate reports every setting that would stop ingestion from running.
func (c Config) Validate() error {
	var errs []error

	switch c.Oracle.Backend {
	case "openai":
		if c.Oracle.APIKey == "" {
			errs = append(errs, errors.New("missing required config: oracle API key. "+
				"Set it via environment variable STOCKAI_ORACLE_API_KEY or OPENAI_API_KEY"))
		}
	case "ollama":
	default:
		errs = append(errs, fmt.Errorf("unknown oracle.backend %q (want openai or ollama)", c.Oracle.Backend))
	}

	if c.Reorder.LeadDays <= 0 {
		errs = append(errs, fmt.Errorf("reorder.lead_days must be positive, got %d", c.Reorder.LeadDays))
	}
	if c.Reorder.SafetyDays < 0 {
		errs = append(errs, fmt.Errorf("reorder.safety_days must not be negative, got %d", c.Reorder.SafetyDays))
	}
	if c.Reorder.SafetyFactor < 0 {
		errs = append(errs, fmt.Errorf("reorder.safety_factor must not be negative, got %v", c.Reorder.SafetyFactor))
	}
	if _, err := c.OracleTimeout(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
