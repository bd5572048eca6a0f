package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// mapBackend is an in-memory ConfigBackend.
type mapBackend map[string]any

func (m mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m[key]
	if !ok {
		return "", false, nil
	}
	s, _ := v.(string)
	return s, true, nil
}

func (m mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m[key]
	if !ok {
		return 0, false, nil
	}
	i, _ := v.(int)
	return i, true, nil
}

func (m mapBackend) SetString(key, val string) error {
	m[key] = val
	return nil
}

func (m mapBackend) SetInt(key string, val int) error {
	m[key] = val
	return nil
}

func (m mapBackend) Delete(key string) error {
	delete(m, key)
	return nil
}

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) string {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
		if s.envAlt != "" {
			t.Setenv(s.envAlt, "")
		}
	}
	data := t.TempDir()
	t.Setenv("XDG_DATA_HOME", data)
	return data
}

func TestDefaults(t *testing.T) {
	data := clearEnv(t)

	cfg, err := loadWith(mapBackend{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Oracle.Backend != "openai" || cfg.Oracle.ExtractModel != "gpt-4o" || cfg.Oracle.Timeout != "60s" {
		t.Errorf("Oracle = %+v", cfg.Oracle)
	}
	if cfg.Reorder.LeadDays != 5 || cfg.Reorder.SafetyDays != 7 || cfg.Reorder.SafetyFactor != 0.2 {
		t.Errorf("Reorder = %+v", cfg.Reorder)
	}

	root := filepath.Join(data, "stockai")
	if cfg.Storage.DataDir != root {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, root)
	}
	if cfg.Storage.PendingDir != filepath.Join(root, "facturas") {
		t.Errorf("Storage.PendingDir = %q", cfg.Storage.PendingDir)
	}
	if cfg.Storage.ProcessedDir != filepath.Join(root, "facturas_procesadas") {
		t.Errorf("Storage.ProcessedDir = %q", cfg.Storage.ProcessedDir)
	}
	if cfg.Storage.StoresDir != filepath.Join(root, "bases_datos") {
		t.Errorf("Storage.StoresDir = %q", cfg.Storage.StoresDir)
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(mapBackend{
		"server.port":           5000,
		"storage.data_dir":      "/srv/stockai",
		"storage.pending_dir":   "/inbox",
		"oracle.backend":        "ollama",
		"reorder.lead_days":     3,
		"reorder.safety_factor": "0.5",
		"oracle.api_key":        "from-file",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.Storage.PendingDir != "/inbox" {
		t.Errorf("PendingDir = %q", cfg.Storage.PendingDir)
	}
	if cfg.Storage.StoresDir != filepath.Join("/srv/stockai", "bases_datos") {
		t.Errorf("StoresDir = %q", cfg.Storage.StoresDir)
	}
	if cfg.Oracle.Backend != "ollama" || cfg.Reorder.LeadDays != 3 || cfg.Reorder.SafetyFactor != 0.5 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Oracle.APIKey != "" {
		t.Errorf("APIKey = %q, secrets must not come from the file", cfg.Oracle.APIKey)
	}
}

func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("STOCKAI_SERVER_PORT", "6000")
	t.Setenv("STOCKAI_REORDER_SAFETY_FACTOR", "0.3")
	t.Setenv("STOCKAI_ORACLE_EXTRACT_MODEL", "gpt-4o-mini")

	cfg, err := loadWith(mapBackend{"server.port": 5000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Reorder.SafetyFactor != 0.3 {
		t.Errorf("SafetyFactor = %v", cfg.Reorder.SafetyFactor)
	}
	if cfg.Oracle.ExtractModel != "gpt-4o-mini" {
		t.Errorf("ExtractModel = %q", cfg.Oracle.ExtractModel)
	}
}

func TestAPIKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "openai-key")

	cfg, _ := loadWith(mapBackend{})
	if cfg.Oracle.APIKey != "openai-key" {
		t.Errorf("APIKey = %q, want openai-key", cfg.Oracle.APIKey)
	}

	t.Setenv("STOCKAI_ORACLE_API_KEY", "stockai-key")
	cfg, _ = loadWith(mapBackend{})
	if cfg.Oracle.APIKey != "stockai-key" {
		t.Errorf("APIKey = %q, want stockai-key", cfg.Oracle.APIKey)
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	base, _ := loadWith(mapBackend{})

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"missing key", func(c *Config) {}, "missing required config"},
		{"ok", func(c *Config) { c.Oracle.APIKey = "k" }, ""},
		{"ollama needs no key", func(c *Config) { c.Oracle.Backend = "ollama" }, ""},
		{"unknown backend", func(c *Config) { c.Oracle.Backend = "bard" }, "unknown oracle.backend"},
		{"lead days", func(c *Config) { c.Oracle.APIKey = "k"; c.Reorder.LeadDays = 0 }, "lead_days"},
		{"zero safety factor", func(c *Config) { c.Oracle.APIKey = "k"; c.Reorder.SafetyFactor = 0 }, ""},
		{"negative safety factor", func(c *Config) { c.Oracle.APIKey = "k"; c.Reorder.SafetyFactor = -0.1 }, "safety_factor"},
		{"timeout", func(c *Config) { c.Oracle.APIKey = "k"; c.Oracle.Timeout = "soon" }, "oracle.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestOracleTimeout(t *testing.T) {
	c := Config{Oracle: OracleConfig{Timeout: "90s"}}
	d, err := c.OracleTimeout()
	if err != nil || d.Seconds() != 90 {
		t.Errorf("OracleTimeout = %v, %v", d, err)
	}
	c.Oracle.Timeout = ""
	if d, err := c.OracleTimeout(); err != nil || d != 0 {
		t.Errorf("empty timeout = %v, %v", d, err)
	}
}

func TestFileBackend_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stockai", "config.json")
	b := newFileBackend(path)

	if err := setKey(b, "server.port", "4200"); err != nil {
		t.Fatal(err)
	}
	if err := setKey(b, "reorder.safety_factor", "0.25"); err != nil {
		t.Fatal(err)
	}
	if err := setKey(b, "log.level", "debug"); err != nil {
		t.Fatal(err)
	}

	clearEnv(t)
	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4200 || cfg.Reorder.SafetyFactor != 0.25 || cfg.Log.Level != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestFileBackend_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte("{not json"), 0o600)

	clearEnv(t)
	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want default", cfg.Server.Port)
	}
}

func TestSetKey_Errors(t *testing.T) {
	b := mapBackend{}
	if err := setKey(b, "oracle.api_key", "x"); err == nil || !strings.Contains(err.Error(), "STOCKAI_ORACLE_API_KEY") {
		t.Errorf("secret: err = %v", err)
	}
	if err := setKey(b, "reorder.lead_days", "five"); err == nil {
		t.Error("expected error for non-integer")
	}
	if err := setKey(b, "reorder.safety_factor", "lots"); err == nil {
		t.Error("expected error for non-number")
	}
	if err := setKey(b, "nope", "1"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestShowAll_MasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Oracle.APIKey = "sk-secret"

	for _, k := range ShowAll(cfg) {
		if strings.Contains(k.Value, "sk-secret") {
			t.Fatalf("%s leaks secret", k.Key)
		}
		if k.Key == "oracle.api_key" && k.Value != "(set)" {
			t.Errorf("oracle.api_key = %q, want (set)", k.Value)
		}
		if k.Key == "server.token" && k.Value != "(unset)" {
			t.Errorf("server.token = %q, want (unset)", k.Value)
		}
	}
}

func TestValidKeys_ExcludesSecrets(t *testing.T) {
	for _, k := range ValidKeys() {
		if k == "oracle.api_key" || k == "server.token" {
			t.Errorf("ValidKeys contains secret %q", k)
		}
	}
	if len(ValidKeys()) != len(specs)-2 {
		t.Errorf("ValidKeys = %d keys, want %d", len(ValidKeys()), len(specs)-2)
	}
}
