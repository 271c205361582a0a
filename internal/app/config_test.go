package app

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aegischat.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_NoPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadConfig_Valid(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"
auto_connect = false
rekey_after = 50
chunk_size = 4096
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := Config{LogLevel: "debug", AutoConnect: false, RekeyAfter: 50, ChunkSize: 4096}
	if cfg != want {
		t.Fatalf("cfg = %+v, want %+v", cfg, want)
	}
}

// A partially broken file keeps its valid settings; out-of-range values
// fall back to defaults instead of aborting startup.
func TestLoadConfig_RepairsInvalidValues(t *testing.T) {
	path := writeConfig(t, `
log_level = "warn"
rekey_after = -5
chunk_size = 0
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("log level = %q, want %q", cfg.LogLevel, "warn")
	}
	if cfg.RekeyAfter != DefaultConfig().RekeyAfter {
		t.Fatalf("rekey_after = %d, want repaired default %d", cfg.RekeyAfter, DefaultConfig().RekeyAfter)
	}
	if cfg.ChunkSize != DefaultConfig().ChunkSize {
		t.Fatalf("chunk_size = %d, want repaired default %d", cfg.ChunkSize, DefaultConfig().ChunkSize)
	}
}

func TestLoadConfig_Unparseable(t *testing.T) {
	path := writeConfig(t, `log_level = [broken`)
	cfg, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if cfg != DefaultConfig() {
		t.Fatalf("cfg = %+v, want defaults on parse failure", cfg)
	}
}

func TestNewLogger_InvalidLevelFallsBack(t *testing.T) {
	logger, err := NewLogger("not-a-level")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("logger usable at fallback level")
}
