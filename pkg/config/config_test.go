package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// clearEnv isolates a test from variables set in the developer's shell.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"LISTEN_ADDR", "DB_URL", "WRITE_TOKEN", "TABLE_NAME", "GRPC_ADDR", "LOG_LEVEL", "CACHE_SIZE", "MAX_VALUE_BYTES"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("WRITE_TOKEN", "secret123")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.DBURL != DefaultDBURL {
		t.Errorf("DBURL = %q, want %q", cfg.DBURL, DefaultDBURL)
	}
	if cfg.WriteToken != "secret123" {
		t.Errorf("WriteToken = %q, want %q", cfg.WriteToken, "secret123")
	}
	if cfg.TableName != DefaultTableName {
		t.Errorf("TableName = %q, want %q", cfg.TableName, DefaultTableName)
	}
	if cfg.GRPCAddr != "" {
		t.Errorf("GRPCAddr = %q, want empty", cfg.GRPCAddr)
	}
	if cfg.MaxValueBytes != DefaultMaxValueBytes {
		t.Errorf("MaxValueBytes = %d, want %d", cfg.MaxValueBytes, DefaultMaxValueBytes)
	}
}

func TestLoadConfig_MissingWriteToken(t *testing.T) {
	clearEnv(t)

	_, err := LoadConfig("")
	if !errors.Is(err, ErrMissingWriteToken) {
		t.Fatalf("LoadConfig error = %v, want ErrMissingWriteToken", err)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("WRITE_TOKEN", "tok")
	t.Setenv("LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("DB_URL", "mem://")
	t.Setenv("CACHE_SIZE", "128")
	t.Setenv("MAX_VALUE_BYTES", "1024")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, "127.0.0.1:9000")
	}
	if cfg.DBURL != "mem://" {
		t.Errorf("DBURL = %q, want %q", cfg.DBURL, "mem://")
	}
	if cfg.CacheSize != 128 {
		t.Errorf("CacheSize = %d, want 128", cfg.CacheSize)
	}
	if cfg.MaxValueBytes != 1024 {
		t.Errorf("MaxValueBytes = %d, want 1024", cfg.MaxValueBytes)
	}
}

func TestLoadConfig_InvalidInteger(t *testing.T) {
	clearEnv(t)
	t.Setenv("WRITE_TOKEN", "tok")
	t.Setenv("CACHE_SIZE", "lots")

	if _, err := LoadConfig(""); err == nil {
		t.Fatal("LoadConfig expected error for CACHE_SIZE=lots, got nil")
	}
}

func TestLoadConfig_FileWithEnvOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "keygate.yaml")
	data := []byte("listen_addr: 0.0.0.0:8080\ndb_url: bolt://entries.db\nwrite_token: from-file\ntable_name: kv\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WRITE_TOKEN", "from-env")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:8080" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, "0.0.0.0:8080")
	}
	if cfg.DBURL != "bolt://entries.db" {
		t.Errorf("DBURL = %q, want %q", cfg.DBURL, "bolt://entries.db")
	}
	if cfg.TableName != "kv" {
		t.Errorf("TableName = %q, want %q", cfg.TableName, "kv")
	}
	if cfg.WriteToken != "from-env" {
		t.Errorf("WriteToken = %q, want %q", cfg.WriteToken, "from-env")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("WRITE_TOKEN", "tok")

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadConfig expected error for missing file, got nil")
	}
}
