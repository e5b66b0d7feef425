package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDetectFormatJSON(t *testing.T) {
	if got := detectFormat([]byte(`  {"admin": {}}`)); got != "json" {
		t.Fatalf("detectFormat = %q, want json", got)
	}
}

func TestDetectFormatYAML(t *testing.T) {
	if got := detectFormat([]byte("admin:\n  addr: :9990\n")); got != "yaml" {
		t.Fatalf("detectFormat = %q, want yaml", got)
	}
}

func TestDetectFormatEmptyDefaultsToYAML(t *testing.T) {
	if got := detectFormat(nil); got != "yaml" {
		t.Fatalf("detectFormat(nil) = %q, want yaml", got)
	}
}

func TestLoadBytesJSON(t *testing.T) {
	doc := []byte(`{
		"admin": {"addr": ":9001", "requests_per_sec": 50, "burst": 100},
		"buffer_size_kb": 32
	}`)
	cfg, err := LoadBytes(doc)
	if err != nil {
		t.Fatalf("load bytes: %v", err)
	}
	if cfg.Admin.Addr != ":9001" {
		t.Fatalf("admin addr = %q, want :9001", cfg.Admin.Addr)
	}
	if cfg.BufferSizeKB != 32 {
		t.Fatalf("buffer size = %d, want 32", cfg.BufferSizeKB)
	}
}

func TestLoadBytesYAML(t *testing.T) {
	doc := []byte("admin:\n  addr: \":9002\"\nbuffer_size_kb: 64\n")
	cfg, err := LoadBytes(doc)
	if err != nil {
		t.Fatalf("load bytes: %v", err)
	}
	if cfg.Admin.Addr != ":9002" {
		t.Fatalf("admin addr = %q, want :9002", cfg.Admin.Addr)
	}
	if cfg.BufferSizeKB != 64 {
		t.Fatalf("buffer size = %d, want 64", cfg.BufferSizeKB)
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tcplb.yaml")
	doc := "admin:\n  addr: \":9003\"\nbuffer_size_kb: 8\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	loaded := mustReadFile(path)
	if string(loaded) != doc {
		t.Fatalf("mustReadFile mismatch")
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Admin.Addr != ":9003" {
		t.Fatalf("admin addr = %q, want :9003", cfg.Admin.Addr)
	}
	if cfg.BufferSizeKB != 8 {
		t.Fatalf("buffer size = %d, want 8", cfg.BufferSizeKB)
	}
}

func TestLoadBytesYAMLRejectsConflictingClientUnionFields(t *testing.T) {
	doc := []byte("routers:\n  - label: r1\n    client:\n      kind: io.l5d.static\n      global:\n        connect_timeout: 1s\n")
	if _, err := LoadBytes(doc); err == nil {
		t.Fatal("expected an error for a static client that also sets global")
	}
}

func TestLoadBytesYAMLRejectsConflictingInterpreterUnionFields(t *testing.T) {
	doc := []byte("routers:\n  - label: r1\n    interpreter:\n      kind: io.l5d.fs\n      base_url: http://example.invalid\n")
	if _, err := LoadBytes(doc); err == nil {
		t.Fatal("expected an error for an fs interpreter that also sets base_url")
	}
}

func TestLoadBytesYAMLAllowsConsistentUnionFields(t *testing.T) {
	doc := []byte("routers:\n  - label: r1\n    client:\n      kind: io.l5d.global\n      global:\n        connect_timeout: 1s\n    interpreter:\n      kind: io.l5d.stream\n      base_url: http://example.invalid\n      poll_interval: 5s\n")
	if _, err := LoadBytes(doc); err != nil {
		t.Fatalf("load bytes: %v", err)
	}
}

func TestDefaultConfigHasSaneAdminDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Admin.Addr != DefaultAdminAddr {
		t.Fatalf("admin addr = %q, want %q", cfg.Admin.Addr, DefaultAdminAddr)
	}
	if cfg.Admin.ShutdownGrace != DefaultShutdownGrace {
		t.Fatalf("shutdown grace = %v, want %v", cfg.Admin.ShutdownGrace, DefaultShutdownGrace)
	}
	if cfg.BufferSizeKB != DefaultBufferSizeKB {
		t.Fatalf("buffer size = %d, want %d", cfg.BufferSizeKB, DefaultBufferSizeKB)
	}
}
