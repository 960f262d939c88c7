package core

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AppName != "ledgernote" {
		t.Fatalf("AppName = %q, want the default %q", cfg.AppName, "ledgernote")
	}
	if cfg.AlgodURL != "http://localhost:4001" {
		t.Fatalf("AlgodURL = %q, want the default", cfg.AlgodURL)
	}
	if cfg.IndexerPageDelay != DefaultIndexerPageDelay {
		t.Fatalf("IndexerPageDelay = %v, want %v", cfg.IndexerPageDelay, DefaultIndexerPageDelay)
	}
}

func TestLoadConfigReadsEnvOverrides(t *testing.T) {
	t.Setenv("ALGOD_URL", "http://algod.example:4001")
	t.Setenv("APP_NAME", "my-app")
	t.Setenv("INDEXER_PORT", "9999")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AlgodURL != "http://algod.example:4001" {
		t.Fatalf("AlgodURL = %q, want the overridden value", cfg.AlgodURL)
	}
	if cfg.AppName != "my-app" {
		t.Fatalf("AppName = %q, want the overridden value", cfg.AppName)
	}
	if cfg.IndexerPort != 9999 {
		t.Fatalf("IndexerPort = %d, want 9999", cfg.IndexerPort)
	}
}

func TestLoadConfigRejectsEmptyAppName(t *testing.T) {
	t.Setenv("APP_NAME", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected an error when APP_NAME is explicitly set to empty")
	}
}

func TestLoadConfigAppliesYAMLFileOverrides(t *testing.T) {
	t.Setenv("APP_NAME", "env-app")
	t.Setenv("ALGOD_URL", "http://algod.env:4001")

	path := filepath.Join(t.TempDir(), "ledgernote.yaml")
	contents := "app_name: file-app\nstore_dir: /var/lib/ledgernote\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write override file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AppName != "file-app" {
		t.Fatalf("AppName = %q, want the file override %q", cfg.AppName, "file-app")
	}
	if cfg.StoreDir != "/var/lib/ledgernote" {
		t.Fatalf("StoreDir = %q, want the file override", cfg.StoreDir)
	}
	if cfg.AlgodURL != "http://algod.env:4001" {
		t.Fatalf("AlgodURL = %q, want the env value since the file left it blank", cfg.AlgodURL)
	}
}

func TestLoadConfigRejectsUnreadableConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected an error when CONFIG_FILE names a file that does not exist")
	}
}
