package core

// Config is the process-wide domain configuration: ledger endpoints, the
// process-secret AES key, the note APP_NAME prefix, and the local store
// path. Built explicitly by LoadConfig from the environment
// (ledgernote/pkg/utils's EnvOrDefault helpers, grounded on the teacher's
// env-first config loading in pkg/config/config.go), with an optional YAML
// file layered on top for deployments that prefer a checked-in file over a
// pile of env vars. Never a mutable package-level singleton, so a test or a
// second process in the same binary can hold two independent configs.

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"ledgernote/pkg/utils"
)

// Config holds every setting the core package needs, sourced from the
// environment and optionally overridden by a YAML file.
type Config struct {
	AlgodURL     string
	AlgodToken   string
	AlgodPort    int
	IndexerURL   string
	IndexerToken string
	IndexerPort  int

	// PrivateKeyAES is the process secret the upload manager uses to
	// encrypt and decrypt its bootstrap notes.
	PrivateKeyAES string

	// AppName is the tag stamped into the upload manager's bootstrap notes,
	// and the string its bootstrap scans match against.
	AppName string

	// SQLiteDatabasePath is read from SQLITE_DATABASE_PATH; nothing in this
	// module uses it. The upload manager persists through Store (StoreDir)
	// and GetAllSenders/GetPayloadIDFromSender query the indexer directly.
	SQLiteDatabasePath string

	// StoreDir is where the upload manager's Store persists queued
	// bootstrap uploads.
	StoreDir string

	// IndexerPageDelay throttles indexer pagination.
	IndexerPageDelay time.Duration
}

// configFileOverrides is the subset of Config a deployment may pin in a
// YAML file instead of (or in addition to) environment variables. A zero
// value for any field leaves the environment-sourced value untouched.
type configFileOverrides struct {
	AlgodURL     string `yaml:"algod_url"`
	AlgodToken   string `yaml:"algod_token"`
	IndexerURL   string `yaml:"indexer_url"`
	IndexerToken string `yaml:"indexer_token"`
	AppName      string `yaml:"app_name"`
	StoreDir     string `yaml:"store_dir"`
}

// LoadConfig builds a Config from the process environment, then applies a
// YAML override file if CONFIG_FILE names one. It never mutates a
// package-level variable: callers construct exactly the Config they need
// and thread it through explicitly.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AlgodURL:           utils.EnvOrDefault("ALGOD_URL", "http://localhost:4001"),
		AlgodToken:         utils.EnvOrDefault("ALGOD_TOKEN", ""),
		AlgodPort:          utils.EnvOrDefaultInt("ALGOD_PORT", 4001),
		IndexerURL:         utils.EnvOrDefault("INDEXER_URL", "http://localhost:8980"),
		IndexerToken:       utils.EnvOrDefault("INDEXER_TOKEN", ""),
		IndexerPort:        utils.EnvOrDefaultInt("INDEXER_PORT", 8980),
		PrivateKeyAES:      utils.EnvOrDefault("PRIVATE_KEY_AES", ""),
		AppName:            utils.EnvOrDefault("APP_NAME", "ledgernote"),
		SQLiteDatabasePath: utils.EnvOrDefault("SQLITE_DATABASE_PATH", "./ledgernote.db"),
		StoreDir:           utils.EnvOrDefault("LEDGERNOTE_STORE_DIR", "./ledgernote-store"),
		IndexerPageDelay:   DefaultIndexerPageDelay,
	}
	if path := utils.EnvOrDefault("CONFIG_FILE", ""); path != "" {
		if err := applyConfigFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if appName, set := os.LookupEnv("APP_NAME"); cfg.AppName == "" || (set && appName == "") {
		return nil, fmt.Errorf("config: APP_NAME must not be empty")
	}
	return cfg, nil
}

// applyConfigFile layers a YAML override file onto cfg in place. Only
// fields the file sets are applied; anything left blank keeps the
// environment-sourced value.
func applyConfigFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var overrides configFileOverrides
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if overrides.AlgodURL != "" {
		cfg.AlgodURL = overrides.AlgodURL
	}
	if overrides.AlgodToken != "" {
		cfg.AlgodToken = overrides.AlgodToken
	}
	if overrides.IndexerURL != "" {
		cfg.IndexerURL = overrides.IndexerURL
	}
	if overrides.IndexerToken != "" {
		cfg.IndexerToken = overrides.IndexerToken
	}
	if overrides.AppName != "" {
		cfg.AppName = overrides.AppName
	}
	if overrides.StoreDir != "" {
		cfg.StoreDir = overrides.StoreDir
	}
	return nil
}

// LedgerClient builds the default httpLedgerClient from this Config.
func (c *Config) LedgerClient() LedgerClient {
	return NewHTTPLedgerClient(c.AlgodURL, c.AlgodToken, c.IndexerURL, c.IndexerToken, c.IndexerPageDelay)
}
