package config

// Package config provides a reusable loader for ledgernote configuration
// files and environment variables.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"ledgernote/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the ambient configuration for the apiserver/CLI surface —
// everything that is not part of core's domain Config (the
// ALGOD_*/INDEXER_*/PRIVATE_KEY_AES/APP_NAME/SQLITE_DATABASE_PATH set,
// which core.LoadConfig owns directly from the environment).
type Config struct {
	HTTP struct {
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"http" json:"http"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// Load reads configuration files and merges any environment-specific
// overrides into a private viper instance, returning a freshly built
// Config. It never writes to a package-level variable — callers own the result and pass it explicitly
// to whatever needs it.
func Load(env string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("default")
	v.AddConfigPath("cmd/config")
	v.AddConfigPath("config")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		v.SetConfigName(env)
		if err := v.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	v.AutomaticEnv() // consult process environment variables on lookup

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}

// LoadFromEnv loads configuration using the LEDGERNOTE_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("LEDGERNOTE_ENV", ""))
}
