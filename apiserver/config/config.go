package config

import (
	"fmt"

	"github.com/joho/godotenv"

	"ledgernote/pkg/utils"
)

// ServerConfig is the HTTP-facing half of the apiserver's settings; the
// ledger/storage settings it hands to core come from core.LoadConfig
// directly. Each concern gets one explicitly-built Config, never a shared
// mutable singleton.
type ServerConfig struct {
	Port string
}

// Load reads apiserver/.env if present and builds a ServerConfig. A
// missing .env file is not an error — production deploys set the
// environment directly.
func Load() (*ServerConfig, error) {
	_ = godotenv.Load("apiserver/.env") // missing .env is fine in production
	port := utils.EnvOrDefault("NOTESTORE_PORT", "8081")
	if port == "" {
		return nil, fmt.Errorf("config: NOTESTORE_PORT resolved empty")
	}
	return &ServerConfig{Port: port}, nil
}
