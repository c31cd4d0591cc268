// Package config loads the cdc-worker binary's configuration with
// spf13/viper: a config file (if present), overridden by ARANGOCDC_*
// environment variables, with explicit defaults for anything neither sets.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything cmd/cdc-worker needs to start a Consumer.
type Config struct {
	Host      string        `mapstructure:"host"`
	Database  string        `mapstructure:"database"`
	IdleDelay time.Duration `mapstructure:"idle_delay"`

	VaultAddr       string `mapstructure:"vault_addr"`
	VaultToken      string `mapstructure:"vault_token"`
	VaultSecretPath string `mapstructure:"vault_secret_path"`

	NATSURL string `mapstructure:"nats_url"`

	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// Load reads optional config files named "cdc-worker" from "." and
// "/etc/arangodb-cdc/", then layers ARANGOCDC_* environment variables on
// top, then applies defaults for anything still unset.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("cdc-worker")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/arangodb-cdc/")

	v.SetEnvPrefix("ARANGOCDC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("host", "http://localhost:8529")
	v.SetDefault("database", "_system")
	v.SetDefault("idle_delay", 500*time.Millisecond)
	v.SetDefault("vault_addr", "http://localhost:8200")
	v.SetDefault("vault_token", "root")
	v.SetDefault("vault_secret_path", "secret/data/arangodb-cdc")
	v.SetDefault("nats_url", "nats://localhost:4222")
	v.SetDefault("otlp_endpoint", "")

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
