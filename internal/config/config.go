package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ovaphlow/pitchfork/service-secrets/internal/credential"
	"github.com/ovaphlow/pitchfork/service-secrets/internal/credential/entity"
	"github.com/ovaphlow/pitchfork/service-secrets/pkg/database"
	"github.com/ovaphlow/pitchfork/service-secrets/pkg/utilities"
)

const lengthPrefix = "SECRETGEN_LENGTH_"

// Config is built once at startup and passed down explicitly.
type Config struct {
	Log      utilities.LogConfig
	Database database.Config

	// Lengths overrides default secret lengths by secret name.
	Lengths        map[string]int
	KeyringService string
	// KeyringPassword unlocks the file keyring backend without a prompt.
	KeyringPassword string
	GCPProject      string
	Addr            string
	SnowflakeNode   int64
}

// ConfigFromEnv reads configuration from environment variables. A .env file,
// if any, is expected to be loaded by the caller beforehand.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Log:             utilities.LogConfigFromEnv(),
		Database:        database.ConfigFromEnv(),
		Lengths:         map[string]int{},
		KeyringService:  getenv("SECRETGEN_KEYRING_SERVICE", "service-secrets"),
		KeyringPassword: os.Getenv("SECRETGEN_KEYRING_PASSWORD"),
		GCPProject:      os.Getenv("SECRETGEN_GCP_PROJECT"),
		Addr:            getenv("SECRETGEN_ADDR", "127.0.0.1:8431"),
		SnowflakeNode:   1,
	}

	for _, d := range credential.DefaultDefinitions() {
		raw, ok := os.LookupEnv(lengthPrefix + d.Name)
		if !ok || raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%s%s: %w", lengthPrefix, d.Name, err)
		}
		cfg.Lengths[d.Name] = n
	}

	if raw := os.Getenv("SNOWFLAKE_NODE"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("SNOWFLAKE_NODE: %w", err)
		}
		cfg.SnowflakeNode = n
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects lengths below the per-kind floor.
func (c Config) Validate() error {
	_, err := c.Definitions()
	return err
}

// Definitions returns the bundle layout with configured lengths applied.
func (c Config) Definitions() ([]entity.Definition, error) {
	return credential.WithLengths(credential.DefaultDefinitions(), c.Lengths)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
