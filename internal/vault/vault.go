// Package vault loads exchange credentials from HashiCorp Vault so they
// never have to live in config files or the environment.
package vault

import (
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"

	"bibot/config"
)

// Credentials are the Binance API credentials stored in Vault
type Credentials struct {
	APIKey    string
	SecretKey string
}

// FetchCredentials reads the api_key/secret_key pair from the configured
// secret path. Supports both KV v2 (data nested under "data") and flat
// layouts.
func FetchCredentials(cfg config.VaultConfig, logger zerolog.Logger) (*Credentials, error) {
	vaultCfg := vaultapi.DefaultConfig()
	vaultCfg.Address = cfg.Addr

	client, err := vaultapi.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("error creating vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	secret, err := client.Logical().Read(cfg.SecretPath)
	if err != nil {
		return nil, fmt.Errorf("error reading vault secret %s: %w", cfg.SecretPath, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no secret found at %s", cfg.SecretPath)
	}

	data := secret.Data
	if nested, ok := data["data"].(map[string]interface{}); ok {
		data = nested
	}

	apiKey, _ := data["api_key"].(string)
	secretKey, _ := data["secret_key"].(string)
	if apiKey == "" || secretKey == "" {
		return nil, fmt.Errorf("secret at %s is missing api_key or secret_key", cfg.SecretPath)
	}

	logger.Info().Str("path", cfg.SecretPath).Msg("Exchange credentials loaded from Vault")
	return &Credentials{APIKey: apiKey, SecretKey: secretKey}, nil
}
