// Package credentials resolves ArangoDB Basic Auth credentials from
// HashiCorp Vault.
package credentials

import (
	"fmt"

	"github.com/hashicorp/vault/api"

	"github.com/arc-self/arangodb-cdc/arangocdc"
)

// SecretManager wraps the Vault API client for reading secrets.
type SecretManager struct {
	client *api.Client
}

// NewSecretManager creates a Vault client pointed at the given address
// and authenticated with the provided token.
func NewSecretManager(address, token string) (*SecretManager, error) {
	cfg := api.DefaultConfig()
	cfg.Address = address

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client initialization failed: %w", err)
	}
	client.SetToken(token)

	return &SecretManager{client: client}, nil
}

// GetSecret reads a secret at the given path and returns the raw data map.
// For KV v2 backends the caller must unwrap the nested "data" key.
func (s *SecretManager) GetSecret(path string) (map[string]interface{}, error) {
	secret, err := s.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret at %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no data found at %s", path)
	}
	return secret.Data, nil
}

// GetKV2 is a convenience wrapper that reads from a KV v2 backend and
// returns the inner "data" map, unwrapping the v2 envelope automatically.
func (s *SecretManager) GetKV2(path string) (map[string]interface{}, error) {
	raw, err := s.GetSecret(path)
	if err != nil {
		return nil, err
	}
	data, ok := raw["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected data format at %s", path)
	}
	return data, nil
}

// ArangoCredentials reads ARANGO_USER and ARANGO_PASSWORD from a KV v2
// secret and returns them as arangocdc.Credentials.
func (s *SecretManager) ArangoCredentials(path string) (arangocdc.Credentials, error) {
	data, err := s.GetKV2(path)
	if err != nil {
		return arangocdc.Credentials{}, err
	}

	user, ok := data["ARANGO_USER"].(string)
	if !ok {
		return arangocdc.Credentials{}, fmt.Errorf("missing ARANGO_USER at %s", path)
	}
	pass, ok := data["ARANGO_PASSWORD"].(string)
	if !ok {
		return arangocdc.Credentials{}, fmt.Errorf("missing ARANGO_PASSWORD at %s", path)
	}

	return arangocdc.Credentials{Username: user, Password: pass}, nil
}
