// Package secrets loads the supervised proxy's runtime credentials —
// SSH hop keys, the data-pool role/token pair, and the proxy's own
// bearer token — from Vault.
package secrets

import (
	"fmt"

	"github.com/hashicorp/vault/api"
)

// Manager wraps the Vault API client for reading KV v2 secrets.
type Manager struct {
	client *api.Client
}

// NewManager creates a Vault client pointed at the given address and
// authenticated with the provided token.
func NewManager(address, token string) (*Manager, error) {
	cfg := api.DefaultConfig()
	cfg.Address = address

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client initialization failed: %w", err)
	}
	client.SetToken(token)

	return &Manager{client: client}, nil
}

// GetSecret reads a secret at the given path and returns the raw data map.
// For KV v2 backends the caller must unwrap the nested "data" key.
func (m *Manager) GetSecret(path string) (map[string]interface{}, error) {
	secret, err := m.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret at %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no data found at %s", path)
	}
	return secret.Data, nil
}

// GetKV2 reads from a KV v2 backend and returns the inner "data" map,
// unwrapping the v2 envelope automatically.
func (m *Manager) GetKV2(path string) (map[string]interface{}, error) {
	raw, err := m.GetSecret(path)
	if err != nil {
		return nil, err
	}
	data, ok := raw["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected data format at %s", path)
	}
	return data, nil
}

// Credentials bundles everything the proxy needs to reach its
// upstreams and authenticate its own RPC surface.
type Credentials struct {
	// SSHUser/SSHPrivateKey authenticate the first hop of an
	// sshtransport.Client chain.
	SSHUser       string
	SSHPrivateKey string

	// DataPoolRole/DataPoolToken are forwarded on every datapool
	// WriteMany call; both must be set for the AUTH/WRITE capabilities
	// to be granted.
	DataPoolRole  string
	DataPoolToken string

	// ProxyBearerToken gates Set/Subscribe RPCs at the proxy's own
	// gRPC surface.
	ProxyBearerToken string
}

// LoadCredentials reads Credentials from a single KV v2 path.
func LoadCredentials(m *Manager, path string) (Credentials, error) {
	data, err := m.GetKV2(path)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{
		SSHUser:          stringField(data, "ssh_user"),
		SSHPrivateKey:    stringField(data, "ssh_private_key"),
		DataPoolRole:     stringField(data, "data_pool_role"),
		DataPoolToken:    stringField(data, "data_pool_token"),
		ProxyBearerToken: stringField(data, "proxy_bearer_token"),
	}, nil
}

func stringField(data map[string]interface{}, key string) string {
	v, _ := data[key].(string)
	return v
}
