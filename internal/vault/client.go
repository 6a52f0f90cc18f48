package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"dai-trader/config"
	"dai-trader/internal/errs"
)

// Credentials is the exchange key pair stored in Vault
type Credentials struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	IsTestnet bool   `json:"is_testnet"`
}

// Client wraps the HashiCorp Vault client. With Vault disabled it keeps
// credentials in memory only.
type Client struct {
	client       *api.Client
	config       config.VaultConfig
	mu           sync.RWMutex
	cache        map[string]*Credentials // network -> credentials
	cacheEnabled bool
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	c := &Client{
		config:       cfg,
		cache:        make(map[string]*Credentials),
		cacheEnabled: true,
	}
	if !cfg.Enabled {
		return c, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	c.client = client
	return c, nil
}

// StoreCredentials writes the key pair for its network
func (c *Client) StoreCredentials(ctx context.Context, creds Credentials) error {
	if c.config.Enabled {
		secretData := map[string]interface{}{
			"data": map[string]interface{}{
				"api_key":    creds.APIKey,
				"secret_key": creds.SecretKey,
				"is_testnet": creds.IsTestnet,
			},
		}
		if _, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(creds.IsTestnet), secretData); err != nil {
			return fmt.Errorf("failed to store credentials in vault: %w", err)
		}
	}

	if c.cacheEnabled || !c.config.Enabled {
		c.mu.Lock()
		c.cache[network(creds.IsTestnet)] = &creds
		c.mu.Unlock()
	}
	return nil
}

// GetCredentials reads the key pair of a network
func (c *Client) GetCredentials(ctx context.Context, isTestnet bool) (*Credentials, error) {
	if c.cacheEnabled || !c.config.Enabled {
		c.mu.RLock()
		cached, ok := c.cache[network(isTestnet)]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}
	}

	if !c.config.Enabled {
		return nil, errs.NotFound("vault.GetCredentials", network(isTestnet))
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath(isTestnet))
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, errs.NotFound("vault.GetCredentials", c.secretPath(isTestnet))
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	creds := &Credentials{
		APIKey:    getString(data, "api_key"),
		SecretKey: getString(data, "secret_key"),
		IsTestnet: getBool(data, "is_testnet"),
	}

	if c.cacheEnabled {
		c.mu.Lock()
		c.cache[network(isTestnet)] = creds
		c.mu.Unlock()
	}
	return creds, nil
}

// DeleteCredentials removes the key pair of a network
func (c *Client) DeleteCredentials(ctx context.Context, isTestnet bool) error {
	c.mu.Lock()
	delete(c.cache, network(isTestnet))
	c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}
	if _, err := c.client.Logical().DeleteWithContext(ctx, c.metadataPath(isTestnet)); err != nil {
		return fmt.Errorf("failed to delete credentials from vault: %w", err)
	}
	return nil
}

// ResolveCredentials fills missing exchange keys in cfg from Vault. Keys
// already set in cfg win.
func (c *Client) ResolveCredentials(ctx context.Context, cfg *config.Config) error {
	b := &cfg.BinanceConfig
	if b.APIKey != "" && b.SecretKey != "" {
		return nil
	}
	creds, err := c.GetCredentials(ctx, b.TestNet)
	if err != nil {
		return errs.Config("broker credentials unavailable from vault: %v", err)
	}
	if creds.APIKey == "" || creds.SecretKey == "" {
		return errs.Config("vault secret %s has an empty key pair", c.secretPath(b.TestNet))
	}
	b.APIKey, b.SecretKey = creds.APIKey, creds.SecretKey
	return nil
}

// ClearCache clears the in-memory cache
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]*Credentials)
	c.mu.Unlock()
}

// SetCacheEnabled enables or disables caching
func (c *Client) SetCacheEnabled(enabled bool) {
	c.mu.Lock()
	c.cacheEnabled = enabled
	c.mu.Unlock()
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

func network(isTestnet bool) string {
	if isTestnet {
		return "testnet"
	}
	return "mainnet"
}

// secretPath returns the KV v2 data path of a network's credentials
func (c *Client) secretPath(isTestnet bool) string {
	return fmt.Sprintf("%s/data/%s/%s", c.config.MountPath, c.config.SecretPath, network(isTestnet))
}

// metadataPath returns the metadata path for a secret
func (c *Client) metadataPath(isTestnet bool) string {
	return fmt.Sprintf("%s/metadata/%s/%s", c.config.MountPath, c.config.SecretPath, network(isTestnet))
}

// Helper functions
func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getBool(data map[string]interface{}, key string) bool {
	if val, ok := data[key]; ok {
		switch v := val.(type) {
		case bool:
			return v
		case string:
			return v == "true"
		case json.Number:
			n, _ := v.Int64()
			return n != 0
		}
	}
	return false
}
