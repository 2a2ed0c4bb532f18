package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"
)

// Config holds Vault connection settings
type Config struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// Credentials are the exchange API credentials kept in Vault
type Credentials struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	Testnet   bool   `json:"testnet"`
}

// Client wraps the HashiCorp Vault client for exchange credentials.
// With Vault disabled it degrades to an in-memory store so development
// and dry-run setups work without a Vault server.
type Client struct {
	client *api.Client
	config Config

	mu    sync.RWMutex
	cache map[string]*Credentials // exchange_network -> credentials
}

// NewClient creates a Vault client
func NewClient(cfg Config) (*Client, error) {
	if cfg.MountPath == "" {
		cfg.MountPath = "secret"
	}
	if cfg.SecretPath == "" {
		cfg.SecretPath = "trading-engine"
	}

	if !cfg.Enabled {
		return &Client{
			config: cfg,
			cache:  make(map[string]*Credentials),
		}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{CACert: cfg.CACert}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
		cache:  make(map[string]*Credentials),
	}, nil
}

// StoreCredentials writes exchange credentials to Vault
func (c *Client) StoreCredentials(ctx context.Context, exchange string, creds Credentials) error {
	key := c.cacheKey(exchange, creds.Testnet)

	if !c.config.Enabled {
		c.mu.Lock()
		c.cache[key] = &creds
		c.mu.Unlock()
		return nil
	}

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"api_key":    creds.APIKey,
			"secret_key": creds.SecretKey,
			"testnet":    creds.Testnet,
		},
	}

	path := c.secretPath(exchange, creds.Testnet)
	if _, err := c.client.Logical().WriteWithContext(ctx, path, secretData); err != nil {
		return fmt.Errorf("failed to store credentials in vault: %w", err)
	}

	c.mu.Lock()
	c.cache[key] = &creds
	c.mu.Unlock()

	return nil
}

// GetCredentials reads exchange credentials, preferring the cache
func (c *Client) GetCredentials(ctx context.Context, exchange string, testnet bool) (*Credentials, error) {
	key := c.cacheKey(exchange, testnet)

	c.mu.RLock()
	if cached, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return nil, fmt.Errorf("credentials not found and vault is disabled")
	}

	path := c.secretPath(exchange, testnet)
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("credentials not found")
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	creds := &Credentials{
		APIKey:    getString(data, "api_key"),
		SecretKey: getString(data, "secret_key"),
		Testnet:   getBool(data, "testnet"),
	}

	c.mu.Lock()
	c.cache[key] = creds
	c.mu.Unlock()

	return creds, nil
}

// DeleteCredentials removes credentials from Vault and the cache
func (c *Client) DeleteCredentials(ctx context.Context, exchange string, testnet bool) error {
	c.mu.Lock()
	delete(c.cache, c.cacheKey(exchange, testnet))
	c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}

	path := c.metadataPath(exchange, testnet)
	if _, err := c.client.Logical().DeleteWithContext(ctx, path); err != nil {
		return fmt.Errorf("failed to delete credentials from vault: %w", err)
	}
	return nil
}

// ClearCache drops the in-memory credential cache
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]*Credentials)
	c.mu.Unlock()
}

// IsEnabled reports whether a real Vault backend is configured
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

func (c *Client) secretPath(exchange string, testnet bool) string {
	return fmt.Sprintf("%s/data/%s/%s", c.config.MountPath, c.config.SecretPath, c.cacheKey(exchange, testnet))
}

func (c *Client) metadataPath(exchange string, testnet bool) string {
	return fmt.Sprintf("%s/metadata/%s/%s", c.config.MountPath, c.config.SecretPath, c.cacheKey(exchange, testnet))
}

func (c *Client) cacheKey(exchange string, testnet bool) string {
	network := "mainnet"
	if testnet {
		network = "testnet"
	}
	return fmt.Sprintf("%s_%s", exchange, network)
}

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
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}
