package vault

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dai-trader/config"
	"dai-trader/internal/errs"
)

func disabled(t *testing.T) *Client {
	c, err := NewClient(config.VaultConfig{MountPath: "secret", SecretPath: "dai-trader/broker"})
	require.NoError(t, err)
	return c
}

func TestDisabledVaultKeepsCredentialsInMemory(t *testing.T) {
	ctx := context.Background()
	c := disabled(t)
	assert.False(t, c.IsEnabled())
	assert.NoError(t, c.Health(ctx))

	_, err := c.GetCredentials(ctx, true)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, c.StoreCredentials(ctx, Credentials{APIKey: "k", SecretKey: "s", IsTestnet: true}))
	got, err := c.GetCredentials(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "k", got.APIKey)

	_, err = c.GetCredentials(ctx, false)
	assert.Error(t, err, "networks are separate")

	require.NoError(t, c.DeleteCredentials(ctx, true))
	_, err = c.GetCredentials(ctx, true)
	assert.Error(t, err)
}

func TestResolveCredentials(t *testing.T) {
	ctx := context.Background()
	c := disabled(t)

	cfg := config.Default()
	cfg.BinanceConfig.TestNet = false
	err := c.ResolveCredentials(ctx, cfg)
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)

	require.NoError(t, c.StoreCredentials(ctx, Credentials{APIKey: "live-key", SecretKey: "live-secret"}))
	require.NoError(t, c.ResolveCredentials(ctx, cfg))
	assert.Equal(t, "live-key", cfg.BinanceConfig.APIKey)
	assert.Equal(t, "live-secret", cfg.BinanceConfig.SecretKey)

	cfg.BinanceConfig.APIKey, cfg.BinanceConfig.SecretKey = "env-key", "env-secret"
	require.NoError(t, c.ResolveCredentials(ctx, cfg))
	assert.Equal(t, "env-key", cfg.BinanceConfig.APIKey, "configured keys win")
}

func TestPaths(t *testing.T) {
	c := disabled(t)
	assert.Equal(t, "secret/data/dai-trader/broker/testnet", c.secretPath(true))
	assert.Equal(t, "secret/metadata/dai-trader/broker/mainnet", c.metadataPath(false))
}

func TestGetBool(t *testing.T) {
	data := map[string]interface{}{
		"a": true,
		"b": "true",
		"c": json.Number("1"),
		"d": json.Number("0"),
		"e": 3.0,
	}
	assert.True(t, getBool(data, "a"))
	assert.True(t, getBool(data, "b"))
	assert.True(t, getBool(data, "c"))
	assert.False(t, getBool(data, "d"))
	assert.False(t, getBool(data, "e"))
	assert.False(t, getBool(data, "missing"))
	assert.Equal(t, "", getString(data, "a"))
}
