package vault

import (
	"context"
	"testing"
)

func TestDisabledVaultUsesMemoryStore(t *testing.T) {
	c, err := NewClient(Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx := context.Background()
	creds := Credentials{APIKey: "key", SecretKey: "secret", Testnet: true}
	if err := c.StoreCredentials(ctx, "binance", creds); err != nil {
		t.Fatalf("StoreCredentials: %v", err)
	}

	got, err := c.GetCredentials(ctx, "binance", true)
	if err != nil {
		t.Fatalf("GetCredentials: %v", err)
	}
	if got.APIKey != "key" || got.SecretKey != "secret" {
		t.Errorf("got %+v", got)
	}

	// Mainnet slot is distinct from testnet.
	if _, err := c.GetCredentials(ctx, "binance", false); err == nil {
		t.Error("mainnet credentials should be absent")
	}
}

func TestDisabledVaultDeleteAndMiss(t *testing.T) {
	c, _ := NewClient(Config{Enabled: false})
	ctx := context.Background()

	if _, err := c.GetCredentials(ctx, "binance", false); err == nil {
		t.Error("expected a miss on an empty store")
	}

	c.StoreCredentials(ctx, "binance", Credentials{APIKey: "k"})
	if err := c.DeleteCredentials(ctx, "binance", false); err != nil {
		t.Fatalf("DeleteCredentials: %v", err)
	}
	if _, err := c.GetCredentials(ctx, "binance", false); err == nil {
		t.Error("credentials should be gone after delete")
	}
}

func TestDisabledVaultHealthIsNil(t *testing.T) {
	c, _ := NewClient(Config{Enabled: false})
	if err := c.Health(context.Background()); err != nil {
		t.Errorf("disabled vault health = %v, want nil", err)
	}
}
