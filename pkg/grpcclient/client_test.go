package grpcclient

import (
	"strings"
	"testing"
)

const testKeyHex = "0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20"

func TestNewClientDerivesSigner(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PoolSize = 1
	cfg.GRPCAddr = "localhost:1" // lazy dial, never connected

	c, err := NewClient(cfg, testKeyHex)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()

	if !strings.HasPrefix(c.Address(), "cosmos1") {
		t.Errorf("expected bech32 account address, got %q", c.Address())
	}
	if c.txConfig == nil {
		t.Fatal("expected tx config wired for offline signing")
	}

	if seq := c.nextSequence(); seq != 0 {
		t.Errorf("expected first sequence 0, got %d", seq)
	}
	if seq := c.nextSequence(); seq != 1 {
		t.Errorf("expected second sequence 1, got %d", seq)
	}
}

func TestNewClientRejectsInvalidKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PoolSize = 1
	cfg.GRPCAddr = "localhost:1"

	if _, err := NewClient(cfg, "not-hex"); err == nil {
		t.Error("expected error for malformed private key")
	}
}
