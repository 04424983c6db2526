package configs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/copytradeengine/engine/internal/chain"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
chains:
  bsc-mainnet:
    rpc_url: "https://bsc-dataseed.binance.org"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.MaxRetries)
	require.Equal(t, 3, cfg.PollIntervalSec)
	require.Equal(t, uint64(12), cfg.Chains["bsc-mainnet"].Confirmations)
	require.Equal(t, int64(4), cfg.Chains["bsc-mainnet"].MaxConcurrentRPCs)
}

func TestLoadConfigPreservesExplicitOverrides(t *testing.T) {
	path := writeTempConfig(t, `
chains:
  local:
    rpc_url: "http://127.0.0.1:8545"
    confirmations: 1
    max_concurrent_rpcs: 2
max_retries: 3
poll_interval_sec: 1
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.MaxRetries)
	require.Equal(t, 1, cfg.PollIntervalSec)
	require.Equal(t, uint64(1), cfg.Chains["local"].Confirmations)
}

func TestResolvedChainsParsesKeys(t *testing.T) {
	path := writeTempConfig(t, `
chains:
  bsc-mainnet:
    rpc_url: "https://bsc-dataseed.binance.org"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	resolved, err := cfg.ResolvedChains()
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	require.Equal(t, chain.BscMainnet, resolved[0].Chain)
}

func TestResolvedChainsRejectsUnknownKey(t *testing.T) {
	path := writeTempConfig(t, `
chains:
  not-a-real-chain:
    rpc_url: "http://x"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, err = cfg.ResolvedChains()
	require.Error(t, err)
}

func TestResolvedEscrowAddresses(t *testing.T) {
	path := writeTempConfig(t, `
chains:
  bsc-mainnet:
    rpc_url: "https://bsc-dataseed.binance.org"
escrow_addresses:
  - chain: bsc-mainnet
    address: "0x1111111111111111111111111111111111111111"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	addrs, err := cfg.ResolvedEscrowAddresses()
	require.NoError(t, err)
	require.Equal(t, "0x1111111111111111111111111111111111111111", addrs[chain.BscMainnet])
}

func TestWebhookDedupWindowDefault(t *testing.T) {
	cfg := &Config{}
	require.Equal(t, int64(30*1e9), int64(cfg.WebhookDedupWindow()))
}

func TestResequenceFlushWindowDefault(t *testing.T) {
	cfg := &Config{}
	require.Equal(t, int64(2*1e9), int64(cfg.ResequenceFlushWindow()))
}
