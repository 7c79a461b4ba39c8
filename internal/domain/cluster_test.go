package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCluster_ExplorerLink(t *testing.T) {
	assert.Equal(t, "https://explorer.solana.com/tx/abc?cluster=devnet", ClusterDevnet.ExplorerLink("abc"))
	assert.Equal(t, "https://explorer.solana.com/tx/abc?cluster=testnet", ClusterTestnet.ExplorerLink("abc"))
	assert.Equal(t, "https://explorer.solana.com/tx/abc", ClusterMainnetBeta.ExplorerLink("abc"))
	assert.Equal(t, "https://explorer.solana.com/tx/abc?cluster=devnet", Cluster("").ExplorerLink("abc"))
}

func TestCluster_Endpoints(t *testing.T) {
	assert.Equal(t, "https://api.devnet.solana.com", ClusterDevnet.RPCEndpoint())
	assert.Equal(t, "https://api.mainnet-beta.solana.com", ClusterMainnetBeta.RPCEndpoint())
	assert.Equal(t, "wss://api.testnet.solana.com", ClusterTestnet.WSEndpoint())
	assert.Equal(t, "wss://api.devnet.solana.com", Cluster("").WSEndpoint())
}

func TestParseCluster(t *testing.T) {
	c, err := ParseCluster("mainnet")
	require.NoError(t, err)
	assert.Equal(t, ClusterMainnetBeta, c)
	assert.Equal(t, 101, c.ChainID())

	c, err = ParseCluster("devnet")
	require.NoError(t, err)
	assert.Equal(t, 103, c.ChainID())

	_, err = ParseCluster("localnet")
	assert.Error(t, err)
}

func TestNewNativeHolding(t *testing.T) {
	h := NewNativeHolding("owner111", 2_500_000_000)

	assert.True(t, h.IsNative())
	assert.Equal(t, "owner111", h.OwnerAccountAddress)
	assert.True(t, h.Balance.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, "SOL", h.Symbol)
	assert.Equal(t, "Solana", h.Label())
}

func TestHolding_Label(t *testing.T) {
	h := Holding{AssetID: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"}
	assert.Equal(t, "Token-EPjFWdd5Au", h.Label())

	h.Name = "USD Coin"
	assert.Equal(t, "USD Coin", h.Label())
}
