package domain

import "fmt"

// Cluster names a Solana cluster.
type Cluster string

// Known clusters.
const (
	ClusterMainnetBeta Cluster = "mainnet-beta"
	ClusterTestnet     Cluster = "testnet"
	ClusterDevnet      Cluster = "devnet"
)

// DefaultCluster is used when no cluster is configured.
const DefaultCluster = ClusterDevnet

// ParseCluster validates a cluster name.
func ParseCluster(s string) (Cluster, error) {
	switch c := Cluster(s); c {
	case ClusterMainnetBeta, ClusterTestnet, ClusterDevnet:
		return c, nil
	case "mainnet":
		return ClusterMainnetBeta, nil
	}
	return "", fmt.Errorf("unknown cluster %q", s)
}

// ChainID returns the token-list chain id of the cluster.
func (c Cluster) ChainID() int {
	switch c {
	case ClusterMainnetBeta:
		return 101
	case ClusterTestnet:
		return 102
	default:
		return 103
	}
}

// ExplorerLink returns the block explorer URL for a transaction reference.
func (c Cluster) ExplorerLink(signature string) string {
	if c == "" {
		c = DefaultCluster
	}
	if c == ClusterMainnetBeta {
		return "https://explorer.solana.com/tx/" + signature
	}
	return "https://explorer.solana.com/tx/" + signature + "?cluster=" + string(c)
}

// RPCEndpoint returns the public JSON-RPC endpoint of the cluster.
func (c Cluster) RPCEndpoint() string {
	if c == "" {
		c = DefaultCluster
	}
	return "https://api." + string(c) + ".solana.com"
}

// WSEndpoint returns the public websocket endpoint of the cluster.
func (c Cluster) WSEndpoint() string {
	if c == "" {
		c = DefaultCluster
	}
	return "wss://api." + string(c) + ".solana.com"
}
