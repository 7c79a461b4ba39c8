package domain

// TokenInfo is human-readable metadata for a mint.
type TokenInfo struct {
	Mint     string
	Name     string
	Symbol   string
	Decimals int
}
