package domain

// TokenMetadata is on-chain metadata persisted for a mint.
// Corresponds to token_metadata table in PostgreSQL.
type TokenMetadata struct {
	Mint      string // PK: token mint address
	Name      string // Metaplex name, NUL padding trimmed
	Symbol    string // Metaplex symbol, NUL padding trimmed
	FetchedAt int64  // when metadata was fetched (ms)
	CreatedAt int64  // record creation timestamp (ms)
}

// Info returns the display fields of m.
func (m TokenMetadata) Info() TokenInfo {
	return TokenInfo{Mint: m.Mint, Name: m.Name, Symbol: m.Symbol}
}
