package solana

import (
	"encoding/json"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
)

// Well-known program IDs, as used by the solana-go instruction builders.
var (
	SystemProgramID                 = solanago.SystemProgramID.String()
	TokenProgramID                  = solanago.TokenProgramID.String()
	AssociatedTokenAccountProgramID = solanago.SPLAssociatedTokenAccountProgramID.String()
	TokenMetadataProgramID          = solanago.TokenMetadataProgramID.String()
)

// TokenAccountSize is the byte size of an SPL token account.
const TokenAccountSize = 165

// TokenAccountOwnerOffset is the offset of the owner field inside an SPL token account.
const TokenAccountOwnerOffset = 32

// LamportsPerSOL is the native coin to base unit ratio.
const LamportsPerSOL = 1_000_000_000

// AccountFilter is one getProgramAccounts filter. Exactly one field is set.
type AccountFilter struct {
	DataSize uint64
	Memcmp   *Memcmp
}

// Memcmp compares base58 encoded bytes at an offset of the account data.
type Memcmp struct {
	Offset uint64
	Bytes  string
}

// ProgramAccount is one jsonParsed getProgramAccounts result.
type ProgramAccount struct {
	Pubkey  string
	Account ParsedAccount
}

// ParsedAccount is an account with jsonParsed data.
type ParsedAccount struct {
	Lamports uint64
	Owner    string
	Program  string // e.g. "spl-token"
	Type     string // e.g. "account"
	Info     json.RawMessage
}

// TokenAccountInfo is the parsed info of an SPL token account.
type TokenAccountInfo struct {
	Mint        string      `json:"mint"`
	Owner       string      `json:"owner"`
	State       string      `json:"state"`
	IsNative    bool        `json:"isNative"`
	TokenAmount TokenAmount `json:"tokenAmount"`
}

// TokenAmount is an amount as rendered by the jsonParsed encoder.
type TokenAmount struct {
	Amount         string   `json:"amount"`
	Decimals       uint8    `json:"decimals"`
	UIAmount       *float64 `json:"uiAmount"`
	UIAmountString string   `json:"uiAmountString"`
}

// TokenAccount decodes Info as an SPL token account.
func (a ParsedAccount) TokenAccount() (*TokenAccountInfo, error) {
	if a.Type != "account" {
		return nil, fmt.Errorf("not a token account: type %q", a.Type)
	}
	var info TokenAccountInfo
	if err := json.Unmarshal(a.Info, &info); err != nil {
		return nil, fmt.Errorf("decode token account info: %w", err)
	}
	if info.Mint == "" {
		return nil, fmt.Errorf("token account info missing mint")
	}
	return &info, nil
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

// SignatureStatus from getSignatureStatuses.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *int64 // nil once rooted
	Err                interface{}
	ConfirmationStatus string // processed, confirmed or finalized
}

// Confirmed reports whether the signature reached at least confirmed commitment.
func (s *SignatureStatus) Confirmed() bool {
	if s == nil {
		return false
	}
	return s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized"
}
