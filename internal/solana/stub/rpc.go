package stub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"solana-transfer-desk/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
// Maps are read under a lock so tests may mutate them between calls.
type RPCClient struct {
	mu sync.Mutex

	Balances  map[string]uint64
	Accounts  map[string]*solana.AccountInfo
	Programs  map[string][]solana.ProgramAccount // keyed by owner (memcmp bytes)
	Statuses  map[string]*solana.SignatureStatus
	Blockhash string

	// Sent records every base64 transaction passed to SendTransaction.
	Sent []string

	// Err, when set, is returned by every call for the named method.
	Err map[string]error
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Balances:  make(map[string]uint64),
		Accounts:  make(map[string]*solana.AccountInfo),
		Programs:  make(map[string][]solana.ProgramAccount),
		Statuses:  make(map[string]*solana.SignatureStatus),
		Blockhash: "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N",
		Err:       make(map[string]error),
	}
}

// SetAccount registers an existing account at address.
func (c *RPCClient) SetAccount(address string, info *solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[address] = info
}

// AddTokenAccount registers a jsonParsed token account owned by owner.
func (c *RPCClient) AddTokenAccount(owner, pubkey, mint, amount, uiAmount string, decimals uint8) {
	info, _ := json.Marshal(solana.TokenAccountInfo{
		Mint:  mint,
		Owner: owner,
		State: "initialized",
		TokenAmount: solana.TokenAmount{
			Amount:         amount,
			Decimals:       decimals,
			UIAmountString: uiAmount,
		},
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.Programs[owner] = append(c.Programs[owner], solana.ProgramAccount{
		Pubkey: pubkey,
		Account: solana.ParsedAccount{
			Owner:   solana.TokenProgramID,
			Program: "spl-token",
			Type:    "account",
			Info:    info,
		},
	})
	c.Accounts[pubkey] = &solana.AccountInfo{Owner: solana.TokenProgramID}
}

// SetStatus registers or replaces the status of a signature.
func (c *RPCClient) SetStatus(signature string, status *solana.SignatureStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses[signature] = status
}

// SentCount returns the number of submitted transactions.
func (c *RPCClient) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}

func (c *RPCClient) err(method string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Err[method]
}

// GetBalance returns the registered balance, zero when unknown.
func (c *RPCClient) GetBalance(_ context.Context, address string) (uint64, error) {
	if err := c.err("getBalance"); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Balances[address], nil
}

// GetProgramAccounts returns accounts registered for the memcmp owner filter.
func (c *RPCClient) GetProgramAccounts(_ context.Context, programID string, filters []solana.AccountFilter) ([]solana.ProgramAccount, error) {
	if err := c.err("getProgramAccounts"); err != nil {
		return nil, err
	}
	if programID != solana.TokenProgramID {
		return nil, fmt.Errorf("unexpected program %s", programID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range filters {
		if f.Memcmp != nil {
			return append([]solana.ProgramAccount(nil), c.Programs[f.Memcmp.Bytes]...), nil
		}
	}
	return nil, nil
}

// GetAccountInfo returns the registered account or nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	if err := c.err("getAccountInfo"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Accounts[pubkey], nil
}

// GetLatestBlockhash returns the configured blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context) (string, error) {
	if err := c.err("getLatestBlockhash"); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Blockhash, nil
}

// SendTransaction records the payload and returns a deterministic signature.
func (c *RPCClient) SendTransaction(_ context.Context, txBase64 string) (string, error) {
	if err := c.err("sendTransaction"); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sent = append(c.Sent, txBase64)
	return fmt.Sprintf("sig%d", len(c.Sent)), nil
}

// GetSignatureStatuses returns registered statuses in request order.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures ...string) ([]*solana.SignatureStatus, error) {
	if err := c.err("getSignatureStatuses"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		out[i] = c.Statuses[sig]
	}
	return out, nil
}

var _ solana.RPCClient = (*RPCClient)(nil)
