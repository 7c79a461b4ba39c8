// Package wallet provides the signing capability transfers are submitted through.
package wallet

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	solanago "github.com/gagliardetto/solana-go"

	"solana-transfer-desk/internal/solana"
)

var (
	// ErrSubmissionFailed matches every *SubmissionError.
	ErrSubmissionFailed = errors.New("submission failed")
	// ErrNotConnected is returned when no identity is connected.
	ErrNotConnected = errors.New("wallet not connected")
)

// Submission stages reported in SubmissionError.
const (
	StageSign    = "sign"
	StageEncode  = "encode"
	StageSend    = "send"
	StageConfirm = "confirm"
)

// SubmissionError is returned when signing or submitting a transaction fails.
type SubmissionError struct {
	Stage string
	Err   error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed at %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying cause.
func (e *SubmissionError) Unwrap() error { return e.Err }

// Is reports ErrSubmissionFailed as a match.
func (e *SubmissionError) Is(target error) bool { return target == ErrSubmissionFailed }

// Wallet is the connected identity's signing capability.
type Wallet interface {
	// Identity returns the connected public key. ok is false when nothing is connected.
	Identity() (identity string, ok bool)

	// SignAndSubmit signs tx with the identity, submits it and returns its signature.
	SignAndSubmit(ctx context.Context, tx *solanago.Transaction) (string, error)
}

// Option configures a Keypair.
type Option func(*Keypair)

// WithConfirmer makes SignAndSubmit wait for confirmation before returning.
func WithConfirmer(c solana.Confirmer) Option {
	return func(w *Keypair) { w.confirmer = c }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(w *Keypair) { w.logger = logger }
}

// Keypair is a Wallet backed by a local private key.
type Keypair struct {
	rpc       solana.RPCClient
	confirmer solana.Confirmer
	logger    *log.Logger

	mu        sync.RWMutex
	key       solanago.PrivateKey
	connected bool
}

// NewKeypair creates a connected keypair wallet submitting through rpc.
func NewKeypair(key solanago.PrivateKey, rpc solana.RPCClient, opts ...Option) *Keypair {
	w := &Keypair{
		rpc:       rpc,
		key:       key,
		connected: true,
		logger:    log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Connect makes the identity available again.
func (w *Keypair) Connect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = true
}

// Disconnect hides the identity. Signing fails with ErrNotConnected until Connect.
func (w *Keypair) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = false
}

// Identity returns the base58 public key while connected.
func (w *Keypair) Identity() (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.connected {
		return "", false
	}
	return w.key.PublicKey().String(), true
}

// SignAndSubmit signs tx, sends it over RPC and optionally waits for confirmation.
func (w *Keypair) SignAndSubmit(ctx context.Context, tx *solanago.Transaction) (string, error) {
	w.mu.RLock()
	key, connected := w.key, w.connected
	w.mu.RUnlock()
	if !connected {
		return "", &SubmissionError{Stage: StageSign, Err: ErrNotConnected}
	}

	pub := key.PublicKey()
	_, err := tx.Sign(func(k solanago.PublicKey) *solanago.PrivateKey {
		if k.Equals(pub) {
			return &key
		}
		return nil
	})
	if err != nil {
		return "", &SubmissionError{Stage: StageSign, Err: err}
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", &SubmissionError{Stage: StageEncode, Err: err}
	}

	sig, err := w.rpc.SendTransaction(ctx, base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		return "", &SubmissionError{Stage: StageSend, Err: err}
	}
	w.logger.Printf("submitted %s", sig)

	if w.confirmer != nil {
		if err := w.confirmer.Confirm(ctx, sig); err != nil {
			return sig, &SubmissionError{Stage: StageConfirm, Err: err}
		}
		w.logger.Printf("confirmed %s", sig)
	}
	return sig, nil
}

// LoadPrivateKey reads a key either from a solana-keygen JSON file path or a base58 string.
func LoadPrivateKey(value string) (solanago.PrivateKey, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("empty private key")
	}
	if _, err := os.Stat(value); err == nil {
		key, err := solanago.PrivateKeyFromSolanaKeygenFile(value)
		if err != nil {
			return nil, fmt.Errorf("read keygen file: %w", err)
		}
		return key, nil
	}
	key, err := solanago.PrivateKeyFromBase58(value)
	if err != nil {
		return nil, fmt.Errorf("decode base58 private key: %w", err)
	}
	return key, nil
}

var _ Wallet = (*Keypair)(nil)
