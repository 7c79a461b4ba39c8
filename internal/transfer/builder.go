package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"

	"solana-transfer-desk/internal/address"
	"solana-transfer-desk/internal/domain"
	"solana-transfer-desk/internal/observability"
	"solana-transfer-desk/internal/solana"
	"solana-transfer-desk/internal/wallet"
)

// ErrAssociatedAccountMissing matches *MissingAccountError.
var ErrAssociatedAccountMissing = errors.New("associated token account missing")

// Submission kinds used in metrics and logs.
const (
	KindNative        = "native"
	KindToken         = "token"
	KindCreateAccount = "create_account"
)

// MissingAccountError reports that the recipient has no associated token account for the mint.
type MissingAccountError struct {
	Mint      string
	Recipient string
	Address   string // derived associated account address
}

func (e *MissingAccountError) Error() string {
	return fmt.Sprintf("recipient %s has no associated token account %s for mint %s", e.Recipient, e.Address, e.Mint)
}

// Is reports ErrAssociatedAccountMissing as a match.
func (e *MissingAccountError) Is(target error) bool { return target == ErrAssociatedAccountMissing }

// Builder constructs transfer transactions and submits them through the wallet.
type Builder struct {
	rpc     solana.RPCClient
	wallet  wallet.Wallet
	cluster domain.Cluster
	logger  *log.Logger
}

// NewBuilder creates a builder. A nil logger discards output.
func NewBuilder(rpc solana.RPCClient, w wallet.Wallet, cluster domain.Cluster, logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Builder{rpc: rpc, wallet: w, cluster: cluster, logger: logger}
}

// Cluster returns the cluster explorer links point at.
func (b *Builder) Cluster() domain.Cluster {
	return b.cluster
}

// Submit builds and submits the transfer described by req.
// Token transfers to a recipient without an associated account return *MissingAccountError
// and submit nothing.
func (b *Builder) Submit(ctx context.Context, req domain.TransferRequest) (domain.TransferResult, error) {
	identity, err := b.identity()
	if err != nil {
		return domain.TransferResult{}, err
	}

	if req.Holding.IsNative() {
		instrs, err := NativeInstructions(identity, req)
		if err != nil {
			return domain.TransferResult{}, err
		}
		return b.submit(ctx, KindNative, identity, instrs)
	}

	instrs, err := b.tokenInstructions(ctx, identity, req)
	if err != nil {
		return domain.TransferResult{}, err
	}
	return b.submit(ctx, KindToken, identity, instrs)
}

// CreateRecipientAccount submits a transaction, paid by the identity, creating the
// recipient's associated token account for the request's mint.
func (b *Builder) CreateRecipientAccount(ctx context.Context, req domain.TransferRequest) (domain.TransferResult, error) {
	identity, err := b.identity()
	if err != nil {
		return domain.TransferResult{}, err
	}
	if req.Holding.IsNative() {
		return domain.TransferResult{}, errors.New("native transfers need no associated account")
	}

	payer, err := solanago.PublicKeyFromBase58(identity)
	if err != nil {
		return domain.TransferResult{}, fmt.Errorf("identity: %w", err)
	}
	recipient, err := solanago.PublicKeyFromBase58(req.Recipient)
	if err != nil {
		return domain.TransferResult{}, fmt.Errorf("recipient: %w", err)
	}
	mint, err := solanago.PublicKeyFromBase58(req.Holding.AssetID)
	if err != nil {
		return domain.TransferResult{}, fmt.Errorf("mint: %w", err)
	}

	instr := associatedtokenaccount.NewCreateInstruction(payer, recipient, mint).Build()
	return b.submit(ctx, KindCreateAccount, identity, []solanago.Instruction{instr})
}

// NativeInstructions returns the single system transfer of amount * 10^9 lamports.
func NativeInstructions(identity string, req domain.TransferRequest) ([]solanago.Instruction, error) {
	from, err := solanago.PublicKeyFromBase58(identity)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	to, err := solanago.PublicKeyFromBase58(req.Recipient)
	if err != nil {
		return nil, fmt.Errorf("recipient: %w", err)
	}
	lamports, err := ToBaseUnits(req.Amount, domain.NativeDecimals)
	if err != nil {
		return nil, err
	}
	return []solanago.Instruction{system.NewTransferInstruction(lamports, from, to).Build()}, nil
}

func (b *Builder) tokenInstructions(ctx context.Context, identity string, req domain.TransferRequest) ([]solanago.Instruction, error) {
	mint := req.Holding.AssetID

	units, err := ToBaseUnits(req.Amount, req.Holding.DecimalPlaces)
	if err != nil {
		return nil, err
	}

	senderATA, err := address.FindAssociatedTokenAddress(identity, mint)
	if err != nil {
		return nil, fmt.Errorf("derive sender account: %w", err)
	}
	senderExists, err := b.accountExists(ctx, senderATA)
	if err != nil {
		return nil, err
	}

	recipientATA, err := address.FindAssociatedTokenAddress(req.Recipient, mint)
	if err != nil {
		return nil, fmt.Errorf("derive recipient account: %w", err)
	}
	recipientExists, err := b.accountExists(ctx, recipientATA)
	if err != nil {
		return nil, err
	}
	if !recipientExists {
		return nil, &MissingAccountError{Mint: mint, Recipient: req.Recipient, Address: recipientATA}
	}

	owner := solanago.MustPublicKeyFromBase58(identity)
	mintKey := solanago.MustPublicKeyFromBase58(mint)

	var instrs []solanago.Instruction
	source := senderATA
	if !senderExists {
		if acct := req.Holding.OwnerAccountAddress; acct != "" && acct != senderATA && acct != identity {
			// Balance sits in a non-associated token account owned by the identity.
			source = acct
		} else {
			b.logger.Printf("sender account %s missing, creating it", senderATA)
			instrs = append(instrs, associatedtokenaccount.NewCreateInstruction(owner, owner, mintKey).Build())
		}
	}

	instrs = append(instrs, token.NewTransferCheckedInstruction(
		units,
		req.Holding.DecimalPlaces,
		solanago.MustPublicKeyFromBase58(source),
		mintKey,
		solanago.MustPublicKeyFromBase58(recipientATA),
		owner,
		nil,
	).Build())
	return instrs, nil
}

func (b *Builder) accountExists(ctx context.Context, addr string) (bool, error) {
	info, err := b.rpc.GetAccountInfo(ctx, addr)
	if err != nil {
		return false, fmt.Errorf("get account %s: %w", addr, err)
	}
	return info != nil, nil
}

func (b *Builder) identity() (string, error) {
	identity, ok := b.wallet.Identity()
	if !ok {
		return "", &wallet.SubmissionError{Stage: wallet.StageSign, Err: wallet.ErrNotConnected}
	}
	return identity, nil
}

func (b *Builder) submit(ctx context.Context, kind, identity string, instrs []solanago.Instruction) (domain.TransferResult, error) {
	start := time.Now()

	blockhash, err := b.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return domain.TransferResult{}, fmt.Errorf("latest blockhash: %w", err)
	}
	hash, err := solanago.HashFromBase58(blockhash)
	if err != nil {
		return domain.TransferResult{}, fmt.Errorf("decode blockhash: %w", err)
	}

	tx, err := solanago.NewTransaction(instrs, hash, solanago.TransactionPayer(solanago.MustPublicKeyFromBase58(identity)))
	if err != nil {
		return domain.TransferResult{}, fmt.Errorf("create transaction: %w", err)
	}

	sig, err := b.wallet.SignAndSubmit(ctx, tx)
	observability.RecordSubmission(kind, time.Since(start).Seconds())
	if err != nil {
		b.logger.Printf("%s submission failed: %v", kind, err)
		return domain.TransferResult{}, err
	}

	b.logger.Printf("%s submitted: %s", kind, sig)
	return domain.TransferResult{Reference: sig, ExplorerLink: b.cluster.ExplorerLink(sig)}, nil
}
