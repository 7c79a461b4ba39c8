package domain

import "github.com/shopspring/decimal"

// AttemptStep names one submitted transaction of a transfer attempt.
type AttemptStep string

const (
	// StepTransfer moves the asset (native or token, including the follow-up after account creation).
	StepTransfer AttemptStep = "TRANSFER"
	// StepCreateAccount creates the recipient's associated token account.
	StepCreateAccount AttemptStep = "CREATE_ACCOUNT"
)

// AttemptOutcome is the result of one step.
type AttemptOutcome string

const (
	OutcomeSuccess AttemptOutcome = "SUCCESS"
	OutcomeFailed  AttemptOutcome = "FAILED"
)

// AttemptRecord is one journal entry: a submitted (or rejected) step of a transfer attempt.
// Unique by (AttemptID, Step).
type AttemptRecord struct {
	AttemptID    string
	Step         AttemptStep
	Identity     string
	AssetID      string
	Symbol       string
	Recipient    string
	Amount       decimal.Decimal
	Outcome      AttemptOutcome
	Reference    string // transaction signature, empty on failure
	ExplorerLink string
	Error        string
	CreatedAt    int64 // unix ms
}

// Summary renders the success summary shown after a completed transfer.
func (r AttemptRecord) Summary() string {
	symbol := r.Symbol
	if symbol == "" {
		symbol = r.AssetID
	}
	switch {
	case r.Outcome == OutcomeFailed:
		return "Transfer of " + r.Amount.String() + " " + symbol + " failed: " + r.Error
	case r.Step == StepCreateAccount:
		return "Created token account for " + r.Recipient
	default:
		return "Transferred " + r.Amount.String() + " " + symbol + " to " + r.Recipient
	}
}
