package domain

import "github.com/shopspring/decimal"

// TransferRequest is one proposed transfer. It lives only for the duration of an attempt.
type TransferRequest struct {
	Holding   Holding
	Recipient string
	Amount    decimal.Decimal // human scaled
}

// TransferResult is what a successful submission leaves behind.
type TransferResult struct {
	Reference    string // transaction signature
	ExplorerLink string
}
