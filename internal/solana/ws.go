package solana

import "context"

// WSClient defines the Solana WebSocket subscriptions used to await confirmation.
type WSClient interface {
	// SubscribeSignature delivers exactly one notification once the signature reaches
	// the client's commitment, then closes the channel.
	SubscribeSignature(ctx context.Context, signature string) (<-chan SignatureNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureNotification reports the processing result of a transaction.
type SignatureNotification struct {
	Signature string
	Slot      int64
	Err       interface{} // nil on success
}
