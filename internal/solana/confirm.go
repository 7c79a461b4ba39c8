package solana

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTransactionFailed is returned when a landed transaction carries an execution error.
var ErrTransactionFailed = errors.New("transaction failed")

// Confirmer waits until a submitted signature reaches the configured commitment.
type Confirmer interface {
	Confirm(ctx context.Context, signature string) error
}

// SubscriptionConfirmer confirms signatures over a signatureSubscribe stream.
type SubscriptionConfirmer struct {
	ws WSClient
}

// NewSubscriptionConfirmer creates a confirmer backed by ws.
func NewSubscriptionConfirmer(ws WSClient) *SubscriptionConfirmer {
	return &SubscriptionConfirmer{ws: ws}
}

// Confirm blocks until the notification arrives or ctx is done.
func (c *SubscriptionConfirmer) Confirm(ctx context.Context, signature string) error {
	ch, err := c.ws.SubscribeSignature(ctx, signature)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", signature, err)
	}

	select {
	case n, ok := <-ch:
		if !ok {
			return fmt.Errorf("subscription for %s closed", signature)
		}
		if n.Err != nil {
			return fmt.Errorf("%w: %v", ErrTransactionFailed, n.Err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PollingConfirmer confirms signatures by polling getSignatureStatuses.
type PollingConfirmer struct {
	rpc      RPCClient
	interval time.Duration
}

// NewPollingConfirmer creates a polling confirmer. A non-positive interval defaults to 500ms.
func NewPollingConfirmer(rpc RPCClient, interval time.Duration) *PollingConfirmer {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &PollingConfirmer{rpc: rpc, interval: interval}
}

// Confirm polls until the signature is confirmed, fails, or ctx is done.
func (c *PollingConfirmer) Confirm(ctx context.Context, signature string) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		statuses, err := c.rpc.GetSignatureStatuses(ctx, signature)
		if err != nil {
			return fmt.Errorf("get signature status: %w", err)
		}
		if len(statuses) > 0 && statuses[0] != nil {
			st := statuses[0]
			if st.Err != nil {
				return fmt.Errorf("%w: %v", ErrTransactionFailed, st.Err)
			}
			if st.Confirmed() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

var (
	_ Confirmer = (*SubscriptionConfirmer)(nil)
	_ Confirmer = (*PollingConfirmer)(nil)
)
