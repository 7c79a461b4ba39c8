package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"solana-transfer-desk/internal/domain"
)

// ComputeAttemptID computes a deterministic attempt_id using SHA256.
// Formula: SHA256(identity|owner_account|asset_id|recipient|amount|generation)
// Returns hex-encoded hash (64 characters).
func ComputeAttemptID(identity string, req domain.TransferRequest, generation uint64) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s|%d",
		identity,
		req.Holding.OwnerAccountAddress,
		req.Holding.AssetID,
		req.Recipient,
		req.Amount.String(),
		generation,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
