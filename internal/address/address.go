// Package address validates Solana account addresses and derives program addresses.
package address

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"solana-transfer-desk/internal/solana"
)

// Size is the byte length of a Solana public key.
const Size = 32

const (
	maxSeeds      = 16
	maxSeedLength = 32
)

var (
	// ErrInvalidAddress is returned when a string is not a base58 encoded 32-byte key.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrNoViableBump is returned when no bump seed yields an off-curve address.
	ErrNoViableBump = errors.New("unable to find a viable program address bump seed")
	// ErrInvalidSeeds is returned for seed sets the runtime would reject.
	ErrInvalidSeeds = errors.New("invalid seeds")
)

// Validate reports whether candidate is a wallet address: a base58 encoded
// 32-byte value that decodes to a point on the ed25519 curve.
// Program derived addresses are off-curve and therefore not valid recipients.
func Validate(candidate string) bool {
	key, err := Decode(candidate)
	if err != nil {
		return false
	}
	return isOnCurve(key[:])
}

// Decode decodes a base58 address into its 32 raw bytes.
func Decode(addr string) ([Size]byte, error) {
	var key [Size]byte
	if addr == "" {
		return key, ErrInvalidAddress
	}
	raw, err := base58.Decode(addr)
	if err != nil {
		return key, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != Size {
		return key, fmt.Errorf("%w: decoded length %d", ErrInvalidAddress, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// FindProgramAddress derives the canonical program address for seeds,
// searching bumps from 255 down to 1 for the first off-curve hash.
func FindProgramAddress(seeds [][]byte, programID string) (string, uint8, error) {
	program, err := Decode(programID)
	if err != nil {
		return "", 0, fmt.Errorf("program id: %w", err)
	}
	// The bump takes the last seed slot.
	if len(seeds) >= maxSeeds {
		return "", 0, fmt.Errorf("%w: %d seeds", ErrInvalidSeeds, len(seeds))
	}
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return "", 0, fmt.Errorf("%w: seed length %d", ErrInvalidSeeds, len(seed))
		}
	}

	addr, bump, err := solanago.FindProgramAddress(seeds, solanago.PublicKeyFromBytes(program[:]))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrNoViableBump, err)
	}
	return addr.String(), bump, nil
}

// FindAssociatedTokenAddress derives the associated token account of owner for mint.
func FindAssociatedTokenAddress(owner, mint string) (string, error) {
	ownerKey, err := Decode(owner)
	if err != nil {
		return "", fmt.Errorf("owner: %w", err)
	}
	mintKey, err := Decode(mint)
	if err != nil {
		return "", fmt.Errorf("mint: %w", err)
	}
	tokenProgram, _ := Decode(solana.TokenProgramID)

	addr, _, err := FindProgramAddress(
		[][]byte{ownerKey[:], tokenProgram[:], mintKey[:]},
		solana.AssociatedTokenAccountProgramID,
	)
	return addr, err
}

// FindMetadataAddress derives the Metaplex metadata account of mint.
func FindMetadataAddress(mint string) (string, error) {
	mintKey, err := Decode(mint)
	if err != nil {
		return "", fmt.Errorf("mint: %w", err)
	}
	metadataProgram, _ := Decode(solana.TokenMetadataProgramID)

	addr, _, err := FindProgramAddress(
		[][]byte{[]byte("metadata"), metadataProgram[:], mintKey[:]},
		solana.TokenMetadataProgramID,
	)
	return addr, err
}

func isOnCurve(point []byte) bool {
	if len(point) != Size {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
