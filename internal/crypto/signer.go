// Package crypto signs and verifies code package digests with Ed25519 or
// BLS12-381 keys.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"Covenant/internal/ledger"
)

// Signer produces signatures for a single ledger key.
type Signer interface {
	PublicKey() ledger.PublicKey
	Sign(message []byte) []byte
}

// Ed25519Signer signs with an Ed25519 private key.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
}

// NewEd25519Signer wraps an existing private key.
func NewEd25519Signer(priv ed25519.PrivateKey) (*Ed25519Signer, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size: got %d, want %d", len(priv), ed25519.PrivateKeySize)
	}

	return &Ed25519Signer{priv: priv}, nil
}

// GenerateEd25519 creates a signer with a fresh random key.
func GenerateEd25519() (*Ed25519Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key:\n%w", err)
	}

	return &Ed25519Signer{priv: priv}, nil
}

// Ed25519FromSeed creates a deterministic signer from a 32-byte seed.
func Ed25519FromSeed(seed []byte) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid seed size: got %d, want %d", len(seed), ed25519.SeedSize)
	}

	return &Ed25519Signer{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// Sign signs message.
func (s *Ed25519Signer) Sign(message []byte) []byte {
	return ed25519.Sign(s.priv, message)
}

// PublicKey returns the signer's ledger key.
func (s *Ed25519Signer) PublicKey() ledger.PublicKey {
	key, err := ledger.NewPublicKey(ledger.SchemeEd25519, s.priv.Public().(ed25519.PublicKey))
	if err != nil {
		panic(err) // ed25519 public keys are always 32 bytes
	}

	return key
}

// Verify checks sig over message against key, dispatching on the key scheme.
func Verify(key ledger.PublicKey, message, sig []byte) bool {
	switch key.Scheme() {
	case ledger.SchemeEd25519:
		if len(sig) != ed25519.SignatureSize {
			return false
		}

		return ed25519.Verify(ed25519.PublicKey(key.Bytes()), message, sig)
	case ledger.SchemeBLS:
		return verifyBLS(sig, message, key.Bytes())
	default:
		return false
	}
}
