package ledger

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Scheme identifies the signature scheme of a public key.
type Scheme uint8

const (
	// SchemeEd25519 is an Ed25519 key (32 bytes).
	SchemeEd25519 Scheme = 1

	// SchemeBLS is a BLS12-381 min-pk key (48 bytes compressed).
	SchemeBLS Scheme = 2
)

// String returns the scheme name.
func (s Scheme) String() string {
	switch s {
	case SchemeEd25519:
		return "ed25519"
	case SchemeBLS:
		return "bls12381"
	default:
		return fmt.Sprintf("scheme(%d)", uint8(s))
	}
}

// keySize returns the expected encoded key size for the scheme, or 0 if unknown.
func (s Scheme) keySize() int {
	switch s {
	case SchemeEd25519:
		return 32
	case SchemeBLS:
		return 48
	default:
		return 0
	}
}

// PublicKey is a participant or signer key.
// It is a comparable value and can be used as a map key.
type PublicKey struct {
	scheme Scheme
	key    string
}

// NewPublicKey builds a PublicKey, checking the key length for the scheme.
func NewPublicKey(scheme Scheme, key []byte) (PublicKey, error) {
	size := scheme.keySize()
	if size == 0 {
		return PublicKey{}, fmt.Errorf("unknown key scheme: %d", uint8(scheme))
	}

	if len(key) != size {
		return PublicKey{}, fmt.Errorf("invalid %s key size: got %d, want %d", scheme, len(key), size)
	}

	return PublicKey{scheme: scheme, key: string(key)}, nil
}

// Scheme returns the key's signature scheme.
func (k PublicKey) Scheme() Scheme {
	return k.scheme
}

// Bytes returns a copy of the encoded key.
func (k PublicKey) Bytes() []byte {
	return []byte(k.key)
}

// IsZero reports whether the key is unset.
func (k PublicKey) IsZero() bool {
	return k.scheme == 0 && k.key == ""
}

// String returns "scheme:hex".
func (k PublicKey) String() string {
	if k.IsZero() {
		return "<none>"
	}

	return k.scheme.String() + ":" + hex.EncodeToString([]byte(k.key))
}

// ParsePublicKey decodes the String form of a key.
func ParsePublicKey(s string) (PublicKey, error) {
	name, encoded, ok := strings.Cut(s, ":")
	if !ok {
		return PublicKey{}, fmt.Errorf("malformed public key %q", s)
	}

	var scheme Scheme
	switch name {
	case SchemeEd25519.String():
		scheme = SchemeEd25519
	case SchemeBLS.String():
		scheme = SchemeBLS
	default:
		return PublicKey{}, fmt.Errorf("unknown key scheme %q", name)
	}

	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return PublicKey{}, fmt.Errorf("decode public key: %w", err)
	}

	return NewPublicKey(scheme, raw)
}
