package ledger

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// HashSize is the size of a SecureHash in bytes.
const HashSize = 32

// SecureHash is a BLAKE3 digest identifying transactions and attachments.
type SecureHash [HashSize]byte

// HashOf computes the BLAKE3 digest of data.
func HashOf(data []byte) SecureHash {
	return blake3.Sum256(data)
}

// String returns the lowercase hex encoding of the hash.
func (h SecureHash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 8 bytes of the hash in hex, for logs.
func (h SecureHash) Short() string {
	return hex.EncodeToString(h[:8])
}

// IsZero reports whether h is the zero hash.
func (h SecureHash) IsZero() bool {
	return h == SecureHash{}
}

// ParseSecureHash decodes a hex string into a SecureHash.
func ParseSecureHash(s string) (SecureHash, error) {
	var h SecureHash

	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("decode hash: %w", err)
	}

	if len(b) != HashSize {
		return h, fmt.Errorf("invalid hash size: got %d, want %d", len(b), HashSize)
	}

	copy(h[:], b)

	return h, nil
}

// HashFromBytes copies b into a SecureHash. b must be exactly HashSize bytes.
func HashFromBytes(b []byte) (SecureHash, error) {
	var h SecureHash
	if len(b) != HashSize {
		return h, fmt.Errorf("invalid hash size: got %d, want %d", len(b), HashSize)
	}

	copy(h[:], b)

	return h, nil
}
