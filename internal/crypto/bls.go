package crypto

import (
	"crypto/rand"
	"fmt"

	blst "github.com/supranational/blst/bindings/go"
	"github.com/zeebo/blake3"

	"Covenant/internal/ledger"
)

const (
	// BLSPublicKeySize is the size of a compressed BLS public key in bytes.
	BLSPublicKeySize = 48

	// BLSSignatureSize is the size of a compressed BLS signature in bytes.
	BLSSignatureSize = 96
)

// blsDST is the domain separation tag for package signatures.
var blsDST = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_")

// BLSSigner holds a BLS12-381 private/public key pair.
type BLSSigner struct {
	secret *blst.SecretKey
	public *blst.P1Affine
}

// GenerateBLS creates a BLS signer from a random seed.
func GenerateBLS() (*BLSSigner, error) {
	var ikm [32]byte
	if _, err := rand.Read(ikm[:]); err != nil {
		return nil, fmt.Errorf("generate random seed:\n%w", err)
	}

	return BLSFromSeed(ikm[:])
}

// BLSFromSeed creates a BLS signer from a deterministic seed of at least 32 bytes.
func BLSFromSeed(seed []byte) (*BLSSigner, error) {
	if len(seed) < 32 {
		return nil, fmt.Errorf("seed must be at least 32 bytes")
	}

	secret := blst.KeyGen(seed)
	if secret == nil {
		return nil, fmt.Errorf("failed to generate BLS key")
	}

	return &BLSSigner{
		secret: secret,
		public: new(blst.P1Affine).From(secret),
	}, nil
}

// BLSFromLabel derives a BLS signer from an arbitrary label.
// The seed is BLAKE3("covenant-bls-keygen" || label).
func BLSFromLabel(label []byte) (*BLSSigner, error) {
	h := blake3.New()
	h.Write([]byte("covenant-bls-keygen"))
	h.Write(label)

	var derived [32]byte
	h.Sum(derived[:0])

	return BLSFromSeed(derived[:])
}

// Sign creates a BLS signature over message.
func (k *BLSSigner) Sign(message []byte) []byte {
	sig := new(blst.P2Affine).Sign(k.secret, message, blsDST)
	return sig.Compress()
}

// PublicKey returns the signer's ledger key.
func (k *BLSSigner) PublicKey() ledger.PublicKey {
	key, err := ledger.NewPublicKey(ledger.SchemeBLS, k.public.Compress())
	if err != nil {
		panic(err) // compressed G1 points are always 48 bytes
	}

	return key
}

// verifyBLS checks a BLS signature against a message and compressed public key.
func verifyBLS(signature, message, publicKey []byte) bool {
	if len(signature) != BLSSignatureSize || len(publicKey) != BLSPublicKeySize {
		return false
	}

	sig := new(blst.P2Affine).Uncompress(signature)
	if sig == nil {
		return false
	}

	pk := new(blst.P1Affine).Uncompress(publicKey)
	if pk == nil {
		return false
	}

	return sig.Verify(true, pk, true, message, blsDST)
}
