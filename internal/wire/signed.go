package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"Covenant/internal/crypto"
	"Covenant/internal/ledger"
)

// signedTxTag marks a signed transaction envelope.
const signedTxTag = 40100

// ErrSignature classifies a missing or invalid transaction signature.
var ErrSignature = errors.New("transaction signature check failed")

// SignedTransaction is an encoded transaction with signatures over its id.
type SignedTransaction struct {
	Tx         []byte             // Tx is the deterministic WireTransaction encoding
	Signatures []ledger.Signature // Signatures cover the transaction id
	Names      []string           // Names are the type names of the payloads in Tx
}

// signedEnvelope is the tagged on-wire shape of a SignedTransaction.
type signedEnvelope struct {
	_          struct{} `cbor:",toarray"`
	Tx         []byte
	Signatures []wireSignature
	Names      []string
}

type wireSignature struct {
	_     struct{} `cbor:",toarray"`
	Key   wireKey
	Bytes []byte
}

// SignatureError reports a command signer without a valid signature, or a
// signature that does not cover the transaction id.
type SignatureError struct {
	Command int              // Command is the command index, or -1 for a bad signature record
	Key     ledger.PublicKey // Key is the signer concerned
	Reason  string           // Reason describes the failure
}

func (e *SignatureError) Error() string {
	if e.Command < 0 {
		return fmt.Sprintf("signature by %s: %s", e.Key, e.Reason)
	}

	return fmt.Sprintf("command %d signer %s: %s", e.Command, e.Key, e.Reason)
}

func (*SignatureError) Is(target error) bool {
	return target == ErrSignature
}

// IsSigned reports whether data starts with a signed transaction envelope.
func IsSigned(data []byte) bool {
	return len(data) >= 3 && data[0] == 0xd9 && binary.BigEndian.Uint16(data[1:3]) == signedTxTag
}

// Sign encodes tx and signs its id with every signer. The envelope names the
// payload types so any reader can label them.
func (c *Codec) Sign(tx *WireTransaction, signers ...crypto.Signer) (*SignedTransaction, error) {
	data, err := c.Encode(tx)
	if err != nil {
		return nil, err
	}

	id := ledger.HashOf(data)

	st := &SignedTransaction{Tx: data, Names: c.payloadNames(tx)}
	for _, s := range signers {
		st.Signatures = append(st.Signatures, ledger.Signature{Signer: s.PublicKey(), Bytes: s.Sign(id[:])})
	}

	return st, nil
}

// payloadNames lists the registered names of tx's payload types, once each.
func (c *Codec) payloadNames(tx *WireTransaction) []string {
	var names []string

	add := func(v any) {
		desc, err := c.Registry.Describe(v)
		if err != nil {
			return
		}

		if name, ok := c.Registry.Name(desc); ok && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}

	for _, s := range tx.Outputs {
		add(s.Data)
	}

	for _, cmd := range tx.Commands {
		add(cmd.Value)
	}

	return names
}

// EncodeSigned serializes the envelope.
func EncodeSigned(st *SignedTransaction) ([]byte, error) {
	env := signedEnvelope{Tx: st.Tx, Names: st.Names}

	for _, sig := range st.Signatures {
		env.Signatures = append(env.Signatures, wireSignature{Key: toWireKey(sig.Signer), Bytes: sig.Bytes})
	}

	data, err := Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode signed transaction:\n%w", err)
	}

	return data, nil
}

// DecodeSigned parses the envelope without looking inside the transaction.
func DecodeSigned(data []byte) (*SignedTransaction, error) {
	if !IsSigned(data) {
		return nil, fmt.Errorf("%w: not a signed transaction", ErrMalformed)
	}

	var env signedEnvelope
	if err := Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w:\n%w", ErrMalformed, err)
	}

	st := &SignedTransaction{Tx: env.Tx, Names: env.Names}

	for i, ws := range env.Signatures {
		key, err := ws.Key.key()
		if err != nil {
			return nil, fmt.Errorf("%w: signature %d:\n%w", ErrMalformed, i, err)
		}

		st.Signatures = append(st.Signatures, ledger.Signature{Signer: key, Bytes: ws.Bytes})
	}

	return st, nil
}

// DecodeSignedTransaction parses a signed envelope and its transaction, then
// checks that every signature covers the transaction id and that every
// command signer signed.
func (c *Codec) DecodeSignedTransaction(data []byte) (*WireTransaction, ledger.SecureHash, []ledger.Signature, error) {
	st, err := DecodeSigned(data)
	if err != nil {
		return nil, ledger.SecureHash{}, nil, err
	}

	tx, id, err := c.Decode(st.Tx)
	if err != nil {
		return nil, ledger.SecureHash{}, nil, err
	}

	if err := VerifySignatures(tx, id, st.Signatures); err != nil {
		return nil, ledger.SecureHash{}, nil, err
	}

	return tx, id, st.Signatures, nil
}

// VerifySignatures checks sigs against id and requires a valid signature from
// every key named by a command.
func VerifySignatures(tx *WireTransaction, id ledger.SecureHash, sigs []ledger.Signature) error {
	signed := make(map[ledger.PublicKey]bool, len(sigs))

	for _, sig := range sigs {
		if !crypto.Verify(sig.Signer, id[:], sig.Bytes) {
			return &SignatureError{Command: -1, Key: sig.Signer, Reason: "does not cover transaction " + id.Short()}
		}

		signed[sig.Signer] = true
	}

	for i, cmd := range tx.Commands {
		for _, key := range cmd.Signers {
			if !signed[key] {
				return &SignatureError{Command: i, Key: key, Reason: "required signature missing"}
			}
		}
	}

	return nil
}
