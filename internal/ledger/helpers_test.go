package ledger

import (
	"crypto/ed25519"
	"testing"
)

// Test state and command types. Asset is implemented by both Cash and Bond
// so that interface queries exercise covariant matching.

type Asset interface {
	ContractState
	Amount() uint64
}

type Cash struct {
	Value uint64
	Owner PublicKey
}

func (c Cash) Participants() []PublicKey { return []PublicKey{c.Owner} }
func (c Cash) Amount() uint64            { return c.Value }

type Bond struct {
	Face uint64
}

func (b Bond) Participants() []PublicKey { return nil }
func (b Bond) Amount() uint64            { return b.Face }

type Note struct {
	Text string
}

func (Note) Participants() []PublicKey { return nil }

type Move struct{}
type Issue struct{ Serial int }

const (
	cashContract ContractID = "com.example.Cash"
	bondContract ContractID = "com.example.Bond"
	noteContract ContractID = "com.example.Note"
)

// newTestKey derives a deterministic Ed25519 public key from a seed byte.
func newTestKey(t *testing.T, seed byte) PublicKey {
	t.Helper()

	var s [ed25519.SeedSize]byte
	s[0] = seed

	priv := ed25519.NewKeyFromSeed(s[:])

	key, err := NewPublicKey(SchemeEd25519, priv.Public().(ed25519.PublicKey))
	if err != nil {
		t.Fatalf("new public key: %v", err)
	}

	return key
}

// testAttachments returns one package declaring every test contract.
func testAttachments() []Attachment {
	data := []byte("test package")

	return []Attachment{{
		ID:        HashOf(data),
		Data:      data,
		Contracts: []ContractID{cashContract, bondContract, noteContract},
	}}
}

// txState wraps a payload for the given contract and notary.
func txState(data ContractState, contract ContractID, notary PublicKey) TransactionState {
	return TransactionState{
		Data:       data,
		Contract:   contract,
		Notary:     notary,
		Constraint: AlwaysAcceptConstraint{},
	}
}

// inputRef builds a deterministic StateRef for test inputs.
func inputRef(i int) StateRef {
	return StateRef{TxID: HashOf([]byte{byte(i), 0xAA}), Index: uint32(i)}
}

// buildInterleaved builds a transaction with n Cash and n Bond inputs
// interleaved as Cash, Bond, Cash, Bond, ...
func buildInterleaved(t *testing.T, n int) *LedgerTransaction {
	t.Helper()

	notary := newTestKey(t, 1)
	states := StateMap{}
	refs := make([]StateRef, 0, 2*n)

	for i := 0; i < 2*n; i++ {
		ref := inputRef(i)
		refs = append(refs, ref)

		if i%2 == 0 {
			states[ref] = txState(Cash{Value: uint64(i)}, cashContract, notary)
		} else {
			states[ref] = txState(Bond{Face: uint64(i)}, bondContract, notary)
		}
	}

	tx, err := Assemble(Components{
		ID:          HashOf([]byte("interleaved")),
		Inputs:      refs,
		Attachments: testAttachments(),
		Notary:      notary,
	}, states)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	return tx
}
