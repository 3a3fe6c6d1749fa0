package verify

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"Covenant/internal/attachment"
	"Covenant/internal/contract"
	"Covenant/internal/crypto"
	"Covenant/internal/ledger"
	"Covenant/internal/logger"
)

type Cash struct {
	Value uint64
}

func (Cash) Participants() []ledger.PublicKey { return nil }

const (
	cash ledger.ContractID = "com.example.Cash"
	bond ledger.ContractID = "com.example.Bond"
)

func testSigner(t *testing.T, seed byte) *crypto.Ed25519Signer {
	t.Helper()

	s, err := crypto.Ed25519FromSeed(bytes.Repeat([]byte{seed}, 32))
	if err != nil {
		t.Fatalf("signer: %v", err)
	}

	return s
}

// pkg builds a package declaring contracts, signed by signers.
func pkg(t *testing.T, body string, contracts []ledger.ContractID, signers ...crypto.Signer) ledger.Attachment {
	t.Helper()

	data, err := attachment.New(
		attachment.Manifest{Version: "1", Contracts: contracts},
		ledger.Entry{Name: "rules", Data: []byte(body)},
	)
	if err != nil {
		t.Fatalf("build package: %v", err)
	}

	sigs := make([]ledger.Signature, len(signers))
	for i, s := range signers {
		sigs[i] = attachment.Sign(data, s)
	}

	att, err := attachment.Open(data, sigs)
	if err != nil {
		t.Fatalf("open package: %v", err)
	}

	return att
}

func notaryKey(t *testing.T) ledger.PublicKey {
	t.Helper()
	return testSigner(t, 99).PublicKey()
}

func state(t *testing.T, contract ledger.ContractID, c ledger.AttachmentConstraint) ledger.TransactionState {
	t.Helper()

	return ledger.TransactionState{
		Data:       Cash{Value: 1},
		Contract:   contract,
		Notary:     notaryKey(t),
		Constraint: c,
	}
}

// buildTx assembles a transaction consuming inputs and producing outputs.
func buildTx(t *testing.T, inputs, outputs []ledger.TransactionState, atts ...ledger.Attachment) *ledger.LedgerTransaction {
	t.Helper()

	states := ledger.StateMap{}
	refs := make([]ledger.StateRef, len(inputs))

	for i, s := range inputs {
		refs[i] = ledger.StateRef{TxID: ledger.HashOf([]byte("prev")), Index: uint32(i)}
		states[refs[i]] = s
	}

	tx, err := ledger.Assemble(ledger.Components{
		ID:          ledger.HashOf([]byte("tx")),
		Inputs:      refs,
		Outputs:     outputs,
		Attachments: atts,
		Notary:      notaryKey(t),
	}, states)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	return tx
}

// captureLogs routes the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	prev := slog.Default()

	slog.SetDefault(slog.New(logger.NewHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	return &buf
}

// acceptAll is a loader whose contracts accept everything and record calls.
type acceptAll struct {
	calls []ledger.ContractID
}

func (a *acceptAll) Load(_ context.Context, id ledger.ContractID, _ ledger.Attachment) (contract.Contract, error) {
	return contract.Func(func(context.Context, *ledger.LedgerTransaction) error {
		a.calls = append(a.calls, id)
		return nil
	}), nil
}

func blsSigner(t *testing.T) *crypto.BLSSigner {
	t.Helper()

	s, err := crypto.BLSFromLabel([]byte(t.Name()))
	if err != nil {
		t.Fatalf("bls signer: %v", err)
	}

	return s
}
