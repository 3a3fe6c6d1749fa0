package contract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"Covenant/internal/ledger"
)

const cash ledger.ContractID = "com.example.Cash"

func testPackage() ledger.Attachment {
	data := []byte("cash package")

	return ledger.Attachment{
		ID:        ledger.HashOf(data),
		Data:      data,
		Contracts: []ledger.ContractID{cash},
	}
}

func emptyTx(t *testing.T) *ledger.LedgerTransaction {
	t.Helper()

	tx, err := ledger.Assemble(ledger.Components{ID: ledger.HashOf([]byte("tx"))}, nil)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	return tx
}

// =============================================================================
// Invoke
// =============================================================================

func TestInvoke_Accept(t *testing.T) {
	c := Func(func(context.Context, *ledger.LedgerTransaction) error { return nil })

	if err := Invoke(context.Background(), cash, testPackage(), c, emptyTx(t)); err != nil {
		t.Fatalf("expected acceptance, got %v", err)
	}
}

func TestInvoke_Reject(t *testing.T) {
	c := Func(func(context.Context, *ledger.LedgerTransaction) error {
		return Rejectf("amount %d must be positive", 0)
	})

	err := Invoke(context.Background(), cash, testPackage(), c, emptyTx(t))

	var ve *VerificationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected VerificationError, got %v", err)
	}

	if ve.Contract != cash || ve.Attachment != testPackage().ID {
		t.Errorf("contract or package not filled in: %+v", ve)
	}

	if ve.Message != "amount 0 must be positive" {
		t.Errorf("unexpected message: %q", ve.Message)
	}
}

func TestInvoke_PlainError(t *testing.T) {
	cause := errors.New("boom")
	c := Func(func(context.Context, *ledger.LedgerTransaction) error { return cause })

	err := Invoke(context.Background(), cash, testPackage(), c, emptyTx(t))

	if !errors.Is(err, ErrVerification) || !errors.Is(err, cause) {
		t.Fatalf("expected ErrVerification wrapping cause, got %v", err)
	}
}

func TestInvoke_Panic(t *testing.T) {
	c := Func(func(_ context.Context, tx *ledger.LedgerTransaction) error {
		_, err := tx.GetInput(3)
		panic(err)
	})

	err := Invoke(context.Background(), cash, testPackage(), c, emptyTx(t))

	var ve *VerificationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected VerificationError from panic, got %v", err)
	}

	if ve.Contract != cash || !strings.Contains(ve.Message, "out of bounds") {
		t.Errorf("unexpected error: %+v", ve)
	}
}

func TestInvoke_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	c := Func(func(ctx context.Context, _ *ledger.LedgerTransaction) error {
		cancel()
		return ctx.Err()
	})

	err := Invoke(ctx, cash, testPackage(), c, emptyTx(t))
	if !errors.Is(err, context.Canceled) || errors.Is(err, ErrVerification) {
		t.Fatalf("expected bare context.Canceled, got %v", err)
	}
}

// =============================================================================
// Loaders
// =============================================================================

func TestRegistry_Load(t *testing.T) {
	r := NewRegistry()
	r.Register(cash, Func(func(context.Context, *ledger.LedgerTransaction) error { return nil }))

	if _, err := r.Load(context.Background(), cash, testPackage()); err != nil {
		t.Fatalf("load: %v", err)
	}

	if _, err := r.Load(context.Background(), "com.example.Bond", testPackage()); err == nil {
		t.Error("expected error for contract the package does not declare")
	}

	other := testPackage()
	other.Contracts = append(other.Contracts, "com.example.Bond")

	if _, err := r.Load(context.Background(), "com.example.Bond", other); !errors.Is(err, ErrNoImplementation) {
		t.Errorf("expected ErrNoImplementation, got %v", err)
	}
}

func TestChain(t *testing.T) {
	first := NewRegistry()
	second := NewRegistry()

	called := false
	second.Register(cash, Func(func(context.Context, *ledger.LedgerTransaction) error {
		called = true
		return nil
	}))

	c, err := Chain{first, second}.Load(context.Background(), cash, testPackage())
	if err != nil {
		t.Fatalf("chain load: %v", err)
	}

	if err := c.Verify(context.Background(), emptyTx(t)); err != nil || !called {
		t.Errorf("second loader's contract not used: %v", err)
	}

	if _, err := (Chain{first}).Load(context.Background(), cash, testPackage()); !errors.Is(err, ErrNoImplementation) {
		t.Errorf("expected ErrNoImplementation, got %v", err)
	}
}
