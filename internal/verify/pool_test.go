package verify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"Covenant/internal/contract"
	"Covenant/internal/ledger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// Pool
// =============================================================================

func TestPool_Concurrent(t *testing.T) {
	att := pkg(t, "v1", []ledger.ContractID{cash})
	hash := ledger.HashConstraint{Expected: att.ContentHash()}

	good := buildTx(t, nil, []ledger.TransactionState{state(t, cash, hash)}, att)
	bad := buildTx(t, nil, []ledger.TransactionState{
		state(t, cash, ledger.HashConstraint{Expected: ledger.HashOf([]byte("x"))}),
	}, att)

	reg := contract.NewRegistry()
	reg.Register(cash, contract.Func(func(context.Context, *ledger.LedgerTransaction) error { return nil }))

	p := NewPool(New(Policy{}, reg, nil), 4)
	defer p.Close()

	var wg sync.WaitGroup
	errs := make([]error, 32)

	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()

			tx := good
			if i%2 == 1 {
				tx = bad
			}

			_, errs[i] = p.Submit(context.Background(), tx)
		}()
	}

	wg.Wait()

	for i, err := range errs {
		if i%2 == 0 && err != nil {
			t.Errorf("submission %d: %v", i, err)
		}
		if i%2 == 1 && !errors.Is(err, ErrConstraintViolation) {
			t.Errorf("submission %d: expected violation, got %v", i, err)
		}
	}
}

func TestPool_Closed(t *testing.T) {
	p := NewPool(New(Policy{}, contract.NewRegistry(), nil), 2)
	p.Close()
	p.Close()

	att := pkg(t, "v1", []ledger.ContractID{cash})
	tx := buildTx(t, nil, []ledger.TransactionState{
		state(t, cash, ledger.HashConstraint{Expected: att.ContentHash()}),
	}, att)

	if _, err := p.Submit(context.Background(), tx); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}

func TestPool_CallerCancels(t *testing.T) {
	att := pkg(t, "v1", []ledger.ContractID{cash})
	tx := buildTx(t, nil, []ledger.TransactionState{
		state(t, cash, ledger.HashConstraint{Expected: att.ContentHash()}),
	}, att)

	release := make(chan struct{})
	reg := contract.NewRegistry()
	reg.Register(cash, contract.Func(func(ctx context.Context, _ *ledger.LedgerTransaction) error {
		<-release
		return nil
	}))

	p := NewPool(New(Policy{}, reg, nil), 1)
	defer p.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := p.Submit(ctx, tx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
