// Package contract defines the executable-contract capability and the
// boundary through which verified packages are invoked.
package contract

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"Covenant/internal/ledger"
)

var (
	// ErrVerification classifies every business-rule rejection.
	ErrVerification = errors.New("contract verification failed")

	// ErrNoImplementation is returned by a Loader that cannot run a contract.
	ErrNoImplementation = errors.New("no implementation for contract")
)

// Contract is the verification logic for one contract id.
// Verify returns nil to accept the transaction.
type Contract interface {
	Verify(ctx context.Context, tx *ledger.LedgerTransaction) error
}

// Func adapts a function to Contract.
type Func func(ctx context.Context, tx *ledger.LedgerTransaction) error

// Verify calls f(ctx, tx).
func (f Func) Verify(ctx context.Context, tx *ledger.LedgerTransaction) error {
	return f(ctx, tx)
}

// Loader turns an approved package into a callable contract.
type Loader interface {
	Load(ctx context.Context, id ledger.ContractID, att ledger.Attachment) (Contract, error)
}

// VerificationError reports a contract rejecting a transaction, or failing
// while trying to.
type VerificationError struct {
	Contract   ledger.ContractID // Contract is the rejecting contract
	Attachment ledger.SecureHash // Attachment is the package that ran
	Message    string            // Message is the contract's reason
	Err        error             // Err is the underlying error, if any
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("contract %s (package %s) rejected transaction: %s", e.Contract, e.Attachment.Short(), e.Message)
}

func (e *VerificationError) Unwrap() error { return e.Err }

func (*VerificationError) Is(target error) bool {
	return target == ErrVerification
}

// Rejectf builds a rejection for contract code to return.
// Invoke fills in the contract and package.
func Rejectf(format string, args ...any) error {
	return &VerificationError{Message: fmt.Sprintf(format, args...)}
}

// Invoke runs c against tx. Panics and errors raised by the contract come
// back as *VerificationError naming id and the package. Cancellation of ctx
// is returned unchanged.
func Invoke(ctx context.Context, id ledger.ContractID, att ledger.Attachment, c Contract, tx *ledger.LedgerTransaction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &VerificationError{
				Contract:   id,
				Attachment: att.ID,
				Message:    fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	verr := c.Verify(ctx, tx)
	if verr == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(verr, ctxErr) {
		return ctxErr
	}

	var ve *VerificationError
	if errors.As(verr, &ve) {
		out := *ve
		out.Contract = id
		out.Attachment = att.ID

		return &out
	}

	return &VerificationError{
		Contract:   id,
		Attachment: att.ID,
		Message:    verr.Error(),
		Err:        verr,
	}
}

// Registry holds natively compiled contracts. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	contracts map[ledger.ContractID]Contract
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{contracts: make(map[ledger.ContractID]Contract)}
}

// Register binds c to id, replacing any previous binding.
func (r *Registry) Register(id ledger.ContractID, c Contract) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.contracts[id] = c
}

// Load returns the native contract for id. The package must declare id.
func (r *Registry) Load(_ context.Context, id ledger.ContractID, att ledger.Attachment) (Contract, error) {
	if !att.Declares(id) {
		return nil, fmt.Errorf("package %s does not declare %s", att.ID.Short(), id)
	}

	r.mu.RLock()
	c, ok := r.contracts[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoImplementation, id)
	}

	return c, nil
}

// Chain tries each loader in turn, moving on when one reports ErrNoImplementation.
type Chain []Loader

// Load returns the first implementation found.
func (ch Chain) Load(ctx context.Context, id ledger.ContractID, att ledger.Attachment) (Contract, error) {
	for _, l := range ch {
		c, err := l.Load(ctx, id, att)
		if err == nil {
			return c, nil
		}

		if !errors.Is(err, ErrNoImplementation) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNoImplementation, id)
}
