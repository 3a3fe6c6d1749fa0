// Package verify decides whether a resolved transaction may be accepted:
// every touched state must be backed by exactly one trusted package, and
// every contract involved must accept the transaction.
package verify

import (
	"context"
	"fmt"
	"time"

	"Covenant/internal/contract"
	"Covenant/internal/ledger"
	"Covenant/internal/logger"
	"Covenant/internal/metrics"
)

// Result describes an accepted transaction.
type Result struct {
	ID        ledger.SecureHash                       // ID is the transaction id
	Consumed  []ledger.StateRef                       // Consumed is the input list for the uniqueness service
	Contracts []ledger.ContractID                     // Contracts ran, in invocation order
	Packages  map[ledger.ContractID]ledger.SecureHash // Packages maps each contract to the package that ran
}

// Verifier runs constraint checks then contract code for one transaction at
// a time. It holds no per-transaction state; one Verifier serves any number
// of concurrent calls.
type Verifier struct {
	checker *Checker
	loader  contract.Loader
	metrics *metrics.Metrics
}

// New creates a verifier. m may be nil.
func New(policy Policy, loader contract.Loader, m *metrics.Metrics) *Verifier {
	return &Verifier{
		checker: NewChecker(policy, m),
		loader:  loader,
		metrics: m,
	}
}

// Verify checks tx. Constraint failures stop verification before any
// contract code runs. Cancelling ctx abandons the attempt; nothing needs
// to be unwound.
func (v *Verifier) Verify(ctx context.Context, tx *ledger.LedgerTransaction) (*Result, error) {
	start := time.Now()

	res, err := v.verify(ctx, tx)

	outcome := Classify(err).Kind
	v.metrics.ObserveVerification(outcome, time.Since(start))

	if err != nil {
		logger.Debug("transaction rejected", "tx", tx.ID().Short(), "outcome", outcome, "error", err)
		return nil, err
	}

	logger.Debug("transaction verified", "tx", tx.ID().Short(), "contracts", len(res.Contracts), logger.Timed(start))

	return res, nil
}

func (v *Verifier) verify(ctx context.Context, tx *ledger.LedgerTransaction) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	approved, err := v.checker.Check(tx)
	if err != nil {
		return nil, err
	}

	res := &Result{
		ID:       tx.ID(),
		Consumed: tx.ConsumedRefs(),
		Packages: make(map[ledger.ContractID]ledger.SecureHash),
	}

	for _, id := range touchedContracts(tx) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		att := approved[id]

		c, err := v.loader.Load(ctx, id, att)
		if err != nil {
			return nil, &contract.VerificationError{
				Contract:   id,
				Attachment: att.ID,
				Message:    fmt.Sprintf("load contract: %v", err),
				Err:        err,
			}
		}

		if err := contract.Invoke(ctx, id, att, c, tx); err != nil {
			return nil, err
		}

		res.Contracts = append(res.Contracts, id)
		res.Packages[id] = att.ContentHash()
	}

	return res, nil
}

// touchedContracts lists the contracts of consumed inputs then outputs, in
// first-appearance order.
func touchedContracts(tx *ledger.LedgerTransaction) []ledger.ContractID {
	seen := make(map[ledger.ContractID]bool)
	var ids []ledger.ContractID

	add := func(id ledger.ContractID) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, in := range tx.Inputs() {
		add(in.State.Contract)
	}

	for _, out := range tx.Outputs() {
		add(out.Contract)
	}

	return ids
}
