package ledger

import (
	"context"
	"slices"
)

// StateResolver resolves a StateRef to the state it identifies.
// Implementations must be idempotent and return ErrStateNotFound (possibly
// wrapped) when the reference is unknown.
type StateResolver interface {
	Resolve(ref StateRef) (TransactionState, error)
}

// StateResolverFunc adapts a function to StateResolver.
type StateResolverFunc func(ref StateRef) (TransactionState, error)

// Resolve calls f(ref).
func (f StateResolverFunc) Resolve(ref StateRef) (TransactionState, error) {
	return f(ref)
}

// StateMap is an in-memory StateResolver over already resolved states.
type StateMap map[StateRef]TransactionState

// Resolve returns the state for ref or ErrStateNotFound.
func (m StateMap) Resolve(ref StateRef) (TransactionState, error) {
	s, ok := m[ref]
	if !ok {
		return TransactionState{}, ErrStateNotFound
	}

	return s, nil
}

// AttachmentFetcher retrieves a code package by content hash.
// Implementations must be safe for concurrent reads and return
// ErrAttachmentNotFound (possibly wrapped) for unknown hashes.
type AttachmentFetcher interface {
	Fetch(ctx context.Context, id SecureHash) (Attachment, error)
}

// Components is a partially built transaction whose inputs are still references.
type Components struct {
	ID          SecureHash         // ID is the transaction identifier
	Inputs      []StateRef         // Inputs are the consumed state references
	References  []StateRef         // References are the read-only state references
	Outputs     []TransactionState // Outputs are the produced states
	Commands    []Command          // Commands are the authorised commands
	Attachments []Attachment       // Attachments are the available code packages
	Notary      PublicKey          // Notary is the transaction's uniqueness authority
	TimeWindow  *TimeWindow        // TimeWindow is optional
}

// Assemble resolves the input references of c through states and builds the
// immutable LedgerTransaction. Sequence order is kept exactly as supplied.
// Assemble performs no I/O itself; any lookup happens inside states.
func Assemble(c Components, states StateResolver) (*LedgerTransaction, error) {
	if err := checkDuplicateInputs(c.Inputs); err != nil {
		return nil, err
	}

	inputs, err := resolveAll(c.Inputs, states, seqInput)
	if err != nil {
		return nil, err
	}

	references, err := resolveAll(c.References, states, seqReference)
	if err != nil {
		return nil, err
	}

	if err := checkNotary(c, inputs); err != nil {
		return nil, err
	}

	outputs := make([]StateAndRef, len(c.Outputs))
	for i, s := range c.Outputs {
		outputs[i] = StateAndRef{State: s, Ref: StateRef{TxID: c.ID, Index: uint32(i)}}
	}

	if err := checkAttachmentsPresent(inputs, outputs, c.Attachments); err != nil {
		return nil, err
	}

	tx := &LedgerTransaction{
		id:          c.ID,
		inputs:      inputs,
		references:  references,
		outputs:     outputs,
		commands:    cloneCommands(c.Commands),
		attachments: slices.Clone(c.Attachments),
		notary:      c.Notary,
	}

	if c.TimeWindow != nil {
		w := *c.TimeWindow
		tx.timeWindow = &w
	}

	return tx, nil
}

// resolveAll resolves refs in order.
func resolveAll(refs []StateRef, states StateResolver, seq string) ([]StateAndRef, error) {
	resolved := make([]StateAndRef, len(refs))

	for i, ref := range refs {
		if states == nil {
			return nil, &TransactionResolutionError{Ref: ref, Sequence: seq, Position: i, Err: ErrStateNotFound}
		}

		s, err := states.Resolve(ref)
		if err != nil {
			return nil, &TransactionResolutionError{Ref: ref, Sequence: seq, Position: i, Err: err}
		}

		resolved[i] = StateAndRef{State: s, Ref: ref}
	}

	return resolved, nil
}

// checkDuplicateInputs rejects a transaction consuming the same state twice.
func checkDuplicateInputs(refs []StateRef) error {
	seen := make(map[StateRef]int, len(refs))

	for i, ref := range refs {
		if first, dup := seen[ref]; dup {
			return &DuplicateInputError{Ref: ref, First: first, Position: i}
		}

		seen[ref] = i
	}

	return nil
}

// checkNotary enforces that every output names the transaction notary and that
// a notary is present when states are consumed or a time window is set.
func checkNotary(c Components, inputs []StateAndRef) error {
	if c.Notary.IsZero() && (len(inputs) > 0 || c.TimeWindow != nil) {
		return ErrNotaryRequired
	}

	for i, out := range c.Outputs {
		if out.Notary != c.Notary {
			return &OutputNotaryError{Position: i, Notary: out.Notary, Expected: c.Notary}
		}
	}

	return nil
}

// checkAttachmentsPresent requires a package declaring the contract of every
// consumed and produced state.
func checkAttachmentsPresent(inputs, outputs []StateAndRef, attachments []Attachment) error {
	declared := make(map[ContractID]bool)
	for _, a := range attachments {
		for _, c := range a.Contracts {
			declared[c] = true
		}
	}

	for i, in := range inputs {
		if !declared[in.State.Contract] {
			return &MissingAttachmentError{Contract: in.State.Contract, Sequence: seqInput, Position: i}
		}
	}

	for i, out := range outputs {
		if !declared[out.State.Contract] {
			return &MissingAttachmentError{Contract: out.State.Contract, Sequence: seqOutput, Position: i}
		}
	}

	return nil
}

func cloneCommands(cmds []Command) []Command {
	out := make([]Command, len(cmds))
	for i, c := range cmds {
		out[i] = Command{Value: c.Value, Signers: slices.Clone(c.Signers)}
	}

	return out
}
