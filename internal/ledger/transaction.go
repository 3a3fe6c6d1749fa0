package ledger

import "slices"

const (
	seqInput     = "input"
	seqReference = "reference"
	seqOutput    = "output"
	seqCommand   = "command"
)

// LedgerTransaction is the fully resolved view of one transaction.
// It is built once by Assemble and never mutated afterwards, so it is safe to
// share between goroutines.
type LedgerTransaction struct {
	id          SecureHash
	inputs      []StateAndRef
	references  []StateAndRef
	outputs     []StateAndRef
	commands    []Command
	attachments []Attachment
	notary      PublicKey
	timeWindow  *TimeWindow
}

// ID returns the transaction identifier.
func (tx *LedgerTransaction) ID() SecureHash {
	return tx.id
}

// Notary returns the uniqueness authority of the transaction.
func (tx *LedgerTransaction) Notary() PublicKey {
	return tx.notary
}

// TimeWindow returns the time window, or nil if the transaction has none.
func (tx *LedgerTransaction) TimeWindow() *TimeWindow {
	if tx.timeWindow == nil {
		return nil
	}

	w := *tx.timeWindow

	return &w
}

// Inputs returns the consumed states in order.
func (tx *LedgerTransaction) Inputs() []StateAndRef {
	return slices.Clone(tx.inputs)
}

// References returns the reference-only states in order.
func (tx *LedgerTransaction) References() []StateAndRef {
	return slices.Clone(tx.references)
}

// Outputs returns the produced states in order.
func (tx *LedgerTransaction) Outputs() []TransactionState {
	out := make([]TransactionState, len(tx.outputs))
	for i, o := range tx.outputs {
		out[i] = o.State
	}

	return out
}

// Commands returns the commands in order.
func (tx *LedgerTransaction) Commands() []Command {
	return slices.Clone(tx.commands)
}

// Attachments returns the attached code packages in the order supplied.
func (tx *LedgerTransaction) Attachments() []Attachment {
	return slices.Clone(tx.attachments)
}

// ConsumedRefs returns the consumed state references in order, ready to hand
// to the uniqueness service.
func (tx *LedgerTransaction) ConsumedRefs() []StateRef {
	refs := make([]StateRef, len(tx.inputs))
	for i, in := range tx.inputs {
		refs[i] = in.Ref
	}

	return refs
}

// AttachmentForContract returns the first attached package declaring contract.
func (tx *LedgerTransaction) AttachmentForContract(contract ContractID) (Attachment, bool) {
	for _, a := range tx.attachments {
		if a.Declares(contract) {
			return a, true
		}
	}

	return Attachment{}, false
}

// InputCount, ReferenceCount, OutputCount and CommandCount return sequence lengths.
func (tx *LedgerTransaction) InputCount() int     { return len(tx.inputs) }
func (tx *LedgerTransaction) ReferenceCount() int { return len(tx.references) }
func (tx *LedgerTransaction) OutputCount() int    { return len(tx.outputs) }
func (tx *LedgerTransaction) CommandCount() int   { return len(tx.commands) }

// =============================================================================
// Positional accessors
// =============================================================================

// GetInput returns the payload of the consumed state at position i.
func (tx *LedgerTransaction) GetInput(i int) (ContractState, error) {
	sr, err := at(tx.inputs, i, seqInput)
	if err != nil {
		return nil, err
	}

	return sr.State.Data, nil
}

// InRef returns the consumed state and its reference at position i.
func (tx *LedgerTransaction) InRef(i int) (StateAndRef, error) {
	return at(tx.inputs, i, seqInput)
}

// GetReferenceInput returns the payload of the reference state at position i.
func (tx *LedgerTransaction) GetReferenceInput(i int) (ContractState, error) {
	sr, err := at(tx.references, i, seqReference)
	if err != nil {
		return nil, err
	}

	return sr.State.Data, nil
}

// ReferenceInRef returns the reference state and its reference at position i.
func (tx *LedgerTransaction) ReferenceInRef(i int) (StateAndRef, error) {
	return at(tx.references, i, seqReference)
}

// GetOutput returns the payload of the produced state at position i.
func (tx *LedgerTransaction) GetOutput(i int) (ContractState, error) {
	sr, err := at(tx.outputs, i, seqOutput)
	if err != nil {
		return nil, err
	}

	return sr.State.Data, nil
}

// OutRef returns the produced state at position i with the StateRef it will
// have once the transaction commits.
func (tx *LedgerTransaction) OutRef(i int) (StateAndRef, error) {
	return at(tx.outputs, i, seqOutput)
}

// GetCommand returns the command at position i.
func (tx *LedgerTransaction) GetCommand(i int) (Command, error) {
	return at(tx.commands, i, seqCommand)
}

// at indexes seq with standard bounds semantics: no wraparound, no clamping.
func at[E any](seq []E, i int, name string) (E, error) {
	if i < 0 || i >= len(seq) {
		var zero E
		return zero, &IndexError{Sequence: name, Index: i, Len: len(seq)}
	}

	return seq[i], nil
}
