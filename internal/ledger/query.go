package ledger

import "reflect"

// StateAndRefOf is a state whose payload has been narrowed to T.
type StateAndRefOf[T ContractState] struct {
	Data     T                // Data is the typed payload
	State    TransactionState // State is the full transaction state
	Ref      StateRef         // Ref identifies the state
	Position int              // Position is the index in the originating sequence
}

// CommandOf is a command whose payload has been narrowed to T.
type CommandOf[T any] struct {
	Value    T           // Value is the typed command payload
	Signers  []PublicKey // Signers are the required signers
	Position int         // Position is the index in the command sequence
}

// Type filtering is a Go type assertion: an interface type T matches every
// payload implementing it, a concrete T matches only that type.

// =============================================================================
// Inputs
// =============================================================================

// InputsOfType returns the payloads of consumed states of type T, in order.
func InputsOfType[T ContractState](tx *LedgerTransaction) []T {
	return payloads(filterStates[T](tx.inputs, nil))
}

// InRefsOfType returns the consumed states of type T with their refs, in order.
func InRefsOfType[T ContractState](tx *LedgerTransaction) []StateAndRefOf[T] {
	return filterStates[T](tx.inputs, nil)
}

// FilterInputs returns the payloads of consumed states of type T satisfying pred.
func FilterInputs[T ContractState](tx *LedgerTransaction, pred func(T) bool) []T {
	return payloads(filterStates(tx.inputs, pred))
}

// FilterInRefs returns the consumed states of type T satisfying pred, with refs.
func FilterInRefs[T ContractState](tx *LedgerTransaction, pred func(T) bool) []StateAndRefOf[T] {
	return filterStates(tx.inputs, pred)
}

// FindInput returns the first consumed payload of type T satisfying pred.
func FindInput[T ContractState](tx *LedgerTransaction, pred func(T) bool) (T, error) {
	sr, err := findState(tx.inputs, pred, seqInput)
	return sr.Data, err
}

// FindInRef returns the first consumed state of type T satisfying pred, with its ref.
func FindInRef[T ContractState](tx *LedgerTransaction, pred func(T) bool) (StateAndRefOf[T], error) {
	return findState(tx.inputs, pred, seqInput)
}

// =============================================================================
// Reference inputs
// =============================================================================

// ReferenceInputsOfType returns the payloads of reference states of type T, in order.
func ReferenceInputsOfType[T ContractState](tx *LedgerTransaction) []T {
	return payloads(filterStates[T](tx.references, nil))
}

// ReferenceInRefsOfType returns the reference states of type T with their refs.
func ReferenceInRefsOfType[T ContractState](tx *LedgerTransaction) []StateAndRefOf[T] {
	return filterStates[T](tx.references, nil)
}

// FilterReferenceInputs returns reference payloads of type T satisfying pred.
func FilterReferenceInputs[T ContractState](tx *LedgerTransaction, pred func(T) bool) []T {
	return payloads(filterStates(tx.references, pred))
}

// FilterReferenceInRefs returns reference states of type T satisfying pred, with refs.
func FilterReferenceInRefs[T ContractState](tx *LedgerTransaction, pred func(T) bool) []StateAndRefOf[T] {
	return filterStates(tx.references, pred)
}

// FindReferenceInput returns the first reference payload of type T satisfying pred.
func FindReferenceInput[T ContractState](tx *LedgerTransaction, pred func(T) bool) (T, error) {
	sr, err := findState(tx.references, pred, seqReference)
	return sr.Data, err
}

// FindReferenceInRef returns the first reference state of type T satisfying pred.
func FindReferenceInRef[T ContractState](tx *LedgerTransaction, pred func(T) bool) (StateAndRefOf[T], error) {
	return findState(tx.references, pred, seqReference)
}

// =============================================================================
// Outputs
// =============================================================================

// OutputsOfType returns the produced payloads of type T, in order.
func OutputsOfType[T ContractState](tx *LedgerTransaction) []T {
	return payloads(filterStates[T](tx.outputs, nil))
}

// OutRefsOfType returns the produced states of type T with the refs they will have.
func OutRefsOfType[T ContractState](tx *LedgerTransaction) []StateAndRefOf[T] {
	return filterStates[T](tx.outputs, nil)
}

// FilterOutputs returns the produced payloads of type T satisfying pred.
func FilterOutputs[T ContractState](tx *LedgerTransaction, pred func(T) bool) []T {
	return payloads(filterStates(tx.outputs, pred))
}

// FilterOutRefs returns the produced states of type T satisfying pred, with refs.
func FilterOutRefs[T ContractState](tx *LedgerTransaction, pred func(T) bool) []StateAndRefOf[T] {
	return filterStates(tx.outputs, pred)
}

// FindOutput returns the first produced payload of type T satisfying pred.
func FindOutput[T ContractState](tx *LedgerTransaction, pred func(T) bool) (T, error) {
	sr, err := findState(tx.outputs, pred, seqOutput)
	return sr.Data, err
}

// FindOutRef returns the first produced state of type T satisfying pred, with its ref.
func FindOutRef[T ContractState](tx *LedgerTransaction, pred func(T) bool) (StateAndRefOf[T], error) {
	return findState(tx.outputs, pred, seqOutput)
}

// =============================================================================
// Commands
// =============================================================================

// CommandsOfType returns the commands whose payload is of type T, in order.
func CommandsOfType[T any](tx *LedgerTransaction) []CommandOf[T] {
	return FilterCommands[T](tx, nil)
}

// FilterCommands returns the commands of type T whose payload satisfies pred.
func FilterCommands[T any](tx *LedgerTransaction, pred func(T) bool) []CommandOf[T] {
	out := []CommandOf[T]{}

	for i, c := range tx.commands {
		v, ok := c.Value.(T)
		if !ok || (pred != nil && !pred(v)) {
			continue
		}

		out = append(out, CommandOf[T]{Value: v, Signers: c.Signers, Position: i})
	}

	return out
}

// FindCommand returns the first command of type T whose payload satisfies pred.
func FindCommand[T any](tx *LedgerTransaction, pred func(T) bool) (CommandOf[T], error) {
	for i, c := range tx.commands {
		v, ok := c.Value.(T)
		if ok && (pred == nil || pred(v)) {
			return CommandOf[T]{Value: v, Signers: c.Signers, Position: i}, nil
		}
	}

	return CommandOf[T]{}, &NotFoundError{Sequence: seqCommand, Type: typeName[T]()}
}

// =============================================================================
// Helpers
// =============================================================================

// filterStates narrows seq to payloads of type T accepted by pred (nil accepts all).
// The result is never nil so callers can rely on an empty, non-error answer.
func filterStates[T ContractState](seq []StateAndRef, pred func(T) bool) []StateAndRefOf[T] {
	out := []StateAndRefOf[T]{}

	for i, sr := range seq {
		v, ok := sr.State.Data.(T)
		if !ok || (pred != nil && !pred(v)) {
			continue
		}

		out = append(out, StateAndRefOf[T]{Data: v, State: sr.State, Ref: sr.Ref, Position: i})
	}

	return out
}

// findState returns the first match in sequence order.
func findState[T ContractState](seq []StateAndRef, pred func(T) bool, name string) (StateAndRefOf[T], error) {
	for i, sr := range seq {
		v, ok := sr.State.Data.(T)
		if ok && (pred == nil || pred(v)) {
			return StateAndRefOf[T]{Data: v, State: sr.State, Ref: sr.Ref, Position: i}, nil
		}
	}

	return StateAndRefOf[T]{}, &NotFoundError{Sequence: name, Type: typeName[T]()}
}

func payloads[T ContractState](srs []StateAndRefOf[T]) []T {
	out := make([]T, len(srs))
	for i, sr := range srs {
		out[i] = sr.Data
	}

	return out
}

func typeName[T any]() string {
	return reflect.TypeFor[T]().String()
}
