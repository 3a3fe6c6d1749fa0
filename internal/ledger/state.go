package ledger

import (
	"fmt"
	"time"
)

// ContractID names the contract that governs a state, e.g. "com.example.Cash".
type ContractID string

// StateRef identifies one output of one transaction.
type StateRef struct {
	TxID  SecureHash // TxID is the producing transaction
	Index uint32     // Index is the output position in that transaction
}

// String returns "<txid>(<index>)".
func (r StateRef) String() string {
	return fmt.Sprintf("%s(%d)", r.TxID, r.Index)
}

// ContractState is implemented by every state payload.
type ContractState interface {
	// Participants returns the keys of the parties that hold this state.
	Participants() []PublicKey
}

// CommandData is implemented by every command payload.
type CommandData interface{}

// TransactionState wraps a state payload with the data the ledger needs to govern it.
type TransactionState struct {
	Data       ContractState        // Data is the state payload
	Contract   ContractID           // Contract is the contract that must accept transitions
	Notary     PublicKey            // Notary is the uniqueness authority for the state
	Constraint AttachmentConstraint // Constraint binds the state to acceptable code packages
}

// StateAndRef pairs a state with the reference that identifies it.
type StateAndRef struct {
	State TransactionState // State is the resolved state
	Ref   StateRef         // Ref identifies the state on the ledger
}

// Command is a typed command plus the keys required to have signed for it.
type Command struct {
	Value   CommandData // Value is the command payload
	Signers []PublicKey // Signers must all sign the transaction
}

// TimeWindow bounds when a transaction may be notarised.
// A zero bound is open.
type TimeWindow struct {
	From  time.Time // From is the inclusive lower bound
	Until time.Time // Until is the exclusive upper bound
}

// NewTimeWindow builds a window, rejecting an empty or inverted range.
func NewTimeWindow(from, until time.Time) (TimeWindow, error) {
	if from.IsZero() && until.IsZero() {
		return TimeWindow{}, fmt.Errorf("time window needs at least one bound")
	}

	if !from.IsZero() && !until.IsZero() && !from.Before(until) {
		return TimeWindow{}, fmt.Errorf("time window from %s is not before until %s", from, until)
	}

	return TimeWindow{From: from, Until: until}, nil
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}

	if !w.Until.IsZero() && !t.Before(w.Until) {
		return false
	}

	return true
}
