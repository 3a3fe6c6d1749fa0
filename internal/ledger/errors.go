package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrResolution classifies failures to resolve an input state or attachment.
	// The caller must re-fetch or abort.
	ErrResolution = errors.New("resolution failed")

	// ErrIndexOutOfBounds is returned by positional accessors for an invalid index.
	ErrIndexOutOfBounds = errors.New("index out of bounds")

	// ErrNotFound is returned by find-single queries with no match.
	ErrNotFound = errors.New("no matching element")

	// ErrNotaryMismatch is returned when an output names a different notary than the transaction.
	ErrNotaryMismatch = errors.New("output notary does not match transaction notary")

	// ErrNotaryRequired is returned when a transaction consumes states or has a time window but names no notary.
	ErrNotaryRequired = errors.New("transaction requires a notary")

	// ErrDuplicateInput is returned when the same state is consumed twice in one transaction.
	ErrDuplicateInput = errors.New("duplicate input state")

	// ErrStateNotFound is returned by state resolvers that hold no state for a reference.
	ErrStateNotFound = errors.New("state not found")

	// ErrAttachmentNotFound is returned by attachment fetchers that hold no package for a hash.
	ErrAttachmentNotFound = errors.New("attachment not found")
)

// TransactionResolutionError indicates an input or reference StateRef could not be resolved.
type TransactionResolutionError struct {
	Ref      StateRef // Ref is the unresolved reference
	Sequence string   // Sequence is "input" or "reference"
	Position int      // Position is the index within that sequence
	Err      error    // Err is the resolver's error
}

func (e *TransactionResolutionError) Error() string {
	return fmt.Sprintf("resolve %s %d (%s): %v", e.Sequence, e.Position, e.Ref, e.Err)
}

func (e *TransactionResolutionError) Unwrap() error { return e.Err }

func (*TransactionResolutionError) Is(target error) bool {
	return target == ErrResolution
}

// MissingAttachmentError indicates no supplied package declares a state's contract.
type MissingAttachmentError struct {
	Contract ContractID // Contract is the contract without a package
	Sequence string     // Sequence is "input" or "output"
	Position int        // Position is the index within that sequence
}

func (e *MissingAttachmentError) Error() string {
	return fmt.Sprintf("no attachment for contract %s (%s %d)", e.Contract, e.Sequence, e.Position)
}

func (*MissingAttachmentError) Is(target error) bool {
	return target == ErrResolution
}

// IndexError reports an out-of-bounds positional access.
type IndexError struct {
	Sequence string // Sequence is the accessed sequence name
	Index    int    // Index is the requested position
	Len      int    // Len is the sequence length
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s index %d out of bounds [0,%d)", e.Sequence, e.Index, e.Len)
}

func (*IndexError) Is(target error) bool {
	return target == ErrIndexOutOfBounds
}

// NotFoundError reports a find-single query that matched nothing.
type NotFoundError struct {
	Sequence string // Sequence is the searched sequence name
	Type     string // Type is the requested element type
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s of type %s matches", e.Sequence, e.Type)
}

func (*NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// OutputNotaryError reports an output whose notary differs from the transaction's.
type OutputNotaryError struct {
	Position int       // Position is the output index
	Notary   PublicKey // Notary is the notary the output names
	Expected PublicKey // Expected is the transaction notary
}

func (e *OutputNotaryError) Error() string {
	return fmt.Sprintf("output %d names notary %s, transaction notary is %s", e.Position, e.Notary, e.Expected)
}

func (*OutputNotaryError) Is(target error) bool {
	return target == ErrNotaryMismatch
}

// DuplicateInputError reports a state consumed more than once by a transaction.
type DuplicateInputError struct {
	Ref      StateRef // Ref is the repeated reference
	First    int      // First is the position of the first occurrence
	Position int      // Position is the position of the repeat
}

func (e *DuplicateInputError) Error() string {
	return fmt.Sprintf("input %d consumes %s already consumed by input %d", e.Position, e.Ref, e.First)
}

func (*DuplicateInputError) Is(target error) bool {
	return target == ErrDuplicateInput
}
