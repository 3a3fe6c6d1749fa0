package verify

import (
	"errors"
	"fmt"

	"Covenant/internal/ledger"
)

var (
	// ErrAmbiguousAttachments classifies conflicting packages for one contract.
	ErrAmbiguousAttachments = errors.New("ambiguous attachments")

	// ErrConstraintViolation classifies a package that fails a state's constraint.
	ErrConstraintViolation = errors.New("attachment constraint violated")

	// ErrConstraintPropagation classifies a constraint downgrade across a state's lifecycle.
	ErrConstraintPropagation = errors.New("attachment constraint downgraded")

	// ErrInvalidAttachment classifies package bytes that cannot be decoded.
	ErrInvalidAttachment = errors.New("invalid attachment")

	// ErrPoolClosed is returned when submitting to a closed worker pool.
	ErrPoolClosed = errors.New("verification pool closed")
)

// AmbiguousAttachmentsError reports two different packages claiming one contract.
type AmbiguousAttachmentsError struct {
	Contract ledger.ContractID // Contract is the contested contract
	First    ledger.SecureHash // First is the content hash of the first claimant
	Second   ledger.SecureHash // Second is the content hash of the conflicting claimant
}

func (e *AmbiguousAttachmentsError) Error() string {
	return fmt.Sprintf("contract %s claimed by packages %s and %s", e.Contract, e.First.Short(), e.Second.Short())
}

func (*AmbiguousAttachmentsError) Is(target error) bool {
	return target == ErrAmbiguousAttachments
}

// ConstraintViolationError reports a state whose package does not satisfy its constraint.
type ConstraintViolationError struct {
	Contract   ledger.ContractID           // Contract governs the state
	Sequence   string                      // Sequence is "input" or "output"
	Position   int                         // Position is the index within that sequence
	Ref        ledger.StateRef             // Ref identifies the state
	Constraint ledger.AttachmentConstraint // Constraint is the unmet constraint
	Attachment ledger.SecureHash           // Attachment is the recomputed package hash
	Reason     string                      // Reason describes the mismatch
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("%s %d (%s) of %s: package %s fails %s: %s",
		e.Sequence, e.Position, e.Ref, e.Contract, e.Attachment.Short(), e.Constraint, e.Reason)
}

func (*ConstraintViolationError) Is(target error) bool {
	return target == ErrConstraintViolation
}

// ConstraintPropagationError reports an output weakening a consumed state's constraint.
type ConstraintPropagationError struct {
	Contract ledger.ContractID           // Contract governs both states
	Input    int                         // Input is the consumed state's position
	InputRef ledger.StateRef             // InputRef identifies the consumed state
	Output   int                         // Output is the weaker output's position
	From     ledger.AttachmentConstraint // From is the input's constraint
	To       ledger.AttachmentConstraint // To is the output's constraint
}

func (e *ConstraintPropagationError) Error() string {
	return fmt.Sprintf("contract %s: output %d constraint %s is weaker than input %d (%s) constraint %s",
		e.Contract, e.Output, e.To, e.Input, e.InputRef, e.From)
}

func (*ConstraintPropagationError) Is(target error) bool {
	return target == ErrConstraintPropagation
}

// InvalidAttachmentError reports an attached package whose bytes do not decode.
type InvalidAttachmentError struct {
	Position   int               // Position is the index in the transaction's attachments
	Attachment ledger.SecureHash // Attachment is the recomputed package hash
	Err        error             // Err is the decoding failure
}

func (e *InvalidAttachmentError) Error() string {
	return fmt.Sprintf("attachment %d (%s): %v", e.Position, e.Attachment.Short(), e.Err)
}

func (e *InvalidAttachmentError) Unwrap() error { return e.Err }

func (*InvalidAttachmentError) Is(target error) bool {
	return target == ErrInvalidAttachment
}
