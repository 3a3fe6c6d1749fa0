package verify

import (
	"context"
	"errors"

	"Covenant/internal/contract"
	"Covenant/internal/ledger"
	"Covenant/internal/wire"
)

// Failure kinds reported to callers.
const (
	KindOK                    = "ok"
	KindResolution            = "resolution"
	KindAmbiguousAttachments  = "ambiguous-attachments"
	KindConstraintViolation   = "constraint-violation"
	KindConstraintPropagation = "constraint-propagation"
	KindIndex                 = "index"
	KindNotFound              = "not-found"
	KindContractVerification  = "contract-verification"
	KindMalformed             = "malformed"
	KindSignature             = "signature"
	KindInvalid               = "invalid"
	KindCancelled             = "cancelled"
	KindInternal              = "internal"
)

// Failure is the structured form of a verification error: enough to explain
// a rejection without re-deriving it.
type Failure struct {
	Kind     string            `json:"kind"`
	Contract ledger.ContractID `json:"contract,omitempty"`
	Sequence string            `json:"sequence,omitempty"`
	Position *int              `json:"position,omitempty"`
	Ref      string            `json:"ref,omitempty"`
	Message  string            `json:"message,omitempty"`
}

// Classify maps err onto the failure taxonomy. A nil error is KindOK.
func Classify(err error) Failure {
	if err == nil {
		return Failure{Kind: KindOK}
	}

	f := Failure{Kind: KindInternal, Message: err.Error()}
	pos := func(p int) *int { return &p }

	var (
		resErr   *ledger.TransactionResolutionError
		missErr  *ledger.MissingAttachmentError
		fetchErr *ledger.AttachmentFetchError
		ambErr   *AmbiguousAttachmentsError
		invErr   *InvalidAttachmentError
		violErr  *ConstraintViolationError
		propErr  *ConstraintPropagationError
		idxErr   *ledger.IndexError
		nfErr    *ledger.NotFoundError
		cvErr    *contract.VerificationError
		plErr    *wire.PayloadError
		sigErr   *wire.SignatureError
	)

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		f.Kind = KindCancelled

	case errors.As(err, &resErr):
		f.Kind, f.Sequence, f.Position, f.Ref = KindResolution, resErr.Sequence, pos(resErr.Position), resErr.Ref.String()

	case errors.As(err, &missErr):
		f.Kind, f.Contract, f.Sequence, f.Position = KindResolution, missErr.Contract, missErr.Sequence, pos(missErr.Position)

	case errors.As(err, &fetchErr):
		f.Kind, f.Sequence, f.Position = KindResolution, "attachment", pos(fetchErr.Position)

	case errors.As(err, &ambErr):
		f.Kind, f.Contract = KindAmbiguousAttachments, ambErr.Contract

	case errors.As(err, &invErr):
		f.Kind, f.Sequence, f.Position = KindMalformed, "attachment", pos(invErr.Position)

	case errors.As(err, &violErr):
		f.Kind, f.Contract, f.Sequence, f.Position, f.Ref = KindConstraintViolation, violErr.Contract, violErr.Sequence, pos(violErr.Position), violErr.Ref.String()

	case errors.As(err, &propErr):
		f.Kind, f.Contract, f.Sequence, f.Position, f.Ref = KindConstraintPropagation, propErr.Contract, "output", pos(propErr.Output), propErr.InputRef.String()

	case errors.As(err, &cvErr):
		f.Kind, f.Contract = KindContractVerification, cvErr.Contract

		// Contract code that indexed out of range or found nothing still
		// reports under its contract, with the narrower kind.
		switch {
		case errors.As(err, &idxErr):
			f.Kind, f.Sequence, f.Position = KindIndex, idxErr.Sequence, pos(idxErr.Index)
		case errors.As(err, &nfErr):
			f.Kind, f.Sequence = KindNotFound, nfErr.Sequence
		}

	case errors.As(err, &idxErr):
		f.Kind, f.Sequence, f.Position = KindIndex, idxErr.Sequence, pos(idxErr.Index)

	case errors.As(err, &nfErr):
		f.Kind, f.Sequence = KindNotFound, nfErr.Sequence

	case errors.As(err, &plErr):
		f.Kind, f.Sequence, f.Position = KindMalformed, plErr.Sequence, pos(plErr.Position)

	case errors.As(err, &sigErr):
		f.Kind, f.Sequence = KindSignature, "signature"
		if sigErr.Command >= 0 {
			f.Sequence, f.Position = "command", pos(sigErr.Command)
		}

	case errors.Is(err, wire.ErrMalformed):
		f.Kind = KindMalformed

	case errors.Is(err, ledger.ErrNotaryMismatch), errors.Is(err, ledger.ErrNotaryRequired), errors.Is(err, ledger.ErrDuplicateInput):
		f.Kind = KindInvalid
	}

	return f
}
