package wire

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"Covenant/internal/ledger"
)

// formatVersion is the first element of every encoded transaction.
const formatVersion = 1

// On-wire shapes. All are CBOR arrays so field order is part of the format.

type wireRef struct {
	_     struct{} `cbor:",toarray"`
	TxID  ledger.SecureHash
	Index uint32
}

type wireKey struct {
	_      struct{} `cbor:",toarray"`
	Scheme uint8
	Key    []byte
}

type payload struct {
	_          struct{} `cbor:",toarray"`
	Descriptor string
	Body       cbor.RawMessage
}

type wireConstraint struct {
	_       struct{} `cbor:",toarray"`
	Kind    uint8
	Hash    []byte
	Signers []wireKey
}

type wireState struct {
	_          struct{} `cbor:",toarray"`
	Data       payload
	Contract   string
	Notary     wireKey
	Constraint wireConstraint
}

type wireCommand struct {
	_       struct{} `cbor:",toarray"`
	Value   payload
	Signers []wireKey
}

type wireWindow struct {
	_     struct{} `cbor:",toarray"`
	From  *int64
	Until *int64
}

type wireTx struct {
	_           struct{} `cbor:",toarray"`
	Version     uint8
	Inputs      []wireRef
	References  []wireRef
	Outputs     []wireState
	Commands    []wireCommand
	Attachments []ledger.SecureHash
	Notary      wireKey
	Window      *wireWindow
}

// =============================================================================
// Conversions
// =============================================================================

func toWireRef(r ledger.StateRef) wireRef {
	return wireRef{TxID: r.TxID, Index: r.Index}
}

func (w wireRef) ref() ledger.StateRef {
	return ledger.StateRef{TxID: w.TxID, Index: w.Index}
}

func toWireRefs(refs []ledger.StateRef) []wireRef {
	out := make([]wireRef, len(refs))
	for i, r := range refs {
		out[i] = toWireRef(r)
	}

	return out
}

func fromWireRefs(refs []wireRef) []ledger.StateRef {
	out := make([]ledger.StateRef, len(refs))
	for i, r := range refs {
		out[i] = r.ref()
	}

	return out
}

func toWireKey(k ledger.PublicKey) wireKey {
	if k.IsZero() {
		return wireKey{Key: []byte{}}
	}

	return wireKey{Scheme: uint8(k.Scheme()), Key: k.Bytes()}
}

func (w wireKey) key() (ledger.PublicKey, error) {
	if w.Scheme == 0 && len(w.Key) == 0 {
		return ledger.PublicKey{}, nil
	}

	return ledger.NewPublicKey(ledger.Scheme(w.Scheme), w.Key)
}

func toWireKeys(keys []ledger.PublicKey) []wireKey {
	out := make([]wireKey, len(keys))
	for i, k := range keys {
		out[i] = toWireKey(k)
	}

	return out
}

func fromWireKeys(keys []wireKey) ([]ledger.PublicKey, error) {
	out := make([]ledger.PublicKey, len(keys))
	for i, k := range keys {
		key, err := k.key()
		if err != nil {
			return nil, fmt.Errorf("key %d:\n%w", i, err)
		}

		if key.IsZero() {
			return nil, fmt.Errorf("key %d is empty", i)
		}

		out[i] = key
	}

	return out, nil
}

func toWireConstraint(c ledger.AttachmentConstraint) (wireConstraint, error) {
	w := wireConstraint{Hash: []byte{}, Signers: []wireKey{}}

	switch v := c.(type) {
	case ledger.AlwaysAcceptConstraint:
		w.Kind = uint8(ledger.KindAlwaysAccept)
	case ledger.WhitelistConstraint:
		w.Kind = uint8(ledger.KindWhitelist)
	case ledger.HashConstraint:
		w.Kind = uint8(ledger.KindHash)
		w.Hash = v.Expected[:]
	case ledger.SignersConstraint:
		w.Kind = uint8(ledger.KindSigners)
		w.Signers = toWireKeys(v.Signers)
	case nil:
		return w, fmt.Errorf("missing constraint")
	default:
		return w, fmt.Errorf("unsupported constraint %T", c)
	}

	return w, nil
}

func (w wireConstraint) constraint() (ledger.AttachmentConstraint, error) {
	switch ledger.ConstraintKind(w.Kind) {
	case ledger.KindAlwaysAccept:
		return ledger.AlwaysAcceptConstraint{}, nil
	case ledger.KindWhitelist:
		return ledger.WhitelistConstraint{}, nil
	case ledger.KindHash:
		h, err := ledger.HashFromBytes(w.Hash)
		if err != nil {
			return nil, fmt.Errorf("hash constraint:\n%w", err)
		}

		return ledger.HashConstraint{Expected: h}, nil
	case ledger.KindSigners:
		if len(w.Signers) == 0 {
			return nil, fmt.Errorf("signers constraint without signers")
		}

		keys, err := fromWireKeys(w.Signers)
		if err != nil {
			return nil, fmt.Errorf("signers constraint:\n%w", err)
		}

		return ledger.SignersConstraint{Signers: keys}, nil
	default:
		return nil, fmt.Errorf("unknown constraint kind %d", w.Kind)
	}
}

func toWireWindow(w *ledger.TimeWindow) *wireWindow {
	if w == nil {
		return nil
	}

	out := &wireWindow{}
	if !w.From.IsZero() {
		from := w.From.UnixMicro()
		out.From = &from
	}

	if !w.Until.IsZero() {
		until := w.Until.UnixMicro()
		out.Until = &until
	}

	return out
}

func (w *wireWindow) window() (*ledger.TimeWindow, error) {
	if w == nil {
		return nil, nil
	}

	var from, until time.Time
	if w.From != nil {
		from = time.UnixMicro(*w.From).UTC()
	}

	if w.Until != nil {
		until = time.UnixMicro(*w.Until).UTC()
	}

	tw, err := ledger.NewTimeWindow(from, until)
	if err != nil {
		return nil, err
	}

	return &tw, nil
}
