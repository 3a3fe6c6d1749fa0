package wire

import (
	"fmt"

	"Covenant/internal/ledger"
)

type wireStateAndRef struct {
	_     struct{} `cbor:",toarray"`
	State wireState
	Ref   wireRef
}

// wireLedger is the resolved transaction handed to sandboxed contracts.
type wireLedger struct {
	_           struct{} `cbor:",toarray"`
	Version     uint8
	ID          ledger.SecureHash
	Inputs      []wireStateAndRef
	References  []wireStateAndRef
	Outputs     []wireState
	Commands    []wireCommand
	Attachments []ledger.SecureHash
	Notary      wireKey
	Window      *wireWindow
}

// EncodeLedger serializes a resolved transaction, inputs included, for
// contracts that cannot see the in-memory value.
func (c *Codec) EncodeLedger(tx *ledger.LedgerTransaction) ([]byte, error) {
	w := wireLedger{
		Version: formatVersion,
		ID:      tx.ID(),
		Notary:  toWireKey(tx.Notary()),
		Window:  toWireWindow(tx.TimeWindow()),
	}

	var err error

	if w.Inputs, err = c.encodeResolved(tx.Inputs(), "input"); err != nil {
		return nil, err
	}

	if w.References, err = c.encodeResolved(tx.References(), "reference"); err != nil {
		return nil, err
	}

	if w.Outputs, err = c.encodeStates(tx.Outputs()); err != nil {
		return nil, err
	}

	if w.Commands, err = c.encodeCommands(tx.Commands()); err != nil {
		return nil, err
	}

	atts := tx.Attachments()
	w.Attachments = make([]ledger.SecureHash, len(atts))
	for i, a := range atts {
		w.Attachments[i] = a.ContentHash()
	}

	data, err := Marshal(&w)
	if err != nil {
		return nil, fmt.Errorf("encode ledger transaction:\n%w", err)
	}

	return data, nil
}

func (c *Codec) encodeResolved(srs []ledger.StateAndRef, seq string) ([]wireStateAndRef, error) {
	out := make([]wireStateAndRef, len(srs))

	for i, sr := range srs {
		ws, err := c.encodeState(sr.State)
		if err != nil {
			return nil, &PayloadError{Sequence: seq, Position: i, Err: err}
		}

		out[i] = wireStateAndRef{State: ws, Ref: toWireRef(sr.Ref)}
	}

	return out, nil
}
