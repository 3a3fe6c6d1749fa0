package wire

import (
	"fmt"

	"Covenant/internal/ledger"
)

// EncodeState serializes a single state, as stored by the state vault.
func (c *Codec) EncodeState(s ledger.TransactionState) ([]byte, error) {
	w, err := c.encodeState(s)
	if err != nil {
		return nil, err
	}

	return Marshal(&w)
}

// DecodeState parses a state written by EncodeState.
func (c *Codec) DecodeState(data []byte) (ledger.TransactionState, error) {
	var w wireState
	if err := Unmarshal(data, &w); err != nil {
		return ledger.TransactionState{}, fmt.Errorf("%w:\n%w", ErrMalformed, err)
	}

	return c.decodeState(w)
}
