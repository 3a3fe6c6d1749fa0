package vault

import (
	"encoding/binary"
	"fmt"

	"Covenant/internal/ledger"
	"Covenant/internal/logger"
	"Covenant/internal/storage"
	"Covenant/internal/wire"
)

const prefixOutput = "o:"

// States stores the outputs of recorded transactions and resolves state
// references against them.
type States struct {
	db    *storage.Storage
	codec *wire.Codec
}

// NewStates creates a state store over db. States are encoded with codec,
// so every recorded payload type must be registered with it.
func NewStates(db *storage.Storage, codec *wire.Codec) *States {
	return &States{db: db, codec: codec}
}

// Record stores every output of tx under its StateRef in one atomic write.
func (s *States) Record(tx *ledger.LedgerTransaction) error {
	outputs := tx.Outputs()
	pairs := make([]storage.KeyValue, len(outputs))

	for i, out := range outputs {
		data, err := s.codec.EncodeState(out)
		if err != nil {
			return fmt.Errorf("encode output %d:\n%w", i, err)
		}

		pairs[i] = storage.KeyValue{Key: stateKey(ledger.StateRef{TxID: tx.ID(), Index: uint32(i)}), Value: data}
	}

	if err := s.db.Apply(pairs); err != nil {
		return fmt.Errorf("record outputs of %s:\n%w", tx.ID().Short(), err)
	}

	logger.Debug("outputs recorded", "tx", tx.ID().Short(), "count", len(outputs))

	return nil
}

// Resolve implements ledger.StateResolver. Unknown references yield an
// error matching ledger.ErrStateNotFound.
func (s *States) Resolve(ref ledger.StateRef) (ledger.TransactionState, error) {
	data, err := s.db.Get(stateKey(ref))
	if err != nil {
		return ledger.TransactionState{}, fmt.Errorf("read state %s:\n%w", ref, err)
	}
	if data == nil {
		return ledger.TransactionState{}, fmt.Errorf("%w: %s", ledger.ErrStateNotFound, ref)
	}

	state, err := s.codec.DecodeState(data)
	if err != nil {
		return ledger.TransactionState{}, fmt.Errorf("decode state %s:\n%w", ref, err)
	}

	return state, nil
}

// Outputs returns every recorded output of transaction id, in index order.
func (s *States) Outputs(id ledger.SecureHash) ([]ledger.StateAndRef, error) {
	prefix := append([]byte(prefixOutput), id[:]...)

	var out []ledger.StateAndRef

	err := s.db.IteratePrefix(prefix, func(key, value []byte) error {
		ref := ledger.StateRef{TxID: id, Index: binary.BigEndian.Uint32(key[len(prefix):])}

		state, err := s.codec.DecodeState(value)
		if err != nil {
			return fmt.Errorf("decode state %s:\n%w", ref, err)
		}

		out = append(out, ledger.StateAndRef{State: state, Ref: ref})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// stateKey is "o:" || txid || big-endian index, so a transaction's outputs
// sort together and in order.
func stateKey(ref ledger.StateRef) []byte {
	key := make([]byte, 0, len(prefixOutput)+ledger.HashSize+4)
	key = append(key, prefixOutput...)
	key = append(key, ref.TxID[:]...)

	return binary.BigEndian.AppendUint32(key, ref.Index)
}
