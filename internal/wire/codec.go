package wire

import (
	"errors"
	"fmt"
	"reflect"

	"Covenant/internal/ledger"
)

var (
	// ErrUnknownDescriptor is returned for a payload whose descriptor is not registered.
	ErrUnknownDescriptor = errors.New("unknown type descriptor")

	// ErrMalformed is returned for bytes that do not form a valid transaction.
	ErrMalformed = errors.New("malformed transaction")
)

// PayloadError reports a payload that could not be encoded or decoded.
type PayloadError struct {
	Sequence   string // Sequence is "output", "command" or "input"
	Position   int    // Position is the index within that sequence
	Descriptor string // Descriptor is the payload descriptor, if known
	Err        error  // Err is the underlying error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("%s %d payload %s: %v", e.Sequence, e.Position, e.Descriptor, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

// WireTransaction is a transaction as it travels between nodes: states are
// referenced, not resolved, and attachments are named by content hash.
type WireTransaction struct {
	Inputs      []ledger.StateRef         // Inputs are the consumed state references
	References  []ledger.StateRef         // References are the read-only state references
	Outputs     []ledger.TransactionState // Outputs are the produced states
	Commands    []ledger.Command          // Commands are the authorised commands
	Attachments []ledger.SecureHash       // Attachments are package content hashes
	Notary      ledger.PublicKey          // Notary is the uniqueness authority
	TimeWindow  *ledger.TimeWindow        // TimeWindow is optional
}

// Components converts the transaction into assembly input under id.
// Attachments are left empty; they are fetched by ledger.Resolve.
func (tx *WireTransaction) Components(id ledger.SecureHash) ledger.Components {
	return ledger.Components{
		ID:         id,
		Inputs:     tx.Inputs,
		References: tx.References,
		Outputs:    tx.Outputs,
		Commands:   tx.Commands,
		Notary:     tx.Notary,
		TimeWindow: tx.TimeWindow,
	}
}

// Codec encodes and decodes transactions against a type registry.
type Codec struct {
	Registry *Registry // Registry resolves payload descriptors

	// Lenient decodes unknown descriptors into OpaqueState and OpaqueCommand
	// instead of failing. Only for nodes that hand payloads to sandboxed contracts.
	Lenient bool
}

// Encode serializes tx deterministically.
func (c *Codec) Encode(tx *WireTransaction) ([]byte, error) {
	w := wireTx{
		Version:     formatVersion,
		Inputs:      toWireRefs(tx.Inputs),
		References:  toWireRefs(tx.References),
		Attachments: append([]ledger.SecureHash{}, tx.Attachments...),
		Notary:      toWireKey(tx.Notary),
		Window:      toWireWindow(tx.TimeWindow),
	}

	var err error

	if w.Outputs, err = c.encodeStates(tx.Outputs); err != nil {
		return nil, err
	}

	if w.Commands, err = c.encodeCommands(tx.Commands); err != nil {
		return nil, err
	}

	data, err := Marshal(&w)
	if err != nil {
		return nil, fmt.Errorf("encode transaction:\n%w", err)
	}

	return data, nil
}

// ID returns the transaction id: the BLAKE3 digest of its encoding.
func (c *Codec) ID(tx *WireTransaction) (ledger.SecureHash, error) {
	data, err := c.Encode(tx)
	if err != nil {
		return ledger.SecureHash{}, err
	}

	return ledger.HashOf(data), nil
}

// Decode parses an encoded transaction and returns it with its id. Only the
// deterministic encoding is accepted, so one transaction has exactly one id.
func (c *Codec) Decode(data []byte) (*WireTransaction, ledger.SecureHash, error) {
	if err := Canonical(data); err != nil {
		return nil, ledger.SecureHash{}, fmt.Errorf("%w:\n%w", ErrMalformed, err)
	}

	var w wireTx
	if err := Unmarshal(data, &w); err != nil {
		return nil, ledger.SecureHash{}, fmt.Errorf("%w:\n%w", ErrMalformed, err)
	}

	if w.Version != formatVersion {
		return nil, ledger.SecureHash{}, fmt.Errorf("%w: unsupported version %d", ErrMalformed, w.Version)
	}

	tx := &WireTransaction{
		Inputs:      fromWireRefs(w.Inputs),
		References:  fromWireRefs(w.References),
		Attachments: w.Attachments,
	}

	var err error

	if tx.Notary, err = w.Notary.key(); err != nil {
		return nil, ledger.SecureHash{}, fmt.Errorf("%w: notary:\n%w", ErrMalformed, err)
	}

	if tx.TimeWindow, err = w.Window.window(); err != nil {
		return nil, ledger.SecureHash{}, fmt.Errorf("%w: time window:\n%w", ErrMalformed, err)
	}

	if tx.Outputs, err = c.decodeStates(w.Outputs, "output"); err != nil {
		return nil, ledger.SecureHash{}, err
	}

	if tx.Commands, err = c.decodeCommands(w.Commands); err != nil {
		return nil, ledger.SecureHash{}, err
	}

	return tx, ledger.HashOf(data), nil
}

// =============================================================================
// Payloads
// =============================================================================

func (c *Codec) encodePayload(v any) (payload, error) {
	switch o := v.(type) {
	case OpaqueState:
		return payload{Descriptor: o.Descriptor, Body: o.Body}, nil
	case OpaqueCommand:
		return payload{Descriptor: o.Descriptor, Body: o.Body}, nil
	}

	desc, err := c.Registry.Describe(v)
	if err != nil {
		return payload{}, err
	}

	body, err := Marshal(v)
	if err != nil {
		return payload{}, err
	}

	return payload{Descriptor: desc, Body: body}, nil
}

func (c *Codec) decodePayload(p payload, want payloadKind) (any, error) {
	entry, ok := c.Registry.lookup(p.Descriptor)
	if !ok {
		if !c.Lenient {
			return nil, ErrUnknownDescriptor
		}

		if want == kindState {
			return OpaqueState{Descriptor: p.Descriptor, Body: p.Body}, nil
		}

		return OpaqueCommand{Descriptor: p.Descriptor, Body: p.Body}, nil
	}

	if entry.kind != want {
		return nil, fmt.Errorf("descriptor names %s, not a %s payload", entry.name, kindName(want))
	}

	ptr := reflect.New(entry.typ)
	if err := Unmarshal(p.Body, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("decode %s:\n%w", entry.name, err)
	}

	return ptr.Elem().Interface(), nil
}

func kindName(k payloadKind) string {
	if k == kindState {
		return "state"
	}

	return "command"
}

func (c *Codec) encodeState(s ledger.TransactionState) (wireState, error) {
	data, err := c.encodePayload(s.Data)
	if err != nil {
		return wireState{}, err
	}

	constraint, err := toWireConstraint(s.Constraint)
	if err != nil {
		return wireState{}, err
	}

	return wireState{
		Data:       data,
		Contract:   string(s.Contract),
		Notary:     toWireKey(s.Notary),
		Constraint: constraint,
	}, nil
}

func (c *Codec) decodeState(w wireState) (ledger.TransactionState, error) {
	data, err := c.decodePayload(w.Data, kindState)
	if err != nil {
		return ledger.TransactionState{}, err
	}

	notary, err := w.Notary.key()
	if err != nil {
		return ledger.TransactionState{}, fmt.Errorf("notary:\n%w", err)
	}

	constraint, err := w.Constraint.constraint()
	if err != nil {
		return ledger.TransactionState{}, err
	}

	if w.Contract == "" {
		return ledger.TransactionState{}, fmt.Errorf("state names no contract")
	}

	return ledger.TransactionState{
		Data:       data.(ledger.ContractState),
		Contract:   ledger.ContractID(w.Contract),
		Notary:     notary,
		Constraint: constraint,
	}, nil
}

func (c *Codec) encodeStates(states []ledger.TransactionState) ([]wireState, error) {
	out := make([]wireState, len(states))

	for i, s := range states {
		ws, err := c.encodeState(s)
		if err != nil {
			return nil, &PayloadError{Sequence: "output", Position: i, Err: err}
		}

		out[i] = ws
	}

	return out, nil
}

func (c *Codec) decodeStates(states []wireState, seq string) ([]ledger.TransactionState, error) {
	out := make([]ledger.TransactionState, len(states))

	for i, w := range states {
		s, err := c.decodeState(w)
		if err != nil {
			return nil, &PayloadError{Sequence: seq, Position: i, Descriptor: w.Data.Descriptor, Err: err}
		}

		out[i] = s
	}

	return out, nil
}

func (c *Codec) encodeCommands(cmds []ledger.Command) ([]wireCommand, error) {
	out := make([]wireCommand, len(cmds))

	for i, cmd := range cmds {
		value, err := c.encodePayload(cmd.Value)
		if err != nil {
			return nil, &PayloadError{Sequence: "command", Position: i, Err: err}
		}

		out[i] = wireCommand{Value: value, Signers: toWireKeys(cmd.Signers)}
	}

	return out, nil
}

func (c *Codec) decodeCommands(cmds []wireCommand) ([]ledger.Command, error) {
	out := make([]ledger.Command, len(cmds))

	for i, w := range cmds {
		value, err := c.decodePayload(w.Value, kindCommand)
		if err != nil {
			return nil, &PayloadError{Sequence: "command", Position: i, Descriptor: w.Value.Descriptor, Err: err}
		}

		signers, err := fromWireKeys(w.Signers)
		if err != nil {
			return nil, &PayloadError{Sequence: "command", Position: i, Descriptor: w.Value.Descriptor, Err: err}
		}

		out[i] = ledger.Command{Value: value, Signers: signers}
	}

	return out, nil
}
