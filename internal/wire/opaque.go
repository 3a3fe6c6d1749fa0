package wire

import "Covenant/internal/ledger"

// OpaqueState carries a state payload whose type is not registered locally.
// Nodes that run contracts in the sandbox decode leniently and forward the
// raw body to the contract unchanged.
type OpaqueState struct {
	Descriptor string // Descriptor is the payload's type descriptor
	Body       []byte // Body is the CBOR-encoded payload
}

// Participants is unknown for an opaque payload.
func (OpaqueState) Participants() []ledger.PublicKey { return nil }

// OpaqueCommand carries a command payload whose type is not registered locally.
type OpaqueCommand struct {
	Descriptor string
	Body       []byte
}
