package ledger

import "slices"

// Entry is one named binary entry of a code package.
type Entry struct {
	Name string // Name is the entry path inside the package
	Data []byte // Data is the entry content
}

// Signature is a detached signature over a package digest.
type Signature struct {
	Signer PublicKey // Signer is the key that produced the signature
	Bytes  []byte    // Bytes is the raw signature
}

// Attachment is an immutable, content-addressed code package.
// ID is the identifier it was requested under. Every field other than Data and
// Signatures is derived from Data; constraint checks recompute the digest and
// reopen the package rather than trust them.
type Attachment struct {
	ID         SecureHash   // ID is the claimed content hash
	Data       []byte       // Data is the full package byte stream
	Entries    []Entry      // Entries are the decoded package entries, in order
	Contracts  []ContractID // Contracts are the contract ids the package implements
	Version    string       // Version is the informational manifest version
	EntryPoint string       // EntryPoint names the entry holding the executable module
	Signatures []Signature  // Signatures are the detached signature records
}

// Declares reports whether the package claims to implement contract.
func (a Attachment) Declares(contract ContractID) bool {
	return slices.Contains(a.Contracts, contract)
}

// Entry returns the content of the named entry.
func (a Attachment) Entry(name string) ([]byte, bool) {
	for _, e := range a.Entries {
		if e.Name == name {
			return e.Data, true
		}
	}

	return nil, false
}

// ContentHash recomputes the digest over the package bytes.
func (a Attachment) ContentHash() SecureHash {
	return HashOf(a.Data)
}
