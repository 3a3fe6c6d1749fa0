// Package attachment builds, signs and opens code packages.
//
// A package is a deterministic CBOR array of [name, data] entries. Its
// identity is the BLAKE3 digest of those bytes; detached signatures cover the
// same digest, so a signature can never vouch for bytes other than the ones
// being executed.
package attachment

import (
	"errors"
	"fmt"

	"Covenant/internal/crypto"
	"Covenant/internal/ledger"
	"Covenant/internal/wire"
)

var (
	// ErrEmptyPackage is returned for a package without entries.
	ErrEmptyPackage = errors.New("package has no entries")

	// ErrDuplicateEntry is returned when two entries share a name.
	ErrDuplicateEntry = errors.New("duplicate entry name")

	// ErrBadSignature is returned when a detached signature does not cover the package digest.
	ErrBadSignature = errors.New("signature does not match package")
)

// entry is the on-wire form of one package entry.
type entry struct {
	_    struct{} `cbor:",toarray"`
	Name string
	Data []byte
}

// Build encodes entries, in the given order, into package bytes.
func Build(entries []ledger.Entry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyPackage
	}

	seen := make(map[string]bool, len(entries))
	raw := make([]entry, len(entries))

	for i, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("entry %d has no name", i)
		}

		if seen[e.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, e.Name)
		}
		seen[e.Name] = true

		raw[i] = entry{Name: e.Name, Data: e.Data}
	}

	data, err := wire.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode package:\n%w", err)
	}

	return data, nil
}

// New builds a package whose first entry is the manifest m.
func New(m Manifest, entries ...ledger.Entry) ([]byte, error) {
	all := make([]ledger.Entry, 0, len(entries)+1)
	all = append(all, ledger.Entry{Name: ManifestName, Data: m.Bytes()})
	all = append(all, entries...)

	return Build(all)
}

// Decode parses package bytes into entries, in stored order.
func Decode(data []byte) ([]ledger.Entry, error) {
	var raw []entry
	if err := wire.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode package:\n%w", err)
	}

	if len(raw) == 0 {
		return nil, ErrEmptyPackage
	}

	seen := make(map[string]bool, len(raw))
	entries := make([]ledger.Entry, len(raw))

	for i, e := range raw {
		if e.Name == "" {
			return nil, fmt.Errorf("entry %d has no name", i)
		}

		if seen[e.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, e.Name)
		}
		seen[e.Name] = true

		entries[i] = ledger.Entry{Name: e.Name, Data: e.Data}
	}

	return entries, nil
}

// Sign produces a detached signature over the package digest.
func Sign(data []byte, signer crypto.Signer) ledger.Signature {
	digest := ledger.HashOf(data)

	return ledger.Signature{
		Signer: signer.PublicKey(),
		Bytes:  signer.Sign(digest[:]),
	}
}

// VerifySignature reports whether sig covers exactly data.
func VerifySignature(data []byte, sig ledger.Signature) bool {
	digest := ledger.HashOf(data)
	return crypto.Verify(sig.Signer, digest[:], sig.Bytes)
}

// Open parses package bytes and its detached signatures into an Attachment.
// Signatures are carried as supplied; constraint checks validate them.
func Open(data []byte, sigs []ledger.Signature) (ledger.Attachment, error) {
	entries, err := Decode(data)
	if err != nil {
		return ledger.Attachment{}, err
	}

	att := ledger.Attachment{
		ID:         ledger.HashOf(data),
		Data:       data,
		Entries:    entries,
		EntryPoint: DefaultEntryPoint,
		Signatures: sigs,
	}

	if raw, ok := att.Entry(ManifestName); ok {
		m, err := ParseManifest(raw)
		if err != nil {
			return ledger.Attachment{}, fmt.Errorf("parse manifest:\n%w", err)
		}

		att.Contracts = m.Contracts
		att.Version = m.Version
		att.EntryPoint = m.EntryPoint
	}

	return att, nil
}
