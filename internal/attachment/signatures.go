package attachment

import (
	"fmt"

	"Covenant/internal/ledger"
	"Covenant/internal/wire"
)

// sigRecord is the stored form of a detached signature.
type sigRecord struct {
	_      struct{} `cbor:",toarray"`
	Scheme uint8
	Key    []byte
	Sig    []byte
}

// EncodeSignatures serializes signature records.
func EncodeSignatures(sigs []ledger.Signature) ([]byte, error) {
	records := make([]sigRecord, len(sigs))
	for i, s := range sigs {
		records[i] = sigRecord{Scheme: uint8(s.Signer.Scheme()), Key: s.Signer.Bytes(), Sig: s.Bytes}
	}

	return wire.Marshal(records)
}

// DecodeSignatures parses records written by EncodeSignatures.
func DecodeSignatures(data []byte) ([]ledger.Signature, error) {
	var records []sigRecord
	if err := wire.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode signatures:\n%w", err)
	}

	sigs := make([]ledger.Signature, len(records))
	for i, r := range records {
		key, err := ledger.NewPublicKey(ledger.Scheme(r.Scheme), r.Key)
		if err != nil {
			return nil, fmt.Errorf("signature %d:\n%w", i, err)
		}

		sigs[i] = ledger.Signature{Signer: key, Bytes: r.Sig}
	}

	return sigs, nil
}
