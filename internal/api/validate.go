package api

import (
	"fmt"
	"io"
	"net/http"

	"Covenant/internal/attachment"
	"Covenant/internal/ledger"
	"Covenant/internal/wire"
)

// AttachmentRecord is the CBOR body of POST /attachments and of
// GET /attachments/{hash}: package bytes plus encoded detached signatures.
type AttachmentRecord struct {
	_          struct{} `cbor:",toarray"`
	Data       []byte
	Signatures []byte
}

// readBody reads at most limit bytes and rejects empty or oversized bodies.
func readBody(r *http.Request, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body")
	}

	if len(body) == 0 {
		return nil, fmt.Errorf("empty body")
	}

	if int64(len(body)) > limit {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}

	return body, nil
}

// encodeRecord builds an AttachmentRecord body.
func encodeRecord(data []byte, sigs []ledger.Signature) ([]byte, error) {
	encoded, err := attachment.EncodeSignatures(sigs)
	if err != nil {
		return nil, err
	}

	return wire.Marshal(&AttachmentRecord{Data: data, Signatures: encoded})
}

// decodeRecord parses an AttachmentRecord body.
func decodeRecord(body []byte) ([]byte, []ledger.Signature, error) {
	var rec AttachmentRecord
	if err := wire.Unmarshal(body, &rec); err != nil {
		return nil, nil, fmt.Errorf("invalid attachment record: %v", err)
	}

	if len(rec.Data) == 0 {
		return nil, nil, fmt.Errorf("attachment record has no package")
	}

	var sigs []ledger.Signature
	if len(rec.Signatures) > 0 {
		var err error
		if sigs, err = attachment.DecodeSignatures(rec.Signatures); err != nil {
			return nil, nil, err
		}
	}

	return rec.Data, sigs, nil
}
