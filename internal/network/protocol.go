package network

import (
	"encoding/binary"
	"fmt"
	"io"

	"Covenant/internal/ledger"
	"Covenant/internal/wire"
)

const (
	// maxMessageSize bounds a framed message (16 MB), and so a served package.
	maxMessageSize = 16 << 20

	lengthPrefixSize = 4
)

// Response status byte.
const (
	statusOK       byte = 0
	statusNotFound byte = 1
	statusError    byte = 2
	statusDenied   byte = 3
)

// attachmentRecord is the body of a successful response.
type attachmentRecord struct {
	_          struct{} `cbor:",toarray"`
	Data       []byte
	Signatures []byte
}

// writeMessage writes [4 bytes big-endian length][payload].
func writeMessage(w io.Writer, data []byte) error {
	if len(data) > maxMessageSize {
		return fmt.Errorf("message too large: %d > %d", len(data), maxMessageSize)
	}

	var lengthBuf [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(data)))

	if _, err := w.Write(lengthBuf[:]); err != nil {
		return fmt.Errorf("write length:\n%w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write payload:\n%w", err)
	}

	return nil
}

// readMessage reads a message written by writeMessage.
func readMessage(r io.Reader) ([]byte, error) {
	var lengthBuf [lengthPrefixSize]byte

	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, fmt.Errorf("read length:\n%w", err)
	}

	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length > maxMessageSize {
		return nil, fmt.Errorf("message too large: %d > %d", length, maxMessageSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read payload:\n%w", err)
	}

	return data, nil
}

// parseRequest extracts the requested content hash.
func parseRequest(data []byte) (ledger.SecureHash, error) {
	return ledger.HashFromBytes(data)
}

// encodeResponse frames a status and optional record body.
func encodeResponse(status byte, rec *attachmentRecord) ([]byte, error) {
	if rec == nil {
		return []byte{status}, nil
	}

	body, err := wire.Marshal(rec)
	if err != nil {
		return nil, err
	}

	return append([]byte{status}, body...), nil
}

// decodeResponse splits a response into status and record.
func decodeResponse(data []byte) (byte, *attachmentRecord, error) {
	if len(data) == 0 {
		return 0, nil, fmt.Errorf("empty response")
	}

	if data[0] != statusOK {
		return data[0], nil, nil
	}

	var rec attachmentRecord
	if err := wire.Unmarshal(data[1:], &rec); err != nil {
		return 0, nil, fmt.Errorf("decode attachment record:\n%w", err)
	}

	return statusOK, &rec, nil
}
