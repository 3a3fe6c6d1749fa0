package network

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"Covenant/internal/attachment"
	"Covenant/internal/ledger"
	"Covenant/internal/logger"
)

var (
	// ErrDenied is returned when the remote node refuses to serve this node.
	ErrDenied = errors.New("fetch denied by remote node")

	// ErrRemote is returned when the remote node failed to serve a request.
	ErrRemote = errors.New("remote node error")
)

// Fetcher retrieves packages from one remote node. It implements
// ledger.AttachmentFetcher and is safe for concurrent use; requests share
// one connection, each on its own stream.
type Fetcher struct {
	addr      string
	serverKey ed25519.PublicKey
	tlsConfig *tls.Config

	mu   sync.Mutex
	conn *quic.Conn
}

// NewFetcher creates a fetcher for the node at addr, presenting cfg's
// identity. If serverKey is set, the remote must present that key.
func NewFetcher(cfg Config, addr string, serverKey ed25519.PublicKey) (*Fetcher, error) {
	if cfg.PrivateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}

	tc, err := tlsConfig(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("tls config:\n%w", err)
	}

	return &Fetcher{addr: addr, serverKey: serverKey, tlsConfig: tc}, nil
}

// Addr returns the remote address.
func (f *Fetcher) Addr() string {
	return f.addr
}

// Fetch requests the package with content hash id. The returned package is
// checked against id; a node serving other bytes is an error.
func (f *Fetcher) Fetch(ctx context.Context, id ledger.SecureHash) (ledger.Attachment, error) {
	conn, err := f.connection(ctx)
	if err != nil {
		return ledger.Attachment{}, err
	}

	response, err := request(ctx, conn, id[:])
	if err != nil {
		f.drop(conn)
		return ledger.Attachment{}, fmt.Errorf("fetch %s from %s:\n%w", id.Short(), f.addr, err)
	}

	status, rec, err := decodeResponse(response)
	if err != nil {
		return ledger.Attachment{}, err
	}

	switch status {
	case statusOK:
	case statusNotFound:
		return ledger.Attachment{}, fmt.Errorf("%w: %s at %s", ledger.ErrAttachmentNotFound, id, f.addr)
	case statusDenied:
		return ledger.Attachment{}, ErrDenied
	default:
		return ledger.Attachment{}, fmt.Errorf("%w: status %d", ErrRemote, status)
	}

	if got := ledger.HashOf(rec.Data); got != id {
		return ledger.Attachment{}, fmt.Errorf("%s served %s for %s", f.addr, got.Short(), id.Short())
	}

	var sigs []ledger.Signature
	if len(rec.Signatures) > 0 {
		if sigs, err = attachment.DecodeSignatures(rec.Signatures); err != nil {
			return ledger.Attachment{}, err
		}
	}

	att, err := attachment.Open(rec.Data, sigs)
	if err != nil {
		return ledger.Attachment{}, fmt.Errorf("open fetched attachment:\n%w", err)
	}

	logger.Debug("attachment fetched", "hash", id.Short(), "from", f.addr, "bytes", len(rec.Data))

	return att, nil
}

// Close closes the connection, if any.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == nil {
		return nil
	}

	err := f.conn.CloseWithError(0, "closed")
	f.conn = nil

	return err
}

// connection returns the live connection, dialing a new one if needed.
func (f *Fetcher) connection(ctx context.Context) (*quic.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn != nil && f.conn.Context().Err() == nil {
		return f.conn, nil
	}

	conn, err := quic.DialAddr(ctx, f.addr, f.tlsConfig, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("dial %s:\n%w", f.addr, err)
	}

	if f.serverKey != nil {
		key, err := extractPublicKey(conn.ConnectionState().TLS)
		if err != nil || !key.Equal(f.serverKey) {
			conn.CloseWithError(1, "unexpected identity")
			return nil, fmt.Errorf("%s did not present the expected key", f.addr)
		}
	}

	f.conn = conn

	return conn, nil
}

// drop forgets conn so the next request redials.
func (f *Fetcher) drop(conn *quic.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == conn {
		f.conn.CloseWithError(0, "request failed")
		f.conn = nil
	}
}

// request sends data on a new stream and reads the response.
func request(ctx context.Context, conn *quic.Conn, data []byte) ([]byte, error) {
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("open stream:\n%w", err)
	}
	defer stream.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultRequestTimeout)
	}
	stream.SetDeadline(deadline)

	if err := writeMessage(stream, data); err != nil {
		return nil, fmt.Errorf("write request:\n%w", err)
	}

	response, err := readMessage(stream)
	if err != nil {
		return nil, fmt.Errorf("read response:\n%w", err)
	}

	return response, nil
}
