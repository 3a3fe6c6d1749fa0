// Package network serves code packages to other nodes over QUIC and fetches
// them from remote nodes when the local vault does not hold them.
package network

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"Covenant/internal/attachment"
	"Covenant/internal/ledger"
	"Covenant/internal/logger"
	"Covenant/internal/metrics"
)

const (
	// defaultRequestTimeout bounds one fetch when the caller's context has no deadline.
	defaultRequestTimeout = 30 * time.Second
)

// Config holds the identity and address of a node's network endpoint.
type Config struct {
	PrivateKey ed25519.PrivateKey  // PrivateKey is the node's TLS identity
	ListenAddr string              // ListenAddr is the address to listen on (e.g., ":9400")
	Trusted    []ed25519.PublicKey // Trusted restricts which peers may fetch; empty allows any
}

// Server answers attachment requests from a local source.
type Server struct {
	source     ledger.AttachmentFetcher
	metrics    *metrics.Metrics
	listenAddr string
	tlsConfig  *tls.Config
	trusted    map[string]bool

	listener *quic.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a server answering from source. m may be nil.
func NewServer(cfg Config, source ledger.AttachmentFetcher, m *metrics.Metrics) (*Server, error) {
	if cfg.PrivateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}

	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("listen address is required")
	}

	tc, err := tlsConfig(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("tls config:\n%w", err)
	}

	trusted := make(map[string]bool, len(cfg.Trusted))
	for _, k := range cfg.Trusted {
		trusted[hex.EncodeToString(k)] = true
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		source:     source,
		metrics:    m,
		listenAddr: cfg.ListenAddr,
		tlsConfig:  tc,
		trusted:    trusted,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start begins accepting connections.
func (s *Server) Start() error {
	listener, err := quic.ListenAddr(s.listenAddr, s.tlsConfig, quicConfig())
	if err != nil {
		return fmt.Errorf("listen:\n%w", err)
	}

	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop()

	logger.Info("attachment service listening", "addr", listener.Addr().String())

	return nil
}

// Addr returns the listener's address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// Close stops accepting, closes every connection and waits for handlers.
func (s *Server) Close() error {
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.wg.Wait()

	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept(s.ctx)
		if err != nil {
			return
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn serves every request stream of one connection.
func (s *Server) handleConn(conn *quic.Conn) {
	defer s.wg.Done()

	peer, err := extractPublicKey(conn.ConnectionState().TLS)
	if err != nil {
		conn.CloseWithError(1, "no identity")
		return
	}

	peerHex := hex.EncodeToString(peer)
	allowed := len(s.trusted) == 0 || s.trusted[peerHex]

	if !allowed {
		logger.Warn("untrusted peer refused", "peer", peerHex[:16], "addr", conn.RemoteAddr().String())
	}

	for {
		stream, err := conn.AcceptStream(s.ctx)
		if err != nil {
			conn.CloseWithError(0, "closed")
			return
		}

		s.wg.Add(1)
		go s.handleStream(stream, allowed)
	}
}

// handleStream answers one request.
func (s *Server) handleStream(stream *quic.Stream, allowed bool) {
	defer s.wg.Done()
	defer stream.Close()

	stream.SetDeadline(time.Now().Add(defaultRequestTimeout))

	data, err := readMessage(stream)
	if err != nil {
		return
	}

	status, rec := s.serve(data, allowed)

	response, err := encodeResponse(status, rec)
	if err != nil {
		logger.Error("encode response", "error", err)
		response = []byte{statusError}
		status = statusError
	}

	s.metrics.FetchServed(statusName(status))

	writeMessage(stream, response)
}

func (s *Server) serve(request []byte, allowed bool) (byte, *attachmentRecord) {
	if !allowed {
		return statusDenied, nil
	}

	id, err := parseRequest(request)
	if err != nil {
		return statusError, nil
	}

	ctx, cancel := context.WithTimeout(s.ctx, defaultRequestTimeout)
	defer cancel()

	att, err := s.source.Fetch(ctx, id)
	if errors.Is(err, ledger.ErrAttachmentNotFound) {
		return statusNotFound, nil
	}
	if err != nil {
		logger.Warn("attachment fetch failed", "hash", id.Short(), "error", err)
		return statusError, nil
	}

	sigs, err := attachment.EncodeSignatures(att.Signatures)
	if err != nil {
		return statusError, nil
	}

	return statusOK, &attachmentRecord{Data: att.Data, Signatures: sigs}
}

func statusName(status byte) string {
	switch status {
	case statusOK:
		return "ok"
	case statusNotFound:
		return "not-found"
	case statusDenied:
		return "denied"
	default:
		return "error"
	}
}
