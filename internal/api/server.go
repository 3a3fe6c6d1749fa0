// Package api exposes the node over HTTP: transaction verification,
// attachment import and fetch, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"Covenant/internal/ledger"
	"Covenant/internal/logger"
	"Covenant/internal/metrics"
	"Covenant/internal/verify"
	"Covenant/internal/wire"
)

const (
	// maxTxSize is the maximum encoded transaction size in bytes.
	maxTxSize = 1 << 20

	// maxAttachmentSize is the maximum import request size in bytes.
	maxAttachmentSize = 16 << 20

	// verifyTimeout bounds resolution plus verification of one transaction.
	verifyTimeout = 30 * time.Second

	contentTypeCBOR = "application/cbor"
)

// Verifier checks resolved transactions.
type Verifier interface {
	Submit(ctx context.Context, tx *ledger.LedgerTransaction) (*verify.Result, error)
}

// AttachmentStore imports and serves code packages.
type AttachmentStore interface {
	ledger.AttachmentFetcher
	Import(data []byte, sigs []ledger.Signature) (ledger.SecureHash, error)
}

// StateStore resolves input states and records verified outputs.
type StateStore interface {
	ledger.StateResolver
	Record(tx *ledger.LedgerTransaction) error
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Codec       *wire.Codec              // Codec decodes submitted transactions
	Verifier    Verifier                 // Verifier runs the verification pipeline
	Attachments AttachmentStore          // Attachments backs import and GET /attachments
	Fetcher     ledger.AttachmentFetcher // Fetcher resolves attachment ids; nil uses Attachments
	States      StateStore               // States resolves inputs and records outputs
	Metrics     *metrics.Metrics         // Metrics is served on /metrics; may be nil

	// RequireSignatures rejects bare transactions whose commands name signers.
	// Signed envelopes are always checked.
	RequireSignatures bool
}

// Server is the HTTP API server.
type Server struct {
	addr   string
	deps   Deps
	server *http.Server
}

// New creates a new HTTP API server.
func New(addr string, deps Deps) *Server {
	if deps.Fetcher == nil {
		deps.Fetcher = deps.Attachments
	}

	return &Server{addr: addr, deps: deps}
}

// Handler returns the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /verify", s.handleVerify)
	mux.HandleFunc("POST /attachments", s.handleImport)
	mux.HandleFunc("GET /attachments/{hash}", s.handleFetch)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.deps.Metrics.Handler())

	return mux
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: verifyTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("http api started", "addr", s.addr)

		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// VerifyResponse is the body of POST /verify.
type VerifyResponse struct {
	ID         string              `json:"id,omitempty"`
	Accepted   bool                `json:"accepted"`
	Contracts  []ledger.ContractID `json:"contracts,omitempty"`
	Consumed   []string            `json:"consumed,omitempty"`
	Recorded   bool                `json:"recorded,omitempty"`
	Signatures int                 `json:"signatures,omitempty"`
	Failure    *verify.Failure     `json:"failure,omitempty"`
}

// handleVerify handles POST /verify. The body is a CBOR wire transaction or
// a signed envelope around one. With ?record=true the outputs of an accepted
// transaction are stored.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, maxTxSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	wtx, id, sigs, err := s.decodeTransaction(body)
	if err != nil {
		s.writeRejection(w, "", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), verifyTimeout)
	defer cancel()

	tx, err := ledger.Resolve(ctx, wtx.Components(id), wtx.Attachments, s.deps.States, s.deps.Fetcher)
	if err != nil {
		s.writeRejection(w, id.String(), err)
		return
	}

	res, err := s.deps.Verifier.Submit(ctx, tx)
	if err != nil {
		s.writeRejection(w, id.String(), err)
		return
	}

	resp := VerifyResponse{
		ID:         res.ID.String(),
		Accepted:   true,
		Contracts:  res.Contracts,
		Consumed:   make([]string, len(res.Consumed)),
		Signatures: len(sigs),
	}

	for i, ref := range res.Consumed {
		resp.Consumed[i] = ref.String()
	}

	if r.URL.Query().Get("record") == "true" {
		if err := s.deps.States.Record(tx); err != nil {
			logger.Error("record outputs", "tx", id.Short(), "error", err)
			writeError(w, http.StatusInternalServerError, "record outputs failed")
			return
		}

		resp.Recorded = true
	}

	logger.Debug("tx verified", "tx", id.Short(), "contracts", len(res.Contracts))

	writeJSON(w, http.StatusOK, resp)
}

// decodeTransaction decodes a bare or signed transaction. Signed envelopes
// must carry a valid signature from every command signer; bare transactions
// are accepted only when no signatures are required or no command names one.
func (s *Server) decodeTransaction(body []byte) (*wire.WireTransaction, ledger.SecureHash, []ledger.Signature, error) {
	if wire.IsSigned(body) {
		return s.deps.Codec.DecodeSignedTransaction(body)
	}

	wtx, id, err := s.deps.Codec.Decode(body)
	if err != nil {
		return nil, ledger.SecureHash{}, nil, err
	}

	if s.deps.RequireSignatures {
		if err := wire.VerifySignatures(wtx, id, nil); err != nil {
			return nil, ledger.SecureHash{}, nil, err
		}
	}

	return wtx, id, nil, nil
}

// writeRejection reports err as a structured failure.
func (s *Server) writeRejection(w http.ResponseWriter, id string, err error) {
	f := verify.Classify(err)

	writeJSON(w, statusFor(f.Kind), VerifyResponse{ID: id, Failure: &f})
}

// statusFor maps a failure kind to an HTTP status.
func statusFor(kind string) int {
	switch kind {
	case verify.KindMalformed:
		return http.StatusBadRequest
	case verify.KindCancelled:
		return http.StatusServiceUnavailable
	case verify.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

// handleImport handles POST /attachments. The body is a CBOR AttachmentRecord.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, maxAttachmentSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, sigs, err := decodeRecord(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.deps.Attachments.Import(data, sigs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"hash": id.String(),
	})
}

// handleFetch handles GET /attachments/{hash}.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	id, err := ledger.ParseSecureHash(r.PathValue("hash"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid hash")
		return
	}

	att, err := s.deps.Attachments.Fetch(r.Context(), id)
	if errors.Is(err, ledger.ErrAttachmentNotFound) {
		writeError(w, http.StatusNotFound, "attachment not found")
		return
	}
	if err != nil {
		logger.Error("fetch attachment", "hash", id.Short(), "error", err)
		writeError(w, http.StatusInternalServerError, "fetch failed")
		return
	}

	body, err := encodeRecord(att.Data, att.Signatures)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode failed")
		return
	}

	w.Header().Set("Content-Type", contentTypeCBOR)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
