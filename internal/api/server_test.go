package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"Covenant/internal/attachment"
	"Covenant/internal/contract"
	"Covenant/internal/crypto"
	"Covenant/internal/ledger"
	"Covenant/internal/metrics"
	"Covenant/internal/storage"
	"Covenant/internal/vault"
	"Covenant/internal/verify"
	"Covenant/internal/wire"
)

type Cash struct {
	Value uint64
}

func (Cash) Participants() []ledger.PublicKey { return nil }

type Move struct{}

const cash ledger.ContractID = "com.example.Cash"

// testEnv is a node with in-memory storage and a native Cash contract.
type testEnv struct {
	server  *Server
	codec   *wire.Codec
	atts    *vault.Attachments
	pkg     ledger.SecureHash
	notary  ledger.PublicKey
	signer  crypto.Signer
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := storage.Open("", storage.Options{InMemory: true})
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m := metrics.New()

	atts, err := vault.NewAttachments(db, 1, m)
	if err != nil {
		t.Fatalf("attachments: %v", err)
	}
	t.Cleanup(func() { atts.Close() })

	reg := wire.NewRegistry()
	if _, err := wire.RegisterState[Cash](reg, "com.example.Cash.State"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := wire.RegisterCommand[Move](reg, "com.example.Cash.Move"); err != nil {
		t.Fatalf("register: %v", err)
	}
	codec := &wire.Codec{Registry: reg}

	// Value is conserved unless nothing is consumed.
	contracts := contract.NewRegistry()
	contracts.Register(cash, contract.Func(func(_ context.Context, tx *ledger.LedgerTransaction) error {
		if len(tx.Inputs()) == 0 {
			return nil
		}

		var in, out uint64
		for _, s := range ledger.InputsOfType[Cash](tx) {
			in += s.Value
		}
		for _, s := range ledger.OutputsOfType[Cash](tx) {
			out += s.Value
		}

		if in != out {
			return contract.Rejectf("value not conserved: %d in, %d out", in, out)
		}
		return nil
	}))

	pool := verify.NewPool(verify.New(verify.Policy{}, contracts, m), 2)
	t.Cleanup(pool.Close)

	data, err := attachment.New(attachment.Manifest{Version: "1", Contracts: []ledger.ContractID{cash}})
	if err != nil {
		t.Fatalf("package: %v", err)
	}

	pkg, err := atts.Import(data, nil)
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	notary, err := crypto.Ed25519FromSeed(bytes.Repeat([]byte{9}, 32))
	if err != nil {
		t.Fatalf("notary: %v", err)
	}

	s := New(":0", Deps{
		Codec:       codec,
		Verifier:    pool,
		Attachments: atts,
		States:      vault.NewStates(db, codec),
		Metrics:     m,
	})

	return &testEnv{
		server:  s,
		codec:   codec,
		atts:    atts,
		pkg:     pkg,
		notary:  notary.PublicKey(),
		signer:  notary,
		handler: s.Handler(),
	}
}

func (e *testEnv) output(value uint64, c ledger.AttachmentConstraint) ledger.TransactionState {
	return ledger.TransactionState{Data: Cash{Value: value}, Contract: cash, Notary: e.notary, Constraint: c}
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)

	return w
}

// verifyTx posts tx and decodes the response.
func (e *testEnv) verifyTx(t *testing.T, tx *wire.WireTransaction, record bool) (int, VerifyResponse) {
	t.Helper()

	data, err := e.codec.Encode(tx)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	path := "/verify"
	if record {
		path += "?record=true"
	}

	w := e.do(t, "POST", path, data)

	var resp VerifyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response %q: %v", w.Body.String(), err)
	}

	return w.Code, resp
}

// =============================================================================
// Verify
// =============================================================================

func TestVerify_IssueThenMove(t *testing.T) {
	e := newTestEnv(t)
	hash := ledger.HashConstraint{Expected: e.pkg}

	issue := &wire.WireTransaction{
		Outputs:     []ledger.TransactionState{e.output(100, hash)},
		Attachments: []ledger.SecureHash{e.pkg},
		Notary:      e.notary,
	}

	code, resp := e.verifyTx(t, issue, true)
	if code != http.StatusOK || !resp.Accepted || !resp.Recorded {
		t.Fatalf("issue: %d %+v", code, resp)
	}

	issueID, err := e.codec.ID(issue)
	if err != nil {
		t.Fatalf("id: %v", err)
	}

	if resp.ID != issueID.String() {
		t.Errorf("id = %s, want %s", resp.ID, issueID)
	}

	move := &wire.WireTransaction{
		Inputs:      []ledger.StateRef{{TxID: issueID, Index: 0}},
		Outputs:     []ledger.TransactionState{e.output(60, hash), e.output(40, hash)},
		Commands:    []ledger.Command{{Value: Move{}, Signers: []ledger.PublicKey{e.notary}}},
		Attachments: []ledger.SecureHash{e.pkg},
		Notary:      e.notary,
	}

	code, resp = e.verifyTx(t, move, false)
	if code != http.StatusOK || !resp.Accepted {
		t.Fatalf("move: %d %+v", code, resp)
	}

	if len(resp.Consumed) != 1 || resp.Consumed[0] != (ledger.StateRef{TxID: issueID, Index: 0}).String() {
		t.Errorf("consumed = %v", resp.Consumed)
	}

	move.Outputs = move.Outputs[:1]

	code, resp = e.verifyTx(t, move, false)
	if code != http.StatusUnprocessableEntity || resp.Failure == nil || resp.Failure.Kind != verify.KindContractVerification {
		t.Fatalf("unbalanced move: %d %+v", code, resp)
	}

	if resp.Failure.Contract != cash || !strings.Contains(resp.Failure.Message, "not conserved") {
		t.Errorf("failure = %+v", resp.Failure)
	}
}

func TestVerify_ConstraintViolation(t *testing.T) {
	e := newTestEnv(t)

	tx := &wire.WireTransaction{
		Outputs:     []ledger.TransactionState{e.output(1, ledger.HashConstraint{Expected: ledger.HashOf([]byte("other"))})},
		Attachments: []ledger.SecureHash{e.pkg},
		Notary:      e.notary,
	}

	code, resp := e.verifyTx(t, tx, false)
	if code != http.StatusUnprocessableEntity || resp.Failure == nil {
		t.Fatalf("expected rejection, got %d %+v", code, resp)
	}

	f := resp.Failure
	if f.Kind != verify.KindConstraintViolation || f.Contract != cash || f.Sequence != "output" || f.Position == nil || *f.Position != 0 {
		t.Errorf("failure = %+v", f)
	}
}

func TestVerify_UnresolvedInput(t *testing.T) {
	e := newTestEnv(t)

	tx := &wire.WireTransaction{
		Inputs:      []ledger.StateRef{{TxID: ledger.HashOf([]byte("unknown")), Index: 3}},
		Attachments: []ledger.SecureHash{e.pkg},
		Notary:      e.notary,
	}

	code, resp := e.verifyTx(t, tx, false)
	if code != http.StatusUnprocessableEntity || resp.Failure == nil || resp.Failure.Kind != verify.KindResolution {
		t.Fatalf("expected resolution failure, got %d %+v", code, resp)
	}

	if resp.Failure.Ref == "" {
		t.Error("failure does not name the reference")
	}
}

func TestVerify_MissingAttachment(t *testing.T) {
	e := newTestEnv(t)

	tx := &wire.WireTransaction{
		Outputs:     []ledger.TransactionState{e.output(1, ledger.HashConstraint{Expected: e.pkg})},
		Attachments: []ledger.SecureHash{ledger.HashOf([]byte("not stored"))},
		Notary:      e.notary,
	}

	code, resp := e.verifyTx(t, tx, false)
	if code != http.StatusUnprocessableEntity || resp.Failure == nil || resp.Failure.Kind != verify.KindResolution {
		t.Fatalf("expected resolution failure, got %d %+v", code, resp)
	}
}

func TestVerify_Malformed(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "POST", "/verify", []byte("not cbor"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}

	w = e.do(t, "POST", "/verify", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty body: expected 400, got %d", w.Code)
	}
}

// postSigned signs tx with signers and posts the envelope.
func (e *testEnv) postSigned(t *testing.T, tx *wire.WireTransaction, signers ...crypto.Signer) (int, VerifyResponse) {
	t.Helper()

	st, err := e.codec.Sign(tx, signers...)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	data, err := wire.EncodeSigned(st)
	if err != nil {
		t.Fatalf("encode signed: %v", err)
	}

	w := e.do(t, "POST", "/verify", data)

	var resp VerifyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response %q: %v", w.Body.String(), err)
	}

	return w.Code, resp
}

func (e *testEnv) signedIssue() *wire.WireTransaction {
	return &wire.WireTransaction{
		Outputs:     []ledger.TransactionState{e.output(5, ledger.HashConstraint{Expected: e.pkg})},
		Commands:    []ledger.Command{{Value: Move{}, Signers: []ledger.PublicKey{e.notary}}},
		Attachments: []ledger.SecureHash{e.pkg},
		Notary:      e.notary,
	}
}

func TestVerify_SignedEnvelope(t *testing.T) {
	e := newTestEnv(t)
	tx := e.signedIssue()

	code, resp := e.postSigned(t, tx, e.signer)
	if code != http.StatusOK || !resp.Accepted || resp.Signatures != 1 {
		t.Fatalf("signed: %d %+v", code, resp)
	}

	id, err := e.codec.ID(tx)
	if err != nil {
		t.Fatalf("id: %v", err)
	}

	if resp.ID != id.String() {
		t.Errorf("id = %s, want %s", resp.ID, id)
	}
}

func TestVerify_SignedEnvelopeMissingSigner(t *testing.T) {
	e := newTestEnv(t)

	other, err := crypto.Ed25519FromSeed(bytes.Repeat([]byte{4}, 32))
	if err != nil {
		t.Fatalf("signer: %v", err)
	}

	code, resp := e.postSigned(t, e.signedIssue(), other)
	if code != http.StatusUnprocessableEntity || resp.Failure == nil {
		t.Fatalf("expected rejection, got %d %+v", code, resp)
	}

	f := resp.Failure
	if f.Kind != verify.KindSignature || f.Sequence != "command" || f.Position == nil || *f.Position != 0 {
		t.Errorf("failure = %+v", f)
	}
}

func TestVerify_RequireSignatures(t *testing.T) {
	e := newTestEnv(t)
	e.server.deps.RequireSignatures = true

	code, resp := e.verifyTx(t, e.signedIssue(), false)
	if code != http.StatusUnprocessableEntity || resp.Failure == nil || resp.Failure.Kind != verify.KindSignature {
		t.Fatalf("bare tx with command signers: %d %+v", code, resp)
	}

	// Nothing to sign for
	issue := &wire.WireTransaction{
		Outputs:     []ledger.TransactionState{e.output(1, ledger.HashConstraint{Expected: e.pkg})},
		Attachments: []ledger.SecureHash{e.pkg},
		Notary:      e.notary,
	}

	if code, resp := e.verifyTx(t, issue, false); code != http.StatusOK || !resp.Accepted {
		t.Fatalf("bare tx without signers: %d %+v", code, resp)
	}

	if code, resp := e.postSigned(t, e.signedIssue(), e.signer); code != http.StatusOK || !resp.Accepted {
		t.Fatalf("signed: %d %+v", code, resp)
	}
}

// =============================================================================
// Attachments, health, metrics
// =============================================================================

func TestAttachments_ImportAndFetch(t *testing.T) {
	e := newTestEnv(t)

	data, err := attachment.New(attachment.Manifest{Version: "2", Contracts: []ledger.ContractID{cash}})
	if err != nil {
		t.Fatalf("package: %v", err)
	}

	signer, err := crypto.Ed25519FromSeed(bytes.Repeat([]byte{1}, 32))
	if err != nil {
		t.Fatalf("signer: %v", err)
	}

	body, err := encodeRecord(data, []ledger.Signature{attachment.Sign(data, signer)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	w := e.do(t, "POST", "/attachments", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("import: %d %s", w.Code, w.Body.String())
	}

	var created map[string]string
	json.Unmarshal(w.Body.Bytes(), &created)

	if created["hash"] != ledger.HashOf(data).String() {
		t.Fatalf("hash = %s", created["hash"])
	}

	w = e.do(t, "GET", "/attachments/"+created["hash"], nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != contentTypeCBOR {
		t.Fatalf("fetch: %d %s", w.Code, w.Header().Get("Content-Type"))
	}

	gotData, gotSigs, err := decodeRecord(w.Body.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !bytes.Equal(gotData, data) || len(gotSigs) != 1 {
		t.Errorf("record mismatch: %d bytes, %d signatures", len(gotData), len(gotSigs))
	}

	if w := e.do(t, "GET", "/attachments/"+ledger.HashOf([]byte("x")).String(), nil); w.Code != http.StatusNotFound {
		t.Errorf("missing: expected 404, got %d", w.Code)
	}

	if w := e.do(t, "GET", "/attachments/zz", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad hash: expected 400, got %d", w.Code)
	}

	if w := e.do(t, "POST", "/attachments", []byte{0x01}); w.Code != http.StatusBadRequest {
		t.Errorf("bad record: expected 400, got %d", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)

	tx := &wire.WireTransaction{
		Outputs:     []ledger.TransactionState{e.output(1, ledger.HashConstraint{Expected: e.pkg})},
		Attachments: []ledger.SecureHash{e.pkg},
		Notary:      e.notary,
	}
	e.verifyTx(t, tx, false)

	w := e.do(t, "GET", "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	if !strings.Contains(w.Body.String(), `covenant_verify_transactions_total{outcome="ok"} 1`) {
		t.Errorf("verification not counted:\n%s", w.Body.String())
	}
}
