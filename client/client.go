// Package client talks to a node's HTTP API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"Covenant/internal/api"
	"Covenant/internal/attachment"
	"Covenant/internal/ledger"
	"Covenant/internal/verify"
	"Covenant/internal/wire"
)

const contentTypeCBOR = "application/cbor"

// RejectedError is returned by Verify when the node rejects a transaction.
type RejectedError struct {
	Status  int            // Status is the HTTP status code
	Failure verify.Failure // Failure explains the rejection
}

func (e *RejectedError) Error() string {
	msg := fmt.Sprintf("transaction rejected (%s)", e.Failure.Kind)
	if e.Failure.Contract != "" {
		msg += " by " + string(e.Failure.Contract)
	}
	if e.Failure.Message != "" {
		msg += ": " + e.Failure.Message
	}

	return msg
}

// Client connects to a node via HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the node at addr ("host:port" or a full URL).
func New(addr string) *Client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}

	return &Client{
		baseURL: strings.TrimRight(addr, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Health reports whether the node answers.
func (c *Client) Health(ctx context.Context) error {
	status, body, err := c.do(ctx, http.MethodGet, "/health", "", nil)
	if err != nil {
		return err
	}

	if status != http.StatusOK {
		return fmt.Errorf("health: status %d: %s", status, errorMessage(body))
	}

	return nil
}

// ImportAttachment uploads package bytes and detached signatures and
// returns the content hash the node stored them under.
func (c *Client) ImportAttachment(ctx context.Context, data []byte, sigs []ledger.Signature) (ledger.SecureHash, error) {
	encoded, err := attachment.EncodeSignatures(sigs)
	if err != nil {
		return ledger.SecureHash{}, err
	}

	body, err := wire.Marshal(&api.AttachmentRecord{Data: data, Signatures: encoded})
	if err != nil {
		return ledger.SecureHash{}, fmt.Errorf("encode record:\n%w", err)
	}

	status, resp, err := c.do(ctx, http.MethodPost, "/attachments", contentTypeCBOR, body)
	if err != nil {
		return ledger.SecureHash{}, err
	}

	if status != http.StatusCreated {
		return ledger.SecureHash{}, fmt.Errorf("import: status %d: %s", status, errorMessage(resp))
	}

	var created struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(resp, &created); err != nil {
		return ledger.SecureHash{}, fmt.Errorf("parse import response:\n%w", err)
	}

	return ledger.ParseSecureHash(created.Hash)
}

// FetchAttachment downloads a stored package.
func (c *Client) FetchAttachment(ctx context.Context, id ledger.SecureHash) (ledger.Attachment, error) {
	status, resp, err := c.do(ctx, http.MethodGet, "/attachments/"+id.String(), "", nil)
	if err != nil {
		return ledger.Attachment{}, err
	}

	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return ledger.Attachment{}, fmt.Errorf("%w: %s", ledger.ErrAttachmentNotFound, id)
	default:
		return ledger.Attachment{}, fmt.Errorf("fetch: status %d: %s", status, errorMessage(resp))
	}

	var rec api.AttachmentRecord
	if err := wire.Unmarshal(resp, &rec); err != nil {
		return ledger.Attachment{}, fmt.Errorf("decode record:\n%w", err)
	}

	var sigs []ledger.Signature
	if len(rec.Signatures) > 0 {
		if sigs, err = attachment.DecodeSignatures(rec.Signatures); err != nil {
			return ledger.Attachment{}, err
		}
	}

	return attachment.Open(rec.Data, sigs)
}

// Verify submits an encoded wire transaction. A rejection is returned as
// *RejectedError. With record set, the node stores the accepted outputs.
func (c *Client) Verify(ctx context.Context, tx []byte, record bool) (*api.VerifyResponse, error) {
	path := "/verify"
	if record {
		path += "?record=true"
	}

	status, body, err := c.do(ctx, http.MethodPost, path, contentTypeCBOR, tx)
	if err != nil {
		return nil, err
	}

	var resp api.VerifyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("verify: status %d: %s", status, errorMessage(body))
	}

	if resp.Failure != nil {
		return &resp, &RejectedError{Status: status, Failure: *resp.Failure}
	}

	if status != http.StatusOK || !resp.Accepted {
		return &resp, fmt.Errorf("verify: status %d: %s", status, errorMessage(body))
	}

	return &resp, nil
}

// VerifySigned submits a signed transaction envelope. The node checks every
// signature against the transaction id before verification.
func (c *Client) VerifySigned(ctx context.Context, st *wire.SignedTransaction, record bool) (*api.VerifyResponse, error) {
	data, err := wire.EncodeSigned(st)
	if err != nil {
		return nil, err
	}

	return c.Verify(ctx, data, record)
}
