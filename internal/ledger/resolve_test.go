package ledger

import (
	"context"
	"errors"
	"testing"
)

type mapFetcher map[SecureHash]Attachment

func (m mapFetcher) Fetch(_ context.Context, id SecureHash) (Attachment, error) {
	a, ok := m[id]
	if !ok {
		return Attachment{}, ErrAttachmentNotFound
	}

	return a, nil
}

func TestResolve_FetchesAttachments(t *testing.T) {
	notary := newTestKey(t, 1)
	att := testAttachments()[0]
	fetcher := mapFetcher{att.ID: att}

	tx, err := Resolve(context.Background(), Components{
		Outputs: []TransactionState{txState(Cash{Value: 1}, cashContract, notary)},
		Notary:  notary,
	}, []SecureHash{att.ID, att.ID}, nil, fetcher)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if len(tx.Attachments()) != 1 {
		t.Errorf("expected 1 attachment, got %d", len(tx.Attachments()))
	}
}

func TestResolve_MissingAttachment(t *testing.T) {
	notary := newTestKey(t, 1)
	missing := HashOf([]byte("nope"))

	_, err := Resolve(context.Background(), Components{Notary: notary}, []SecureHash{missing}, nil, mapFetcher{})

	var fe *AttachmentFetchError
	if !errors.As(err, &fe) || fe.ID != missing {
		t.Fatalf("expected AttachmentFetchError, got %v", err)
	}

	if !errors.Is(err, ErrResolution) || !errors.Is(err, ErrAttachmentNotFound) {
		t.Errorf("expected ErrResolution wrapping ErrAttachmentNotFound, got %v", err)
	}
}

func TestResolve_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Resolve(ctx, Components{}, []SecureHash{HashOf([]byte("a"))}, nil, mapFetcher{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
