package ledger

import (
	"context"
	"fmt"
)

// AttachmentFetchError reports a package that could not be fetched.
type AttachmentFetchError struct {
	ID       SecureHash // ID is the requested package hash
	Position int        // Position is the index in the attachment id list
	Err      error      // Err is the fetcher's error
}

func (e *AttachmentFetchError) Error() string {
	return fmt.Sprintf("fetch attachment %d (%s): %v", e.Position, e.ID.Short(), e.Err)
}

func (e *AttachmentFetchError) Unwrap() error { return e.Err }

func (*AttachmentFetchError) Is(target error) bool {
	return target == ErrResolution
}

// Resolve fetches every attachment listed in ids and assembles the transaction.
// This is the I/O step performed by the caller before verification; Assemble
// itself never performs lookups beyond the resolver it is handed.
// Duplicate ids are fetched once and kept once, in first-seen order.
func Resolve(ctx context.Context, c Components, ids []SecureHash, states StateResolver, fetcher AttachmentFetcher) (*LedgerTransaction, error) {
	seen := make(map[SecureHash]bool, len(ids))
	attachments := make([]Attachment, 0, len(ids)+len(c.Attachments))
	attachments = append(attachments, c.Attachments...)

	for i, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if fetcher == nil {
			return nil, &AttachmentFetchError{ID: id, Position: i, Err: ErrAttachmentNotFound}
		}

		att, err := fetcher.Fetch(ctx, id)
		if err != nil {
			return nil, &AttachmentFetchError{ID: id, Position: i, Err: err}
		}

		attachments = append(attachments, att)
	}

	c.Attachments = attachments

	return Assemble(c, states)
}
