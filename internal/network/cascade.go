package network

import (
	"context"
	"errors"
	"fmt"

	"Covenant/internal/ledger"
	"Covenant/internal/logger"
)

// Importer stores fetched packages locally.
type Importer interface {
	Import(data []byte, sigs []ledger.Signature) (ledger.SecureHash, error)
}

// Cascade looks a package up locally, then asks each remote in order. A
// package found remotely is imported so the next lookup stays local.
type Cascade struct {
	Local   ledger.AttachmentFetcher
	Store   Importer // Store may be nil to skip importing
	Remotes []ledger.AttachmentFetcher

	// Spread asks remotes in rendezvous order per package instead of list order.
	Spread bool
}

// Fetch implements ledger.AttachmentFetcher.
func (c *Cascade) Fetch(ctx context.Context, id ledger.SecureHash) (ledger.Attachment, error) {
	att, err := c.Local.Fetch(ctx, id)
	if err == nil || !errors.Is(err, ledger.ErrAttachmentNotFound) {
		return att, err
	}

	remotes := c.Remotes
	if c.Spread {
		remotes = rendezvousOrder(id, remotes)
	}

	var errs []error

	for _, r := range remotes {
		if err := ctx.Err(); err != nil {
			return ledger.Attachment{}, err
		}

		att, err := r.Fetch(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if c.Store != nil {
			if _, err := c.Store.Import(att.Data, att.Signatures); err != nil {
				logger.Warn("import fetched attachment", "hash", id.Short(), "error", err)
			}
		}

		return att, nil
	}

	if len(errs) == 0 {
		return ledger.Attachment{}, fmt.Errorf("%w: %s", ledger.ErrAttachmentNotFound, id)
	}

	return ledger.Attachment{}, fmt.Errorf("%w: %s:\n%w", ledger.ErrAttachmentNotFound, id, errors.Join(errs...))
}
