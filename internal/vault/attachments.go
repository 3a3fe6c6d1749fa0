// Package vault holds what a node knows: code packages by content hash and
// the states produced by transactions it has verified.
package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/klauspost/compress/zstd"

	"Covenant/internal/attachment"
	"Covenant/internal/ledger"
	"Covenant/internal/logger"
	"Covenant/internal/metrics"
	"Covenant/internal/storage"
	"Covenant/internal/wire"
)

const (
	prefixAttachment = "a:"
	prefixSignatures = "s:"

	// DefaultCacheSize is the default front cache size in megabytes.
	DefaultCacheSize = 64
)

// record is the cached form of a stored package.
type record struct {
	_          struct{} `cbor:",toarray"`
	Data       []byte
	Signatures []byte
}

// Attachments stores code packages. Fetch is safe for concurrent use and
// never blocks on Import beyond the underlying store.
type Attachments struct {
	db      *storage.Storage
	cache   *bigcache.BigCache
	enc     *zstd.Encoder
	dec     *zstd.Decoder
	metrics *metrics.Metrics

	importMu sync.Mutex // importMu serializes signature merges
}

// NewAttachments creates an attachment store over db with a front cache of
// cacheMB megabytes. m may be nil.
func NewAttachments(db *storage.Storage, cacheMB int, m *metrics.Metrics) (*Attachments, error) {
	if cacheMB <= 0 {
		cacheMB = DefaultCacheSize
	}

	cfg := bigcache.DefaultConfig(10 * time.Minute)
	cfg.HardMaxCacheSize = cacheMB
	cfg.Shards = 64
	cfg.MaxEntriesInWindow = 1024
	cfg.MaxEntrySize = 64 << 10
	cfg.Verbose = false

	cache, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("create attachment cache:\n%w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		cache.Close()
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		cache.Close()
		enc.Close()
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}

	return &Attachments{
		db:      db,
		cache:   cache,
		enc:     enc,
		dec:     dec,
		metrics: m,
	}, nil
}

// Import stores package bytes and their detached signatures and returns the
// content hash. Importing a stored package again adds any new signatures.
// Signatures are stored as supplied; they are checked when a constraint needs them.
func (a *Attachments) Import(data []byte, sigs []ledger.Signature) (ledger.SecureHash, error) {
	att, err := attachment.Open(data, sigs)
	if err != nil {
		return ledger.SecureHash{}, fmt.Errorf("import attachment:\n%w", err)
	}

	id := att.ID

	a.importMu.Lock()
	defer a.importMu.Unlock()

	existing, err := a.db.Get(key(prefixSignatures, id))
	if err != nil {
		return ledger.SecureHash{}, fmt.Errorf("read signatures:\n%w", err)
	}

	merged := sigs
	if existing != nil {
		old, err := attachment.DecodeSignatures(existing)
		if err != nil {
			return ledger.SecureHash{}, fmt.Errorf("decode stored signatures:\n%w", err)
		}

		merged = mergeSignatures(old, sigs)
	}

	encodedSigs, err := attachment.EncodeSignatures(merged)
	if err != nil {
		return ledger.SecureHash{}, fmt.Errorf("encode signatures:\n%w", err)
	}

	err = a.db.Apply([]storage.KeyValue{
		{Key: key(prefixAttachment, id), Value: a.enc.EncodeAll(data, nil)},
		{Key: key(prefixSignatures, id), Value: encodedSigs},
	})
	if err != nil {
		return ledger.SecureHash{}, fmt.Errorf("store attachment:\n%w", err)
	}

	if err := a.cache.Delete(id.String()); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		logger.Debug("attachment cache not invalidated", "hash", id.Short(), "error", err)
	}

	logger.Debug("attachment imported", "hash", id.Short(), "contracts", len(att.Contracts), "signatures", len(merged))

	return id, nil
}

// Fetch returns the package with content hash id. Unknown hashes yield an
// error matching ledger.ErrAttachmentNotFound.
func (a *Attachments) Fetch(ctx context.Context, id ledger.SecureHash) (ledger.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Attachment{}, err
	}

	rec, err := a.load(id)
	if err != nil {
		return ledger.Attachment{}, err
	}

	var sigs []ledger.Signature
	if len(rec.Signatures) > 0 {
		if sigs, err = attachment.DecodeSignatures(rec.Signatures); err != nil {
			return ledger.Attachment{}, fmt.Errorf("decode signatures of %s:\n%w", id.Short(), err)
		}
	}

	att, err := attachment.Open(rec.Data, sigs)
	if err != nil {
		return ledger.Attachment{}, fmt.Errorf("open attachment %s:\n%w", id.Short(), err)
	}

	return att, nil
}

// Has reports whether the package is stored.
func (a *Attachments) Has(id ledger.SecureHash) (bool, error) {
	return a.db.Has(key(prefixAttachment, id))
}

// load reads a package record from the cache, falling back to the store.
func (a *Attachments) load(id ledger.SecureHash) (record, error) {
	var rec record

	if cached, err := a.cache.Get(id.String()); err == nil {
		if err := wire.Unmarshal(cached, &rec); err == nil {
			a.metrics.CacheLookup(true)
			return rec, nil
		}
	}

	a.metrics.CacheLookup(false)

	compressed, err := a.db.Get(key(prefixAttachment, id))
	if err != nil {
		return record{}, fmt.Errorf("read attachment:\n%w", err)
	}
	if compressed == nil {
		return record{}, fmt.Errorf("%w: %s", ledger.ErrAttachmentNotFound, id)
	}

	data, err := a.dec.DecodeAll(compressed, nil)
	if err != nil {
		return record{}, fmt.Errorf("decompress attachment %s:\n%w", id.Short(), err)
	}

	if ledger.HashOf(data) != id {
		return record{}, fmt.Errorf("stored attachment %s is corrupt", id.Short())
	}

	sigs, err := a.db.Get(key(prefixSignatures, id))
	if err != nil {
		return record{}, fmt.Errorf("read signatures:\n%w", err)
	}

	rec = record{Data: data, Signatures: sigs}

	if encoded, err := wire.Marshal(&rec); err == nil {
		if err := a.cache.Set(id.String(), encoded); err != nil {
			logger.Debug("attachment not cached", "hash", id.Short(), "error", err)
		}
	}

	return rec, nil
}

// Close releases the cache and codecs. The underlying store is not closed.
func (a *Attachments) Close() error {
	a.dec.Close()

	if err := a.enc.Close(); err != nil {
		return err
	}

	return a.cache.Close()
}

// mergeSignatures appends the signatures in add that old does not contain.
func mergeSignatures(old, add []ledger.Signature) []ledger.Signature {
	merged := append([]ledger.Signature{}, old...)

	for _, s := range add {
		dup := false
		for _, o := range merged {
			if o.Signer == s.Signer && string(o.Bytes) == string(s.Bytes) {
				dup = true
				break
			}
		}

		if !dup {
			merged = append(merged, s)
		}
	}

	return merged
}

func key(prefix string, id ledger.SecureHash) []byte {
	return append([]byte(prefix), id[:]...)
}
