package wire

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

var (
	tagsOnce sync.Once
	tags     cbor.TagSet
	tagsErr  error

	modesOnce sync.Once
	encMode   cbor.EncMode
	decMode   cbor.DecMode
	modesErr  error
)

// tagSet registers the tagged top-level shapes of this package.
func tagSet() (cbor.TagSet, error) {
	tagsOnce.Do(func() {
		tags = cbor.NewTagSet()
		opts := cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagRequired}

		tagsErr = tags.Add(opts, reflect.TypeOf(signedEnvelope{}), signedTxTag)
	})

	return tags, tagsErr
}

// modes returns the cached deterministic encoder and strict decoder.
func modes() (cbor.EncMode, cbor.DecMode, error) {
	modesOnce.Do(func() {
		ts, err := tagSet()
		if err != nil {
			modesErr = err
			return
		}

		enc := cbor.EncOptions{
			// Map keys sorted so equal values always produce equal bytes
			Sort:          cbor.SortCoreDeterministic,
			ShortestFloat: cbor.ShortestFloat16,
			Time:          cbor.TimeUnixMicro,
		}

		encMode, modesErr = enc.EncModeWithTags(ts)
		if modesErr != nil {
			return
		}

		dec := cbor.DecOptions{
			DupMapKey:         cbor.DupMapKeyEnforcedAPF,
			ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
			IndefLength:       cbor.IndefLengthForbidden,
			MaxNestedLevels:   64,
		}

		decMode, modesErr = dec.DecModeWithTags(ts)
	})

	return encMode, decMode, modesErr
}

// Marshal encodes v as deterministic CBOR.
func Marshal(v any) ([]byte, error) {
	em, _, err := modes()
	if err != nil {
		return nil, fmt.Errorf("cbor modes:\n%w", err)
	}

	return em.Marshal(v)
}

// Unmarshal decodes data into v, rejecting trailing bytes.
func Unmarshal(data []byte, v any) error {
	_, dm, err := modes()
	if err != nil {
		return fmt.Errorf("cbor modes:\n%w", err)
	}

	dec := dm.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return err
	}

	if dec.NumBytesRead() != len(data) {
		return fmt.Errorf("%d trailing bytes after cbor item", len(data)-dec.NumBytesRead())
	}

	return nil
}

// Canonical reports an error unless data is the deterministic encoding of the
// value it carries: minimal lengths and integers, sorted map keys, shortest
// floats, definite lengths only. Bytes that pass have exactly one accepted
// form, so a hash over them identifies the value.
func Canonical(data []byte) error {
	em, _, err := modes()
	if err != nil {
		return fmt.Errorf("cbor modes:\n%w", err)
	}

	var v any
	if err := Unmarshal(data, &v); err != nil {
		return err
	}

	again, err := em.Marshal(v)
	if err != nil {
		return fmt.Errorf("re-encode:\n%w", err)
	}

	if !bytes.Equal(again, data) {
		return errors.New("cbor item is not in deterministic form")
	}

	return nil
}
