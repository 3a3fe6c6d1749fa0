package ledger

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

// TestAssemble_RoundTrip checks every sequence comes back in the exact order supplied.
func TestAssemble_RoundTrip(t *testing.T) {
	notary := newTestKey(t, 1)
	signer := newTestKey(t, 2)

	inRefs := []StateRef{inputRef(3), inputRef(1), inputRef(2)}
	states := StateMap{
		inRefs[0]: txState(Cash{Value: 30}, cashContract, notary),
		inRefs[1]: txState(Cash{Value: 10}, cashContract, notary),
		inRefs[2]: txState(Bond{Face: 20}, bondContract, notary),
	}

	outputs := []TransactionState{
		txState(Cash{Value: 5}, cashContract, notary),
		txState(Cash{Value: 5}, cashContract, notary),
		txState(Bond{Face: 1}, bondContract, notary),
	}

	commands := []Command{
		{Value: Move{}, Signers: []PublicKey{signer}},
		{Value: Move{}, Signers: []PublicKey{signer}},
	}

	window, err := NewTimeWindow(time.Unix(100, 0), time.Unix(200, 0))
	if err != nil {
		t.Fatalf("time window: %v", err)
	}

	tx, err := Assemble(Components{
		ID:          HashOf([]byte("roundtrip")),
		Inputs:      inRefs,
		Outputs:     outputs,
		Commands:    commands,
		Attachments: testAttachments(),
		Notary:      notary,
		TimeWindow:  &window,
	}, states)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	if !reflect.DeepEqual(tx.ConsumedRefs(), inRefs) {
		t.Errorf("consumed refs reordered: %v", tx.ConsumedRefs())
	}

	for i, ref := range inRefs {
		sr, err := tx.InRef(i)
		if err != nil {
			t.Fatalf("InRef(%d): %v", i, err)
		}

		if sr.Ref != ref || sr.State.Data != states[ref].Data {
			t.Errorf("input %d mismatch: %v", i, sr)
		}
	}

	if !reflect.DeepEqual(tx.Outputs(), outputs) {
		t.Errorf("outputs changed: %v", tx.Outputs())
	}

	if !reflect.DeepEqual(tx.Commands(), commands) {
		t.Errorf("commands changed: %v", tx.Commands())
	}

	if got := tx.TimeWindow(); got == nil || !got.Contains(time.Unix(150, 0)) {
		t.Errorf("time window lost: %v", got)
	}
}

// TestAssemble_Immutable checks callers cannot mutate the transaction through accessors.
func TestAssemble_Immutable(t *testing.T) {
	tx := buildInterleaved(t, 2)

	inputs := tx.Inputs()
	inputs[0] = StateAndRef{}

	got, err := tx.GetInput(0)
	if err != nil {
		t.Fatalf("GetInput: %v", err)
	}

	if _, ok := got.(Cash); !ok {
		t.Fatalf("transaction mutated through Inputs(): %T", got)
	}
}

// TestAssemble_UnresolvedInput checks a missing state yields a resolution error.
func TestAssemble_UnresolvedInput(t *testing.T) {
	notary := newTestKey(t, 1)
	missing := inputRef(9)

	_, err := Assemble(Components{
		Inputs:      []StateRef{missing},
		Attachments: testAttachments(),
		Notary:      notary,
	}, StateMap{})

	var re *TransactionResolutionError
	if !errors.As(err, &re) {
		t.Fatalf("expected TransactionResolutionError, got %v", err)
	}

	if re.Ref != missing || re.Position != 0 {
		t.Errorf("unexpected error detail: %+v", re)
	}

	if !errors.Is(err, ErrResolution) || !errors.Is(err, ErrStateNotFound) {
		t.Errorf("expected ErrResolution wrapping ErrStateNotFound, got %v", err)
	}
}

// TestAssemble_MissingAttachment checks a contract without a package is rejected.
func TestAssemble_MissingAttachment(t *testing.T) {
	notary := newTestKey(t, 1)

	_, err := Assemble(Components{
		Outputs: []TransactionState{
			txState(Cash{Value: 1}, cashContract, notary),
			txState(Note{}, "com.example.Unknown", notary),
		},
		Attachments: testAttachments(),
		Notary:      notary,
	}, nil)

	var me *MissingAttachmentError
	if !errors.As(err, &me) {
		t.Fatalf("expected MissingAttachmentError, got %v", err)
	}

	if me.Contract != "com.example.Unknown" || me.Sequence != "output" || me.Position != 1 {
		t.Errorf("unexpected error detail: %+v", me)
	}

	if !errors.Is(err, ErrResolution) {
		t.Errorf("expected ErrResolution classification")
	}
}

// TestAssemble_NotaryMismatch checks outputs must name the transaction notary.
func TestAssemble_NotaryMismatch(t *testing.T) {
	notary := newTestKey(t, 1)
	other := newTestKey(t, 7)

	_, err := Assemble(Components{
		Outputs:     []TransactionState{txState(Cash{Value: 1}, cashContract, other)},
		Attachments: testAttachments(),
		Notary:      notary,
	}, nil)

	if !errors.Is(err, ErrNotaryMismatch) {
		t.Fatalf("expected ErrNotaryMismatch, got %v", err)
	}
}

// TestAssemble_NotaryRequired checks consuming states without a notary fails.
func TestAssemble_NotaryRequired(t *testing.T) {
	ref := inputRef(1)
	states := StateMap{ref: txState(Cash{Value: 1}, cashContract, PublicKey{})}

	_, err := Assemble(Components{
		Inputs:      []StateRef{ref},
		Attachments: testAttachments(),
	}, states)

	if !errors.Is(err, ErrNotaryRequired) {
		t.Fatalf("expected ErrNotaryRequired, got %v", err)
	}
}

// TestAssemble_DuplicateInput checks a state consumed twice is rejected.
func TestAssemble_DuplicateInput(t *testing.T) {
	notary := newTestKey(t, 1)
	ref := inputRef(1)
	states := StateMap{ref: txState(Cash{Value: 1}, cashContract, notary)}

	_, err := Assemble(Components{
		Inputs:      []StateRef{ref, inputRef(2), ref},
		Attachments: testAttachments(),
		Notary:      notary,
	}, states)

	var de *DuplicateInputError
	if !errors.As(err, &de) {
		t.Fatalf("expected DuplicateInputError, got %v", err)
	}

	if de.First != 0 || de.Position != 2 {
		t.Errorf("unexpected positions: %+v", de)
	}
}

// TestTimeWindow checks window construction and bounds.
func TestTimeWindow(t *testing.T) {
	if _, err := NewTimeWindow(time.Time{}, time.Time{}); err == nil {
		t.Error("expected error for unbounded window")
	}

	if _, err := NewTimeWindow(time.Unix(10, 0), time.Unix(5, 0)); err == nil {
		t.Error("expected error for inverted window")
	}

	w, err := NewTimeWindow(time.Unix(10, 0), time.Time{})
	if err != nil {
		t.Fatalf("open-ended window: %v", err)
	}

	if w.Contains(time.Unix(9, 0)) || !w.Contains(time.Unix(10, 0)) || !w.Contains(time.Unix(1e9, 0)) {
		t.Error("unexpected Contains results for open-ended window")
	}
}

// TestParseKeyAndHash checks string forms round-trip.
func TestParseKeyAndHash(t *testing.T) {
	key := newTestKey(t, 3)

	parsed, err := ParsePublicKey(key.String())
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}

	if parsed != key {
		t.Errorf("key mismatch: %s vs %s", parsed, key)
	}

	h := HashOf([]byte("x"))

	ph, err := ParseSecureHash(h.String())
	if err != nil || ph != h {
		t.Errorf("hash round trip failed: %v", err)
	}

	if _, err := NewPublicKey(SchemeEd25519, make([]byte, 31)); err == nil {
		t.Error("expected error for short key")
	}
}
