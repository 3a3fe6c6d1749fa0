package ledger

import (
	"errors"
	"testing"
)

// =============================================================================
// Type-filtered listing
// =============================================================================

// TestInputsOfType_Interleaved checks 5 Cash interleaved with 5 Bond yields 5 in order.
func TestInputsOfType_Interleaved(t *testing.T) {
	tx := buildInterleaved(t, 5)

	cash := InputsOfType[Cash](tx)
	if len(cash) != 5 {
		t.Fatalf("expected 5 cash inputs, got %d", len(cash))
	}

	for i, c := range cash {
		if want := uint64(2 * i); c.Value != want {
			t.Errorf("cash[%d]: got value %d, want %d", i, c.Value, want)
		}
	}

	bonds := InRefsOfType[Bond](tx)
	if len(bonds) != 5 {
		t.Fatalf("expected 5 bond inputs, got %d", len(bonds))
	}

	for i, b := range bonds {
		if b.Position != 2*i+1 {
			t.Errorf("bond[%d]: got position %d, want %d", i, b.Position, 2*i+1)
		}

		if b.Ref != inputRef(2*i+1) {
			t.Errorf("bond[%d]: ref mismatch", i)
		}
	}
}

// TestInputsOfType_NoMatch checks an empty, non-nil result for an absent type.
func TestInputsOfType_NoMatch(t *testing.T) {
	tx := buildInterleaved(t, 3)

	notes := InputsOfType[Note](tx)
	if notes == nil {
		t.Fatal("expected empty slice, got nil")
	}

	if len(notes) != 0 {
		t.Errorf("expected no notes, got %d", len(notes))
	}

	if cmds := CommandsOfType[Move](tx); cmds == nil || len(cmds) != 0 {
		t.Errorf("expected empty command list, got %v", cmds)
	}
}

// TestInputsOfType_Covariant checks an interface type matches every implementation.
func TestInputsOfType_Covariant(t *testing.T) {
	tx := buildInterleaved(t, 4)

	assets := InputsOfType[Asset](tx)
	if len(assets) != 8 {
		t.Fatalf("expected 8 assets, got %d", len(assets))
	}

	for i, a := range assets {
		if a.Amount() != uint64(i) {
			t.Errorf("asset[%d]: got amount %d, want %d", i, a.Amount(), i)
		}
	}
}

// TestPositionalMatchesFiltered checks GetInput(i) equals the filtered element at that position.
func TestPositionalMatchesFiltered(t *testing.T) {
	tx := buildInterleaved(t, 5)

	for _, sr := range InRefsOfType[Cash](tx) {
		got, err := tx.GetInput(sr.Position)
		if err != nil {
			t.Fatalf("GetInput(%d): %v", sr.Position, err)
		}

		if got.(Cash) != sr.Data {
			t.Errorf("GetInput(%d) = %v, filtered has %v", sr.Position, got, sr.Data)
		}
	}
}

// =============================================================================
// Predicate filtering and find-single
// =============================================================================

// TestFilterInputs_Predicate combines the type check with a value check.
func TestFilterInputs_Predicate(t *testing.T) {
	tx := buildInterleaved(t, 5)

	big := FilterInputs(tx, func(c Cash) bool { return c.Value >= 4 })
	if len(big) != 3 {
		t.Fatalf("expected 3 cash >= 4, got %d", len(big))
	}

	if big[0].Value != 4 || big[1].Value != 6 || big[2].Value != 8 {
		t.Errorf("unexpected order: %v", big)
	}
}

// TestFindInput_FirstMatchWins checks repeated finds return the first match by order.
func TestFindInput_FirstMatchWins(t *testing.T) {
	tx := buildInterleaved(t, 5)

	for range 10 {
		got, err := FindInRef(tx, func(a Asset) bool { return a.Amount() > 2 })
		if err != nil {
			t.Fatalf("find: %v", err)
		}

		if got.Position != 3 {
			t.Fatalf("expected position 3, got %d", got.Position)
		}

		if _, ok := got.Data.(Bond); !ok {
			t.Fatalf("expected Bond at position 3, got %T", got.Data)
		}
	}
}

// TestFindInput_NotFound checks a find with no match fails with ErrNotFound.
func TestFindInput_NotFound(t *testing.T) {
	tx := buildInterleaved(t, 2)

	_, err := FindInput(tx, func(c Cash) bool { return c.Value > 100 })
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Sequence != "input" {
		t.Errorf("expected NotFoundError on input, got %v", err)
	}
}

// =============================================================================
// Positional accessors
// =============================================================================

// TestGetInput_Bounds checks out-of-range indices fail without clamping.
func TestGetInput_Bounds(t *testing.T) {
	tx := buildInterleaved(t, 5) // 10 inputs

	if _, err := tx.GetInput(9); err != nil {
		t.Fatalf("GetInput(9): %v", err)
	}

	for _, i := range []int{10, 11, -1, -10} {
		_, err := tx.GetInput(i)
		if !errors.Is(err, ErrIndexOutOfBounds) {
			t.Errorf("GetInput(%d): expected ErrIndexOutOfBounds, got %v", i, err)
		}
	}

	if _, err := tx.GetOutput(0); !errors.Is(err, ErrIndexOutOfBounds) {
		t.Errorf("GetOutput(0) on empty outputs: got %v", err)
	}

	if _, err := tx.GetCommand(0); !errors.Is(err, ErrIndexOutOfBounds) {
		t.Errorf("GetCommand(0) on empty commands: got %v", err)
	}

	if _, err := tx.ReferenceInRef(0); !errors.Is(err, ErrIndexOutOfBounds) {
		t.Errorf("ReferenceInRef(0) on empty references: got %v", err)
	}
}

// =============================================================================
// Outputs, references and commands
// =============================================================================

// TestOutputsAndCommands checks output refs, reference queries and command queries.
func TestOutputsAndCommands(t *testing.T) {
	notary := newTestKey(t, 1)
	signer := newTestKey(t, 2)
	txID := HashOf([]byte("outputs"))

	refState := inputRef(40)
	states := StateMap{refState: txState(Note{Text: "rate"}, noteContract, notary)}

	tx, err := Assemble(Components{
		ID:         txID,
		References: []StateRef{refState},
		Outputs: []TransactionState{
			txState(Bond{Face: 10}, bondContract, notary),
			txState(Cash{Value: 1}, cashContract, notary),
			txState(Cash{Value: 2}, cashContract, notary),
		},
		Commands: []Command{
			{Value: Issue{Serial: 1}, Signers: []PublicKey{signer}},
			{Value: Move{}, Signers: []PublicKey{signer}},
			{Value: Issue{Serial: 2}},
		},
		Attachments: testAttachments(),
		Notary:      notary,
	}, states)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	outs := OutRefsOfType[Cash](tx)
	if len(outs) != 2 {
		t.Fatalf("expected 2 cash outputs, got %d", len(outs))
	}

	if outs[0].Ref != (StateRef{TxID: txID, Index: 1}) || outs[1].Ref != (StateRef{TxID: txID, Index: 2}) {
		t.Errorf("unexpected output refs: %v, %v", outs[0].Ref, outs[1].Ref)
	}

	sr, err := tx.OutRef(2)
	if err != nil || sr.Ref.Index != 2 {
		t.Errorf("OutRef(2) = %v, %v", sr.Ref, err)
	}

	note, err := FindReferenceInput(tx, func(n Note) bool { return n.Text == "rate" })
	if err != nil || note.Text != "rate" {
		t.Errorf("FindReferenceInput = %v, %v", note, err)
	}

	issues := CommandsOfType[Issue](tx)
	if len(issues) != 2 || issues[0].Position != 0 || issues[1].Position != 2 {
		t.Fatalf("unexpected issue commands: %+v", issues)
	}

	second, err := FindCommand(tx, func(i Issue) bool { return i.Serial == 2 })
	if err != nil || second.Position != 2 {
		t.Errorf("FindCommand = %+v, %v", second, err)
	}

	if _, err := FindCommand[Move](tx, func(Move) bool { return false }); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
