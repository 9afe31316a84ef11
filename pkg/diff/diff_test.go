package diff

import (
	"fmt"
	"math/rand"
	"testing"
)

type rec struct {
	id string
	v  int
}

func (r rec) RecordID() string       { return r.id }
func (r rec) EqualRecord(o rec) bool { return r == o }

func seq(ids ...string) []rec {
	out := make([]rec, len(ids))
	for i, id := range ids {
		out[i] = rec{id: id}
	}
	return out
}

func mustApply(t *testing.T, old, want []rec, s Script[rec]) {
	t.Helper()
	got, ok := Apply(old, s)
	if !ok {
		t.Fatalf("script did not apply")
	}
	if !equalSeq(got, want) {
		t.Fatalf("apply mismatch: got %v want %v", got, want)
	}
}

func TestIdenticalSequencesEmptyScript(t *testing.T) {
	old := seq("a", "b", "c")
	s := Compute(old, seq("a", "b", "c"))
	if !s.Empty() {
		t.Fatalf("expected empty script, got %d ops", len(s.Ops))
	}
}

func TestEmptyOldAllInserts(t *testing.T) {
	new := seq("a", "b", "c")
	s := Compute(nil, new)
	if len(s.Ops) != 3 {
		t.Fatalf("expected 3 ops, got %d", len(s.Ops))
	}
	for i, op := range s.Ops {
		if op.Kind != Insert || op.To != i {
			t.Fatalf("op %d: expected insert at %d, got %s at %d", i, i, op.Kind, op.To)
		}
	}
	mustApply(t, nil, new, s)
}

func TestEmptyNewAllRemoves(t *testing.T) {
	old := seq("a", "b", "c")
	s := Compute(old, nil)
	if len(s.Ops) != 3 {
		t.Fatalf("expected 3 ops, got %d", len(s.Ops))
	}
	for _, op := range s.Ops {
		if op.Kind != Remove {
			t.Fatalf("expected remove, got %s", op.Kind)
		}
	}
	mustApply(t, old, nil, s)
}

func TestMoveToFront(t *testing.T) {
	old := seq("a", "b", "c")
	new := seq("c", "a", "b")
	s := Compute(old, new)
	moves := 0
	for _, op := range s.Ops {
		if op.Kind == Move {
			moves++
			if op.Item.id != "c" || op.From != 2 || op.To != 0 {
				t.Fatalf("unexpected move: %+v", op)
			}
		}
	}
	if moves != 1 {
		t.Fatalf("expected exactly 1 move, got %d", moves)
	}
	mustApply(t, old, new, s)
}

func TestMoveToEnd(t *testing.T) {
	old := seq("a", "b", "c")
	new := seq("b", "c", "a")
	s := Compute(old, new)
	moves := 0
	for _, op := range s.Ops {
		if op.Kind == Move {
			moves++
			if op.Item.id != "a" || op.From != 0 || op.To != 2 {
				t.Fatalf("unexpected move: %+v", op)
			}
		}
	}
	if moves != 1 {
		t.Fatalf("expected exactly 1 move, got %d", moves)
	}
	mustApply(t, old, new, s)
}

func TestUpdateInPlace(t *testing.T) {
	old := []rec{{"a", 1}, {"b", 1}}
	new := []rec{{"a", 1}, {"b", 2}}
	s := Compute(old, new)
	if len(s.Ops) != 1 || s.Ops[0].Kind != Update || s.Ops[0].Item.id != "b" {
		t.Fatalf("expected single update of b, got %+v", s.Ops)
	}
	mustApply(t, old, new, s)
}

func TestMoveAndUpdateSameItem(t *testing.T) {
	old := []rec{{"a", 1}, {"b", 1}, {"c", 1}}
	new := []rec{{"c", 9}, {"a", 1}, {"b", 1}}
	s := Compute(old, new)
	var sawMove, sawUpdate bool
	for _, op := range s.Ops {
		if op.Item.id == "c" && op.Kind == Move {
			sawMove = true
		}
		if op.Item.id == "c" && op.Kind == Update {
			sawUpdate = true
		}
	}
	if !sawMove || !sawUpdate {
		t.Fatalf("expected both move and update for c, got %+v", s.Ops)
	}
	mustApply(t, old, new, s)
}

func TestUnchangedItemsProduceNoOps(t *testing.T) {
	old := seq("a", "b", "c", "d")
	new := seq("a", "b", "x", "c", "d")
	s := Compute(old, new)
	for _, op := range s.Ops {
		if op.Item.id != "x" {
			t.Fatalf("unexpected op for unchanged item: %+v", op)
		}
	}
	mustApply(t, old, new, s)
}

func TestInsertRemoveMixed(t *testing.T) {
	old := seq("a", "b", "c", "d", "e")
	new := seq("e", "x", "b", "y", "a")
	s := Compute(old, new)
	mustApply(t, old, new, s)
}

func TestResetScriptDoesNotApply(t *testing.T) {
	if _, ok := Apply(seq("a"), Script[rec]{Reset: true}); ok {
		t.Fatalf("reset script must not apply")
	}
	if (Script[rec]{Reset: true}).Empty() {
		t.Fatalf("reset script is not empty")
	}
}

func TestCorruptScriptRejected(t *testing.T) {
	old := seq("a", "b")
	bad := Script[rec]{Ops: []Op[rec]{{Kind: Remove, Item: rec{id: "z"}, From: 9, To: -1}}}
	if _, ok := Apply(old, bad); ok {
		t.Fatalf("out-of-range remove must not apply")
	}
	dup := Script[rec]{Ops: []Op[rec]{
		{Kind: Remove, Item: rec{id: "a"}, From: 0, To: -1},
		{Kind: Remove, Item: rec{id: "a"}, From: 0, To: -1},
	}}
	if _, ok := Apply(old, dup); ok {
		t.Fatalf("duplicate remove index must not apply")
	}
}

// TestRoundTripRandom exercises the round-trip law on random shuffles,
// drops, inserts and value changes.
func TestRoundTripRandom(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		rng := rand.New(rand.NewSource(seed))
		n := rng.Intn(20)
		old := make([]rec, n)
		for i := range old {
			old[i] = rec{id: fmt.Sprintf("id%d", i), v: rng.Intn(3)}
		}

		new := append([]rec(nil), old...)
		// drop some
		for i := 0; i < len(new); {
			if rng.Intn(4) == 0 {
				new = append(new[:i], new[i+1:]...)
			} else {
				i++
			}
		}
		// mutate some
		for i := range new {
			if rng.Intn(3) == 0 {
				new[i].v += 10
			}
		}
		// shuffle
		rng.Shuffle(len(new), func(i, j int) { new[i], new[j] = new[j], new[i] })
		// insert some fresh items
		for k := 0; k < rng.Intn(4); k++ {
			pos := rng.Intn(len(new) + 1)
			item := rec{id: fmt.Sprintf("new%d-%d", seed, k)}
			new = append(new[:pos], append([]rec{item}, new[pos:]...)...)
		}

		s := Compute(old, new)
		if s.Reset {
			t.Fatalf("seed %d: unexpected reset", seed)
		}
		got, ok := Apply(old, s)
		if !ok || !equalSeq(got, new) {
			t.Fatalf("seed %d: round trip failed\nold=%v\nnew=%v\ngot=%v\nops=%v", seed, old, new, got, s.Ops)
		}
	}
}
