// Package diff computes minimal ordered edit scripts between two sequences
// of identity-bearing records. Matching is by record id, not value equality,
// so an item can move without changing and change without moving.
package diff

import (
	"sort"

	"chatsync/pkg/logger"
	"chatsync/pkg/metrics"
)

// Record is implemented by any value with a stable identity and a value
// equality check against its own type.
type Record[T any] interface {
	RecordID() string
	EqualRecord(T) bool
}

type Kind int

const (
	Insert Kind = iota
	Remove
	Move
	Update
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Remove:
		return "remove"
	case Move:
		return "move"
	case Update:
		return "update"
	}
	return "unknown"
}

// Op is a single edit. From is an index into the old sequence (Remove,
// Move); To is an index into the new sequence (Insert, Move, Update).
// Unused index fields are -1.
type Op[T Record[T]] struct {
	Kind Kind
	Item T
	From int
	To   int
}

// Script is an ordered edit script. When Reset is set the script carries no
// ops and the consumer must reload the full sequence; this is the recovery
// path for a failed validation, never an error.
type Script[T Record[T]] struct {
	Ops   []Op[T]
	Reset bool
}

// Empty reports whether the script carries no changes at all.
func (s Script[T]) Empty() bool { return !s.Reset && len(s.Ops) == 0 }

// Compute returns an edit script transforming old into new. The script is
// validated by replaying it against old; on a mismatch a Reset script is
// returned instead of an inconsistent incremental one.
func Compute[T Record[T]](old, new []T) Script[T] {
	s := compute(old, new)
	got, ok := Apply(old, s)
	if !ok || !equalSeq(got, new) {
		logger.Warn("diff_validation_failed", "old_len", len(old), "new_len", len(new), "ops", len(s.Ops))
		metrics.DiffResetsTotal.Inc()
		return Script[T]{Reset: true}
	}
	return s
}

func compute[T Record[T]](old, new []T) Script[T] {
	oldIdx := make(map[string]int, len(old))
	for i, it := range old {
		oldIdx[it.RecordID()] = i
	}
	newIdx := make(map[string]int, len(new))
	for j, it := range new {
		newIdx[it.RecordID()] = j
	}

	var ops []Op[T]

	// Removals first, by descending old index.
	for i := len(old) - 1; i >= 0; i-- {
		if _, ok := newIdx[old[i].RecordID()]; !ok {
			ops = append(ops, Op[T]{Kind: Remove, Item: old[i], From: i, To: -1})
		}
	}

	// Surviving items in new order, tracking their old positions. Items
	// off the longest increasing subsequence of old positions are the
	// minimal set of moves.
	type survivor struct {
		oldI, newJ int
	}
	var common []survivor
	for j, it := range new {
		if i, ok := oldIdx[it.RecordID()]; ok {
			common = append(common, survivor{oldI: i, newJ: j})
		}
	}
	seq := make([]int, len(common))
	for k, c := range common {
		seq[k] = c.oldI
	}
	keep := lisKeep(seq)

	var updates []Op[T]
	for k, c := range common {
		if !keep[k] {
			ops = append(ops, Op[T]{Kind: Move, Item: new[c.newJ], From: c.oldI, To: c.newJ})
		}
		if !old[c.oldI].EqualRecord(new[c.newJ]) {
			updates = append(updates, Op[T]{Kind: Update, Item: new[c.newJ], From: -1, To: c.newJ})
		}
	}

	// Insertions by ascending new index.
	for j, it := range new {
		if _, ok := oldIdx[it.RecordID()]; !ok {
			ops = append(ops, Op[T]{Kind: Insert, Item: it, From: -1, To: j})
		}
	}

	ops = append(ops, updates...)
	return Script[T]{Ops: ops}
}

// Apply replays a script against old and returns the resulting sequence.
// Structural ops are applied in two passes: removals (removes and move
// sources) against old indices in descending order, then insertions
// (inserts and move targets) against final indices in ascending order.
// Updates replace items by id afterwards. Returns false for reset scripts
// and for scripts that do not apply cleanly.
func Apply[T Record[T]](old []T, s Script[T]) ([]T, bool) {
	if s.Reset {
		return nil, false
	}

	type insertion struct {
		to   int
		item T
	}
	var dels []int
	var inss []insertion
	var updates []Op[T]
	for _, op := range s.Ops {
		switch op.Kind {
		case Remove:
			dels = append(dels, op.From)
		case Move:
			dels = append(dels, op.From)
			inss = append(inss, insertion{to: op.To, item: op.Item})
		case Insert:
			inss = append(inss, insertion{to: op.To, item: op.Item})
		case Update:
			updates = append(updates, op)
		default:
			return nil, false
		}
	}

	work := append([]T(nil), old...)

	sort.Sort(sort.Reverse(sort.IntSlice(dels)))
	for i, d := range dels {
		if d < 0 || d >= len(work) {
			return nil, false
		}
		if i > 0 && dels[i-1] == d {
			return nil, false
		}
		work = append(work[:d], work[d+1:]...)
	}

	sort.SliceStable(inss, func(a, b int) bool { return inss[a].to < inss[b].to })
	for _, in := range inss {
		if in.to < 0 || in.to > len(work) {
			return nil, false
		}
		work = append(work, in.item)
		copy(work[in.to+1:], work[in.to:])
		work[in.to] = in.item
	}

	if len(updates) > 0 {
		pos := make(map[string]int, len(work))
		for i, it := range work {
			pos[it.RecordID()] = i
		}
		for _, op := range updates {
			i, ok := pos[op.Item.RecordID()]
			if !ok {
				return nil, false
			}
			work[i] = op.Item
		}
	}
	return work, true
}

func equalSeq[T Record[T]](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].RecordID() != b[i].RecordID() || !a[i].EqualRecord(b[i]) {
			return false
		}
	}
	return true
}

// lisKeep marks the positions of arr belonging to one longest strictly
// increasing subsequence. arr holds distinct values.
func lisKeep(arr []int) []bool {
	n := len(arr)
	keep := make([]bool, n)
	if n == 0 {
		return keep
	}
	tails := make([]int, 0, n) // indices into arr of subsequence tails per length
	prev := make([]int, n)
	for i, v := range arr {
		lo, hi := 0, len(tails)
		for lo < hi {
			mid := (lo + hi) / 2
			if arr[tails[mid]] < v {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		if lo > 0 {
			prev[i] = tails[lo-1]
		} else {
			prev[i] = -1
		}
		if lo == len(tails) {
			tails = append(tails, i)
		} else {
			tails[lo] = i
		}
	}
	for k := tails[len(tails)-1]; k >= 0; k = prev[k] {
		keep[k] = true
	}
	return keep
}
