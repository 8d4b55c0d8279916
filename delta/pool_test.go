package delta

import (
	"bytes"
	"testing"
)

// TestRecordPool_NoCrossCallLeakage verifies that an opRecord slice
// obtained from the pool never exposes entries left behind by a prior,
// unrelated borrower: putRecordSlice must truncate length to zero
// before returning it to the pool, so a later getRecordSlice only ever
// sees whatever the new caller appends.
func TestRecordPool_NoCrossCallLeakage(t *testing.T) {
	t.Parallel()

	first := getRecordSlice(0)
	sentinel := opRecord{pos: 0xDEAD, origLen: 0xBEEF, newLen: 0xCAFE}
	*first = append(*first, sentinel, sentinel, sentinel)
	putRecordSlice(first)

	second := getRecordSlice(0)
	if len(*second) != 0 {
		t.Fatalf("pooled slice retained %d stale entries, want 0", len(*second))
	}

	*second = append(*second, opRecord{pos: 1})
	if (*second)[0].pos == sentinel.pos {
		t.Fatalf("fresh acquisition observed a prior call's sentinel value")
	}
	putRecordSlice(second)
}

// TestRecordPool_PutNilIsSafe covers the defensive nil check in
// putRecordSlice (a Collapse that errors before acquiring a slice must
// not be able to panic a deferred put of a nil pointer).
func TestRecordPool_PutNilIsSafe(t *testing.T) {
	t.Parallel()

	putRecordSlice(nil)
}

// TestCollapser_PoolIsolationAcrossConnects exercises pool reuse at the
// Collapser level: one Connect call's scratch data must never surface
// in the output of a later, unrelated Connect call sharing the same
// Collapser (and therefore the same idx/recordPool borrow points).
func TestCollapser_PoolIsolationAcrossConnects(t *testing.T) {
	t.Parallel()

	c := NewCollapser()

	// Two-level chains, so each Connect runs a collapse step that builds
	// c.idx and borrows from recordPool.
	baseA := []byte("AAAAAAAAAA")
	dA := buildDelta(10, 4, []Opcode{copyOp(0, 4)})
	topA := buildDelta(4, 4, []Opcode{copyOp(0, 4)})
	baseB := []byte("BBBBBBBBBB")
	dB := buildDelta(10, 6, []Opcode{copyOp(2, 6)})
	topB := buildDelta(6, 6, []Opcode{copyOp(0, 6)})

	hA, err := c.Connect(&sliceSource{streams: [][]byte{topA, dA}})
	if err != nil {
		t.Fatal(err)
	}
	hB, err := c.Connect(&sliceSource{streams: [][]byte{topB, dB}})
	if err != nil {
		t.Fatal(err)
	}

	var bufA, bufB bytes.Buffer
	if err := hA.Apply(baseA, &bufA); err != nil {
		t.Fatal(err)
	}
	if err := hB.Apply(baseB, &bufB); err != nil {
		t.Fatal(err)
	}

	if bufA.String() != "AAAA" {
		t.Fatalf("first collapse result corrupted: got %q", bufA.String())
	}
	if bufB.String() != "BBBBBB" {
		t.Fatalf("second collapse result corrupted: got %q", bufB.String())
	}
}
