package delta

import "sort"

// deltaInfoGrowFloor is the minimum number of entries a DeltaIndex's
// backing array grows by at a time, matching the source's
// gDIV_grow_by. It keeps small deltas from thrashing the allocator with
// single-entry grows.
const deltaInfoGrowFloor = 100

// deltaInfoBytesPerEntry is the rough heuristic used to size the
// initial DeltaIndex capacity: about one opcode per 3 bytes of stream,
// matching typical COPY/INSERT opcode density.
const deltaInfoBytesPerEntry = 3

// deltaInfo is one index entry: the byte offset of an opcode within its
// delta stream (DSO) and the cumulative target offset at which its
// output begins (TO). The output size of all but the last entry is
// derived from the next entry's TO; the last is recorded separately as
// DeltaIndex.tailSize, since it cannot be derived from a following
// boundary.
//
// Grounded on original_source/_delta_apply.c's DeltaInfo struct.
type deltaInfo struct {
	dso uint32
	to  uint32
}

// DeltaIndex is a sorted table over one delta stream's opcode body,
// mapping target offsets to the stream position of the opcode that
// produces them. Built fresh per incoming delta in a chain and reused
// (cleared, capacity retained) across chain iterations.
//
// Grounded on original_source/_delta_apply.c's DeltaInfoVector.
type DeltaIndex struct {
	stream     []byte // the delta stream this index was built over
	cursorBase int    // offset of the opcode body (just past the header)
	baseSize   uint64 // base size declared by the stream's header
	targetSize uint64 // target size declared by the stream's header
	entries    []deltaInfo
	tailSize   uint32

	// growthFloor overrides deltaInfoGrowFloor for this index's initial
	// capacity estimate when positive. Set by Collapser from
	// WithGrowthFloor; zero means "use the package default".
	growthFloor int
}

// reset clears entries (retaining capacity) and rebinds the index to a
// new stream, ready for Build.
func (idx *DeltaIndex) reset() {
	idx.entries = idx.entries[:0]
	idx.stream = nil
	idx.cursorBase = 0
	idx.baseSize = 0
	idx.targetSize = 0
	idx.tailSize = 0
}

// Build scans stream's header and opcode body, populating the index.
// stream must outlive the index; the index borrows it for later slicing
// and emission.
func (idx *DeltaIndex) Build(stream []byte) error {
	idx.reset()

	baseSize, targetSize, cursor, err := readHeader(stream)
	if err != nil {
		return err
	}

	idx.stream = stream
	idx.cursorBase = cursor
	idx.baseSize = baseSize
	idx.targetSize = targetSize

	if cap(idx.entries) == 0 {
		floor := idx.growthFloor
		if floor <= 0 {
			floor = deltaInfoGrowFloor
		}
		estimate := len(stream)/deltaInfoBytesPerEntry + 1
		if estimate < floor {
			estimate = floor
		}
		idx.entries = make([]deltaInfo, 0, estimate)
	}

	var to uint64
	pos := cursor
	for pos < len(stream) {
		dso := pos
		op, next, err := ParseOpcode(stream[pos:], baseSize)
		if err != nil {
			return err
		}

		idx.entries = append(idx.entries, deltaInfo{dso: uint32(dso), to: uint32(to)})
		to += uint64(op.OutputSize())
		pos += next
	}

	if len(idx.entries) == 0 {
		if targetSize != 0 {
			return newError(ErrMalformedDelta).AddDetails("empty opcode body for non-empty target")
		}
		return nil
	}

	last := idx.entries[len(idx.entries)-1]
	idx.tailSize = uint32(to) - last.to
	if to != targetSize {
		return newError(ErrMalformedDelta).
			AddDetails("opcode output %d does not match declared target size %d", to, targetSize)
	}

	return nil
}

// TargetSize returns the target size declared by the indexed stream's
// header — the new base size a composing collapse step rewrites
// against.
func (idx *DeltaIndex) TargetSize() uint64 {
	return idx.targetSize
}

// sizeAt returns the output size of the entry at position i.
func (idx *DeltaIndex) sizeAt(i int) uint32 {
	if i == len(idx.entries)-1 {
		return idx.tailSize
	}
	return idx.entries[i+1].to - idx.entries[i].to
}

// opcodeAt re-parses the opcode living at entry i. Re-parsing (rather
// than caching a parsed Opcode per entry) keeps DeltaIndex's memory
// footprint to the DeltaInfo array alone, matching the source design.
func (idx *DeltaIndex) opcodeAt(i int) Opcode {
	op, _, err := ParseOpcode(idx.stream[idx.entries[i].dso:], idx.baseSize)
	if err != nil {
		// Build already validated every opcode in this stream; a
		// failure here means the backing stream was mutated after
		// Build, which is a caller contract violation.
		panic("delta: index stream mutated after Build: " + err.Error())
	}
	return op
}

// Locate returns the index of the entry covering target offset offset,
// and the offset relative to that entry's start. An entry e at index i
// covers offset iff e.to <= offset < e.to + size(e). As a special case,
// offset == TargetSize() returns the last entry with a relative offset
// equal to its size (one-past-end, used when a slice ends exactly at
// the target boundary).
//
// Grounded on original_source/_delta_apply.c's DIV_closest_chunk,
// reimplemented with sort.Search in place of the source's hand-rolled
// binary search.
func (idx *DeltaIndex) Locate(offset uint64) (index int, relOfs uint32) {
	n := len(idx.entries)
	i := sort.Search(n, func(i int) bool {
		return uint64(idx.entries[i].to) > offset
	})
	if i == 0 {
		return 0, uint32(offset)
	}
	i--
	return i, uint32(offset) - idx.entries[i].to
}

// SliceEncodedSize returns the number of bytes the encoded
// representation of the range [offset, offset+size) would occupy when
// emitted as a (possibly partial at both ends) sequence of opcodes
// drawn from this index.
//
// Grounded on original_source/_delta_apply.c's DIV_count_slice_bytes.
func (idx *DeltaIndex) SliceEncodedSize(offset, size uint64) int {
	total := 0
	idx.walkSlice(offset, size, func(op Opcode, relOfs, take uint32) {
		total += EncodedSizeSlice(op, relOfs, take)
	})
	return total
}

// SliceOpcodeCount returns the number of opcodes EmitSlice would write
// for the range [offset, offset+size) — i.e. how many chunks replace
// the single original COPY this slice re-expresses.
func (idx *DeltaIndex) SliceOpcodeCount(offset, size uint64) int {
	count := 0
	idx.walkSlice(offset, size, func(Opcode, uint32, uint32) {
		count++
	})
	return count
}

// EmitSlice writes the range [offset, offset+size) as a sequence of
// (possibly partial) opcodes into out, returning the number of bytes
// written. The caller must ensure len(out) >= SliceEncodedSize(offset,
// size); violating this, or offset+size exceeding TargetSize(), is a
// programming error.
//
// Grounded on original_source/_delta_apply.c's DIV_copy_slice_to.
func (idx *DeltaIndex) EmitSlice(out []byte, offset, size uint64) int {
	written := 0
	idx.walkSlice(offset, size, func(op Opcode, relOfs, take uint32) {
		written += EmitOpcodeSlice(out[written:], op, relOfs, take)
	})
	return written
}

// walkSlice visits each (possibly partial at either end) opcode
// covering [offset, offset+size) in order, calling fn with the opcode,
// the relative offset into its output the covered range starts at, and
// how many of its output bytes are covered.
func (idx *DeltaIndex) walkSlice(offset, size uint64, fn func(op Opcode, relOfs, take uint32)) {
	i, relOfs := idx.Locate(offset)
	remaining := size

	for remaining > 0 {
		op := idx.opcodeAt(i)
		entrySize := idx.sizeAt(i)
		avail := uint64(entrySize) - uint64(relOfs)
		take := avail
		if remaining < take {
			take = remaining
		}

		fn(op, relOfs, uint32(take))
		remaining -= take
		relOfs = 0
		i++
	}
}
