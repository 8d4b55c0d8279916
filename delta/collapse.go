package delta

import "io"

// CollapseOption configures a Collapser. Grounded on the teacher's
// functional-options idiom (plumbing/format/packfile/parser_options.go,
// scanner_options.go).
type CollapseOption func(*collapseConfig)

type collapseConfig struct {
	growthFloor int
}

// WithGrowthFloor overrides the minimum initial capacity, in entries,
// of both the DeltaIndex built over each incoming delta and the
// size-planning pass's scratch opRecord slice (default 100, matching
// the source's gDIV_grow_by). It exists to let callers tune allocation
// behaviour for workloads dominated by either many tiny deltas or few
// huge ones; it never changes the bytes a collapse produces.
func WithGrowthFloor(n int) CollapseOption {
	return func(c *collapseConfig) {
		if n > 0 {
			c.growthFloor = n
		}
	}
}

func defaultCollapseConfig() collapseConfig {
	return collapseConfig{growthFloor: deltaInfoGrowFloor}
}

// StreamSource yields delta stream buffers in chain order, topmost
// first: the first buffer's target is the caller's desired output, and
// each subsequent buffer's target is the previous buffer's base.
//
// Modeled on the source's use of PyIter_Next over an arbitrary Python
// iterable (connect_deltas); Go's analogue is a small pull interface so
// a read failure on any one item can be reported distinctly from
// reaching the end.
type StreamSource interface {
	// Next returns the next stream, or ok=false when the source is
	// exhausted. A non-nil err aborts the collapse with
	// ErrIteratorFailure.
	Next() (data []byte, ok bool, err error)
}

// sliceSource adapts a [][]byte to StreamSource.
type sliceSource struct {
	streams [][]byte
	pos     int
}

func (s *sliceSource) Next() ([]byte, bool, error) {
	if s.pos >= len(s.streams) {
		return nil, false, nil
	}
	d := s.streams[s.pos]
	s.pos++
	return d, true, nil
}

// Handle is the result of collapsing a delta chain: a single delta
// stream equivalent to the whole chain, exposing its target size and
// the ability to apply it against the chain's ultimate base.
type Handle interface {
	// RBound reports the total number of bytes this delta produces
	// when applied.
	RBound() uint64
	// Apply reconstructs the target by applying this delta to base,
	// writing the result to w.
	Apply(base []byte, w io.Writer) error
}

// opRecord is the size-planning pass's scratch record for one opcode of
// the stream being rewritten: where it starts, how long its current
// encoding is, and how long its replacement will be.
type opRecord struct {
	pos         int    // offset of this opcode in the stream being rewritten, before growth
	origLen     int    // bytes this opcode currently occupies
	newLen      int    // bytes its replacement will occupy
	op          Opcode // the parsed opcode
	shiftBefore int    // cumulative byte growth from all earlier opcodes; newPos = pos + shiftBefore
}

// Stream is the growable top-level delta stream a Collapser rewrites in
// place. It starts out borrowed (aliasing the caller's first buffer)
// and transitions to owned on the first composition step.
//
// Grounded on original_source/_delta_apply.c's ToplevelStreamInfo.
type Stream struct {
	buf        []byte
	cstart     int    // offset where the opcode body begins
	targetSize uint64 // final target size; immutable across the whole chain
	baseSize   uint64 // size of the base this stream's opcodes currently reference
	numChunks  int
	owned      bool
}

func newStream(first []byte) (*Stream, error) {
	baseSize, targetSize, cursor, err := readHeader(first)
	if err != nil {
		return nil, err
	}

	s := &Stream{
		buf:        first,
		cstart:     cursor,
		targetSize: targetSize,
		baseSize:   baseSize,
	}

	var produced uint64
	pos := cursor
	for pos < len(first) {
		op, n, err := ParseOpcode(first[pos:], baseSize)
		if err != nil {
			return nil, err
		}
		produced += uint64(op.OutputSize())
		pos += n
		s.numChunks++
	}
	if produced != targetSize {
		return nil, newError(ErrMalformedDelta).
			AddDetails("opcode output %d does not match declared target size %d", produced, targetSize)
	}

	return s, nil
}

// RBound implements Handle.
func (s *Stream) RBound() uint64 {
	return s.targetSize
}

// Apply implements Handle: it walks the stream's current opcode body
// directly (the header bytes preceding cstart are stale once any
// composition has happened and are never consulted again, matching
// ToplevelStreamInfo's treatment of its header).
func (s *Stream) Apply(base []byte, w io.Writer) error {
	if uint64(len(base)) != s.baseSize {
		return newError(ErrMalformedDelta).
			AddDetails("base of %d bytes does not match collapsed stream's base size %d", len(base), s.baseSize)
	}

	var written uint64
	pos := s.cstart
	for pos < len(s.buf) {
		op, n, err := ParseOpcode(s.buf[pos:], s.baseSize)
		if err != nil {
			return err
		}
		pos += n

		switch op.Kind {
		case OpCopy:
			if _, err := w.Write(base[op.SourceOffset : op.SourceOffset+op.Size]); err != nil {
				return err
			}
		case OpInsert:
			if _, err := w.Write(op.Data); err != nil {
				return err
			}
		}
		written += uint64(op.OutputSize())
	}

	if written != s.targetSize {
		return newError(ErrMalformedDelta).
			AddDetails("opcode output %d does not match target size %d", written, s.targetSize)
	}
	return nil
}

func (s *Stream) ensureOwned() {
	if s.owned {
		return
	}
	owned := make([]byte, len(s.buf))
	copy(owned, s.buf)
	s.buf = owned
	s.owned = true
}

// grow extends buf's used length to newLen, reallocating (geometric
// growth, at least doubling capacity, never shrinking it) if needed.
func (s *Stream) grow(newLen int) {
	if newLen <= len(s.buf) {
		s.buf = s.buf[:newLen]
		return
	}
	if cap(s.buf) >= newLen {
		s.buf = s.buf[:newLen]
		return
	}
	grown := make([]byte, newLen, max(newLen, cap(s.buf)*2))
	copy(grown, s.buf)
	s.buf = grown
}

// max is available as a builtin from Go 1.21 (this module's go.mod
// floor); no helper needed.

// Collapser holds the reusable scratch state (the DeltaIndex over the
// "next" delta in the chain) across the iterations of one Collapse
// call, per spec.md §3's "reused, memory retained" discipline.
type Collapser struct {
	idx DeltaIndex
	cfg collapseConfig
}

// NewCollapser constructs a Collapser. A Collapser is not safe for
// concurrent use; distinct Collapsers over disjoint data are
// independent.
func NewCollapser(opts ...CollapseOption) *Collapser {
	cfg := defaultCollapseConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &Collapser{cfg: cfg}
	c.idx.growthFloor = cfg.growthFloor
	return c
}

// Connect is the primary entry point: it drains streams (topmost
// first) and returns a Handle equivalent to applying the whole chain.
//
// Grounded on original_source/_delta_apply.c's connect_deltas.
func Connect(streams StreamSource, opts ...CollapseOption) (Handle, error) {
	c := NewCollapser(opts...)
	return c.Connect(streams)
}

// ConnectBuffers is a convenience wrapper over an in-memory chain.
func ConnectBuffers(streams [][]byte, opts ...CollapseOption) (Handle, error) {
	return Connect(&sliceSource{streams: streams}, opts...)
}

// Connect drains streams and collapses them against c's reusable
// scratch state.
func (c *Collapser) Connect(streams StreamSource) (Handle, error) {
	first, ok, err := streams.Next()
	if err != nil {
		return nil, newError(ErrIteratorFailure).AddDetails("%w", err)
	}
	if !ok {
		return nil, newError(ErrNoStreams)
	}
	if uint64(len(first)) > maxStreamSize {
		return nil, newError(ErrOversizedDelta).AddDetails("topmost delta is %d bytes", len(first))
	}

	top, err := newStream(first)
	if err != nil {
		return nil, err
	}

	for {
		next, ok, err := streams.Next()
		if err != nil {
			return nil, newError(ErrIteratorFailure).AddDetails("%w", err)
		}
		if !ok {
			break
		}
		if uint64(len(next)) > maxStreamSize {
			return nil, newError(ErrOversizedDelta).AddDetails("ancestor delta is %d bytes", len(next))
		}

		if err := c.collapseStep(top, next); err != nil {
			return nil, err
		}
	}

	return top, nil
}

// collapseStep rewrites top in place so every COPY it contains is
// replaced by the opcode sequence that reproduces the same bytes from
// next's base, per spec.md §4.3 steps 1-6.
func (c *Collapser) collapseStep(top *Stream, next []byte) error {
	// Step 1: materialise top if still borrowed.
	top.ensureOwned()

	// Step 2: build the index over the new delta.
	if err := c.idx.Build(next); err != nil {
		return err
	}
	if c.idx.TargetSize() != top.baseSize {
		return newError(ErrMalformedDelta).AddDetails(
			"chain mismatch: stream expects a base of %d bytes but the next delta targets %d",
			top.baseSize, c.idx.TargetSize())
	}

	// Step 3: size-planning pass, front-to-back over top's current body.
	records := getRecordSlice(c.cfg.growthFloor)
	defer putRecordSlice(records)

	var cumShift int
	var chunkDelta int
	pos := top.cstart
	for pos < len(top.buf) {
		op, n, err := ParseOpcode(top.buf[pos:], top.baseSize)
		if err != nil {
			return err
		}

		newLen := n
		opChunkDelta := 0
		if op.Kind == OpCopy {
			newLen = c.idx.SliceEncodedSize(uint64(op.SourceOffset), uint64(op.Size))
			opChunkDelta = c.idx.SliceOpcodeCount(uint64(op.SourceOffset), uint64(op.Size)) - 1
		}

		*records = append(*records, opRecord{
			pos:         pos,
			origLen:     n,
			newLen:      newLen,
			op:          op,
			shiftBefore: cumShift,
		})
		cumShift += newLen - n
		if cumShift < 0 {
			// The back-to-front rewrite below relies on shiftBefore never
			// going negative: a later opcode's rewritten position is only
			// guaranteed to fall at or after its own original start (never
			// into an earlier, not-yet-rewritten opcode's span) when every
			// prefix of shifts stays non-negative. A COPY whose rebased
			// encoding is cheaper than its original (smaller source offset
			// needing fewer presence bytes) can shrink the stream locally;
			// reject rather than risk the in-place memmove reading
			// already-overwritten bytes out from under a later INSERT.
			return newError(ErrMalformedDelta).AddDetails(
				"collapsed stream would shrink before byte offset %d in the rewritten body; "+
					"the in-place rewrite requires the stream to grow monotonically", pos+n)
		}
		chunkDelta += opChunkDelta
		pos += n
	}

	totalShift := cumShift

	// Step 4: grow top to its new total length.
	newBodyEnd := top.cstart + (len(top.buf) - top.cstart) + totalShift
	if uint64(newBodyEnd) > maxStreamSize {
		return newError(ErrOversizedDelta).AddDetails("collapsed stream would reach %d bytes", newBodyEnd)
	}
	top.grow(newBodyEnd)

	// Step 5: rewrite pass, back-to-front.
	for i := len(*records) - 1; i >= 0; i-- {
		r := (*records)[i]
		newPos := r.pos + r.shiftBefore

		if r.op.Kind == OpInsert {
			if newPos != r.pos {
				copy(top.buf[newPos:newPos+r.origLen], top.buf[r.pos:r.pos+r.origLen])
			}
			continue
		}

		written := c.idx.EmitSlice(top.buf[newPos:], uint64(r.op.SourceOffset), uint64(r.op.Size))
		if written != r.newLen {
			panic("delta: planned and emitted slice sizes disagree")
		}
	}

	// Step 6: update bookkeeping. top's opcodes now reference next's
	// base, so the base size they're expressed against changes too.
	top.numChunks += chunkDelta
	top.baseSize = c.idx.baseSize

	return nil
}

