package delta

// maxCopySize is the value a wire-form COPY size of 0 expands to.
const maxCopySize = 0x10000

// offset and size presence bits within a COPY command byte.
type presenceBit struct {
	mask  byte
	shift uint
}

var offsetBits = [4]presenceBit{
	{mask: 0x01, shift: 0},
	{mask: 0x02, shift: 8},
	{mask: 0x04, shift: 16},
	{mask: 0x08, shift: 24},
}

var sizeBits = [3]presenceBit{
	{mask: 0x10, shift: 0},
	{mask: 0x20, shift: 8},
	{mask: 0x40, shift: 16},
}

// OpKind distinguishes the two delta opcodes.
type OpKind uint8

const (
	// OpCopy copies a range of the base buffer to the target.
	OpCopy OpKind = iota
	// OpInsert copies literal bytes embedded in the delta stream.
	OpInsert
)

// Opcode is a single parsed COPY or INSERT instruction. For OpCopy,
// SourceOffset/Size describe the base range to copy. For OpInsert, Data
// is a slice borrowed directly from the delta stream's backing array —
// callers must not retain it past the lifetime of that stream.
type Opcode struct {
	Kind         OpKind
	SourceOffset uint32
	Size         uint32
	Data         []byte
}

// OutputSize returns the number of target bytes this opcode produces.
func (op Opcode) OutputSize() uint32 {
	if op.Kind == OpInsert {
		return uint32(len(op.Data))
	}
	return op.Size
}

// ParseOpcode reads one opcode starting at stream[0] and returns it
// along with the cursor just past it. It fails with ErrMalformedDelta
// on a zero command byte or truncation, and when a COPY's range would
// overflow or exceed baseSize.
//
// Grounded on plumbing/format/packfile/patch_delta.go's decodeOffset/
// decodeSize and isCopyFromSrc/isCopyFromDelta.
func ParseOpcode(stream []byte, baseSize uint64) (Opcode, int, error) {
	if len(stream) == 0 {
		return Opcode{}, 0, newError(ErrMalformedDelta).AddDetails("truncated opcode stream")
	}

	cmd := stream[0]
	cursor := 1

	if cmd&0x80 != 0 {
		var offset, size uint32
		for _, b := range offsetBits {
			if cmd&b.mask == 0 {
				continue
			}
			if cursor >= len(stream) {
				return Opcode{}, 0, newError(ErrMalformedDelta).AddDetails("truncated COPY offset byte")
			}
			offset |= uint32(stream[cursor]) << b.shift
			cursor++
		}
		for _, b := range sizeBits {
			if cmd&b.mask == 0 {
				continue
			}
			if cursor >= len(stream) {
				return Opcode{}, 0, newError(ErrMalformedDelta).AddDetails("truncated COPY size byte")
			}
			size |= uint32(stream[cursor]) << b.shift
			cursor++
		}
		if size == 0 {
			size = maxCopySize
		}

		end := uint64(offset) + uint64(size)
		if end < uint64(offset) || end > baseSize {
			return Opcode{}, 0, newError(ErrMalformedDelta).
				AddDetails("COPY [%d, %d) out of base range [0, %d)", offset, end, baseSize)
		}

		return Opcode{Kind: OpCopy, SourceOffset: offset, Size: size}, cursor, nil
	}

	if cmd == 0 {
		return Opcode{}, 0, newError(ErrMalformedDelta).AddDetails("zero command byte")
	}

	// INSERT: cmd is itself the literal length, 1..127.
	n := int(cmd)
	if cursor+n > len(stream) {
		return Opcode{}, 0, newError(ErrMalformedDelta).AddDetails("truncated INSERT payload")
	}
	return Opcode{Kind: OpInsert, Data: stream[cursor : cursor+n]}, cursor + n, nil
}

// EncodedSize returns the number of bytes EmitOpcode would write for op.
//
// The source's DC_count_encode_bytes sums bits rather than bytes of the
// offset/size (`ts & 0x000000FF` used as a truthy mask over individual
// bits instead of a byte-presence test) — that is a bug, not the
// intended semantics, per spec. This implementation uses byte-wise
// presence instead.
func EncodedSize(op Opcode) int {
	if op.Kind == OpInsert {
		return 1 + len(op.Data)
	}

	n := 1
	so, sz := op.SourceOffset, op.Size
	if so&0x000000ff != 0 {
		n++
	}
	if so&0x0000ff00 != 0 {
		n++
	}
	if so&0x00ff0000 != 0 {
		n++
	}
	if so&0xff000000 != 0 {
		n++
	}
	if sz&0x00ff != 0 {
		n++
	}
	if sz&0xff00 != 0 {
		n++
	}
	// The third size byte (mask 0x40) is never needed: size is capped at
	// maxCopySize (0x10000) by the size==0 wrap rule, which never sets
	// bit 16 and above.
	return n
}

// EmitOpcode writes the minimal encoding of op into out and returns the
// number of bytes written, which always equals EncodedSize(op).
//
// Grounded on plumbing/format/packfile/diff_delta.go's
// encodeCopyOperation.
func EmitOpcode(out []byte, op Opcode) int {
	return EmitOpcodeSlice(out, op, 0, op.OutputSize())
}

// EmitOpcodeSlice writes the minimal encoding of the sub-range
// [relOfs, relOfs+partialSize) of op's output into out, re-based so the
// emitted opcode reproduces exactly those bytes. For a COPY this shifts
// SourceOffset by relOfs; for an INSERT it slices Data. Returns the
// number of bytes written.
//
// Grounded on original_source/_delta_apply.c's DC_encode_to.
func EmitOpcodeSlice(out []byte, op Opcode, relOfs, partialSize uint32) int {
	if op.Kind == OpInsert {
		data := op.Data[relOfs : relOfs+partialSize]
		out[0] = byte(len(data))
		copy(out[1:], data)
		return 1 + len(data)
	}

	so := op.SourceOffset + relOfs
	sz := partialSize

	cmd := byte(0x80)
	n := 1
	if so&0x000000ff != 0 {
		out[n] = byte(so)
		cmd |= 0x01
		n++
	}
	if so&0x0000ff00 != 0 {
		out[n] = byte(so >> 8)
		cmd |= 0x02
		n++
	}
	if so&0x00ff0000 != 0 {
		out[n] = byte(so >> 16)
		cmd |= 0x04
		n++
	}
	if so&0xff000000 != 0 {
		out[n] = byte(so >> 24)
		cmd |= 0x08
		n++
	}
	if sz&0x00ff != 0 {
		out[n] = byte(sz)
		cmd |= 0x10
		n++
	}
	if sz&0xff00 != 0 {
		out[n] = byte(sz >> 8)
		cmd |= 0x20
		n++
	}
	out[0] = cmd
	return n
}

// EncodedSizeSlice returns the byte count EmitOpcodeSlice would write
// for the same arguments, without writing anything.
func EncodedSizeSlice(op Opcode, relOfs, partialSize uint32) int {
	if op.Kind == OpInsert {
		return 1 + int(partialSize)
	}

	so := op.SourceOffset + relOfs
	sz := partialSize

	n := 1
	if so&0x000000ff != 0 {
		n++
	}
	if so&0x0000ff00 != 0 {
		n++
	}
	if so&0x00ff0000 != 0 {
		n++
	}
	if so&0xff000000 != 0 {
		n++
	}
	if sz&0x00ff != 0 {
		n++
	}
	if sz&0xff00 != 0 {
		n++
	}
	return n
}
