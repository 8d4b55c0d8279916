package delta

// buildDelta assembles a well-formed delta stream from a header and an
// ordered list of opcodes, for use as test fixtures across this package's
// test files.
func buildDelta(baseSize, targetSize uint64, ops []Opcode) []byte {
	out := appendVarint(nil, baseSize)
	out = appendVarint(out, targetSize)
	for _, op := range ops {
		buf := make([]byte, EncodedSize(op))
		n := EmitOpcode(buf, op)
		out = append(out, buf[:n]...)
	}
	return out
}

func insertOp(data []byte) Opcode {
	return Opcode{Kind: OpInsert, Data: data}
}

func copyOp(offset, size uint32) Opcode {
	return Opcode{Kind: OpCopy, SourceOffset: offset, Size: size}
}
