package delta

import (
	"bytes"
	"io"
)

// ApplyDelta writes to target the result of applying delta to base. It
// is a pure function: it does not retain base or delta past the call,
// and performs no allocation beyond what target's Writer needs.
//
// Grounded on plumbing/format/packfile/patch_delta.go's patchDelta,
// and original_source/_delta_apply.c's apply_delta.
func ApplyDelta(target io.Writer, base, delta []byte) error {
	baseSize, targetSize, cursor, err := readHeader(delta)
	if err != nil {
		return err
	}
	if baseSize != uint64(len(base)) {
		return newError(ErrMalformedDelta).
			AddDetails("delta base size %d does not match supplied base of %d bytes", baseSize, len(base))
	}

	var written uint64
	pos := cursor
	for pos < len(delta) {
		op, next, err := ParseOpcode(delta[pos:], baseSize)
		if err != nil {
			return err
		}
		pos += next

		switch op.Kind {
		case OpCopy:
			if _, err := target.Write(base[op.SourceOffset : op.SourceOffset+op.Size]); err != nil {
				return err
			}
			written += uint64(op.Size)
		case OpInsert:
			if _, err := target.Write(op.Data); err != nil {
				return err
			}
			written += uint64(len(op.Data))
		}
	}

	if written != targetSize {
		return newError(ErrMalformedDelta).
			AddDetails("opcode output %d does not match declared target size %d", written, targetSize)
	}

	return nil
}

// PatchDelta returns the result of applying delta to base as a freshly
// allocated byte slice.
func PatchDelta(base, delta []byte) ([]byte, error) {
	if len(delta) == 0 {
		return nil, newError(ErrMalformedDelta).AddDetails("empty delta stream")
	}

	var buf bytes.Buffer
	if err := ApplyDelta(&buf, base, delta); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
