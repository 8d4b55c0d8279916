package delta

const (
	varintPayloadMask  = 0x7f
	varintContinueMask = 0x80
	maxStreamSize      = uint64(1) << 32 // streams bounded to <= 2^32
)

// decodeLEB128 decodes an unsigned little-endian-group MSB-varint from
// the front of input: 7 payload bits per byte, continuation in the high
// bit. Returns the decoded value and the remaining bytes.
//
// Grounded on plumbing/format/packfile/util.DecodeLEB128.
func decodeLEB128(input []byte) (uint64, []byte) {
	v, rest, _ := decodeVarintChecked(input)
	return v, rest
}

// decodeVarintChecked is decodeLEB128 with truncation detection: ok is
// false when input ran out while the continuation bit was still set
// (including on an empty input), as opposed to decodeLEB128's silent
// "number of what was available" behaviour.
func decodeVarintChecked(input []byte) (num uint64, rest []byte, ok bool) {
	if len(input) == 0 {
		return 0, input, false
	}

	var shift uint
	var i int
	for {
		b := input[i]
		num |= uint64(b&varintPayloadMask) << shift
		i++
		if b&varintContinueMask == 0 {
			return num, input[i:], true
		}
		if i == len(input) {
			return num, input[i:], false
		}
		shift += 7
	}
}

// appendVarint appends the MSB-varint encoding of size to out.
//
// Grounded on plumbing/format/packfile/diff_delta.go's deltaEncodeSize.
func appendVarint(out []byte, size uint64) []byte {
	c := size & varintPayloadMask
	size >>= 7
	for size != 0 {
		out = append(out, byte(c|varintContinueMask))
		c = size & varintPayloadMask
		size >>= 7
	}
	return append(out, byte(c))
}

// readHeader consumes the two MSB-varints (baseSize, targetSize) at the
// front of a delta stream and returns them plus the cursor immediately
// following the header.
func readHeader(stream []byte) (baseSize, targetSize uint64, cursor int, err error) {
	baseSize, rest, ok := decodeVarintChecked(stream)
	if !ok {
		return 0, 0, 0, newError(ErrMalformedDelta).AddDetails("truncated base size header")
	}
	if baseSize > maxStreamSize {
		return 0, 0, 0, newError(ErrOversizedDelta).AddDetails("base size %d exceeds 2^32", baseSize)
	}

	targetSize, rest2, ok := decodeVarintChecked(rest)
	if !ok {
		return 0, 0, 0, newError(ErrMalformedDelta).AddDetails("truncated target size header")
	}
	if targetSize > maxStreamSize {
		return 0, 0, 0, newError(ErrOversizedDelta).AddDetails("target size %d exceeds 2^32", targetSize)
	}

	return baseSize, targetSize, len(stream) - len(rest2), nil
}
