package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeLEB128(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    []byte
		want     uint64
		wantRest []byte
	}{
		{
			name:     "single byte, small number",
			input:    []byte{0x01, 0xFF},
			want:     1,
			wantRest: []byte{0xFF},
		},
		{
			name:     "single byte, max value without continuation",
			input:    []byte{0x7F, 0xFF},
			want:     127,
			wantRest: []byte{0xFF},
		},
		{
			name:     "two bytes",
			input:    []byte{0x80, 0x01, 0xFF},
			want:     128,
			wantRest: []byte{0xFF},
		},
		{
			name:     "two bytes, larger number",
			input:    []byte{0xFF, 0x01, 0xFF},
			want:     255,
			wantRest: []byte{0xFF},
		},
		{
			name:     "three bytes",
			input:    []byte{0x80, 0x80, 0x01, 0xFF},
			want:     16384,
			wantRest: []byte{0xFF},
		},
		{
			name:     "empty remaining bytes",
			input:    []byte{0x01},
			want:     1,
			wantRest: []byte{},
		},
		{
			name:     "empty input",
			input:    []byte{},
			want:     0,
			wantRest: []byte{},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			gotNum, gotRest := decodeLEB128(tc.input)
			assert.Equal(t, tc.want, gotNum, "decoded number mismatch")
			assert.Equal(t, tc.wantRest, gotRest, "remaining bytes mismatch")
		})
	}
}

func TestDecodeVarintChecked_Truncation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{"empty input", []byte{}},
		{"continuation bit set, no following byte", []byte{0x80}},
		{"continuation bit set through every byte", []byte{0x80, 0x80, 0x80}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, _, ok := decodeVarintChecked(tc.input)
			assert.False(t, ok)
		})
	}
}

func TestAppendVarint_RoundTrip(t *testing.T) {
	t.Parallel()

	values := []uint64{0, 1, 127, 128, 255, 16384, 1 << 20, 1<<32 - 1}
	for _, v := range values {
		v := v
		t.Run("", func(t *testing.T) {
			t.Parallel()

			encoded := appendVarint(nil, v)
			got, rest := decodeLEB128(encoded)
			assert.Equal(t, v, got)
			assert.Empty(t, rest)
		})
	}
}

func TestReadHeader(t *testing.T) {
	t.Parallel()

	stream := appendVarint(nil, 100)
	stream = appendVarint(stream, 200)
	stream = append(stream, 0xAA)

	baseSize, targetSize, cursor, err := readHeader(stream)
	assert.NoError(t, err)
	assert.EqualValues(t, 100, baseSize)
	assert.EqualValues(t, 200, targetSize)
	assert.Equal(t, len(stream)-1, cursor)
}

func TestReadHeader_Truncated(t *testing.T) {
	t.Parallel()

	_, _, _, err := readHeader([]byte{0x80})
	assert.ErrorIs(t, err, ErrMalformedDelta)
}

func TestReadHeader_Oversized(t *testing.T) {
	t.Parallel()

	stream := appendVarint(nil, uint64(1)<<40)
	stream = appendVarint(stream, 1)

	_, _, _, err := readHeader(stream)
	assert.ErrorIs(t, err, ErrOversizedDelta)
}
