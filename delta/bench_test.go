package delta

import (
	"fmt"
	"io"
	"testing"
)

// chainOfDups builds a chain of levels deltas, each duplicating every
// byte of its base (as in TestConnectBuffers_ChainOfFour_GrowsStream),
// starting from a base of the given size.
func chainOfDups(levels int, baseSize uint32) (base []byte, chain [][]byte) {
	base = make([]byte, baseSize)
	for i := range base {
		base[i] = byte(i)
	}

	sizes := make([]uint32, levels+1)
	sizes[0] = baseSize
	for i := 1; i <= levels; i++ {
		sizes[i] = sizes[i-1] * 2
	}

	chain = make([][]byte, levels)
	for lvl := 0; lvl < levels; lvl++ {
		from := sizes[lvl]
		ops := make([]Opcode, 0, from*2)
		for i := uint32(0); i < from; i++ {
			ops = append(ops, copyOp(i, 1), copyOp(i, 1))
		}
		// chain[0] is topmost: it applies against the output of chain[1],
		// so it duplicates the largest base.
		chain[levels-1-lvl] = buildDelta(uint64(from), uint64(from)*2, ops)
	}
	return base, chain
}

func benchmarkConnectBuffers(b *testing.B, levels int) {
	base, chain := chainOfDups(levels, 16)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h, err := ConnectBuffers(chain)
		if err != nil {
			b.Fatal(err)
		}
		if err := h.Apply(base, io.Discard); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkConnectBuffers tracks per-op cost as chain length grows, to
// catch a regression toward quadratic behaviour in collapseStep.
func BenchmarkConnectBuffers(b *testing.B) {
	for _, levels := range []int{1, 2, 3, 4, 5, 6} {
		levels := levels
		b.Run(fmt.Sprintf("levels=%d", levels), func(b *testing.B) {
			benchmarkConnectBuffers(b, levels)
		})
	}
}

func BenchmarkPatchDelta(b *testing.B) {
	base := make([]byte, 4096)
	ops := make([]Opcode, 0, 64)
	for i := 0; i < 64; i++ {
		ops = append(ops, copyOp(uint32(i*64), 64))
	}
	d := buildDelta(uint64(len(base)), 4096, ops)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := PatchDelta(base, d); err != nil {
			b.Fatal(err)
		}
	}
}
