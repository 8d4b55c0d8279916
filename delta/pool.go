package delta

import "sync"

// recordPool recycles the scratch array the size-planning pass of a
// collapse step uses to remember each original opcode's position and
// its planned new length before the back-to-front rewrite. It is
// acquired once per collapse step and returned immediately after,
// shared across Collapser instances the same way the teacher's
// package-level bufPool (common.go) and utils/sync/bytes.go's
// byteSlice/bytesBuffer pools are shared across calls.
var recordPool = sync.Pool{
	New: func() interface{} {
		s := make([]opRecord, 0, deltaInfoGrowFloor)
		return &s
	},
}

// getRecordSlice returns a pooled scratch slice with capacity at least
// floor, reallocating if the pooled instance is smaller. This is how
// WithGrowthFloor's configured value reaches the size-planning pass's
// scratch allocation, not just DeltaIndex's.
func getRecordSlice(floor int) *[]opRecord {
	s := recordPool.Get().(*[]opRecord)
	if cap(*s) < floor {
		grown := make([]opRecord, 0, floor)
		*s = grown
	}
	return s
}

func putRecordSlice(s *[]opRecord) {
	if s == nil {
		return
	}
	*s = (*s)[:0]
	recordPool.Put(s)
}
