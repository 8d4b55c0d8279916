// Package delta implements the git packfile delta format: parsing and
// emitting the COPY/INSERT opcode stream, indexing a single delta stream
// for O(log n) range lookups, and collapsing an arbitrary-length chain of
// deltas into one delta equivalent to applying the whole chain.
//
// See https://github.com/git/git/blob/master/delta.h and
// https://github.com/gitpython-developers/gitdb for background on the
// wire format this package implements.
package delta
