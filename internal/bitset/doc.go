// Package bitset provides a fixed-size bitset with forward scanning.
//
// Used internally for:
//   - Free-slot tracking in the span node table (set bit = unused slot)
//
// The bitset is not safe for concurrent use; callers serialize access
// under their own lock.
package bitset
