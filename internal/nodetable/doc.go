// Package nodetable implements the fixed-capacity span table behind the heap.
//
// The table is an array of span records linked by index in increasing
// address order. Index 0 always holds the lowest span and the chain ends at a
// reserved sentinel index equal to the table capacity. A record with Size 0
// is an unused slot and is not part of the chain.
//
// # Ceilings
//
// The record fields carry the numeric limits of the packed span record they
// model: offsets fit in OffsetBits, sizes in SizeBits and links in NextBits.
// The limits are checked explicitly at construction and on every split and
// merge instead of being enforced by field width.
//
// # Hints
//
// Two cached hints speed up the hot paths:
//
//   - the slot hint: no unused slot has a lower index
//   - the span hint: no free span lies at a lower address
//
// Both are lower bounds and are maintained by every mutating method.
//
// The table is not safe for concurrent use.
package nodetable
