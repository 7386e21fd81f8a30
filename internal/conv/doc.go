// Package conv provides safe integer type conversion utilities.
//
// These functions perform bounds checking to prevent integer overflow
// when converting between widths at the heap's boundaries: byte sizes to
// unit counts, addresses to offsets, and decoded dump fields to lengths.
//
// For conversions that are provably safe by domain constraints (e.g. values
// already checked against a table ceiling), use direct type casts instead.
package conv
