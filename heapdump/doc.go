// Package heapdump encodes and decodes binary snapshots of a heap's span table.
//
// A dump records the arena geometry and every span of the chain in address
// order. It is produced by Heap.WriteDump and read back by the vmheapdump
// tool for offline inspection and verification.
//
// # Format
//
//	magic "VMHD" | version u16 | compression u8 | reserved u8
//	rawLen u32 | payloadLen u32 | crc32(raw) u32 | payload
//
// The payload decompresses to the little-endian body:
//
//	arenaBase u64 | arenaSize u64 | unitSize u32 | capacity u32 | maxSpanUnits u32
//	count u32 | count * (index u32 | offset u32 | size u32 | next u32 | free u8)
//
// Offsets and sizes are in units. When compression does not shrink the body
// it is stored uncompressed and the header says so.
package heapdump
