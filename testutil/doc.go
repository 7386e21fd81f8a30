// Package testutil provides testing utilities for vmheap.
//
// This package is intended for tests, benchmarks and the demo workload of
// the vmheapdump tool. It provides a seeded, thread-safe RNG and a random
// allocate/release workload generator.
//
// # Random Workloads
//
//	rng := testutil.NewRNG(seed)
//	for _, op := range rng.Workload(1000, 4096, 0.6) {
//		switch op.Kind {
//		case testutil.OpAllocate:
//			// allocate op.Size bytes
//		case testutil.OpRelease:
//			// release live allocation number op.Victim % len(live)
//		}
//	}
package testutil
