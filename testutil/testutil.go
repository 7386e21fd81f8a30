package testutil

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the seed the RNG was created with.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns, as an int, a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Size returns a pseudo-random allocation size in [1, maxSize].
// Small sizes are favored: half of the draws are below maxSize/16.
func (r *RNG) Size(maxSize uint64) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size(maxSize)
}

func (r *RNG) size(maxSize uint64) uint64 {
	if maxSize <= 1 {
		return 1
	}
	limit := maxSize
	if r.rand.Intn(2) == 0 && maxSize >= 16 {
		limit = maxSize / 16
	}
	return 1 + r.rand.Uint64()%limit
}

// Shuffle pseudo-randomizes the order of n elements using swap.
func (r *RNG) Shuffle(n int, swap func(i, j int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Shuffle(n, swap)
}

// OpKind is the kind of a workload step.
type OpKind uint8

const (
	// OpAllocate allocates Op.Size bytes.
	OpAllocate OpKind = iota
	// OpRelease releases a live allocation chosen by Op.Victim.
	OpRelease
)

func (k OpKind) String() string {
	switch k {
	case OpAllocate:
		return "allocate"
	case OpRelease:
		return "release"
	default:
		return fmt.Sprintf("OpKind(%d)", uint8(k))
	}
}

// Op is one step of a workload.
type Op struct {
	Kind OpKind
	// Size is the request size for OpAllocate.
	Size uint64
	// Victim selects the live allocation for OpRelease, modulo the number
	// of live allocations at that point.
	Victim int
}

// Workload generates n random steps. allocBias is the probability of an
// allocation; sizes are drawn with Size(maxSize).
func (r *RNG) Workload(n int, maxSize uint64, allocBias float64) []Op {
	r.mu.Lock()
	defer r.mu.Unlock()

	ops := make([]Op, n)
	for i := range ops {
		if r.rand.Float64() < allocBias {
			ops[i] = Op{Kind: OpAllocate, Size: r.size(maxSize)}
		} else {
			ops[i] = Op{Kind: OpRelease, Victim: r.rand.Int()}
		}
	}
	return ops
}

// Range is a half-open byte range.
type Range struct {
	Start, End uint64
}

// Overlapping returns the first pair of ranges that intersect, or false if
// the ranges are pairwise disjoint. The input is not modified.
func Overlapping(ranges []Range) (Range, Range, bool) {
	sorted := append([]Range(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Start < sorted[i-1].End {
			return sorted[i-1], sorted[i], true
		}
	}
	return Range{}, Range{}, false
}
