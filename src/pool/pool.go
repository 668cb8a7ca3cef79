// Package pool implements a chunked, fixed-type object reservoir.
//
// It hands out reusable slots for hot-path allocation (order book Orders
// and Levels) instead of going through the general-purpose allocator on
// every submit/cancel. Acquire and release are O(1) amortised; growth
// happens in whole chunks so the steady-state path never allocates.
package pool

// Stats reports point-in-time counters for a Pool, mirroring the
// hit/miss accounting used by pooled allocators elsewhere in the stack.
type Stats struct {
	Acquired  uint64 // total acquire() calls
	Released  uint64 // total release() calls
	Hits      uint64 // acquire() calls served from the free list
	Misses    uint64 // acquire() calls that triggered a chunk grow
	ChunkSize int    // slots added per grow
	Chunks    int    // number of chunks allocated so far
	InUse     int    // Acquired - Released
}

// Pool is a fixed-chunk reservoir for *T slots. It is not safe for
// concurrent use; the matching engine that owns a Pool is itself
// specified single-threaded (see the engine package), so the free list
// here is a plain LIFO slice rather than a lock-free stack.
type Pool[T any] struct {
	chunkSize int
	chunks    [][]T
	free      []*T

	acquired uint64
	released uint64
	hits     uint64
	misses   uint64
}

// New creates a Pool that grows by chunkSize slots at a time, pre-warmed
// with one chunk so the first wave of acquires never grows.
func New[T any](chunkSize int) *Pool[T] {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	p := &Pool[T]{chunkSize: chunkSize}
	p.grow()
	return p
}

// Acquire yields a zeroed, writable *T drawn from the free list (growing
// the reservoir by one chunk first if it is empty). The caller must
// fully populate every field that matters before the slot becomes
// visible outside the pool (e.g. before inserting it into a Level or the
// Book's index).
func (p *Pool[T]) Acquire() *T {
	p.acquired++
	if len(p.free) == 0 {
		p.misses++
		p.grow()
	} else {
		p.hits++
	}
	n := len(p.free) - 1
	slot := p.free[n]
	p.free = p.free[:n]
	*slot = *new(T) // zero the slot; guards against stale links from a prior tenant
	return slot
}

// Release returns slot to the pool. The caller guarantees slot is
// unreferenced anywhere else (unlinked from its Level, erased from the
// Book's index) before calling Release.
func (p *Pool[T]) Release(slot *T) {
	if slot == nil {
		return
	}
	p.released++
	p.free = append(p.free, slot)
}

// Stats returns a snapshot of the pool's allocation counters.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Acquired:  p.acquired,
		Released:  p.released,
		Hits:      p.hits,
		Misses:    p.misses,
		ChunkSize: p.chunkSize,
		Chunks:    len(p.chunks),
		InUse:     int(p.acquired - p.released),
	}
}

// grow appends a new chunk and pushes all of its slots onto the free
// list. Chunk allocation can only fail by panicking (Go's allocator has
// no other failure mode); callers that need a recoverable allocation
// failure should wrap New/Acquire behind their own recover.
func (p *Pool[T]) grow() {
	chunk := make([]T, p.chunkSize)
	p.chunks = append(p.chunks, chunk)
	for i := range chunk {
		p.free = append(p.free, &chunk[i])
	}
}
