package wasm

import "sync"

const branchCacheSize = 64

type branchCacheEntry struct {
	fn       *Function
	start    uint32
	elseAddr uint32
	endAddr  uint32
	valid    bool
}

// BranchCache memoizes the else and end offsets of blocks in raw function bodies. It has a fixed number of slots;
// a lookup that collides with a different block misses and the caller falls back to scanning the body. Each module
// carries one for the execution engine; see code.FindBlockEnd.
type BranchCache struct {
	mu      sync.Mutex
	entries [branchCacheSize]branchCacheEntry
}

func branchCacheSlot(fn *Function, start uint32) int {
	return int((uint64(start) ^ uint64(fn.TypeIndex)<<7 ^ uint64(len(fn.Body))) % branchCacheSize)
}

// Lookup returns the cached else and end offsets for the block starting at start in fn's body.
func (c *BranchCache) Lookup(fn *Function, start uint32) (elseAddr, endAddr uint32, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &c.entries[branchCacheSlot(fn, start)]
	if !e.valid || e.fn != fn || e.start != start {
		return 0, 0, false
	}
	return e.elseAddr, e.endAddr, true
}

// Insert records the else and end offsets of a block, replacing whatever occupied its slot.
func (c *BranchCache) Insert(fn *Function, start, elseAddr, endAddr uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[branchCacheSlot(fn, start)] = branchCacheEntry{
		fn:       fn,
		start:    start,
		elseAddr: elseAddr,
		endAddr:  endAddr,
		valid:    true,
	}
}
