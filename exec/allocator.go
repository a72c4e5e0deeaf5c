package exec

import (
	"errors"
	"sync"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"
)

// ErrAllocationLimit is returned by a CountingAllocator that refuses a request.
var ErrAllocationLimit = errors.New("allocation limit exceeded")

// CountingAllocator is a wasm.Allocator that accounts for the buffers it hands out. It can be limited to a number
// of live bytes or made to fail after a number of successful requests.
type CountingAllocator struct {
	// Limit bounds the live bytes. Zero means unlimited.
	Limit int
	// FailAfter makes every request after the first FailAfter fail. Zero or less never fails.
	FailAfter int

	m        sync.Mutex
	live     map[*byte]int
	bytes    int
	requests int
}

var _ wasm.Allocator = (*CountingAllocator)(nil)

func key(buf []byte) *byte {
	buf = buf[:cap(buf)]
	if len(buf) == 0 {
		return nil
	}
	return &buf[0]
}

func (a *CountingAllocator) admit(size int) error {
	a.requests++
	if a.FailAfter > 0 && a.requests > a.FailAfter {
		return ErrAllocationLimit
	}
	if a.Limit > 0 && a.bytes+size > a.Limit {
		return ErrAllocationLimit
	}
	return nil
}

func (a *CountingAllocator) track(buf []byte) {
	if a.live == nil {
		a.live = map[*byte]int{}
	}
	if k := key(buf); k != nil {
		a.live[k] = cap(buf)
		a.bytes += cap(buf)
	}
}

func (a *CountingAllocator) untrack(buf []byte) {
	k := key(buf)
	if n, ok := a.live[k]; ok {
		delete(a.live, k)
		a.bytes -= n
	}
}

func (a *CountingAllocator) Allocate(size int) ([]byte, error) {
	a.m.Lock()
	defer a.m.Unlock()

	if err := a.admit(size); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	a.track(buf)
	return buf, nil
}

func (a *CountingAllocator) Reallocate(buf []byte, size int) ([]byte, error) {
	a.m.Lock()
	defer a.m.Unlock()

	if err := a.admit(size - cap(buf)); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, buf)
	a.untrack(buf)
	a.track(out)
	return out, nil
}

func (a *CountingAllocator) Free(buf []byte) {
	a.m.Lock()
	defer a.m.Unlock()

	a.untrack(buf)
}

// LiveBytes returns the bytes allocated and not yet freed.
func (a *CountingAllocator) LiveBytes() int {
	a.m.Lock()
	defer a.m.Unlock()
	return a.bytes
}

// Outstanding returns the number of buffers allocated and not yet freed.
func (a *CountingAllocator) Outstanding() int {
	a.m.Lock()
	defer a.m.Unlock()
	return len(a.live)
}

// Requests returns the number of Allocate and Reallocate calls made so far.
func (a *CountingAllocator) Requests() int {
	a.m.Lock()
	defer a.m.Unlock()
	return a.requests
}
