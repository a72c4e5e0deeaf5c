package wasm

// Allocator provides the byte buffers a module owns: cloned data segment payloads, cloned custom sections and
// function bodies, and rewritten code. Fresh memory must be zero-filled. An allocator that cannot satisfy a request
// returns an error; the loader then releases everything it allocated and fails the load with ErrAllocationFailed.
type Allocator interface {
	Allocate(size int) ([]byte, error)
	// Reallocate resizes buf, preserving its contents up to the smaller of the two sizes.
	Reallocate(buf []byte, size int) ([]byte, error)
	Free(buf []byte)
}

// HeapAllocator allocates from the Go heap.
var HeapAllocator Allocator = heapAllocator{}

type heapAllocator struct{}

func (heapAllocator) Allocate(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func (heapAllocator) Reallocate(buf []byte, size int) ([]byte, error) {
	if size <= cap(buf) {
		old := len(buf)
		buf = buf[:size]
		for i := old; i < size; i++ {
			buf[i] = 0
		}
		return buf, nil
	}
	b := make([]byte, size)
	copy(b, buf)
	return b, nil
}

func (heapAllocator) Free(buf []byte) {}
