package wasm

// Options configures DecodeModule.
type Options struct {
	// Features gates the encodings and opcodes the decoder accepts.
	Features Features

	// CloneInput copies data segment payloads, custom sections and function bodies out of the input buffer so that
	// the module does not alias it.
	CloneInput bool

	// MemoryPoolSize bounds the default maximum size of memories that do not declare one.
	MemoryPoolSize uint64

	Resolver  Resolver
	Allocator Allocator
}

// DefaultMemoryPoolSize is used when Options.MemoryPoolSize is zero.
const DefaultMemoryPoolSize = 4 << 30

// DefaultOptions returns options enabling DefaultFeatures with heap allocation and no import resolution.
func DefaultOptions() Options {
	return Options{
		Features:       DefaultFeatures,
		MemoryPoolSize: DefaultMemoryPoolSize,
		Allocator:      HeapAllocator,
	}
}
