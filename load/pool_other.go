//go:build !linux

package load

import "github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"

func defaultMemoryPoolSize() uint64 {
	return wasm.DefaultMemoryPoolSize
}
