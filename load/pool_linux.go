package load

import (
	"golang.org/x/sys/unix"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"
)

// defaultMemoryPoolSize returns the host's physical memory, which bounds how large an undeclared memory may grow.
func defaultMemoryPoolSize() uint64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil || info.Totalram == 0 {
		return wasm.DefaultMemoryPoolSize
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	return uint64(info.Totalram) * unit
}
