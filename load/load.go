package load

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"

	"go.uber.org/zap"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/exec"
	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"
	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm/validate"
	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm/wellknown"
)

// Config configures loading.
type Config struct {
	Features   wasm.Features
	CloneInput bool

	// MemoryPoolSize bounds the default maximum size of memories that do not declare one. Zero selects a default
	// derived from the host's physical memory.
	MemoryPoolSize uint64

	// Rewrite translates function bodies into the slot-based encoding.
	Rewrite bool

	Resolver  wasm.Resolver
	Allocator wasm.Allocator

	// Tier, if set, compiles the module's functions on Workers background goroutines once loading succeeds.
	// EagerCompile makes the loader wait for compilation to finish.
	Tier         exec.Tier
	Workers      int
	EagerCompile bool

	// Logger replaces the package logger when set.
	Logger *zap.Logger
}

// DefaultConfig enables the default feature set and rewriting, and allocates from the Go heap.
func DefaultConfig() Config {
	return Config{
		Features:  wasm.DefaultFeatures,
		Rewrite:   true,
		Allocator: wasm.HeapAllocator,
		Workers:   1,
	}
}

// Module is a loaded module. It must be closed to release its buffers and stop background compilation.
type Module struct {
	*wasm.Module

	compilation *exec.Compilation
}

// Compilation returns the module's background compilation, or nil if no tier was configured.
func (m *Module) Compilation() *exec.Compilation {
	return m.compilation
}

// Close stops background compilation and then releases the module.
func (m *Module) Close() {
	if m.compilation != nil {
		m.compilation.Stop()
	}
	m.Module.Close()
}

// Load decodes, validates and resolves the module encoded in buf. On failure every buffer allocated for the module
// is released.
func Load(buf []byte, cfg Config) (*Module, error) {
	if cfg.Logger != nil {
		wasm.SetLogger(cfg.Logger)
	}
	if cfg.MemoryPoolSize == 0 {
		cfg.MemoryPoolSize = defaultMemoryPoolSize()
	}

	m, err := wasm.DecodeModule(buf, wasm.Options{
		Features:       cfg.Features,
		CloneInput:     cfg.CloneInput,
		MemoryPoolSize: cfg.MemoryPoolSize,
		Resolver:       cfg.Resolver,
		Allocator:      cfg.Allocator,
	})
	if err != nil {
		return nil, err
	}

	if err := validate.ValidateModule(m, validate.Options{Rewrite: cfg.Rewrite}); err != nil {
		m.Close()
		return nil, err
	}
	wellknown.Resolve(m)

	mod := &Module{Module: m}
	if cfg.Tier != nil {
		mod.compilation = exec.StartCompilation(m, cfg.Tier, cfg.Workers)
		if cfg.EagerCompile {
			if err := mod.compilation.Wait(); err != nil {
				mod.Close()
				return nil, err
			}
		}
	}
	return mod, nil
}

// LoadWithDiagnostics loads a module like Load. If loading fails and msg is not empty, msg receives the error text,
// truncated to fit and terminated by a NUL byte.
func LoadWithDiagnostics(buf []byte, cfg Config, msg []byte) (*Module, error) {
	m, err := Load(buf, cfg)
	if err != nil && len(msg) != 0 {
		n := copy(msg[:len(msg)-1], err.Error())
		msg[n] = 0
	}
	return m, err
}

// LoadModule reads and loads a binary module from r.
func LoadModule(r io.Reader, cfg Config) (*Module, error) {
	br := bufio.NewReader(r)

	buf, err := br.Peek(4)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, wasm.ErrInvalidMagic
		}
		return nil, err
	}
	if binary.LittleEndian.Uint32(buf) != wasm.Magic {
		return nil, wasm.ErrInvalidMagic
	}

	bytes, err := io.ReadAll(br)
	if err != nil {
		return nil, err
	}
	// The module may alias bytes, which nothing else references.
	cfg.CloneInput = false
	return Load(bytes, cfg)
}

func LoadFile(path string, cfg Config) (*Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return LoadModule(f, cfg)
}

// LoadFS loads the module with the given name from fsys. The name may omit its ".wasm" extension.
func LoadFS(fsys fs.FS, name string, cfg Config) (*Module, error) {
	candidates := []string{name}
	if path.Ext(name) != ".wasm" {
		candidates = []string{name + ".wasm", name}
	}
	for _, candidate := range candidates {
		if f, err := fsys.Open(candidate); err == nil {
			defer f.Close()
			return LoadModule(f, cfg)
		}
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}
