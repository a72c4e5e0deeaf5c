package load

import (
	"bytes"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/exec"
	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/internal/wasmtest"
	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"
	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm/code"
)

const (
	i32 = wasm.ValueTypeI32
	i64 = wasm.ValueTypeI64
)

func vt(ts ...wasm.ValueType) []wasm.ValueType {
	return ts
}

// countingConfig returns a config that clones its input and accounts every allocation.
func countingConfig(a *exec.CountingAllocator) Config {
	cfg := DefaultConfig()
	cfg.CloneInput = true
	cfg.Allocator = a
	return cfg
}

func addModule() *wasmtest.Builder {
	b := wasmtest.New()
	sig := b.Type(vt(i32, i32), vt(i32))
	add := b.Func(sig, nil, []byte{code.OpLocalGet, 0, code.OpLocalGet, 1, code.OpI32Add, code.OpEnd})
	b.Export("add", wasm.ExternalFunction, add)
	b.Memory(1, 2)
	b.ActiveData(16, []byte("hello"))
	b.Custom("producers", []byte{0})
	return b
}

func TestMinimalModule(t *testing.T) {
	m, err := Load(wasmtest.New().Bytes(), DefaultConfig())
	require.NoError(t, err)
	defer m.Close()

	assert.Empty(t, m.Types)
	assert.Empty(t, m.Functions)
	assert.Empty(t, m.Exports)
	assert.Equal(t, int64(-1), m.Start)
	assert.Equal(t, int64(-1), m.MallocFunction)
	assert.Nil(t, m.Compilation())
}

func TestAddModule(t *testing.T) {
	var a exec.CountingAllocator
	m, err := Load(addModule().Bytes(), countingConfig(&a))
	require.NoError(t, err)

	e, ok := m.Export("add")
	require.True(t, ok)
	assert.Equal(t, wasm.Export{Name: "add", Kind: wasm.ExternalFunction, Index: 0}, e)

	fn := m.Function(0)
	require.NotNil(t, fn)
	assert.Equal(t, 2, fn.MaxStackDepth)
	assert.Equal(t, 2, fn.MaxStackCells)
	assert.True(t, fn.Rewritten)
	assert.NotZero(t, a.Outstanding())

	m.Close()
	assert.Zero(t, a.Outstanding())
	assert.Zero(t, a.LiveBytes())
}

func TestBranchArityMismatch(t *testing.T) {
	b := wasmtest.New()
	sig := b.Type(nil, vt(i32))
	b.Func(sig, nil, wasmtest.Body(
		[]byte{code.OpBlock, byte(i32)},
		wasmtest.I64Const(1),
		[]byte{code.OpBr, 0, code.OpEnd, code.OpEnd},
	))
	b.Custom("meta", []byte{0})

	var a exec.CountingAllocator
	_, err := Load(b.Bytes(), countingConfig(&a))
	require.Error(t, err)

	var verr wasm.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Contains(t, err.Error(), "function 0")
	assert.Zero(t, a.Outstanding())
	assert.NotZero(t, a.Requests())
}

func TestDanglingImports(t *testing.T) {
	b := wasmtest.New()
	sig := b.Type(nil, nil)
	b.ImportFunc("nowhere", "f", sig)
	b.ImportTable("nowhere", "t", wasm.ValueTypeFuncref, 1, -1)
	b.ImportMemory("nowhere", "m", 1, -1)
	b.ImportGlobal("nowhere", "g", i32, false)
	b.Global(i32, false, []byte{code.OpGlobalGet, 0})

	m, err := Load(b.Bytes(), DefaultConfig())
	require.NoError(t, err)
	defer m.Close()
	assert.False(t, m.ImportedFunctions[0].Resolved)
	assert.False(t, m.ImportedGlobals[0].Resolved)

	b = wasmtest.New()
	b.ImportGlobal("nowhere", "g", i32, true)
	b.Global(i32, false, []byte{code.OpGlobalGet, 0})
	_, err = Load(b.Bytes(), DefaultConfig())
	var verr wasm.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestResolvedImports(t *testing.T) {
	b := wasmtest.New()
	b.ImportFunc("spectest", "print_i32", b.Type(vt(i32), nil))
	b.ImportGlobal("spectest", "global_i32", i32, false)

	cfg := DefaultConfig()
	cfg.Resolver = exec.MapResolver{}.With(exec.NewSpectestModule())
	m, err := Load(b.Bytes(), cfg)
	require.NoError(t, err)
	defer m.Close()

	assert.True(t, m.ImportedFunctions[0].Resolved)
	assert.Equal(t, "(i)", m.ImportedFunctions[0].Host.Signature)
	assert.True(t, m.ImportedGlobals[0].Resolved)
	assert.Equal(t, uint64(666), m.ImportedGlobals[0].Value.Bits)

	b = wasmtest.New()
	b.ImportGlobal("spectest", "global_i32", i64, false)
	_, err = Load(b.Bytes(), cfg)
	assert.Error(t, err)
}

func TestAuxStackDetection(t *testing.T) {
	b := wasmtest.New()
	b.Memory(2, -1)
	b.Global(i32, true, wasmtest.I32Const(66560))
	b.Export("__data_end", wasm.ExternalGlobal, b.Global(i32, false, wasmtest.I32Const(1024)))
	b.Export("__heap_base", wasm.ExternalGlobal, b.Global(i32, false, wasmtest.I32Const(66560)))

	m, err := Load(b.Bytes(), DefaultConfig())
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, int64(0), m.Aux.StackTopGlobal)
	assert.Equal(t, uint32(65536), m.Aux.StackSize)
	assert.Equal(t, []uint32{0, 4, 8}, m.GlobalOffsets)
}

func TestTypeInterning(t *testing.T) {
	b := wasmtest.New()
	for i := 0; i < 3; i++ {
		b.Type(vt(i32, i64), vt(i32))
	}
	other := b.Type(nil, nil)
	b.Func(other, nil, []byte{code.OpEnd})

	m, err := Load(b.Bytes(), DefaultConfig())
	require.NoError(t, err)
	defer m.Close()

	require.Len(t, m.Types, 4)
	assert.Same(t, m.Types[0], m.Types[1])
	assert.Same(t, m.Types[0], m.Types[2])
	assert.Equal(t, 3, m.Types[0].RefCount)
	assert.Len(t, m.UniqueTypes(), 2)
}

func TestDeterminism(t *testing.T) {
	b := wasmtest.New()
	sig := b.Type(vt(i32), vt(i32))
	b.Memory(1, -1)
	b.Func(sig, vt(i64), wasmtest.Body(
		[]byte{code.OpBlock, 0x40, code.OpLoop, 0x40},
		[]byte{code.OpLocalGet, 0}, wasmtest.I32Const(8), []byte{code.OpI32Sub, code.OpLocalTee, 0},
		[]byte{code.OpI32Load, 2, 0, code.OpI64ExtendI32U, code.OpLocalSet, 1},
		[]byte{code.OpLocalGet, 0, code.OpI32Eqz, code.OpBrIf, 1, code.OpBr, 0},
		[]byte{code.OpEnd, code.OpEnd},
		[]byte{code.OpLocalGet, 1, code.OpI32WrapI64, code.OpEnd},
	))
	buf := b.Bytes()

	first, err := Load(buf, DefaultConfig())
	require.NoError(t, err)
	defer first.Close()
	second, err := Load(buf, DefaultConfig())
	require.NoError(t, err)
	defer second.Close()

	f1, f2 := first.Function(0), second.Function(0)
	assert.True(t, f1.Rewritten)
	assert.Equal(t, f1.Code, f2.Code)
	assert.Equal(t, f1.Consts, f2.Consts)
	assert.Equal(t, f1.MaxStackDepth, f2.MaxStackDepth)
	assert.Equal(t, f1.MaxBlockDepth, f2.MaxBlockDepth)
}

func TestRejectedMutationsDoNotLeak(t *testing.T) {
	valid := addModule().Bytes()

	duplicate := addModule()
	duplicate.Export("add", wasm.ExternalMemory, 0)

	outOfRange := addModule()
	outOfRange.Export("missing", wasm.ExternalFunction, 7)

	badCall := addModule()
	badCall.Func(0, nil, []byte{code.OpCall, 9, code.OpEnd})

	cases := map[string][]byte{
		"truncated section":   valid[:len(valid)-3],
		"duplicate export":    duplicate.Bytes(),
		"out of range export": outOfRange.Bytes(),
		"out of range call":   badCall.Bytes(),
	}
	for name, buf := range cases {
		t.Run(name, func(t *testing.T) {
			var a exec.CountingAllocator
			_, err := Load(buf, countingConfig(&a))
			assert.Error(t, err)
			assert.Zero(t, a.Outstanding())
		})
	}
}

func TestAllocationFailures(t *testing.T) {
	buf := addModule().Bytes()

	for n := 1; ; n++ {
		require.Less(t, n, 100)

		a := exec.CountingAllocator{FailAfter: n}
		m, err := Load(buf, countingConfig(&a))
		if err == nil {
			m.Close()
			assert.Zero(t, a.Outstanding())
			break
		}
		assert.True(t, errors.Is(err, wasm.ErrAllocationFailed), "request %d: %v", n, err)
		assert.Zero(t, a.Outstanding(), "request %d", n)
	}
}

func TestLoadWithDiagnostics(t *testing.T) {
	bad := []byte{0, 'a', 's', 'x', 1, 0, 0, 0}

	msg := bytes.Repeat([]byte{0xff}, 8)
	_, err := LoadWithDiagnostics(bad, DefaultConfig(), msg)
	require.Error(t, err)
	text := err.Error()
	require.Greater(t, len(text), 7)
	assert.Equal(t, append([]byte(text[:7]), 0), msg)

	msg = bytes.Repeat([]byte{0xff}, 256)
	_, err = LoadWithDiagnostics(bad, DefaultConfig(), msg)
	require.Error(t, err)
	assert.Equal(t, text, string(msg[:len(text)]))
	assert.Equal(t, byte(0), msg[len(text)])

	empty := []byte{}
	_, err = LoadWithDiagnostics(bad, DefaultConfig(), empty)
	assert.Error(t, err)
	assert.Empty(t, empty)

	_, err = LoadWithDiagnostics(addModule().Bytes(), DefaultConfig(), msg)
	assert.NoError(t, err)
}

func TestLoadModule(t *testing.T) {
	m, err := LoadModule(bytes.NewReader(addModule().Bytes()), DefaultConfig())
	require.NoError(t, err)
	m.Close()

	_, err = LoadModule(bytes.NewReader([]byte("(module)")), DefaultConfig())
	assert.ErrorIs(t, err, wasm.ErrInvalidMagic)

	_, err = LoadModule(bytes.NewReader(nil), DefaultConfig())
	assert.ErrorIs(t, err, wasm.ErrInvalidMagic)
}

func TestLoadFS(t *testing.T) {
	fsys := fstest.MapFS{
		"add.wasm": {Data: addModule().Bytes()},
	}

	m, err := LoadFS(fsys, "add", DefaultConfig())
	require.NoError(t, err)
	m.Close()

	m, err = LoadFS(fsys, "add.wasm", DefaultConfig())
	require.NoError(t, err)
	m.Close()

	_, err = LoadFS(fsys, "sub", DefaultConfig())
	assert.Error(t, err)
}

type countingTier struct {
	compiled chan uint32
}

func (c countingTier) CompileFunction(m *wasm.Module, funcidx uint32, _ *exec.Compilation) error {
	c.compiled <- funcidx
	return nil
}

type failingTier struct{}

func (failingTier) CompileFunction(*wasm.Module, uint32, *exec.Compilation) error {
	return errors.New("no code generator")
}

func TestEagerCompilation(t *testing.T) {
	tier := countingTier{compiled: make(chan uint32, 1)}

	cfg := DefaultConfig()
	cfg.Tier, cfg.EagerCompile = tier, true
	m, err := Load(addModule().Bytes(), cfg)
	require.NoError(t, err)
	assert.True(t, m.Compilation().Ready())
	assert.Equal(t, uint32(0), <-tier.compiled)
	m.Close()

	var a exec.CountingAllocator
	cfg = countingConfig(&a)
	cfg.Tier, cfg.EagerCompile = failingTier{}, true
	_, err = Load(addModule().Bytes(), cfg)
	assert.EqualError(t, err, "no code generator")
	assert.Zero(t, a.Outstanding())
}

func TestCloseStopsCompilation(t *testing.T) {
	tier := countingTier{compiled: make(chan uint32)}

	cfg := DefaultConfig()
	cfg.Tier, cfg.Workers = tier, 2
	b := addModule()
	b.Func(0, nil, []byte{code.OpLocalGet, 0, code.OpEnd})
	m, err := Load(b.Bytes(), cfg)
	require.NoError(t, err)

	<-tier.compiled
	<-tier.compiled
	m.Close()
	assert.True(t, m.Compilation().ShouldStop())
	assert.True(t, m.Compilation().Ready())
}
