package code

import (
	"fmt"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"
	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm/leb128"
)

const (
	i32t = wasm.ValueTypeI32
	i64t = wasm.ValueTypeI64
	f32t = wasm.ValueTypeF32
	f64t = wasm.ValueTypeF64
)

// testScope is a Scope backed by plain slices.
type testScope struct {
	types     []*wasm.FunctionSig
	funcs     []*wasm.FunctionSig
	globals   []wasm.GlobalVar
	tables    []wasm.Table
	memories  []wasm.Memory
	elems     []wasm.ValueType
	dataCount int // -1 when there is no data count section
	declared  map[uint32]bool
}

func newTestScope() *testScope {
	return &testScope{dataCount: -1, declared: map[uint32]bool{}}
}

func (s *testScope) GetType(typeidx uint32) (*wasm.FunctionSig, bool) {
	if typeidx >= uint32(len(s.types)) {
		return nil, false
	}
	return s.types[typeidx], true
}

func (s *testScope) GetFunctionSignature(funcidx uint32) (*wasm.FunctionSig, bool) {
	if funcidx >= uint32(len(s.funcs)) {
		return nil, false
	}
	return s.funcs[funcidx], true
}

func (s *testScope) GetGlobalType(globalidx uint32) (wasm.GlobalVar, bool) {
	if globalidx >= uint32(len(s.globals)) {
		return wasm.GlobalVar{}, false
	}
	return s.globals[globalidx], true
}

func (s *testScope) GetTable(tableidx uint32) (wasm.Table, bool) {
	if tableidx >= uint32(len(s.tables)) {
		return wasm.Table{}, false
	}
	return s.tables[tableidx], true
}

func (s *testScope) GetMemory(memidx uint32) (wasm.Memory, bool) {
	if memidx >= uint32(len(s.memories)) {
		return wasm.Memory{}, false
	}
	return s.memories[memidx], true
}

func (s *testScope) GetElementType(elemidx uint32) (wasm.ValueType, bool) {
	if elemidx >= uint32(len(s.elems)) {
		return 0, false
	}
	return s.elems[elemidx], true
}

func (s *testScope) GetDataCount() (uint32, bool) {
	if s.dataCount < 0 {
		return 0, false
	}
	return uint32(s.dataCount), true
}

func (s *testScope) IsDeclaredFunction(funcidx uint32) bool {
	return s.declared[funcidx]
}

func sig(params, results []wasm.ValueType) *wasm.FunctionSig {
	s := &wasm.FunctionSig{ParamTypes: params, ReturnTypes: results}
	for _, t := range params {
		s.ParamCells += t.Cells()
	}
	for _, t := range results {
		s.ReturnCells += t.Cells()
	}
	return s
}

func types(ts ...wasm.ValueType) []wasm.ValueType {
	return ts
}

// function builds a function with the given signature, locals and body, laying out the local cells the way the
// module decoder does.
func function(params, results, locals []wasm.ValueType, body []byte) *wasm.Function {
	fn := &wasm.Function{Sig: sig(params, results), Locals: locals, Body: body}

	cell := 0
	for _, t := range params {
		fn.LocalOffsets = append(fn.LocalOffsets, uint16(cell))
		cell += t.Cells()
	}
	fn.ParamCells = cell
	for _, t := range locals {
		fn.LocalOffsets = append(fn.LocalOffsets, uint16(cell))
		cell += t.Cells()
	}
	fn.LocalCells = cell - fn.ParamCells
	return fn
}

type uleb uint32
type sleb int64

// asm assembles a function body. Integers and bytes are emitted as single bytes, uleb and sleb values as LEB128,
// and byte slices verbatim.
func asm(items ...interface{}) []byte {
	var b []byte
	for _, item := range items {
		switch v := item.(type) {
		case int:
			b = append(b, byte(v))
		case byte:
			b = append(b, v)
		case wasm.ValueType:
			b = append(b, byte(v))
		case uleb:
			b = leb128.AppendVarUint32(b, uint32(v))
		case sleb:
			b = leb128.AppendVarint64(b, int64(v))
		case []byte:
			b = append(b, v...)
		default:
			panic(fmt.Sprintf("unexpected item %T", item))
		}
	}
	return b
}

// failingAllocator refuses every request.
type failingAllocator struct{}

func (failingAllocator) Allocate(size int) ([]byte, error) {
	return nil, fmt.Errorf("out of memory")
}

func (failingAllocator) Reallocate(buf []byte, size int) ([]byte, error) {
	return nil, fmt.Errorf("out of memory")
}

func (failingAllocator) Free(buf []byte) {}

// brTableMeetsBottom branches from unreachable code to an f32 and an f64 label with no operands on the stack.
func brTableMeetsBottom() []byte {
	return asm(
		OpBlock, f64t,
		OpBlock, f32t,
		OpUnreachable,
		OpI32Const, sleb(1),
		OpBrTable, uleb(2), uleb(0), uleb(1), uleb(1),
		OpEnd,
		OpDrop,
		OpF64Const, []byte{0, 0, 0, 0, 0, 0, 0, 0},
		OpEnd,
		OpDrop,
		OpEnd,
	)
}
