// Package wasmtest assembles WebAssembly binaries for tests.
package wasmtest

import (
	"encoding/binary"
	"math"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"
	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm/leb128"
)

// Builder accumulates the entries of a module and encodes them with Bytes. Indices returned by the builder count
// imports first, matching the module's index spaces.
type Builder struct {
	types    [][]byte
	imports  [][]byte
	funcs    []uint32
	code     [][]byte
	tables   [][]byte
	memories [][]byte
	globals  [][]byte
	exports  [][]byte
	elements [][]byte
	data     [][]byte
	customs  [][]byte

	start     int64
	dataCount int64

	importedFuncs   uint32
	importedGlobals uint32
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{start: -1, dataCount: -1}
}

func appendName(b []byte, s string) []byte {
	b = leb128.AppendVarUint32(b, uint32(len(s)))
	return append(b, s...)
}

func appendLimits(b []byte, min uint32, max int64) []byte {
	if max < 0 {
		b = append(b, 0x00)
		return leb128.AppendVarUint32(b, min)
	}
	b = append(b, 0x01)
	b = leb128.AppendVarUint32(b, min)
	return leb128.AppendVarUint32(b, uint32(max))
}

func appendTypes(b []byte, ts []wasm.ValueType) []byte {
	b = leb128.AppendVarUint32(b, uint32(len(ts)))
	for _, t := range ts {
		b = append(b, byte(t))
	}
	return b
}

func appendVector(b []byte, entries [][]byte) []byte {
	b = leb128.AppendVarUint32(b, uint32(len(entries)))
	for _, e := range entries {
		b = append(b, e...)
	}
	return b
}

func mutability(mutable bool) byte {
	if mutable {
		return 1
	}
	return 0
}

// Type adds a function type and returns its index.
func (b *Builder) Type(params, results []wasm.ValueType) uint32 {
	t := []byte{0x60}
	t = appendTypes(t, params)
	t = appendTypes(t, results)
	b.types = append(b.types, t)
	return uint32(len(b.types) - 1)
}

// ImportFunc adds a function import and returns its function index.
func (b *Builder) ImportFunc(module, field string, typeidx uint32) uint32 {
	i := appendName(appendName(nil, module), field)
	i = append(i, byte(wasm.ExternalFunction))
	b.imports = append(b.imports, leb128.AppendVarUint32(i, typeidx))
	b.importedFuncs++
	return b.importedFuncs - 1
}

// ImportGlobal adds a global import and returns its global index.
func (b *Builder) ImportGlobal(module, field string, t wasm.ValueType, mutable bool) uint32 {
	i := appendName(appendName(nil, module), field)
	i = append(i, byte(wasm.ExternalGlobal), byte(t), mutability(mutable))
	b.imports = append(b.imports, i)
	b.importedGlobals++
	return b.importedGlobals - 1
}

// ImportMemory adds a memory import. A negative max omits the maximum.
func (b *Builder) ImportMemory(module, field string, min uint32, max int64) {
	i := appendName(appendName(nil, module), field)
	i = append(i, byte(wasm.ExternalMemory))
	b.imports = append(b.imports, appendLimits(i, min, max))
}

// ImportTable adds a table import. A negative max omits the maximum.
func (b *Builder) ImportTable(module, field string, elem wasm.ValueType, min uint32, max int64) {
	i := appendName(appendName(nil, module), field)
	i = append(i, byte(wasm.ExternalTable), byte(elem))
	b.imports = append(b.imports, appendLimits(i, min, max))
}

// Func adds a function with the given type, locals and body and returns its function index. The body must include
// the final end opcode.
func (b *Builder) Func(typeidx uint32, locals []wasm.ValueType, body []byte) uint32 {
	b.funcs = append(b.funcs, typeidx)

	var entry []byte
	entry = leb128.AppendVarUint32(entry, uint32(len(locals)))
	for _, t := range locals {
		entry = append(entry, 0x01, byte(t))
	}
	entry = append(entry, body...)

	c := leb128.AppendVarUint32(nil, uint32(len(entry)))
	b.code = append(b.code, append(c, entry...))
	return b.importedFuncs + uint32(len(b.funcs)-1)
}

// Table adds a table. A negative max omits the maximum.
func (b *Builder) Table(elem wasm.ValueType, min uint32, max int64) {
	b.tables = append(b.tables, appendLimits([]byte{byte(elem)}, min, max))
}

// Memory adds a memory. A negative max omits the maximum.
func (b *Builder) Memory(min uint32, max int64) {
	b.memories = append(b.memories, appendLimits(nil, min, max))
}

// Global adds a global initialized by init, an expression without its end opcode, and returns its global index.
func (b *Builder) Global(t wasm.ValueType, mutable bool, init []byte) uint32 {
	g := []byte{byte(t), mutability(mutable)}
	g = append(g, init...)
	b.globals = append(b.globals, append(g, 0x0b))
	return b.importedGlobals + uint32(len(b.globals)-1)
}

// Export adds an export.
func (b *Builder) Export(name string, kind wasm.External, index uint32) {
	e := appendName(nil, name)
	e = append(e, byte(kind))
	b.exports = append(b.exports, leb128.AppendVarUint32(e, index))
}

// Start sets the start function.
func (b *Builder) Start(funcidx uint32) {
	b.start = int64(funcidx)
}

// ActiveElement adds an active segment for table 0 at the given offset.
func (b *Builder) ActiveElement(offset int32, funcs ...uint32) {
	e := append([]byte{0x00}, I32Const(offset)...)
	e = append(e, 0x0b)
	e = leb128.AppendVarUint32(e, uint32(len(funcs)))
	for _, f := range funcs {
		e = leb128.AppendVarUint32(e, f)
	}
	b.elements = append(b.elements, e)
}

// DeclarativeElement adds a declarative segment naming funcs, making them valid ref.func operands.
func (b *Builder) DeclarativeElement(funcs ...uint32) {
	e := []byte{0x03, 0x00}
	e = leb128.AppendVarUint32(e, uint32(len(funcs)))
	for _, f := range funcs {
		e = leb128.AppendVarUint32(e, f)
	}
	b.elements = append(b.elements, e)
}

// RawElement adds a pre-encoded element segment.
func (b *Builder) RawElement(segment []byte) {
	b.elements = append(b.elements, segment)
}

// ActiveData adds an active segment for memory 0 at the given offset.
func (b *Builder) ActiveData(offset int32, init []byte) {
	d := append([]byte{0x00}, I32Const(offset)...)
	d = append(d, 0x0b)
	d = leb128.AppendVarUint32(d, uint32(len(init)))
	b.data = append(b.data, append(d, init...))
}

// PassiveData adds a passive segment.
func (b *Builder) PassiveData(init []byte) {
	d := leb128.AppendVarUint32([]byte{0x01}, uint32(len(init)))
	b.data = append(b.data, append(d, init...))
}

// DataCount emits a data count section declaring n segments.
func (b *Builder) DataCount(n uint32) {
	b.dataCount = int64(n)
}

// Custom adds a custom section. Custom sections are emitted after every other section.
func (b *Builder) Custom(name string, data []byte) {
	b.customs = append(b.customs, append(appendName(nil, name), data...))
}

func appendSection(out []byte, id wasm.SectionID, payload []byte) []byte {
	out = append(out, byte(id))
	out = leb128.AppendVarUint32(out, uint32(len(payload)))
	return append(out, payload...)
}

// Bytes encodes the module.
func (b *Builder) Bytes() []byte {
	out := binary.LittleEndian.AppendUint32(nil, wasm.Magic)
	out = binary.LittleEndian.AppendUint32(out, wasm.Version)

	if len(b.types) != 0 {
		out = appendSection(out, wasm.SectionIDType, appendVector(nil, b.types))
	}
	if len(b.imports) != 0 {
		out = appendSection(out, wasm.SectionIDImport, appendVector(nil, b.imports))
	}
	if len(b.funcs) != 0 {
		f := leb128.AppendVarUint32(nil, uint32(len(b.funcs)))
		for _, t := range b.funcs {
			f = leb128.AppendVarUint32(f, t)
		}
		out = appendSection(out, wasm.SectionIDFunction, f)
	}
	if len(b.tables) != 0 {
		out = appendSection(out, wasm.SectionIDTable, appendVector(nil, b.tables))
	}
	if len(b.memories) != 0 {
		out = appendSection(out, wasm.SectionIDMemory, appendVector(nil, b.memories))
	}
	if len(b.globals) != 0 {
		out = appendSection(out, wasm.SectionIDGlobal, appendVector(nil, b.globals))
	}
	if len(b.exports) != 0 {
		out = appendSection(out, wasm.SectionIDExport, appendVector(nil, b.exports))
	}
	if b.start >= 0 {
		out = appendSection(out, wasm.SectionIDStart, leb128.AppendVarUint32(nil, uint32(b.start)))
	}
	if len(b.elements) != 0 {
		out = appendSection(out, wasm.SectionIDElement, appendVector(nil, b.elements))
	}
	if b.dataCount >= 0 {
		out = appendSection(out, wasm.SectionIDDataCount, leb128.AppendVarUint32(nil, uint32(b.dataCount)))
	}
	if len(b.code) != 0 {
		out = appendSection(out, wasm.SectionIDCode, appendVector(nil, b.code))
	}
	if len(b.data) != 0 {
		out = appendSection(out, wasm.SectionIDData, appendVector(nil, b.data))
	}
	for _, c := range b.customs {
		out = appendSection(out, wasm.SectionIDCustom, c)
	}
	return out
}

// I32Const encodes an i32.const instruction.
func I32Const(v int32) []byte {
	return leb128.AppendVarint32([]byte{0x41}, v)
}

// I64Const encodes an i64.const instruction.
func I64Const(v int64) []byte {
	return leb128.AppendVarint64([]byte{0x42}, v)
}

// F32Const encodes an f32.const instruction.
func F32Const(v float32) []byte {
	return binary.LittleEndian.AppendUint32([]byte{0x43}, math.Float32bits(v))
}

// F64Const encodes an f64.const instruction.
func F64Const(v float64) []byte {
	return binary.LittleEndian.AppendUint64([]byte{0x44}, math.Float64bits(v))
}

// Body concatenates instruction fragments.
func Body(parts ...[]byte) []byte {
	var b []byte
	for _, p := range parts {
		b = append(b, p...)
	}
	return b
}
