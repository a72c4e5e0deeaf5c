// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

import (
	"github.com/willf/bitset"
)

const (
	Magic   uint32 = 0x6d736100
	Version uint32 = 0x1
)

// AuxInfo records the toolchain conventions found in a module: the exported __heap_base and __data_end globals and
// the mutable global used as the auxiliary stack pointer. Indices are -1 when absent.
type AuxInfo struct {
	HeapBaseGlobal int64
	DataEndGlobal  int64
	StackTopGlobal int64

	HeapBase    uint32
	DataEnd     uint32
	StackBottom uint32
	StackSize   uint32
}

// Module represents a parsed WebAssembly module:
// http://webassembly.org/docs/modules/
//
// A Module is populated section by section by DecodeModule and is not modified after loading completes, with the
// exception of the branch target cache.
type Module struct {
	Version  uint32
	Sections []RawSection
	Features Features

	// Types holds the signature of each declared type index. Identical signatures share a pointer.
	Types       []*FunctionSig
	uniqueTypes []*FunctionSig
	typeIndex   map[string]*FunctionSig

	ImportedFunctions []ImportedFunction
	ImportedTables    []ImportedTable
	ImportedMemories  []ImportedMemory
	ImportedGlobals   []ImportedGlobal

	Functions []Function
	Tables    []Table
	Memories  []Memory
	Globals   []Global
	Exports   []Export
	exportMap map[string]int

	// Start is the index of the start function, or -1.
	Start int64

	Elements     []ElementSegment
	Data         []DataSegment
	DataCount    uint32
	HasDataCount bool

	Customs []CustomSection
	Names   *NameSection

	// declaredRefs holds the functions that may be the target of ref.func in code.
	declaredRefs *bitset.BitSet

	// Derived by the auxiliary pass.
	GlobalOffsets      []uint32
	GlobalDataSize     uint32
	Aux                AuxInfo
	MallocFunction     int64
	FreeFunction       int64
	RetainFunction     int64
	PossibleMemoryGrow bool

	Branches BranchCache

	allocator Allocator
	owned     [][]byte
}

func newModule(opts Options) *Module {
	alloc := opts.Allocator
	if alloc == nil {
		alloc = HeapAllocator
	}
	return &Module{
		Features:     opts.Features,
		typeIndex:    map[string]*FunctionSig{},
		exportMap:    map[string]int{},
		Start:        -1,
		declaredRefs: bitset.New(0),
		Aux: AuxInfo{
			HeapBaseGlobal: -1,
			DataEndGlobal:  -1,
			StackTopGlobal: -1,
		},
		MallocFunction: -1,
		FreeFunction:   -1,
		RetainFunction: -1,
		allocator:      alloc,
	}
}

// Allocate returns a zeroed buffer owned by the module. It is released by Close.
func (m *Module) Allocate(size int) ([]byte, error) {
	buf, err := m.allocator.Allocate(size)
	if err != nil {
		return nil, ErrAllocationFailed
	}
	m.owned = append(m.owned, buf)
	return buf, nil
}

// Adopt transfers ownership of a buffer obtained from the module's allocator to the module.
func (m *Module) Adopt(buf []byte) {
	if buf != nil {
		m.owned = append(m.owned, buf)
	}
}

// Allocator returns the allocator that provides the module's buffers.
func (m *Module) Allocator() Allocator {
	return m.allocator
}

// Close releases every buffer the module owns. The module must not be used afterwards.
func (m *Module) Close() {
	for _, buf := range m.owned {
		m.allocator.Free(buf)
	}
	m.owned = nil
	for i := range m.Functions {
		f := &m.Functions[i]
		f.Code, f.Consts, f.Body = nil, nil, nil
	}
	for i := range m.Data {
		m.Data[i].Init = nil
	}
	for i := range m.Customs {
		m.Customs[i].Data = nil
	}
}

// UniqueTypes returns the distinct signatures declared by the module in declaration order.
func (m *Module) UniqueTypes() []*FunctionSig {
	return m.uniqueTypes
}

func (m *Module) internType(sig *FunctionSig) *FunctionSig {
	k := sig.key()
	if existing, ok := m.typeIndex[k]; ok {
		existing.RefCount++
		return existing
	}
	sig.RefCount = 1
	m.typeIndex[k] = sig
	m.uniqueTypes = append(m.uniqueTypes, sig)
	return sig
}

func (m *Module) NumFunctions() uint32 {
	return uint32(len(m.ImportedFunctions) + len(m.Functions))
}

func (m *Module) NumTables() uint32 {
	return uint32(len(m.ImportedTables) + len(m.Tables))
}

func (m *Module) NumMemories() uint32 {
	return uint32(len(m.ImportedMemories) + len(m.Memories))
}

func (m *Module) NumGlobals() uint32 {
	return uint32(len(m.ImportedGlobals) + len(m.Globals))
}

// Function returns the defined function with the given index in the function index space, or nil if the index
// refers to an import or is out of range.
func (m *Module) Function(funcidx uint32) *Function {
	if funcidx < uint32(len(m.ImportedFunctions)) {
		return nil
	}
	funcidx -= uint32(len(m.ImportedFunctions))
	if funcidx >= uint32(len(m.Functions)) {
		return nil
	}
	return &m.Functions[funcidx]
}

// Export returns the export with the given name.
func (m *Module) Export(name string) (Export, bool) {
	i, ok := m.exportMap[name]
	if !ok {
		return Export{}, false
	}
	return m.Exports[i], true
}

// Custom returns a custom section with a specific name, if it exists.
func (m *Module) Custom(name string) *CustomSection {
	for i := range m.Customs {
		if m.Customs[i].Name == name {
			return &m.Customs[i]
		}
	}
	return nil
}

// GetType returns the signature of the given type index.
func (m *Module) GetType(typeidx uint32) (*FunctionSig, bool) {
	if typeidx >= uint32(len(m.Types)) {
		return nil, false
	}
	return m.Types[typeidx], true
}

// GetFunctionSignature returns the signature of the given function index.
func (m *Module) GetFunctionSignature(funcidx uint32) (*FunctionSig, bool) {
	if funcidx < uint32(len(m.ImportedFunctions)) {
		return m.ImportedFunctions[funcidx].Sig, true
	}
	if f := m.Function(funcidx); f != nil {
		return f.Sig, true
	}
	return nil, false
}

// GetGlobalType returns the type of the given global index.
func (m *Module) GetGlobalType(globalidx uint32) (GlobalVar, bool) {
	if globalidx < uint32(len(m.ImportedGlobals)) {
		return m.ImportedGlobals[globalidx].Type, true
	}
	globalidx -= uint32(len(m.ImportedGlobals))
	if globalidx >= uint32(len(m.Globals)) {
		return GlobalVar{}, false
	}
	return m.Globals[globalidx].Type, true
}

// GetTable returns the type of the given table index.
func (m *Module) GetTable(tableidx uint32) (Table, bool) {
	if tableidx < uint32(len(m.ImportedTables)) {
		return m.ImportedTables[tableidx].Table, true
	}
	tableidx -= uint32(len(m.ImportedTables))
	if tableidx >= uint32(len(m.Tables)) {
		return Table{}, false
	}
	return m.Tables[tableidx], true
}

// GetMemory returns the type of the given memory index.
func (m *Module) GetMemory(memidx uint32) (Memory, bool) {
	if memidx < uint32(len(m.ImportedMemories)) {
		return m.ImportedMemories[memidx].Memory, true
	}
	memidx -= uint32(len(m.ImportedMemories))
	if memidx >= uint32(len(m.Memories)) {
		return Memory{}, false
	}
	return m.Memories[memidx], true
}

// GetElementType returns the reference type of the given element segment.
func (m *Module) GetElementType(elemidx uint32) (ValueType, bool) {
	if elemidx >= uint32(len(m.Elements)) {
		return 0, false
	}
	return m.Elements[elemidx].Type, true
}

// GetDataCount returns the number of data segments declared by the data count section. The second result is false
// if the module has no data count section.
func (m *Module) GetDataCount() (uint32, bool) {
	return m.DataCount, m.HasDataCount
}

// IsDeclaredFunction returns true if the function is referenced outside of function bodies, which makes it a legal
// operand of ref.func.
func (m *Module) IsDeclaredFunction(funcidx uint32) bool {
	return m.declaredRefs.Test(uint(funcidx))
}

func (m *Module) declareFunction(funcidx uint32) {
	m.declaredRefs.Set(uint(funcidx))
}
