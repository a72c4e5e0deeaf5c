// Package wellknown derives advisory metadata from the conventions followed by common toolchains: the layout of the
// auxiliary stack and heap, and the entry points of the module's own allocator. Nothing found here affects whether
// a module is valid.
package wellknown

import (
	"go.uber.org/zap"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"
	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm/code"
)

// Conventional export names.
const (
	HeapBase = "__heap_base"
	DataEnd  = "__data_end"

	Malloc  = "malloc"
	Free    = "free"
	New     = "__new"
	Retain  = "__retain"
	Pin     = "__pin"
	Release = "__release"
	Unpin   = "__unpin"
)

const i32 = wasm.ValueTypeI32

// Resolve lays out the module's global storage and records the auxiliary stack and allocator entry points of m.
// It must run after every function has been validated.
func Resolve(m *wasm.Module) {
	layoutGlobals(m)
	resolveAuxStack(m)
	resolveAllocator(m)

	wasm.Logger().Debug("resolved well-known symbols",
		zap.Int64("heapBaseGlobal", m.Aux.HeapBaseGlobal),
		zap.Int64("dataEndGlobal", m.Aux.DataEndGlobal),
		zap.Int64("stackTopGlobal", m.Aux.StackTopGlobal),
		zap.Uint32("stackSize", m.Aux.StackSize),
		zap.Int64("malloc", m.MallocFunction),
		zap.Int64("free", m.FreeFunction),
		zap.Int64("retain", m.RetainFunction),
		zap.Uint32("globalDataSize", m.GlobalDataSize))
}

// layoutGlobals assigns each global, imports first, a byte offset in the instance's global storage.
func layoutGlobals(m *wasm.Module) {
	offsets := make([]uint32, 0, len(m.ImportedGlobals)+len(m.Globals))
	offset := uint32(0)
	for _, g := range m.ImportedGlobals {
		offsets = append(offsets, offset)
		offset += g.Type.Type.Size()
	}
	for _, g := range m.Globals {
		offsets = append(offsets, offset)
		offset += g.Type.Type.Size()
	}
	m.GlobalOffsets, m.GlobalDataSize = offsets, offset
}

// constGlobal returns the value of an exported, defined, immutable i32 global initialized by a constant.
func constGlobal(m *wasm.Module, name string) (globalidx uint32, value uint32, ok bool) {
	e, ok := m.Export(name)
	if !ok || e.Kind != wasm.ExternalGlobal {
		return 0, 0, false
	}
	imported := uint32(len(m.ImportedGlobals))
	if e.Index < imported || e.Index-imported >= uint32(len(m.Globals)) {
		return 0, 0, false
	}
	g := m.Globals[e.Index-imported]
	if g.Type.Type != i32 || g.Type.Mutable || g.Init.Opcode != code.OpI32Const {
		return 0, 0, false
	}
	return e.Index, uint32(g.Init.I32()), true
}

func resolveAuxStack(m *wasm.Module) {
	heapBaseIndex, heapBase, hasHeapBase := constGlobal(m, HeapBase)
	if hasHeapBase {
		m.Aux.HeapBaseGlobal, m.Aux.HeapBase = int64(heapBaseIndex), heapBase
	}
	dataEndIndex, dataEnd, hasDataEnd := constGlobal(m, DataEnd)
	if hasDataEnd {
		m.Aux.DataEndGlobal, m.Aux.DataEnd = int64(dataEndIndex), dataEnd
	}
	if !hasHeapBase || !hasDataEnd || dataEnd > heapBase {
		return
	}

	// The stack pointer is the first mutable i32 global whose initial value lies below the heap.
	imported := len(m.ImportedGlobals)
	for i, g := range m.Globals {
		if g.Type.Type != i32 || !g.Type.Mutable || g.Init.Opcode != code.OpI32Const {
			continue
		}
		top := uint32(g.Init.I32())
		if top > heapBase {
			continue
		}

		m.Aux.StackTopGlobal = int64(imported + i)
		m.Aux.StackBottom = top
		if top > dataEnd {
			m.Aux.StackSize = top - dataEnd
		} else {
			m.Aux.StackSize = top
		}
		return
	}
}

func hasShape(sig *wasm.FunctionSig, params, results []wasm.ValueType) bool {
	return sig.Equal(&wasm.FunctionSig{ParamTypes: params, ReturnTypes: results})
}

// definedFunction returns the signature of an exported function defined by m.
func definedFunction(m *wasm.Module, e wasm.Export) (*wasm.FunctionSig, bool) {
	if e.Kind != wasm.ExternalFunction || e.Index < uint32(len(m.ImportedFunctions)) {
		return nil, false
	}
	return m.GetFunctionSignature(e.Index)
}

var (
	oneI32 = []wasm.ValueType{i32}
	twoI32 = []wasm.ValueType{i32, i32}
)

func resolveAllocator(m *wasm.Module) {
	for _, e := range m.Exports {
		sig, ok := definedFunction(m, e)
		if !ok {
			continue
		}

		switch e.Name {
		case Malloc:
			if hasShape(sig, oneI32, oneI32) {
				m.MallocFunction = int64(e.Index)
			}
		case New:
			if hasShape(sig, twoI32, oneI32) {
				m.MallocFunction = int64(e.Index)
				m.RetainFunction = findRetain(m)
				if m.RetainFunction < 0 {
					m.MallocFunction = -1
				}
			}
		case Free, Release, Unpin:
			if hasShape(sig, oneI32, nil) {
				m.FreeFunction = int64(e.Index)
			}
		}
	}
}

// findRetain returns the index of the function paired with __new, or -1.
func findRetain(m *wasm.Module) int64 {
	for _, e := range m.Exports {
		if e.Name != Retain && e.Name != Pin {
			continue
		}
		if sig, ok := definedFunction(m, e); ok && hasShape(sig, oneI32, oneI32) {
			return int64(e.Index)
		}
	}
	return -1
}
