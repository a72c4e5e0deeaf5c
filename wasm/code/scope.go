package code

import "github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"

// Scope provides the module-level context needed to validate a function body. *wasm.Module implements Scope.
type Scope interface {
	GetType(typeidx uint32) (*wasm.FunctionSig, bool)
	GetFunctionSignature(funcidx uint32) (*wasm.FunctionSig, bool)
	GetGlobalType(globalidx uint32) (wasm.GlobalVar, bool)
	GetTable(tableidx uint32) (wasm.Table, bool)
	GetMemory(memidx uint32) (wasm.Memory, bool)
	GetElementType(elemidx uint32) (wasm.ValueType, bool)
	GetDataCount() (uint32, bool)

	// IsDeclaredFunction returns true if funcidx may be the operand of ref.func.
	IsDeclaredFunction(funcidx uint32) bool
}

var _ Scope = (*wasm.Module)(nil)
