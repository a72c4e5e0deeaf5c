package wasm

import "reflect"

// HostFunction is a native implementation of an imported function.
type HostFunction struct {
	// Func is the Go function value.
	Func reflect.Value
	// Signature describes Func's calling convention, e.g. "(ii)I".
	Signature string
}

// GlobalValue is the value of a resolved global import.
type GlobalValue struct {
	Type    ValueType
	Mutable bool
	Bits    uint64
}

// Resolver resolves imports against native symbols. Failing to resolve a function is not an error at load time;
// the import stays unresolved and fails when called.
type Resolver interface {
	ResolveFunction(moduleName, fieldName string, sig *FunctionSig) (HostFunction, bool)
	ResolveGlobal(moduleName, fieldName string) (GlobalValue, bool)
}
