package exec

import (
	"reflect"
	"strings"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"
)

func wasmType(kind reflect.Kind) wasm.ValueType {
	switch kind {
	case reflect.Int32, reflect.Uint32:
		return wasm.ValueTypeI32
	case reflect.Int64, reflect.Uint64:
		return wasm.ValueTypeI64
	case reflect.Float32:
		return wasm.ValueTypeF32
	case reflect.Float64:
		return wasm.ValueTypeF64
	default:
		return 0
	}
}

func signatureChar(t wasm.ValueType) byte {
	switch t {
	case wasm.ValueTypeI32:
		return 'i'
	case wasm.ValueTypeI64:
		return 'I'
	case wasm.ValueTypeF32:
		return 'f'
	case wasm.ValueTypeF64:
		return 'F'
	default:
		return '?'
	}
}

// signatureString encodes sig in the native calling convention notation: "(ii)I" takes two i32s and returns an
// i64.
func signatureString(sig *wasm.FunctionSig) string {
	var b strings.Builder
	b.WriteByte('(')
	for _, t := range sig.ParamTypes {
		b.WriteByte(signatureChar(t))
	}
	b.WriteByte(')')
	for _, t := range sig.ReturnTypes {
		b.WriteByte(signatureChar(t))
	}
	return b.String()
}
