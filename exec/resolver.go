package exec

import (
	"go.uber.org/zap"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"
)

// A MapResolver resolves imports against host modules keyed by module name.
type MapResolver map[string]*HostModule

var _ wasm.Resolver = MapResolver(nil)

// ResolveFunction resolves a function import. A host function whose signature differs from the declared type does
// not resolve.
func (r MapResolver) ResolveFunction(moduleName, fieldName string, sig *wasm.FunctionSig) (wasm.HostFunction, bool) {
	m, ok := r[moduleName]
	if !ok {
		return wasm.HostFunction{}, false
	}
	f, ok := m.GetFunction(fieldName)
	if !ok {
		return wasm.HostFunction{}, false
	}
	if !f.Signature().Equal(sig) {
		wasm.Logger().Debug("host function signature mismatch",
			zap.String("module", moduleName),
			zap.String("field", fieldName),
			zap.Stringer("declared", sig),
			zap.Stringer("host", f.Signature()))
		return wasm.HostFunction{}, false
	}
	return f.Native(), true
}

// ResolveGlobal resolves a global import.
func (r MapResolver) ResolveGlobal(moduleName, fieldName string) (wasm.GlobalValue, bool) {
	m, ok := r[moduleName]
	if !ok {
		return wasm.GlobalValue{}, false
	}
	g, ok := m.GetGlobal(fieldName)
	if !ok {
		return wasm.GlobalValue{}, false
	}
	return g.Value(), true
}

// With returns a copy of r that also resolves against m.
func (r MapResolver) With(m *HostModule) MapResolver {
	out := make(MapResolver, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	out[m.Name()] = m
	return out
}
