package exec

import (
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"
)

// HostFunction is a Go method exported to WebAssembly modules.
type HostFunction struct {
	sig    *wasm.FunctionSig
	method reflect.Value
}

func newHostFunction(method reflect.Value) *HostFunction {
	t := method.Type()

	params := make([]wasm.ValueType, t.NumIn())
	for i, n := 0, t.NumIn(); i < n; i++ {
		vt := wasmType(t.In(i).Kind())
		if vt == 0 {
			panic(fmt.Errorf("cannot export method with parameter type %v", t.In(i)))
		}
		params[i] = vt
	}

	returns := make([]wasm.ValueType, t.NumOut())
	for i, n := 0, t.NumOut(); i < n; i++ {
		vt := wasmType(t.Out(i).Kind())
		if vt == 0 {
			panic(fmt.Errorf("cannot export method with return type %v", t.Out(i)))
		}
		returns[i] = vt
	}

	return &HostFunction{
		sig:    &wasm.FunctionSig{ParamTypes: params, ReturnTypes: returns},
		method: method,
	}
}

func (f *HostFunction) Signature() *wasm.FunctionSig {
	return f.sig
}

// Native returns the function in the form the loader records for a resolved import.
func (f *HostFunction) Native() wasm.HostFunction {
	return wasm.HostFunction{Func: f.method, Signature: signatureString(f.sig)}
}

// HostModule exposes the exported methods and Global fields of a Go value as a module that imports can be
// resolved against. Export names are the Go names with a lowercase first letter.
type HostModule struct {
	name      string
	functions map[string]*HostFunction
	globals   map[string]*Global
}

var globalType = reflect.TypeOf((*Global)(nil)).Elem()

func isExported(n string) bool {
	r, _ := utf8.DecodeRuneInString(n)
	return unicode.IsUpper(r)
}

func exportName(n string) string {
	runes := []rune(n)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

// NewHostModule builds a host module from v, which must be a struct or a pointer to one.
func NewHostModule(name string, v interface{}) *HostModule {
	m := &HostModule{
		name:      name,
		functions: map[string]*HostFunction{},
		globals:   map[string]*Global{},
	}

	rv := reflect.ValueOf(v)
	value := rv
	for value.Kind() == reflect.Ptr {
		value = value.Elem()
	}

	if value.CanAddr() {
		t := value.Type()
		for i, n := 0, t.NumField(); i < n; i++ {
			f := t.Field(i)
			if isExported(f.Name) && f.Type == globalType {
				m.globals[exportName(f.Name)] = value.Field(i).Addr().Interface().(*Global)
			}
		}
	}

	t := rv.Type()
	for i, n := 0, t.NumMethod(); i < n; i++ {
		if name := t.Method(i).Name; isExported(name) {
			m.functions[exportName(name)] = newHostFunction(rv.Method(i))
		}
	}

	return m
}

func (m *HostModule) Name() string {
	return m.name
}

func (m *HostModule) GetFunction(name string) (*HostFunction, bool) {
	f, ok := m.functions[name]
	return f, ok
}

func (m *HostModule) GetGlobal(name string) (*Global, bool) {
	g, ok := m.globals[name]
	return g, ok
}
