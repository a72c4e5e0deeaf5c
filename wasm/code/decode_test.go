package code

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"
)

type errKind int

const (
	valid errKind = iota
	invalid
	malformed
	unsupported
)

func checkErrKind(t *testing.T, want errKind, err error) {
	t.Helper()

	switch want {
	case valid:
		assert.NoError(t, err)
	case invalid:
		var verr wasm.ValidationError
		assert.True(t, errors.As(err, &verr), "expected a validation error, got %v", err)
	case malformed:
		var merr *wasm.MalformedError
		assert.True(t, errors.As(err, &merr), "expected a malformed error, got %v", err)
	case unsupported:
		var uerr *wasm.UnsupportedFeatureError
		assert.True(t, errors.As(err, &uerr), "expected an unsupported feature error, got %v", err)
	}
}

func memoryScope() *testScope {
	s := newTestScope()
	s.memories = []wasm.Memory{{Limits: wasm.Limits{Initial: 1, Maximum: 2, HasMax: true}, PageSize: wasm.PageSize}}
	return s
}

func TestValidate(t *testing.T) {
	funcref := wasm.ValueTypeFuncref

	cases := []struct {
		name     string
		scope    *testScope
		features wasm.Features
		params   []wasm.ValueType
		results  []wasm.ValueType
		body     []byte
		want     errKind
	}{
		{
			name:    "add params",
			params:  types(i32t, i32t),
			results: types(i32t),
			body:    asm(OpLocalGet, uleb(0), OpLocalGet, uleb(1), OpI32Add, OpEnd),
		},
		{
			name:    "operand type mismatch",
			results: types(i32t),
			body:    asm(OpI32Const, sleb(1), OpI64Const, sleb(1), OpI32Add, OpEnd),
			want:    invalid,
		},
		{
			name: "unknown local",
			body: asm(OpLocalGet, uleb(5), OpDrop, OpEnd),
			want: invalid,
		},
		{
			name:    "stack underflow",
			results: types(i32t),
			body:    asm(OpI32Add, OpEnd),
			want:    invalid,
		},
		{
			name: "values left at end",
			body: asm(OpI32Const, sleb(1), OpEnd),
			want: invalid,
		},
		{
			name:    "unreachable stack is polymorphic",
			results: types(i32t),
			body:    asm(OpUnreachable, OpI32Add, OpEnd),
		},
		{
			name:    "br leaves an unreachable stack",
			results: types(i64t),
			body:    asm(OpBlock, 0x40, OpBr, uleb(0), OpI32Add, OpDrop, OpEnd, OpI64Const, sleb(3), OpEnd),
		},
		{
			name:    "if with results requires else",
			results: types(i32t),
			body:    asm(OpI32Const, sleb(1), OpIf, i32t, OpI32Const, sleb(1), OpEnd, OpEnd),
			want:    invalid,
		},
		{
			name:    "if else",
			params:  types(i32t),
			results: types(i32t),
			body:    asm(OpLocalGet, uleb(0), OpIf, i32t, OpI32Const, sleb(1), OpElse, OpI32Const, sleb(2), OpEnd, OpEnd),
		},
		{
			name: "else without if",
			body: asm(OpElse, OpEnd),
			want: invalid,
		},
		{
			name: "missing end",
			body: asm(OpI32Const, sleb(1), OpDrop),
			want: malformed,
		},
		{
			name: "operators after end",
			body: asm(OpEnd, OpNop),
			want: malformed,
		},
		{
			name: "illegal opcode",
			body: asm(0x06, OpEnd),
			want: malformed,
		},
		{
			name:     "sign extension disabled",
			features: wasm.DefaultFeatures &^ wasm.FeatureSignExtension,
			params:   types(i32t),
			results:  types(i32t),
			body:     asm(OpLocalGet, uleb(0), OpI32Extend8S, OpEnd),
			want:     unsupported,
		},
		{
			name: "untyped select of references",
			body: asm(OpRefNull, funcref, OpRefNull, funcref, OpI32Const, sleb(1), OpSelect, OpDrop, OpEnd),
			want: invalid,
		},
		{
			name: "typed select of references",
			body: asm(OpRefNull, funcref, OpRefNull, funcref, OpI32Const, sleb(1), OpSelectT, uleb(1), funcref, OpDrop, OpEnd),
		},
		{
			name:    "br_table arity mismatch",
			results: types(i32t),
			body: asm(OpBlock, i32t, OpBlock, 0x40, OpI32Const, sleb(7), OpI32Const, sleb(0),
				OpBrTable, uleb(1), uleb(0), uleb(1), OpEnd, OpI32Const, sleb(0), OpEnd, OpEnd),
			want: invalid,
		},
		{
			name: "br_table from unreachable code to labels of different types",
			body: brTableMeetsBottom(),
		},
		{
			name: "br_table from unreachable code checks concrete operands",
			body: asm(OpBlock, f64t, OpBlock, f32t, OpUnreachable, OpF32Const, []byte{0, 0, 0, 0}, OpI32Const, sleb(1),
				OpBrTable, uleb(1), uleb(0), uleb(1), OpEnd, OpDrop, OpF64Const, []byte{0, 0, 0, 0, 0, 0, 0, 0}, OpEnd,
				OpDrop, OpEnd),
			want: invalid,
		},
		{
			name:    "load without memory",
			results: types(i32t),
			body:    asm(OpI32Const, sleb(0), OpI32Load, uleb(2), uleb(0), OpEnd),
			want:    invalid,
		},
		{
			name:    "load",
			scope:   memoryScope(),
			results: types(i32t),
			body:    asm(OpI32Const, sleb(0), OpI32Load, uleb(2), uleb(16), OpEnd),
		},
		{
			name:  "alignment larger than natural",
			scope: memoryScope(),
			body:  asm(OpI32Const, sleb(0), OpI32Load, uleb(3), uleb(0), OpDrop, OpEnd),
			want:  invalid,
		},
		{
			name:  "memory.init requires data count",
			scope: memoryScope(),
			body: asm(OpI32Const, sleb(0), OpI32Const, sleb(0), OpI32Const, sleb(0),
				OpPrefix, uleb(OpMemoryInit), uleb(0), 0x00, OpEnd),
			want: invalid,
		},
		{
			name:     "return_call requires tail calls",
			features: wasm.DefaultFeatures,
			body:     asm(OpReturnCall, uleb(0), OpEnd),
			want:     unsupported,
		},
		{
			name:     "atomics require threads",
			scope:    memoryScope(),
			features: wasm.DefaultFeatures,
			body:     asm(OpI32Const, sleb(0), OpPrefixAtomic, uleb(0x10), uleb(2), uleb(0), OpDrop, OpEnd),
			want:     unsupported,
		},
		{
			name: "v128 constant",
			body: asm(OpPrefixSIMD, uleb(OpV128Const), make([]byte, 16), OpDrop, OpEnd),
		},
		{
			name: "local.tee type mismatch",
			body: asm(OpI64Const, sleb(1), OpLocalTee, uleb(0), OpDrop, OpEnd),
			want: invalid,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			scope := c.scope
			if scope == nil {
				scope = newTestScope()
			}
			features := c.features
			if features == 0 {
				features = wasm.AllFeatures
			}

			locals := types(i32t)
			fn := function(c.params, c.results, locals, c.body)
			_, err := Validate(scope, fn, Options{Features: features})
			checkErrKind(t, c.want, err)
		})
	}
}

func TestValidateGlobals(t *testing.T) {
	scope := newTestScope()
	scope.globals = []wasm.GlobalVar{{Type: i32t}, {Type: i64t, Mutable: true}}

	fn := function(nil, nil, nil, asm(OpI64Const, sleb(1), OpGlobalSet, uleb(1), OpEnd))
	_, err := Validate(scope, fn, Options{Features: wasm.DefaultFeatures})
	assert.NoError(t, err)

	fn = function(nil, nil, nil, asm(OpI32Const, sleb(1), OpGlobalSet, uleb(0), OpEnd))
	_, err = Validate(scope, fn, Options{Features: wasm.DefaultFeatures})
	checkErrKind(t, invalid, err)
	assert.Contains(t, err.Error(), "immutable")
}

func TestValidateRefFunc(t *testing.T) {
	scope := newTestScope()
	scope.funcs = []*wasm.FunctionSig{sig(nil, nil)}

	fn := function(nil, nil, nil, asm(OpRefFunc, uleb(0), OpDrop, OpEnd))
	_, err := Validate(scope, fn, Options{Features: wasm.DefaultFeatures})
	checkErrKind(t, invalid, err)

	scope.declared[0] = true
	_, err = Validate(scope, fn, Options{Features: wasm.DefaultFeatures})
	assert.NoError(t, err)
}

func TestValidateCallIndirect(t *testing.T) {
	scope := newTestScope()
	scope.types = []*wasm.FunctionSig{sig(types(i32t), types(f64t))}
	scope.tables = []wasm.Table{{ElementType: wasm.ValueTypeFuncref, Limits: wasm.Limits{Initial: 1, Maximum: 1}}}

	body := asm(OpI32Const, sleb(5), OpI32Const, sleb(0), OpCallIndirect, uleb(0), uleb(0), OpEnd)
	fn := function(nil, types(f64t), nil, body)
	_, err := Validate(scope, fn, Options{Features: wasm.DefaultFeatures})
	assert.NoError(t, err)

	scope.tables[0].ElementType = wasm.ValueTypeExternref
	_, err = Validate(scope, fn, Options{Features: wasm.DefaultFeatures})
	checkErrKind(t, invalid, err)
}

func TestValidateErrorLocation(t *testing.T) {
	fn := function(nil, types(i32t), nil, asm(OpI32Const, sleb(1), OpI64Const, sleb(1), OpI32Add, OpEnd))
	fn.BodyOffset = 0x100

	_, err := Validate(newTestScope(), fn, Options{Features: wasm.DefaultFeatures})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "i32.add at offset 0x104")
}

func TestMetrics(t *testing.T) {
	body := asm(OpLoop, 0x40, OpLocalGet, uleb(0), OpMemoryGrow, 0x00, OpDrop, OpEnd, OpEnd)
	fn := function(types(i32t), nil, nil, body)

	metrics, err := Validate(memoryScope(), fn, Options{Features: wasm.DefaultFeatures})
	require.NoError(t, err)
	assert.Equal(t, Metrics{
		MaxNesting:       2,
		MaxStackDepth:    1,
		MaxStackCells:    1,
		LabelCount:       2,
		InstructionCount: 6,
		HasLoops:         true,
		MemoryGrow:       true,
	}, metrics)
}

func TestMetricsCountCells(t *testing.T) {
	body := asm(OpI64Const, sleb(1), OpF64Const, make([]byte, 8), OpI32Const, sleb(1), OpSelect, OpDrop, OpI32Const, sleb(0), OpDrop, OpEnd)
	fn := function(nil, nil, nil, body)

	_, err := Validate(newTestScope(), fn, Options{Features: wasm.DefaultFeatures})
	checkErrKind(t, invalid, err)

	body = asm(OpI64Const, sleb(1), OpI64Const, sleb(2), OpI32Const, sleb(1), OpSelect, OpDrop, OpEnd)
	fn = function(nil, nil, nil, body)
	metrics, err := Validate(newTestScope(), fn, Options{Features: wasm.DefaultFeatures})
	require.NoError(t, err)
	assert.Equal(t, 3, metrics.MaxStackDepth)
	assert.Equal(t, 5, metrics.MaxStackCells)
}
