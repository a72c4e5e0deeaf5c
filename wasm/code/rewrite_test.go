package code

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"
)

func consts(vals ...uint64) []byte {
	var b []byte
	for _, v := range vals {
		b = binary.LittleEndian.AppendUint64(b, v)
	}
	return b
}

func TestRewrite(t *testing.T) {
	cases := []struct {
		name       string
		params     []wasm.ValueType
		results    []wasm.ValueType
		body       []byte
		code       []byte
		consts     []byte
		frameCells int
	}{
		{
			name:       "operands are read from locals",
			params:     types(i32t, i32t),
			results:    types(i32t),
			body:       asm(OpLocalGet, uleb(0), OpLocalGet, uleb(1), OpI32Add, OpEnd),
			code:       []byte{OpI32Add, 0x00, 0x00, 0x01, 0x00, 0x02, 0x00, OpReturn, 0x02, 0x00},
			frameCells: 4,
		},
		{
			name:       "constants are pooled",
			results:    types(i32t),
			body:       asm(OpI32Const, sleb(7), OpEnd),
			code:       []byte{OpCopy32, 0xff, 0xff, 0x00, 0x00, OpReturn, 0x00, 0x00},
			consts:     consts(7),
			frameCells: 1,
		},
		{
			name:       "constants are deduplicated",
			results:    types(i32t),
			body:       asm(OpI32Const, sleb(7), OpI32Const, sleb(7), OpI32Add, OpEnd),
			code:       []byte{OpI32Add, 0xff, 0xff, 0xff, 0xff, 0x00, 0x00, OpReturn, 0x00, 0x00},
			consts:     consts(7),
			frameCells: 2,
		},
		{
			name:    "local references are preserved before a store",
			params:  types(i32t),
			results: types(i32t),
			body:    asm(OpLocalGet, uleb(0), OpI32Const, sleb(1), OpLocalSet, uleb(0), OpEnd),
			code: []byte{
				OpCopy32, 0x00, 0x00, 0x01, 0x00,
				OpSetLocal32, 0x00, 0xff, 0xff,
				OpReturn, 0x01, 0x00,
			},
			consts:     consts(1),
			frameCells: 3,
		},
		{
			name:    "branch arguments are copied",
			results: types(i32t),
			body:    asm(OpBlock, i32t, OpI32Const, sleb(5), OpBr, uleb(0), OpEnd, OpEnd),
			code: []byte{
				OpBr, 0x0b, 0x00, 0x00, 0x00, 0x01, 0xff, 0xff, 0x00, 0x00, 0x01,
				OpReturn, 0x00, 0x00,
			},
			consts:     consts(5),
			frameCells: 1,
		},
		{
			name:    "if else",
			params:  types(i32t),
			results: types(i32t),
			body:    asm(OpLocalGet, uleb(0), OpIf, i32t, OpI32Const, sleb(1), OpElse, OpI32Const, sleb(2), OpEnd, OpEnd),
			code: []byte{
				OpIf, 0x00, 0x00, 0x12, 0x00, 0x00, 0x00,
				OpCopy32, 0xff, 0xff, 0x01, 0x00,
				OpBr, 0x17, 0x00, 0x00, 0x00, 0x00,
				OpCopy32, 0xfe, 0xff, 0x01, 0x00,
				OpReturn, 0x01, 0x00,
			},
			consts:     consts(1, 2),
			frameCells: 2,
		},
		{
			name:       "loops branch backwards",
			params:     types(i32t),
			body:       asm(OpLoop, 0x40, OpLocalGet, uleb(0), OpBrIf, uleb(0), OpEnd, OpEnd),
			code:       []byte{OpBrIf, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, OpReturn},
			frameCells: 2,
		},
		{
			name:       "v128 constants take two entries",
			body:       asm(OpPrefixSIMD, uleb(OpV128Const), consts(1, 2), OpDrop, OpI32Const, sleb(9), OpDrop, OpEnd),
			code:       []byte{OpReturn},
			consts:     consts(1, 2, 9),
			frameCells: 4,
		},
		{
			name:       "dead code is not emitted",
			results:    types(i32t),
			body:       asm(OpUnreachable, OpBlock, 0x40, OpI32Const, sleb(1), OpDrop, OpEnd, OpI32Const, sleb(3), OpEnd),
			code:       []byte{OpUnreachable},
			frameCells: 1,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			fn := function(c.params, c.results, nil, c.body)
			rewritten, _, err := Rewrite(newTestScope(), fn, Options{Features: wasm.DefaultFeatures})
			require.NoError(t, err)

			assert.Equal(t, c.code, rewritten.Code)
			if c.consts == nil {
				assert.Empty(t, rewritten.Consts)
			} else {
				assert.Equal(t, c.consts, rewritten.Consts)
			}
			assert.Equal(t, c.frameCells, rewritten.FrameCells)
		})
	}
}

func TestRewriteIsDeterministic(t *testing.T) {
	scope := memoryScope()
	body := asm(
		OpBlock, 0x40,
		OpLoop, 0x40,
		OpLocalGet, uleb(0), OpI32Const, sleb(4), OpI32Add, OpLocalTee, uleb(0),
		OpI32Load, uleb(2), uleb(8), OpI32Eqz, OpBrIf, uleb(1),
		OpLocalGet, uleb(0), OpI32Const, sleb(1024), OpI32LtU, OpBrIf, uleb(0),
		OpEnd,
		OpEnd,
		OpLocalGet, uleb(0),
		OpEnd,
	)
	fn := function(types(i32t), types(i32t), nil, body)

	first, m1, err := Rewrite(scope, fn, Options{Features: wasm.DefaultFeatures})
	require.NoError(t, err)
	second, m2, err := Rewrite(scope, fn, Options{Features: wasm.DefaultFeatures})
	require.NoError(t, err)

	assert.NotEmpty(t, first.Code)
	assert.Equal(t, first, second)
	assert.Equal(t, m1, m2)
	assert.True(t, m1.HasLoops)
}

func TestRewriteBranchTableInUnreachableCode(t *testing.T) {
	fn := function(nil, nil, nil, brTableMeetsBottom())
	rewritten, metrics, err := Rewrite(newTestScope(), fn, Options{Features: wasm.DefaultFeatures})
	require.NoError(t, err)
	assert.NotEmpty(t, rewritten.Code)
	assert.Equal(t, 3, metrics.MaxNesting)
}

func TestRewriteRejectsInvalidBodies(t *testing.T) {
	fn := function(nil, types(i32t), nil, asm(OpI64Const, sleb(1), OpEnd))
	_, _, err := Rewrite(newTestScope(), fn, Options{Features: wasm.DefaultFeatures})
	checkErrKind(t, invalid, err)
}

func TestRewriteFallsBackForLargeFrames(t *testing.T) {
	locals := make([]wasm.ValueType, 40000)
	for i := range locals {
		locals[i] = i32t
	}
	fn := function(nil, nil, locals, asm(OpEnd))

	rewritten, metrics, err := Rewrite(newTestScope(), fn, Options{Features: wasm.DefaultFeatures})
	require.NoError(t, err)
	assert.Empty(t, rewritten.Code)
	assert.Equal(t, 1, metrics.InstructionCount)
}

func TestRewriteFallsBackForLargeConstantPools(t *testing.T) {
	var body []byte
	for i := 0; i <= maxConsts; i++ {
		body = append(body, asm(OpI32Const, sleb(i), OpDrop)...)
	}
	body = append(body, OpEnd)
	fn := function(nil, nil, nil, body)

	rewritten, _, err := Rewrite(newTestScope(), fn, Options{Features: wasm.DefaultFeatures})
	require.NoError(t, err)
	assert.Empty(t, rewritten.Code)
	assert.Empty(t, rewritten.Consts)
}

func TestRewriteAllocationFailure(t *testing.T) {
	opts := Options{Features: wasm.DefaultFeatures, Allocator: failingAllocator{}}

	fn := function(nil, types(i32t), nil, asm(OpI32Const, sleb(1), OpEnd))
	_, _, err := Rewrite(newTestScope(), fn, opts)
	assert.True(t, errors.Is(err, wasm.ErrAllocationFailed))

	fn = function(nil, nil, nil, asm(OpNop, OpEnd))
	_, _, err = Rewrite(newTestScope(), fn, opts)
	assert.True(t, errors.Is(err, wasm.ErrAllocationFailed))
}
