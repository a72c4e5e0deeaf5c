package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/internal/wasmtest"
	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"
	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm/code"
)

const i32 = wasm.ValueTypeI32

func decode(t *testing.T, b *wasmtest.Builder) *wasm.Module {
	m, err := wasm.DecodeModule(b.Bytes(), wasm.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestValidateModuleRecordsBounds(t *testing.T) {
	b := wasmtest.New()
	sig := b.Type([]wasm.ValueType{i32}, []wasm.ValueType{i32})
	b.Memory(1, -1)
	b.ImportFunc("env", "f", sig)
	b.Func(sig, nil, wasmtest.Body(
		[]byte{code.OpBlock, 0x40, code.OpLoop, 0x40},
		[]byte{code.OpLocalGet, 0x00, code.OpMemoryGrow, 0x00, code.OpDrop},
		[]byte{code.OpEnd, code.OpEnd},
		[]byte{code.OpLocalGet, 0x00, code.OpEnd},
	))
	m := decode(t, b)

	require.NoError(t, ValidateModule(m, Options{}))

	fn := &m.Functions[0]
	assert.Equal(t, 1, fn.MaxStackCells)
	assert.Equal(t, 1, fn.MaxStackDepth)
	assert.Equal(t, 3, fn.MaxBlockDepth)
	assert.True(t, m.PossibleMemoryGrow)
	assert.False(t, fn.Rewritten)
	assert.Nil(t, fn.Code)
}

func TestValidateModuleRewrites(t *testing.T) {
	b := wasmtest.New()
	sig := b.Type([]wasm.ValueType{i32, i32}, []wasm.ValueType{i32})
	b.Func(sig, nil, []byte{code.OpLocalGet, 0x00, code.OpLocalGet, 0x01, code.OpI32Add, code.OpEnd})
	m := decode(t, b)

	require.NoError(t, ValidateModule(m, Options{Rewrite: true}))

	fn := &m.Functions[0]
	assert.True(t, fn.Rewritten)
	assert.Equal(t, []byte{code.OpI32Add, 0x00, 0x00, 0x01, 0x00, 0x02, 0x00, code.OpReturn, 0x02, 0x00}, fn.Code)
	assert.Empty(t, fn.Consts)
	assert.False(t, m.PossibleMemoryGrow)
}

func TestValidateModuleNamesFailingFunction(t *testing.T) {
	b := wasmtest.New()
	sig := b.Type(nil, []wasm.ValueType{i32})
	b.ImportFunc("env", "f", sig)
	b.Func(sig, nil, wasmtest.Body(wasmtest.I32Const(1), []byte{code.OpEnd}))
	b.Func(sig, nil, wasmtest.Body(wasmtest.I64Const(1), []byte{code.OpEnd}))
	m := decode(t, b)

	err := ValidateModule(m, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "function 2:")

	var verr wasm.ValidationError
	assert.True(t, errors.As(err, &verr))
}
