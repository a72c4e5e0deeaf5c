package exec

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/internal/wasmtest"
	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"
)

type recordingTier struct {
	m        sync.Mutex
	compiled []uint32
	block    chan struct{}
	fail     uint32
}

func (r *recordingTier) CompileFunction(m *wasm.Module, funcidx uint32, c *Compilation) error {
	if r.block != nil {
		for !c.ShouldStop() {
			select {
			case <-r.block:
				return nil
			default:
			}
		}
		return nil
	}
	if r.fail != 0 && funcidx == r.fail {
		return errors.New("boom")
	}

	r.m.Lock()
	defer r.m.Unlock()
	r.compiled = append(r.compiled, funcidx)
	return nil
}

func module(t *testing.T, functions int) *wasm.Module {
	b := wasmtest.New()
	sig := b.Type(nil, nil)
	b.ImportFunc("env", "f", sig)
	for i := 0; i < functions; i++ {
		b.Func(sig, nil, []byte{0x0b})
	}
	m, err := wasm.DecodeModule(b.Bytes(), wasm.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestCompilation(t *testing.T) {
	tier := &recordingTier{}
	c := StartCompilation(module(t, 20), tier, 4)

	require.NoError(t, c.Wait())
	assert.True(t, c.Ready())
	assert.ElementsMatch(t, []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}, tier.compiled)
}

func TestCompilationError(t *testing.T) {
	tier := &recordingTier{fail: 3}
	c := StartCompilation(module(t, 5), tier, 1)

	assert.EqualError(t, c.Wait(), "boom")
	assert.True(t, c.ShouldStop())
	assert.NotContains(t, tier.compiled, uint32(4))
}

func TestCompilationStop(t *testing.T) {
	tier := &recordingTier{block: make(chan struct{})}
	c := StartCompilation(module(t, 8), tier, 2)

	assert.False(t, c.ShouldStop())
	c.Stop()
	assert.True(t, c.Ready())
	assert.True(t, c.ShouldStop())
}

func TestCompilationNoFunctions(t *testing.T) {
	c := StartCompilation(module(t, 0), &recordingTier{}, 0)
	assert.NoError(t, c.Wait())
}

type concurrencyTier struct {
	active atomic.Int32
	peak   atomic.Int32
}

func (r *concurrencyTier) CompileFunction(m *wasm.Module, funcidx uint32, c *Compilation) error {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		peak := r.peak.Load()
		if n <= peak || r.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return nil
}

func TestCompilationLimitsWorkers(t *testing.T) {
	tier := &concurrencyTier{}
	c := StartCompilation(module(t, 16), tier, 3)

	require.NoError(t, c.Wait())
	assert.LessOrEqual(t, tier.peak.Load(), int32(3))
	assert.Zero(t, tier.active.Load())
}
