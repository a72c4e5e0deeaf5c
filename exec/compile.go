package exec

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"
)

// A Tier compiles validated functions in the background. Implementations read the module's functions and types,
// which are immutable once loading completes, and should return promptly once c.ShouldStop reports true.
type Tier interface {
	CompileFunction(m *wasm.Module, funcidx uint32, c *Compilation) error
}

// Compilation coordinates the workers that run a Tier over a module's defined functions.
type Compilation struct {
	module *wasm.Module
	tier   Tier
	log    *zap.Logger

	ctx  context.Context
	stop atomic.Bool

	m     sync.Mutex
	cond  *sync.Cond
	ready bool
	err   error
}

// StartCompilation compiles each defined function of m with tier, running at most workers functions at a time.
func StartCompilation(m *wasm.Module, tier Tier, workers int) *Compilation {
	if workers < 1 {
		workers = 1
	}

	eg, ctx := errgroup.WithContext(context.Background())
	eg.SetLimit(workers)

	c := &Compilation{
		module: m,
		tier:   tier,
		log:    wasm.Logger(),
		ctx:    ctx,
	}
	c.cond = sync.NewCond(&c.m)

	c.log.Debug("starting compilation", zap.Int("functions", len(m.Functions)), zap.Int("workers", workers))
	go c.run(eg)
	return c
}

func (c *Compilation) run(eg *errgroup.Group) {
	imported := uint32(len(c.module.ImportedFunctions))
	for i := range c.module.Functions {
		if c.ShouldStop() {
			break
		}
		funcidx := imported + uint32(i)
		eg.Go(func() error {
			if c.ShouldStop() {
				return nil
			}
			if err := c.tier.CompileFunction(c.module, funcidx, c); err != nil {
				c.log.Debug("compilation failed", zap.Uint32("function", funcidx), zap.Error(err))
				return err
			}
			return nil
		})
	}
	err := eg.Wait()

	c.m.Lock()
	defer c.m.Unlock()

	c.err = err
	c.ready = true
	c.cond.Broadcast()
}

// ShouldStop returns true once the compilation has been asked to stop or a function has failed to compile. Tiers
// poll it between units of work.
func (c *Compilation) ShouldStop() bool {
	return c.stop.Load() || c.ctx.Err() != nil
}

// Ready returns true once every function has been compiled or the compilation has stopped.
func (c *Compilation) Ready() bool {
	c.m.Lock()
	defer c.m.Unlock()
	return c.ready
}

// Wait blocks until every worker has exited and returns the first compilation error, if any.
func (c *Compilation) Wait() error {
	c.m.Lock()
	defer c.m.Unlock()

	for !c.ready {
		c.cond.Wait()
	}
	return c.err
}

// Stop asks the workers to stop and waits for them to exit. The module may be released once Stop returns.
func (c *Compilation) Stop() {
	c.stop.Store(true)
	c.Wait()
}
