package validate

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"
	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm/code"
)

// Options configures ValidateModule.
type Options struct {
	// Rewrite translates each validated body into the slot-based encoding. Functions whose frames do not fit the
	// encoding are left in their raw form.
	Rewrite bool
}

type validator struct {
	module *wasm.Module
	opts   Options
	code   code.Options
	log    *zap.Logger
}

// ValidateModule validates the body of every function defined by m, recording the operand stack and nesting bounds
// of each. The module's structure must already have been checked by wasm.DecodeModule.
func ValidateModule(m *wasm.Module, opts Options) error {
	v := validator{
		module: m,
		opts:   opts,
		code:   code.Options{Features: m.Features, Allocator: m.Allocator()},
		log:    wasm.Logger(),
	}

	imported := uint32(len(m.ImportedFunctions))
	for i := range m.Functions {
		if err := v.validateFunction(&m.Functions[i]); err != nil {
			return fmt.Errorf("function %d: %w", imported+uint32(i), err)
		}
	}
	return nil
}

func (v *validator) validateFunction(fn *wasm.Function) error {
	var metrics code.Metrics
	if v.opts.Rewrite {
		rewritten, m, err := code.Rewrite(v.module, fn, v.code)
		if err != nil {
			return err
		}
		metrics = m
		if rewritten.Code != nil {
			v.module.Adopt(rewritten.Code)
			v.module.Adopt(rewritten.Consts)
			fn.Code, fn.Consts, fn.Rewritten = rewritten.Code, rewritten.Consts, true
		}
	} else {
		m, err := code.Validate(v.module, fn, v.code)
		if err != nil {
			return err
		}
		metrics = m
	}

	fn.MaxStackCells = metrics.MaxStackCells
	fn.MaxStackDepth = metrics.MaxStackDepth
	fn.MaxBlockDepth = metrics.MaxNesting
	if metrics.MemoryGrow {
		v.module.PossibleMemoryGrow = true
	}

	v.log.Debug("validated function",
		zap.String("name", fn.Name),
		zap.Int("instructions", metrics.InstructionCount),
		zap.Int("maxStackCells", metrics.MaxStackCells),
		zap.Int("maxNesting", metrics.MaxNesting),
		zap.Bool("rewritten", fn.Rewritten))
	return nil
}
