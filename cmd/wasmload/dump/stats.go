package dump

import (
	"encoding/csv"
	"io"

	"github.com/jszwec/csvutil"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"
	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm/code"
)

// row holds the statistics of one defined function.
type row struct {
	Function         string `csv:"function"`
	Funcidx          int    `csv:"funcidx"`
	In               int    `csv:"in"`
	Out              int    `csv:"out"`
	LocalCount       int    `csv:"local count"`
	MaxStack         int    `csv:"max stack"`
	MaxStackCells    int    `csv:"max stack cells"`
	MaxNesting       int    `csv:"max nesting"`
	InstructionCount int    `csv:"instruction count"`
	BodySize         int    `csv:"body size"`
	Rewritten        bool   `csv:"rewritten"`
	CodeSize         int    `csv:"code size"`
	ConstCount       int    `csv:"const count"`
	Unreachable      int    `csv:"unreachable"`
	Block            int    `csv:"block"`
	Loop             int    `csv:"loop"`
	If               int    `csv:"if"`
	Else             int    `csv:"else"`
	Br               int    `csv:"br"`
	BrIf             int    `csv:"br_if"`
	BrTable          int    `csv:"br_table"`
	Return           int    `csv:"return"`
	Call             int    `csv:"call"`
	CallIndirect     int    `csv:"call_indirect"`
	Drop             int    `csv:"drop"`
	Select           int    `csv:"select"`
	LocalGet         int    `csv:"local.get"`
	LocalSet         int    `csv:"local.set"`
	LocalTee         int    `csv:"local.tee"`
	GlobalGet        int    `csv:"global.get"`
	GlobalSet        int    `csv:"global.set"`
	Load             int    `csv:"load"`
	Store            int    `csv:"store"`
	MemorySize       int    `csv:"memory.size"`
	MemoryGrow       int    `csv:"memory.grow"`
	Const            int    `csv:"const"`
	Prefixed         int    `csv:"prefixed"`
}

func (r *row) count(i code.Instruction) {
	r.InstructionCount++

	switch op := i.Opcode; {
	case op == code.OpUnreachable:
		r.Unreachable++
	case op == code.OpBlock:
		r.Block++
	case op == code.OpLoop:
		r.Loop++
	case op == code.OpIf:
		r.If++
	case op == code.OpElse:
		r.Else++
	case op == code.OpBr:
		r.Br++
	case op == code.OpBrIf:
		r.BrIf++
	case op == code.OpBrTable:
		r.BrTable++
	case op == code.OpReturn:
		r.Return++
	case op == code.OpCall || op == code.OpReturnCall:
		r.Call++
	case op == code.OpCallIndirect || op == code.OpReturnCallIndirect:
		r.CallIndirect++
	case op == code.OpDrop:
		r.Drop++
	case op == code.OpSelect || op == code.OpSelectT:
		r.Select++
	case op == code.OpLocalGet:
		r.LocalGet++
	case op == code.OpLocalSet:
		r.LocalSet++
	case op == code.OpLocalTee:
		r.LocalTee++
	case op == code.OpGlobalGet:
		r.GlobalGet++
	case op == code.OpGlobalSet:
		r.GlobalSet++
	case op >= code.OpI32Load && op <= code.OpI64Load32U:
		r.Load++
	case op >= code.OpI32Store && op <= code.OpI64Store32:
		r.Store++
	case op == code.OpMemorySize:
		r.MemorySize++
	case op == code.OpMemoryGrow:
		r.MemoryGrow++
	case op >= code.OpI32Const && op <= code.OpF64Const:
		r.Const++
	case op == code.OpPrefix || op == code.OpPrefixSIMD || op == code.OpPrefixAtomic:
		r.Prefixed++
	}
}

func dumpStats(w io.Writer, m *wasm.Module) error {
	csvWriter := csv.NewWriter(w)
	defer csvWriter.Flush()

	encoder := csvutil.NewEncoder(csvWriter)

	imported := uint32(len(m.ImportedFunctions))
	for i := range m.Functions {
		f := &m.Functions[i]
		funcidx := imported + uint32(i)

		r := row{
			Function:      functionName(m, funcidx),
			Funcidx:       int(funcidx),
			In:            len(f.Sig.ParamTypes),
			Out:           len(f.Sig.ReturnTypes),
			LocalCount:    len(f.Locals),
			MaxStack:      f.MaxStackDepth,
			MaxStackCells: f.MaxStackCells,
			MaxNesting:    f.MaxBlockDepth,
			BodySize:      len(f.Body),
			Rewritten:     f.Rewritten,
			CodeSize:      len(f.Code),
			ConstCount:    len(f.Consts) / 8,
		}
		if err := code.Scan(f.Body, func(i code.Instruction) bool {
			r.count(i)
			return true
		}); err != nil {
			return err
		}

		if err := encoder.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
