package code

import "github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"

// opSig is the fixed operand and result signature of a simple instruction.
type opSig struct {
	in      []wasm.ValueType
	out     wasm.ValueType
	feature wasm.Features
}

func (s *opSig) valid() bool {
	return s.in != nil
}

var (
	i32    = []wasm.ValueType{wasm.ValueTypeI32}
	i64    = []wasm.ValueType{wasm.ValueTypeI64}
	f32    = []wasm.ValueType{wasm.ValueTypeF32}
	f64    = []wasm.ValueType{wasm.ValueTypeF64}
	i32i32 = []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}
	i64i64 = []wasm.ValueType{wasm.ValueTypeI64, wasm.ValueTypeI64}
	f32f32 = []wasm.ValueType{wasm.ValueTypeF32, wasm.ValueTypeF32}
	f64f64 = []wasm.ValueType{wasm.ValueTypeF64, wasm.ValueTypeF64}
)

// numericSigs holds the signatures of the single-byte numeric instructions.
var numericSigs [256]opSig

// truncSatSigs holds the signatures of the saturating truncation instructions under OpPrefix.
var truncSatSigs [8]opSig

func sigRange(table []opSig, first, last int, in []wasm.ValueType, out wasm.ValueType, feature wasm.Features) {
	for op := first; op <= last; op++ {
		table[op] = opSig{in: in, out: out, feature: feature}
	}
}

func init() {
	const (
		I32 = wasm.ValueTypeI32
		I64 = wasm.ValueTypeI64
		F32 = wasm.ValueTypeF32
		F64 = wasm.ValueTypeF64
	)

	t := numericSigs[:]
	sigRange(t, OpI32Eqz, OpI32Eqz, i32, I32, 0)
	sigRange(t, OpI32Eq, OpI32GeU, i32i32, I32, 0)
	sigRange(t, OpI64Eqz, OpI64Eqz, i64, I32, 0)
	sigRange(t, OpI64Eq, OpI64GeU, i64i64, I32, 0)
	sigRange(t, OpF32Eq, OpF32Ge, f32f32, I32, 0)
	sigRange(t, OpF64Eq, OpF64Ge, f64f64, I32, 0)

	sigRange(t, OpI32Clz, OpI32Popcnt, i32, I32, 0)
	sigRange(t, OpI32Add, OpI32Rotr, i32i32, I32, 0)
	sigRange(t, OpI64Clz, OpI64Popcnt, i64, I64, 0)
	sigRange(t, OpI64Add, OpI64Rotr, i64i64, I64, 0)
	sigRange(t, OpF32Abs, OpF32Sqrt, f32, F32, 0)
	sigRange(t, OpF32Add, OpF32Copysign, f32f32, F32, 0)
	sigRange(t, OpF64Abs, OpF64Sqrt, f64, F64, 0)
	sigRange(t, OpF64Add, OpF64Copysign, f64f64, F64, 0)

	sigRange(t, OpI32WrapI64, OpI32WrapI64, i64, I32, 0)
	sigRange(t, OpI32TruncF32S, OpI32TruncF32U, f32, I32, 0)
	sigRange(t, OpI32TruncF64S, OpI32TruncF64U, f64, I32, 0)
	sigRange(t, OpI64ExtendI32S, OpI64ExtendI32U, i32, I64, 0)
	sigRange(t, OpI64TruncF32S, OpI64TruncF32U, f32, I64, 0)
	sigRange(t, OpI64TruncF64S, OpI64TruncF64U, f64, I64, 0)
	sigRange(t, OpF32ConvertI32S, OpF32ConvertI32U, i32, F32, 0)
	sigRange(t, OpF32ConvertI64S, OpF32ConvertI64U, i64, F32, 0)
	sigRange(t, OpF32DemoteF64, OpF32DemoteF64, f64, F32, 0)
	sigRange(t, OpF64ConvertI32S, OpF64ConvertI32U, i32, F64, 0)
	sigRange(t, OpF64ConvertI64S, OpF64ConvertI64U, i64, F64, 0)
	sigRange(t, OpF64PromoteF32, OpF64PromoteF32, f32, F64, 0)
	sigRange(t, OpI32ReinterpretF32, OpI32ReinterpretF32, f32, I32, 0)
	sigRange(t, OpI64ReinterpretF64, OpI64ReinterpretF64, f64, I64, 0)
	sigRange(t, OpF32ReinterpretI32, OpF32ReinterpretI32, i32, F32, 0)
	sigRange(t, OpF64ReinterpretI64, OpF64ReinterpretI64, i64, F64, 0)

	sigRange(t, OpI32Extend8S, OpI32Extend16S, i32, I32, wasm.FeatureSignExtension)
	sigRange(t, OpI64Extend8S, OpI64Extend32S, i64, I64, wasm.FeatureSignExtension)

	s := truncSatSigs[:]
	sigRange(s, OpI32TruncSatF32S, OpI32TruncSatF32U, f32, I32, wasm.FeatureSaturatingFloatToInt)
	sigRange(s, OpI32TruncSatF64S, OpI32TruncSatF64U, f64, I32, wasm.FeatureSaturatingFloatToInt)
	sigRange(s, OpI64TruncSatF32S, OpI64TruncSatF32U, f32, I64, wasm.FeatureSaturatingFloatToInt)
	sigRange(s, OpI64TruncSatF64S, OpI64TruncSatF64U, f64, I64, wasm.FeatureSaturatingFloatToInt)
}

// memOp describes a load or store: the natural alignment (log2 of the access size) and the value type.
type memOp struct {
	align uint32
	typ   wasm.ValueType
	store bool
}

var memOps = map[byte]memOp{
	OpI32Load:    {2, wasm.ValueTypeI32, false},
	OpI64Load:    {3, wasm.ValueTypeI64, false},
	OpF32Load:    {2, wasm.ValueTypeF32, false},
	OpF64Load:    {3, wasm.ValueTypeF64, false},
	OpI32Load8S:  {0, wasm.ValueTypeI32, false},
	OpI32Load8U:  {0, wasm.ValueTypeI32, false},
	OpI32Load16S: {1, wasm.ValueTypeI32, false},
	OpI32Load16U: {1, wasm.ValueTypeI32, false},
	OpI64Load8S:  {0, wasm.ValueTypeI64, false},
	OpI64Load8U:  {0, wasm.ValueTypeI64, false},
	OpI64Load16S: {1, wasm.ValueTypeI64, false},
	OpI64Load16U: {1, wasm.ValueTypeI64, false},
	OpI64Load32S: {2, wasm.ValueTypeI64, false},
	OpI64Load32U: {2, wasm.ValueTypeI64, false},
	OpI32Store:   {2, wasm.ValueTypeI32, true},
	OpI64Store:   {3, wasm.ValueTypeI64, true},
	OpF32Store:   {2, wasm.ValueTypeF32, true},
	OpF64Store:   {3, wasm.ValueTypeF64, true},
	OpI32Store8:  {0, wasm.ValueTypeI32, true},
	OpI32Store16: {1, wasm.ValueTypeI32, true},
	OpI64Store8:  {0, wasm.ValueTypeI64, true},
	OpI64Store16: {1, wasm.ValueTypeI64, true},
	OpI64Store32: {2, wasm.ValueTypeI64, true},
}
