package wasm

import (
	"encoding/binary"
	"math"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm/internal/readpos"
)

const (
	opEnd        = 0x0b
	opGlobalGet  = 0x23
	opI32Const   = 0x41
	opI64Const   = 0x42
	opF32Const   = 0x43
	opF64Const   = 0x44
	opRefNull    = 0xd0
	opRefFunc    = 0xd2
	opSIMDPrefix = 0xfd
	opV128Const  = 12
)

// ConstExpr is the value of an initializer expression. Opcode is the instruction that produced the value. For
// global.get and ref.func, Bits holds the referenced index; for v128.const, Bits and Hi hold the low and high halves.
type ConstExpr struct {
	Opcode byte
	Type   ValueType
	Bits   uint64
	Hi     uint64
}

func (c ConstExpr) I32() int32 {
	return int32(c.Bits)
}

func (c ConstExpr) I64() int64 {
	return int64(c.Bits)
}

func (c ConstExpr) F32() float32 {
	return math.Float32frombits(uint32(c.Bits))
}

func (c ConstExpr) F64() float64 {
	return math.Float64frombits(c.Bits)
}

// IsGlobalGet returns true if the expression reads an imported global.
func (c ConstExpr) IsGlobalGet() bool {
	return c.Opcode == opGlobalGet
}

// IsRefFunc returns true if the expression is a function reference.
func (c ConstExpr) IsRefFunc() bool {
	return c.Opcode == opRefFunc
}

// IsNull returns true if the expression is a null reference.
func (c ConstExpr) IsNull() bool {
	return c.Opcode == opRefNull
}

// Index returns the function or global index referenced by ref.func or global.get.
func (c ConstExpr) Index() uint32 {
	return uint32(c.Bits)
}

// constStack holds the operands of an initializer expression. Valid expressions leave a single value; the inline
// array covers every realistic case before append moves the values to the heap.
type constStack struct {
	inline [4]ConstExpr
	vals   []ConstExpr
}

func (s *constStack) push(v ConstExpr) {
	if s.vals == nil {
		s.vals = s.inline[:0]
	}
	s.vals = append(s.vals, v)
}

// EvalConstExpr evaluates an encoded initializer expression, including its terminating end opcode, in the context of
// m. want is the type the expression must produce; trailing bytes after end are an error.
func (m *Module) EvalConstExpr(expr []byte, want ValueType) (ConstExpr, error) {
	r := readpos.New(expr, 0)
	v, err := m.evalConstExpr(r, want)
	if err != nil {
		return ConstExpr{}, err
	}
	if !r.AtEnd() {
		return ConstExpr{}, r.Errorf("unexpected content after last section")
	}
	return v, nil
}

func (m *Module) evalConstExpr(r *readpos.ReadPos, want ValueType) (ConstExpr, error) {
	var stack constStack
	for {
		opcode, err := r.Byte()
		if err != nil {
			return ConstExpr{}, err
		}

		switch opcode {
		case opI32Const:
			v, err := r.VarInt32()
			if err != nil {
				return ConstExpr{}, err
			}
			stack.push(ConstExpr{Opcode: opcode, Type: ValueTypeI32, Bits: uint64(uint32(v))})

		case opI64Const:
			v, err := r.VarInt64()
			if err != nil {
				return ConstExpr{}, err
			}
			stack.push(ConstExpr{Opcode: opcode, Type: ValueTypeI64, Bits: uint64(v)})

		case opF32Const:
			v, err := r.U32()
			if err != nil {
				return ConstExpr{}, err
			}
			stack.push(ConstExpr{Opcode: opcode, Type: ValueTypeF32, Bits: uint64(v)})

		case opF64Const:
			v, err := r.U64()
			if err != nil {
				return ConstExpr{}, err
			}
			stack.push(ConstExpr{Opcode: opcode, Type: ValueTypeF64, Bits: v})

		case opSIMDPrefix:
			if err := m.Features.RequireEnabled(FeatureSIMD, "v128.const"); err != nil {
				return ConstExpr{}, err
			}
			sub, err := r.VarUint32()
			if err != nil {
				return ConstExpr{}, err
			}
			if sub != opV128Const {
				return ConstExpr{}, ValidationError("constant expression required")
			}
			b, err := r.Bytes(16)
			if err != nil {
				return ConstExpr{}, err
			}
			stack.push(ConstExpr{
				Opcode: opcode,
				Type:   ValueTypeV128,
				Bits:   binary.LittleEndian.Uint64(b),
				Hi:     binary.LittleEndian.Uint64(b[8:]),
			})

		case opRefNull:
			if err := m.requireRefs("ref.null"); err != nil {
				return ConstExpr{}, err
			}
			t, err := r.Byte()
			if err != nil {
				return ConstExpr{}, err
			}
			if !ValueType(t).IsRef() {
				return ConstExpr{}, r.Errorf("malformed reference type %#x", t)
			}
			stack.push(ConstExpr{Opcode: opcode, Type: ValueType(t), Bits: NullRef})

		case opRefFunc:
			if err := m.requireRefs("ref.func"); err != nil {
				return ConstExpr{}, err
			}
			funcidx, err := r.VarUint32()
			if err != nil {
				return ConstExpr{}, err
			}
			if funcidx >= m.NumFunctions() {
				return ConstExpr{}, validationErrorf("unknown function %d", funcidx)
			}
			m.declareFunction(funcidx)
			stack.push(ConstExpr{Opcode: opcode, Type: ValueTypeFuncref, Bits: uint64(funcidx)})

		case opGlobalGet:
			globalidx, err := r.VarUint32()
			if err != nil {
				return ConstExpr{}, err
			}
			if globalidx >= uint32(len(m.ImportedGlobals)) {
				return ConstExpr{}, validationErrorf("unknown global %d", globalidx)
			}
			g := m.ImportedGlobals[globalidx].Type
			if g.Mutable {
				return ConstExpr{}, ValidationError("constant expression required")
			}
			stack.push(ConstExpr{Opcode: opcode, Type: g.Type, Bits: uint64(globalidx)})

		case opEnd:
			if len(stack.vals) != 1 || stack.vals[0].Type != want {
				return ConstExpr{}, ValidationError("type mismatch")
			}
			return stack.vals[0], nil

		default:
			return ConstExpr{}, ValidationError("constant expression required")
		}
	}
}

func (m *Module) requireRefs(what string) error {
	if m.Features.IsEnabled(FeatureReferenceTypes) || m.Features.IsEnabled(FeatureBulkMemory) {
		return nil
	}
	return &UnsupportedFeatureError{Feature: FeatureReferenceTypes, What: what}
}
