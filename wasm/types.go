// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

import (
	"fmt"
	"math"
	"strings"
)

// ValueType represents the type of a valid value in Wasm
type ValueType uint8

const (
	// ValueTypeT is the wildcard type produced by pops from a polymorphic stack.
	ValueTypeT ValueType = 0

	ValueTypeI32       ValueType = 0x7f
	ValueTypeI64       ValueType = 0x7e
	ValueTypeF32       ValueType = 0x7d
	ValueTypeF64       ValueType = 0x7c
	ValueTypeV128      ValueType = 0x7b
	ValueTypeFuncref   ValueType = 0x70
	ValueTypeExternref ValueType = 0x6f
)

var valueTypeStrMap = map[ValueType]string{
	ValueTypeT:         "<any>",
	ValueTypeI32:       "i32",
	ValueTypeI64:       "i64",
	ValueTypeF32:       "f32",
	ValueTypeF64:       "f64",
	ValueTypeV128:      "v128",
	ValueTypeFuncref:   "funcref",
	ValueTypeExternref: "externref",
}

func (t ValueType) String() string {
	str, ok := valueTypeStrMap[t]
	if !ok {
		str = fmt.Sprintf("<unknown value_type %#x>", uint8(t))
	}
	return str
}

// Cells returns the number of 32-bit stack cells occupied by a value of this type.
func (t ValueType) Cells() int {
	switch t {
	case ValueTypeI64, ValueTypeF64:
		return 2
	case ValueTypeV128:
		return 4
	default:
		return 1
	}
}

// Size returns the number of bytes of global storage occupied by a value of this type.
func (t ValueType) Size() uint32 {
	return uint32(t.Cells()) * 4
}

func (t ValueType) IsRef() bool {
	return t == ValueTypeFuncref || t == ValueTypeExternref
}

// NullRef is the bit pattern of a null reference.
const NullRef = math.MaxUint32

// cells sums the cell counts of a sequence of types.
func cells(types []ValueType) int {
	n := 0
	for _, t := range types {
		n += t.Cells()
	}
	return n
}

// FunctionSig describes the signature of a declared function in a WASM module. Signatures are interned per module:
// every declared type index with the same parameters and results refers to the same *FunctionSig, and RefCount
// counts those declarations.
type FunctionSig struct {
	ParamTypes  []ValueType
	ReturnTypes []ValueType

	ParamCells  int
	ReturnCells int

	RefCount int
}

func newFunctionSig(params, results []ValueType) *FunctionSig {
	return &FunctionSig{
		ParamTypes:  params,
		ReturnTypes: results,
		ParamCells:  cells(params),
		ReturnCells: cells(results),
	}
}

// Equal returns true if f and other have the same parameter and result types.
func (f *FunctionSig) Equal(other *FunctionSig) bool {
	if f == other {
		return true
	}
	if len(f.ParamTypes) != len(other.ParamTypes) || len(f.ReturnTypes) != len(other.ReturnTypes) {
		return false
	}
	for i, t := range f.ParamTypes {
		if other.ParamTypes[i] != t {
			return false
		}
	}
	for i, t := range f.ReturnTypes {
		if other.ReturnTypes[i] != t {
			return false
		}
	}
	return true
}

func (f *FunctionSig) key() string {
	var b strings.Builder
	for _, t := range f.ParamTypes {
		b.WriteByte(byte(t))
	}
	b.WriteByte(0)
	for _, t := range f.ReturnTypes {
		b.WriteByte(byte(t))
	}
	return b.String()
}

func (f *FunctionSig) String() string {
	return fmt.Sprintf("<func %v -> %v>", f.ParamTypes, f.ReturnTypes)
}

// GlobalVar describes the type and mutability of a declared global variable
type GlobalVar struct {
	Type    ValueType // Type of the value stored by the variable
	Mutable bool      // Whether the value of the variable can be changed by the set_global operator
}

// External describes the kind of the entry being imported or exported.
type External uint8

const (
	ExternalFunction External = 0
	ExternalTable    External = 1
	ExternalMemory   External = 2
	ExternalGlobal   External = 3
)

func (e External) String() string {
	switch e {
	case ExternalFunction:
		return "function"
	case ExternalTable:
		return "table"
	case ExternalMemory:
		return "memory"
	case ExternalGlobal:
		return "global"
	default:
		return "<unknown external_kind>"
	}
}

// Limits describe the size bounds of a table or memory. Maximum always holds the effective maximum: the declared
// one when HasMax is set, an implementation default otherwise.
type Limits struct {
	Initial uint64
	Maximum uint64
	HasMax  bool
	Shared  bool
	Is64    bool
}

// Table describes a table in a Wasm module.
type Table struct {
	ElementType ValueType
	Limits      Limits
}

// PageSize is the size of a linear memory page in bytes.
const PageSize = 65536

// Memory describes a linear memory in a Wasm module.
type Memory struct {
	Limits   Limits
	PageSize uint32
}

// ImportedFunction is a function import. Host is only meaningful when Resolved is true.
type ImportedFunction struct {
	ModuleName string
	FieldName  string
	TypeIndex  uint32
	Sig        *FunctionSig

	Host     HostFunction
	Resolved bool
}

type ImportedTable struct {
	ModuleName string
	FieldName  string
	Table      Table
}

type ImportedMemory struct {
	ModuleName string
	FieldName  string
	Memory     Memory
}

// ImportedGlobal is a global import. Value is only meaningful when Resolved is true.
type ImportedGlobal struct {
	ModuleName string
	FieldName  string
	Type       GlobalVar

	Value    GlobalValue
	Resolved bool
}

// Function is a function defined by the module.
type Function struct {
	TypeIndex uint32
	Sig       *FunctionSig
	Name      string

	// Locals holds the expanded types of the declared locals, not including parameters.
	Locals []ValueType
	// LocalOffsets holds the cell offset of each parameter followed by each local.
	LocalOffsets []uint16
	ParamCells   int
	LocalCells   int

	// Body is the function's expression, starting after the local declarations. BodyOffset is its offset in the
	// module binary.
	Body       []byte
	BodyOffset int64

	// Filled in by validation.
	MaxStackCells int
	MaxStackDepth int
	MaxBlockDepth int

	// Filled in when the body is rewritten into the slot-based encoding.
	Code      []byte
	Consts    []byte
	Rewritten bool
}

// LocalType returns the type of the given parameter or local.
func (f *Function) LocalType(localidx uint32) (ValueType, bool) {
	params := f.Sig.ParamTypes
	if localidx < uint32(len(params)) {
		return params[localidx], true
	}
	localidx -= uint32(len(params))
	if localidx >= uint32(len(f.Locals)) {
		return 0, false
	}
	return f.Locals[localidx], true
}

// Global is a global defined by the module.
type Global struct {
	Type GlobalVar
	Init ConstExpr
}

// Export is an entry in the export section.
type Export struct {
	Name  string
	Kind  External
	Index uint32
}

// SegmentMode describes when an element or data segment is applied.
type SegmentMode uint8

const (
	SegmentActive SegmentMode = iota
	SegmentPassive
	SegmentDeclarative
)

func (m SegmentMode) String() string {
	switch m {
	case SegmentActive:
		return "active"
	case SegmentPassive:
		return "passive"
	case SegmentDeclarative:
		return "declarative"
	default:
		return "<unknown segment mode>"
	}
}

// ElementSegment describes a group of repeated elements that begin at a specified offset in a table. Init holds one
// expression per element; segments that list bare function indices are stored as ref.func expressions.
type ElementSegment struct {
	Mode       SegmentMode
	TableIndex uint32
	Offset     ConstExpr
	Type       ValueType
	Init       []ConstExpr
}

// DataSegment describes a group of repeated bytes that begin at a specified offset in a linear memory. Init either
// aliases the module binary or, when Owned is set, was allocated by the module's allocator.
type DataSegment struct {
	Mode        SegmentMode
	MemoryIndex uint32
	Offset      ConstExpr
	Init        []byte
	Owned       bool
}

// CustomSection is a custom section. Data follows the same ownership rules as DataSegment.Init.
type CustomSection struct {
	Name  string
	Data  []byte
	Owned bool
}
