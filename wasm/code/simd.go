package code

import "github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"

type simdKind uint8

const (
	simdInvalid simdKind = iota
	simdLoad             // memarg; [addr] -> v128
	simdStore            // memarg; [addr v128] -> []
	simdLoadLane         // memarg lane; [addr v128] -> v128
	simdStoreLane        // memarg lane; [addr v128] -> []
	simdConst            // 16 bytes; [] -> v128
	simdShuffle          // 16 lanes; [v128 v128] -> v128
	simdSplat            // [t] -> v128
	simdExtract          // lane; [v128] -> t
	simdReplace          // lane; [v128 t] -> v128
	simdUnary            // [v128] -> v128
	simdBinary           // [v128 v128] -> v128
	simdTernary          // [v128 v128 v128] -> v128
	simdTest             // [v128] -> i32
	simdShift            // [v128 i32] -> v128
)

// simdOp describes a subopcode of OpPrefixSIMD. For memory accesses align is the natural alignment; for lane
// accesses lanes is the number of lanes.
type simdOp struct {
	kind  simdKind
	typ   wasm.ValueType
	align uint32
	lanes uint8
}

const (
	OpV128Load     = 0x00
	OpV128Store    = 0x0b
	OpV128Const    = 0x0c
	OpI8x16Shuffle = 0x0d
)

var simdOps [256]simdOp

func simdRange(first, last int, kind simdKind) {
	for op := first; op <= last; op++ {
		simdOps[op] = simdOp{kind: kind}
	}
}

func init() {
	const (
		I32 = wasm.ValueTypeI32
		I64 = wasm.ValueTypeI64
		F32 = wasm.ValueTypeF32
		F64 = wasm.ValueTypeF64
	)

	// v128.load, then the extending loads, then the splatting loads.
	for op, align := range []uint32{4, 3, 3, 3, 3, 3, 3, 0, 1, 2, 3} {
		simdOps[op] = simdOp{kind: simdLoad, align: align}
	}
	simdOps[OpV128Store] = simdOp{kind: simdStore, align: 4}
	simdOps[OpV128Const] = simdOp{kind: simdConst}
	simdOps[OpI8x16Shuffle] = simdOp{kind: simdShuffle}
	simdOps[0x0e] = simdOp{kind: simdBinary} // i8x16.swizzle

	for i, t := range []wasm.ValueType{I32, I32, I32, I64, F32, F64} {
		simdOps[0x0f+i] = simdOp{kind: simdSplat, typ: t}
	}

	lane := func(op int, kind simdKind, t wasm.ValueType, lanes uint8) {
		simdOps[op] = simdOp{kind: kind, typ: t, lanes: lanes}
	}
	lane(0x15, simdExtract, I32, 16)
	lane(0x16, simdExtract, I32, 16)
	lane(0x17, simdReplace, I32, 16)
	lane(0x18, simdExtract, I32, 8)
	lane(0x19, simdExtract, I32, 8)
	lane(0x1a, simdReplace, I32, 8)
	lane(0x1b, simdExtract, I32, 4)
	lane(0x1c, simdReplace, I32, 4)
	lane(0x1d, simdExtract, I64, 2)
	lane(0x1e, simdReplace, I64, 2)
	lane(0x1f, simdExtract, F32, 4)
	lane(0x20, simdReplace, F32, 4)
	lane(0x21, simdExtract, F64, 2)
	lane(0x22, simdReplace, F64, 2)

	// Comparisons.
	simdRange(0x23, 0x4c, simdBinary)

	simdOps[0x4d] = simdOp{kind: simdUnary} // v128.not
	simdRange(0x4e, 0x51, simdBinary)
	simdOps[0x52] = simdOp{kind: simdTernary} // v128.bitselect
	simdOps[0x53] = simdOp{kind: simdTest}    // v128.any_true

	for i, align := range []uint32{0, 1, 2, 3} {
		simdOps[0x54+i] = simdOp{kind: simdLoadLane, align: align, lanes: 16 >> align}
		simdOps[0x58+i] = simdOp{kind: simdStoreLane, align: align, lanes: 16 >> align}
	}
	simdOps[0x5c] = simdOp{kind: simdLoad, align: 2}
	simdOps[0x5d] = simdOp{kind: simdLoad, align: 3}
	simdRange(0x5e, 0x5f, simdUnary)

	// i8x16
	simdRange(0x60, 0x62, simdUnary)
	simdRange(0x63, 0x64, simdTest)
	simdRange(0x65, 0x66, simdBinary)
	simdRange(0x67, 0x6a, simdUnary) // f32x4 rounding
	simdRange(0x6b, 0x6d, simdShift)
	simdRange(0x6e, 0x73, simdBinary)
	simdRange(0x74, 0x75, simdUnary) // f64x2.ceil, floor
	simdRange(0x76, 0x79, simdBinary)
	simdOps[0x7a] = simdOp{kind: simdUnary} // f64x2.trunc
	simdOps[0x7b] = simdOp{kind: simdBinary}
	simdRange(0x7c, 0x7f, simdUnary) // extadd_pairwise

	// i16x8
	simdRange(0x80, 0x81, simdUnary)
	simdOps[0x82] = simdOp{kind: simdBinary} // q15mulr_sat_s
	simdRange(0x83, 0x84, simdTest)
	simdRange(0x85, 0x86, simdBinary)
	simdRange(0x87, 0x8a, simdUnary)
	simdRange(0x8b, 0x8d, simdShift)
	simdRange(0x8e, 0x93, simdBinary)
	simdOps[0x94] = simdOp{kind: simdUnary} // f64x2.nearest
	simdRange(0x95, 0x99, simdBinary)
	simdRange(0x9b, 0x9f, simdBinary)

	// i32x4
	simdRange(0xa0, 0xa1, simdUnary)
	simdRange(0xa3, 0xa4, simdTest)
	simdRange(0xa7, 0xaa, simdUnary)
	simdRange(0xab, 0xad, simdShift)
	simdOps[0xae] = simdOp{kind: simdBinary}
	simdOps[0xb1] = simdOp{kind: simdBinary}
	simdRange(0xb5, 0xba, simdBinary)
	simdRange(0xbc, 0xbf, simdBinary)

	// i64x2
	simdRange(0xc0, 0xc1, simdUnary)
	simdRange(0xc3, 0xc4, simdTest)
	simdRange(0xc7, 0xca, simdUnary)
	simdRange(0xcb, 0xcd, simdShift)
	simdOps[0xce] = simdOp{kind: simdBinary}
	simdOps[0xd1] = simdOp{kind: simdBinary}
	simdOps[0xd5] = simdOp{kind: simdBinary}
	simdRange(0xd6, 0xdf, simdBinary)

	// f32x4 and f64x2 arithmetic
	simdRange(0xe0, 0xe1, simdUnary)
	simdOps[0xe3] = simdOp{kind: simdUnary}
	simdRange(0xe4, 0xeb, simdBinary)
	simdRange(0xec, 0xed, simdUnary)
	simdOps[0xef] = simdOp{kind: simdUnary}
	simdRange(0xf0, 0xf7, simdBinary)

	// Conversions.
	simdRange(0xf8, 0xff, simdUnary)
}

// doSIMD validates a subopcode of OpPrefixSIMD.
func (d *decoder) doSIMD() error {
	const V128 = wasm.ValueTypeV128

	sub, err := d.r.VarUint32()
	if err != nil {
		return err
	}
	if sub >= uint32(len(simdOps)) || simdOps[sub].kind == simdInvalid {
		return d.r.Errorf("illegal opcode 0xfd %#x", sub)
	}
	op := simdOps[sub]

	switch op.kind {
	case simdLoad, simdStore, simdLoadLane, simdStoreLane:
		ma, err := d.memarg(op.align, false)
		if err != nil {
			return err
		}
		var lane byte
		if op.kind == simdLoadLane || op.kind == simdStoreLane {
			if lane, err = d.laneIndex(op.lanes); err != nil {
				return err
			}
		}

		var args []operand
		switch op.kind {
		case simdLoad:
			args, err = d.popOpds(ma.addrType)
		default:
			args, err = d.popOpds(ma.addrType, V128)
		}
		if err != nil {
			return err
		}

		d.emitSub(OpPrefixSIMD, sub)
		d.emitMemarg(ma)
		if op.kind == simdLoadLane || op.kind == simdStoreLane {
			d.emitByte(lane)
		}
		d.emitSlots(args)
		if op.kind == simdLoad || op.kind == simdLoadLane {
			d.emitSlot(d.pushOpd(V128))
		}
		return nil

	case simdConst:
		lo, err := d.r.U64()
		if err != nil {
			return err
		}
		hi, err := d.r.U64()
		if err != nil {
			return err
		}
		d.pushConst(V128, lo, hi)
		return nil

	case simdShuffle:
		lanes, err := d.r.Bytes(16)
		if err != nil {
			return err
		}
		for _, l := range lanes {
			if l >= 32 {
				return validationErrorf("invalid lane index %d", l)
			}
		}
		args, err := d.popOpds(V128, V128)
		if err != nil {
			return err
		}
		d.emitSub(OpPrefixSIMD, sub)
		d.emitBytes(lanes)
		d.emitSlots(args)
		d.emitSlot(d.pushOpd(V128))
		return nil

	case simdExtract, simdReplace:
		lane, err := d.laneIndex(op.lanes)
		if err != nil {
			return err
		}
		var args []operand
		result := op.typ
		if op.kind == simdExtract {
			args, err = d.popOpds(V128)
		} else {
			args, err = d.popOpds(V128, op.typ)
			result = V128
		}
		if err != nil {
			return err
		}
		d.emitSub(OpPrefixSIMD, sub)
		d.emitByte(lane)
		d.emitSlots(args)
		d.emitSlot(d.pushOpd(result))
		return nil
	}

	var in []wasm.ValueType
	result := V128
	switch op.kind {
	case simdSplat:
		in = singleResults[op.typ]
	case simdUnary:
		in = simdV128x1
	case simdBinary:
		in = simdV128x2
	case simdTernary:
		in = simdV128x3
	case simdTest:
		in, result = simdV128x1, wasm.ValueTypeI32
	case simdShift:
		in = simdV128I32
	}
	args, err := d.popOpds(in...)
	if err != nil {
		return err
	}
	d.emitSub(OpPrefixSIMD, sub)
	d.emitSlots(args)
	d.emitSlot(d.pushOpd(result))
	return nil
}

var (
	simdV128x1  = []wasm.ValueType{wasm.ValueTypeV128}
	simdV128x2  = []wasm.ValueType{wasm.ValueTypeV128, wasm.ValueTypeV128}
	simdV128x3  = []wasm.ValueType{wasm.ValueTypeV128, wasm.ValueTypeV128, wasm.ValueTypeV128}
	simdV128I32 = []wasm.ValueType{wasm.ValueTypeV128, wasm.ValueTypeI32}
)

func (d *decoder) laneIndex(lanes uint8) (byte, error) {
	lane, err := d.r.Byte()
	if err != nil {
		return 0, err
	}
	if lane >= lanes {
		return 0, validationErrorf("invalid lane index %d", lane)
	}
	return lane, nil
}
