package code

import "github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"

const (
	OpMemoryAtomicNotify = 0x00
	OpMemoryAtomicWait32 = 0x01
	OpMemoryAtomicWait64 = 0x02
	OpAtomicFence        = 0x03

	OpI32AtomicLoad   = 0x10
	OpI32AtomicStore  = 0x17
	OpI32AtomicRmwAdd = 0x1e

	OpI32AtomicRmwCmpxchg = 0x48
)

type atomicKind uint8

const (
	atomicInvalid atomicKind = iota
	atomicLoad
	atomicStore
	atomicRmw
	atomicCmpxchg
)

type atomicOp struct {
	kind  atomicKind
	typ   wasm.ValueType
	align uint32
}

var atomicOps [0x4f]atomicOp

func init() {
	// Every family lists its variants in the same order: i32, i64, i32 8u, i32 16u, i64 8u, i64 16u, i64 32u.
	variants := []struct {
		typ   wasm.ValueType
		align uint32
	}{
		{wasm.ValueTypeI32, 2},
		{wasm.ValueTypeI64, 3},
		{wasm.ValueTypeI32, 0},
		{wasm.ValueTypeI32, 1},
		{wasm.ValueTypeI64, 0},
		{wasm.ValueTypeI64, 1},
		{wasm.ValueTypeI64, 2},
	}
	family := func(first int, kind atomicKind) {
		for i, v := range variants {
			atomicOps[first+i] = atomicOp{kind: kind, typ: v.typ, align: v.align}
		}
	}

	family(OpI32AtomicLoad, atomicLoad)
	family(OpI32AtomicStore, atomicStore)
	for op := OpI32AtomicRmwAdd; op < OpI32AtomicRmwCmpxchg; op += len(variants) {
		family(op, atomicRmw)
	}
	family(OpI32AtomicRmwCmpxchg, atomicCmpxchg)
}

// doAtomic validates a subopcode of OpPrefixAtomic.
func (d *decoder) doAtomic() error {
	const (
		I32 = wasm.ValueTypeI32
		I64 = wasm.ValueTypeI64
	)

	sub, err := d.r.VarUint32()
	if err != nil {
		return err
	}

	var (
		align  uint32
		in     []wasm.ValueType
		result wasm.ValueType
	)
	switch sub {
	case OpAtomicFence:
		b, err := d.r.Byte()
		if err != nil {
			return err
		}
		if b != 0 {
			return d.r.Errorf("zero byte expected")
		}
		d.emitSub(OpPrefixAtomic, sub)
		return nil
	case OpMemoryAtomicNotify:
		align, in, result = 2, []wasm.ValueType{0, I32}, I32
	case OpMemoryAtomicWait32:
		align, in, result = 2, []wasm.ValueType{0, I32, I64}, I32
	case OpMemoryAtomicWait64:
		align, in, result = 3, []wasm.ValueType{0, I64, I64}, I32
	default:
		if sub >= uint32(len(atomicOps)) || atomicOps[sub].kind == atomicInvalid {
			return d.r.Errorf("illegal opcode 0xfe %#x", sub)
		}
		op := atomicOps[sub]
		align = op.align
		switch op.kind {
		case atomicLoad:
			in, result = []wasm.ValueType{0}, op.typ
		case atomicStore:
			in = []wasm.ValueType{0, op.typ}
		case atomicRmw:
			in, result = []wasm.ValueType{0, op.typ}, op.typ
		case atomicCmpxchg:
			in, result = []wasm.ValueType{0, op.typ, op.typ}, op.typ
		}
	}

	ma, err := d.memarg(align, true)
	if err != nil {
		return err
	}
	in[0] = ma.addrType

	args, err := d.popOpds(in...)
	if err != nil {
		return err
	}
	d.emitSub(OpPrefixAtomic, sub)
	d.emitMemarg(ma)
	d.emitSlots(args)
	if result != 0 {
		d.emitSlot(d.pushOpd(result))
	}
	return nil
}
