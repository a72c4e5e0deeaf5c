package code

import (
	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"
	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm/internal/readpos"
)

// Instruction locates an instruction in a raw function body.
type Instruction struct {
	Offset uint32 // offset of the opcode from the start of the body
	Opcode byte
	Subop  uint32 // subopcode of prefixed instructions
}

// Scan walks the instructions of a raw function body, skipping their immediates. It stops early if fn returns false.
func Scan(body []byte, fn func(Instruction) bool) error {
	return scanFrom(body, 0, fn)
}

func scanFrom(body []byte, start uint32, fn func(Instruction) bool) error {
	if start > uint32(len(body)) {
		return readpos.New(body, 0).Errorf("scan offset %d out of range", start)
	}
	r := readpos.New(body, 0)
	r.Seek(int(start))

	for !r.AtEnd() {
		offset := uint32(r.Offset())
		op, _ := r.Byte()
		sub, err := skipImmediates(r, op)
		if err != nil {
			return err
		}
		if !fn(Instruction{Offset: offset, Opcode: op, Subop: sub}) {
			return nil
		}
	}
	return nil
}

func skipMemarg(r *readpos.ReadPos) error {
	align, err := r.VarUint32()
	if err != nil {
		return err
	}
	if align&0x40 != 0 {
		if _, err := r.VarUint32(); err != nil {
			return err
		}
	}
	_, err = r.VarUint64()
	return err
}

func skipIndices(r *readpos.ReadPos, n int) error {
	for i := 0; i < n; i++ {
		if _, err := r.VarUint32(); err != nil {
			return err
		}
	}
	return nil
}

// skipImmediates advances r past the immediates of op and returns its subopcode, if any.
func skipImmediates(r *readpos.ReadPos, op byte) (uint32, error) {
	switch op {
	case OpUnreachable, OpNop, OpElse, OpEnd, OpReturn, OpDrop, OpSelect, OpRefIsNull:
		return 0, nil

	case OpBlock, OpLoop, OpIf:
		b, err := r.PeekByte()
		if err != nil {
			return 0, err
		}
		if b == blockTypeEmpty || b&0xc0 == 0x40 {
			r.Byte()
			return 0, nil
		}
		_, err = r.VarInt33()
		return 0, err

	case OpBr, OpBrIf, OpCall, OpReturnCall, OpLocalGet, OpLocalSet, OpLocalTee, OpGlobalGet, OpGlobalSet,
		OpTableGet, OpTableSet, OpRefFunc, OpMemorySize, OpMemoryGrow:
		return 0, skipIndices(r, 1)

	case OpCallIndirect, OpReturnCallIndirect:
		return 0, skipIndices(r, 2)

	case OpBrTable:
		n, err := r.VarUint32()
		if err != nil {
			return 0, err
		}
		if int(n) > r.Remaining() {
			return 0, r.Errorf("unexpected end: br_table with %d labels", n)
		}
		return 0, skipIndices(r, int(n)+1)

	case OpSelectT:
		n, err := r.VarUint32()
		if err != nil {
			return 0, err
		}
		return 0, r.Skip(n)

	case OpI32Const:
		_, err := r.VarInt32()
		return 0, err
	case OpI64Const:
		_, err := r.VarInt64()
		return 0, err
	case OpF32Const:
		return 0, r.Skip(4)
	case OpF64Const:
		return 0, r.Skip(8)
	case OpRefNull:
		return 0, r.Skip(1)

	case OpPrefix:
		sub, err := r.VarUint32()
		if err != nil {
			return 0, err
		}
		switch sub {
		case OpMemoryInit, OpMemoryCopy, OpTableInit, OpTableCopy:
			return sub, skipIndices(r, 2)
		case OpDataDrop, OpMemoryFill, OpElemDrop, OpTableGrow, OpTableSize, OpTableFill:
			return sub, skipIndices(r, 1)
		}
		if sub >= uint32(len(truncSatSigs)) {
			return sub, r.Errorf("illegal opcode 0xfc %#x", sub)
		}
		return sub, nil

	case OpPrefixSIMD:
		sub, err := r.VarUint32()
		if err != nil {
			return 0, err
		}
		if sub >= uint32(len(simdOps)) {
			return sub, r.Errorf("illegal opcode 0xfd %#x", sub)
		}
		switch simdOps[sub].kind {
		case simdInvalid:
			return sub, r.Errorf("illegal opcode 0xfd %#x", sub)
		case simdLoad, simdStore:
			return sub, skipMemarg(r)
		case simdLoadLane, simdStoreLane:
			if err := skipMemarg(r); err != nil {
				return sub, err
			}
			return sub, r.Skip(1)
		case simdConst, simdShuffle:
			return sub, r.Skip(16)
		case simdExtract, simdReplace:
			return sub, r.Skip(1)
		}
		return sub, nil

	case OpPrefixAtomic:
		sub, err := r.VarUint32()
		if err != nil {
			return 0, err
		}
		if sub == OpAtomicFence {
			return sub, r.Skip(1)
		}
		return sub, skipMemarg(r)
	}

	if _, ok := memOps[op]; ok {
		return 0, skipMemarg(r)
	}
	if numericSigs[op].valid() {
		return 0, nil
	}
	return 0, r.Errorf("illegal opcode %#x", op)
}

// FindBlockEnd returns the offsets of the else and end opcodes matching the block, loop or if at start in the raw
// body of fn. elseAddr is zero if the block has no else. Results are memoized in cache, which may be nil.
// Execution engines that interpret functions left in the raw encoding use it to resolve branch targets.
func FindBlockEnd(cache *wasm.BranchCache, fn *wasm.Function, start uint32) (elseAddr, endAddr uint32, err error) {
	if cache != nil {
		if elseAddr, endAddr, ok := cache.Lookup(fn, start); ok {
			return elseAddr, endAddr, nil
		}
	}

	if start >= uint32(len(fn.Body)) {
		return 0, 0, readpos.New(fn.Body, fn.BodyOffset).Errorf("block offset %d out of range", start)
	}
	switch fn.Body[start] {
	case OpBlock, OpLoop, OpIf:
	default:
		return 0, 0, readpos.New(fn.Body, fn.BodyOffset).Errorf("no block at offset %d", start)
	}

	depth, found := 0, false
	err = scanFrom(fn.Body, start, func(i Instruction) bool {
		switch i.Opcode {
		case OpBlock, OpLoop, OpIf:
			depth++
		case OpElse:
			if depth == 1 {
				elseAddr = i.Offset
			}
		case OpEnd:
			depth--
			if depth == 0 {
				endAddr, found = i.Offset, true
				return false
			}
		}
		return true
	})
	if err != nil {
		return 0, 0, err
	}
	if !found {
		return 0, 0, readpos.New(fn.Body, fn.BodyOffset).Errorf("unterminated block at offset %d", start)
	}

	if cache != nil {
		cache.Insert(fn, start, elseAddr, endAddr)
	}
	return elseAddr, endAddr, nil
}
