package code

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"
	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm/internal/readpos"
)

const (
	maxSlot      = math.MaxInt16
	maxConsts    = math.MaxInt16 + 1
	maxCopies    = math.MaxUint8
	constSize    = 8
	minConstsCap = 8 * constSize
)

// Rewritten is the slot-based encoding of a function body.
//
// Every operand of a rewritten instruction is a signed 16-bit slot. Non-negative slots address 32-bit cells of the
// function's frame: parameters and locals first, then the operand area. A negative slot -(i+1) addresses entry i of
// the constant pool, whose entries are 8 bytes wide; a v128 constant occupies two consecutive entries.
//
// Branch targets are absolute offsets into Code. A branch carries the list of copies that move its arguments into
// the target's result cells.
type Rewritten struct {
	Code   []byte
	Consts []byte

	// FrameCells is the number of cells a frame for the function needs.
	FrameCells int
}

type constKey struct {
	lo, hi uint64
	wide   bool
}

// rewriter accumulates rewritten code. The first pass only measures; the second writes into a buffer of the
// measured size.
type rewriter struct {
	alloc wasm.Allocator

	measure bool
	code    []byte
	size    int

	consts     []byte
	constIndex map[constKey]int32
	nconsts    int32

	overflow bool
	err      error
}

func (rw *rewriter) ok() bool {
	return rw != nil && !rw.overflow && rw.err == nil
}

func (rw *rewriter) byte(b byte) {
	rw.size++
	if !rw.measure {
		rw.code = append(rw.code, b)
	}
}

func (rw *rewriter) u16(v uint16) {
	rw.size += 2
	if !rw.measure {
		rw.code = binary.LittleEndian.AppendUint16(rw.code, v)
	}
}

func (rw *rewriter) u32(v uint32) {
	rw.size += 4
	if !rw.measure {
		rw.code = binary.LittleEndian.AppendUint32(rw.code, v)
	}
}

func (rw *rewriter) u64(v uint64) {
	rw.size += 8
	if !rw.measure {
		rw.code = binary.LittleEndian.AppendUint64(rw.code, v)
	}
}

func (rw *rewriter) slot(s int32) {
	if s > maxSlot || s < -maxConsts {
		rw.overflow = true
		return
	}
	rw.u16(uint16(int16(s)))
}

func (rw *rewriter) patch(at int, v uint32) {
	if !rw.measure {
		binary.LittleEndian.PutUint32(rw.code[at:], v)
	}
}

// constSlot returns the slot of a constant, adding it to the pool if it is not already present.
func (rw *rewriter) constSlot(lo, hi uint64, wide bool) (int32, bool) {
	key := constKey{lo: lo, hi: hi, wide: wide}
	if i, ok := rw.constIndex[key]; ok {
		return -(i + 1), true
	}

	n := int32(1)
	if wide {
		n = 2
	}
	if rw.nconsts+n > maxConsts {
		rw.overflow = true
		return 0, false
	}

	end := int(rw.nconsts+n) * constSize
	if end > len(rw.consts) {
		size := 2 * len(rw.consts)
		if size < minConstsCap {
			size = minConstsCap
		}
		for size < end {
			size *= 2
		}

		var buf []byte
		var err error
		if rw.consts == nil {
			buf, err = rw.alloc.Allocate(size)
		} else {
			buf, err = rw.alloc.Reallocate(rw.consts, size)
		}
		if err != nil {
			rw.err = wasm.ErrAllocationFailed
			return 0, false
		}
		rw.consts = buf
	}

	i := rw.nconsts
	at := int(i) * constSize
	binary.LittleEndian.PutUint64(rw.consts[at:], lo)
	if wide {
		binary.LittleEndian.PutUint64(rw.consts[at+constSize:], hi)
	}
	rw.nconsts += n
	rw.constIndex[key] = i
	return -(i + 1), true
}

func (rw *rewriter) free() {
	if rw.consts != nil {
		rw.alloc.Free(rw.consts)
		rw.consts = nil
	}
	if !rw.measure && rw.code != nil {
		rw.alloc.Free(rw.code[:cap(rw.code)])
		rw.code = nil
	}
}

// emitting returns true if the current instruction is reachable and the function is still being rewritten.
func (d *decoder) emitting() bool {
	if !d.rw.ok() {
		return false
	}
	f := &d.frames[len(d.frames)-1]
	return !f.unreachable && !f.dead
}

func (d *decoder) emitOp(op byte) {
	if d.emitting() {
		d.rw.byte(op)
	}
}

func (d *decoder) emitSub(prefix byte, sub uint32) {
	if d.emitting() {
		d.rw.byte(prefix)
		d.rw.u16(uint16(sub))
	}
}

func (d *decoder) emitByte(b byte) {
	if d.emitting() {
		d.rw.byte(b)
	}
}

func (d *decoder) emitBytes(b []byte) {
	if d.emitting() {
		for _, v := range b {
			d.rw.byte(v)
		}
	}
}

func (d *decoder) emitU32(v uint32) {
	if d.emitting() {
		d.rw.u32(v)
	}
}

func (d *decoder) emitSlot(s int32) {
	if d.emitting() {
		d.rw.slot(s)
	}
}

func (d *decoder) emitSlots(args []operand) {
	if d.emitting() {
		for _, o := range args {
			d.rw.slot(o.slot)
		}
	}
}

func (d *decoder) emitMemarg(ma memarg) {
	if d.emitting() {
		d.rw.u32(ma.memidx)
		d.rw.u64(ma.offset)
	}
}

func (d *decoder) emitCopy(src, dst int32, cells int) {
	if !d.emitting() {
		return
	}
	switch cells {
	case 1:
		d.rw.byte(OpCopy32)
	case 2:
		d.rw.byte(OpCopy64)
	default:
		d.rw.byte(OpCopy128)
	}
	d.rw.slot(src)
	d.rw.slot(dst)
}

// emitPlaceholder emits a branch target to be patched later and returns its position, or -1 if nothing was emitted.
func (d *decoder) emitPlaceholder() int {
	if !d.emitting() {
		return -1
	}
	at := d.rw.size
	d.rw.u32(0)
	return at
}

// emitLabelRef emits the address of a branch target. Loops branch backwards to their header; other targets are
// resolved when their end is reached.
func (d *decoder) emitLabelRef(target *frame) {
	if !d.emitting() {
		return
	}
	if target.opcode == OpLoop {
		d.rw.u32(uint32(target.start))
		return
	}
	target.patches = append(target.patches, d.rw.size)
	d.rw.u32(0)
}

// emitCopies emits the copies that move branch arguments into the target's cells. Copies are applied in order; a
// dynamic source never lies below its destination, so ascending order cannot clobber a pending source.
func (d *decoder) emitCopies(args []operand, types []wasm.ValueType, target *frame) {
	if !d.emitting() {
		return
	}

	n, dst := 0, d.base+target.cells
	for i, o := range args {
		if o.slot != dst {
			n++
		}
		dst += int32(types[i].Cells())
	}
	if n > maxCopies {
		d.rw.overflow = true
		return
	}

	d.rw.byte(byte(n))
	dst = d.base + target.cells
	for i, o := range args {
		cells := types[i].Cells()
		if o.slot != dst {
			d.rw.slot(o.slot)
			d.rw.slot(dst)
			d.rw.byte(byte(cells))
		}
		dst += int32(cells)
	}
}

func (d *decoder) patch(at int) {
	if at >= 0 && d.rw.ok() {
		d.rw.patch(at, uint32(d.rw.size))
	}
}

// Rewrite validates the body of a function and translates it into the slot-based encoding. Functions whose frames
// or constant pools do not fit the encoding are validated but not rewritten; the returned Rewritten is then empty.
// The caller owns the returned buffers, which were obtained from opts.Allocator.
func Rewrite(scope Scope, fn *wasm.Function, opts Options) (Rewritten, Metrics, error) {
	alloc := opts.Allocator
	if alloc == nil {
		alloc = wasm.HeapAllocator
	}

	rw := &rewriter{
		alloc:      alloc,
		measure:    true,
		constIndex: map[constKey]int32{},
	}
	d := newDecoder(scope, fn, opts, readpos.New(fn.Body, fn.BodyOffset), rw)
	if err := d.decode(); err != nil {
		rw.free()
		return Rewritten{}, Metrics{}, err
	}
	metrics := d.metrics

	frameCells := int(d.base) + metrics.MaxStackCells
	if rw.overflow || frameCells > maxSlot {
		rw.free()
		return Rewritten{}, metrics, nil
	}

	code, err := alloc.Allocate(rw.size)
	if err != nil {
		rw.free()
		return Rewritten{}, Metrics{}, wasm.ErrAllocationFailed
	}
	size := rw.size
	rw.measure, rw.code, rw.size = false, code[:0], 0

	// The body has been validated, so the second pass can use the unchecked reader.
	d = newDecoder(scope, fn, opts, readpos.Trusted(fn.Body, fn.BodyOffset), rw)
	if err := d.decode(); err != nil {
		rw.free()
		return Rewritten{}, Metrics{}, err
	}
	if rw.size != size || rw.overflow {
		rw.free()
		return Rewritten{}, Metrics{}, fmt.Errorf("rewritten size changed between passes: %d != %d", rw.size, size)
	}

	var consts []byte
	if rw.consts != nil {
		consts = rw.consts[:int(rw.nconsts)*constSize]
	}
	return Rewritten{Code: rw.code, Consts: consts, FrameCells: frameCells}, metrics, nil
}
