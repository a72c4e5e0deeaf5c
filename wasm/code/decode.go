package code

import (
	"errors"
	"fmt"

	"github.com/willf/bitset"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"
	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm/internal/readpos"
)

// Options configures validation and rewriting.
type Options struct {
	Features wasm.Features

	// Allocator provides the rewritten code and constant pool buffers. Defaults to wasm.HeapAllocator.
	Allocator wasm.Allocator
}

type Metrics struct {
	MaxNesting       int  // The maximum block nesting for the function.
	MaxStackDepth    int  // The maximum number of values on the operand stack.
	MaxStackCells    int  // The maximum height of the operand stack in cells.
	LabelCount       int  // The number of labels in the function.
	InstructionCount int  // The number of instructions in the function.
	HasLoops         bool // True if this function has loops
	MemoryGrow       bool // True if this function contains memory.grow
}

func validationErrorf(format string, args ...interface{}) error {
	return wasm.ValidationError(fmt.Sprintf(format, args...))
}

// operand is an entry on the operand stack. cell is the operand's position in the frame's operand area; slot is
// where its value currently lives, which is the slot for cell unless the value is a folded local or constant.
type operand struct {
	typ  wasm.ValueType
	cell int32
	slot int32
}

// frame is a control frame.
type frame struct {
	opcode  byte
	in, out []wasm.ValueType

	height int   // operand count at entry
	cells  int32 // cell height at entry

	unreachable bool
	dead        bool // the frame was entered from unreachable code
	hasElse     bool

	start     int   // rewritten address of a loop header
	elsePatch int   // placeholder for an if's false branch, or -1
	patches   []int // placeholders for forward branches to the end of the frame
}

type decoder struct {
	Scope

	fn   *wasm.Function
	opts Options
	r    *readpos.ReadPos

	// base is the first cell of the operand area. Parameters and locals occupy the cells below it.
	base int32

	frames []frame
	stack  []operand
	cells  int32
	args   []operand
	labels []uint32

	metrics Metrics

	rw      *rewriter
	pending *bitset.BitSet // local slots that may be referenced by operands
}

func newDecoder(scope Scope, fn *wasm.Function, opts Options, r *readpos.ReadPos, rw *rewriter) *decoder {
	d := &decoder{
		Scope: scope,
		fn:    fn,
		opts:  opts,
		r:     r,
		base:  int32(fn.ParamCells + fn.LocalCells),
		rw:    rw,
	}
	if rw != nil {
		d.pending = bitset.New(uint(d.base))
	}
	return d
}

// Validate type-checks the body of a function.
func Validate(scope Scope, fn *wasm.Function, opts Options) (Metrics, error) {
	d := newDecoder(scope, fn, opts, readpos.New(fn.Body, fn.BodyOffset), nil)
	if err := d.decode(); err != nil {
		return Metrics{}, err
	}
	return d.metrics, nil
}

func (d *decoder) require(feature wasm.Features, what string) error {
	return d.opts.Features.RequireEnabled(feature, what)
}

func (d *decoder) track() {
	if len(d.stack) > d.metrics.MaxStackDepth {
		d.metrics.MaxStackDepth = len(d.stack)
	}
	if int(d.cells) > d.metrics.MaxStackCells {
		d.metrics.MaxStackCells = int(d.cells)
	}
}

func (d *decoder) popOpd() (operand, error) {
	f := &d.frames[len(d.frames)-1]
	if len(d.stack) == f.height {
		if f.unreachable {
			return operand{typ: wasm.ValueTypeT, cell: d.cells, slot: d.base + d.cells}, nil
		}
		return operand{}, wasm.ValidationError("type mismatch: stack underflow")
	}
	o := d.stack[len(d.stack)-1]
	d.stack = d.stack[:len(d.stack)-1]
	d.cells = o.cell
	return o, nil
}

func (d *decoder) popExpect(expected wasm.ValueType) (operand, error) {
	o, err := d.popOpd()
	if err != nil {
		return o, err
	}
	if o.typ != expected && o.typ != wasm.ValueTypeT && expected != wasm.ValueTypeT {
		return o, validationErrorf("type mismatch: expected %v, got %v", expected, o.typ)
	}
	return o, nil
}

// popOpds pops operands of the given types. The result is only valid until the next call.
func (d *decoder) popOpds(types ...wasm.ValueType) ([]operand, error) {
	if cap(d.args) < len(types) {
		d.args = make([]operand, len(types))
	}
	args := d.args[:len(types)]
	for i := len(types) - 1; i >= 0; i-- {
		o, err := d.popExpect(types[i])
		if err != nil {
			return nil, err
		}
		args[i] = o
	}
	return args, nil
}

func (d *decoder) pushAt(t wasm.ValueType, slot int32) {
	d.stack = append(d.stack, operand{typ: t, cell: d.cells, slot: slot})
	d.cells += int32(t.Cells())
	d.track()
}

// pushOpd pushes a value that lives in its own slot and returns that slot.
func (d *decoder) pushOpd(t wasm.ValueType) int32 {
	slot := d.base + d.cells
	d.pushAt(t, slot)
	return slot
}

func (d *decoder) pushOpds(types ...wasm.ValueType) {
	for _, t := range types {
		d.pushOpd(t)
	}
}

// repush pushes back operands that were popped to check them against types. Wildcards take on the checked type.
func (d *decoder) repush(args []operand, types []wasm.ValueType) {
	for i, o := range args {
		if o.typ == wasm.ValueTypeT {
			d.pushOpd(types[i])
			continue
		}
		d.pushAt(o.typ, o.slot)
	}
}

// pushLocal pushes a reference to a local without copying it.
func (d *decoder) pushLocal(t wasm.ValueType, slot int32) {
	if d.pending == nil {
		d.pushOpd(t)
		return
	}
	d.pending.Set(uint(slot))
	d.pushAt(t, slot)
}

// pushConst pushes a constant. When rewriting, the constant is folded into the constant pool.
func (d *decoder) pushConst(t wasm.ValueType, lo, hi uint64) {
	if !d.emitting() {
		d.pushOpd(t)
		return
	}
	slot, ok := d.rw.constSlot(lo, hi, t == wasm.ValueTypeV128)
	if !ok {
		d.pushOpd(t)
		return
	}
	d.pushAt(t, slot)
}

func (d *decoder) pushBlock(op byte, in, out []wasm.ValueType, height int, cells int32, dead bool) *frame {
	d.frames = append(d.frames, frame{
		opcode:    op,
		in:        in,
		out:       out,
		height:    height,
		cells:     cells,
		dead:      dead,
		elsePatch: -1,
	})

	if len(d.frames) > d.metrics.MaxNesting {
		d.metrics.MaxNesting = len(d.frames)
	}
	d.metrics.LabelCount++
	return &d.frames[len(d.frames)-1]
}

// popResults pops a frame's results and checks that nothing else remains above its entry height.
func (d *decoder) popResults(f *frame) ([]operand, error) {
	args, err := d.popOpds(f.out...)
	if err != nil {
		return nil, err
	}
	if len(d.stack) != f.height {
		return nil, wasm.ValidationError("type mismatch: unbalanced stack")
	}
	return args, nil
}

func (d *decoder) labelTypes(depth uint32) ([]wasm.ValueType, *frame, error) {
	if depth >= uint32(len(d.frames)) {
		return nil, nil, validationErrorf("unknown label %d", depth)
	}

	f := &d.frames[len(d.frames)-1-int(depth)]
	if f.opcode == OpLoop {
		return f.in, f, nil
	}
	return f.out, f, nil
}

func (d *decoder) unreachable() {
	f := &d.frames[len(d.frames)-1]
	d.stack = d.stack[:f.height]
	d.cells = f.cells
	f.unreachable = true
}

// materialize moves the value of a folded operand into the operand's own slot.
func (d *decoder) materialize(i int) {
	o := &d.stack[i]
	dst := d.base + o.cell
	if o.slot != dst {
		d.emitCopy(o.slot, dst, o.typ.Cells())
		o.slot = dst
	}
}

// preserveLocals materializes every operand that refers to the local in the given slot, or to any local if slot is
// negative.
func (d *decoder) preserveLocals(slot int32) {
	if d.pending == nil {
		return
	}
	if slot >= 0 && !d.pending.Test(uint(slot)) || slot < 0 && d.pending.None() {
		return
	}

	for i := range d.stack {
		o := &d.stack[i]
		if o.slot >= 0 && o.slot < d.base && (slot < 0 || o.slot == slot) {
			d.materialize(i)
		}
	}

	if slot < 0 {
		d.pending.ClearAll()
	} else {
		d.pending.Clear(uint(slot))
	}
}

// settle materializes the results of a frame that falls through to its end.
func (d *decoder) settle(f *frame) {
	if !d.emitting() {
		return
	}
	first := len(d.stack) - len(f.out)
	if first < f.height {
		return
	}
	for i := first; i < len(d.stack); i++ {
		d.materialize(i)
	}
}

func (d *decoder) enterBlock(op byte, in, out []wasm.ValueType, cond operand) error {
	args, err := d.popOpds(in...)
	if err != nil {
		return err
	}

	parent := &d.frames[len(d.frames)-1]
	dead := parent.dead || parent.unreachable

	height, cells := len(d.stack), d.cells
	d.repush(args, in)

	// Operands must not alias locals the block may assign, and the block's parameters must be in their own slots.
	d.preserveLocals(-1)
	for i := height; i < len(d.stack); i++ {
		d.materialize(i)
	}

	elsePatch := -1
	if op == OpIf {
		d.emitOp(OpIf)
		d.emitSlot(cond.slot)
		elsePatch = d.emitPlaceholder()
	}

	f := d.pushBlock(op, in, out, height, cells, dead)
	f.elsePatch = elsePatch
	if op == OpLoop {
		d.metrics.HasLoops = true
		if d.rw != nil {
			f.start = d.rw.size
		}
	}
	return nil
}

// doElse ends the true arm of an if. It is also used to synthesize the missing else of an if at its end.
func (d *decoder) doElse() error {
	f := &d.frames[len(d.frames)-1]
	if len(d.frames) == 1 || f.opcode != OpIf || f.hasElse {
		return wasm.ValidationError("invalid nesting: else without matching if")
	}

	if d.emitting() {
		d.settle(f)
		d.emitOp(OpBr)
		d.emitLabelRef(f)
		d.emitByte(0)
	}
	if _, err := d.popResults(f); err != nil {
		return err
	}

	if f.elsePatch >= 0 {
		d.patch(f.elsePatch)
		f.elsePatch = -1
	}
	f.hasElse = true
	f.unreachable = false
	d.pushOpds(f.in...)
	return nil
}

// doEnd ends the innermost frame and returns true if it was the function's frame.
func (d *decoder) doEnd() (bool, error) {
	f := &d.frames[len(d.frames)-1]
	if f.opcode == OpIf && !f.hasElse {
		if err := d.doElse(); err != nil {
			return false, err
		}
	}

	reachable := d.emitting()
	d.settle(f)
	if _, err := d.popResults(f); err != nil {
		return false, err
	}
	for _, p := range f.patches {
		d.patch(p)
	}
	if f.elsePatch >= 0 {
		d.patch(f.elsePatch)
	}
	branched := len(f.patches) != 0

	out := f.out
	d.frames = d.frames[:len(d.frames)-1]
	if len(d.frames) != 0 {
		d.pushOpds(out...)
		return false, nil
	}

	// The results of the function are in place for both the fall-through path and any branches to its label.
	if d.rw.ok() && (reachable || branched) {
		d.rw.byte(OpReturn)
		cell := d.cells
		for _, t := range out {
			d.rw.slot(d.base + cell)
			cell += int32(t.Cells())
		}
	}
	return true, nil
}

func (d *decoder) branch(depth uint32) error {
	types, target, err := d.labelTypes(depth)
	if err != nil {
		return err
	}
	args, err := d.popOpds(types...)
	if err != nil {
		return err
	}
	d.emitOp(OpBr)
	d.emitLabelRef(target)
	d.emitCopies(args, types, target)
	d.unreachable()
	return nil
}

func (d *decoder) branchIf(depth uint32) error {
	cond, err := d.popExpect(wasm.ValueTypeI32)
	if err != nil {
		return err
	}
	types, target, err := d.labelTypes(depth)
	if err != nil {
		return err
	}
	args, err := d.popOpds(types...)
	if err != nil {
		return err
	}
	d.emitOp(OpBrIf)
	d.emitSlot(cond.slot)
	d.emitLabelRef(target)
	d.emitCopies(args, types, target)
	d.repush(args, types)
	return nil
}

func (d *decoder) branchTable() error {
	count, err := d.r.VarUint32()
	if err != nil {
		return err
	}
	if int(count) > d.r.Remaining() {
		return d.r.Errorf("unexpected end: br_table with %d labels", count)
	}

	labels := d.labels[:0]
	for i := uint32(0); i <= count; i++ {
		l, err := d.r.VarUint32()
		if err != nil {
			return err
		}
		labels = append(labels, l)
	}
	d.labels = labels

	cond, err := d.popExpect(wasm.ValueTypeI32)
	if err != nil {
		return err
	}
	defaultTypes, _, err := d.labelTypes(labels[count])
	if err != nil {
		return err
	}
	for _, l := range labels[:count] {
		types, _, err := d.labelTypes(l)
		if err != nil {
			return err
		}
		if len(types) != len(defaultTypes) {
			return wasm.ValidationError("type mismatch: br_table targets have different arities")
		}
		args, err := d.popOpds(types...)
		if err != nil {
			return err
		}
		// Popped values go back unchanged: a wildcard stays a wildcard for the next target.
		for _, o := range args {
			d.pushAt(o.typ, o.slot)
		}
	}
	args, err := d.popOpds(defaultTypes...)
	if err != nil {
		return err
	}

	d.emitOp(OpBrTable)
	d.emitSlot(cond.slot)
	d.emitU32(count)
	for _, l := range labels {
		types, target, _ := d.labelTypes(l)
		d.emitLabelRef(target)
		d.emitCopies(args, types, target)
	}
	d.unreachable()
	return nil
}

func (d *decoder) doReturn() error {
	args, err := d.popOpds(d.frames[0].out...)
	if err != nil {
		return err
	}
	d.emitOp(OpReturn)
	d.emitSlots(args)
	d.unreachable()
	return nil
}

func (d *decoder) call(op byte, sig *wasm.FunctionSig, immediates ...uint32) ([]operand, error) {
	var elem operand
	if op == OpCallIndirect || op == OpReturnCallIndirect {
		var err error
		if elem, err = d.popExpect(wasm.ValueTypeI32); err != nil {
			return nil, err
		}
	}
	args, err := d.popOpds(sig.ParamTypes...)
	if err != nil {
		return nil, err
	}

	d.emitOp(op)
	for _, imm := range immediates {
		d.emitU32(imm)
	}
	if op == OpCallIndirect || op == OpReturnCallIndirect {
		d.emitSlot(elem.slot)
	}
	d.emitSlots(args)
	return args, nil
}

func (d *decoder) checkTailCall(sig *wasm.FunctionSig) error {
	results := d.fn.Sig.ReturnTypes
	if len(sig.ReturnTypes) != len(results) {
		return wasm.ValidationError("type mismatch: tail call results differ from function results")
	}
	for i, t := range sig.ReturnTypes {
		if results[i] != t {
			return wasm.ValidationError("type mismatch: tail call results differ from function results")
		}
	}
	return nil
}

func (d *decoder) tableIndexImm() (uint32, error) {
	if d.opts.Features.IsEnabled(wasm.FeatureReferenceTypes) {
		return d.r.VarUint32()
	}
	return d.zeroByte()
}

func (d *decoder) memoryIndexImm() (uint32, error) {
	if d.opts.Features.IsEnabled(wasm.FeatureMultiMemory) {
		return d.r.VarUint32()
	}
	return d.zeroByte()
}

func (d *decoder) zeroByte() (uint32, error) {
	b, err := d.r.Byte()
	if err != nil {
		return 0, err
	}
	if b != 0 {
		return 0, d.r.Errorf("zero byte expected")
	}
	return 0, nil
}

type memarg struct {
	memidx   uint32
	offset   uint64
	addrType wasm.ValueType
}

func addrType(mem wasm.Memory) wasm.ValueType {
	if mem.Limits.Is64 {
		return wasm.ValueTypeI64
	}
	return wasm.ValueTypeI32
}

// memarg decodes the alignment, memory index and offset of a memory access. natural is the log2 of the access
// size; atomic accesses must be exactly naturally aligned.
func (d *decoder) memarg(natural uint32, exact bool) (memarg, error) {
	var ma memarg

	align, err := d.r.VarUint32()
	if err != nil {
		return ma, err
	}
	if align&0x40 != 0 {
		if err := d.require(wasm.FeatureMultiMemory, "memory index in memarg"); err != nil {
			return ma, err
		}
		align &^= 0x40
		if ma.memidx, err = d.r.VarUint32(); err != nil {
			return ma, err
		}
	}

	mem, ok := d.GetMemory(ma.memidx)
	if !ok {
		return ma, validationErrorf("unknown memory %d", ma.memidx)
	}
	if ma.offset, err = d.r.MemOffset(mem.Limits.Is64); err != nil {
		return ma, err
	}

	switch {
	case exact && align != natural:
		return ma, validationErrorf("invalid alignment %d for atomic access of size %d", align, 1<<natural)
	case align > natural:
		return ma, wasm.ValidationError("alignment must not be larger than natural")
	}
	ma.addrType = addrType(mem)
	return ma, nil
}

func (d *decoder) memory(memidx uint32) (wasm.Memory, error) {
	mem, ok := d.GetMemory(memidx)
	if !ok {
		return wasm.Memory{}, validationErrorf("unknown memory %d", memidx)
	}
	return mem, nil
}

func (d *decoder) table(tableidx uint32) (wasm.Table, error) {
	table, ok := d.GetTable(tableidx)
	if !ok {
		return wasm.Table{}, validationErrorf("unknown table %d", tableidx)
	}
	return table, nil
}

func (d *decoder) refType() (wasm.ValueType, error) {
	b, err := d.r.Byte()
	if err != nil {
		return 0, err
	}
	switch t := wasm.ValueType(b); t {
	case wasm.ValueTypeFuncref, wasm.ValueTypeExternref:
		return t, nil
	default:
		return 0, d.r.Errorf("malformed reference type %#x", b)
	}
}

func (d *decoder) local(localidx uint32) (wasm.ValueType, int32, error) {
	t, ok := d.fn.LocalType(localidx)
	if !ok {
		return 0, 0, validationErrorf("unknown local %d", localidx)
	}
	return t, int32(d.fn.LocalOffsets[localidx]), nil
}

func (d *decoder) setLocal(t wasm.ValueType, slot int32, v operand) {
	d.preserveLocals(slot)
	if v.slot == slot {
		return
	}

	cells := t.Cells()
	switch {
	case slot < 128 && cells == 1:
		d.emitOp(OpSetLocal32)
		d.emitByte(byte(slot))
		d.emitSlot(v.slot)
	case slot < 128 && cells == 2:
		d.emitOp(OpSetLocal64)
		d.emitByte(byte(slot))
		d.emitSlot(v.slot)
	default:
		d.emitCopy(v.slot, slot, cells)
	}
}

func (d *decoder) doSelect(typed bool) error {
	var want wasm.ValueType
	if typed {
		if err := d.require(wasm.FeatureReferenceTypes, "typed select"); err != nil {
			return err
		}
		n, err := d.r.VarUint32()
		if err != nil {
			return err
		}
		if n != 1 {
			return validationErrorf("invalid result arity %d for select", n)
		}
		b, err := d.r.Byte()
		if err != nil {
			return err
		}
		if want, err = d.valueType(b); err != nil {
			return err
		}
	}

	cond, err := d.popExpect(wasm.ValueTypeI32)
	if err != nil {
		return err
	}
	b, err := d.popExpect(want)
	if err != nil {
		return err
	}
	a, err := d.popExpect(want)
	if err != nil {
		return err
	}

	t := want
	if !typed {
		if a.typ.IsRef() || b.typ.IsRef() {
			return wasm.ValidationError("type mismatch: select on reference types requires a type annotation")
		}
		if a.typ != b.typ && a.typ != wasm.ValueTypeT && b.typ != wasm.ValueTypeT {
			return validationErrorf("type mismatch: select operands %v and %v", a.typ, b.typ)
		}
		if t = a.typ; t == wasm.ValueTypeT {
			t = b.typ
		}
	}

	switch t.Cells() {
	case 2:
		d.emitOp(OpSelect64)
	case 4:
		d.emitOp(OpSelect128)
	default:
		d.emitOp(OpSelect)
	}
	d.emitSlot(cond.slot)
	d.emitSlot(a.slot)
	d.emitSlot(b.slot)
	d.emitSlot(d.pushOpd(t))
	return nil
}

func (d *decoder) simple(op byte, sub uint32, sig *opSig) error {
	if sig.feature != 0 {
		if err := d.require(sig.feature, OpcodeName(op, sub)); err != nil {
			return err
		}
	}
	args, err := d.popOpds(sig.in...)
	if err != nil {
		return err
	}
	if op == OpPrefix {
		d.emitSub(op, sub)
	} else {
		d.emitOp(op)
	}
	d.emitSlots(args)
	d.emitSlot(d.pushOpd(sig.out))
	return nil
}

// decode validates the function body, emitting rewritten code if the decoder has a rewriter.
func (d *decoder) decode() error {
	d.pushBlock(OpBlock, nil, d.fn.Sig.ReturnTypes, 0, 0, false)

	for {
		pos := d.r.Pos()
		if d.r.AtEnd() {
			return d.r.Errorf("unexpected end of function body")
		}
		op, _ := d.r.Byte()
		d.metrics.InstructionCount++

		done, err := d.decodeInstruction(op)
		if err == nil && d.rw != nil {
			err = d.rw.err
		}
		if err != nil {
			var malformed *wasm.MalformedError
			if errors.As(err, &malformed) || errors.Is(err, wasm.ErrAllocationFailed) {
				return err
			}
			name := OpcodeName(op, 0)
			if op >= OpPrefix {
				name = fmt.Sprintf("prefixed opcode %#x", op)
			}
			return fmt.Errorf("%s at offset %#x: %w", name, pos, err)
		}
		if done {
			if !d.r.AtEnd() {
				return d.r.Errorf("operators remaining after end of function")
			}
			return nil
		}
	}
}

func (d *decoder) decodeInstruction(op byte) (bool, error) {
	const (
		I32 = wasm.ValueTypeI32
		I64 = wasm.ValueTypeI64
		F32 = wasm.ValueTypeF32
		F64 = wasm.ValueTypeF64
	)

	switch op {
	case OpUnreachable:
		d.emitOp(op)
		d.unreachable()

	case OpNop:

	case OpBlock, OpLoop:
		in, out, err := d.readBlockType()
		if err != nil {
			return false, err
		}
		return false, d.enterBlock(op, in, out, operand{})

	case OpIf:
		in, out, err := d.readBlockType()
		if err != nil {
			return false, err
		}
		cond, err := d.popExpect(I32)
		if err != nil {
			return false, err
		}
		return false, d.enterBlock(op, in, out, cond)

	case OpElse:
		return false, d.doElse()

	case OpEnd:
		return d.doEnd()

	case OpBr:
		depth, err := d.r.VarUint32()
		if err != nil {
			return false, err
		}
		return false, d.branch(depth)

	case OpBrIf:
		depth, err := d.r.VarUint32()
		if err != nil {
			return false, err
		}
		return false, d.branchIf(depth)

	case OpBrTable:
		return false, d.branchTable()

	case OpReturn:
		return false, d.doReturn()

	case OpCall, OpReturnCall:
		if op == OpReturnCall {
			if err := d.require(wasm.FeatureTailCall, "return_call"); err != nil {
				return false, err
			}
		}
		funcidx, err := d.r.VarUint32()
		if err != nil {
			return false, err
		}
		sig, ok := d.GetFunctionSignature(funcidx)
		if !ok {
			return false, validationErrorf("unknown function %d", funcidx)
		}
		if op == OpReturnCall {
			if err := d.checkTailCall(sig); err != nil {
				return false, err
			}
		}
		if _, err := d.call(op, sig, funcidx); err != nil {
			return false, err
		}
		if op == OpReturnCall {
			d.unreachable()
			return false, nil
		}
		d.emitSlot(d.base + d.cells)
		d.pushOpds(sig.ReturnTypes...)

	case OpCallIndirect, OpReturnCallIndirect:
		if op == OpReturnCallIndirect {
			if err := d.require(wasm.FeatureTailCall, "return_call_indirect"); err != nil {
				return false, err
			}
		}
		typeidx, err := d.r.VarUint32()
		if err != nil {
			return false, err
		}
		tableidx, err := d.tableIndexImm()
		if err != nil {
			return false, err
		}
		table, err := d.table(tableidx)
		if err != nil {
			return false, err
		}
		if table.ElementType != wasm.ValueTypeFuncref {
			return false, wasm.ValidationError("type mismatch: indirect call through a table of non-function references")
		}
		sig, ok := d.GetType(typeidx)
		if !ok {
			return false, validationErrorf("unknown type %d", typeidx)
		}
		if op == OpReturnCallIndirect {
			if err := d.checkTailCall(sig); err != nil {
				return false, err
			}
		}
		if _, err := d.call(op, sig, typeidx, tableidx); err != nil {
			return false, err
		}
		if op == OpReturnCallIndirect {
			d.unreachable()
			return false, nil
		}
		d.emitSlot(d.base + d.cells)
		d.pushOpds(sig.ReturnTypes...)

	case OpDrop:
		_, err := d.popOpd()
		return false, err

	case OpSelect, OpSelectT:
		return false, d.doSelect(op == OpSelectT)

	case OpLocalGet:
		localidx, err := d.r.VarUint32()
		if err != nil {
			return false, err
		}
		t, slot, err := d.local(localidx)
		if err != nil {
			return false, err
		}
		d.pushLocal(t, slot)

	case OpLocalSet, OpLocalTee:
		localidx, err := d.r.VarUint32()
		if err != nil {
			return false, err
		}
		t, slot, err := d.local(localidx)
		if err != nil {
			return false, err
		}
		v, err := d.popExpect(t)
		if err != nil {
			return false, err
		}
		d.setLocal(t, slot, v)
		if op == OpLocalTee {
			d.pushLocal(t, slot)
		}

	case OpGlobalGet:
		globalidx, err := d.r.VarUint32()
		if err != nil {
			return false, err
		}
		t, ok := d.GetGlobalType(globalidx)
		if !ok {
			return false, validationErrorf("unknown global %d", globalidx)
		}
		d.emitOp(op)
		d.emitU32(globalidx)
		d.emitSlot(d.pushOpd(t.Type))

	case OpGlobalSet:
		globalidx, err := d.r.VarUint32()
		if err != nil {
			return false, err
		}
		t, ok := d.GetGlobalType(globalidx)
		if !ok {
			return false, validationErrorf("unknown global %d", globalidx)
		}
		if !t.Mutable {
			return false, wasm.ValidationError("global is immutable")
		}
		v, err := d.popExpect(t.Type)
		if err != nil {
			return false, err
		}
		d.emitOp(op)
		d.emitU32(globalidx)
		d.emitSlot(v.slot)

	case OpTableGet, OpTableSet:
		if err := d.require(wasm.FeatureReferenceTypes, OpcodeName(op, 0)); err != nil {
			return false, err
		}
		tableidx, err := d.r.VarUint32()
		if err != nil {
			return false, err
		}
		table, err := d.table(tableidx)
		if err != nil {
			return false, err
		}
		if op == OpTableGet {
			index, err := d.popExpect(I32)
			if err != nil {
				return false, err
			}
			d.emitOp(op)
			d.emitU32(tableidx)
			d.emitSlot(index.slot)
			d.emitSlot(d.pushOpd(table.ElementType))
			return false, nil
		}
		args, err := d.popOpds(I32, table.ElementType)
		if err != nil {
			return false, err
		}
		d.emitOp(op)
		d.emitU32(tableidx)
		d.emitSlots(args)

	case OpI32Load, OpI64Load, OpF32Load, OpF64Load, OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U, OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U, OpI64Load32S, OpI64Load32U, OpI32Store, OpI64Store, OpF32Store, OpF64Store, OpI32Store8, OpI32Store16, OpI64Store8, OpI64Store16, OpI64Store32:
		mop := memOps[op]
		ma, err := d.memarg(mop.align, false)
		if err != nil {
			return false, err
		}
		if mop.store {
			args, err := d.popOpds(ma.addrType, mop.typ)
			if err != nil {
				return false, err
			}
			d.emitOp(op)
			d.emitMemarg(ma)
			d.emitSlots(args)
			return false, nil
		}
		addr, err := d.popExpect(ma.addrType)
		if err != nil {
			return false, err
		}
		d.emitOp(op)
		d.emitMemarg(ma)
		d.emitSlot(addr.slot)
		d.emitSlot(d.pushOpd(mop.typ))

	case OpMemorySize, OpMemoryGrow:
		memidx, err := d.memoryIndexImm()
		if err != nil {
			return false, err
		}
		mem, err := d.memory(memidx)
		if err != nil {
			return false, err
		}
		t := addrType(mem)
		d.emitOp(op)
		d.emitU32(memidx)
		if op == OpMemoryGrow {
			d.metrics.MemoryGrow = true
			delta, err := d.popExpect(t)
			if err != nil {
				return false, err
			}
			d.emitSlot(delta.slot)
		}
		d.emitSlot(d.pushOpd(t))

	case OpI32Const:
		v, err := d.r.VarInt32()
		if err != nil {
			return false, err
		}
		d.pushConst(I32, uint64(uint32(v)), 0)

	case OpI64Const:
		v, err := d.r.VarInt64()
		if err != nil {
			return false, err
		}
		d.pushConst(I64, uint64(v), 0)

	case OpF32Const:
		v, err := d.r.U32()
		if err != nil {
			return false, err
		}
		d.pushConst(F32, uint64(v), 0)

	case OpF64Const:
		v, err := d.r.U64()
		if err != nil {
			return false, err
		}
		d.pushConst(F64, v, 0)

	case OpRefNull:
		if err := d.require(wasm.FeatureReferenceTypes, "ref.null"); err != nil {
			return false, err
		}
		t, err := d.refType()
		if err != nil {
			return false, err
		}
		d.pushConst(t, wasm.NullRef, 0)

	case OpRefIsNull:
		if err := d.require(wasm.FeatureReferenceTypes, "ref.is_null"); err != nil {
			return false, err
		}
		ref, err := d.popOpd()
		if err != nil {
			return false, err
		}
		if ref.typ != wasm.ValueTypeT && !ref.typ.IsRef() {
			return false, validationErrorf("type mismatch: expected a reference, got %v", ref.typ)
		}
		d.emitOp(op)
		d.emitSlot(ref.slot)
		d.emitSlot(d.pushOpd(I32))

	case OpRefFunc:
		if err := d.require(wasm.FeatureReferenceTypes, "ref.func"); err != nil {
			return false, err
		}
		funcidx, err := d.r.VarUint32()
		if err != nil {
			return false, err
		}
		if _, ok := d.GetFunctionSignature(funcidx); !ok {
			return false, validationErrorf("unknown function %d", funcidx)
		}
		if !d.IsDeclaredFunction(funcidx) {
			return false, validationErrorf("undeclared function reference %d", funcidx)
		}
		d.emitOp(op)
		d.emitU32(funcidx)
		d.emitSlot(d.pushOpd(wasm.ValueTypeFuncref))

	case OpPrefix:
		sub, err := d.r.VarUint32()
		if err != nil {
			return false, err
		}
		return false, d.doMisc(sub)

	case OpPrefixSIMD:
		if err := d.require(wasm.FeatureSIMD, "SIMD instruction"); err != nil {
			return false, err
		}
		return false, d.doSIMD()

	case OpPrefixAtomic:
		if err := d.require(wasm.FeatureThreads, "atomic instruction"); err != nil {
			return false, err
		}
		return false, d.doAtomic()

	default:
		sig := &numericSigs[op]
		if !sig.valid() {
			return false, d.r.Errorf("illegal opcode %#x", op)
		}
		return false, d.simple(op, 0, sig)
	}

	return false, nil
}

// doMisc validates a subopcode of OpPrefix.
func (d *decoder) doMisc(sub uint32) error {
	const I32 = wasm.ValueTypeI32

	if sub < uint32(len(truncSatSigs)) {
		return d.simple(OpPrefix, sub, &truncSatSigs[sub])
	}

	switch sub {
	case OpMemoryInit, OpDataDrop, OpMemoryCopy, OpMemoryFill, OpTableInit, OpElemDrop, OpTableCopy:
		if err := d.require(wasm.FeatureBulkMemory, OpcodeName(OpPrefix, sub)); err != nil {
			return err
		}
	case OpTableGrow, OpTableSize, OpTableFill:
		if err := d.require(wasm.FeatureReferenceTypes, OpcodeName(OpPrefix, sub)); err != nil {
			return err
		}
	default:
		return d.r.Errorf("illegal opcode 0xfc %#x", sub)
	}

	var (
		imms   [2]uint32
		nimms  int
		in     []wasm.ValueType
		result wasm.ValueType
	)
	switch sub {
	case OpMemoryInit, OpDataDrop:
		dataidx, err := d.r.VarUint32()
		if err != nil {
			return err
		}
		imms[0], nimms = dataidx, 1

		if sub == OpMemoryInit {
			memidx, err := d.memoryIndexImm()
			if err != nil {
				return err
			}
			mem, err := d.memory(memidx)
			if err != nil {
				return err
			}
			imms[1], nimms = memidx, 2
			in = []wasm.ValueType{addrType(mem), I32, I32}
		}

		count, ok := d.GetDataCount()
		if !ok {
			return wasm.ValidationError("data count section required")
		}
		if dataidx >= count {
			return validationErrorf("unknown data segment %d", dataidx)
		}

	case OpMemoryCopy:
		dst, err := d.memoryIndexImm()
		if err != nil {
			return err
		}
		src, err := d.memoryIndexImm()
		if err != nil {
			return err
		}
		dstMem, err := d.memory(dst)
		if err != nil {
			return err
		}
		srcMem, err := d.memory(src)
		if err != nil {
			return err
		}
		n := wasm.ValueTypeI32
		if dstMem.Limits.Is64 && srcMem.Limits.Is64 {
			n = wasm.ValueTypeI64
		}
		imms, nimms = [2]uint32{dst, src}, 2
		in = []wasm.ValueType{addrType(dstMem), addrType(srcMem), n}

	case OpMemoryFill:
		memidx, err := d.memoryIndexImm()
		if err != nil {
			return err
		}
		mem, err := d.memory(memidx)
		if err != nil {
			return err
		}
		t := addrType(mem)
		imms[0], nimms = memidx, 1
		in = []wasm.ValueType{t, I32, t}

	case OpTableInit, OpElemDrop:
		elemidx, err := d.r.VarUint32()
		if err != nil {
			return err
		}
		elemType, ok := d.GetElementType(elemidx)
		if !ok {
			return validationErrorf("unknown elem segment %d", elemidx)
		}
		imms[0], nimms = elemidx, 1

		if sub == OpTableInit {
			tableidx, err := d.r.VarUint32()
			if err != nil {
				return err
			}
			table, err := d.table(tableidx)
			if err != nil {
				return err
			}
			if table.ElementType != elemType {
				return validationErrorf("type mismatch: cannot initialize a table of %v from a segment of %v", table.ElementType, elemType)
			}
			imms[1], nimms = tableidx, 2
			in = []wasm.ValueType{I32, I32, I32}
		}

	case OpTableCopy:
		dst, err := d.r.VarUint32()
		if err != nil {
			return err
		}
		src, err := d.r.VarUint32()
		if err != nil {
			return err
		}
		dstTable, err := d.table(dst)
		if err != nil {
			return err
		}
		srcTable, err := d.table(src)
		if err != nil {
			return err
		}
		if dstTable.ElementType != srcTable.ElementType {
			return validationErrorf("type mismatch: cannot copy %v elements into a table of %v", srcTable.ElementType, dstTable.ElementType)
		}
		imms, nimms = [2]uint32{dst, src}, 2
		in = []wasm.ValueType{I32, I32, I32}

	case OpTableGrow, OpTableSize, OpTableFill:
		tableidx, err := d.r.VarUint32()
		if err != nil {
			return err
		}
		table, err := d.table(tableidx)
		if err != nil {
			return err
		}
		imms[0], nimms = tableidx, 1
		switch sub {
		case OpTableGrow:
			in, result = []wasm.ValueType{table.ElementType, I32}, I32
		case OpTableSize:
			result = I32
		case OpTableFill:
			in = []wasm.ValueType{I32, table.ElementType, I32}
		}
	}

	args, err := d.popOpds(in...)
	if err != nil {
		return err
	}
	d.emitSub(OpPrefix, sub)
	for _, imm := range imms[:nimms] {
		d.emitU32(imm)
	}
	d.emitSlots(args)
	if result != 0 {
		d.emitSlot(d.pushOpd(result))
	}
	return nil
}
