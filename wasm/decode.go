// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

import (
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm/internal/readpos"
)

const (
	// maxLocalCells bounds the cells occupied by a function's parameters and locals.
	maxLocalCells = 65535

	// defaultTableMax is the smallest default maximum size of a table.
	defaultTableMax = 1024

	maxMemoryPages   = 65536
	maxMemory64Pages = 1 << 48
)

func getInitialCap(count uint32) uint32 {
	if count > 1024 {
		return 1024
	}
	return count
}

type builder struct {
	m    *Module
	opts Options
	log  *zap.Logger

	hasCodeSection bool
	hasDataSection bool

	nameSection *readpos.ReadPos
}

// DecodeModule decodes a WASM module from buf and checks its structure. Function bodies are not validated; see
// package validate. On failure every buffer allocated for the module is released.
func DecodeModule(buf []byte, opts Options) (_ *Module, err error) {
	sections, err := SplitSections(buf)
	if err != nil {
		return nil, err
	}

	if opts.MemoryPoolSize == 0 {
		opts.MemoryPoolSize = DefaultMemoryPoolSize
	}

	m := newModule(opts)
	m.Version = Version
	m.Sections = sections
	defer func() {
		if err != nil {
			m.Close()
		}
	}()

	b := &builder{m: m, opts: opts, log: Logger()}
	for i := range sections {
		s := &sections[i]
		if err := b.decodeSection(s); err != nil {
			return nil, fmt.Errorf("%v section: %w", s.ID, err)
		}
	}
	if err := b.finish(); err != nil {
		return nil, err
	}
	return m, nil
}

func (b *builder) decodeSection(s *RawSection) error {
	b.log.Debug("decoding section",
		zap.Stringer("id", s.ID),
		zap.Int64("offset", s.Start),
		zap.Int("size", len(s.Bytes)))

	r := readpos.New(s.Bytes, s.Start)

	var err error
	switch s.ID {
	case SectionIDCustom:
		err = b.decodeCustom(r)
	case SectionIDType:
		err = b.decodeTypes(r)
	case SectionIDImport:
		err = b.decodeImports(r)
	case SectionIDFunction:
		err = b.decodeFunctions(r)
	case SectionIDTable:
		err = b.decodeTables(r)
	case SectionIDMemory:
		err = b.decodeMemories(r)
	case SectionIDGlobal:
		err = b.decodeGlobals(r)
	case SectionIDExport:
		err = b.decodeExports(r)
	case SectionIDStart:
		err = b.decodeStart(r)
	case SectionIDElement:
		err = b.decodeElements(r)
	case SectionIDDataCount:
		err = b.decodeDataCount(r)
	case SectionIDCode:
		err = b.decodeCode(r)
	case SectionIDData:
		err = b.decodeData(r)
	default:
		return InvalidSectionIDError(s.ID)
	}
	if err != nil {
		return err
	}
	if !r.AtEnd() {
		return r.Errorf("section size mismatch")
	}
	return nil
}

func (b *builder) finish() error {
	m := b.m
	if len(m.Functions) != 0 && !b.hasCodeSection {
		return ValidationError("function and code section have inconsistent lengths")
	}
	if m.HasDataCount && !b.hasDataSection && m.DataCount != 0 {
		return ValidationError("data count and data section have inconsistent lengths")
	}
	if b.nameSection != nil {
		if err := b.decodeNames(b.nameSection); err != nil {
			return fmt.Errorf("name section: %w", err)
		}
	}
	return nil
}

func (b *builder) clone(data []byte) ([]byte, bool, error) {
	if !b.opts.CloneInput {
		return data, false, nil
	}
	buf, err := b.m.Allocate(len(data))
	if err != nil {
		return nil, false, err
	}
	copy(buf, data)
	return buf, true, nil
}

func readName(r *readpos.ReadPos) (string, error) {
	n, err := r.VarUint32()
	if err != nil {
		return "", err
	}
	bytes, err := r.Bytes(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(bytes) {
		return "", r.Errorf("malformed UTF-8 encoding")
	}
	return string(bytes), nil
}

// readCount reads a vector length and checks that the remaining input could hold that many entries of at least
// minSize bytes each.
func readCount(r *readpos.ReadPos, minSize int) (uint32, error) {
	n, err := r.VarUint32()
	if err != nil {
		return 0, err
	}
	if uint64(n)*uint64(minSize) > uint64(r.Remaining()) {
		return 0, r.Errorf("unexpected end: vector of %d entries exceeds section", n)
	}
	return n, nil
}

func (b *builder) valueType(r *readpos.ReadPos) (ValueType, error) {
	c, err := r.Byte()
	if err != nil {
		return 0, err
	}
	switch t := ValueType(c); t {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64:
		return t, nil
	case ValueTypeV128:
		return t, b.opts.Features.RequireEnabled(FeatureSIMD, "v128 value type")
	case ValueTypeFuncref, ValueTypeExternref:
		return t, b.opts.Features.RequireEnabled(FeatureReferenceTypes, "reference value type")
	default:
		return 0, r.Errorf("malformed value type %#x", c)
	}
}

func (b *builder) refType(r *readpos.ReadPos) (ValueType, error) {
	c, err := r.Byte()
	if err != nil {
		return 0, err
	}
	switch t := ValueType(c); t {
	case ValueTypeFuncref:
		return t, nil
	case ValueTypeExternref:
		return t, b.opts.Features.RequireEnabled(FeatureReferenceTypes, "externref")
	default:
		return 0, r.Errorf("malformed reference type %#x", c)
	}
}

func (b *builder) valueTypes(r *readpos.ReadPos) ([]ValueType, error) {
	n, err := readCount(r, 1)
	if err != nil {
		return nil, err
	}
	types := make([]ValueType, n)
	for i := range types {
		if types[i], err = b.valueType(r); err != nil {
			return nil, err
		}
	}
	return types, nil
}

func (b *builder) decodeCustom(r *readpos.ReadPos) error {
	name, err := readName(r)
	if err != nil {
		return err
	}

	base := r.Pos()
	data, _ := r.Bytes(uint32(r.Remaining()))
	data, owned, err := b.clone(data)
	if err != nil {
		return err
	}
	b.m.Customs = append(b.m.Customs, CustomSection{Name: name, Data: data, Owned: owned})

	if name == CustomSectionName && b.opts.Features.IsEnabled(FeatureNameSection) && b.nameSection == nil {
		// Function names can only be checked once the function section has been read.
		b.nameSection = readpos.New(data, base)
	}
	return nil
}

func (b *builder) decodeTypes(r *readpos.ReadPos) error {
	m := b.m

	count, err := readCount(r, 3)
	if err != nil {
		return err
	}

	m.Types = make([]*FunctionSig, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		form, err := r.Byte()
		if err != nil {
			return err
		}
		if form != 0x60 {
			return r.Errorf("malformed function type form %#x", form)
		}

		params, err := b.valueTypes(r)
		if err != nil {
			return err
		}
		results, err := b.valueTypes(r)
		if err != nil {
			return err
		}
		if len(results) > 1 {
			if err := b.opts.Features.RequireEnabled(FeatureMultiValue, "multiple results"); err != nil {
				return err
			}
		}

		sig := newFunctionSig(params, results)
		if sig.ParamCells > maxLocalCells || sig.ReturnCells > maxLocalCells {
			return validationErrorf("type %d: too many parameters or results", i)
		}
		m.Types = append(m.Types, m.internType(sig))
	}
	return nil
}

type importDesc struct {
	moduleName string
	fieldName  string
	kind       External

	typeIndex uint32
	table     Table
	memory    Memory
	global    GlobalVar
}

func (b *builder) readImport(r *readpos.ReadPos) (d importDesc, err error) {
	if d.moduleName, err = readName(r); err != nil {
		return d, err
	}
	if d.fieldName, err = readName(r); err != nil {
		return d, err
	}

	kind, err := r.Byte()
	if err != nil {
		return d, err
	}
	d.kind = External(kind)

	switch d.kind {
	case ExternalFunction:
		if d.typeIndex, err = r.VarUint32(); err != nil {
			return d, err
		}
		if d.typeIndex >= uint32(len(b.m.Types)) {
			return d, validationErrorf("unknown type %d", d.typeIndex)
		}
	case ExternalTable:
		d.table, err = b.tableType(r)
	case ExternalMemory:
		d.memory, err = b.memoryType(r)
	case ExternalGlobal:
		d.global, err = b.globalType(r)
		if err == nil && d.global.Mutable {
			err = b.opts.Features.RequireEnabled(FeatureMutableGlobal, "mutable global import")
		}
	default:
		return d, r.Errorf("malformed import kind %#x", kind)
	}
	return d, err
}

// decodeImports reads the import section twice: once to size the per-kind import arrays, and once to fill them.
func (b *builder) decodeImports(r *readpos.ReadPos) error {
	m := b.m

	start := r.Offset()
	count, err := readCount(r, 4)
	if err != nil {
		return err
	}

	var counts [4]int
	for i := uint32(0); i < count; i++ {
		d, err := b.readImport(r)
		if err != nil {
			return err
		}
		counts[d.kind]++
	}

	m.ImportedFunctions = make([]ImportedFunction, 0, counts[ExternalFunction])
	m.ImportedTables = make([]ImportedTable, 0, counts[ExternalTable])
	m.ImportedMemories = make([]ImportedMemory, 0, counts[ExternalMemory])
	m.ImportedGlobals = make([]ImportedGlobal, 0, counts[ExternalGlobal])

	r.Seek(start)
	if _, err = r.VarUint32(); err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		d, err := b.readImport(r)
		if err != nil {
			return err
		}

		switch d.kind {
		case ExternalFunction:
			imp := ImportedFunction{
				ModuleName: d.moduleName,
				FieldName:  d.fieldName,
				TypeIndex:  d.typeIndex,
				Sig:        m.Types[d.typeIndex],
			}
			if b.opts.Resolver != nil {
				imp.Host, imp.Resolved = b.opts.Resolver.ResolveFunction(d.moduleName, d.fieldName, imp.Sig)
			}
			if !imp.Resolved {
				b.log.Debug("unresolved function import",
					zap.String("module", d.moduleName),
					zap.String("field", d.fieldName))
			}
			m.ImportedFunctions = append(m.ImportedFunctions, imp)
		case ExternalTable:
			m.ImportedTables = append(m.ImportedTables, ImportedTable{ModuleName: d.moduleName, FieldName: d.fieldName, Table: d.table})
		case ExternalMemory:
			m.ImportedMemories = append(m.ImportedMemories, ImportedMemory{ModuleName: d.moduleName, FieldName: d.fieldName, Memory: d.memory})
		case ExternalGlobal:
			imp := ImportedGlobal{
				ModuleName: d.moduleName,
				FieldName:  d.fieldName,
				Type:       d.global,
			}
			if b.opts.Resolver != nil {
				imp.Value, imp.Resolved = b.opts.Resolver.ResolveGlobal(d.moduleName, d.fieldName)
			}
			if imp.Resolved && (imp.Value.Type != d.global.Type || imp.Value.Mutable != d.global.Mutable) {
				return validationErrorf("incompatible import type for global %s.%s", d.moduleName, d.fieldName)
			}
			m.ImportedGlobals = append(m.ImportedGlobals, imp)
		}
	}

	return b.checkTableAndMemoryCounts()
}

func (b *builder) checkTableAndMemoryCounts() error {
	if b.m.NumTables() > 1 {
		if err := b.opts.Features.RequireEnabled(FeatureReferenceTypes, "multiple tables"); err != nil {
			return err
		}
	}
	if b.m.NumMemories() > 1 {
		if err := b.opts.Features.RequireEnabled(FeatureMultiMemory, "multiple memories"); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) decodeFunctions(r *readpos.ReadPos) error {
	m := b.m

	count, err := readCount(r, 1)
	if err != nil {
		return err
	}

	m.Functions = make([]Function, count)
	for i := range m.Functions {
		typeIndex, err := r.VarUint32()
		if err != nil {
			return err
		}
		sig, ok := m.GetType(typeIndex)
		if !ok {
			return validationErrorf("unknown type %d", typeIndex)
		}
		m.Functions[i] = Function{
			TypeIndex:  typeIndex,
			Sig:        sig,
			ParamCells: sig.ParamCells,
		}
	}
	return nil
}

func (b *builder) limits(r *readpos.ReadPos, memory bool) (Limits, error) {
	flags, err := r.VarUint32()
	if err != nil {
		return Limits{}, err
	}

	maxFlags := uint32(1)
	if memory {
		maxFlags = 7
	}
	if flags > maxFlags {
		return Limits{}, r.Errorf("malformed limits flags %#x", flags)
	}

	l := Limits{
		HasMax: flags&1 != 0,
		Shared: flags&2 != 0,
		Is64:   flags&4 != 0,
	}
	if l.Shared {
		if err := b.opts.Features.RequireEnabled(FeatureThreads, "shared memory"); err != nil {
			return Limits{}, err
		}
	}
	if l.Is64 {
		if err := b.opts.Features.RequireEnabled(FeatureMemory64, "64-bit memory"); err != nil {
			return Limits{}, err
		}
	}

	if l.Initial, err = r.MemOffset(l.Is64); err != nil {
		return Limits{}, err
	}
	if l.HasMax {
		if l.Maximum, err = r.MemOffset(l.Is64); err != nil {
			return Limits{}, err
		}
		if l.Initial > l.Maximum {
			return Limits{}, ValidationError("size minimum must not be greater than maximum")
		}
	}
	return l, nil
}

func (b *builder) tableType(r *readpos.ReadPos) (Table, error) {
	elemType, err := b.refType(r)
	if err != nil {
		return Table{}, err
	}
	limits, err := b.limits(r, false)
	if err != nil {
		return Table{}, err
	}

	defaultMax := 2 * limits.Initial
	if defaultMax < defaultTableMax {
		defaultMax = defaultTableMax
	}
	switch {
	case !limits.HasMax:
		limits.Maximum = defaultMax
	case limits.Initial < limits.Maximum && limits.Maximum > defaultMax:
		limits.Maximum = defaultMax
	}
	return Table{ElementType: elemType, Limits: limits}, nil
}

func (b *builder) memoryType(r *readpos.ReadPos) (Memory, error) {
	limits, err := b.limits(r, true)
	if err != nil {
		return Memory{}, err
	}

	maxPages := uint64(maxMemoryPages)
	if limits.Is64 {
		maxPages = maxMemory64Pages
	}
	if limits.Initial > maxPages || (limits.HasMax && limits.Maximum > maxPages) {
		return Memory{}, validationErrorf("memory size must be at most %d pages", maxPages)
	}
	if limits.Shared && !limits.HasMax {
		return Memory{}, ValidationError("shared memory must have maximum")
	}

	if !limits.HasMax {
		limits.Maximum = maxPages
		if poolPages := b.opts.MemoryPoolSize / PageSize; poolPages < limits.Maximum {
			limits.Maximum = poolPages
		}
		if limits.Maximum < limits.Initial {
			limits.Maximum = limits.Initial
		}
	}
	return Memory{Limits: limits, PageSize: PageSize}, nil
}

func (b *builder) globalType(r *readpos.ReadPos) (GlobalVar, error) {
	t, err := b.valueType(r)
	if err != nil {
		return GlobalVar{}, err
	}
	mut, err := r.Byte()
	if err != nil {
		return GlobalVar{}, err
	}
	if mut > 1 {
		return GlobalVar{}, r.Errorf("malformed mutability %#x", mut)
	}
	return GlobalVar{Type: t, Mutable: mut == 1}, nil
}

func (b *builder) decodeTables(r *readpos.ReadPos) error {
	count, err := readCount(r, 3)
	if err != nil {
		return err
	}
	b.m.Tables = make([]Table, count)
	for i := range b.m.Tables {
		if b.m.Tables[i], err = b.tableType(r); err != nil {
			return err
		}
	}
	return b.checkTableAndMemoryCounts()
}

func (b *builder) decodeMemories(r *readpos.ReadPos) error {
	count, err := readCount(r, 2)
	if err != nil {
		return err
	}
	b.m.Memories = make([]Memory, count)
	for i := range b.m.Memories {
		if b.m.Memories[i], err = b.memoryType(r); err != nil {
			return err
		}
	}
	return b.checkTableAndMemoryCounts()
}

func (b *builder) decodeGlobals(r *readpos.ReadPos) error {
	m := b.m

	count, err := readCount(r, 4)
	if err != nil {
		return err
	}
	m.Globals = make([]Global, 0, count)
	for i := uint32(0); i < count; i++ {
		t, err := b.globalType(r)
		if err != nil {
			return err
		}
		init, err := m.evalConstExpr(r, t.Type)
		if err != nil {
			return fmt.Errorf("global %d: %w", i, err)
		}
		m.Globals = append(m.Globals, Global{Type: t, Init: init})
	}
	return nil
}

func (b *builder) decodeExports(r *readpos.ReadPos) error {
	m := b.m

	count, err := readCount(r, 3)
	if err != nil {
		return err
	}
	m.Exports = make([]Export, 0, count)
	for i := uint32(0); i < count; i++ {
		name, err := readName(r)
		if err != nil {
			return err
		}
		kind, err := r.Byte()
		if err != nil {
			return err
		}
		index, err := r.VarUint32()
		if err != nil {
			return err
		}

		if _, exists := m.exportMap[name]; exists {
			return DuplicateExportError(name)
		}

		switch External(kind) {
		case ExternalFunction:
			if index >= m.NumFunctions() {
				return validationErrorf("unknown function %d", index)
			}
			m.declareFunction(index)
		case ExternalTable:
			if index >= m.NumTables() {
				return validationErrorf("unknown table %d", index)
			}
		case ExternalMemory:
			if index >= m.NumMemories() {
				return validationErrorf("unknown memory %d", index)
			}
		case ExternalGlobal:
			t, ok := m.GetGlobalType(index)
			if !ok {
				return validationErrorf("unknown global %d", index)
			}
			if t.Mutable {
				if err := b.opts.Features.RequireEnabled(FeatureMutableGlobal, "mutable global export"); err != nil {
					return err
				}
			}
		default:
			return r.Errorf("malformed export kind %#x", kind)
		}

		m.exportMap[name] = len(m.Exports)
		m.Exports = append(m.Exports, Export{Name: name, Kind: External(kind), Index: index})
	}
	return nil
}

func (b *builder) decodeStart(r *readpos.ReadPos) error {
	m := b.m

	index, err := r.VarUint32()
	if err != nil {
		return err
	}
	sig, ok := m.GetFunctionSignature(index)
	if !ok {
		return validationErrorf("unknown function %d", index)
	}
	if len(sig.ParamTypes) != 0 || len(sig.ReturnTypes) != 0 {
		return ValidationError("start function must have type [] -> []")
	}
	m.Start = int64(index)
	return nil
}

// decodeElements decodes element segments. The low three bits of the segment flags select the encoding: bit 0 marks
// a passive or declarative segment, bit 1 an explicit table index (active) or a declarative segment, and bit 2 a
// vector of expressions rather than function indices.
func (b *builder) decodeElements(r *readpos.ReadPos) error {
	m := b.m

	count, err := readCount(r, 2)
	if err != nil {
		return err
	}
	m.Elements = make([]ElementSegment, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		seg, err := b.elementSegment(r)
		if err != nil {
			return fmt.Errorf("element segment %d: %w", i, err)
		}
		m.Elements = append(m.Elements, seg)
	}
	return nil
}

func (b *builder) elementSegment(r *readpos.ReadPos) (ElementSegment, error) {
	m := b.m

	flags, err := r.VarUint32()
	if err != nil {
		return ElementSegment{}, err
	}
	if flags > 7 {
		return ElementSegment{}, r.Errorf("malformed elements segment kind %d", flags)
	}
	if flags != 0 {
		if err := b.opts.Features.RequireEnabled(FeatureBulkMemory, "element segment kind"); err != nil {
			return ElementSegment{}, err
		}
	}

	seg := ElementSegment{Type: ValueTypeFuncref}
	switch {
	case flags&1 == 0:
		seg.Mode = SegmentActive
	case flags&2 != 0:
		seg.Mode = SegmentDeclarative
	default:
		seg.Mode = SegmentPassive
	}

	var table Table
	if seg.Mode == SegmentActive {
		if flags&2 != 0 {
			if seg.TableIndex, err = r.VarUint32(); err != nil {
				return ElementSegment{}, err
			}
			if seg.TableIndex != 0 {
				if err := b.opts.Features.RequireEnabled(FeatureReferenceTypes, "non-zero table index"); err != nil {
					return ElementSegment{}, err
				}
			}
		}
		var ok bool
		if table, ok = m.GetTable(seg.TableIndex); !ok {
			return ElementSegment{}, validationErrorf("unknown table %d", seg.TableIndex)
		}
		if seg.Offset, err = m.evalConstExpr(r, ValueTypeI32); err != nil {
			return ElementSegment{}, err
		}
	}

	exprs := flags&4 != 0
	if flags&3 != 0 {
		if exprs {
			if seg.Type, err = b.refType(r); err != nil {
				return ElementSegment{}, err
			}
		} else {
			kind, err := r.Byte()
			if err != nil {
				return ElementSegment{}, err
			}
			if kind != 0 {
				return ElementSegment{}, r.Errorf("malformed element kind %#x", kind)
			}
		}
	}

	n, err := readCount(r, 1)
	if err != nil {
		return ElementSegment{}, err
	}
	seg.Init = make([]ConstExpr, n)
	for j := range seg.Init {
		if exprs {
			if seg.Init[j], err = m.evalConstExpr(r, seg.Type); err != nil {
				return ElementSegment{}, err
			}
			continue
		}

		funcidx, err := r.VarUint32()
		if err != nil {
			return ElementSegment{}, err
		}
		if funcidx >= m.NumFunctions() {
			return ElementSegment{}, validationErrorf("unknown function %d", funcidx)
		}
		m.declareFunction(funcidx)
		seg.Init[j] = ConstExpr{Opcode: opRefFunc, Type: ValueTypeFuncref, Bits: uint64(funcidx)}
	}

	if seg.Mode == SegmentActive && seg.Type != table.ElementType {
		return ElementSegment{}, ValidationError("type mismatch")
	}
	return seg, nil
}

func (b *builder) decodeDataCount(r *readpos.ReadPos) error {
	if err := b.opts.Features.RequireEnabled(FeatureBulkMemory, "data count section"); err != nil {
		return err
	}
	count, err := r.VarUint32()
	if err != nil {
		return err
	}
	b.m.DataCount, b.m.HasDataCount = count, true
	return nil
}

func (b *builder) decodeCode(r *readpos.ReadPos) error {
	m := b.m
	b.hasCodeSection = true

	count, err := readCount(r, 2)
	if err != nil {
		return err
	}
	if count != uint32(len(m.Functions)) {
		return ValidationError("function and code section have inconsistent lengths")
	}

	for i := range m.Functions {
		fn := &m.Functions[i]

		size, err := r.VarUint32()
		if err != nil {
			return err
		}
		body, err := r.Sub(size)
		if err != nil {
			return err
		}
		if err := b.decodeLocals(body, fn); err != nil {
			return fmt.Errorf("function %d: %w", uint32(len(m.ImportedFunctions))+uint32(i), err)
		}

		fn.BodyOffset = body.Pos()
		code, _ := body.Bytes(uint32(body.Remaining()))
		if fn.Body, _, err = b.clone(code); err != nil {
			return err
		}
	}
	return nil
}

// decodeLocals expands the run-length encoded local declarations of a function body and assigns each parameter and
// local its cell offset. The declarations are read twice so that the total is bounded before anything is allocated.
func (b *builder) decodeLocals(r *readpos.ReadPos, fn *Function) error {
	start := r.Offset()

	groups, err := r.VarUint32()
	if err != nil {
		return err
	}
	count, localCells := uint64(0), uint64(0)
	for g := uint32(0); g < groups; g++ {
		n, err := r.VarUint32()
		if err != nil {
			return err
		}
		t, err := b.valueType(r)
		if err != nil {
			return err
		}
		count += uint64(n)
		localCells += uint64(n) * uint64(t.Cells())
		if uint64(fn.ParamCells)+localCells > maxLocalCells {
			return ValidationError("too many locals")
		}
	}

	r.Seek(start)
	groups, _ = r.VarUint32()
	fn.Locals = make([]ValueType, 0, count)
	for g := uint32(0); g < groups; g++ {
		n, _ := r.VarUint32()
		t, _ := b.valueType(r)
		for j := uint32(0); j < n; j++ {
			fn.Locals = append(fn.Locals, t)
		}
	}

	params := fn.Sig.ParamTypes
	fn.LocalOffsets = make([]uint16, len(params)+len(fn.Locals))
	offset := 0
	for i, t := range params {
		fn.LocalOffsets[i] = uint16(offset)
		offset += t.Cells()
	}
	for i, t := range fn.Locals {
		fn.LocalOffsets[len(params)+i] = uint16(offset)
		offset += t.Cells()
	}
	fn.LocalCells = int(localCells)
	return nil
}

func (b *builder) decodeData(r *readpos.ReadPos) error {
	m := b.m
	b.hasDataSection = true

	count, err := readCount(r, 2)
	if err != nil {
		return err
	}
	if m.HasDataCount && count != m.DataCount {
		return ValidationError("data count and data section have inconsistent lengths")
	}

	m.Data = make([]DataSegment, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		seg, err := b.dataSegment(r)
		if err != nil {
			return fmt.Errorf("data segment %d: %w", i, err)
		}
		m.Data = append(m.Data, seg)
	}
	return nil
}

func (b *builder) dataSegment(r *readpos.ReadPos) (DataSegment, error) {
	m := b.m

	flags, err := r.VarUint32()
	if err != nil {
		return DataSegment{}, err
	}
	if flags > 2 {
		return DataSegment{}, r.Errorf("malformed data segment kind %d", flags)
	}
	if flags != 0 {
		if err := b.opts.Features.RequireEnabled(FeatureBulkMemory, "data segment kind"); err != nil {
			return DataSegment{}, err
		}
	}

	var seg DataSegment
	if flags == 1 {
		seg.Mode = SegmentPassive
	} else {
		seg.Mode = SegmentActive
		if flags == 2 {
			if seg.MemoryIndex, err = r.VarUint32(); err != nil {
				return DataSegment{}, err
			}
			if seg.MemoryIndex != 0 {
				if err := b.opts.Features.RequireEnabled(FeatureMultiMemory, "non-zero memory index"); err != nil {
					return DataSegment{}, err
				}
			}
		}
		mem, ok := m.GetMemory(seg.MemoryIndex)
		if !ok {
			return DataSegment{}, validationErrorf("unknown memory %d", seg.MemoryIndex)
		}
		offsetType := ValueTypeI32
		if mem.Limits.Is64 {
			offsetType = ValueTypeI64
		}
		if seg.Offset, err = m.evalConstExpr(r, offsetType); err != nil {
			return DataSegment{}, err
		}
	}

	n, err := r.VarUint32()
	if err != nil {
		return DataSegment{}, err
	}
	payload, err := r.Bytes(n)
	if err != nil {
		return DataSegment{}, err
	}
	if seg.Init, seg.Owned, err = b.clone(payload); err != nil {
		return DataSegment{}, err
	}
	return seg, nil
}
