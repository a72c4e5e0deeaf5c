package wasm

import (
	"go.uber.org/zap"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm/internal/readpos"
)

// CustomSectionName is the name of the custom section that carries debug names.
const CustomSectionName = "name"

const (
	nameSubsectionModule   = 0
	nameSubsectionFunction = 1
)

// Naming associates a name with an index.
type Naming struct {
	Index uint32
	Name  string
}

// NameSection holds the module and function names decoded from the "name" custom section. Other subsections are
// skipped.
type NameSection struct {
	ModuleName string
	Functions  []Naming
}

// FunctionName returns the debug name of the given function, if any.
func (n *NameSection) FunctionName(funcidx uint32) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, f := range n.Functions {
		if f.Index == funcidx {
			return f.Name, true
		}
	}
	return "", false
}

func (b *builder) decodeNames(r *readpos.ReadPos) error {
	m := b.m

	names := &NameSection{}
	for !r.AtEnd() {
		id, err := r.Byte()
		if err != nil {
			return err
		}
		size, err := r.VarUint32()
		if err != nil {
			return err
		}
		sub, err := r.Sub(size)
		if err != nil {
			return err
		}

		switch id {
		case nameSubsectionModule:
			if names.ModuleName, err = readName(sub); err != nil {
				return err
			}
		case nameSubsectionFunction:
			if err := b.decodeFunctionNames(sub, names); err != nil {
				return err
			}
		default:
			continue
		}
		if !sub.AtEnd() {
			return sub.Errorf("name subsection size mismatch")
		}
	}

	m.Names = names
	b.log.Debug("decoded name section", zap.Int("functions", len(names.Functions)))
	return nil
}

func (b *builder) decodeFunctionNames(r *readpos.ReadPos, names *NameSection) error {
	m := b.m

	count, err := readCount(r, 2)
	if err != nil {
		return err
	}
	names.Functions = make([]Naming, 0, getInitialCap(count))

	prev := int64(-1)
	for i := uint32(0); i < count; i++ {
		index, err := r.VarUint32()
		if err != nil {
			return err
		}
		name, err := readName(r)
		if err != nil {
			return err
		}

		if int64(index) <= prev {
			return validationErrorf("out-of-order function index %d in name section", index)
		}
		prev = int64(index)

		if index >= m.NumFunctions() {
			return validationErrorf("invalid function index %d in name section", index)
		}
		if fn := m.Function(index); fn != nil {
			fn.Name = name
		}
		names.Functions = append(names.Functions, Naming{Index: index, Name: name})
	}
	return nil
}
