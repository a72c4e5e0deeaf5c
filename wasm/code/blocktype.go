package code

import (
	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm"
)

const blockTypeEmpty = 0x40

// singleResults holds the result vector of each single-value block type so that decoding a block type does not
// allocate.
var singleResults [256][]wasm.ValueType

func init() {
	for _, t := range []wasm.ValueType{
		wasm.ValueTypeI32,
		wasm.ValueTypeI64,
		wasm.ValueTypeF32,
		wasm.ValueTypeF64,
		wasm.ValueTypeV128,
		wasm.ValueTypeFuncref,
		wasm.ValueTypeExternref,
	} {
		singleResults[t] = []wasm.ValueType{t}
	}
}

// valueType checks that a value type tag is known and enabled.
func (d *decoder) valueType(b byte) (wasm.ValueType, error) {
	switch t := wasm.ValueType(b); t {
	case wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64:
		return t, nil
	case wasm.ValueTypeV128:
		return t, d.require(wasm.FeatureSIMD, "v128 value type")
	case wasm.ValueTypeFuncref, wasm.ValueTypeExternref:
		return t, d.require(wasm.FeatureReferenceTypes, "reference value type")
	default:
		return 0, d.r.Errorf("malformed value type %#x", b)
	}
}

// readBlockType decodes a block type: the empty type, a single result type, or the index of a function type whose
// parameters and results become the block's signature.
func (d *decoder) readBlockType() (in, out []wasm.ValueType, err error) {
	b, err := d.r.PeekByte()
	if err != nil {
		return nil, nil, err
	}

	if b == blockTypeEmpty {
		d.r.Byte()
		return nil, nil, nil
	}
	if b&0xc0 == 0x40 {
		d.r.Byte()
		t, err := d.valueType(b)
		if err != nil {
			return nil, nil, err
		}
		return nil, singleResults[t], nil
	}

	index, err := d.r.VarInt33()
	if err != nil {
		return nil, nil, err
	}
	if index < 0 {
		return nil, nil, d.r.Errorf("malformed block type %d", index)
	}
	if err := d.require(wasm.FeatureMultiValue, "block type index"); err != nil {
		return nil, nil, err
	}
	sig, ok := d.GetType(uint32(index))
	if !ok {
		return nil, nil, validationErrorf("unknown type %d", index)
	}
	return sig.ParamTypes, sig.ReturnTypes, nil
}
