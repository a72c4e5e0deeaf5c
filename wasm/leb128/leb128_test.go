package leb128

import (
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var casesUint = []struct {
	v uint32
	b []byte
}{
	{v: 0, b: []byte{0x00}},
	{v: 1, b: []byte{0x01}},
	{v: 127, b: []byte{0x7f}},
	{v: 128, b: []byte{0x80, 0x01}},
	{v: 624485, b: []byte{0xe5, 0x8e, 0x26}},
	{v: math.MaxUint32, b: []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
}

var casesInt = []struct {
	v int64
	b []byte
}{
	{v: 0, b: []byte{0x00}},
	{v: 1, b: []byte{0x01}},
	{v: -1, b: []byte{0x7f}},
	{v: 63, b: []byte{0x3f}},
	{v: 64, b: []byte{0xc0, 0x00}},
	{v: -64, b: []byte{0x40}},
	{v: -65, b: []byte{0xbf, 0x7f}},
	{v: -123456, b: []byte{0xc0, 0xbb, 0x78}},
	{v: math.MaxInt64, b: []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00}},
	{v: math.MinInt64, b: []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x7f}},
}

func TestGetVarUint32(t *testing.T) {
	for _, c := range casesUint {
		v, n, err := GetVarUint32(c.b)
		require.NoError(t, err)
		assert.Equal(t, c.v, v)
		assert.Equal(t, len(c.b), n)
	}
}

func TestGetVarint64(t *testing.T) {
	for _, c := range casesInt {
		v, n, err := GetVarint64(c.b)
		require.NoError(t, err)
		assert.Equal(t, c.v, v)
		assert.Equal(t, len(c.b), n)
	}
}

func TestGetRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		get  func([]byte) error
		b    []byte
		err  error
	}{
		{"u32 truncated", getU32, []byte{0x80}, io.ErrUnexpectedEOF},
		{"u32 empty", getU32, nil, io.ErrUnexpectedEOF},
		{"u32 too long", getU32, []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x00}, ErrTooLong},
		{"u32 unused bits", getU32, []byte{0xff, 0xff, 0xff, 0xff, 0x1f}, ErrTooLarge},
		{"s32 bad sign extension", getS32, []byte{0xff, 0xff, 0xff, 0xff, 0x4f}, ErrTooLarge},
		{"s32 positive overflow", getS32, []byte{0x80, 0x80, 0x80, 0x80, 0x08}, ErrTooLarge},
		{"u64 unused bits", getU64, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x02}, ErrTooLarge},
		{"s64 bad sign extension", getS64, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}, ErrTooLarge},
		{"s64 too long", getS64, []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x00}, ErrTooLong},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.ErrorIs(t, c.get(c.b), c.err)
		})
	}
}

func TestGetVarint32SignExtension(t *testing.T) {
	v, n, err := GetVarint32([]byte{0xff, 0xff, 0xff, 0xff, 0x7f})
	require.NoError(t, err)
	assert.Equal(t, int32(-1), v)
	assert.Equal(t, 5, n)

	v, _, err = GetVarint32([]byte{0x80, 0x80, 0x80, 0x80, 0x78})
	require.NoError(t, err)
	assert.Equal(t, int32(math.MinInt32), v)
}

func TestGetVarint33(t *testing.T) {
	v, _, err := GetVarint33([]byte{0x40})
	require.NoError(t, err)
	assert.Equal(t, int64(-64), v)

	v, _, err = GetVarint33([]byte{0xff, 0xff, 0xff, 0xff, 0x0f})
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxUint32), v)
}

func getU32(b []byte) error { _, _, err := GetVarUint32(b); return err }
func getS32(b []byte) error { _, _, err := GetVarint32(b); return err }
func getU64(b []byte) error { _, _, err := GetVarUint64(b); return err }
func getS64(b []byte) error { _, _, err := GetVarint64(b); return err }
