package readpos

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPastEnd(t *testing.T) {
	r := New([]byte{0x01, 0x02, 0x03}, 8)

	_, err := r.U32()
	var merr *MalformedError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, int64(8), merr.Offset)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	b, err := r.Byte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), b)
	assert.Equal(t, int64(9), r.Pos())

	_, err = r.Bytes(3)
	assert.Error(t, err)
	assert.Equal(t, 2, r.Remaining())
}

func TestCheckedAndTrustedAgree(t *testing.T) {
	buf := []byte{0xe5, 0x8e, 0x26, 0x7f, 0xc0, 0xbb, 0x78, 0x80, 0x01}

	checked, trusted := New(buf, 0), Trusted(buf, 0)
	for !checked.AtEnd() {
		a, err := checked.VarInt64()
		require.NoError(t, err)
		b, err := trusted.VarInt64()
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Equal(t, checked.Offset(), trusted.Offset())
	}
}

func TestSub(t *testing.T) {
	r := New([]byte{0xaa, 0x01, 0x02, 0xbb}, 100)
	_, err := r.Byte()
	require.NoError(t, err)

	s, err := r.Sub(2)
	require.NoError(t, err)
	assert.Equal(t, int64(101), s.Pos())
	assert.Equal(t, 2, s.Remaining())

	_, err = s.U32()
	assert.Error(t, err)

	b, err := r.Byte()
	require.NoError(t, err)
	assert.Equal(t, byte(0xbb), b)
}

func TestLEBErrorsAreMalformed(t *testing.T) {
	r := New([]byte{0xff, 0xff, 0xff, 0xff, 0x1f}, 0)
	_, err := r.VarUint32()
	var merr *MalformedError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, "integer too large", merr.Msg)
}
