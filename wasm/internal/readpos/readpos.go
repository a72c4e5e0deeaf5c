// Package readpos implements a bounded cursor over a module's bytes.
package readpos

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/wasm/leb128"
)

// MalformedError reports an encoding error at an absolute offset in the input.
type MalformedError struct {
	Offset int64
	Msg    string
	Err    error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s (at offset %#x)", e.Msg, e.Offset)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// ReadPos is a cursor over a byte slice. buf[0] lives at absolute offset Base in the original input. Reads never
// cross the end of buf.
type ReadPos struct {
	buf     []byte
	pos     int
	base    int64
	trusted bool
}

// New returns a checked cursor over buf.
func New(buf []byte, base int64) *ReadPos {
	return &ReadPos{buf: buf, base: base}
}

// Trusted returns a cursor that decodes LEB128 values without validation. It must only be used on bytes that a
// checked cursor has already accepted.
func Trusted(buf []byte, base int64) *ReadPos {
	return &ReadPos{buf: buf, base: base, trusted: true}
}

// Pos returns the absolute offset of the next byte.
func (r *ReadPos) Pos() int64 {
	return r.base + int64(r.pos)
}

// Offset returns the offset of the next byte relative to the start of the cursor.
func (r *ReadPos) Offset() int {
	return r.pos
}

// Seek moves the cursor to a relative offset previously returned by Offset.
func (r *ReadPos) Seek(off int) {
	r.pos = off
}

func (r *ReadPos) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *ReadPos) AtEnd() bool {
	return r.pos >= len(r.buf)
}

// Buffer returns the underlying bytes.
func (r *ReadPos) Buffer() []byte {
	return r.buf
}

// Errorf returns a MalformedError positioned at the cursor.
func (r *ReadPos) Errorf(format string, args ...interface{}) error {
	return &MalformedError{Offset: r.Pos(), Msg: fmt.Sprintf(format, args...)}
}

func (r *ReadPos) eof() error {
	return &MalformedError{Offset: r.Pos(), Msg: "unexpected end", Err: io.ErrUnexpectedEOF}
}

func (r *ReadPos) leb(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return r.eof()
	}
	return &MalformedError{Offset: r.Pos(), Msg: err.Error(), Err: err}
}

func (r *ReadPos) Byte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, r.eof()
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// PeekByte returns the next byte without consuming it.
func (r *ReadPos) PeekByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, r.eof()
	}
	return r.buf[r.pos], nil
}

// U32 reads a fixed-width little-endian uint32.
func (r *ReadPos) U32() (uint32, error) {
	if r.Remaining() < 4 {
		return 0, r.eof()
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// U64 reads a fixed-width little-endian uint64.
func (r *ReadPos) U64() (uint64, error) {
	if r.Remaining() < 8 {
		return 0, r.eof()
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *ReadPos) VarUint32() (uint32, error) {
	if r.trusted {
		v, n := leb128.FastUint32(r.buf[r.pos:])
		r.pos += n
		return v, nil
	}
	v, n, err := leb128.GetVarUint32(r.buf[r.pos:])
	if err != nil {
		return 0, r.leb(err)
	}
	r.pos += n
	return v, nil
}

func (r *ReadPos) VarInt32() (int32, error) {
	if r.trusted {
		v, n := leb128.FastInt32(r.buf[r.pos:])
		r.pos += n
		return v, nil
	}
	v, n, err := leb128.GetVarint32(r.buf[r.pos:])
	if err != nil {
		return 0, r.leb(err)
	}
	r.pos += n
	return v, nil
}

// VarInt33 reads a signed 33-bit integer, the encoding of block types.
func (r *ReadPos) VarInt33() (int64, error) {
	if r.trusted {
		v, n := leb128.FastInt64(r.buf[r.pos:])
		r.pos += n
		return v, nil
	}
	v, n, err := leb128.GetVarint33(r.buf[r.pos:])
	if err != nil {
		return 0, r.leb(err)
	}
	r.pos += n
	return v, nil
}

func (r *ReadPos) VarUint64() (uint64, error) {
	if r.trusted {
		v, n := leb128.FastUint64(r.buf[r.pos:])
		r.pos += n
		return v, nil
	}
	v, n, err := leb128.GetVarUint64(r.buf[r.pos:])
	if err != nil {
		return 0, r.leb(err)
	}
	r.pos += n
	return v, nil
}

func (r *ReadPos) VarInt64() (int64, error) {
	if r.trusted {
		v, n := leb128.FastInt64(r.buf[r.pos:])
		r.pos += n
		return v, nil
	}
	v, n, err := leb128.GetVarint64(r.buf[r.pos:])
	if err != nil {
		return 0, r.leb(err)
	}
	r.pos += n
	return v, nil
}

// MemOffset reads a memarg offset, which is 64 bits wide for memories using 64-bit addressing.
func (r *ReadPos) MemOffset(is64 bool) (uint64, error) {
	if is64 {
		return r.VarUint64()
	}
	v, err := r.VarUint32()
	return uint64(v), err
}

// Bytes returns the next n bytes. The result aliases the underlying buffer.
func (r *ReadPos) Bytes(n uint32) ([]byte, error) {
	if uint64(n) > uint64(r.Remaining()) {
		return nil, r.eof()
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

func (r *ReadPos) Skip(n uint32) error {
	_, err := r.Bytes(n)
	return err
}

// Sub consumes the next n bytes and returns a cursor bounded to them.
func (r *ReadPos) Sub(n uint32) (*ReadPos, error) {
	base := r.Pos()
	b, err := r.Bytes(n)
	if err != nil {
		return nil, err
	}
	return &ReadPos{buf: b, base: base, trusted: r.trusted}, nil
}
