// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package leb128

import "io"

// AppendVarUint64 appends the unsigned LEB128 encoding of v to b.
func AppendVarUint64(b []byte, v uint64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if c&0x80 == 0 {
			return b
		}
	}
}

// AppendVarUint32 appends the unsigned LEB128 encoding of v to b.
func AppendVarUint32(b []byte, v uint32) []byte {
	return AppendVarUint64(b, uint64(v))
}

// AppendVarint64 appends the signed LEB128 encoding of v to b.
func AppendVarint64(b []byte, v int64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

// AppendVarint32 appends the signed LEB128 encoding of v to b.
func AppendVarint32(b []byte, v int32) []byte {
	return AppendVarint64(b, int64(v))
}

// WriteVarUint32 writes a LEB128 encoded unsigned 32-bit integer to w.
// It returns the integer of bytes written to w, and an error, if any.
func WriteVarUint32(w io.Writer, v uint32) (int, error) {
	var buf [5]byte
	return w.Write(AppendVarUint32(buf[:0], v))
}

// WriteVarUint64 writes a LEB128 encoded unsigned 64-bit integer to w.
func WriteVarUint64(w io.Writer, v uint64) (int, error) {
	var buf [10]byte
	return w.Write(AppendVarUint64(buf[:0], v))
}

// WriteVarint32 writes a LEB128 encoded signed 32-bit integer to w.
func WriteVarint32(w io.Writer, v int32) (int, error) {
	var buf [5]byte
	return w.Write(AppendVarint32(buf[:0], v))
}

// WriteVarint64 writes a LEB128 encoded signed 64-bit integer to w, and
// returns the integer of bytes written to w, and an error value, if any.
func WriteVarint64(w io.Writer, v int64) (int, error) {
	var buf [10]byte
	return w.Write(AppendVarint64(buf[:0], v))
}
