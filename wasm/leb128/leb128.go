// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package leb128 provides functions for reading and writing integers encoded
// in the Little Endian Base 128 format. Two decoding strategies are provided:
// the Get* functions validate termination and overflow and are used on
// untrusted input, and the Fast* functions skip those checks and are only
// valid on input that has already passed a checked decode.
package leb128

import (
	"errors"
	"io"
)

var (
	// ErrTooLong is returned when an encoding uses more bytes than its width allows.
	ErrTooLong = errors.New("integer representation too long")
	// ErrTooLarge is returned when the unused bits of the final byte are not a zero or sign extension.
	ErrTooLarge = errors.New("integer too large")
)

func maxBytes(bits uint) int {
	return int((bits + 6) / 7)
}

func getUnsigned(buf []byte, bits uint) (uint64, int, error) {
	var result uint64
	var shift uint
	last := maxBytes(bits) - 1
	for i := 0; ; i++ {
		if i >= len(buf) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		b := buf[i]
		if i == last {
			if b&0x80 != 0 {
				return 0, 0, ErrTooLong
			}
			if b>>(bits-shift) != 0 {
				return 0, 0, ErrTooLarge
			}
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, i + 1, nil
		}
		shift += 7
	}
}

func getSigned(buf []byte, bits uint) (int64, int, error) {
	var result int64
	var shift uint
	last := maxBytes(bits) - 1
	for i := 0; ; i++ {
		if i >= len(buf) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		b := buf[i]
		if i == last {
			if b&0x80 != 0 {
				return 0, 0, ErrTooLong
			}
			remaining := bits - shift
			mask := byte(0x7f) >> (remaining - 1) << (remaining - 1)
			if ext := b & mask; ext != 0 && ext != mask {
				return 0, 0, ErrTooLarge
			}
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, i + 1, nil
		}
	}
}

// GetVarUint32 decodes an unsigned 32-bit integer from the front of buf. It returns the value and the number of
// bytes consumed.
func GetVarUint32(buf []byte) (uint32, int, error) {
	v, n, err := getUnsigned(buf, 32)
	return uint32(v), n, err
}

// GetVarUint64 decodes an unsigned 64-bit integer from the front of buf.
func GetVarUint64(buf []byte) (uint64, int, error) {
	return getUnsigned(buf, 64)
}

// GetVarint32 decodes a signed 32-bit integer from the front of buf.
func GetVarint32(buf []byte) (int32, int, error) {
	v, n, err := getSigned(buf, 32)
	return int32(v), n, err
}

// GetVarint33 decodes a signed 33-bit integer, the encoding used for block types.
func GetVarint33(buf []byte) (int64, int, error) {
	return getSigned(buf, 33)
}

// GetVarint64 decodes a signed 64-bit integer from the front of buf.
func GetVarint64(buf []byte) (int64, int, error) {
	return getSigned(buf, 64)
}
