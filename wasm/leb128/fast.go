package leb128

// FastUint32 decodes an unsigned integer without bounds or overflow checks.
// The input must have been accepted by GetVarUint32.
func FastUint32(buf []byte) (uint32, int) {
	var result uint32
	var shift uint
	i := 0
	for {
		b := buf[i]
		i++
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, i
		}
		shift += 7
	}
}

// FastUint64 is the unchecked counterpart of GetVarUint64.
func FastUint64(buf []byte) (uint64, int) {
	var result uint64
	var shift uint
	i := 0
	for {
		b := buf[i]
		i++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, i
		}
		shift += 7
	}
}

// FastInt64 is the unchecked counterpart of GetVarint64. It also decodes
// 32- and 33-bit signed values, which callers truncate.
func FastInt64(buf []byte) (int64, int) {
	var result int64
	var shift uint
	i := 0
	for {
		b := buf[i]
		i++
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, i
		}
	}
}

// FastInt32 is the unchecked counterpart of GetVarint32.
func FastInt32(buf []byte) (int32, int) {
	v, n := FastInt64(buf)
	return int32(v), n
}
