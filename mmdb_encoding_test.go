package mmdb

// Minimal test-only encoders for building synthetic MMDB byte buffers.
// These mirror the control-byte and record-packing rules the decoder
// and search-tree walker implement, letting the end-to-end tests
// describe fixtures in terms of values rather than hand-counted byte
// offsets.

// encCtrl builds the one-to-four-byte control-byte prefix for a value
// of the given kind and size. Kinds above 7 don't fit the control
// byte's 3-bit direct type field, so they're encoded via the extended
// form: a zero type field followed by a (kind-7) byte immediately
// after the first byte, with any size-extension bytes coming last,
// matching the order the decoder reads them in.
func encCtrl(kind int, size uint) []byte {
	var lowBits byte
	var extraSize []byte
	switch {
	case size <= 28:
		lowBits = byte(size)
	case size < 285:
		lowBits = 29
		extraSize = []byte{byte(size - 29)}
	case size < 65821:
		lowBits = 30
		v := size - 285
		extraSize = []byte{byte(v >> 8), byte(v)}
	default:
		lowBits = 31
		v := size - 65821
		extraSize = []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	}

	typeField := kind
	if kind > 7 {
		typeField = 0
	}
	out := []byte{byte(typeField<<5) | lowBits}
	if kind > 7 {
		out = append(out, byte(kind-7))
	}
	return append(out, extraSize...)
}

func encString(s string) []byte {
	return append(encCtrl(2, uint(len(s))), []byte(s)...)
}

func encBytes(b []byte) []byte {
	return append(encCtrl(4, uint(len(b))), b...)
}

func encUint16(v uint16) []byte {
	return append(encCtrl(5, 2), byte(v>>8), byte(v))
}

func encUint32(v uint32) []byte {
	return append(encCtrl(6, 4), byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func encUint64(v uint64) []byte {
	buf := encCtrl(9, 8)
	for i := 7; i >= 0; i-- {
		buf = append(buf, byte(v>>(8*uint(i))))
	}
	return buf
}

func encBool(v bool) []byte {
	if v {
		return encCtrl(14, 1)
	}
	return encCtrl(14, 0)
}

// encMap takes key/value pairs as already-encoded byte slices in the
// order [key1, val1, key2, val2, ...].
func encMap(kv ...[]byte) []byte {
	pairs := uint(len(kv) / 2)
	out := encCtrl(7, pairs)
	for _, b := range kv {
		out = append(out, b...)
	}
	return out
}

func encArray(elems ...[]byte) []byte {
	out := encCtrl(11, uint(len(elems)))
	for _, e := range elems {
		out = append(out, e...)
	}
	return out
}

// encNode24 packs one 24-bit-record tree node (left, right) into 6
// bytes.
func encNode24(left, right uint32) []byte {
	return []byte{
		byte(left >> 16), byte(left >> 8), byte(left),
		byte(right >> 16), byte(right >> 8), byte(right),
	}
}
