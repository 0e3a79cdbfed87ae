package decoder

import (
	"github.com/haldane-io/mmdb/internal/mmdberrors"
	"github.com/haldane-io/mmdb/internal/stream"
)

// Kind is the type tag carried by an encoded value's control byte.
type Kind int

// Value kinds, numbered per the MMDB control-byte type field. Kind 0
// (Extended) never appears on a decoded Value; it only ever selects one
// of the kinds 7 and above during control-byte parsing.
const (
	KindExtended Kind = iota
	KindPointer
	KindString
	KindFloat64
	KindBytes
	KindUint16
	KindUint32
	KindMap
	KindInt32
	KindUint64
	KindUint128
	KindArray
	_ // 12: reserved (Container in some implementations, unused here)
	_ // 13: reserved (end-of-data marker in some implementations, unused here)
	KindBool
	KindFloat32
)

func (k Kind) valid() bool {
	switch k {
	case KindPointer, KindString, KindFloat64, KindBytes, KindUint16, KindUint32,
		KindMap, KindInt32, KindUint64, KindUint128, KindArray, KindBool, KindFloat32:
		return true
	default:
		return false
	}
}

// ParseControl decodes the (kind, size) pair from the one-to-four-byte
// control-byte prefix at offset, per the format's control-byte and
// extended-size encodings. It returns the offset immediately following
// every byte it consumed, so the caller can continue reading the value's
// payload from there.
func ParseControl(src stream.Source, offset uint) (kind Kind, size uint, next uint, err error) {
	b, err := readByte(src, offset)
	if err != nil {
		return 0, 0, 0, err
	}
	next = offset + 1

	kind = Kind(b >> 5)
	if kind == KindExtended {
		e, err := readByte(src, next)
		if err != nil {
			return 0, 0, 0, err
		}
		kind = Kind(e) + 7
		next++
	}
	if !kind.valid() {
		return 0, 0, 0, mmdberrors.NewInvalidDatabaseError("unknown control byte type: %d", kind)
	}

	s := uint(b & 0x1f)
	if kind == KindPointer {
		// The pointer type packs (ss, low) into these 5 bits directly;
		// they are never subject to the extended-size scheme below.
		return kind, s, next, nil
	}
	switch {
	case s <= 28:
		size = s
	case s == 29:
		x, err := readByte(src, next)
		if err != nil {
			return 0, 0, 0, err
		}
		size = 29 + uint(x)
		next++
	case s == 30:
		buf, err := src.ReadAt(next, 2, true)
		if err != nil {
			return 0, 0, 0, err
		}
		size = 285 + beUint(buf)
		next += 2
	default: // s == 31
		buf, err := src.ReadAt(next, 3, true)
		if err != nil {
			return 0, 0, 0, err
		}
		size = 65821 + beUint(buf)
		next += 3
	}

	return kind, size, next, nil
}

func readByte(src stream.Source, offset uint) (byte, error) {
	buf, err := src.ReadAt(offset, 1, true)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

func beUint(buf []byte) uint {
	var v uint
	for _, b := range buf {
		v = (v << 8) | uint(b)
	}
	return v
}
