// Package decoder implements the recursive, self-describing value
// decoder for the MMDB data and metadata sections: control-byte parsing,
// pointer resolution against a caller-supplied base address, and
// decoding of all eleven value kinds.
package decoder

import (
	"math"

	"github.com/haldane-io/mmdb/internal/bigint"
	"github.com/haldane-io/mmdb/internal/mmdberrors"
	"github.com/haldane-io/mmdb/internal/stream"
)

// maximumDepth defends against pathological or adversarial pointer
// chains; the format itself guarantees acyclic, front-to-back-only
// pointers in a well-formed file. This is the value libmaxminddb uses.
const maximumDepth = 512

// Decoder decodes values from a single section of an MMDB file (either
// the data section or the metadata section). base is added to every
// pointer's payload to get an absolute stream offset, per the format's
// per-section pointer bases.
type Decoder struct {
	src  stream.Source
	base uint
}

// New returns a Decoder for the section beginning at base.
func New(src stream.Source, base uint) Decoder {
	return Decoder{src: src, base: base}
}

// Decode reads the value at offset and returns it along with the stream
// offset immediately following the value's own encoding. For a pointer,
// that is the offset just past the pointer's payload bytes, not past
// whatever the pointer's target occupies — the pointer's target may live
// anywhere else in the section, including earlier in the stream.
func (d Decoder) Decode(offset uint) (any, uint, error) {
	value, next, err := d.decode(offset, 0)
	if err != nil {
		return nil, 0, mmdberrors.WrapWithContext(err, offset)
	}
	return value, next, nil
}

func (d Decoder) decode(offset uint, depth int) (any, uint, error) {
	if depth > maximumDepth {
		return nil, 0, mmdberrors.NewInvalidDatabaseError(
			"exceeded maximum data structure depth; database is likely corrupt")
	}

	kind, size, next, err := ParseControl(d.src, offset)
	if err != nil {
		return nil, 0, err
	}

	switch kind {
	case KindPointer:
		target, afterPointer, err := d.decodePointerTarget(size, next)
		if err != nil {
			return nil, 0, err
		}
		value, _, err := d.decode(target, depth+1)
		if err != nil {
			return nil, 0, err
		}
		return value, afterPointer, nil

	case KindMap:
		return d.decodeMap(size, next, depth)

	case KindArray:
		return d.decodeArray(size, next, depth)

	case KindString:
		buf, n, err := d.readBytes(size, next)
		if err != nil {
			return nil, 0, err
		}
		return string(buf), n, nil

	case KindBytes:
		buf, n, err := d.readBytes(size, next)
		if err != nil {
			return nil, 0, err
		}
		out := make([]byte, len(buf))
		copy(out, buf)
		return out, n, nil

	case KindFloat64:
		if size != 8 {
			return nil, 0, mmdberrors.NewInvalidDatabaseError(
				"the MMDB data section contains bad data (float64 size of %d)", size)
		}
		buf, n, err := d.readBytes(size, next)
		if err != nil {
			return nil, 0, err
		}
		bits := beUint64(buf)
		return math.Float64frombits(bits), n, nil

	case KindFloat32:
		if size != 4 {
			return nil, 0, mmdberrors.NewInvalidDatabaseError(
				"the MMDB data section contains bad data (float32 size of %d)", size)
		}
		buf, n, err := d.readBytes(size, next)
		if err != nil {
			return nil, 0, err
		}
		bits := uint32(beUint(buf))
		return math.Float32frombits(bits), n, nil

	case KindBool:
		if size > 1 {
			return nil, 0, mmdberrors.NewInvalidDatabaseError(
				"the MMDB data section contains bad data (bool size of %d)", size)
		}
		return size != 0, next, nil

	case KindInt32:
		if size > 4 {
			return nil, 0, mmdberrors.NewInvalidDatabaseError(
				"the MMDB data section contains bad data (int32 size of %d)", size)
		}
		if size == 0 {
			return int32(0), next, nil
		}
		buf, n, err := d.readBytes(size, next)
		if err != nil {
			return nil, 0, err
		}
		// The format guarantees a nonnegative value whenever size < 4,
		// so zero-extension via left-padding is safe.
		var padded [4]byte
		copy(padded[4-len(buf):], buf)
		v := int32(beUint32(padded[:]))
		return v, n, nil

	case KindUint16:
		v, n, err := d.decodeUnsigned(size, next, 2)
		if err != nil {
			return nil, 0, err
		}
		u, _ := v.Uint64()
		return uint16(u), n, nil

	case KindUint32:
		v, n, err := d.decodeUnsigned(size, next, 4)
		if err != nil {
			return nil, 0, err
		}
		u, _ := v.Uint64()
		return uint32(u), n, nil

	case KindUint64:
		v, n, err := d.decodeUnsigned(size, next, 8)
		if err != nil {
			return nil, 0, err
		}
		u, _ := v.Uint64()
		return u, n, nil

	case KindUint128:
		v, n, err := d.decodeUnsigned(size, next, 16)
		if err != nil {
			return nil, 0, err
		}
		return v, n, nil

	default:
		return nil, 0, mmdberrors.NewInvalidDatabaseError("unknown control byte type: %d", kind)
	}
}

// PeekKind reports the value kind at offset without decoding the value,
// resolving through any leading pointer so callers see the kind of the
// eventual value rather than KindPointer itself.
func (d Decoder) PeekKind(offset uint) (Kind, error) {
	kind, size, next, err := ParseControl(d.src, offset)
	if err != nil {
		return 0, err
	}
	if kind != KindPointer {
		return kind, nil
	}
	target, _, err := d.decodePointerTarget(size, next)
	if err != nil {
		return 0, err
	}
	return d.PeekKind(target)
}

// Skip advances past the value at offset without materializing it,
// returning the offset immediately following its encoding. It follows
// the same control-byte and length rules as decode, but never
// recurses into a pointer's target since skipping a pointer only
// requires knowing the width of the pointer payload itself.
func (d Decoder) Skip(offset uint) (uint, error) {
	kind, size, next, err := ParseControl(d.src, offset)
	if err != nil {
		return 0, err
	}

	switch kind {
	case KindPointer:
		ss := (size >> 3) & 0x3
		return next + ss + 1, nil
	case KindMap:
		end := next
		for i := uint(0); i < size; i++ {
			end, err = d.Skip(end)
			if err != nil {
				return 0, err
			}
			end, err = d.Skip(end)
			if err != nil {
				return 0, err
			}
		}
		return end, nil
	case KindArray:
		end := next
		for i := uint(0); i < size; i++ {
			end, err = d.Skip(end)
			if err != nil {
				return 0, err
			}
		}
		return end, nil
	case KindBool:
		return next, nil
	default:
		return next + size, nil
	}
}

// decodePointerTarget resolves a pointer's payload into an absolute
// offset in this decoder's section, per the pointer bias table.
func (d Decoder) decodePointerTarget(size, offset uint) (target, afterPointer uint, err error) {
	ss := (size >> 3) & 0x3
	low := size & 0x7
	extra := ss + 1

	buf, err := d.src.ReadAt(offset, extra, true)
	if err != nil {
		return 0, 0, err
	}
	afterPointer = offset + extra

	if ss == 3 {
		composed := uint(beUint32(buf))
		target = d.base + composed
		if target < d.base {
			return 0, 0, mmdberrors.NewInvalidDatabaseError("pointer overflow")
		}
		return target, afterPointer, nil
	}

	bias := [3]uint{0, 2048, 526336}[ss]
	composed := (low << (8 * extra)) | beUint(buf)
	target = d.base + bias + composed
	if target < d.base {
		return 0, 0, mmdberrors.NewInvalidDatabaseError("pointer overflow")
	}
	return target, afterPointer, nil
}

func (d Decoder) readBytes(size, offset uint) ([]byte, uint, error) {
	buf, err := d.src.ReadAt(offset, size, true)
	if err != nil {
		return nil, 0, err
	}
	return buf, offset + size, nil
}

// decodeUnsigned reads size bytes (size must not exceed maxSize) and
// accumulates them using the arithmetic capability trait in package
// bigint: native uint64 while the value demonstrably fits, promoting to
// arbitrary precision otherwise.
func (d Decoder) decodeUnsigned(size, offset, maxSize uint) (bigint.Number, uint, error) {
	if size > maxSize {
		return bigint.Number{}, 0, mmdberrors.NewInvalidDatabaseError(
			"the MMDB data section contains bad data (integer size of %d exceeds %d)", size, maxSize)
	}
	if size == 0 {
		return bigint.FromUint64(0), offset, nil
	}
	buf, n, err := d.readBytes(size, offset)
	if err != nil {
		return bigint.Number{}, 0, err
	}
	return bigint.DecodeUnsigned(buf), n, nil
}

func (d Decoder) decodeMap(size, offset uint, depth int) (*OrderedMap, uint, error) {
	m := newOrderedMap(size)
	for i := uint(0); i < size; i++ {
		keyVal, keyEnd, err := d.decode(offset, depth+1)
		if err != nil {
			return nil, 0, err
		}
		key, ok := keyVal.(string)
		if !ok {
			return nil, 0, mmdberrors.NewInvalidDatabaseError(
				"map key at offset %d is not a string", offset)
		}
		value, valEnd, err := d.decode(keyEnd, depth+1)
		if err != nil {
			return nil, 0, err
		}
		m.append(key, value)
		offset = valEnd
	}
	return m, offset, nil
}

func (d Decoder) decodeArray(size, offset uint, depth int) ([]any, uint, error) {
	out := make([]any, 0, size)
	for i := uint(0); i < size; i++ {
		value, next, err := d.decode(offset, depth+1)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, value)
		offset = next
	}
	return out, offset, nil
}

func beUint32(buf []byte) uint32 {
	var v uint32
	for _, b := range buf {
		v = (v << 8) | uint32(b)
	}
	return v
}

func beUint64(buf []byte) uint64 {
	var v uint64
	for _, b := range buf {
		v = (v << 8) | uint64(b)
	}
	return v
}
