package mmdb

import (
	"reflect"

	"github.com/haldane-io/mmdb/internal/bigint"
	"github.com/haldane-io/mmdb/internal/decoder"
	"github.com/haldane-io/mmdb/internal/mmdberrors"
	"github.com/mitchellh/mapstructure"
)

// Map is an ordered key/value view of a decoded MMDB map value. Unlike
// a plain Go map, it preserves the on-disk insertion order of its
// keys, which some database producers rely on (e.g. presenting
// "en" before other locales in a description map).
type Map = decoder.OrderedMap

// Kind identifies the on-disk type of a decoded value.
type Kind = decoder.Kind

// Value kind constants, re-exported for callers of Result.PeekType.
const (
	KindPointer = decoder.KindPointer
	KindString  = decoder.KindString
	KindFloat64 = decoder.KindFloat64
	KindBytes   = decoder.KindBytes
	KindUint16  = decoder.KindUint16
	KindUint32  = decoder.KindUint32
	KindMap     = decoder.KindMap
	KindInt32   = decoder.KindInt32
	KindUint64  = decoder.KindUint64
	KindUint128 = decoder.KindUint128
	KindArray   = decoder.KindArray
	KindBool    = decoder.KindBool
	KindFloat32 = decoder.KindFloat32
)

// Number is a decoded 128-bit unsigned integer. Values that fit a
// native word are still routed through the same type as a matter of
// consistency for the uint128 kind specifically; every other integer
// kind decodes straight to its native Go type.
type Number = bigint.Number

// Uint64 returns n's value as a uint64, or a PlatformLimitError if n
// exceeds the range of a 64-bit unsigned integer. Only a uint128 value
// can trigger this; every other integer kind is decoded straight to a
// native Go type that is always wide enough.
func Uint64(n Number) (uint64, error) {
	return bigint.RequireUint64(n)
}

// decodeInto converts a raw decoded value (nested *Map/[]any/scalars)
// into v using mapstructure, so callers can Unmarshal a record into
// their own struct type the same way Metadata is decoded. A decoded map
// landing on a non-map struct field is the one shape mismatch worth
// naming for the caller, so it is reported as an
// mmdberrors.UnmarshalTypeError rather than mapstructure's own untyped
// error string; decodeInto notices it via a decode hook and returns it
// directly, since mapstructure aggregates per-field errors into plain
// strings and would otherwise discard the type information.
func decodeInto(raw any, v any) error {
	var typeErr *mmdberrors.UnmarshalTypeError
	cfg := &mapstructure.DecoderConfig{
		TagName: "mmdb",
		Result:  v,
		DecodeHook: func(from, to reflect.Type, data any) (any, error) {
			if typeErr == nil {
				if e, ok := unmarshalTypeMismatch(from, to, data); ok {
					typeErr = &e
				}
			}
			return data, nil
		},
	}
	dec, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return err
	}
	if err := dec.Decode(toPlain(raw)); err != nil && typeErr == nil {
		return err
	}
	if typeErr != nil {
		return *typeErr
	}
	return nil
}

// unmarshalTypeMismatch reports whether a decoded map is about to be
// forced onto a struct field that isn't itself a map, interface,
// pointer, or struct — the case mapstructure cannot resolve on its own.
func unmarshalTypeMismatch(from, to reflect.Type, data any) (mmdberrors.UnmarshalTypeError, bool) {
	if from.Kind() != reflect.Map {
		return mmdberrors.UnmarshalTypeError{}, false
	}
	switch to.Kind() {
	case reflect.Map, reflect.Interface, reflect.Ptr, reflect.Struct:
		return mmdberrors.UnmarshalTypeError{}, false
	default:
		return mmdberrors.NewUnmarshalTypeError(data, to), true
	}
}

// toPlain recursively converts *decoder.OrderedMap nodes into plain
// map[string]any so mapstructure, which does not know about OrderedMap,
// can walk the structure normally. Key order is only meaningful when a
// caller asks for it directly via Result.Decode; a struct target has no
// use for it.
func toPlain(v any) any {
	switch t := v.(type) {
	case *decoder.OrderedMap:
		out := make(map[string]any, t.Len())
		for i, k := range t.Keys {
			out[k] = toPlain(t.Values[i])
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = toPlain(e)
		}
		return out
	default:
		return v
	}
}
