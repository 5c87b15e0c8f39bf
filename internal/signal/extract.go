package signal

import (
	"encoding/binary"
	"math"
)

// ExtractScalar reads the single-element signal registered under url from buf and
// converts it into T.
//
// Checks run in a fixed order: empty buffer, unknown URL, array signal, bounds, then
// type mapping. When T matches the signal type bit-for-bit the bytes are decoded
// directly; otherwise the native value is converted with Go's numeric conversion rules,
// which wrap signed/unsigned mixes in two's complement. A T narrower than the signal
// type is rejected.
func ExtractScalar[T Number](buf []byte, cat *Catalog, url string) (T, error) {
	var zero T
	d, err := locate(buf, cat, url)
	if err != nil {
		return zero, err
	}
	if d.ArrayLength != 1 {
		return zero, extractErr(ErrArrayMismatch, url, "array length %d, scalar requested", d.ArrayLength)
	}
	if !d.Fits(len(buf)) {
		return zero, extractErr(ErrOutOfBounds, url, "signal ends at %d, buffer holds %d", d.End(), len(buf))
	}
	width, err := SizeOf(d.Type)
	if err != nil {
		return zero, extractErr(ErrTypeUnsupported, url, "%s", d.Type)
	}
	if !d.elementFits(0, width, len(buf)) {
		return zero, extractErr(ErrOutOfBounds, url, "%s at %d exceeds buffer of %d", d.Type, d.Offset, len(buf))
	}
	if !fastPath[T](d.Type, width) && sizes[TypeFor[T]()] < width {
		return zero, extractErr(ErrDestinationTooSmall, url, "%s into %s", d.Type, TypeFor[T]())
	}
	return convert[T](d.Type, buf[d.Offset:d.Offset+width]), nil
}

// ExtractVector reads every element of the signal registered under url.
func ExtractVector[T Number](buf []byte, cat *Catalog, url string) ([]T, error) {
	return ExtractVectorInto[T](nil, buf, cat, url)
}

// ExtractVectorInto is ExtractVector writing into dst's backing array when it is large
// enough. On failure dst is returned untouched.
func ExtractVectorInto[T Number](dst []T, buf []byte, cat *Catalog, url string) ([]T, error) {
	d, err := locate(buf, cat, url)
	if err != nil {
		return dst, err
	}
	if !d.Fits(len(buf)) {
		return dst, extractErr(ErrOutOfBounds, url, "%d elements of %d bytes at %d exceed buffer of %d",
			d.ArrayLength, d.PayloadSize, d.Offset, len(buf))
	}
	width, err := SizeOf(d.Type)
	if err != nil {
		return dst, extractErr(ErrTypeUnsupported, url, "%s", d.Type)
	}
	if d.ArrayLength > 0 && !d.elementFits(d.ArrayLength-1, width, len(buf)) {
		return dst, extractErr(ErrOutOfBounds, url, "last %s element exceeds buffer of %d", d.Type, len(buf))
	}
	same := fastPath[T](d.Type, width)
	if !same && sizes[TypeFor[T]()] < width {
		return dst, extractErr(ErrDestinationTooSmall, url, "%s into %s", d.Type, TypeFor[T]())
	}

	var out []T
	if cap(dst) >= d.ArrayLength {
		out = dst[:d.ArrayLength]
	} else {
		out = make([]T, d.ArrayLength)
	}

	if same && d.PayloadSize == width {
		if _, err := binary.Decode(buf[d.Offset:d.End()], binary.LittleEndian, out); err != nil {
			return dst, extractErr(ErrOutOfBounds, url, "%v", err)
		}
		return out, nil
	}
	for i := range out {
		start := d.Offset + i*d.PayloadSize
		out[i] = convert[T](d.Type, buf[start:start+width])
	}
	return out, nil
}

// ExtractChecked is ExtractScalar that also reports how the conversion is classified.
// Failed reads report Invalid.
func ExtractChecked[T Number](buf []byte, cat *Catalog, url string) (T, Classification, error) {
	v, err := ExtractScalar[T](buf, cat, url)
	if err != nil {
		var zero T
		return zero, Invalid, err
	}
	d, _ := cat.Lookup(url)
	return v, Classify(d.Type, TypeFor[T]()), nil
}

func locate(buf []byte, cat *Catalog, url string) (Descriptor, error) {
	if len(buf) == 0 {
		return Descriptor{}, extractErr(ErrNullBuffer, url, "empty buffer")
	}
	d, ok := cat.Lookup(url)
	if !ok {
		return Descriptor{}, &ExtractError{Kind: ErrUnknownSignal, URL: url}
	}
	return d, nil
}

func fastPath[T Number](t ScalarType, width int) bool {
	return CheckTypeMatch[T](t) && sizes[TypeFor[T]()] == width
}

// native is a decoded element before it is cast to the destination type. Signed
// values are sign-extended into i, unsigned ones zero-extended into u, so casting
// from here matches a direct Go conversion of the element.
type native struct {
	kind byte // 's', 'u' or 'f'
	i    int64
	u    uint64
	f    float64
}

func (n native) nonZero() bool {
	switch n.kind {
	case 's':
		return n.i != 0
	case 'u':
		return n.u != 0
	default:
		return n.f != 0
	}
}

func decode(t ScalarType, b []byte) native {
	le := binary.LittleEndian
	switch t {
	case Bool:
		if b[0] != 0 {
			return native{kind: 'u', u: 1}
		}
		return native{kind: 'u'}
	case Char, UInt8:
		return native{kind: 'u', u: uint64(b[0])}
	case Int8:
		return native{kind: 's', i: int64(int8(b[0]))}
	case UInt16:
		return native{kind: 'u', u: uint64(le.Uint16(b))}
	case Int16:
		return native{kind: 's', i: int64(int16(le.Uint16(b)))}
	case UInt32:
		return native{kind: 'u', u: uint64(le.Uint32(b))}
	case Int32:
		return native{kind: 's', i: int64(int32(le.Uint32(b)))}
	case UInt64:
		return native{kind: 'u', u: le.Uint64(b)}
	case Int64:
		return native{kind: 's', i: int64(le.Uint64(b))}
	case Float:
		return native{kind: 'f', f: float64(math.Float32frombits(le.Uint32(b)))}
	case Double:
		return native{kind: 'f', f: math.Float64frombits(le.Uint64(b))}
	default:
		return native{kind: 'u'}
	}
}

type numeric interface {
	Character | uint8 | int8 | uint16 | int16 | uint32 | int32 | uint64 | int64 | float32 | float64
}

func cast[D numeric](n native) D {
	switch n.kind {
	case 's':
		return D(n.i)
	case 'u':
		return D(n.u)
	default:
		return D(n.f)
	}
}

// convert decodes one little-endian element of type t from b, which holds exactly the
// element's bytes. A bool destination is true for any non-zero value.
func convert[T Number](t ScalarType, b []byte) T {
	n := decode(t, b)
	var out T
	switch p := any(&out).(type) {
	case *bool:
		*p = n.nonZero()
	case *Character:
		*p = cast[Character](n)
	case *uint8:
		*p = cast[uint8](n)
	case *int8:
		*p = cast[int8](n)
	case *uint16:
		*p = cast[uint16](n)
	case *int16:
		*p = cast[int16](n)
	case *uint32:
		*p = cast[uint32](n)
	case *int32:
		*p = cast[int32](n)
	case *uint64:
		*p = cast[uint64](n)
	case *int64:
		*p = cast[int64](n)
	case *float32:
		*p = cast[float32](n)
	case *float64:
		*p = cast[float64](n)
	}
	return out
}
