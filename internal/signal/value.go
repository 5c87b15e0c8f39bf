package signal

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
)

// Scalar is a dynamically typed element read from a blob: the signal type plus the
// element's raw little-endian bits, zero-extended to 64 bits.
type Scalar struct {
	Type ScalarType
	bits uint64
}

// ScalarOf builds a Scalar of type t holding v converted with Go's conversion rules.
func ScalarOf(t ScalarType, v float64) Scalar {
	s := Scalar{Type: t}
	switch t {
	case Bool:
		if v != 0 {
			s.bits = 1
		}
	case Char, UInt8:
		s.bits = uint64(uint8(v))
	case Int8:
		s.bits = uint64(uint8(int8(v)))
	case UInt16:
		s.bits = uint64(uint16(v))
	case Int16:
		s.bits = uint64(uint16(int16(v)))
	case UInt32:
		s.bits = uint64(uint32(v))
	case Int32:
		s.bits = uint64(uint32(int32(v)))
	case UInt64:
		s.bits = uint64(v)
	case Int64:
		s.bits = uint64(int64(v))
	case Float:
		s.bits = uint64(math.Float32bits(float32(v)))
	case Double:
		s.bits = math.Float64bits(v)
	}
	return s
}

// Read returns element index of the signal described by d.
func Read(buf []byte, d Descriptor, index int) (Scalar, error) {
	if len(buf) == 0 {
		return Scalar{}, ErrNullBuffer
	}
	width, err := SizeOf(d.Type)
	if err != nil {
		return Scalar{}, fmt.Errorf("%w: %s", ErrTypeUnsupported, d.Type)
	}
	if !d.elementFits(index, width, len(buf)) {
		return Scalar{}, fmt.Errorf("%w: element %d of %d at offset %d, buffer holds %d",
			ErrOutOfBounds, index, d.ArrayLength, d.Offset, len(buf))
	}
	start := d.Offset + index*d.PayloadSize
	b := buf[start : start+width]

	var bits uint64
	switch width {
	case 1:
		bits = uint64(b[0])
	case 2:
		bits = uint64(binary.LittleEndian.Uint16(b))
	case 4:
		bits = uint64(binary.LittleEndian.Uint32(b))
	case 8:
		bits = binary.LittleEndian.Uint64(b)
	}
	return Scalar{Type: d.Type, bits: bits}, nil
}

// Write stores v as element index of the signal described by d, converting it to the
// descriptor type first when the types differ.
func Write(buf []byte, d Descriptor, index int, v Scalar) error {
	width, err := SizeOf(d.Type)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrTypeUnsupported, d.Type)
	}
	if !d.elementFits(index, width, len(buf)) {
		return fmt.Errorf("%w: element %d of %d at offset %d, buffer holds %d",
			ErrOutOfBounds, index, d.ArrayLength, d.Offset, len(buf))
	}
	if v.Type != d.Type {
		v = ScalarOf(d.Type, v.Float64())
	}
	start := d.Offset + index*d.PayloadSize
	b := buf[start : start+width]
	switch width {
	case 1:
		b[0] = byte(v.bits)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v.bits))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v.bits))
	case 8:
		binary.LittleEndian.PutUint64(b, v.bits)
	}
	return nil
}

func (s Scalar) Float64() float64 {
	switch s.Type {
	case Int8:
		return float64(int8(s.bits))
	case Int16:
		return float64(int16(s.bits))
	case Int32:
		return float64(int32(s.bits))
	case Int64:
		return float64(int64(s.bits))
	case Float:
		return float64(math.Float32frombits(uint32(s.bits)))
	case Double:
		return math.Float64frombits(s.bits)
	case Bool:
		if s.bits != 0 {
			return 1
		}
		return 0
	default:
		return float64(s.bits)
	}
}

func (s Scalar) Int64() int64 {
	switch s.Type {
	case Int8:
		return int64(int8(s.bits))
	case Int16:
		return int64(int16(s.bits))
	case Int32:
		return int64(int32(s.bits))
	case Float, Double:
		return int64(s.Float64())
	case Bool:
		if s.bits != 0 {
			return 1
		}
		return 0
	default:
		return int64(s.bits)
	}
}

func (s Scalar) Uint64() uint64 {
	switch s.Type {
	case Int8, Int16, Int32, Int64:
		return uint64(s.Int64())
	case Float, Double, Bool:
		return uint64(s.Float64())
	default:
		return s.bits
	}
}

// Bool reports whether the value is non-zero. Float -0.0 is false.
func (s Scalar) Bool() bool {
	if s.Type == Float || s.Type == Double {
		return s.Float64() != 0
	}
	return s.bits != 0
}

func (s Scalar) String() string {
	switch s.Type {
	case Bool:
		return strconv.FormatBool(s.Bool())
	case Char:
		return strconv.QuoteRune(rune(byte(s.bits)))
	case Float:
		return strconv.FormatFloat(s.Float64(), 'g', -1, 32)
	case Double:
		return strconv.FormatFloat(s.Float64(), 'g', -1, 64)
	case Int8, Int16, Int32, Int64:
		return strconv.FormatInt(s.Int64(), 10)
	default:
		return strconv.FormatUint(s.bits, 10)
	}
}
