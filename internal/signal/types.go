// Package signal holds the type catalog, signal descriptors, the URL catalog and the
// bounds-checked binary extractor used to read typed values out of raw topic blobs.
package signal

import (
	"fmt"
)

// ScalarType enumerates the element types a signal can carry. Struct marks composite
// nodes and is never read directly.
type ScalarType uint8

const (
	Bool ScalarType = iota
	Char
	UInt8
	Int8
	UInt16
	Int16
	UInt32
	Int32
	UInt64
	Int64
	Float
	Double
	Struct
)

const numTypes = int(Struct) + 1

// Classification describes what happens to a value converted from one scalar type into
// another.
type Classification uint8

const (
	Fit Classification = iota
	WidenedNoLoss
	ChangedWithDataLoss
	NarrowedPossibleLoss
	Overflow
	Invalid
)

func (c Classification) String() string {
	switch c {
	case Fit:
		return "fit"
	case WidenedNoLoss:
		return "widened_no_loss"
	case ChangedWithDataLoss:
		return "changed_with_data_loss"
	case NarrowedPossibleLoss:
		return "narrowed_possible_loss"
	case Overflow:
		return "overflow"
	default:
		return "invalid"
	}
}

// conversionMatrix is indexed [to][from]. The off-diagonal Fit entries and the
// non-Fit Int64 diagonal are recorded behavior, kept as is.
var conversionMatrix = [numTypes][numTypes]Classification{
	Bool:   {Fit, ChangedWithDataLoss, ChangedWithDataLoss, ChangedWithDataLoss, ChangedWithDataLoss, ChangedWithDataLoss, ChangedWithDataLoss, ChangedWithDataLoss, ChangedWithDataLoss, ChangedWithDataLoss, ChangedWithDataLoss, ChangedWithDataLoss, Invalid},
	Char:   {WidenedNoLoss, Fit, Fit, NarrowedPossibleLoss, Overflow, Overflow, Overflow, Overflow, Overflow, Overflow, Overflow, Overflow, Invalid},
	UInt8:  {WidenedNoLoss, Fit, Fit, NarrowedPossibleLoss, Overflow, Overflow, Overflow, Overflow, Overflow, Overflow, Overflow, Overflow, Invalid},
	Int8:   {WidenedNoLoss, ChangedWithDataLoss, ChangedWithDataLoss, Fit, Overflow, Overflow, Overflow, Overflow, Overflow, Overflow, Overflow, Overflow, Invalid},
	UInt16: {WidenedNoLoss, Fit, Fit, Overflow, Fit, NarrowedPossibleLoss, Overflow, Overflow, Overflow, Overflow, Overflow, Overflow, Invalid},
	Int16:  {WidenedNoLoss, WidenedNoLoss, WidenedNoLoss, Fit, ChangedWithDataLoss, Fit, Overflow, Overflow, Overflow, Overflow, Overflow, Overflow, Invalid},
	UInt32: {WidenedNoLoss, Fit, Fit, NarrowedPossibleLoss, Fit, NarrowedPossibleLoss, Fit, NarrowedPossibleLoss, Overflow, Overflow, ChangedWithDataLoss, Overflow, Invalid},
	Int32:  {WidenedNoLoss, Fit, Fit, Fit, Fit, Fit, Overflow, Fit, Overflow, Overflow, Overflow, Overflow, Invalid},
	UInt64: {WidenedNoLoss, WidenedNoLoss, WidenedNoLoss, NarrowedPossibleLoss, WidenedNoLoss, NarrowedPossibleLoss, WidenedNoLoss, NarrowedPossibleLoss, Fit, NarrowedPossibleLoss, ChangedWithDataLoss, ChangedWithDataLoss, Invalid},
	Int64:  {WidenedNoLoss, WidenedNoLoss, WidenedNoLoss, WidenedNoLoss, WidenedNoLoss, WidenedNoLoss, WidenedNoLoss, WidenedNoLoss, ChangedWithDataLoss, ChangedWithDataLoss, ChangedWithDataLoss, ChangedWithDataLoss, Invalid},
	Float:  {WidenedNoLoss, WidenedNoLoss, WidenedNoLoss, WidenedNoLoss, WidenedNoLoss, WidenedNoLoss, ChangedWithDataLoss, WidenedNoLoss, Overflow, Overflow, Fit, Overflow, Invalid},
	Double: {WidenedNoLoss, WidenedNoLoss, WidenedNoLoss, WidenedNoLoss, WidenedNoLoss, WidenedNoLoss, WidenedNoLoss, WidenedNoLoss, ChangedWithDataLoss, WidenedNoLoss, WidenedNoLoss, Fit, Invalid},
	Struct: {Invalid, Invalid, Invalid, Invalid, Invalid, Invalid, Invalid, Invalid, Invalid, Invalid, Invalid, Invalid, Fit},
}

// Classify reports how a value of type from behaves when read as type to.
func Classify(from, to ScalarType) Classification {
	if int(from) >= numTypes || int(to) >= numTypes {
		return Invalid
	}
	return conversionMatrix[to][from]
}

var sizes = [numTypes]int{
	Bool:   1,
	Char:   1,
	UInt8:  1,
	Int8:   1,
	UInt16: 2,
	Int16:  2,
	UInt32: 4,
	Int32:  4,
	UInt64: 8,
	Int64:  8,
	Float:  4,
	Double: 8,
}

// SizeOf returns the byte width of one element of t.
func SizeOf(t ScalarType) (int, error) {
	if t >= Struct {
		return 0, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
	return sizes[t], nil
}

var names = [numTypes]string{
	Bool:   "bool",
	Char:   "char",
	UInt8:  "uint8_t",
	Int8:   "int8_t",
	UInt16: "uint16_t",
	Int16:  "int16_t",
	UInt32: "uint32_t",
	Int32:  "int32_t",
	UInt64: "uint64_t",
	Int64:  "int64_t",
	Float:  "float",
	Double: "double",
	Struct: "struct",
}

var byName = func() map[string]ScalarType {
	m := make(map[string]ScalarType, numTypes)
	for i, n := range names {
		m[n] = ScalarType(i)
	}
	return m
}()

// NameOf returns the native C type name recorded schemas use for t.
func NameOf(t ScalarType) string {
	if int(t) >= numTypes {
		return ""
	}
	return names[t]
}

// TypeOf is the inverse of NameOf. Matching is exact and case-sensitive.
func TypeOf(name string) (ScalarType, bool) {
	t, ok := byName[name]
	return t, ok
}

func (t ScalarType) String() string {
	if n := NameOf(t); n != "" {
		return n
	}
	return fmt.Sprintf("ScalarType(%d)", uint8(t))
}

// Character is the Go stand-in for a C char so it can be told apart from uint8 at
// the type level.
type Character byte

// Number is the set of Go types a signal can be extracted into.
type Number interface {
	bool | Character | uint8 | int8 | uint16 | int16 | uint32 | int32 | uint64 | int64 | float32 | float64
}

// TypeFor maps a Go destination type to its ScalarType.
func TypeFor[T Number]() ScalarType {
	var zero T
	switch any(zero).(type) {
	case bool:
		return Bool
	case Character:
		return Char
	case uint8:
		return UInt8
	case int8:
		return Int8
	case uint16:
		return UInt16
	case int16:
		return Int16
	case uint32:
		return UInt32
	case int32:
		return Int32
	case uint64:
		return UInt64
	case int64:
		return Int64
	case float32:
		return Float
	default:
		return Double
	}
}

// CheckTypeMatch reports whether a signal of type t can be read into T without any
// conversion.
func CheckTypeMatch[T Number](t ScalarType) bool {
	return Classify(t, TypeFor[T]()) == Fit
}
