package signalbridge

import (
	"github.com/ghalamif/SignalBridge/internal/ports"
	"github.com/ghalamif/SignalBridge/internal/schema"
	"github.com/ghalamif/SignalBridge/internal/signal"
	"github.com/ghalamif/SignalBridge/internal/structtree"
)

type (
	// ScalarType enumerates the element types a signal can carry.
	ScalarType = signal.ScalarType
	// Descriptor locates one signal inside a topic blob.
	Descriptor = signal.Descriptor
	// Catalog maps signal URLs to descriptors.
	Catalog = signal.Catalog
	// Scalar is one value read from a blob.
	Scalar = signal.Scalar
	// Classification describes the effect of a type conversion.
	Classification = signal.Classification
	// Number is the set of Go types a signal can be extracted into.
	Number = signal.Number
	// SchemaProvider answers layout questions about topics.
	SchemaProvider = ports.SchemaProvider
	// Schema is the YAML-backed SchemaProvider.
	Schema = schema.Registry
	// PackageTreeExtractor builds the struct tree of one topic and reads its signals.
	PackageTreeExtractor = structtree.PackageTreeExtractor
	// Signal is one bound leaf of a PackageTreeExtractor.
	Signal = structtree.Signal
)

const (
	Bool   = signal.Bool
	Char   = signal.Char
	UInt8  = signal.UInt8
	Int8   = signal.Int8
	UInt16 = signal.UInt16
	Int16  = signal.Int16
	UInt32 = signal.UInt32
	Int32  = signal.Int32
	UInt64 = signal.UInt64
	Int64  = signal.Int64
	Float  = signal.Float
	Double = signal.Double
	Struct = signal.Struct
)

var (
	ErrNullBuffer          = signal.ErrNullBuffer
	ErrUnknownSignal       = signal.ErrUnknownSignal
	ErrArrayMismatch       = signal.ErrArrayMismatch
	ErrOutOfBounds         = signal.ErrOutOfBounds
	ErrTypeUnsupported     = signal.ErrTypeUnsupported
	ErrDestinationTooSmall = signal.ErrDestinationTooSmall
	ErrSchemaUnavailable   = structtree.ErrSchemaUnavailable
	ErrInvalidSchema       = schema.ErrInvalidSchema
)

// LoadSchema reads a YAML topic layout file.
func LoadSchema(path string) (*Schema, error) {
	return schema.Load(path)
}

// ParseSchema reads a YAML topic layout held in memory.
func ParseSchema(raw []byte) (*Schema, error) {
	return schema.Parse(raw)
}

// NewCatalog validates entries and builds a URL catalog for the Extract functions.
func NewCatalog(entries map[string]Descriptor) (*Catalog, error) {
	return signal.NewCatalog(entries)
}

// NewPackageTreeExtractor builds the struct tree of topicURL from provider. Check
// IsSetupSuccessful before reading.
func NewPackageTreeExtractor(provider SchemaProvider, topicURL string) *PackageTreeExtractor {
	return structtree.NewPackageTreeExtractor(provider, topicURL)
}

// Classify reports what converting a value of type from into type to does to it.
func Classify(from, to ScalarType) Classification {
	return signal.Classify(from, to)
}

func ExtractScalar[T Number](buf []byte, cat *Catalog, url string) (T, error) {
	return signal.ExtractScalar[T](buf, cat, url)
}

func ExtractVector[T Number](buf []byte, cat *Catalog, url string) ([]T, error) {
	return signal.ExtractVector[T](buf, cat, url)
}

func ExtractVectorInto[T Number](dst []T, buf []byte, cat *Catalog, url string) ([]T, error) {
	return signal.ExtractVectorInto(dst, buf, cat, url)
}
