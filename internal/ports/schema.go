package ports

import "github.com/ghalamif/SignalBridge/internal/signal"

// SchemaProvider answers layout questions about topics. URLs are dotted paths; array
// elements may be addressed with "[i]". Offsets are absolute within the topic blob.
type SchemaProvider interface {
	// SignalInfo describes the node at url. Composite nodes report Type Struct,
	// PayloadSize as the element size and ArrayLength as the element count.
	SignalInfo(url string) (signal.Descriptor, bool)
	// ChildURLs lists the direct children of url in declaration order.
	ChildURLs(url string) []string
	// DeserializedMemory returns a pre-decoded blob when the raw payload needs a
	// deserialization pass before extraction.
	DeserializedMemory() ([]byte, bool)
}
