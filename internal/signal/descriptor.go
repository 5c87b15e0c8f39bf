package signal

import (
	"fmt"
	"math"
	"sort"
)

// Descriptor locates one signal inside a topic blob. Offset is absolute from the start
// of the blob; PayloadSize is the size of one element.
type Descriptor struct {
	Offset      int        `json:"offset" yaml:"offset"`
	PayloadSize int        `json:"payload_size" yaml:"payload_size"`
	Type        ScalarType `json:"type" yaml:"type"`
	ArrayLength int        `json:"array_length" yaml:"array_length"`
}

// End returns the first byte past the signal.
func (d Descriptor) End() int {
	return d.Offset + d.ArrayLength*d.PayloadSize
}

// Fits reports whether the whole signal lies inside a blob of size bytes. It never
// overflows, even for hostile descriptors.
func (d Descriptor) Fits(size int) bool {
	if d.Offset < 0 || d.PayloadSize < 0 || d.ArrayLength < 0 || size < 0 {
		return false
	}
	if d.Offset > size {
		return false
	}
	if d.ArrayLength == 0 || d.PayloadSize == 0 {
		return true
	}
	if d.ArrayLength > math.MaxInt/d.PayloadSize {
		return false
	}
	return d.ArrayLength*d.PayloadSize <= size-d.Offset
}

// elementFits is Fits for a single element at index.
func (d Descriptor) elementFits(index, width, size int) bool {
	if index < 0 || index >= d.ArrayLength || d.Offset < 0 || d.PayloadSize < 0 {
		return false
	}
	if d.PayloadSize > 0 && index > (math.MaxInt-d.Offset)/d.PayloadSize {
		return false
	}
	start := d.Offset + index*d.PayloadSize
	return start <= size && width <= size-start
}

// Validate rejects descriptors that cannot be read as a leaf signal.
func (d Descriptor) Validate() error {
	if d.Offset < 0 || d.PayloadSize < 0 {
		return fmt.Errorf("%w: negative offset or payload size", ErrInvalidDescriptor)
	}
	if d.ArrayLength < 1 {
		return fmt.Errorf("%w: array length %d", ErrInvalidDescriptor, d.ArrayLength)
	}
	width, err := SizeOf(d.Type)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	if d.PayloadSize < width {
		return fmt.Errorf("%w: payload size %d below %s width %d", ErrInvalidDescriptor, d.PayloadSize, d.Type, width)
	}
	return nil
}

// Catalog maps fully qualified signal URLs to descriptors. It is immutable once built
// and safe for concurrent readers.
type Catalog struct {
	entries map[string]Descriptor
}

// NewCatalog copies entries into a catalog after validating every descriptor.
func NewCatalog(entries map[string]Descriptor) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]Descriptor, len(entries))}
	for url, d := range entries {
		if url == "" {
			return nil, fmt.Errorf("%w: empty url", ErrInvalidDescriptor)
		}
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("signal %q: %w", url, err)
		}
		c.entries[url] = d
	}
	return c, nil
}

// Lookup returns the descriptor registered for url.
func (c *Catalog) Lookup(url string) (Descriptor, bool) {
	if c == nil {
		return Descriptor{}, false
	}
	d, ok := c.entries[url]
	return d, ok
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// URLs returns every registered URL in lexical order.
func (c *Catalog) URLs() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.entries))
	for url := range c.entries {
		out = append(out, url)
	}
	sort.Strings(out)
	return out
}
