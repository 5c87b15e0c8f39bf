package structtree

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ghalamif/SignalBridge/internal/ports"
	"github.com/ghalamif/SignalBridge/internal/signal"
)

// ErrSchemaUnavailable means the provider could not describe the topic. The whole
// topic stays disabled until it is rebuilt.
var ErrSchemaUnavailable = errors.New("structtree: schema unavailable")

// Signal is one leaf of a package tree together with an accessor bound to the tree's
// current memory.
type Signal struct {
	Name       string
	Descriptor signal.Descriptor

	id   NodeID
	tree *Tree
}

// Len is the number of elements of the signal.
func (s Signal) Len() int { return s.Descriptor.ArrayLength }

// Read returns element index from the bound memory.
func (s Signal) Read(index int) (signal.Scalar, error) {
	if s.tree == nil {
		return signal.Scalar{}, fmt.Errorf("%w: %s", ErrNodeNotFound, s.Name)
	}
	return s.tree.Read(s.id, index)
}

// Get is Read returning a zero value of the signal type when no memory is bound or
// index is out of range.
func (s Signal) Get(index int) signal.Scalar {
	v, err := s.Read(index)
	if err != nil {
		return signal.Scalar{Type: s.Descriptor.Type}
	}
	return v
}

// PackageTreeExtractor builds the struct tree of one topic from a schema provider once
// and serves every subsequent message of that topic.
type PackageTreeExtractor struct {
	provider ports.SchemaProvider
	topic    string
	tree     *Tree
	signals  []Signal
	err      error
}

// NewPackageTreeExtractor queries provider for topicURL and builds its tree. It never
// fails outright: check IsSetupSuccessful before use.
func NewPackageTreeExtractor(provider ports.SchemaProvider, topicURL string) *PackageTreeExtractor {
	p := &PackageTreeExtractor{provider: provider, topic: topicURL}
	if err := p.setup(); err != nil {
		p.err = err
		p.tree = nil
		p.signals = nil
	}
	return p
}

func (p *PackageTreeExtractor) setup() error {
	if p.provider == nil {
		return fmt.Errorf("%w: no provider for %q", ErrSchemaUnavailable, p.topic)
	}
	if p.topic == "" {
		return fmt.Errorf("%w: empty topic url", ErrSchemaUnavailable)
	}
	info, ok := p.provider.SignalInfo(p.topic)
	if !ok {
		return fmt.Errorf("%w: topic %q", ErrSchemaUnavailable, p.topic)
	}

	children := p.childURLs(p.topic)
	if len(children) == 0 {
		if err := info.Validate(); err != nil {
			return fmt.Errorf("%w: topic %q: %v", ErrSchemaUnavailable, p.topic, err)
		}
		p.tree = New(p.topic, info)
		p.refresh()
		return nil
	}

	info.Type = signal.Struct
	p.tree = New(p.topic, info)
	for _, c := range children {
		if err := p.build(p.tree.Root(), c); err != nil {
			return err
		}
	}
	p.refresh()
	return nil
}

func (p *PackageTreeExtractor) build(parent NodeID, url string) error {
	info, ok := p.provider.SignalInfo(url)
	if !ok {
		return fmt.Errorf("%w: no signal info for %q", ErrSchemaUnavailable, url)
	}
	name := lastSegment(url)

	children := p.childURLs(url)
	if len(children) == 0 {
		if _, err := p.tree.AddLeaf(parent, name, info); err != nil {
			return fmt.Errorf("%w: %v", ErrSchemaUnavailable, err)
		}
		return nil
	}

	id, err := p.tree.AddStruct(parent, name, info)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaUnavailable, err)
	}
	for _, c := range children {
		if err := p.build(id, c); err != nil {
			return err
		}
	}
	if info.ArrayLength <= 1 {
		return nil
	}

	copies, err := p.tree.ReplicateAsArray(id, info.ArrayLength, p.stride(url, info))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaUnavailable, err)
	}
	for i, c := range copies {
		if err := p.tree.UpdateURLAsArray(c, i); err != nil {
			return err
		}
	}
	return nil
}

// stride prefers the distance between the first two elements as reported by the
// provider and falls back to the element size.
func (p *PackageTreeExtractor) stride(url string, info signal.Descriptor) int {
	first, ok0 := p.provider.SignalInfo(url + "[0]")
	second, ok1 := p.provider.SignalInfo(url + "[1]")
	if ok0 && ok1 && second.Offset > first.Offset {
		return second.Offset - first.Offset
	}
	return info.PayloadSize
}

// childURLs returns index-free child URLs with duplicates (one per array element)
// collapsed.
func (p *PackageTreeExtractor) childURLs(url string) []string {
	raw := p.provider.ChildURLs(url)
	if len(raw) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		c = stripIndices(c)
		if _, dup := seen[c]; dup || c == url {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func (p *PackageTreeExtractor) refresh() {
	leaves := p.tree.Leaves()
	p.signals = make([]Signal, len(leaves))
	for i, l := range leaves {
		p.signals[i] = Signal{Name: l.URL, Descriptor: l.Descriptor, id: l.ID, tree: p.tree}
	}
}

func (p *PackageTreeExtractor) IsSetupSuccessful() bool { return p.err == nil }

// Err reports why setup failed; it wraps ErrSchemaUnavailable.
func (p *PackageTreeExtractor) Err() error { return p.err }

func (p *PackageTreeExtractor) Topic() string { return p.topic }

// Tree is nil when setup failed.
func (p *PackageTreeExtractor) Tree() *Tree { return p.tree }

// SetMemory binds the blob of the current message. When the provider offers a
// deserialized view of the payload, that view is bound instead.
func (p *PackageTreeExtractor) SetMemory(buf []byte) {
	if p.tree == nil {
		return
	}
	if mem, ok := p.provider.DeserializedMemory(); ok {
		buf = mem
	}
	p.tree.SetMemory(buf)
}

// Signals lists the leaves in tree order. The slice is owned by the extractor.
func (p *PackageTreeExtractor) Signals() []Signal { return p.signals }

// PurgeUnusedLeaves narrows the tree to the signals contained in required.
func (p *PackageTreeExtractor) PurgeUnusedLeaves(required []string) int {
	if p.tree == nil {
		return 0
	}
	n := p.tree.PurgeUnusedLeaves(required)
	p.refresh()
	return n
}

func (p *PackageTreeExtractor) Catalog() (*signal.Catalog, error) {
	if p.tree == nil {
		return nil, p.err
	}
	return p.tree.Catalog()
}

func lastSegment(url string) string {
	return stripIndices(url[strings.LastIndexByte(url, '.')+1:])
}

// stripIndices removes every "[...]" group from url.
func stripIndices(url string) string {
	if strings.IndexByte(url, '[') < 0 {
		return url
	}
	var b strings.Builder
	b.Grow(len(url))
	depth := 0
	for i := 0; i < len(url); i++ {
		switch c := url[i]; {
		case c == '[':
			depth++
		case c == ']' && depth > 0:
			depth--
		case depth == 0:
			b.WriteByte(c)
		}
	}
	return b.String()
}
