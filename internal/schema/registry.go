// Package schema loads topic layouts from YAML and serves them as a
// ports.SchemaProvider. Layouts follow C rules: members are placed at their natural
// alignment unless the enclosing struct is packed or the member has an explicit
// offset, and struct sizes are rounded up to the largest member alignment.
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/SignalBridge/internal/ports"
	"github.com/ghalamif/SignalBridge/internal/signal"
)

var ErrInvalidSchema = errors.New("schema: invalid definition")

// Field is one member of a topic layout. A field is either a scalar (Type set) or a
// struct (Fields set). Count > 1 makes it an array.
type Field struct {
	Name   string  `yaml:"name"`
	Type   string  `yaml:"type,omitempty"`
	Count  int     `yaml:"count,omitempty"`
	Offset *int    `yaml:"offset,omitempty"`
	Packed bool    `yaml:"packed,omitempty"`
	Fields []Field `yaml:"fields,omitempty"`
}

// Topic is a top-level layout addressed by its URL.
type Topic struct {
	URL    string  `yaml:"url"`
	Type   string  `yaml:"type,omitempty"`
	Count  int     `yaml:"count,omitempty"`
	Packed bool    `yaml:"packed,omitempty"`
	Fields []Field `yaml:"fields,omitempty"`
}

type File struct {
	Topics []Topic `yaml:"topics"`
}

type layout struct {
	name     string
	offset   int
	typ      signal.ScalarType
	count    int
	elemSize int
	align    int
	children []*layout
	byName   map[string]*layout
}

// Registry resolves signal URLs against compiled layouts. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	topics map[string]*layout
	order  []string
}

var _ ports.SchemaProvider = (*Registry)(nil)

func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Parse decodes a YAML schema document. Unknown keys are rejected.
func Parse(raw []byte) (*Registry, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return New(f)
}

// New compiles f into a registry.
func New(f File) (*Registry, error) {
	r := &Registry{topics: make(map[string]*layout, len(f.Topics))}
	for _, t := range f.Topics {
		if t.URL == "" {
			return nil, fmt.Errorf("%w: topic without url", ErrInvalidSchema)
		}
		if strings.ContainsAny(t.URL, "[]") {
			return nil, fmt.Errorf("%w: topic url %q must not carry an index", ErrInvalidSchema, t.URL)
		}
		if _, dup := r.topics[t.URL]; dup {
			return nil, fmt.Errorf("%w: duplicate topic %q", ErrInvalidSchema, t.URL)
		}
		root, err := compile(Field{Name: t.URL, Type: t.Type, Count: t.Count, Packed: t.Packed, Fields: t.Fields}, false)
		if err != nil {
			return nil, fmt.Errorf("topic %s: %w", t.URL, err)
		}
		r.topics[t.URL] = root
		r.order = append(r.order, t.URL)
	}
	// Longest first so nested topic URLs win prefix matches.
	sort.Slice(r.order, func(i, j int) bool {
		if len(r.order[i]) != len(r.order[j]) {
			return len(r.order[i]) > len(r.order[j])
		}
		return r.order[i] < r.order[j]
	})
	return r, nil
}

func compile(f Field, packed bool) (*layout, error) {
	if f.Name == "" {
		return nil, fmt.Errorf("%w: field without name", ErrInvalidSchema)
	}
	if strings.ContainsAny(f.Name, "[]") {
		return nil, fmt.Errorf("%w: bad field name %q", ErrInvalidSchema, f.Name)
	}
	if f.Count < 0 {
		return nil, fmt.Errorf("%w: %s: negative count", ErrInvalidSchema, f.Name)
	}
	if f.Offset != nil && *f.Offset < 0 {
		return nil, fmt.Errorf("%w: %s: negative offset", ErrInvalidSchema, f.Name)
	}
	l := &layout{name: f.Name, count: max(f.Count, 1)}

	switch {
	case f.Type != "" && len(f.Fields) > 0:
		return nil, fmt.Errorf("%w: %s: has both type and fields", ErrInvalidSchema, f.Name)
	case f.Type != "":
		t, ok := lookupType(f.Type)
		if !ok {
			return nil, fmt.Errorf("%w: %s: unknown type %q", ErrInvalidSchema, f.Name, f.Type)
		}
		l.typ = t
		l.elemSize, _ = signal.SizeOf(t)
		l.align = l.elemSize
		return l, nil
	case len(f.Fields) == 0:
		return nil, fmt.Errorf("%w: %s: needs a type or fields", ErrInvalidSchema, f.Name)
	}

	packed = packed || f.Packed
	l.typ = signal.Struct
	l.byName = make(map[string]*layout, len(f.Fields))
	cursor, maxAlign := 0, 1
	for _, cf := range f.Fields {
		if strings.Contains(cf.Name, ".") {
			return nil, fmt.Errorf("%w: %s: member name %q contains a dot", ErrInvalidSchema, f.Name, cf.Name)
		}
		c, err := compile(cf, packed)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		if _, dup := l.byName[c.name]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate member %q", ErrInvalidSchema, f.Name, c.name)
		}
		a := c.align
		if packed {
			a = 1
		}
		if cf.Offset != nil {
			c.offset = *cf.Offset
		} else {
			c.offset = alignUp(cursor, a)
		}
		cursor = max(cursor, c.offset+c.elemSize*c.count)
		maxAlign = max(maxAlign, a)
		l.children = append(l.children, c)
		l.byName[c.name] = c
	}
	l.align = maxAlign
	l.elemSize = alignUp(cursor, maxAlign)
	return l, nil
}

// lookupType accepts the native names and their "_t"-less spelling (uint32).
func lookupType(name string) (signal.ScalarType, bool) {
	if t, ok := signal.TypeOf(name); ok && t != signal.Struct {
		return t, true
	}
	t, ok := signal.TypeOf(name + "_t")
	return t, ok
}

func alignUp(n, a int) int {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}

// Topics lists the topic URLs sorted.
func (r *Registry) Topics() []string {
	out := make([]string, 0, len(r.topics))
	for u := range r.topics {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Size is the byte size of one message of topic.
func (r *Registry) Size(topic string) (int, bool) {
	l, ok := r.topics[topic]
	if !ok {
		return 0, false
	}
	return l.elemSize * l.count, true
}

// SignalInfo resolves url to an absolute descriptor. Unindexed array members resolve
// against element 0 of every enclosing array and report the full element count;
// indexed members report a single element.
func (r *Registry) SignalInfo(url string) (signal.Descriptor, bool) {
	d, _, ok := r.resolve(url)
	return d, ok
}

// ChildURLs returns the member URLs of a struct node, or nil for scalars and unknown
// URLs.
func (r *Registry) ChildURLs(url string) []string {
	_, l, ok := r.resolve(url)
	if !ok || l.typ != signal.Struct {
		return nil
	}
	out := make([]string, len(l.children))
	for i, c := range l.children {
		out[i] = url + "." + c.name
	}
	return out
}

// DeserializedMemory always reports false: schema layouts describe the wire blob.
func (r *Registry) DeserializedMemory() ([]byte, bool) { return nil, false }

func (r *Registry) topicFor(url string) (*layout, string, bool) {
	for _, t := range r.order {
		rest, ok := strings.CutPrefix(url, t)
		if !ok {
			continue
		}
		if rest == "" || rest[0] == '.' || rest[0] == '[' {
			return r.topics[t], rest, true
		}
	}
	return nil, "", false
}

func (r *Registry) resolve(url string) (signal.Descriptor, *layout, bool) {
	cur, rest, ok := r.topicFor(url)
	if !ok {
		return signal.Descriptor{}, nil, false
	}

	base := 0
	var head string
	head, rest, _ = strings.Cut(rest, ".")
	index, indexed, ok := parseIndex(head)
	if !ok {
		return signal.Descriptor{}, nil, false
	}
	if indexed {
		if index >= cur.count {
			return signal.Descriptor{}, nil, false
		}
		base += index * cur.elemSize
	}

	if rest != "" {
		for _, seg := range strings.Split(rest, ".") {
			name, idx, _ := strings.Cut(seg, "[")
			if idx != "" {
				idx = "[" + idx
			}
			child, ok := cur.byName[name]
			if !ok {
				return signal.Descriptor{}, nil, false
			}
			index, indexed, ok = parseIndex(idx)
			if !ok || (indexed && index >= child.count) {
				return signal.Descriptor{}, nil, false
			}
			base += child.offset
			if indexed {
				base += index * child.elemSize
			}
			cur = child
		}
	}

	d := signal.Descriptor{Offset: base, PayloadSize: cur.elemSize, Type: cur.typ, ArrayLength: cur.count}
	if indexed {
		d.ArrayLength = 1
	}
	return d, cur, true
}

// parseIndex parses "" or "[n]".
func parseIndex(s string) (index int, indexed, ok bool) {
	if s == "" {
		return 0, false, true
	}
	if len(s) < 3 || s[0] != '[' || s[len(s)-1] != ']' {
		return 0, false, false
	}
	n, err := strconv.Atoi(s[1 : len(s)-1])
	if err != nil || n < 0 {
		return 0, false, false
	}
	return n, true, true
}
