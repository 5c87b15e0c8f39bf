// Package structtree models nested struct and array layouts of a topic blob as an
// arena of nodes. Leaves carry absolute signal descriptors; composites group them.
//
// A Tree is not safe for concurrent use. Callers that rebind memory from a delivery
// goroutine while another goroutine reads must hold their own lock around both.
package structtree

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ghalamif/SignalBridge/internal/signal"
)

var (
	ErrNodeNotFound   = errors.New("structtree: node not found")
	ErrNotComposite   = errors.New("structtree: node is a leaf")
	ErrStrideTooSmall = errors.New("structtree: element stride below template footprint")
	ErrInvalidCount   = errors.New("structtree: invalid element count")
	ErrRootTemplate   = errors.New("structtree: root cannot be replicated")
)

// NodeID addresses a node inside its Tree. IDs stay stable for the tree's lifetime.
type NodeID int

// NoNode is the parent of the root.
const NoNode NodeID = -1

type node struct {
	name     string
	indices  []int
	parent   NodeID
	children []NodeID
	desc     signal.Descriptor
	leaf     bool
	detached bool
}

// Leaf is one flattened signal of a tree.
type Leaf struct {
	ID         NodeID
	URL        string
	Descriptor signal.Descriptor
}

type Tree struct {
	nodes []node
	root  NodeID
	mem   []byte
}

// New creates a tree whose root is named rootName. The root is a leaf unless d.Type
// is Struct. rootName may itself contain dots (a topic URL).
func New(rootName string, d signal.Descriptor) *Tree {
	t := &Tree{}
	t.root = t.alloc(NoNode, rootName, d, d.Type != signal.Struct)
	return t
}

func (t *Tree) Root() NodeID { return t.root }

func (t *Tree) alloc(parent NodeID, name string, d signal.Descriptor, leaf bool) NodeID {
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, node{name: name, parent: parent, desc: d, leaf: leaf})
	return id
}

func (t *Tree) attach(parent NodeID, name string, d signal.Descriptor, leaf bool) NodeID {
	id := t.alloc(parent, name, d, leaf)
	t.nodes[parent].children = append(t.nodes[parent].children, id)
	return id
}

func (t *Tree) live(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes) && !t.nodes[id].detached
}

func (t *Tree) composite(id NodeID) error {
	if !t.live(id) {
		return fmt.Errorf("%w: id %d", ErrNodeNotFound, id)
	}
	if t.nodes[id].leaf {
		return fmt.Errorf("%w: %s", ErrNotComposite, t.URL(id))
	}
	return nil
}

// AddStruct appends a composite child. Its descriptor records the base offset, the
// element size and the element count.
func (t *Tree) AddStruct(parent NodeID, name string, d signal.Descriptor) (NodeID, error) {
	if err := t.composite(parent); err != nil {
		return NoNode, err
	}
	d.Type = signal.Struct
	return t.attach(parent, name, d, false), nil
}

// AddLeaf appends a readable signal.
func (t *Tree) AddLeaf(parent NodeID, name string, d signal.Descriptor) (NodeID, error) {
	if err := t.composite(parent); err != nil {
		return NoNode, err
	}
	if err := d.Validate(); err != nil {
		return NoNode, fmt.Errorf("leaf %s.%s: %w", t.URL(parent), name, err)
	}
	return t.attach(parent, name, d, true), nil
}

func (t *Tree) IsLeaf(id NodeID) bool { return t.live(id) && t.nodes[id].leaf }

func (t *Tree) Descriptor(id NodeID) (signal.Descriptor, bool) {
	if !t.live(id) {
		return signal.Descriptor{}, false
	}
	return t.nodes[id].desc, true
}

// Children returns the live children of id in declaration order.
func (t *Tree) Children(id NodeID) []NodeID {
	if !t.live(id) {
		return nil
	}
	return append([]NodeID(nil), t.nodes[id].children...)
}

func (t *Tree) segment(id NodeID) string {
	n := &t.nodes[id]
	if len(n.indices) == 0 {
		return n.name
	}
	var b strings.Builder
	b.WriteString(n.name)
	for _, i := range n.indices {
		b.WriteByte('[')
		b.WriteString(strconv.Itoa(i))
		b.WriteByte(']')
	}
	return b.String()
}

// URL returns the fully qualified URL of id, or "" for unknown nodes.
func (t *Tree) URL(id NodeID) string {
	if !t.live(id) {
		return ""
	}
	var segs []string
	for cur := id; cur != NoNode; cur = t.nodes[cur].parent {
		segs = append(segs, t.segment(cur))
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return strings.Join(segs, ".")
}

// Find resolves a fully qualified URL to its node.
func (t *Tree) Find(url string) (NodeID, bool) {
	if !t.live(t.root) {
		return NoNode, false
	}
	rootSeg := t.segment(t.root)
	if url == rootSeg {
		return t.root, true
	}
	rest, ok := strings.CutPrefix(url, rootSeg+".")
	if !ok {
		return NoNode, false
	}
	cur := t.root
	for _, seg := range strings.Split(rest, ".") {
		next := NoNode
		for _, c := range t.nodes[cur].children {
			if t.segment(c) == seg {
				next = c
				break
			}
		}
		if next == NoNode {
			return NoNode, false
		}
		cur = next
	}
	return cur, true
}

// BuildLeafList flattens every leaf under subtreeURL depth-first in declaration
// order.
func (t *Tree) BuildLeafList(subtreeURL string) ([]Leaf, error) {
	id, ok := t.Find(subtreeURL)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, subtreeURL)
	}
	var out []Leaf
	t.collect(id, t.URL(id), &out)
	return out, nil
}

// Leaves is BuildLeafList over the whole tree.
func (t *Tree) Leaves() []Leaf {
	if !t.live(t.root) {
		return nil
	}
	var out []Leaf
	t.collect(t.root, t.segment(t.root), &out)
	return out
}

func (t *Tree) collect(id NodeID, url string, out *[]Leaf) {
	n := &t.nodes[id]
	if n.leaf {
		*out = append(*out, Leaf{ID: id, URL: url, Descriptor: n.desc})
		return
	}
	for _, c := range n.children {
		t.collect(c, url+"."+t.segment(c), out)
	}
}

// footprint returns the byte range [lo, hi) covered by id's leaves, starting no later
// than the node's own base offset.
func (t *Tree) footprint(id NodeID) (lo, hi int) {
	lo = t.nodes[id].desc.Offset
	hi = lo
	if t.nodes[id].leaf {
		return lo, t.nodes[id].desc.End()
	}
	var walk func(NodeID)
	walk = func(n NodeID) {
		nd := &t.nodes[n]
		if nd.leaf {
			lo = min(lo, nd.desc.Offset)
			hi = max(hi, nd.desc.End())
			return
		}
		for _, c := range nd.children {
			walk(c)
		}
	}
	walk(id)
	return lo, hi
}

// ReplicateAsArray replaces template in its parent with count structural copies.
// Copy i has every descendant offset shifted by i*stride; copy 0 keeps the template
// offsets. stride must cover the template's footprint. URLs are not indexed here;
// see UpdateURLAsArray.
func (t *Tree) ReplicateAsArray(template NodeID, count, stride int) ([]NodeID, error) {
	if !t.live(template) {
		return nil, fmt.Errorf("%w: id %d", ErrNodeNotFound, template)
	}
	if template == t.root {
		return nil, ErrRootTemplate
	}
	if count < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}
	lo, hi := t.footprint(template)
	if stride < hi-lo {
		return nil, fmt.Errorf("%w: stride %d, footprint %d at %s", ErrStrideTooSmall, stride, hi-lo, t.URL(template))
	}

	parent := t.nodes[template].parent
	copies := make([]NodeID, count)
	for i := range copies {
		copies[i] = t.clone(template, parent, i*stride)
		if !t.nodes[copies[i]].leaf {
			t.nodes[copies[i]].desc.ArrayLength = 1
			t.nodes[copies[i]].desc.PayloadSize = stride
		}
	}

	kids := t.nodes[parent].children
	spliced := make([]NodeID, 0, len(kids)-1+count)
	for _, c := range kids {
		if c == template {
			spliced = append(spliced, copies...)
			continue
		}
		spliced = append(spliced, c)
	}
	t.nodes[parent].children = spliced
	t.detach(template)
	return copies, nil
}

func (t *Tree) clone(id, parent NodeID, shift int) NodeID {
	src := t.nodes[id]
	d := src.desc
	d.Offset += shift
	cid := t.alloc(parent, src.name, d, src.leaf)
	if len(src.indices) > 0 {
		t.nodes[cid].indices = append([]int(nil), src.indices...)
	}
	for _, c := range src.children {
		gc := t.clone(c, cid, shift)
		t.nodes[cid].children = append(t.nodes[cid].children, gc)
	}
	return cid
}

func (t *Tree) detach(id NodeID) {
	t.nodes[id].detached = true
	for _, c := range t.nodes[id].children {
		t.detach(c)
	}
}

// UpdateURLAsArray appends "[index]" to the node's own URL segment. Offsets are not
// touched and descendants pick up the new prefix.
func (t *Tree) UpdateURLAsArray(id NodeID, index int) error {
	if !t.live(id) {
		return fmt.Errorf("%w: id %d", ErrNodeNotFound, id)
	}
	if index < 0 {
		return fmt.Errorf("%w: index %d", ErrInvalidCount, index)
	}
	t.nodes[id].indices = append(t.nodes[id].indices, index)
	return nil
}

// PurgeUnusedLeaves drops every leaf whose URL is not contained in any of required
// and prunes composites left empty. It returns the number of leaves removed.
func (t *Tree) PurgeUnusedLeaves(required []string) int {
	if !t.live(t.root) {
		return 0
	}
	removed := 0
	var prune func(id NodeID, url string) bool
	prune = func(id NodeID, url string) bool {
		n := &t.nodes[id]
		if n.leaf {
			if containedInAny(url, required) {
				return true
			}
			n.detached = true
			removed++
			return false
		}
		kept := n.children[:0]
		for _, c := range n.children {
			if prune(c, url+"."+t.segment(c)) {
				kept = append(kept, c)
			}
		}
		n.children = kept
		if len(kept) == 0 && id != t.root {
			n.detached = true
			return false
		}
		return true
	}
	prune(t.root, t.segment(t.root))
	return removed
}

func containedInAny(url string, required []string) bool {
	for _, r := range required {
		if strings.Contains(r, url) {
			return true
		}
	}
	return false
}

// SetMemory binds buf as the blob leaves are read from. The slice is borrowed, not
// copied; it must stay valid and unmodified while reads are in flight.
func (t *Tree) SetMemory(buf []byte) { t.mem = buf }

func (t *Tree) Memory() []byte { return t.mem }

// Read returns element index of leaf id from the bound memory.
func (t *Tree) Read(id NodeID, index int) (signal.Scalar, error) {
	if !t.IsLeaf(id) {
		return signal.Scalar{}, fmt.Errorf("%w: id %d is not a live leaf", ErrNodeNotFound, id)
	}
	return signal.Read(t.mem, t.nodes[id].desc, index)
}

// Catalog flattens the live leaves into an extraction catalog.
func (t *Tree) Catalog() (*signal.Catalog, error) {
	leaves := t.Leaves()
	entries := make(map[string]signal.Descriptor, len(leaves))
	for _, l := range leaves {
		entries[l.URL] = l.Descriptor
	}
	return signal.NewCatalog(entries)
}
