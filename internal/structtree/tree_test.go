package structtree

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/SignalBridge/internal/signal"
)

func floatMemory(n int) []byte {
	buf := make([]byte, 4*n)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(i)))
	}
	return buf
}

func float32Leaf(offset int) signal.Descriptor {
	return signal.Descriptor{Offset: offset, PayloadSize: 4, Type: signal.Float, ArrayLength: 1}
}

// surTree builds device.sur.tp{vel,pos} with tp at byte 40.
func surTree(t *testing.T) (*Tree, NodeID) {
	t.Helper()
	tree := New("device", signal.Descriptor{Offset: 0, PayloadSize: 80, Type: signal.Struct, ArrayLength: 1})
	sur, err := tree.AddStruct(tree.Root(), "sur", signal.Descriptor{Offset: 40, PayloadSize: 32, ArrayLength: 1})
	require.NoError(t, err)
	tp, err := tree.AddStruct(sur, "tp", signal.Descriptor{Offset: 40, PayloadSize: 8, ArrayLength: 4})
	require.NoError(t, err)
	_, err = tree.AddLeaf(tp, "vel", float32Leaf(40))
	require.NoError(t, err)
	_, err = tree.AddLeaf(tp, "pos", float32Leaf(44))
	require.NoError(t, err)
	return tree, tp
}

func TestTreeURLAndFind(t *testing.T) {
	tree, tp := surTree(t)

	assert.Equal(t, "device.sur.tp", tree.URL(tp))
	id, ok := tree.Find("device.sur.tp.vel")
	require.True(t, ok)
	assert.True(t, tree.IsLeaf(id))

	_, ok = tree.Find("device.sur.nope")
	assert.False(t, ok)
	_, ok = tree.Find("other.sur")
	assert.False(t, ok)
	assert.Empty(t, tree.URL(NodeID(999)))
}

func TestTreeRejectsChildrenOnLeaves(t *testing.T) {
	tree, _ := surTree(t)
	vel, ok := tree.Find("device.sur.tp.vel")
	require.True(t, ok)

	_, err := tree.AddLeaf(vel, "x", float32Leaf(0))
	require.ErrorIs(t, err, ErrNotComposite)

	_, err = tree.AddStruct(NodeID(42), "x", signal.Descriptor{})
	require.ErrorIs(t, err, ErrNodeNotFound)

	_, err = tree.AddLeaf(tree.Root(), "bad", signal.Descriptor{Offset: 0, PayloadSize: 2, Type: signal.Int32, ArrayLength: 1})
	require.ErrorIs(t, err, signal.ErrInvalidDescriptor)
}

func TestReplicateAsArrayShiftsOffsets(t *testing.T) {
	tree, tp := surTree(t)
	tree.SetMemory(floatMemory(20))

	copies, err := tree.ReplicateAsArray(tp, 4, 8)
	require.NoError(t, err)
	require.Len(t, copies, 4)
	for i, c := range copies {
		require.NoError(t, tree.UpdateURLAsArray(c, i))
	}

	leaves, err := tree.BuildLeafList("device.sur")
	require.NoError(t, err)
	require.Len(t, leaves, 8)

	for i := 0; i < 4; i++ {
		vel, pos := leaves[2*i], leaves[2*i+1]
		assert.Equal(t, 40+8*i, vel.Descriptor.Offset)
		assert.Equal(t, 44+8*i, pos.Descriptor.Offset)

		v, err := tree.Read(vel.ID, 0)
		require.NoError(t, err)
		assert.Equal(t, float64(10+2*i), v.Float64())
		p, err := tree.Read(pos.ID, 0)
		require.NoError(t, err)
		assert.Equal(t, float64(11+2*i), p.Float64())
	}

	assert.Equal(t, "device.sur.tp[3].pos", leaves[7].URL)
	_, ok := tree.Find("device.sur.tp")
	assert.False(t, ok, "template is replaced by its copies")
	assert.False(t, tree.IsLeaf(tp))
}

func TestReplicateAsArrayErrors(t *testing.T) {
	tree, tp := surTree(t)

	_, err := tree.ReplicateAsArray(tp, 4, 7)
	require.ErrorIs(t, err, ErrStrideTooSmall)

	_, err = tree.ReplicateAsArray(tp, 0, 8)
	require.ErrorIs(t, err, ErrInvalidCount)

	_, err = tree.ReplicateAsArray(tree.Root(), 2, 80)
	require.ErrorIs(t, err, ErrRootTemplate)

	_, err = tree.ReplicateAsArray(NodeID(-3), 2, 8)
	require.ErrorIs(t, err, ErrNodeNotFound)

	leaves := tree.Leaves()
	assert.Len(t, leaves, 2, "failed replication leaves the tree untouched")
}

func TestReplicateLeafAsArray(t *testing.T) {
	tree := New("a.b.c", signal.Descriptor{PayloadSize: 16, Type: signal.Struct, ArrayLength: 1})
	x, err := tree.AddLeaf(tree.Root(), "x", signal.Descriptor{Offset: 0, PayloadSize: 2, Type: signal.Int16, ArrayLength: 1})
	require.NoError(t, err)

	copies, err := tree.ReplicateAsArray(x, 3, 4)
	require.NoError(t, err)
	for i, c := range copies {
		require.NoError(t, tree.UpdateURLAsArray(c, i))
	}

	var urls []string
	var offsets []int
	for _, l := range tree.Leaves() {
		urls = append(urls, l.URL)
		offsets = append(offsets, l.Descriptor.Offset)
	}
	if diff := cmp.Diff([]string{"a.b.c.x[0]", "a.b.c.x[1]", "a.b.c.x[2]"}, urls); diff != "" {
		t.Fatalf("leaf urls mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []int{0, 4, 8}, offsets)
}

func TestUpdateURLAsArrayNests(t *testing.T) {
	tree, tp := surTree(t)
	require.NoError(t, tree.UpdateURLAsArray(tp, 1))
	require.NoError(t, tree.UpdateURLAsArray(tp, 2))
	assert.Equal(t, "device.sur.tp[1][2]", tree.URL(tp))

	require.ErrorIs(t, tree.UpdateURLAsArray(tp, -1), ErrInvalidCount)
}

func TestTreeCatalogFeedsExtraction(t *testing.T) {
	tree, tp := surTree(t)
	copies, err := tree.ReplicateAsArray(tp, 4, 8)
	require.NoError(t, err)
	for i, c := range copies {
		require.NoError(t, tree.UpdateURLAsArray(c, i))
	}

	cat, err := tree.Catalog()
	require.NoError(t, err)
	assert.Equal(t, 8, cat.Len())

	v, err := signal.ExtractScalar[float32](floatMemory(20), cat, "device.sur.tp[2].pos")
	require.NoError(t, err)
	assert.Equal(t, float32(15), v)
}

func TestTreeReadWithoutMemory(t *testing.T) {
	tree, _ := surTree(t)
	vel, _ := tree.Find("device.sur.tp.vel")

	_, err := tree.Read(vel, 0)
	require.ErrorIs(t, err, signal.ErrNullBuffer)

	_, err = tree.Read(tree.Root(), 0)
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestLeafRootTree(t *testing.T) {
	tree := New("plant.line.speed", signal.Descriptor{Offset: 0, PayloadSize: 8, Type: signal.Double, ArrayLength: 1})
	leaves := tree.Leaves()
	require.Len(t, leaves, 1)
	assert.Equal(t, "plant.line.speed", leaves[0].URL)

	assert.Equal(t, 0, tree.PurgeUnusedLeaves([]string{"plant.line.speed"}))
	assert.Equal(t, 1, tree.PurgeUnusedLeaves([]string{"plant.line.other"}))
	assert.Empty(t, tree.Leaves())
}
