package structtree

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/SignalBridge/internal/signal"
)

type fakeProvider struct {
	info     map[string]signal.Descriptor
	children map[string][]string
	mem      []byte
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{info: map[string]signal.Descriptor{}, children: map[string][]string{}}
}

func (f *fakeProvider) SignalInfo(url string) (signal.Descriptor, bool) {
	d, ok := f.info[url]
	return d, ok
}

func (f *fakeProvider) ChildURLs(url string) []string { return f.children[url] }

func (f *fakeProvider) DeserializedMemory() ([]byte, bool) { return f.mem, f.mem != nil }

func (f *fakeProvider) add(parent, url string, d signal.Descriptor) {
	f.info[url] = d
	if parent != "" {
		f.children[parent] = append(f.children[parent], url)
	}
}

// deviceProvider describes device.sur[2].tp[4].{vel,pos} over 20 floats.
func deviceProvider() *fakeProvider {
	f := newFakeProvider()
	st := func(offset, size, n int) signal.Descriptor {
		return signal.Descriptor{Offset: offset, PayloadSize: size, Type: signal.Struct, ArrayLength: n}
	}
	f.add("", "device", st(0, 80, 1))
	f.add("device", "device.sur", st(0, 40, 2))
	f.info["device.sur[0]"] = st(0, 40, 1)
	f.info["device.sur[1]"] = st(40, 40, 1)
	f.add("device.sur", "device.sur.tp", st(0, 8, 4))
	f.info["device.sur.tp[0]"] = st(0, 8, 1)
	f.info["device.sur.tp[1]"] = st(8, 8, 1)
	f.add("device.sur.tp", "device.sur.tp.vel", float32Leaf(0))
	f.add("device.sur.tp", "device.sur.tp.pos", float32Leaf(4))
	return f
}

var objectFields = []struct {
	name string
	typ  signal.ScalarType
	n    int
}{
	{"id", signal.UInt32, 1}, {"classType", signal.UInt8, 1},
	{"x", signal.Float, 1}, {"y", signal.Float, 1}, {"z", signal.Float, 1},
	{"vx", signal.Float, 1}, {"vy", signal.Float, 1}, {"vz", signal.Float, 1},
	{"ax", signal.Float, 1}, {"ay", signal.Float, 1}, {"az", signal.Float, 1},
	{"width", signal.Float, 1}, {"length", signal.Float, 1}, {"height", signal.Float, 1},
	{"yaw", signal.Float, 1}, {"yawRate", signal.Float, 1}, {"confidence", signal.Float, 1},
	{"age", signal.UInt32, 1}, {"State", signal.Float, 4},
}

const objectsTopic = "radar.objects.list"

// objectListProvider describes a header of 3 fields, a count and two objects of 19
// fields each: 42 leaves. The objects array has no per-element entries, so its
// stride comes from the element size.
func objectListProvider() *fakeProvider {
	f := newFakeProvider()
	u32 := func(offset int) signal.Descriptor {
		return signal.Descriptor{Offset: offset, PayloadSize: 4, Type: signal.UInt32, ArrayLength: 1}
	}
	f.add("", objectsTopic, signal.Descriptor{PayloadSize: 192, Type: signal.Struct, ArrayLength: 1})
	header := objectsTopic + ".header"
	f.add(objectsTopic, header, signal.Descriptor{PayloadSize: 12, Type: signal.Struct, ArrayLength: 1})
	f.add(header, header+".seq", u32(0))
	f.add(header, header+".stampSec", u32(4))
	f.add(header, header+".stampNsec", u32(8))
	f.add(objectsTopic, objectsTopic+".numObjects", u32(12))

	objects := objectsTopic + ".objects"
	f.add(objectsTopic, objects, signal.Descriptor{Offset: 16, PayloadSize: 88, Type: signal.Struct, ArrayLength: 2})
	off := 16
	for _, fld := range objectFields {
		size, _ := signal.SizeOf(fld.typ)
		if rem := off % size; rem != 0 {
			off += size - rem
		}
		f.add(objects, objects+"."+fld.name, signal.Descriptor{Offset: off, PayloadSize: size, Type: fld.typ, ArrayLength: fld.n})
		off += size * fld.n
	}
	return f
}

func leafURLs(p *PackageTreeExtractor) []string {
	var out []string
	for _, s := range p.Signals() {
		out = append(out, s.Name)
	}
	return out
}

func TestPackageTreeExtractsNestedArrays(t *testing.T) {
	p := NewPackageTreeExtractor(deviceProvider(), "device")
	require.True(t, p.IsSetupSuccessful(), "%v", p.Err())
	require.Len(t, p.Signals(), 16)

	mem := floatMemory(20)
	cat, err := p.Catalog()
	require.NoError(t, err)

	tests := []struct {
		url  string
		want float32
	}{
		{"device.sur[1].tp[2].vel", 14},
		{"device.sur[1].tp[1].vel", 12},
		{"device.sur[1].tp[3].pos", 17},
		{"device.sur[0].tp[1].vel", 2},
		{"device.sur[0].tp[1].pos", 3},
		{"device.sur[0].tp[2].pos", 5},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := signal.ExtractScalar[float32](mem, cat, tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	d, ok := cat.Lookup("device.sur[1].tp[2].vel")
	require.True(t, ok)
	assert.Equal(t, 56, d.Offset)
}

func TestPackageTreeSignalsReadBoundMemory(t *testing.T) {
	p := NewPackageTreeExtractor(deviceProvider(), "device")
	require.True(t, p.IsSetupSuccessful())

	sig := p.Signals()[0]
	assert.Equal(t, "device.sur[0].tp[0].vel", sig.Name)
	assert.Equal(t, signal.Float, sig.Get(0).Type, "zero value before memory is bound")

	p.SetMemory(floatMemory(20))
	last := p.Signals()[len(p.Signals())-1]
	assert.Equal(t, "device.sur[1].tp[3].pos", last.Name)
	v, err := last.Read(0)
	require.NoError(t, err)
	assert.Equal(t, float64(17), v.Float64())

	_, err = last.Read(1)
	require.ErrorIs(t, err, signal.ErrOutOfBounds)
}

func TestPackageTreeBindsDeserializedMemory(t *testing.T) {
	f := deviceProvider()
	f.mem = floatMemory(20)
	p := NewPackageTreeExtractor(f, "device")
	require.True(t, p.IsSetupSuccessful())

	p.SetMemory([]byte{1, 2, 3})
	assert.Len(t, p.Tree().Memory(), 80)
}

func TestPackageTreeCollapsesIndexedChildren(t *testing.T) {
	f := newFakeProvider()
	f.add("", "sensor.imu.sample", signal.Descriptor{PayloadSize: 14, Type: signal.Struct, ArrayLength: 1})
	f.info["sensor.imu.sample.acc"] = signal.Descriptor{Offset: 0, PayloadSize: 4, Type: signal.Float, ArrayLength: 3}
	f.children["sensor.imu.sample"] = []string{
		"sensor.imu.sample.acc[0]", "sensor.imu.sample.acc[1]", "sensor.imu.sample.acc[2]",
	}
	f.add("sensor.imu.sample", "sensor.imu.sample.temp", signal.Descriptor{Offset: 12, PayloadSize: 2, Type: signal.Int16, ArrayLength: 1})

	p := NewPackageTreeExtractor(f, "sensor.imu.sample")
	require.True(t, p.IsSetupSuccessful(), "%v", p.Err())

	if diff := cmp.Diff([]string{"sensor.imu.sample.acc", "sensor.imu.sample.temp"}, leafURLs(p)); diff != "" {
		t.Fatalf("signals mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, p.Signals()[0].Len())
}

func TestPackageTreeSingleLeafTopic(t *testing.T) {
	f := newFakeProvider()
	f.add("", "plant.line.speed", signal.Descriptor{Offset: 0, PayloadSize: 8, Type: signal.Double, ArrayLength: 1})

	p := NewPackageTreeExtractor(f, "plant.line.speed")
	require.True(t, p.IsSetupSuccessful())
	assert.Equal(t, []string{"plant.line.speed"}, leafURLs(p))
}

func TestPackageTreeSchemaUnavailable(t *testing.T) {
	broken := deviceProvider()
	delete(broken.info, "device.sur.tp.pos")

	tests := []struct {
		name     string
		provider *fakeProvider
		topic    string
	}{
		{"unknown topic", deviceProvider(), "device.missing"},
		{"empty topic", deviceProvider(), ""},
		{"child without info", broken, "device"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPackageTreeExtractor(tt.provider, tt.topic)
			assert.False(t, p.IsSetupSuccessful())
			require.ErrorIs(t, p.Err(), ErrSchemaUnavailable)
			assert.Nil(t, p.Tree())
			assert.Empty(t, p.Signals())
			assert.Zero(t, p.PurgeUnusedLeaves(nil))

			_, err := p.Catalog()
			require.ErrorIs(t, err, ErrSchemaUnavailable)
			p.SetMemory([]byte{1})
		})
	}

	p := NewPackageTreeExtractor(nil, "device")
	require.ErrorIs(t, p.Err(), ErrSchemaUnavailable)
}

func TestPackageTreeStrideBelowFootprint(t *testing.T) {
	f := deviceProvider()
	f.info["device.sur.tp[1]"] = signal.Descriptor{Offset: 6, PayloadSize: 8, Type: signal.Struct, ArrayLength: 1}

	p := NewPackageTreeExtractor(f, "device")
	require.ErrorIs(t, p.Err(), ErrSchemaUnavailable)
	assert.Contains(t, p.Err().Error(), ErrStrideTooSmall.Error())
}

func TestPurgeUnusedLeaves(t *testing.T) {
	objects := objectsTopic + ".objects"

	tests := []struct {
		name     string
		required []string
		want     []string
	}{
		{
			name:     "single topic",
			required: []string{objectsTopic + ".numObjects"},
			want:     []string{objectsTopic + ".numObjects"},
		},
		{
			name:     "two signals",
			required: []string{objectsTopic + ".numObjects", objects + "[0].confidence"},
			want:     []string{objectsTopic + ".numObjects", objects + "[0].confidence"},
		},
		{
			name: "indexed element request keeps the array",
			required: []string{
				objectsTopic + ".numObjects",
				objects + "[0].confidence",
				objects + "[1].State[0]",
			},
			want: []string{objectsTopic + ".numObjects", objects + "[0].confidence", objects + "[1].State"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPackageTreeExtractor(objectListProvider(), objectsTopic)
			require.True(t, p.IsSetupSuccessful(), "%v", p.Err())
			require.Len(t, p.Signals(), 42)

			removed := p.PurgeUnusedLeaves(tt.required)
			assert.Equal(t, 42-len(tt.want), removed)
			if diff := cmp.Diff(tt.want, leafURLs(p)); diff != "" {
				t.Fatalf("kept signals mismatch (-want +got):\n%s", diff)
			}

			_, ok := p.Tree().Find(objectsTopic + ".header")
			assert.False(t, ok, "empty composites are pruned")
		})
	}
}

// mergedProvider serves the object list and the device tree from one schema.
func mergedProvider() *fakeProvider {
	f := objectListProvider()
	for url, d := range deviceProvider().info {
		f.info[url] = d
	}
	for url, c := range deviceProvider().children {
		f.children[url] = c
	}
	return f
}

func TestPurgeUnusedLeavesPerTopic(t *testing.T) {
	objects := objectsTopic + ".objects"
	required := []string{
		objectsTopic + ".numObjects",
		objects + "[0].confidence",
		"device.sur[1].tp[2].vel",
		"device.sur[0].tp[3].pos",
		"device.sur[1].tp[0].pos",
	}
	provider := mergedProvider()

	list := NewPackageTreeExtractor(provider, objectsTopic)
	device := NewPackageTreeExtractor(provider, "device")
	require.True(t, list.IsSetupSuccessful(), "%v", list.Err())
	require.True(t, device.IsSetupSuccessful(), "%v", device.Err())
	require.Len(t, list.Signals(), 42)
	require.Len(t, device.Signals(), 16)

	assert.Equal(t, 40, list.PurgeUnusedLeaves(required))
	assert.Equal(t, 13, device.PurgeUnusedLeaves(required))

	assert.ElementsMatch(t, []string{objectsTopic + ".numObjects", objects + "[0].confidence"}, leafURLs(list))
	assert.ElementsMatch(t, []string{
		"device.sur[1].tp[2].vel",
		"device.sur[0].tp[3].pos",
		"device.sur[1].tp[0].pos",
	}, leafURLs(device))
}

func TestObjectListOffsets(t *testing.T) {
	p := NewPackageTreeExtractor(objectListProvider(), objectsTopic)
	require.True(t, p.IsSetupSuccessful())
	cat, err := p.Catalog()
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		d, ok := cat.Lookup(fmt.Sprintf("%s.objects[%d].State", objectsTopic, i))
		require.True(t, ok)
		assert.Equal(t, 16+72+88*i, d.Offset)
		assert.Equal(t, 4, d.ArrayLength)
	}
}
