package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// expectedMatrix rows are the requested type, columns the signal type, both in
// ScalarType order.
var expectedMatrix = [numTypes][numTypes]int{
	{0, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 5},
	{1, 0, 0, 3, 4, 4, 4, 4, 4, 4, 4, 4, 5},
	{1, 0, 0, 3, 4, 4, 4, 4, 4, 4, 4, 4, 5},
	{1, 2, 2, 0, 4, 4, 4, 4, 4, 4, 4, 4, 5},
	{1, 0, 0, 4, 0, 3, 4, 4, 4, 4, 4, 4, 5},
	{1, 1, 1, 0, 2, 0, 4, 4, 4, 4, 4, 4, 5},
	{1, 0, 0, 3, 0, 3, 0, 3, 4, 4, 2, 4, 5},
	{1, 0, 0, 0, 0, 0, 4, 0, 4, 4, 4, 4, 5},
	{1, 1, 1, 3, 1, 3, 1, 3, 0, 3, 2, 2, 5},
	{1, 1, 1, 1, 1, 1, 1, 1, 2, 2, 2, 2, 5},
	{1, 1, 1, 1, 1, 1, 2, 1, 4, 4, 0, 4, 5},
	{1, 1, 1, 1, 1, 1, 1, 1, 2, 1, 1, 0, 5},
	{5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 0},
}

func TestClassifyFullMatrix(t *testing.T) {
	for to := 0; to < numTypes; to++ {
		for from := 0; from < numTypes; from++ {
			got := Classify(ScalarType(from), ScalarType(to))
			want := Classification(expectedMatrix[to][from])
			assert.Equalf(t, want, got, "Classify(%s, %s)", ScalarType(from), ScalarType(to))
		}
	}
}

func TestClassifyKnownPairs(t *testing.T) {
	tests := []struct {
		from, to ScalarType
		want     Classification
	}{
		{Float, Float, Fit},
		{Int8, Int16, Fit},
		{Int8, UInt16, Overflow},
		{Int64, Int8, Overflow},
		{Int32, Int16, Overflow},
		{Int16, UInt32, NarrowedPossibleLoss},
		{Int32, Float, WidenedNoLoss},
		{UInt32, Float, ChangedWithDataLoss},
		{Double, Struct, Invalid},
		{Struct, Int32, Invalid},
		{Struct, Struct, Fit},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.from, tt.to))
		})
	}
}

func TestClassifyOutOfRangeIsInvalid(t *testing.T) {
	assert.Equal(t, Invalid, Classify(ScalarType(42), Float))
	assert.Equal(t, Invalid, Classify(Float, ScalarType(200)))
}

func TestSizeOf(t *testing.T) {
	want := map[ScalarType]int{
		Bool: 1, Char: 1, UInt8: 1, Int8: 1,
		UInt16: 2, Int16: 2,
		UInt32: 4, Int32: 4, Float: 4,
		UInt64: 8, Int64: 8, Double: 8,
	}
	for typ, size := range want {
		got, err := SizeOf(typ)
		require.NoError(t, err)
		assert.Equal(t, size, got, typ.String())
	}

	_, err := SizeOf(Struct)
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestNameOfTypeOfRoundTrip(t *testing.T) {
	for i := 0; i < numTypes; i++ {
		typ := ScalarType(i)
		back, ok := TypeOf(NameOf(typ))
		require.True(t, ok, typ.String())
		assert.Equal(t, typ, back)
	}

	_, ok := TypeOf("Float")
	assert.False(t, ok, "type names are case-sensitive")
	_, ok = TypeOf(" float")
	assert.False(t, ok, "type names are not normalized")
	assert.Equal(t, "", NameOf(ScalarType(99)))
}

func TestTypeForAndCheckTypeMatch(t *testing.T) {
	assert.Equal(t, Bool, TypeFor[bool]())
	assert.Equal(t, Char, TypeFor[Character]())
	assert.Equal(t, UInt8, TypeFor[uint8]())
	assert.Equal(t, Int64, TypeFor[int64]())
	assert.Equal(t, Float, TypeFor[float32]())
	assert.Equal(t, Double, TypeFor[float64]())

	assert.True(t, CheckTypeMatch[bool](Bool))
	assert.False(t, CheckTypeMatch[bool](UInt8))
	assert.True(t, CheckTypeMatch[float32](Float))
	assert.True(t, CheckTypeMatch[uint8](Char))
	assert.False(t, CheckTypeMatch[float64](Float))
	assert.False(t, CheckTypeMatch[int64](Int64))
}
