package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ThomasChan/Farm-Land/internal/models"
)

// list builds parcels from a mask: true means the parcel has geometry.
func list(mask ...bool) []models.Parcel {
	out := make([]models.Parcel, len(mask))
	for i, drawable := range mask {
		if drawable {
			out[i].Points = []models.Point{{Lng: float64(i), Lat: float64(i)}}
		}
	}
	return out
}

func TestNext_SkipsParcelsWithoutGeometry(t *testing.T) {
	parcels := list(true, false, true)

	assert.Equal(t, 2, Next(parcels, 0))
	assert.Equal(t, 0, Next(parcels, 2), "wraps to the first drawable parcel")
}

func TestPrev_SkipsParcelsWithoutGeometry(t *testing.T) {
	parcels := list(true, false, true)

	assert.Equal(t, 0, Prev(parcels, 2))
	assert.Equal(t, 2, Prev(parcels, 0), "wraps to the last drawable parcel")
}

func TestEmptyGeometryCountsAsMissing(t *testing.T) {
	parcels := list(true, false, true)
	parcels[1].Points = []models.Point{}

	assert.Equal(t, 2, Next(parcels, 0))
}

func TestNoDrawableParcels(t *testing.T) {
	tests := []struct {
		name    string
		parcels []models.Parcel
	}{
		{name: "empty list", parcels: nil},
		{name: "no geometry anywhere", parcels: list(false, false, false)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, None, Next(tt.parcels, 0))
			assert.Equal(t, None, Prev(tt.parcels, 0))
			assert.Equal(t, None, First(tt.parcels))
			assert.Equal(t, None, Last(tt.parcels))
		})
	}
}

func TestSingleDrawableParcel(t *testing.T) {
	parcels := list(false, true, false)

	assert.Equal(t, 1, Next(parcels, 1))
	assert.Equal(t, 1, Prev(parcels, 1))
}

func TestRoundTrip(t *testing.T) {
	masks := [][]bool{
		{true, true},
		{true, false, true},
		{true, true, true, true},
		{false, true, false, true, false, true},
		{true, false, false, true, true},
	}

	for _, mask := range masks {
		parcels := list(mask...)
		for start := range parcels {
			if !parcels[start].HasGeometry() {
				continue
			}
			assert.Equal(t, start, Prev(parcels, Next(parcels, start)), "next then prev from %d in %v", start, mask)
			assert.Equal(t, start, Next(parcels, Prev(parcels, start)), "prev then next from %d in %v", start, mask)
		}
	}
}

func TestOutOfRangeStart(t *testing.T) {
	parcels := list(true, false, true)

	assert.Equal(t, 0, Next(parcels, None))
	assert.Equal(t, 2, Prev(parcels, None))
	assert.Equal(t, 0, Next(parcels, 10))
	assert.Equal(t, 2, Prev(parcels, 10))
}
