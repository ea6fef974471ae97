package makegtfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/geojson/geometry"
)

func TestDeriveStopsEndpoints(t *testing.T) {
	a := testShape(t, "a-1", [2]float64{0, 0}, [2]float64{0.018, 0})
	b := testShape(t, "b-0", [2]float64{0.018, 0}, [2]float64{0.018, 0.01})

	stops := deriveStops([]*shapeGeometry{a, b})

	// The shapes share an endpoint, so three stops rather than four.
	require.Len(t, stops, 3)
	assert.Equal(t, "stp-a-1-0", stops[0].ID)
	assert.Equal(t, "Stop 0 on shape a-1", stops[0].Name)
	assert.Equal(t, "stp-a-1-1", stops[1].ID)
	assert.Equal(t, "stp-b-0-1", stops[2].ID)
	assert.Equal(t, 0.018, stops[2].Lon)
	assert.Equal(t, 0.01, stops[2].Lat)
}

func TestDeriveStopsLoop(t *testing.T) {
	loop := testShape(t, "loop-0",
		[2]float64{0.03, 0}, [2]float64{0.03, 0.005}, [2]float64{0.035, 0.005}, [2]float64{0.03, 0})

	stops := deriveStops([]*shapeGeometry{loop})

	require.Len(t, stops, 1)
	assert.Equal(t, "stp-loop-0-0", stops[0].ID)
}

func TestNearbyStopsSideFilter(t *testing.T) {
	// Travel is west to east, so north is left and south is right.
	g := testShape(t, "s", [2]float64{0, 0}, [2]float64{0.018, 0})
	proj := newProjection(geometry.Point{X: 0, Y: 0})
	north := Stop{ID: "north", Lon: 0.006, Lat: 0.00005}
	south := Stop{ID: "south", Lon: 0.012, Lat: -0.00005}
	farSouth := Stop{ID: "far-south", Lon: 0.009, Lat: -0.001}
	stops := []Stop{south, farSouth, north}

	right := nearbyStops(stops, g, proj, "right", 10)
	require.Len(t, right, 1)
	assert.Equal(t, "south", right[0].Stop.ID)
	assert.InDelta(t, 1334.34, right[0].Dist, 0.01)

	left := nearbyStops(stops, g, proj, "left", 10)
	require.Len(t, left, 1)
	assert.Equal(t, "north", left[0].Stop.ID)

	both := nearbyStops(stops, g, proj, "both", 10)
	require.Len(t, both, 2)
	assert.Equal(t, "north", both[0].Stop.ID, "should be ordered by distance along the shape")
	assert.Equal(t, "south", both[1].Stop.ID)
}

func TestNearbyStopsZeroBuffer(t *testing.T) {
	g := testShape(t, "s", [2]float64{0, 0}, [2]float64{0.018, 0})
	proj := newProjection(geometry.Point{X: 0, Y: 0})
	stops := []Stop{
		{ID: "start", Lon: 0, Lat: 0},
		{ID: "end", Lon: 0.018, Lat: 0},
		{ID: "offset", Lon: 0.009, Lat: -0.00005},
	}

	got := nearbyStops(stops, g, proj, "right", 0)

	require.Len(t, got, 2)
	assert.Equal(t, "start", got[0].Stop.ID)
	assert.Equal(t, "end", got[1].Stop.ID)
}

func TestNearbyStopsOnLineCountsForEitherSide(t *testing.T) {
	g := testShape(t, "s", [2]float64{0, 0}, [2]float64{0.018, 0})
	proj := newProjection(geometry.Point{X: 0, Y: 0})
	onLine := []Stop{{ID: "mid", Lon: 0.009, Lat: 0}}

	for _, side := range []string{"left", "right", "both"} {
		got := nearbyStops(onLine, g, proj, side, 10)
		require.Len(t, got, 1, "side %s", side)
		assert.Equal(t, "mid", got[0].Stop.ID)
	}
}

func TestCoordKey(t *testing.T) {
	assert.Equal(t, coordKey(0.018, 0), coordKey(0.018000001, 0))
	assert.NotEqual(t, coordKey(0.018, 0), coordKey(0.0181, 0))
}
