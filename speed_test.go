package makegtfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/geojson/geometry"
)

func rectZone(id string, routeType int, speed, lon0, lat0, lon1, lat1 float64) SpeedZone {
	return SpeedZone{
		ID:        id,
		RouteType: routeType,
		Speed:     speed,
		Exterior: []geometry.Point{
			{X: lon0, Y: lat0}, {X: lon1, Y: lat0},
			{X: lon1, Y: lat1}, {X: lon0, Y: lat1}, {X: lon0, Y: lat0},
		},
	}
}

func TestResolveSpeedsNoZones(t *testing.T) {
	g := testShape(t, "s-0", [2]float64{0, 0}, [2]float64{0.009, 0})

	profile := resolveSpeeds(g, 3, nil, 36)

	require.Len(t, profile.Breaks, 1)
	assert.Equal(t, 0.0, profile.Breaks[0].Dist)
	assert.Equal(t, 10.0, profile.Breaks[0].Speed) // 36 km/h
	assert.Equal(t, "", profile.Breaks[0].ZoneID)
	assert.InDelta(t, g.length()/10, profile.elapsed(g.length()), 1e-9)
}

func TestResolveSpeedsZoneBreaks(t *testing.T) {
	g := testShape(t, "main-1", [2]float64{0, 0}, [2]float64{0.018, 0})
	proj := newProjection(geometry.Point{X: 0, Y: 0})
	zones := projectZones([]SpeedZone{
		rectZone("z-slow", 3, 18, 0.006, -0.001, 0.012, 0.001),
	}, proj)

	profile := resolveSpeeds(g, 3, zones, 36)

	require.Len(t, profile.Breaks, 3)
	assert.Equal(t, "", profile.Breaks[0].ZoneID)
	assert.Equal(t, 10.0, profile.Breaks[0].Speed)
	assert.Equal(t, "z-slow", profile.Breaks[1].ZoneID)
	assert.Equal(t, 5.0, profile.Breaks[1].Speed)
	assert.InDelta(t, 667.17, profile.Breaks[1].Dist, 0.01)
	assert.Equal(t, "", profile.Breaks[2].ZoneID)
	assert.InDelta(t, 1334.34, profile.Breaks[2].Dist, 0.01)

	// First third at 10 m/s, middle third at 5 m/s, last third at 10 m/s.
	assert.InDelta(t, 266.87, profile.elapsed(g.length()), 0.01)
	assert.InDelta(t, 33.3, profile.elapsed(333), 0.01)
}

func TestResolveSpeedsOverlapFirstDeclaredWins(t *testing.T) {
	g := testShape(t, "main-1", [2]float64{0, 0}, [2]float64{0.018, 0})
	proj := newProjection(geometry.Point{X: 0, Y: 0})
	a := rectZone("z-a", 3, 18, 0.006, -0.001, 0.012, 0.001)
	b := rectZone("z-b", 3, 54, 0.006, -0.001, 0.012, 0.001)

	profile := resolveSpeeds(g, 3, projectZones([]SpeedZone{a, b}, proj), 36)
	require.Len(t, profile.Breaks, 3)
	assert.Equal(t, "z-a", profile.Breaks[1].ZoneID)
	assert.Equal(t, 5.0, profile.Breaks[1].Speed)

	profile = resolveSpeeds(g, 3, projectZones([]SpeedZone{b, a}, proj), 36)
	require.Len(t, profile.Breaks, 3)
	assert.Equal(t, "z-b", profile.Breaks[1].ZoneID)
	assert.Equal(t, 15.0, profile.Breaks[1].Speed)
}

func TestResolveSpeedsIgnoresOtherRouteTypes(t *testing.T) {
	g := testShape(t, "main-1", [2]float64{0, 0}, [2]float64{0.018, 0})
	proj := newProjection(geometry.Point{X: 0, Y: 0})
	zones := projectZones([]SpeedZone{
		rectZone("z-rail", 2, 80, 0.006, -0.001, 0.012, 0.001),
	}, proj)

	profile := resolveSpeeds(g, 3, zones, 36)

	require.Len(t, profile.Breaks, 1)
	assert.Equal(t, 10.0, profile.Breaks[0].Speed)
}

func TestElapsedClampsAndIsMonotonic(t *testing.T) {
	g := testShape(t, "main-1", [2]float64{0, 0}, [2]float64{0.018, 0})
	proj := newProjection(geometry.Point{X: 0, Y: 0})
	zones := projectZones([]SpeedZone{
		rectZone("z-slow", 3, 18, 0.006, -0.001, 0.012, 0.001),
	}, proj)
	profile := resolveSpeeds(g, 3, zones, 36)

	assert.Equal(t, 0.0, profile.elapsed(-5))
	assert.Equal(t, profile.elapsed(g.length()), profile.elapsed(g.length()+100))

	prev := 0.0
	for d := 0.0; d <= g.length(); d += 50 {
		cur := profile.elapsed(d)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestPointAlong(t *testing.T) {
	g := testShape(t, "s", [2]float64{0, 0}, [2]float64{0.018, 0})

	mid := pointAlong(g, g.length()/2)
	assert.InDelta(t, g.length()/2, mid.X, 1e-6)
	assert.InDelta(t, 0, mid.Y, 1e-9)

	end := pointAlong(g, g.length()+10)
	assert.InDelta(t, g.length(), end.X, 1e-6)
}
