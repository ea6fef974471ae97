package makegtfs

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/geojson/geometry"
)

const metersPerDegree = 111194.92664455873

func TestProjectionMeters(t *testing.T) {
	proj := newProjection(geometry.Point{X: 0, Y: 0})

	p := proj.plane(geometry.Point{X: 1, Y: 0})
	assert.InDelta(t, metersPerDegree, p.X, 1e-6)
	assert.InDelta(t, 0, p.Y, 1e-9)

	p = proj.plane(geometry.Point{X: 0, Y: 1})
	assert.InDelta(t, metersPerDegree, p.Y, 1e-6)
}

func TestProjectionShrinksLongitudeWithLatitude(t *testing.T) {
	proj := newProjection(geometry.Point{X: 0, Y: 60})
	p := proj.plane(geometry.Point{X: 1, Y: 60})
	assert.InDelta(t, metersPerDegree/2, p.X, 1e-3)
}

func testShape(t *testing.T, id string, coords ...[2]float64) *shapeGeometry {
	t.Helper()
	require.GreaterOrEqual(t, len(coords), 2)
	points := make([]geometry.Point, len(coords))
	for i, c := range coords {
		points[i] = geometry.Point{X: c[0], Y: c[1]}
	}
	proj := newProjection(points[0])
	return newShapeGeometry(id, points, proj)
}

func TestCumulativeDistances(t *testing.T) {
	g := testShape(t, "s", [2]float64{0, 0}, [2]float64{0.009, 0}, [2]float64{0.018, 0})

	assert.Equal(t, 0.0, g.cum[0])
	assert.InDelta(t, 1000.754, g.cum[1], 0.01)
	assert.InDelta(t, 2001.509, g.length(), 0.01)
	for i := 1; i < len(g.cum); i++ {
		assert.GreaterOrEqual(t, g.cum[i], g.cum[i-1])
	}
}

func TestProjectPoint(t *testing.T) {
	g := testShape(t, "s", [2]float64{0, 0}, [2]float64{0.018, 0})
	proj := newProjection(geometry.Point{X: 0, Y: 0})

	// A point north of a west-to-east line is on the left of travel.
	north := g.project(proj.plane(geometry.Point{X: 0.009, Y: 0.0001}))
	assert.True(t, north.Left)
	assert.InDelta(t, 11.12, north.Offset, 0.01)
	assert.InDelta(t, g.length()/2, north.Dist, 0.01)

	south := g.project(proj.plane(geometry.Point{X: 0.009, Y: -0.0001}))
	assert.False(t, south.Left)

	onLine := g.project(proj.plane(geometry.Point{X: 0, Y: 0}))
	assert.Equal(t, 0.0, onLine.Dist)
	assert.Equal(t, 0.0, onLine.Offset)
}

func TestReversedMirrorsDistances(t *testing.T) {
	g := testShape(t, "s-1", [2]float64{0, 0}, [2]float64{0.009, 0.002}, [2]float64{0.018, 0})
	r := g.reversed("s-0")
	proj := newProjection(geometry.Point{X: 0, Y: 0})

	assert.Equal(t, "s-0", r.id)
	assert.InDelta(t, g.length(), r.length(), 1e-9)
	assert.Equal(t, 0.0, r.cum[0])

	pt := proj.plane(geometry.Point{X: 0.013, Y: 0.0011})
	forward := g.project(pt)
	reverse := r.project(pt)
	assert.InDelta(t, g.length()-forward.Dist, reverse.Dist, 1e-6)
}

func TestCrossings(t *testing.T) {
	g := testShape(t, "s", [2]float64{0, 0}, [2]float64{0.018, 0})
	proj := newProjection(geometry.Point{X: 0, Y: 0})

	ring := proj.planeRing([]geometry.Point{
		{X: 0.006, Y: -0.001}, {X: 0.012, Y: -0.001},
		{X: 0.012, Y: 0.001}, {X: 0.006, Y: 0.001}, {X: 0.006, Y: -0.001},
	})
	poly := geometry.NewPoly(ring, nil, nil)

	crossings := g.crossings(poly)
	require.Len(t, crossings, 2)
	assert.InDelta(t, 667.17, crossings[0], 0.01)
	assert.InDelta(t, 1334.34, crossings[1], 0.01)
}

func TestCrossingsDisjointPolygon(t *testing.T) {
	g := testShape(t, "s", [2]float64{0, 0}, [2]float64{0.018, 0})
	proj := newProjection(geometry.Point{X: 0, Y: 0})

	ring := proj.planeRing([]geometry.Point{
		{X: 1, Y: 1}, {X: 1.01, Y: 1}, {X: 1.01, Y: 1.01}, {X: 1, Y: 1.01}, {X: 1, Y: 1},
	})
	assert.Empty(t, g.crossings(geometry.NewPoly(ring, nil, nil)))
}

func TestSegmentIntersection(t *testing.T) {
	a := geometry.Point{X: 0, Y: 0}
	b := geometry.Point{X: 10, Y: 0}

	tt, ok := segmentIntersection(a, b, geometry.Point{X: 4, Y: -1}, geometry.Point{X: 4, Y: 1})
	require.True(t, ok)
	assert.InDelta(t, 0.4, tt, 1e-9)

	_, ok = segmentIntersection(a, b, geometry.Point{X: 0, Y: 1}, geometry.Point{X: 10, Y: 1})
	assert.False(t, ok, "parallel segments should not intersect")

	_, ok = segmentIntersection(a, b, geometry.Point{X: 20, Y: -1}, geometry.Point{X: 20, Y: 1})
	assert.False(t, ok, "intersection beyond the segment end should not count")
}

func TestProjectionRoundTripSanity(t *testing.T) {
	// One degree of latitude is about 111 km regardless of origin.
	for _, lat := range []float64{-45, 0, 36.85} {
		proj := newProjection(geometry.Point{X: 174, Y: lat})
		p := proj.plane(geometry.Point{X: 174, Y: lat + 1})
		assert.InDelta(t, metersPerDegree, math.Abs(p.Y), 1)
	}
}
