package makegtfs

import (
	"math"
	"sort"

	"github.com/tidwall/geojson/geometry"
)

const earthRadiusMeters = 6371000

// projection maps WGS84 lon/lat onto a local equirectangular plane in meters.
// Buffer widths and shape distances are metric only on that plane, so every
// geometric computation in this package happens after projecting through one
// of these.
type projection struct {
	lon0, lat0 float64
	mPerDegLat float64
	mPerDegLon float64
}

func newProjection(origin geometry.Point) projection {
	mPerDeg := earthRadiusMeters * math.Pi / 180
	return projection{
		lon0:       origin.X,
		lat0:       origin.Y,
		mPerDegLat: mPerDeg,
		mPerDegLon: mPerDeg * math.Cos(origin.Y*math.Pi/180),
	}
}

// plane projects a lon/lat point (X=lon, Y=lat) to meters.
func (p projection) plane(ll geometry.Point) geometry.Point {
	return geometry.Point{
		X: (ll.X - p.lon0) * p.mPerDegLon,
		Y: (ll.Y - p.lat0) * p.mPerDegLat,
	}
}

func (p projection) planeRing(ring []geometry.Point) []geometry.Point {
	out := make([]geometry.Point, len(ring))
	for i, ll := range ring {
		out[i] = p.plane(ll)
	}
	return out
}

// shapeGeometry is one route path: its WGS84 vertices for output, its planar
// vertices for geometry work, and the cumulative distance in meters at each
// vertex (cum[0] = 0, non-decreasing).
type shapeGeometry struct {
	id     string
	lonlat []geometry.Point
	planar []geometry.Point
	cum    []float64
}

func newShapeGeometry(id string, lonlat []geometry.Point, proj projection) *shapeGeometry {
	planar := proj.planeRing(lonlat)
	cum := make([]float64, len(planar))
	for i := 1; i < len(planar); i++ {
		cum[i] = cum[i-1] + dist2D(planar[i-1], planar[i])
	}
	return &shapeGeometry{id: id, lonlat: lonlat, planar: planar, cum: cum}
}

func (g *shapeGeometry) length() float64 {
	if len(g.cum) == 0 {
		return 0
	}
	return g.cum[len(g.cum)-1]
}

// reversed returns the shape traversed end to start under a new ID.
func (g *shapeGeometry) reversed(id string) *shapeGeometry {
	n := len(g.lonlat)
	lonlat := make([]geometry.Point, n)
	planar := make([]geometry.Point, n)
	cum := make([]float64, n)
	total := g.length()
	for i := 0; i < n; i++ {
		lonlat[i] = g.lonlat[n-1-i]
		planar[i] = g.planar[n-1-i]
		cum[i] = total - g.cum[n-1-i]
	}
	return &shapeGeometry{id: id, lonlat: lonlat, planar: planar, cum: cum}
}

// pointOnShape is the result of projecting a point onto a shape: the distance
// from the shape start to the nearest point of the shape, the lateral offset
// in meters, and which side of travel the point lies on.
type pointOnShape struct {
	Dist   float64
	Offset float64
	Left   bool
}

// project finds the nearest point of the shape to the given planar point.
// Ties between segments resolve to the earliest distance along the shape.
func (g *shapeGeometry) project(pt geometry.Point) pointOnShape {
	best := pointOnShape{Offset: math.Inf(1)}
	for i := 0; i+1 < len(g.planar); i++ {
		a, b := g.planar[i], g.planar[i+1]
		t := segmentParam(a, b, pt)
		nearest := geometry.Point{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y)}
		offset := dist2D(pt, nearest)
		if offset < best.Offset-1e-9 {
			cross := (b.X-a.X)*(pt.Y-a.Y) - (b.Y-a.Y)*(pt.X-a.X)
			best = pointOnShape{
				Dist:   g.cum[i] + t*(g.cum[i+1]-g.cum[i]),
				Offset: offset,
				Left:   cross > 0,
			}
		}
	}
	return best
}

// crossings returns the sorted distances along the shape at which it crosses
// the boundary of the given planar polygon.
func (g *shapeGeometry) crossings(poly *geometry.Poly) []float64 {
	var out []float64
	rings := make([]geometry.Ring, 0, 1+len(poly.Holes))
	rings = append(rings, poly.Exterior)
	rings = append(rings, poly.Holes...)
	for i := 0; i+1 < len(g.planar); i++ {
		a, b := g.planar[i], g.planar[i+1]
		for _, ring := range rings {
			for s := 0; s < ring.NumSegments(); s++ {
				seg := ring.SegmentAt(s)
				if t, ok := segmentIntersection(a, b, seg.A, seg.B); ok {
					out = append(out, g.cum[i]+t*(g.cum[i+1]-g.cum[i]))
				}
			}
		}
	}
	sort.Float64s(out)
	return out
}

func dist2D(a, b geometry.Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// segmentParam returns the parameter in [0, 1] of the point on segment ab
// nearest to p.
func segmentParam(a, b, p geometry.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	den := dx*dx + dy*dy
	if den == 0 {
		return 0
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / den
	return math.Max(0, math.Min(1, t))
}

// segmentIntersection reports whether segments ab and cd intersect and, if
// so, the parameter along ab of the intersection point.
func segmentIntersection(a, b, c, d geometry.Point) (float64, bool) {
	rx, ry := b.X-a.X, b.Y-a.Y
	sx, sy := d.X-c.X, d.Y-c.Y
	den := rx*sy - ry*sx
	if den == 0 {
		return 0, false
	}
	t := ((c.X-a.X)*sy - (c.Y-a.Y)*sx) / den
	u := ((c.X-a.X)*ry - (c.Y-a.Y)*rx) / den
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return 0, false
	}
	return t, true
}
