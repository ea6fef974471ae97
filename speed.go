package makegtfs

import (
	"log/slog"
	"sort"

	"github.com/tidwall/geojson/geometry"
)

const kmhToMs = 1000.0 / 3600.0

// speedBreak is one piece of a speed profile: the speed in m/s that applies
// from Dist (meters from the shape start) up to the next break.
type speedBreak struct {
	Dist   float64
	Speed  float64
	ZoneID string // empty when the fallback speed applies
}

// speedProfile is a piecewise-constant speed along a shape, covering
// [0, Length].
type speedProfile struct {
	Breaks []speedBreak
	Length float64
}

// projectedZone is a speed zone with its polygon projected into the planar
// frame shared with the shapes.
type projectedZone struct {
	SpeedZone
	poly *geometry.Poly
}

func projectZones(zones []SpeedZone, proj projection) []projectedZone {
	out := make([]projectedZone, 0, len(zones))
	for _, z := range zones {
		holes := make([][]geometry.Point, len(z.Holes))
		for i, hole := range z.Holes {
			holes[i] = proj.planeRing(hole)
		}
		out = append(out, projectedZone{
			SpeedZone: z,
			poly:      geometry.NewPoly(proj.planeRing(z.Exterior), holes, nil),
		})
	}
	return out
}

// resolveSpeeds computes the speed profile of a shape for one route type.
// Zone polygons matching the route type override the fallback speed (km/h)
// over the sub-intervals of the shape they cover. When several matching zones
// cover the same sub-interval, the first-declared zone wins.
func resolveSpeeds(g *shapeGeometry, routeType int, zones []projectedZone, fallback float64) speedProfile {
	length := g.length()

	var matching []projectedZone
	for _, z := range zones {
		if z.RouteType == routeType {
			matching = append(matching, z)
		}
	}

	// Cut the shape at every zone boundary crossing, then classify each
	// piece by its midpoint.
	cuts := []float64{0, length}
	for _, z := range matching {
		cuts = append(cuts, g.crossings(z.poly)...)
	}
	sort.Float64s(cuts)

	profile := speedProfile{Length: length}
	for i := 0; i+1 < len(cuts); i++ {
		lo, hi := cuts[i], cuts[i+1]
		if hi-lo < 1e-9 {
			continue
		}
		mid := pointAlong(g, (lo+hi)/2)

		speed := fallback
		zoneID := ""
		for _, z := range matching {
			if !z.poly.ContainsPoint(mid) {
				continue
			}
			if zoneID == "" {
				speed = z.Speed
				zoneID = z.ID
			} else {
				slog.Debug("Overlapping speed zones, keeping first declared",
					"shape", g.id, "kept", zoneID, "shadowed", z.ID)
			}
		}

		profile.Breaks = append(profile.Breaks, speedBreak{
			Dist:   lo,
			Speed:  speed * kmhToMs,
			ZoneID: zoneID,
		})
	}

	if len(profile.Breaks) == 0 {
		profile.Breaks = []speedBreak{{Dist: 0, Speed: fallback * kmhToMs}}
	}

	// Merge consecutive pieces from the same zone at the same speed.
	merged := profile.Breaks[:1]
	for _, b := range profile.Breaks[1:] {
		last := &merged[len(merged)-1]
		if b.Speed == last.Speed && b.ZoneID == last.ZoneID {
			continue
		}
		merged = append(merged, b)
	}
	profile.Breaks = merged

	return profile
}

// pointAlong returns the planar point at the given distance from the shape
// start.
func pointAlong(g *shapeGeometry, dist float64) geometry.Point {
	for i := 0; i+1 < len(g.planar); i++ {
		if dist > g.cum[i+1] {
			continue
		}
		segLen := g.cum[i+1] - g.cum[i]
		if segLen == 0 {
			continue
		}
		t := (dist - g.cum[i]) / segLen
		a, b := g.planar[i], g.planar[i+1]
		return geometry.Point{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y)}
	}
	return g.planar[len(g.planar)-1]
}

// elapsed returns the travel time in seconds from the shape start to the
// given distance, integrating segment length over segment speed.
func (p speedProfile) elapsed(dist float64) float64 {
	if dist <= 0 {
		return 0
	}
	if dist > p.Length {
		dist = p.Length
	}

	total := 0.0
	for i, b := range p.Breaks {
		hi := p.Length
		if i+1 < len(p.Breaks) {
			hi = p.Breaks[i+1].Dist
		}
		if dist < hi {
			hi = dist
		}
		if hi > b.Dist {
			total += (hi - b.Dist) / b.Speed
		}
		if hi == dist {
			break
		}
	}
	return total
}
