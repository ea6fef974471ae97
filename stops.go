package makegtfs

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/tidwall/geojson/geometry"
)

// Meters to buffer trip paths to find stops.
const defaultBuffer = 10

// Stops closer to the line than this count for either side. Matches the
// sliver the original tool buffered side polygons by so that on-line stops
// are never lost to the directional split.
const onLineEpsilon = 1e-3

// coordKey rounds a coordinate to 5 decimal places (about a meter), the
// resolution at which two stops are considered the same place.
func coordKey(lon, lat float64) string {
	return strconv.FormatFloat(lon, 'f', 5, 64) + "," + strconv.FormatFloat(lat, 'f', 5, 64)
}

// deriveStops creates one stop at the first and last vertex of each shape,
// collapsing duplicate coordinates to a single stop. A loop shape yields one
// stop, and shapes sharing an endpoint share a stop.
func deriveStops(shapes []*shapeGeometry) []Stop {
	var stops []Stop
	seen := make(map[string]bool)
	for _, g := range shapes {
		endpoints := []geometry.Point{g.lonlat[0], g.lonlat[len(g.lonlat)-1]}
		for i, pt := range endpoints {
			key := coordKey(pt.X, pt.Y)
			if seen[key] {
				continue
			}
			seen[key] = true
			stops = append(stops, Stop{
				ID:   fmt.Sprintf("stp-%s-%d", g.id, i),
				Name: fmt.Sprintf("Stop %d on shape %s", i, g.id),
				Lon:  pt.X,
				Lat:  pt.Y,
			})
		}
	}
	return stops
}

// nearbyStop is a stop within reach of a shape, positioned by its distance
// along the shape.
type nearbyStop struct {
	Stop Stop
	Dist float64
}

// nearbyStops returns the stops within buffer meters of the shape on the
// given side of travel ("left" or "right"), ordered by distance along the
// shape. The ordering matches physical travel order, which stop time
// generation relies on. A zero buffer, or side "both", skips the directional
// split and keeps any stop within reach on either side.
func nearbyStops(stops []Stop, g *shapeGeometry, proj projection, side string, buffer float64) []nearbyStop {
	twoSided := side == "both" || buffer == 0

	var out []nearbyStop
	for _, s := range stops {
		pos := g.project(proj.plane(geometry.Point{X: s.Lon, Y: s.Lat}))
		if pos.Offset > buffer {
			continue
		}
		if !twoSided && pos.Offset > onLineEpsilon {
			if (side == "left") != pos.Left {
				continue
			}
		}
		out = append(out, nearbyStop{Stop: s, Dist: pos.Dist})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Dist < out[j].Dist })
	return out
}
