package makegtfs

import (
	"fmt"
	"log/slog"
	"math"
)

// BuildOpts controls feed synthesis. A nil *BuildOpts means the defaults;
// an explicit zero Buffer keeps only stops lying exactly on the shape.
type BuildOpts struct {
	// Buffer is the lateral distance in meters to search for stops around
	// each trip path.
	Buffer float64
}

// Build synthesizes a complete GTFS feed from the protofeed. It validates
// first and returns every validation issue along with ErrInvalidInput if any
// input is bad; degenerate inputs (zero frequency, no nearby stops, windows
// with no active weekday) only shrink the output.
func Build(pfeed *ProtoFeed, opts *BuildOpts) (*Feed, []string, error) {
	if opts == nil {
		opts = &BuildOpts{Buffer: defaultBuffer}
	}

	issues, err := validate(pfeed, validateOpts{logLevel: slog.LevelError})
	if err != nil {
		return nil, issues, err
	}

	slog.Info("Building feed")

	proj := newProjection(pfeed.Shapes[0].Points[0])

	windowByID := make(map[string]ServiceWindow, len(pfeed.ServiceWindows))
	for _, w := range pfeed.ServiceWindows {
		windowByID[w.ID] = w
	}

	feed := &Feed{
		Agency: Agency{
			Name:     pfeed.Meta.AgencyName,
			URL:      pfeed.Meta.AgencyURL,
			Timezone: pfeed.Meta.AgencyTimezone,
		},
		Calendar: buildCalendar(pfeed.Meta),
	}
	svcByWindow := serviceByWindow(pfeed.ServiceWindows)

	feed.Routes = buildRoutes(pfeed)
	traversals, order := buildTraversals(pfeed, proj)
	for _, id := range order {
		g := traversals[id]
		for i := range g.lonlat {
			feed.Shapes = append(feed.Shapes, ShapePoint{
				ShapeID:      g.id,
				Seq:          i,
				Lon:          g.lonlat[i].X,
				Lat:          g.lonlat[i].Y,
				DistTraveled: math.Round(g.cum[i]),
			})
		}
	}

	if pfeed.Stops != nil {
		feed.Stops = pfeed.Stops
	} else {
		var ordered []*shapeGeometry
		for _, id := range order {
			ordered = append(ordered, traversals[id])
		}
		feed.Stops = deriveStops(ordered)
	}

	s := &scheduler{
		opts:         opts,
		proj:         proj,
		side:         pfeed.Meta.trafficSide(),
		speedByRType: pfeed.Meta.speedByRouteType(),
		zones:        projectZones(pfeed.SpeedZones, proj),
		traversals:   traversals,
		windowByID:   windowByID,
		svcByWindow:  svcByWindow,
		stops:        feed.Stops,
		nearbyCache:  make(map[string][]nearbyStop),
		profileCache: make(map[profileKey]speedProfile),
	}
	for _, f := range pfeed.Frequencies {
		s.scheduleRow(f, feed)
	}

	feed.dropZombies()

	slog.Info(fmt.Sprintf("Built feed: %d routes, %d stops, %d trips, %d stop times",
		len(feed.Routes), len(feed.Stops), len(feed.Trips), len(feed.StopTimes)))
	return feed, nil, nil
}

// buildRoutes derives the routes table from the frequency rows, one route
// per distinct short name, in input order.
func buildRoutes(pfeed *ProtoFeed) []Route {
	var routes []Route
	seen := make(map[string]bool)
	for _, f := range pfeed.Frequencies {
		id := routeID(f)
		if seen[id] {
			continue
		}
		seen[id] = true
		routes = append(routes, Route{
			ID:        id,
			ShortName: f.RouteShortName,
			LongName:  f.RouteLongName,
			Type:      f.routeType(),
		})
	}
	return routes
}

func routeID(f Frequency) string {
	return "r" + f.RouteShortName
}

// buildTraversals produces one direction-specific geometry per GTFS shape:
// "<shape_id>-<direction>". A shape used in both directions gets a forward
// "-1" copy and a reversed "-0" copy; a shape used in one direction gets a
// single forward copy under that direction's suffix. Shapes no frequency row
// references are skipped. Returns the geometries and their emission order.
func buildTraversals(pfeed *ProtoFeed, proj projection) (map[string]*shapeGeometry, []string) {
	dirUsage := make(map[string]int)
	for _, f := range pfeed.Frequencies {
		if cur, ok := dirUsage[f.ShapeID]; !ok {
			dirUsage[f.ShapeID] = f.Direction
		} else if cur != f.Direction || f.Direction == 2 {
			dirUsage[f.ShapeID] = 2
		}
	}

	traversals := make(map[string]*shapeGeometry)
	var order []string
	add := func(g *shapeGeometry) {
		traversals[g.id] = g
		order = append(order, g.id)
	}
	for _, ps := range pfeed.Shapes {
		usage, ok := dirUsage[ps.ID]
		if !ok {
			continue
		}
		if usage == 2 {
			fwd := newShapeGeometry(ps.ID+"-1", ps.Points, proj)
			add(fwd)
			add(fwd.reversed(ps.ID + "-0"))
		} else {
			add(newShapeGeometry(fmt.Sprintf("%s-%d", ps.ID, usage), ps.Points, proj))
		}
	}
	return traversals, order
}

type profileKey struct {
	shapeID   string
	routeType int
	fallback  float64
}

type scheduler struct {
	opts         *BuildOpts
	proj         projection
	side         string
	speedByRType map[int]float64
	zones        []projectedZone
	traversals   map[string]*shapeGeometry
	windowByID   map[string]ServiceWindow
	svcByWindow  map[string]string
	stops        []Stop

	nearbyCache  map[string][]nearbyStop
	profileCache map[profileKey]speedProfile
	loggedEmpty  map[string]bool
}

// scheduleRow expands one frequency row into trips and stop times on the
// feed, one set per direction of travel.
func (s *scheduler) scheduleRow(f Frequency, feed *Feed) {
	window := s.windowByID[f.ServiceWindowID]
	if f.Frequency == 0 {
		slog.Info(fmt.Sprintf("No trips for route %s in window %s: frequency is zero",
			f.RouteShortName, f.ServiceWindowID))
		return
	}
	if !window.hasActiveDay() {
		slog.Info(fmt.Sprintf("No trips for route %s in window %s: no active weekdays",
			f.RouteShortName, f.ServiceWindowID))
		return
	}

	start, _ := parseTimeOfDay(window.StartTime)
	end, _ := parseTimeOfDay(window.EndTime)
	headway := 3600.0 / float64(f.Frequency)

	fallback := s.speedByRType[f.routeType()]
	if f.Speed != nil {
		fallback = *f.Speed
	}

	directions := []int{f.Direction}
	if f.Direction == 2 {
		directions = []int{0, 1}
	}

	for _, dir := range directions {
		gtfsShapeID := fmt.Sprintf("%s-%d", f.ShapeID, dir)
		g := s.traversals[gtfsShapeID]

		nearby, ok := s.nearbyCache[gtfsShapeID]
		if !ok {
			nearby = nearbyStops(s.stops, g, s.proj, s.side, s.opts.Buffer)
			s.nearbyCache[gtfsShapeID] = nearby
		}
		if len(nearby) == 0 {
			if s.loggedEmpty == nil {
				s.loggedEmpty = make(map[string]bool)
			}
			if !s.loggedEmpty[gtfsShapeID] {
				slog.Info(fmt.Sprintf("No stops within %v m on the %s side of shape %s",
					s.opts.Buffer, s.side, gtfsShapeID))
				s.loggedEmpty[gtfsShapeID] = true
			}
		}

		key := profileKey{shapeID: gtfsShapeID, routeType: f.routeType(), fallback: fallback}
		profile, ok := s.profileCache[key]
		if !ok {
			profile = resolveSpeeds(g, f.routeType(), s.zones, fallback)
			s.profileCache[key] = profile
		}

		// Elapsed time to each stop is the same for every trip on this
		// traversal; only the start time shifts.
		type stopOffset struct {
			stopID  string
			dist    float64
			elapsed float64
		}
		offsets := make([]stopOffset, len(nearby))
		for i, ns := range nearby {
			offsets[i] = stopOffset{
				stopID:  ns.Stop.ID,
				dist:    ns.Dist,
				elapsed: profile.elapsed(ns.Dist),
			}
		}

		for i := 0; ; i++ {
			startTime := float64(start) + float64(i)*headway
			if startTime >= float64(end) {
				break
			}
			startSecs := int(startTime)

			tripID := fmt.Sprintf("t-%s-%s-%s-%d",
				routeID(f), f.ServiceWindowID, formatTimeOfDay(startSecs), dir)
			feed.Trips = append(feed.Trips, Trip{
				RouteID:     routeID(f),
				ID:          tripID,
				DirectionID: dir,
				ShapeID:     gtfsShapeID,
				ServiceID:   s.svcByWindow[f.ServiceWindowID],
			})

			for j, off := range offsets {
				at := formatTimeOfDay(int(startTime + off.elapsed))
				feed.StopTimes = append(feed.StopTimes, StopTime{
					TripID:       tripID,
					StopID:       off.stopID,
					Seq:          j,
					Arrival:      at,
					Departure:    at,
					DistTraveled: math.Round(off.dist),
				})
			}
		}
	}
}
