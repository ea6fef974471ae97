package makegtfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"
)

var ErrInvalidInput = errors.New("invalid input")

var (
	urlPattern  = regexp.MustCompile(`(?i)^https?://\S+$`)
	datePattern = regexp.MustCompile(`^\d{8}$`)
)

func validRouteType(t int) bool {
	return (t >= 0 && t <= 7) || t == 11 || t == 12
}

type validateOpts struct {
	logLevel slog.Level
}

// validate checks the protofeed semantically and returns all problems found,
// not just the first. A non-empty list comes with ErrInvalidInput. Degenerate
// but valid inputs (zero frequency, no speed zones, no active weekdays) pass.
func validate(pfeed *ProtoFeed, opts validateOpts) ([]string, error) {
	v := &validator{opts: opts}

	slog.Info("Validating protofeed")

	v.checkMeta(pfeed.Meta)
	v.checkServiceWindows(pfeed.ServiceWindows)
	v.checkShapes(pfeed.Shapes)
	v.checkFrequencies(pfeed)
	v.checkSpeedZones(pfeed.SpeedZones)
	v.checkStops(pfeed.Stops)

	if len(v.issues) > 0 {
		return v.issues, ErrInvalidInput
	}
	return nil, nil
}

type validator struct {
	opts   validateOpts
	issues []string
}

func (v *validator) append(msg string, args ...any) {
	issue := fmt.Sprintf(msg, args...)
	slog.Log(context.Background(), v.opts.logLevel, issue)
	v.issues = append(v.issues, issue)
}

func (v *validator) checkMeta(meta Meta) {
	if meta.AgencyName == "" {
		v.append("meta.csv: agency_name is blank")
	}
	if !urlPattern.MatchString(meta.AgencyURL) {
		v.append("meta.csv: agency_url %q is not a valid URL", meta.AgencyURL)
	}
	if _, err := time.LoadLocation(meta.AgencyTimezone); err != nil || meta.AgencyTimezone == "" {
		v.append("meta.csv: agency_timezone %q is not a valid timezone", meta.AgencyTimezone)
	}
	for _, date := range []struct{ name, value string }{
		{"start_date", meta.StartDate},
		{"end_date", meta.EndDate},
	} {
		if !datePattern.MatchString(date.value) {
			v.append("meta.csv: %s %q is not in YYYYMMDD format", date.name, date.value)
		}
	}
	if datePattern.MatchString(meta.StartDate) && datePattern.MatchString(meta.EndDate) &&
		meta.StartDate > meta.EndDate {
		v.append("meta.csv: start_date %s is after end_date %s", meta.StartDate, meta.EndDate)
	}
	if meta.TrafficSide != "" && meta.TrafficSide != "left" && meta.TrafficSide != "right" {
		v.append("meta.csv: traffic_side %q must be left or right", meta.TrafficSide)
	}
	for rtype, speed := range meta.speedByRouteType() {
		if speed <= 0 {
			v.append("meta.csv: speed_route_type_%d must be positive, got %v", rtype, speed)
		}
	}
}

func (v *validator) checkServiceWindows(windows []ServiceWindow) {
	if len(windows) == 0 {
		v.append("service_windows.csv has no rows")
	}
	seen := make(map[string]bool)
	for _, w := range windows {
		if w.ID == "" {
			v.append("service_windows.csv: service_window_id is blank")
			continue
		}
		if seen[w.ID] {
			v.append("service_windows.csv: duplicate service_window_id %s", w.ID)
		}
		seen[w.ID] = true

		start, err := parseTimeOfDay(w.StartTime)
		if err != nil {
			v.append("service window %s: %v", w.ID, err)
		}
		end, err2 := parseTimeOfDay(w.EndTime)
		if err2 != nil {
			v.append("service window %s: %v", w.ID, err2)
		}
		if err == nil && err2 == nil && start >= end {
			v.append("service window %s: start_time %s is not before end_time %s", w.ID, w.StartTime, w.EndTime)
		}
		for i, d := range w.weekdays() {
			if d != 0 && d != 1 {
				v.append("service window %s: weekday flag %d is %d, must be 0 or 1", w.ID, i, d)
			}
		}
	}
}

func (v *validator) checkShapes(shapes []ProtoShape) {
	if len(shapes) == 0 {
		v.append("shapes.geojson has no features")
	}
	seen := make(map[string]bool)
	for _, s := range shapes {
		if seen[s.ID] {
			v.append("shapes.geojson: duplicate shape_id %s", s.ID)
		}
		seen[s.ID] = true

		if len(s.Points) < 2 {
			v.append("shape %s has %d vertices, need at least 2", s.ID, len(s.Points))
			continue
		}
		degenerate := true
		for i := 1; i < len(s.Points); i++ {
			if s.Points[i] != s.Points[i-1] {
				degenerate = false
				break
			}
		}
		if degenerate {
			v.append("shape %s has zero length", s.ID)
		}
	}
}

func (v *validator) checkFrequencies(pfeed *ProtoFeed) {
	if len(pfeed.Frequencies) == 0 {
		v.append("frequencies.csv has no rows")
	}
	shapeIDs := make(map[string]bool, len(pfeed.Shapes))
	for _, s := range pfeed.Shapes {
		shapeIDs[s.ID] = true
	}
	windowIDs := make(map[string]bool, len(pfeed.ServiceWindows))
	for _, w := range pfeed.ServiceWindows {
		windowIDs[w.ID] = true
	}

	for i, f := range pfeed.Frequencies {
		row := i + 1
		if f.RouteShortName == "" {
			v.append("frequencies.csv row %d: route_short_name is blank", row)
		}
		if f.RouteLongName == "" {
			v.append("frequencies.csv row %d: route_long_name is blank", row)
		}
		if !validRouteType(f.routeType()) {
			v.append("frequencies.csv row %d: route_type %d is not a GTFS route type", row, f.routeType())
		}
		if f.Direction < 0 || f.Direction > 2 {
			v.append("frequencies.csv row %d: direction %d must be 0, 1, or 2", row, f.Direction)
		}
		if f.Frequency < 0 {
			v.append("frequencies.csv row %d: frequency %d must be non-negative", row, f.Frequency)
		}
		if f.Speed != nil && *f.Speed <= 0 {
			v.append("frequencies.csv row %d: speed %v must be positive", row, *f.Speed)
		}
		if !shapeIDs[f.ShapeID] {
			v.append("frequencies.csv row %d: %s is not a valid shape_id", row, f.ShapeID)
		}
		if !windowIDs[f.ServiceWindowID] {
			v.append("frequencies.csv row %d: %s is not a valid service_window_id", row, f.ServiceWindowID)
		}
	}
}

func (v *validator) checkSpeedZones(zones []SpeedZone) {
	for _, z := range zones {
		if z.Speed <= 0 {
			v.append("speed zone %s: speed %v must be positive", z.ID, z.Speed)
		}
		if !validRouteType(z.RouteType) {
			v.append("speed zone %s: route_type %d is not a GTFS route type", z.ID, z.RouteType)
		}
	}
}

func (v *validator) checkStops(stops []Stop) {
	seen := make(map[string]bool)
	for _, s := range stops {
		if s.ID == "" {
			v.append("stops.csv: stop_id is blank")
			continue
		}
		if seen[s.ID] {
			v.append("stops.csv: duplicate stop_id %s", s.ID)
		}
		seen[s.ID] = true

		if s.Name == "" {
			v.append("stop %s: stop_name is blank", s.ID)
		}
		if s.Lat < -90 || s.Lat > 90 {
			v.append("stop %s: stop_lat %v is out of range", s.ID, s.Lat)
		}
		if s.Lon < -180 || s.Lon > 180 {
			v.append("stop %s: stop_lon %v is out of range", s.ID, s.Lon)
		}
	}
}
