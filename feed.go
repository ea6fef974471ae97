package makegtfs

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// Feed is a fully materialized GTFS feed: every table the engine produces,
// in memory, ready to be written as a zip, a directory of CSVs, or a sqlite
// database.
type Feed struct {
	Agency    Agency
	Calendar  CalendarRow
	Routes    []Route
	Shapes    []ShapePoint
	Stops     []Stop
	Trips     []Trip
	StopTimes []StopTime
}

type Agency struct {
	Name     string
	URL      string
	Timezone string
}

type Route struct {
	ID        string
	ShortName string
	LongName  string
	Type      int
}

// ShapePoint is one vertex row of shapes.txt, with the cumulative distance
// from the shape start in meters.
type ShapePoint struct {
	ShapeID      string
	Seq          int
	Lon          float64
	Lat          float64
	DistTraveled float64
}

type Trip struct {
	RouteID     string
	ID          string
	DirectionID int
	ShapeID     string
	ServiceID   string
}

// StopTime is one row of stop_times.txt. Arrival and departure are HH:MM:SS
// strings whose hour may exceed 23 for post-midnight trips.
type StopTime struct {
	TripID       string
	StopID       string
	Seq          int
	Arrival      string
	Departure    string
	DistTraveled float64
}

// dropZombies removes trips with no stop times, then the stops, shapes, and
// routes nothing references anymore. The calendar row always stays: the feed
// keeps exactly one service entry no matter what.
func (f *Feed) dropZombies() {
	tripsWithTimes := make(map[string]bool)
	stopsUsed := make(map[string]bool)
	for _, st := range f.StopTimes {
		tripsWithTimes[st.TripID] = true
		stopsUsed[st.StopID] = true
	}

	var trips []Trip
	routesUsed := make(map[string]bool)
	shapesUsed := make(map[string]bool)
	for _, t := range f.Trips {
		if !tripsWithTimes[t.ID] {
			slog.Info(fmt.Sprintf("Dropping trip %s: no stop times", t.ID))
			continue
		}
		trips = append(trips, t)
		routesUsed[t.RouteID] = true
		shapesUsed[t.ShapeID] = true
	}
	f.Trips = trips

	var routes []Route
	for _, r := range f.Routes {
		if routesUsed[r.ID] {
			routes = append(routes, r)
		}
	}
	f.Routes = routes

	var shapes []ShapePoint
	for _, p := range f.Shapes {
		if shapesUsed[p.ShapeID] {
			shapes = append(shapes, p)
		}
	}
	f.Shapes = shapes

	var stops []Stop
	for _, s := range f.Stops {
		if stopsUsed[s.ID] {
			stops = append(stops, s)
		}
	}
	f.Stops = stops
}

type feedTable struct {
	Name   string
	Header []string
	Rows   [][]string
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// stopsHeaderExtras lists the optional stops.txt columns in output order,
// included only when some stop sets them.
var stopsHeaderExtras = []struct {
	name  string
	value func(Stop) string
}{
	{"stop_code", func(s Stop) string { return s.Code }},
	{"stop_desc", func(s Stop) string { return s.Desc }},
	{"zone_id", func(s Stop) string { return s.ZoneID }},
	{"stop_url", func(s Stop) string { return s.URL }},
	{"location_type", func(s Stop) string { return s.LocationType }},
	{"parent_station", func(s Stop) string { return s.ParentStation }},
	{"stop_timezone", func(s Stop) string { return s.Timezone }},
	{"wheelchair_boarding", func(s Stop) string { return s.WheelchairBoarding }},
}

func (f *Feed) stopsTable() feedTable {
	table := feedTable{
		Name:   "stops",
		Header: []string{"stop_id", "stop_name", "stop_lat", "stop_lon"},
	}
	var extras []func(Stop) string
	for _, col := range stopsHeaderExtras {
		for _, s := range f.Stops {
			if col.value(s) != "" {
				table.Header = append(table.Header, col.name)
				extras = append(extras, col.value)
				break
			}
		}
	}
	for _, s := range f.Stops {
		row := []string{s.ID, s.Name, formatFloat(s.Lat), formatFloat(s.Lon)}
		for _, value := range extras {
			row = append(row, value(s))
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// tables renders every feed table to rows of text, in a stable file order.
func (f *Feed) tables() []feedTable {
	agency := feedTable{
		Name:   "agency",
		Header: []string{"agency_name", "agency_url", "agency_timezone"},
		Rows:   [][]string{{f.Agency.Name, f.Agency.URL, f.Agency.Timezone}},
	}

	calendar := feedTable{
		Name: "calendar",
		Header: []string{"service_id", "monday", "tuesday", "wednesday", "thursday",
			"friday", "saturday", "sunday", "start_date", "end_date"},
	}
	calRow := []string{f.Calendar.ServiceID}
	for _, d := range f.Calendar.Weekdays {
		calRow = append(calRow, strconv.Itoa(d))
	}
	calRow = append(calRow, f.Calendar.StartDate, f.Calendar.EndDate)
	calendar.Rows = [][]string{calRow}

	routes := feedTable{
		Name:   "routes",
		Header: []string{"route_id", "route_short_name", "route_long_name", "route_type"},
	}
	for _, r := range f.Routes {
		routes.Rows = append(routes.Rows, []string{r.ID, r.ShortName, r.LongName, strconv.Itoa(r.Type)})
	}

	shapes := feedTable{
		Name:   "shapes",
		Header: []string{"shape_id", "shape_pt_sequence", "shape_pt_lon", "shape_pt_lat", "shape_dist_traveled"},
	}
	for _, p := range f.Shapes {
		shapes.Rows = append(shapes.Rows, []string{
			p.ShapeID, strconv.Itoa(p.Seq), formatFloat(p.Lon), formatFloat(p.Lat), formatFloat(p.DistTraveled),
		})
	}

	trips := feedTable{
		Name:   "trips",
		Header: []string{"route_id", "trip_id", "direction_id", "shape_id", "service_id"},
	}
	for _, t := range f.Trips {
		trips.Rows = append(trips.Rows, []string{
			t.RouteID, t.ID, strconv.Itoa(t.DirectionID), t.ShapeID, t.ServiceID,
		})
	}

	stopTimes := feedTable{
		Name: "stop_times",
		Header: []string{"trip_id", "stop_id", "stop_sequence", "arrival_time",
			"departure_time", "shape_dist_traveled"},
	}
	for _, st := range f.StopTimes {
		stopTimes.Rows = append(stopTimes.Rows, []string{
			st.TripID, st.StopID, strconv.Itoa(st.Seq), st.Arrival, st.Departure,
			formatFloat(st.DistTraveled),
		})
	}

	return []feedTable{agency, calendar, routes, f.stopsTable(), shapes, trips, stopTimes}
}

func (t feedTable) render() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Header); err != nil {
		return nil, err
	}
	for _, row := range t.Rows {
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// WriteZip writes the feed as a GTFS zip archive.
func (f *Feed) WriteZip(path string) error {
	outputF, err := os.Create(path)
	if err != nil {
		return err
	}
	outputZip := zip.NewWriter(outputF)
	defer func() {
		_ = outputZip.Close()
		_ = outputF.Close()
	}()

	for _, table := range f.tables() {
		name := table.Name + ".txt"
		w, err := outputZip.Create(name)
		if err != nil {
			return err
		}
		content, err := table.render()
		if err != nil {
			return err
		}
		if _, err := w.Write(content); err != nil {
			return err
		}
		slog.Info(fmt.Sprintf("Wrote %d rows to %s", len(table.Rows)+1, name))
	}

	if err := outputZip.Close(); err != nil {
		return err
	}
	if err := outputF.Close(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("Wrote %s", path))
	return nil
}

// WriteDir writes the feed as a directory of GTFS CSV files, creating the
// directory if needed.
func (f *Feed) WriteDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	for _, table := range f.tables() {
		name := table.Name + ".txt"
		content, err := table.render()
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(path, name), content, 0o644); err != nil {
			return err
		}
		slog.Info(fmt.Sprintf("Wrote %d rows to %s", len(table.Rows)+1, name))
	}
	slog.Info(fmt.Sprintf("Wrote %s", path))
	return nil
}
