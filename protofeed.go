package makegtfs

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/tidwall/geojson"
	"github.com/tidwall/geojson/geometry"
	"github.com/tidwall/gjson"
)

// Default average speeds in km/h by GTFS route type, used when neither the
// frequency row nor meta.csv supplies one.
var defaultSpeedByRouteType = map[int]float64{
	0:  11, // tram
	1:  30, // subway
	2:  45, // rail
	3:  22, // bus
	4:  22, // ferry
	5:  13, // cable tram
	6:  20, // aerial lift
	7:  18, // funicular
	11: 22, // trolleybus
	12: 65, // monorail
}

// Meta holds the single-row network metadata from meta.csv.
type Meta struct {
	AgencyName     string `csv:"agency_name"`
	AgencyURL      string `csv:"agency_url"`
	AgencyTimezone string `csv:"agency_timezone"`
	StartDate      string `csv:"start_date"`
	EndDate        string `csv:"end_date"`
	// TrafficSide overrides the timezone-derived traffic hand ("left" or
	// "right"). Blank means derive it.
	TrafficSide string `csv:"traffic_side"`

	SpeedRouteType0  *float64 `csv:"speed_route_type_0,omitempty"`
	SpeedRouteType1  *float64 `csv:"speed_route_type_1,omitempty"`
	SpeedRouteType2  *float64 `csv:"speed_route_type_2,omitempty"`
	SpeedRouteType3  *float64 `csv:"speed_route_type_3,omitempty"`
	SpeedRouteType4  *float64 `csv:"speed_route_type_4,omitempty"`
	SpeedRouteType5  *float64 `csv:"speed_route_type_5,omitempty"`
	SpeedRouteType6  *float64 `csv:"speed_route_type_6,omitempty"`
	SpeedRouteType7  *float64 `csv:"speed_route_type_7,omitempty"`
	SpeedRouteType11 *float64 `csv:"speed_route_type_11,omitempty"`
	SpeedRouteType12 *float64 `csv:"speed_route_type_12,omitempty"`
}

// speedByRouteType returns the default speed table overlaid with any
// per-route-type speeds from meta.csv.
func (m Meta) speedByRouteType() map[int]float64 {
	overrides := map[int]*float64{
		0: m.SpeedRouteType0, 1: m.SpeedRouteType1, 2: m.SpeedRouteType2,
		3: m.SpeedRouteType3, 4: m.SpeedRouteType4, 5: m.SpeedRouteType5,
		6: m.SpeedRouteType6, 7: m.SpeedRouteType7,
		11: m.SpeedRouteType11, 12: m.SpeedRouteType12,
	}
	out := make(map[int]float64, len(defaultSpeedByRouteType))
	for rtype, speed := range defaultSpeedByRouteType {
		if o := overrides[rtype]; o != nil {
			speed = *o
		}
		out[rtype] = speed
	}
	return out
}

// trafficSide returns "left" or "right": the explicit meta value if present,
// else the convention for the agency timezone.
func (m Meta) trafficSide() string {
	if m.TrafficSide != "" {
		return m.TrafficSide
	}
	return trafficSideForTimezone(m.AgencyTimezone)
}

// Frequency is one row of frequencies.csv: a route running at a constant
// vehicles-per-hour rate over one service window.
type Frequency struct {
	RouteShortName  string   `csv:"route_short_name"`
	RouteLongName   string   `csv:"route_long_name"`
	RouteType       *int     `csv:"route_type,omitempty"`
	ServiceWindowID string   `csv:"service_window_id"`
	Direction       int      `csv:"direction"`
	Frequency       int      `csv:"frequency"`
	ShapeID         string   `csv:"shape_id"`
	Speed           *float64 `csv:"speed,omitempty"`
}

// routeType returns the row's route type, defaulting to 3 (bus).
func (f Frequency) routeType() int {
	if f.RouteType == nil {
		return 3
	}
	return *f.RouteType
}

// ProtoShape is a route path as read from shapes.geojson.
type ProtoShape struct {
	ID     string
	Points []geometry.Point // lon/lat
}

// SpeedZone is a polygon that overrides travel speed for one route type.
type SpeedZone struct {
	ID        string
	RouteType int
	Speed     float64 // km/h
	Exterior  []geometry.Point // lon/lat
	Holes     [][]geometry.Point
}

// Stop is one row of stops.csv or a stop derived from shape endpoints. The
// optional GTFS columns are carried through as text.
type Stop struct {
	ID                 string  `csv:"stop_id"`
	Code               string  `csv:"stop_code"`
	Name               string  `csv:"stop_name"`
	Desc               string  `csv:"stop_desc"`
	Lat                float64 `csv:"stop_lat"`
	Lon                float64 `csv:"stop_lon"`
	ZoneID             string  `csv:"zone_id"`
	URL                string  `csv:"stop_url"`
	LocationType       string  `csv:"location_type"`
	ParentStation      string  `csv:"parent_station"`
	Timezone           string  `csv:"stop_timezone"`
	WheelchairBoarding string  `csv:"wheelchair_boarding"`
}

// ProtoFeed holds the source data a GTFS feed is synthesized from.
type ProtoFeed struct {
	Meta           Meta
	ServiceWindows []ServiceWindow
	Frequencies    []Frequency
	Shapes         []ProtoShape
	SpeedZones     []SpeedZone
	// Stops is nil when no stops.csv was supplied, in which case stops are
	// derived from shape endpoints.
	Stops []Stop
}

// ReadProtoFeed reads the source files in the given directory. It reports
// structural problems (missing files, malformed CSV or GeoJSON) as errors;
// semantic problems are left to Validate.
func ReadProtoFeed(dir string) (*ProtoFeed, error) {
	pfeed := &ProtoFeed{}

	var metas []*Meta
	if err := readCSV(filepath.Join(dir, "meta.csv"), &metas); err != nil {
		return nil, err
	}
	if len(metas) == 0 {
		return nil, fmt.Errorf("meta.csv has no rows")
	}
	pfeed.Meta = *metas[0]

	var windows []*ServiceWindow
	if err := readCSV(filepath.Join(dir, "service_windows.csv"), &windows); err != nil {
		return nil, err
	}
	for _, w := range windows {
		pfeed.ServiceWindows = append(pfeed.ServiceWindows, *w)
	}

	var frequencies []*Frequency
	if err := readCSV(filepath.Join(dir, "frequencies.csv"), &frequencies); err != nil {
		return nil, err
	}
	for _, f := range frequencies {
		pfeed.Frequencies = append(pfeed.Frequencies, *f)
	}

	shapes, err := readShapes(filepath.Join(dir, "shapes.geojson"))
	if err != nil {
		return nil, err
	}
	pfeed.Shapes = shapes

	zonesPath := filepath.Join(dir, "speed_zones.geojson")
	if _, err := os.Stat(zonesPath); err == nil {
		zones, err := readSpeedZones(zonesPath)
		if err != nil {
			return nil, err
		}
		pfeed.SpeedZones = zones
	}

	stopsPath := filepath.Join(dir, "stops.csv")
	if _, err := os.Stat(stopsPath); err == nil {
		var stops []*Stop
		if err := readCSV(stopsPath, &stops); err != nil {
			return nil, err
		}
		for _, s := range stops {
			pfeed.Stops = append(pfeed.Stops, *s)
		}
	}

	slog.Info(fmt.Sprintf("Read protofeed from %s: %d service windows, %d frequency rows, %d shapes, %d speed zones, %d stops",
		dir, len(pfeed.ServiceWindows), len(pfeed.Frequencies), len(pfeed.Shapes), len(pfeed.SpeedZones), len(pfeed.Stops)))
	return pfeed, nil
}

func readCSV(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := gocsv.Unmarshal(f, out); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readShapes(path string) ([]ProtoShape, error) {
	features, err := readFeatures(path)
	if err != nil {
		return nil, err
	}

	var shapes []ProtoShape
	for i, feature := range features {
		id := feature.Get("properties.shape_id").String()
		if id == "" {
			return nil, fmt.Errorf("%s: feature %d has no shape_id property", filepath.Base(path), i)
		}
		obj, err := geojson.Parse(feature.Get("geometry").Raw, &geojson.ParseOptions{RequireValid: true})
		if err != nil {
			return nil, fmt.Errorf("%s: parse geometry of shape %s: %w", filepath.Base(path), id, err)
		}
		line, ok := obj.(*geojson.LineString)
		if !ok {
			return nil, fmt.Errorf("%s: shape %s is not a LineString", filepath.Base(path), id)
		}
		base := line.Base()
		points := make([]geometry.Point, base.NumPoints())
		for j := range points {
			points[j] = base.PointAt(j)
		}
		shapes = append(shapes, ProtoShape{ID: id, Points: points})
	}
	return shapes, nil
}

func readSpeedZones(path string) ([]SpeedZone, error) {
	features, err := readFeatures(path)
	if err != nil {
		return nil, err
	}

	var zones []SpeedZone
	for i, feature := range features {
		id := feature.Get("properties.speed_zone_id").String()
		if id == "" {
			return nil, fmt.Errorf("%s: feature %d has no speed_zone_id property", filepath.Base(path), i)
		}
		obj, err := geojson.Parse(feature.Get("geometry").Raw, &geojson.ParseOptions{RequireValid: true})
		if err != nil {
			return nil, fmt.Errorf("%s: parse geometry of speed zone %s: %w", filepath.Base(path), id, err)
		}
		polygon, ok := obj.(*geojson.Polygon)
		if !ok {
			return nil, fmt.Errorf("%s: speed zone %s is not a Polygon", filepath.Base(path), id)
		}

		zone := SpeedZone{
			ID:        id,
			RouteType: int(feature.Get("properties.route_type").Int()),
			Speed:     feature.Get("properties.speed").Float(),
		}
		base := polygon.Base()
		zone.Exterior = ringPoints(base.Exterior)
		for _, hole := range base.Holes {
			zone.Holes = append(zone.Holes, ringPoints(hole))
		}
		zones = append(zones, zone)
	}
	return zones, nil
}

func readFeatures(path string) ([]gjson.Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc := string(raw)
	if !gjson.Valid(doc) {
		return nil, fmt.Errorf("%s is not valid JSON", filepath.Base(path))
	}
	features := gjson.Get(doc, "features")
	if !features.Exists() {
		return nil, fmt.Errorf("%s is not a GeoJSON FeatureCollection", filepath.Base(path))
	}
	return features.Array(), nil
}

func ringPoints(ring geometry.Ring) []geometry.Point {
	points := make([]geometry.Point, ring.NumPoints())
	for i := range points {
		points[i] = ring.PointAt(i)
	}
	return points
}

// Timezones of left-hand-traffic countries, used to pick which side of a
// route shape to search for stops. The table covers the common zone names;
// meta.csv can set traffic_side directly for anything missing.
var lhtTimezonePrefixes = []string{
	"Australia/",
	"Indian/",
	"Africa/Blantyre",
	"Africa/Dar_es_Salaam",
	"Africa/Gaborone",
	"Africa/Harare",
	"Africa/Johannesburg",
	"Africa/Kampala",
	"Africa/Lusaka",
	"Africa/Maputo",
	"Africa/Maseru",
	"Africa/Mbabane",
	"Africa/Nairobi",
	"Africa/Windhoek",
	"America/Guyana",
	"America/Jamaica",
	"America/Nassau",
	"America/Paramaribo",
	"America/Port_of_Spain",
	"Asia/Bangkok",
	"Asia/Colombo",
	"Asia/Dhaka",
	"Asia/Hong_Kong",
	"Asia/Jakarta",
	"Asia/Jayapura",
	"Asia/Karachi",
	"Asia/Kathmandu",
	"Asia/Kolkata",
	"Asia/Kuala_Lumpur",
	"Asia/Kuching",
	"Asia/Macau",
	"Asia/Makassar",
	"Asia/Nicosia",
	"Asia/Pontianak",
	"Asia/Singapore",
	"Asia/Thimphu",
	"Asia/Tokyo",
	"Atlantic/Stanley",
	"Europe/Dublin",
	"Europe/Gibraltar",
	"Europe/Guernsey",
	"Europe/Isle_of_Man",
	"Europe/Jersey",
	"Europe/London",
	"Europe/Malta",
	"Pacific/Apia",
	"Pacific/Auckland",
	"Pacific/Bougainville",
	"Pacific/Chatham",
	"Pacific/Fiji",
	"Pacific/Funafuti",
	"Pacific/Guadalcanal",
	"Pacific/Nauru",
	"Pacific/Niue",
	"Pacific/Port_Moresby",
	"Pacific/Tarawa",
	"Pacific/Tongatapu",
}

func trafficSideForTimezone(tz string) string {
	for _, prefix := range lhtTimezonePrefixes {
		if strings.HasPrefix(tz, prefix) {
			return "left"
		}
	}
	return "right"
}
