package makegtfs

import (
	"fmt"
	"strconv"
	"strings"
)

// ServiceWindow is a repeating clock interval plus the weekdays it runs on.
// Hours may exceed 23 to describe service past midnight, per GTFS time
// conventions.
type ServiceWindow struct {
	ID        string `csv:"service_window_id"`
	StartTime string `csv:"start_time"`
	EndTime   string `csv:"end_time"`
	Monday    int    `csv:"monday"`
	Tuesday   int    `csv:"tuesday"`
	Wednesday int    `csv:"wednesday"`
	Thursday  int    `csv:"thursday"`
	Friday    int    `csv:"friday"`
	Saturday  int    `csv:"saturday"`
	Sunday    int    `csv:"sunday"`
}

func (w ServiceWindow) weekdays() [7]int {
	return [7]int{w.Monday, w.Tuesday, w.Wednesday, w.Thursday, w.Friday, w.Saturday, w.Sunday}
}

func (w ServiceWindow) hasActiveDay() bool {
	for _, d := range w.weekdays() {
		if d == 1 {
			return true
		}
	}
	return false
}

// parseTimeOfDay parses a GTFS HH:MM:SS string into seconds past midnight.
// The hour may be 24 or greater.
func parseTimeOfDay(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("time %q is not in HH:MM:SS format", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return 0, fmt.Errorf("time %q has a bad hour", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q has a bad minute", s)
	}
	sec, err := strconv.Atoi(parts[2])
	if err != nil || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("time %q has a bad second", s)
	}
	return h*3600 + m*60 + sec, nil
}

// formatTimeOfDay renders seconds past midnight as HH:MM:SS, letting the
// hour run past 23 for post-midnight times.
func formatTimeOfDay(secs int) string {
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
}

// CalendarRow is one row of calendar.txt.
type CalendarRow struct {
	ServiceID string
	Weekdays  [7]int
	StartDate string
	EndDate   string
}

// allWeekServiceID is the single synthetic service every trip references.
const allWeekServiceID = "srv-all"

// buildCalendar returns the one calendar entry of the feed: active all seven
// days across the whole date range. The engine does not model calendar
// exceptions, so window weekday flags never narrow this row; they only gate
// trip generation.
func buildCalendar(meta Meta) CalendarRow {
	return CalendarRow{
		ServiceID: allWeekServiceID,
		Weekdays:  [7]int{1, 1, 1, 1, 1, 1, 1},
		StartDate: meta.StartDate,
		EndDate:   meta.EndDate,
	}
}

// serviceByWindow maps every service window ID to the synthetic service ID,
// for trip bookkeeping only.
func serviceByWindow(windows []ServiceWindow) map[string]string {
	m := make(map[string]string, len(windows))
	for _, w := range windows {
		m[w.ID] = allWeekServiceID
	}
	return m
}
