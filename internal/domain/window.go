package domain

import "fmt"

// TimeWindow selects which USGS summary feed to fetch.
type TimeWindow string

const (
	WindowHour  TimeWindow = "hour"
	WindowDay   TimeWindow = "day"
	WindowWeek  TimeWindow = "week"
	WindowMonth TimeWindow = "month"
)

// TimeWindows lists the selectable windows in display order.
var TimeWindows = []TimeWindow{WindowHour, WindowDay, WindowWeek, WindowMonth}

// ParseTimeWindow validates a user supplied window name.
func ParseTimeWindow(s string) (TimeWindow, error) {
	for _, w := range TimeWindows {
		if string(w) == s {
			return w, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidWindow, s)
}

// FeedFile is the summary feed file name for the window, e.g. "all_week.geojson".
func (w TimeWindow) FeedFile() string {
	return "all_" + string(w) + ".geojson"
}

// Label is the human readable name used by the selection control.
func (w TimeWindow) Label() string {
	switch w {
	case WindowHour:
		return "Past Hour"
	case WindowDay:
		return "Past Day"
	case WindowWeek:
		return "Past 7 Days"
	case WindowMonth:
		return "Past 30 Days"
	default:
		return string(w)
	}
}
