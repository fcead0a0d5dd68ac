package series

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownMetric = errors.New("series: unknown metric")

// Metric names a fixed change offset in days.
type Metric string

const (
	DayOverDay     Metric = "dod"
	WeekOverWeek   Metric = "wow"
	MonthOverMonth Metric = "mom"
)

// Metrics lists the supported metrics in display order.
var Metrics = []Metric{DayOverDay, WeekOverWeek, MonthOverMonth}

func (m Metric) Offset() int {
	switch m {
	case DayOverDay:
		return 1
	case WeekOverWeek:
		return 7
	case MonthOverMonth:
		return 30
	}
	return 0
}

func (m Metric) Label() string {
	switch m {
	case DayOverDay:
		return "DoD %"
	case WeekOverWeek:
		return "WoW %"
	case MonthOverMonth:
		return "MoM %"
	}
	return string(m)
}

// ParseMetric accepts a metric name case-insensitively. An empty string
// selects DayOverDay.
func ParseMetric(s string) (Metric, error) {
	if s == "" {
		return DayOverDay, nil
	}
	m := Metric(strings.ToLower(strings.TrimSpace(s)))
	if m.Offset() == 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
	}
	return m, nil
}
