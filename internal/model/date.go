package model

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the ISO calendar date layout used for every Date.
const DateLayout = "2006-01-02"

var (
	// ErrInvalidDate is returned when a string is not a YYYY-MM-DD calendar date.
	ErrInvalidDate = errors.New("model: invalid date")

	// ErrInvalidRange is returned when a range ends before it starts.
	ErrInvalidRange = errors.New("model: date range ends before it starts")
)

// Date is a calendar date in ISO YYYY-MM-DD form. It carries no time of day
// or zone, and lexicographic order equals calendar order.
type Date string

// ParseDate validates s and returns it as a Date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// MustDate is ParseDate for literals; it panics on malformed input.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	return Date(t.Format(DateLayout))
}

// Time returns midnight UTC of the date. Malformed dates yield the zero time.
func (d Date) Time() time.Time {
	t, _ := time.Parse(DateLayout, string(d))
	return t
}

// AddDays returns the date n calendar days later (earlier for negative n).
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// Within reports whether d lies in [start, end] inclusive.
func (d Date) Within(start, end Date) bool {
	return d >= start && d <= end
}

func (d Date) String() string { return string(d) }

// DateRange returns every calendar date from start to end inclusive.
func DateRange(start, end Date) ([]Date, error) {
	from, err := ParseDate(string(start))
	if err != nil {
		return nil, err
	}
	to, err := ParseDate(string(end))
	if err != nil {
		return nil, err
	}
	if to < from {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange, from, to)
	}

	days := int(to.Time().Sub(from.Time()).Hours()/24) + 1
	dates := make([]Date, 0, days)
	for t := from.Time(); !t.After(to.Time()); t = t.AddDate(0, 0, 1) {
		dates = append(dates, DateOf(t))
	}
	return dates, nil
}
