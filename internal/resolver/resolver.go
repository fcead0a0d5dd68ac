// Package resolver picks the single effective record among overlapping,
// effective-dated records.
//
// The policy is "latest correction overrides": among the records that match
// a key and cover a date, the one created last wins, even when an earlier
// record has a narrower window that also covers the date. Ties on creation
// time go to the record that appears first in the input.
package resolver

import (
	"time"

	"github.com/atmx/parity-engine/internal/model"
)

// Created is implemented by every record that carries a creation time.
type Created interface {
	Created() time.Time
}

// Effective is implemented by records entered against a (hotel, market) key
// with an inclusive validity window.
type Effective interface {
	Created
	RecordKey() model.Key
	Window() (start, end model.Date)
}

// Latest returns the matching record for which no other matching record is
// newer. The second result is false when nothing matches.
func Latest[T any](records []T, match func(T) bool, newer func(a, b T) bool) (T, bool) {
	var best T
	found := false
	for _, r := range records {
		if !match(r) {
			continue
		}
		if !found || newer(r, best) {
			best = r
			found = true
		}
	}
	return best, found
}

// CreatedAfter orders records by creation time, newest first.
func CreatedAfter[T Created](a, b T) bool {
	return a.Created().After(b.Created())
}

// EffectiveOn returns the record for key whose window contains date and
// which was created last.
func EffectiveOn[T Effective](records []T, key model.Key, date model.Date) (T, bool) {
	return Latest(records, func(r T) bool {
		start, end := r.Window()
		return r.RecordKey() == key && date.Within(start, end)
	}, CreatedAfter[T])
}
