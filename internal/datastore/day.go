package datastore

import "time"

// dayStartUTC returns midnight of t's UTC calendar date. Daily quotas key on
// the UTC date regardless of the server's zone.
func dayStartUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
