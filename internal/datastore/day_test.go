package datastore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDayStartUTC(t *testing.T) {
	// 00:30 on March 2nd in UTC+13 is still March 1st in UTC
	ahead := time.FixedZone("UTC+13", 13*60*60)
	local := time.Date(2026, 3, 2, 0, 30, 0, 0, ahead)
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), dayStartUTC(local))

	// 23:30 on March 1st in UTC-5 is already March 2nd in UTC
	behind := time.FixedZone("UTC-5", -5*60*60)
	late := time.Date(2026, 3, 1, 23, 30, 0, 0, behind)
	require.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), dayStartUTC(late))

	utc := time.Date(2026, 3, 1, 15, 45, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), dayStartUTC(utc))
}
