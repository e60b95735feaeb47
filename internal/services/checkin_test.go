package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextStreakFirstCheckin(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	require.Equal(t, 1, nextStreak(nil, 0, now))
}

func TestNextStreakContinuesFromYesterday(t *testing.T) {
	now := time.Date(2024, 5, 10, 0, 30, 0, 0, time.UTC)
	last := time.Date(2024, 5, 9, 23, 45, 0, 0, time.UTC)
	require.Equal(t, 5, nextStreak(&last, 4, now))
}

func TestNextStreakResetsOnGap(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	last := time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC)
	require.Equal(t, 1, nextStreak(&last, 9, now))
}

func TestStreakMultiplier(t *testing.T) {
	require.Equal(t, 1.0, streakMultiplier(1))
	require.Equal(t, 1.5, streakMultiplier(2))
	require.Equal(t, 3.0, streakMultiplier(5))
	// capped at 5x from streak 9 onward
	require.Equal(t, 5.0, streakMultiplier(9))
	require.Equal(t, 5.0, streakMultiplier(40))
}

func TestSameUTCDayAcrossZones(t *testing.T) {
	a := time.Date(2024, 5, 9, 23, 0, 0, 0, time.UTC)
	b := time.Date(2024, 5, 10, 1, 0, 0, 0, time.FixedZone("plus2", 2*60*60))
	// b is 23:00 UTC on the 9th
	require.True(t, sameUTCDay(a, b))

	c := time.Date(2024, 5, 10, 1, 0, 0, 0, time.UTC)
	require.False(t, sameUTCDay(a, c))
}
