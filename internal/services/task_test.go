package services

import (
	"testing"

	"bixquest/internal/models"

	"github.com/stretchr/testify/require"
)

func TestTaskIDThreshold(t *testing.T) {
	for id, want := range map[string]int{
		"referral_1":  1,
		"referral_5":  5,
		"referral_25": 25,
	} {
		got, ok := taskIDThreshold(id)
		require.True(t, ok, id)
		require.Equal(t, want, got, id)
	}

	for _, id := range []string{"referral", "referral_", "referral_x", "referral_0", "referral_-5"} {
		_, ok := taskIDThreshold(id)
		require.False(t, ok, id)
	}
}

func TestMilestoneSatisfied(t *testing.T) {
	user := &models.User{TotalEarned: 1200, DailyStreak: 6}

	require.True(t, milestoneSatisfied("milestone_earned_1000", user))
	require.False(t, milestoneSatisfied("milestone_earned_5000", user))

	require.True(t, milestoneSatisfied("milestone_streak_5", user))
	require.False(t, milestoneSatisfied("milestone_streak_7", user))

	// unrecognized ids never qualify
	require.False(t, milestoneSatisfied("milestone_other_10", user))
	require.False(t, milestoneSatisfied("milestone_earned_", user))
}

func TestUserLevelGate(t *testing.T) {
	require.Equal(t, 1, (&models.User{TotalEarned: 0}).Level())
	require.Equal(t, 1, (&models.User{TotalEarned: 499}).Level())
	require.Equal(t, 2, (&models.User{TotalEarned: 500}).Level())
	require.Equal(t, 3, (&models.User{TotalEarned: 1499}).Level())
}
