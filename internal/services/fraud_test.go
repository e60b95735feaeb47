package services

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScoreFromSignalsClean(t *testing.T) {
	score := scoreFromSignals(fraudSignals{})
	require.True(t, score.Allowed)
	require.Equal(t, 1.0, score.Multiplier)
}

func TestScoreFromSignalsBlocking(t *testing.T) {
	score := scoreFromSignals(fraudSignals{blockingFlag: true})
	require.False(t, score.Allowed)
}

func TestScoreFromSignalsVelocityPenalty(t *testing.T) {
	score := scoreFromSignals(fraudSignals{recentVelocity: FRAUD_VELOCITY_COUNT})
	require.True(t, score.Allowed)
	require.Equal(t, 0.5, score.Multiplier)

	// one under the threshold stays clean
	score = scoreFromSignals(fraudSignals{recentVelocity: FRAUD_VELOCITY_COUNT - 1})
	require.Equal(t, 1.0, score.Multiplier)
}

func TestScoreFromSignalsIPCluster(t *testing.T) {
	score := scoreFromSignals(fraudSignals{ipClusterActors: FRAUD_IP_CLUSTER_ACTORS + 1})
	require.Equal(t, 0.25, score.Multiplier)

	// exactly at the threshold is tolerated
	score = scoreFromSignals(fraudSignals{ipClusterActors: FRAUD_IP_CLUSTER_ACTORS})
	require.Equal(t, 1.0, score.Multiplier)
}

func TestScoreFromSignalsLowFlags(t *testing.T) {
	score := scoreFromSignals(fraudSignals{lowFlags: 1})
	require.Equal(t, 0.75, score.Multiplier)

	score = scoreFromSignals(fraudSignals{lowFlags: 2})
	require.Equal(t, 0.75, score.Multiplier)

	// three or more low flags no longer qualify for the light penalty
	score = scoreFromSignals(fraudSignals{lowFlags: 3})
	require.Equal(t, 1.0, score.Multiplier)
}

func TestScoreFromSignalsFloor(t *testing.T) {
	score := scoreFromSignals(fraudSignals{
		recentVelocity:  FRAUD_VELOCITY_COUNT,
		ipClusterActors: FRAUD_IP_CLUSTER_ACTORS + 1,
		lowFlags:        1,
	})
	// 0.5 * 0.25 * 0.75 = 0.09375, clamped
	require.Equal(t, FRAUD_MULTIPLIER_FLOOR, score.Multiplier)
}

func TestApplyMultiplierRounding(t *testing.T) {
	score := &FraudScore{Allowed: true, Multiplier: 0.5}
	require.Equal(t, int64(50), score.ApplyMultiplier(100))
	require.Equal(t, int64(13), score.ApplyMultiplier(25))

	score.Multiplier = 0.75
	require.Equal(t, int64(75), score.ApplyMultiplier(100))

	score.Multiplier = 1.0
	require.Equal(t, int64(100), score.ApplyMultiplier(100))
}
