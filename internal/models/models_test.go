package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQuizSessionStale(t *testing.T) {
	started := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	session := &QuizSession{Status: QuizStatusActive, StartedAt: started}

	require.False(t, session.Stale(started.Add(29*time.Minute)))
	require.True(t, session.Stale(started.Add(31*time.Minute)))

	session.Status = QuizStatusCompleted
	require.False(t, session.Stale(started.Add(31*time.Minute)))
}

func TestQuizSessionMembership(t *testing.T) {
	session := &QuizSession{
		QuestionIDs: []int64{3, 7, 11},
		AnsweredIDs: []int64{7},
	}

	require.True(t, session.Contains(3))
	require.False(t, session.Contains(4))
	require.True(t, session.Answered(7))
	require.False(t, session.Answered(3))
}

func TestCodeWindowValidity(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	window := &CodeWindow{
		ValidFrom:  now.Add(-time.Hour),
		ValidUntil: now.Add(time.Hour),
	}

	require.True(t, window.WithinWindow(now))
	require.True(t, window.WithinWindow(window.ValidFrom))
	require.True(t, window.WithinWindow(window.ValidUntil))
	require.False(t, window.WithinWindow(now.Add(2*time.Hour)))
	require.False(t, window.WithinWindow(now.Add(-2*time.Hour)))
}

func TestCodeWindowExhausted(t *testing.T) {
	window := &CodeWindow{CurrentRedemptions: 100}
	require.False(t, window.Exhausted())

	limit := 100
	window.MaxRedemptions = &limit
	require.True(t, window.Exhausted())

	window.CurrentRedemptions = 99
	require.False(t, window.Exhausted())
}

func TestAbuseFlagBlocking(t *testing.T) {
	require.True(t, (&AbuseFlag{Severity: SeverityHigh}).Blocking())
	require.True(t, (&AbuseFlag{Severity: SeverityCritical}).Blocking())
	require.False(t, (&AbuseFlag{Severity: SeverityMedium}).Blocking())
	require.False(t, (&AbuseFlag{Severity: SeverityHigh, Resolved: true}).Blocking())
}
