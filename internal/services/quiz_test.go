package services

import (
	"testing"
	"time"

	"bixquest/internal/models"

	"github.com/stretchr/testify/require"
)

func TestAllowedQuestionCounts(t *testing.T) {
	for _, n := range []int{5, 10, 20, 50} {
		require.True(t, allowedQuestionCounts[n], n)
	}
	for _, n := range []int{0, 1, 3, 15, 100} {
		require.False(t, allowedQuestionCounts[n], n)
	}
}

func quizSessionFixture(questions, answered, score int) *models.QuizSession {
	ids := make([]int64, questions)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	return &models.QuizSession{
		ID:            "session-1",
		UserID:        1,
		QuestionIDs:   ids,
		AnsweredIDs:   ids[:answered],
		Score:         score,
		SessionEarned: int64(score * QUIZ_REWARD_PER_ANSWER_DEFAULT),
		Status:        models.QuizStatusActive,
		StartedAt:     time.Now(),
	}
}

func TestQuizRewardPerfect(t *testing.T) {
	// 10 questions, all correct, 20 per answer: base 200, bonus 100
	session := quizSessionFixture(10, 10, 10)
	base, bonus := quizReward(session)
	require.Equal(t, int64(200), base)
	require.Equal(t, int64(100), bonus)
}

func TestQuizRewardImperfect(t *testing.T) {
	session := quizSessionFixture(10, 10, 9)
	base, bonus := quizReward(session)
	require.Equal(t, int64(180), base)
	require.Equal(t, int64(0), bonus)
}

func TestQuizRewardAllWrong(t *testing.T) {
	session := quizSessionFixture(5, 5, 0)
	base, bonus := quizReward(session)
	require.Equal(t, int64(0), base)
	require.Equal(t, int64(0), bonus)
}

func TestSettleCheck(t *testing.T) {
	now := time.Now()
	session := quizSessionFixture(5, 5, 3)

	require.NoError(t, settleCheck(session, session.ID, now))
	require.ErrorIs(t, settleCheck(session, "other-session", now), ErrInvalidSession)

	incomplete := quizSessionFixture(5, 4, 3)
	require.ErrorIs(t, settleCheck(incomplete, incomplete.ID, now), ErrIncompleteAnswers)
}

func TestSettleCheckStaleSession(t *testing.T) {
	// answered everything in time, then sat on the finish call past the TTL
	session := quizSessionFixture(5, 5, 5)
	session.StartedAt = time.Now().Add(-models.QuizSessionTTL - time.Minute)
	require.ErrorIs(t, settleCheck(session, session.ID, time.Now()), ErrInvalidSession)

	fresh := quizSessionFixture(5, 5, 5)
	require.NoError(t, settleCheck(fresh, fresh.ID, time.Now()))
}
