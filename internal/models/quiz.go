package models

import (
	"time"

	"github.com/uptrace/bun"
)

type QuizDifficulty string

const (
	QuizDifficultyEasy   QuizDifficulty = "easy"
	QuizDifficultyMedium QuizDifficulty = "medium"
	QuizDifficultyHard   QuizDifficulty = "hard"
	QuizDifficultyMixed  QuizDifficulty = "mixed"
)

type Question struct {
	bun.BaseModel `bun:"table:question"`
	ID            int64          `bun:"id,pk,autoincrement" json:"id"`
	Text          string         `bun:"text" json:"text"`
	Options       []string       `bun:"options,type:jsonb" json:"options"`
	CorrectOption int            `bun:"correct_option" json:"-"`
	Difficulty    QuizDifficulty `bun:"difficulty" json:"difficulty"`
	IsActive      bool           `bun:"is_active" json:"-"`
}

type QuizStatus string

const (
	QuizStatusActive    QuizStatus = "active"
	QuizStatusCompleted QuizStatus = "completed"
	QuizStatusExpired   QuizStatus = "expired"
)

// QuizSessionTTL is how long a session may stay active before the next
// access lazily expires it.
const QuizSessionTTL = 30 * time.Minute

type QuizSession struct {
	bun.BaseModel `bun:"table:quiz_session"`
	ID            string         `bun:"id,pk" json:"id"`
	UserID        int64          `bun:"user_id" json:"user_id"`
	Difficulty    QuizDifficulty `bun:"difficulty" json:"difficulty"`
	QuestionIDs   []int64        `bun:"question_ids,type:jsonb" json:"question_ids"`
	AnsweredIDs   []int64        `bun:"answered_ids,type:jsonb" json:"answered_ids"`
	Score         int            `bun:"score" json:"score"`
	SessionEarned int64          `bun:"session_earned" json:"session_earned"`
	Status        QuizStatus     `bun:"status" json:"status"`
	StartedAt     time.Time      `bun:"started_at" json:"started_at"`
	CompletedAt   *time.Time     `bun:"completed_at" json:"completed_at"`
}

func (s *QuizSession) Stale(now time.Time) bool {
	return s.Status == QuizStatusActive && now.Sub(s.StartedAt) > QuizSessionTTL
}

func (s *QuizSession) Contains(questionID int64) bool {
	for _, id := range s.QuestionIDs {
		if id == questionID {
			return true
		}
	}
	return false
}

func (s *QuizSession) Answered(questionID int64) bool {
	for _, id := range s.AnsweredIDs {
		if id == questionID {
			return true
		}
	}
	return false
}
