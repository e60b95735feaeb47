package datastore

import (
	"context"
	"time"

	"bixquest/internal/models"

	"github.com/uptrace/bun"
)

func CreateTableQuiz(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.Question)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateTable().Model((*models.QuizSession)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.QuizSession)(nil)).Index("index_quiz_session_user_status").IfNotExists().Column("user_id", "status").Exec(ctx)
	if err != nil {
		return err
	}

	return nil
}

func GetQuestion(ctx context.Context, db bun.IDB, questionID int64) (*models.Question, error) {
	var question models.Question
	err := db.NewSelect().Model(&question).Where("id = ?", questionID).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &question, nil
}

func GetActiveQuestionIDs(ctx context.Context, db bun.IDB, difficulty models.QuizDifficulty) ([]int64, error) {
	var ids []int64
	q := db.NewSelect().Model((*models.Question)(nil)).
		Column("id").
		Where("is_active = TRUE")
	if difficulty != models.QuizDifficultyMixed {
		q = q.Where("difficulty = ?", difficulty)
	}
	err := q.Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func GetActiveSessionByUser(ctx context.Context, db bun.IDB, userID int64) (*models.QuizSession, error) {
	var session models.QuizSession
	err := db.NewSelect().Model(&session).
		Where("user_id = ?", userID).
		Where("status = ?", models.QuizStatusActive).
		OrderExpr("started_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func InsertQuizSession(ctx context.Context, db bun.IDB, session *models.QuizSession) error {
	_, err := db.NewInsert().Model(session).Exec(ctx)
	return err
}

func UpdateQuizSession(ctx context.Context, db bun.IDB, session *models.QuizSession) error {
	_, err := db.NewUpdate().Model(session).
		Set("answered_ids = ?", session.AnsweredIDs).
		Set("score = ?", session.Score).
		Set("session_earned = ?", session.SessionEarned).
		Set("status = ?", session.Status).
		Set("completed_at = ?", session.CompletedAt).
		WherePK().Exec(ctx)
	return err
}

// LockQuizSession guards the status flip at settlement so a session can
// only complete once.
func LockQuizSession(ctx context.Context, tx bun.Tx, sessionID string) (*models.QuizSession, error) {
	var session models.QuizSession
	err := tx.NewSelect().Model(&session).Where("id = ?", sessionID).For("UPDATE").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func ExpireQuizSession(ctx context.Context, db bun.IDB, sessionID string, at time.Time) error {
	_, err := db.NewUpdate().Model((*models.QuizSession)(nil)).
		Set("status = ?", models.QuizStatusExpired).
		Set("completed_at = ?", at).
		Where("id = ?", sessionID).
		Where("status = ?", models.QuizStatusActive).
		Exec(ctx)
	return err
}
