package services

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"math/rand"
	"time"

	"bixquest/internal/datastore"
	"bixquest/internal/models"
	"bixquest/internal/pkg/caching"

	"github.com/go-redsync/redsync/v4"
	"github.com/google/uuid"
	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/samber/do"
	"github.com/uptrace/bun"
)

var ErrInvalidQuestionCount = errors.New("invalid question count")
var ErrSessionInProgress = errors.New("quiz session already in progress")
var ErrInsufficientQuestions = errors.New("not enough questions available")
var ErrMissingFields = errors.New("missing fields")
var ErrTooFast = errors.New("answer submitted too fast")
var ErrInvalidSession = errors.New("invalid quiz session")
var ErrQuestionNotInSession = errors.New("question not in session")
var ErrAlreadyAnswered = errors.New("question already answered")
var ErrIncompleteAnswers = errors.New("unanswered questions remain")

var allowedQuestionCounts = map[int]bool{5: true, 10: true, 20: true, 50: true}

type ServiceQuiz struct {
	container          *do.Injector
	rs                 *redsync.Redsync
	postgresDB         *bun.DB
	readonlyPostgresDB *bun.DB
	cache              caching.Cache
	readonlyCache      caching.ReadOnlyCache

	serviceLedger *ServiceLedger
	serviceFraud  *ServiceFraud
	serviceConfig *ServiceConfig
}

func NewServiceQuiz(container *do.Injector) (*ServiceQuiz, error) {
	rs, err := do.Invoke[*redsync.Redsync](container)
	if err != nil {
		return nil, err
	}

	postgresDB, err := do.Invoke[*bun.DB](container)
	if err != nil {
		return nil, err
	}

	readonlyPostgresDB, err := do.InvokeNamed[*bun.DB](container, "db-readonly")
	if err != nil {
		return nil, err
	}

	cache, err := do.Invoke[caching.Cache](container)
	if err != nil {
		return nil, err
	}

	readonlyCache, err := do.Invoke[caching.ReadOnlyCache](container)
	if err != nil {
		return nil, err
	}

	serviceLedger, err := do.Invoke[*ServiceLedger](container)
	if err != nil {
		return nil, err
	}

	serviceFraud, err := do.Invoke[*ServiceFraud](container)
	if err != nil {
		return nil, err
	}

	serviceConfig, err := do.Invoke[*ServiceConfig](container)
	if err != nil {
		return nil, err
	}

	return &ServiceQuiz{container, rs, postgresDB, readonlyPostgresDB, cache, readonlyCache, serviceLedger, serviceFraud, serviceConfig}, nil
}

type QuizQuestion struct {
	ID      int64    `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

type StartQuizResult struct {
	SessionID string         `json:"session_id"`
	Questions []QuizQuestion `json:"questions"`
	ExpiresAt time.Time      `json:"expires_at"`
}

func (service *ServiceQuiz) StartQuiz(ctx context.Context, user *models.User, questionCount int, difficulty models.QuizDifficulty) (*StartQuizResult, error) {
	if !allowedQuestionCounts[questionCount] {
		return nil, errorx.Wrap(ErrInvalidQuestionCount, errorx.Validation)
	}
	if difficulty == "" {
		difficulty = models.QuizDifficultyMixed
	}

	mutex := service.rs.NewMutex(LockKeyQuizSession(user.ID))
	if err := mutex.Lock(); err != nil {
		return nil, errorx.Wrap(ErrQuizSessionLock, errorx.Invalid)
	}
	defer mutex.Unlock()

	now := time.Now()
	existing, err := datastore.GetActiveSessionByUser(ctx, service.readonlyPostgresDB, user.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, errorx.Wrap(err, errorx.Service)
	}
	if existing != nil {
		if !existing.Stale(now) {
			return nil, errorx.Wrap(ErrSessionInProgress, errorx.Invalid)
		}
		if err := datastore.ExpireQuizSession(ctx, service.postgresDB, existing.ID, now); err != nil {
			return nil, errorx.Wrap(err, errorx.Service)
		}
	}

	pool, err := datastore.GetActiveQuestionIDs(ctx, service.readonlyPostgresDB, difficulty)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.Service)
	}
	if len(pool) < questionCount && difficulty != models.QuizDifficultyMixed {
		difficulty = models.QuizDifficultyMixed
		pool, err = datastore.GetActiveQuestionIDs(ctx, service.readonlyPostgresDB, difficulty)
		if err != nil {
			return nil, errorx.Wrap(err, errorx.Service)
		}
	}
	if len(pool) < questionCount {
		return nil, errorx.Wrap(ErrInsufficientQuestions, errorx.Invalid)
	}

	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	picked := pool[:questionCount]

	session := &models.QuizSession{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		Difficulty:  difficulty,
		QuestionIDs: picked,
		AnsweredIDs: []int64{},
		Status:      models.QuizStatusActive,
		StartedAt:   now,
	}
	questions := make([]QuizQuestion, 0, len(picked))
	for _, id := range picked {
		question, err := service.getQuestion(ctx, id)
		if err != nil {
			return nil, errorx.Wrap(err, errorx.Service)
		}
		questions = append(questions, QuizQuestion{ID: question.ID, Text: question.Text, Options: question.Options})
	}

	// insert last; a failed question fetch must not leave an active session behind
	if err := datastore.InsertQuizSession(ctx, service.postgresDB, session); err != nil {
		return nil, errorx.Wrap(err, errorx.Service)
	}

	return &StartQuizResult{
		SessionID: session.ID,
		Questions: questions,
		ExpiresAt: now.Add(models.QuizSessionTTL),
	}, nil
}

type AnswerResult struct {
	Correct       bool  `json:"correct"`
	Score         int   `json:"score"`
	SessionEarned int64 `json:"session_earned"`
	Remaining     int   `json:"remaining"`
}

func (service *ServiceQuiz) Answer(ctx context.Context, user *models.User, sessionID string, questionID int64, selectedOption int, timeTaken float64) (*AnswerResult, error) {
	if sessionID == "" || questionID == 0 {
		return nil, errorx.Wrap(ErrMissingFields, errorx.Validation)
	}
	if timeTaken < QUIZ_MIN_ANSWER_SECONDS {
		return nil, errorx.Wrap(ErrTooFast, errorx.Invalid)
	}

	mutex := service.rs.NewMutex(LockKeyQuizSession(user.ID))
	if err := mutex.Lock(); err != nil {
		return nil, errorx.Wrap(ErrQuizSessionLock, errorx.Invalid)
	}
	defer mutex.Unlock()

	now := time.Now()
	session, err := datastore.GetActiveSessionByUser(ctx, service.readonlyPostgresDB, user.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errorx.Wrap(ErrInvalidSession, errorx.Invalid)
		}
		return nil, errorx.Wrap(err, errorx.Service)
	}
	if session.ID != sessionID {
		return nil, errorx.Wrap(ErrInvalidSession, errorx.Invalid)
	}
	if session.Stale(now) {
		_ = datastore.ExpireQuizSession(ctx, service.postgresDB, session.ID, now)
		return nil, errorx.Wrap(ErrInvalidSession, errorx.Invalid)
	}

	if !session.Contains(questionID) {
		return nil, errorx.Wrap(ErrQuestionNotInSession, errorx.Invalid)
	}
	if session.Answered(questionID) {
		return nil, errorx.Wrap(ErrAlreadyAnswered, errorx.Invalid)
	}

	question, err := service.getQuestion(ctx, questionID)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.Service)
	}

	correct := selectedOption == question.CorrectOption
	session.AnsweredIDs = append(session.AnsweredIDs, questionID)
	if correct {
		rewardPerAnswer, _ := service.serviceConfig.GetIntConfig(ctx, CONFIG_QUIZ_REWARD_PER_ANSWER, QUIZ_REWARD_PER_ANSWER_DEFAULT)
		session.Score++
		session.SessionEarned += int64(rewardPerAnswer)
	}

	if err := datastore.UpdateQuizSession(ctx, service.postgresDB, session); err != nil {
		return nil, errorx.Wrap(err, errorx.Service)
	}

	return &AnswerResult{
		Correct:       correct,
		Score:         session.Score,
		SessionEarned: session.SessionEarned,
		Remaining:     len(session.QuestionIDs) - len(session.AnsweredIDs),
	}, nil
}

type FinishQuizResult struct {
	Score       int     `json:"score"`
	BaseReward  int64   `json:"base_reward"`
	BonusReward int64   `json:"bonus_reward"`
	TotalReward int64   `json:"total_reward"`
	Multiplier  float64 `json:"multiplier"`
	Balance     int64   `json:"balance"`
}

func (service *ServiceQuiz) Finish(ctx context.Context, user *models.User, sessionID string, ipHash string) (*FinishQuizResult, error) {
	if sessionID == "" {
		return nil, errorx.Wrap(ErrMissingFields, errorx.Validation)
	}

	mutex := service.rs.NewMutex(LockKeyQuizSession(user.ID))
	if err := mutex.Lock(); err != nil {
		return nil, errorx.Wrap(ErrQuizSessionLock, errorx.Invalid)
	}
	defer mutex.Unlock()

	session, err := datastore.GetActiveSessionByUser(ctx, service.readonlyPostgresDB, user.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errorx.Wrap(ErrInvalidSession, errorx.Invalid)
		}
		return nil, errorx.Wrap(err, errorx.Service)
	}
	now := time.Now()
	if err := settleCheck(session, sessionID, now); err != nil {
		if session.Stale(now) {
			_ = datastore.ExpireQuizSession(ctx, service.postgresDB, session.ID, now)
		}
		return nil, errorx.Wrap(err, errorx.Invalid)
	}

	score, err := service.serviceFraud.Score(ctx, user, ipHash)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.Service)
	}
	if !score.Allowed {
		return nil, errorx.Wrap(ErrUnderReview, errorx.Invalid)
	}

	base, bonus := quizReward(session)
	amount := score.ApplyMultiplier(base + bonus)

	var result *FinishQuizResult
	err = service.serviceLedger.WithLedgerTx(ctx, user.ID, func(ctx context.Context, tx bun.Tx, locked *models.User) error {
		lockedSession, err := datastore.LockQuizSession(ctx, tx, session.ID)
		if err != nil {
			return err
		}
		if lockedSession.Status != models.QuizStatusActive {
			return errorx.Wrap(ErrInvalidSession, errorx.Invalid)
		}

		now := time.Now()
		lockedSession.Status = models.QuizStatusCompleted
		lockedSession.CompletedAt = &now
		if err := datastore.UpdateQuizSession(ctx, tx, lockedSession); err != nil {
			return err
		}

		if amount > 0 {
			if err := service.serviceLedger.GrantInTx(ctx, tx, locked, Grant{
				UserID:      locked.ID,
				Amount:      amount,
				Category:    models.RewardQuiz,
				SourceID:    lockedSession.ID,
				SourceType:  "quiz_session",
				Description: "quiz settlement",
			}); err != nil {
				return err
			}
		}

		result = &FinishQuizResult{
			Score:       lockedSession.Score,
			BaseReward:  base,
			BonusReward: bonus,
			TotalReward: amount,
			Multiplier:  score.Multiplier,
			Balance:     locked.Balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// settleCheck validates that the user's active session may move to completed.
// A stale session is invalid here; callers are expected to expire it.
func settleCheck(session *models.QuizSession, sessionID string, now time.Time) error {
	if session.ID != sessionID {
		return ErrInvalidSession
	}
	if session.Stale(now) {
		return ErrInvalidSession
	}
	if len(session.AnsweredIDs) < len(session.QuestionIDs) {
		return ErrIncompleteAnswers
	}
	return nil
}

// quizReward returns the accumulated base reward and the perfect-score bonus.
func quizReward(session *models.QuizSession) (int64, int64) {
	base := session.SessionEarned
	var bonus int64
	if session.Score == len(session.QuestionIDs) && session.Score > 0 {
		bonus = int64(math.Round(float64(base) * QUIZ_PERFECT_BONUS_RATE))
	}
	return base, bonus
}

func (service *ServiceQuiz) getQuestion(ctx context.Context, questionID int64) (*models.Question, error) {
	callback := func() (*models.Question, error) {
		return datastore.GetQuestion(ctx, service.readonlyPostgresDB, questionID)
	}
	return caching.UseCacheWithRO(ctx, service.readonlyCache, service.cache, DBKeyQuestion(questionID), CACHE_TTL_15_MINS, callback)
}
