package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"bixquest/internal/datastore"
	"bixquest/internal/models"

	"github.com/google/uuid"
	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/samber/do"
	"github.com/uptrace/bun"

	"bixquest/internal/pkg/codegen"
)

var ErrInvalidFormat = errors.New("invalid code format")
var ErrInvalidOrExpired = errors.New("invalid or expired code")
var ErrCodeExpired = errors.New("code expired")
var ErrCodeExhausted = errors.New("code redemption limit reached")
var ErrAlreadyRedeemed = errors.New("code already redeemed")
var ErrWindowQuota = errors.New("daily window quota reached for task")

type ServiceCode struct {
	container          *do.Injector
	postgresDB         *bun.DB
	readonlyPostgresDB *bun.DB

	serviceLedger *ServiceLedger
	serviceFraud  *ServiceFraud
	serviceConfig *ServiceConfig

	mu       sync.Mutex
	failures map[int64]int
}

func NewServiceCode(container *do.Injector) (*ServiceCode, error) {
	postgresDB, err := do.Invoke[*bun.DB](container)
	if err != nil {
		return nil, err
	}

	readonlyPostgresDB, err := do.InvokeNamed[*bun.DB](container, "db-readonly")
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

	return &ServiceCode{
		container:          container,
		postgresDB:         postgresDB,
		readonlyPostgresDB: readonlyPostgresDB,
		serviceLedger:      serviceLedger,
		serviceFraud:       serviceFraud,
		serviceConfig:      serviceConfig,
		failures:           map[int64]int{},
	}, nil
}

func (service *ServiceCode) GenerateWindow(ctx context.Context, admin *models.User, taskID string, validHours int, maxRedemptions *int) (*models.CodeWindow, error) {
	if !admin.IsAdmin() {
		return nil, errorx.Wrap(ErrAdminOnly, errorx.Authn)
	}

	if taskID == "" {
		taskID = models.TaskIDGeneral
	}
	if validHours <= 0 {
		validHours = 24
	}

	if taskID != models.TaskIDGeneral {
		_, err := datastore.GetTask(ctx, service.readonlyPostgresDB, taskID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, errorx.Wrap(fmt.Errorf("task %s not found", taskID), errorx.NotExist)
			}
			return nil, errorx.Wrap(err, errorx.Service)
		}
	}

	now := time.Now()
	count, err := datastore.CountWindowsCreatedToday(ctx, service.readonlyPostgresDB, taskID, now)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.Service)
	}
	if count >= MAX_WINDOWS_PER_TASK_PER_DAY {
		return nil, errorx.Wrap(ErrWindowQuota, errorx.Invalid)
	}

	window := &models.CodeWindow{
		ID:             uuid.NewString(),
		TaskID:         taskID,
		ValidFrom:      now,
		ValidUntil:     now.Add(time.Duration(validHours) * time.Hour),
		MaxRedemptions: maxRedemptions,
		IsActive:       true,
		CreatedBy:      admin.ID,
		CreatedAt:      now,
	}

	// 32^8 code space; retry only covers the freak collision
	for attempt := 0; attempt < 3; attempt++ {
		window.Code, err = codegen.NewCode()
		if err != nil {
			return nil, errorx.Wrap(err, errorx.Service)
		}
		err = datastore.InsertCodeWindow(ctx, service.postgresDB, window)
		if err == nil {
			return window, nil
		}
	}
	return nil, errorx.Wrap(err, errorx.Service)
}

func (service *ServiceCode) ListWindows(ctx context.Context, admin *models.User, limit int) ([]models.CodeWindow, error) {
	if !admin.IsAdmin() {
		return nil, errorx.Wrap(ErrAdminOnly, errorx.Authn)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return datastore.ListCodeWindows(ctx, service.readonlyPostgresDB, limit)
}

func (service *ServiceCode) DisableWindow(ctx context.Context, admin *models.User, windowID string) error {
	if !admin.IsAdmin() {
		return errorx.Wrap(ErrAdminOnly, errorx.Authn)
	}
	return datastore.DeactivateCodeWindow(ctx, service.postgresDB, windowID)
}

type RedeemResult struct {
	WindowID   string  `json:"window_id"`
	Amount     int64   `json:"amount"`
	Multiplier float64 `json:"multiplier"`
	Balance    int64   `json:"balance"`
}

func (service *ServiceCode) RedeemCode(ctx context.Context, user *models.User, code string, ipHash string, deviceHash string, userAgent string) (*RedeemResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) < CODE_MIN_LOOKUP_LENGTH {
		return nil, errorx.Wrap(ErrInvalidFormat, errorx.Validation)
	}

	window, err := datastore.GetActiveWindowByCode(ctx, service.readonlyPostgresDB, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			service.recordFailure(ctx, user.ID)
			return nil, errorx.Wrap(ErrInvalidOrExpired, errorx.NotExist)
		}
		return nil, errorx.Wrap(err, errorx.Service)
	}

	now := time.Now()
	if !window.WithinWindow(now) {
		return nil, errorx.Wrap(ErrCodeExpired, errorx.Invalid)
	}
	if window.Exhausted() {
		return nil, errorx.Wrap(ErrCodeExhausted, errorx.Invalid)
	}

	redeemed, err := datastore.HasRedemption(ctx, service.readonlyPostgresDB, user.ID, window.ID)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.Service)
	}
	if redeemed {
		return nil, errorx.Wrap(ErrAlreadyRedeemed, errorx.Invalid)
	}

	score, err := service.serviceFraud.Score(ctx, user, ipHash)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.Service)
	}
	if !score.Allowed {
		return nil, errorx.Wrap(ErrUnderReview, errorx.Invalid)
	}

	base, err := service.rewardAmount(ctx, window)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.Service)
	}
	amount := score.ApplyMultiplier(base)

	var result *RedeemResult
	err = service.serviceLedger.WithLedgerTx(ctx, user.ID, func(ctx context.Context, tx bun.Tx, locked *models.User) error {
		// re-check window state under the row lock
		lockedWindow, err := datastore.LockCodeWindow(ctx, tx, window.ID)
		if err != nil {
			return err
		}
		if !lockedWindow.IsActive || !lockedWindow.WithinWindow(now) {
			return errorx.Wrap(ErrCodeExpired, errorx.Invalid)
		}
		if lockedWindow.Exhausted() {
			return errorx.Wrap(ErrCodeExhausted, errorx.Invalid)
		}

		if err := datastore.InsertRedemption(ctx, tx, &models.Redemption{
			UserID:     locked.ID,
			WindowID:   lockedWindow.ID,
			IPHash:     ipHash,
			DeviceHash: deviceHash,
			UserAgent:  userAgent,
			CreatedAt:  now,
		}); err != nil {
			// the unique (user_id, window_id) index backstops the
			// read check above
			return errorx.Wrap(ErrAlreadyRedeemed, errorx.Invalid)
		}

		if err := datastore.IncrementWindowRedemptions(ctx, tx, lockedWindow.ID); err != nil {
			return err
		}

		if err := service.serviceLedger.GrantInTx(ctx, tx, locked, Grant{
			UserID:      locked.ID,
			Amount:      amount,
			Category:    models.RewardCode,
			SourceID:    lockedWindow.ID,
			SourceType:  "code_window",
			Description: fmt.Sprintf("code %s", code),
		}); err != nil {
			return err
		}

		result = &RedeemResult{
			WindowID:   lockedWindow.ID,
			Amount:     amount,
			Multiplier: score.Multiplier,
			Balance:    locked.Balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (service *ServiceCode) rewardAmount(ctx context.Context, window *models.CodeWindow) (int64, error) {
	if window.TaskID == models.TaskIDGeneral {
		amount, _ := service.serviceConfig.GetIntConfig(ctx, CONFIG_GENERAL_CODE_REWARD, GENERAL_CODE_REWARD_DEFAULT)
		return int64(amount), nil
	}

	task, err := datastore.GetTask(ctx, service.readonlyPostgresDB, window.TaskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			amount, _ := service.serviceConfig.GetIntConfig(ctx, CONFIG_GENERAL_CODE_REWARD, GENERAL_CODE_REWARD_DEFAULT)
			return int64(amount), nil
		}
		return 0, err
	}
	return task.RewardAmount, nil
}

func (service *ServiceCode) noteFailure(userID int64) int {
	service.mu.Lock()
	defer service.mu.Unlock()
	service.failures[userID]++
	return service.failures[userID]
}

func (service *ServiceCode) recordFailure(ctx context.Context, userID int64) {
	count := service.noteFailure(userID)
	if count >= BRUTE_FORCE_THRESHOLD {
		service.serviceFraud.Flag(ctx, userID, models.FlagBruteForceCodes, models.SeverityMedium,
			fmt.Sprintf("%d failed code lookups", count))
	}
}
