package services

import (
	"context"
	"errors"
	"math"
	"time"

	"bixquest/internal/datastore"
	"bixquest/internal/models"

	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/samber/do"
	"github.com/uptrace/bun"
)

var ErrAlreadyCheckedIn = errors.New("already checked in today")

type ServiceCheckin struct {
	container *do.Injector

	serviceLedger *ServiceLedger
	serviceFraud  *ServiceFraud
	serviceConfig *ServiceConfig
}

func NewServiceCheckin(container *do.Injector) (*ServiceCheckin, error) {
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

	return &ServiceCheckin{container, serviceLedger, serviceFraud, serviceConfig}, nil
}

type CheckinResult struct {
	Streak     int     `json:"streak"`
	Multiplier float64 `json:"multiplier"`
	Amount     int64   `json:"amount"`
	Balance    int64   `json:"balance"`
}

func (service *ServiceCheckin) Checkin(ctx context.Context, user *models.User, ipHash string) (*CheckinResult, error) {
	score, err := service.serviceFraud.Score(ctx, user, ipHash)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.Service)
	}
	if !score.Allowed {
		return nil, errorx.Wrap(ErrUnderReview, errorx.Invalid)
	}

	base, _ := service.serviceConfig.GetIntConfig(ctx, CONFIG_CHECKIN_BASE_REWARD, CHECKIN_BASE_REWARD_DEFAULT)

	var result *CheckinResult
	err = service.serviceLedger.WithLedgerTx(ctx, user.ID, func(ctx context.Context, tx bun.Tx, locked *models.User) error {
		now := time.Now().UTC()
		if locked.LastCheckinAt != nil && sameUTCDay(*locked.LastCheckinAt, now) {
			return errorx.Wrap(ErrAlreadyCheckedIn, errorx.Invalid)
		}

		streak := nextStreak(locked.LastCheckinAt, locked.DailyStreak, now)
		multiplier := streakMultiplier(streak)
		amount := score.ApplyMultiplier(int64(math.Round(float64(base) * multiplier)))

		locked.DailyStreak = streak
		locked.LastCheckinAt = &now
		if err := datastore.UpdateUserCheckin(ctx, tx, locked); err != nil {
			return err
		}

		if err := service.serviceLedger.GrantInTx(ctx, tx, locked, Grant{
			UserID:      locked.ID,
			Amount:      amount,
			Category:    models.RewardCheckin,
			SourceID:    now.Format("2006-01-02"),
			SourceType:  "checkin",
			Description: "daily check-in",
		}); err != nil {
			return err
		}

		result = &CheckinResult{
			Streak:     streak,
			Multiplier: multiplier,
			Amount:     amount,
			Balance:    locked.Balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// nextStreak continues the streak only when the last check-in fell on
// exactly the previous UTC date; any gap resets to 1.
func nextStreak(last *time.Time, current int, now time.Time) int {
	if last == nil {
		return 1
	}
	yesterday := now.AddDate(0, 0, -1)
	if sameUTCDay(*last, yesterday) {
		return current + 1
	}
	return 1
}

func streakMultiplier(streak int) float64 {
	multiplier := 1 + float64(streak-1)*CHECKIN_STREAK_STEP
	if multiplier > CHECKIN_MAX_MULTIPLIER {
		multiplier = CHECKIN_MAX_MULTIPLIER
	}
	return multiplier
}
