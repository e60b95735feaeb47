package services

import (
	"context"
	"errors"
	"fmt"

	"bixquest/internal/models"

	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/mroth/weightedrand/v2"
	"github.com/samber/do"
	"github.com/uptrace/bun"
)

var ErrInvalidStake = errors.New("invalid stake")

// Wheel outcome multipliers and their weights.
var wheelOutcomes = []weightedrand.Choice[int64, int]{
	weightedrand.NewChoice(int64(0), 50),
	weightedrand.NewChoice(int64(1), 30),
	weightedrand.NewChoice(int64(2), 15),
	weightedrand.NewChoice(int64(5), 5),
}

type ServiceWheel struct {
	container *do.Injector
	chooser   *weightedrand.Chooser[int64, int]

	serviceLedger *ServiceLedger
	serviceFraud  *ServiceFraud
}

func NewServiceWheel(container *do.Injector) (*ServiceWheel, error) {
	chooser, err := weightedrand.NewChooser(wheelOutcomes...)
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

	return &ServiceWheel{container, chooser, serviceLedger, serviceFraud}, nil
}

type SpinResult struct {
	Outcome    int64   `json:"outcome"`
	Stake      int64   `json:"stake"`
	Payout     int64   `json:"payout"`
	Profit     int64   `json:"profit"`
	Multiplier float64 `json:"multiplier"`
	Balance    int64   `json:"balance"`
}

// Spin settles the stake and the weighted outcome in one transaction.
// The balance can never go negative: the stake is checked against the
// locked row, not a stale read.
func (service *ServiceWheel) Spin(ctx context.Context, user *models.User, stake int64, ipHash string) (*SpinResult, error) {
	if stake <= 0 {
		return nil, errorx.Wrap(ErrInvalidStake, errorx.Validation)
	}

	score, err := service.serviceFraud.Score(ctx, user, ipHash)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.Service)
	}
	if !score.Allowed {
		return nil, errorx.Wrap(ErrUnderReview, errorx.Invalid)
	}

	outcome := service.chooser.Pick()

	var result *SpinResult
	err = service.serviceLedger.WithLedgerTx(ctx, user.ID, func(ctx context.Context, tx bun.Tx, locked *models.User) error {
		if locked.Balance < stake {
			return errorx.Wrap(ErrInsufficientBalance, errorx.Invalid)
		}

		if err := service.serviceLedger.DebitInTx(ctx, tx, locked, stake, models.RewardGame, "wheel stake"); err != nil {
			return err
		}

		payout := stake * outcome
		if payout > 0 {
			returned := payout
			if returned > stake {
				returned = stake
			}
			if err := service.serviceLedger.CreditInTx(ctx, tx, locked, returned, models.RewardGame, "wheel stake returned"); err != nil {
				return err
			}
		}

		// only profit above the stake counts as earnings
		profit := payout - stake
		if profit > 0 {
			profit = score.ApplyMultiplier(profit)
			if err := service.serviceLedger.GrantInTx(ctx, tx, locked, Grant{
				UserID:      locked.ID,
				Amount:      profit,
				Category:    models.RewardGame,
				SourceID:    fmt.Sprintf("wheel:%dx", outcome),
				SourceType:  "wheel_spin",
				Description: fmt.Sprintf("wheel win %dx", outcome),
			}); err != nil {
				return err
			}
		}

		result = &SpinResult{
			Outcome:    outcome,
			Stake:      stake,
			Payout:     payout,
			Profit:     profit,
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
