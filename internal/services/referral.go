package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"bixquest/internal/datastore"
	"bixquest/internal/models"

	"github.com/go-redsync/redsync/v4"
	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/samber/do"
	"github.com/uptrace/bun"
)

var ErrInvalidRefCode = errors.New("invalid referral code")
var ErrSelfReferral = errors.New("cannot refer yourself")
var ErrAlreadyReferred = errors.New("already referred")
var ErrDuplicateReferral = errors.New("duplicate referral record")
var ErrSuspiciousActivity = errors.New("suspicious referral activity")
var ErrReferrerLimit = errors.New("referrer daily limit reached")

type ServiceReferral struct {
	container          *do.Injector
	rs                 *redsync.Redsync
	postgresDB         *bun.DB
	readonlyPostgresDB *bun.DB

	serviceLedger *ServiceLedger
	serviceFraud  *ServiceFraud
	serviceConfig *ServiceConfig
}

func NewServiceReferral(container *do.Injector) (*ServiceReferral, error) {
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

	return &ServiceReferral{container, rs, postgresDB, readonlyPostgresDB, serviceLedger, serviceFraud, serviceConfig}, nil
}

type ReferralResult struct {
	ReferrerID  int64 `json:"referrer_id"`
	SignupBonus int64 `json:"signup_bonus"`
	Balance     int64 `json:"balance"`
}

// ProcessReferral binds the actor to a referrer, credits the signup
// bonus immediately and books the referrer's bonus as a deferred reward
// maturing after 24 hours.
func (service *ServiceReferral) ProcessReferral(ctx context.Context, user *models.User, refCode string, ipHash string) (*ReferralResult, error) {
	if refCode == "" {
		return nil, errorx.Wrap(ErrInvalidRefCode, errorx.Validation)
	}

	referrer, err := datastore.GetUserByRefCode(ctx, service.readonlyPostgresDB, refCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errorx.Wrap(ErrInvalidRefCode, errorx.NotExist)
		}
		return nil, errorx.Wrap(err, errorx.Service)
	}

	if referrer.ID == user.ID {
		return nil, errorx.Wrap(ErrSelfReferral, errorx.Invalid)
	}
	if user.ReferredBy != nil {
		return nil, errorx.Wrap(ErrAlreadyReferred, errorx.Invalid)
	}

	mutex := service.rs.NewMutex(LockKeyReferral(user.ID))
	if err := mutex.Lock(); err != nil {
		return nil, errorx.Wrap(ErrReferralLock, errorx.Invalid)
	}
	defer mutex.Unlock()

	exists, err := datastore.HasReferralRecord(ctx, service.readonlyPostgresDB, user.ID)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.Service)
	}
	if exists {
		return nil, errorx.Wrap(ErrDuplicateReferral, errorx.Invalid)
	}

	if ipHash != "" {
		shared, err := datastore.UserSharedIP(ctx, service.readonlyPostgresDB, referrer.ID, ipHash)
		if err != nil {
			return nil, errorx.Wrap(err, errorx.Service)
		}
		if shared {
			service.serviceFraud.Flag(ctx, user.ID, models.FlagReferralIPMatch, models.SeverityHigh,
				fmt.Sprintf("referred by %d from a shared ip", referrer.ID))
			return nil, errorx.Wrap(ErrSuspiciousActivity, errorx.Invalid)
		}
	}

	todays, err := datastore.CountReferralsOnDate(ctx, service.readonlyPostgresDB, referrer.ID, time.Now())
	if err != nil {
		return nil, errorx.Wrap(err, errorx.Service)
	}
	if todays >= REFERRER_DAILY_LIMIT {
		return nil, errorx.Wrap(ErrReferrerLimit, errorx.Invalid)
	}

	score, err := service.serviceFraud.Score(ctx, user, ipHash)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.Service)
	}
	if !score.Allowed {
		return nil, errorx.Wrap(ErrUnderReview, errorx.Invalid)
	}

	signupBonus, _ := service.serviceConfig.GetIntConfig(ctx, CONFIG_REFERRAL_SIGNUP_BONUS, REFERRAL_SIGNUP_BONUS_DEFAULT)
	referrerBonus, _ := service.serviceConfig.GetIntConfig(ctx, CONFIG_REFERRER_BONUS, REFERRER_BONUS_DEFAULT)
	bonus := score.ApplyMultiplier(int64(signupBonus))

	var result *ReferralResult
	err = service.serviceLedger.WithLedgerTx(ctx, user.ID, func(ctx context.Context, tx bun.Tx, locked *models.User) error {
		if locked.ReferredBy != nil {
			return errorx.Wrap(ErrAlreadyReferred, errorx.Invalid)
		}

		if err := datastore.SetReferredBy(ctx, tx, locked.ID, referrer.ID); err != nil {
			return err
		}
		locked.ReferredBy = &referrer.ID

		history := &models.ReferralHistory{
			ReferrerID: referrer.ID,
			ReferredID: locked.ID,
			IPHash:     ipHash,
			CreatedAt:  time.Now(),
		}
		if err := datastore.InsertReferralHistory(ctx, tx, history); err != nil {
			// the unique referred_id index backstops the read check
			return errorx.Wrap(ErrDuplicateReferral, errorx.Invalid)
		}

		if err := service.serviceLedger.GrantInTx(ctx, tx, locked, Grant{
			UserID:      locked.ID,
			Amount:      bonus,
			Category:    models.RewardReferral,
			SourceID:    strconv.FormatInt(referrer.ID, 10),
			SourceType:  "referral_signup",
			Description: "referral signup bonus",
			// signup bonuses never feed the commission pathway
			SkipCommission: true,
		}); err != nil {
			return err
		}

		if err := datastore.InsertPendingReward(ctx, tx, &models.PendingReward{
			UserID:     referrer.ID,
			Amount:     int64(referrerBonus),
			Status:     models.PendingStatusPending,
			EligibleAt: time.Now().Add(REFERRER_BONUS_DELAY),
			SourceID:   strconv.FormatInt(locked.ID, 10),
			CreatedAt:  time.Now(),
		}); err != nil {
			return err
		}

		result = &ReferralResult{
			ReferrerID:  referrer.ID,
			SignupBonus: bonus,
			Balance:     locked.Balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// SweepUser settles the actor's matured deferred rewards and referral
// commissions. It is called opportunistically on every authenticated
// request and is safe to run concurrently: the status flip only
// succeeds once.
func (service *ServiceReferral) SweepUser(ctx context.Context, userID int64) error {
	now := time.Now()

	pendings, err := datastore.MaturedPendingRewards(ctx, service.readonlyPostgresDB, userID, now)
	if err != nil {
		return err
	}
	for _, pending := range pendings {
		if err := service.settlePending(ctx, pending); err != nil {
			log.Println("settlePending error:", err, "pending:", pending.ID, "user:", pending.UserID)
		}
	}

	commissions, err := datastore.MaturedCommissions(ctx, service.readonlyPostgresDB, userID, now)
	if err != nil {
		return err
	}
	for _, commission := range commissions {
		if err := service.settleCommission(ctx, commission); err != nil {
			log.Println("settleCommission error:", err, "commission:", commission.ID, "referrer:", commission.ReferrerID)
		}
	}

	return nil
}

// SweepAll is the periodic pass over everything matured, regardless of
// whether the beneficiary has been active.
func (service *ServiceReferral) SweepAll(ctx context.Context) error {
	now := time.Now()

	pendings, err := datastore.AllMaturedPendingRewards(ctx, service.readonlyPostgresDB, now, SWEEP_BATCH_LIMIT)
	if err != nil {
		return err
	}
	for _, pending := range pendings {
		if err := service.settlePending(ctx, pending); err != nil {
			log.Println("settlePending error:", err, "pending:", pending.ID, "user:", pending.UserID)
		}
	}

	commissions, err := datastore.AllMaturedCommissions(ctx, service.readonlyPostgresDB, now, SWEEP_BATCH_LIMIT)
	if err != nil {
		return err
	}
	for _, commission := range commissions {
		if err := service.settleCommission(ctx, commission); err != nil {
			log.Println("settleCommission error:", err, "commission:", commission.ID, "referrer:", commission.ReferrerID)
		}
	}

	return nil
}

func (service *ServiceReferral) settlePending(ctx context.Context, pending models.PendingReward) error {
	return service.serviceLedger.WithLedgerTx(ctx, pending.UserID, func(ctx context.Context, tx bun.Tx, locked *models.User) error {
		flipped, err := datastore.MarkPendingProcessed(ctx, tx, pending.ID, time.Now())
		if err != nil {
			return err
		}
		if !flipped {
			// another sweeper got here first
			return nil
		}

		return service.serviceLedger.GrantInTx(ctx, tx, locked, Grant{
			UserID:         locked.ID,
			Amount:         pending.Amount,
			Category:       models.RewardReferral,
			SourceID:       pending.SourceID,
			SourceType:     "pending_reward",
			Description:    "referrer bonus",
			SkipCommission: true,
		})
	})
}

func (service *ServiceReferral) settleCommission(ctx context.Context, commission models.ReferralCommission) error {
	return service.serviceLedger.WithLedgerTx(ctx, commission.ReferrerID, func(ctx context.Context, tx bun.Tx, locked *models.User) error {
		flipped, err := datastore.MarkCommissionProcessed(ctx, tx, commission.ID, time.Now())
		if err != nil {
			return err
		}
		if !flipped {
			return nil
		}

		return service.serviceLedger.GrantInTx(ctx, tx, locked, Grant{
			UserID:         locked.ID,
			Amount:         commission.Amount,
			Category:       models.RewardReferral,
			SourceID:       commission.SourceID,
			SourceType:     "referral_commission",
			Description:    fmt.Sprintf("commission from %d", commission.ReferredID),
			SkipCommission: true,
		})
	})
}

func (service *ServiceReferral) CountReferrals(ctx context.Context, userID int64) (int, error) {
	return datastore.CountReferrals(ctx, service.readonlyPostgresDB, userID)
}
