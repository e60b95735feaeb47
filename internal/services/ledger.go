package services

import (
	"context"
	"log"
	"math"
	"time"

	"bixquest/internal/datastore"
	"bixquest/internal/models"
	"bixquest/internal/pkg/caching"

	"github.com/go-redsync/redsync/v4"
	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/samber/do"
	"github.com/uptrace/bun"
)

// Grant is one reward credit flowing through the ledger. Amount must
// already carry the fraud multiplier.
type Grant struct {
	UserID      int64
	Amount      int64
	XP          int64
	Category    string
	SourceID    string
	SourceType  string
	Description string

	// SkipCommission stops earnings from feeding the referrer's
	// deferred commission (used when settling the commission itself).
	SkipCommission bool
}

// ServiceLedger owns the single atomic credit/debit unit every reward
// pathway settles through. All balance mutations happen inside a
// per-user redsync mutex plus a transaction holding the user row lock.
type ServiceLedger struct {
	container          *do.Injector
	rs                 *redsync.Redsync
	postgresDB         *bun.DB
	readonlyPostgresDB *bun.DB
	cache              caching.Cache

	serviceMetrics *ServiceMetrics
}

func NewServiceLedger(container *do.Injector) (*ServiceLedger, error) {
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

	serviceMetrics, err := do.Invoke[*ServiceMetrics](container)
	if err != nil {
		return nil, err
	}

	return &ServiceLedger{container, rs, postgresDB, readonlyPostgresDB, cache, serviceMetrics}, nil
}

// WithLedgerTx serializes on the user's ledger mutex, opens a
// transaction, locks the user row and hands both to fn. The user cache
// entry is dropped after commit.
func (service *ServiceLedger) WithLedgerTx(ctx context.Context, userID int64, fn func(ctx context.Context, tx bun.Tx, user *models.User) error) error {
	mutex := service.rs.NewMutex(LockKeyLedger(userID))
	if err := mutex.Lock(); err != nil {
		return errorx.Wrap(ErrLedgerLock, errorx.Invalid)
	}
	defer mutex.Unlock()

	err := service.postgresDB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := datastore.LockUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		return fn(ctx, tx, user)
	})
	if err != nil {
		return err
	}

	_ = service.cache.Delete(ctx, DBKeyUser(userID))
	_ = service.cache.Delete(ctx, DBKeyMe(userID))
	return nil
}

// Settle runs a single grant as its own transaction and returns the
// updated user.
func (service *ServiceLedger) Settle(ctx context.Context, grant Grant) (*models.User, error) {
	var settled *models.User
	err := service.WithLedgerTx(ctx, grant.UserID, func(ctx context.Context, tx bun.Tx, user *models.User) error {
		if err := service.GrantInTx(ctx, tx, user, grant); err != nil {
			return err
		}
		settled = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

// GrantInTx applies a credit to an already locked user row and writes
// the Transaction, RewardLog and PlatformMetric rows alongside it. The
// caller owns the transaction; a failure anywhere rolls back the whole
// unit.
func (service *ServiceLedger) GrantInTx(ctx context.Context, tx bun.Tx, user *models.User, grant Grant) error {
	if grant.Amount < 0 {
		return errorx.Wrap(ErrInsufficientBalance, errorx.Invalid)
	}

	user.Balance += grant.Amount
	user.TotalEarned += grant.Amount
	user.XP += grant.XP
	user.UpdatedAt = time.Now()
	if user.Balance < 0 {
		return errorx.Wrap(ErrInsufficientBalance, errorx.Invalid)
	}

	if err := datastore.ApplyBalanceDelta(ctx, tx, user); err != nil {
		return err
	}

	if err := datastore.InsertTransaction(ctx, tx, &models.Transaction{
		UserID:      user.ID,
		Amount:      grant.Amount,
		Kind:        grant.Category,
		Description: grant.Description,
		CreatedAt:   time.Now(),
	}); err != nil {
		return err
	}

	if err := datastore.InsertRewardLog(ctx, tx, &models.RewardLog{
		UserID:     user.ID,
		RewardType: grant.Category,
		Amount:     grant.Amount,
		SourceID:   grant.SourceID,
		SourceType: grant.SourceType,
		CreatedAt:  time.Now(),
	}); err != nil {
		return err
	}

	day := time.Now().UTC().Format("2006-01-02")
	if err := datastore.UpsertMetricDelta(ctx, tx, day, grant.Category, grant.Amount); err != nil {
		return err
	}
	service.serviceMetrics.ObserveGrant(grant.Category, grant.Amount)

	if !grant.SkipCommission {
		if err := service.scheduleCommissionInTx(ctx, tx, user, grant); err != nil {
			// commission is best effort; the earning itself stands
			log.Println("scheduleCommission error:", err, "user:", user.ID)
		}
	}

	return nil
}

// DebitInTx reduces the balance of an already locked user row. It never
// touches totalEarned and fails the transaction when the balance would
// go negative.
func (service *ServiceLedger) DebitInTx(ctx context.Context, tx bun.Tx, user *models.User, amount int64, kind string, description string) error {
	if amount <= 0 {
		return errorx.Wrap(ErrInsufficientBalance, errorx.Invalid)
	}

	user.Balance -= amount
	user.UpdatedAt = time.Now()
	if user.Balance < 0 {
		return errorx.Wrap(ErrInsufficientBalance, errorx.Invalid)
	}

	if err := datastore.ApplyBalanceDelta(ctx, tx, user); err != nil {
		return err
	}

	return datastore.InsertTransaction(ctx, tx, &models.Transaction{
		UserID:      user.ID,
		Amount:      -amount,
		Kind:        kind,
		Description: description,
		CreatedAt:   time.Now(),
	})
}

// CreditInTx returns previously staked balance to an already locked
// user row. It does not count as earnings, so totalEarned, reward logs
// and metrics stay untouched.
func (service *ServiceLedger) CreditInTx(ctx context.Context, tx bun.Tx, user *models.User, amount int64, kind string, description string) error {
	if amount <= 0 {
		return nil
	}

	user.Balance += amount
	user.UpdatedAt = time.Now()
	if err := datastore.ApplyBalanceDelta(ctx, tx, user); err != nil {
		return err
	}

	return datastore.InsertTransaction(ctx, tx, &models.Transaction{
		UserID:      user.ID,
		Amount:      amount,
		Kind:        kind,
		Description: description,
		CreatedAt:   time.Now(),
	})
}

// scheduleCommissionInTx books the referrer's 10% deferred commission
// for this earning. Skipped when the actor has no referrer, when the
// referred user is still below the activity threshold, or when the two
// accounts share redemption IPs.
func (service *ServiceLedger) scheduleCommissionInTx(ctx context.Context, tx bun.Tx, user *models.User, grant Grant) error {
	if user.ReferredBy == nil || grant.Amount <= 0 {
		return nil
	}
	referrerID := *user.ReferredBy

	tasks, err := datastore.CountCompletedTasks(ctx, tx, user.ID)
	if err != nil {
		return err
	}
	redemptions, err := datastore.CountRedemptions(ctx, tx, user.ID)
	if err != nil {
		return err
	}
	if tasks+redemptions < REFERRAL_MIN_ACTIVITIES {
		return nil
	}

	overlap, err := datastore.RedemptionIPOverlap(ctx, tx, referrerID, user.ID, time.Now().Add(-REFERRAL_IP_OVERLAP_WINDOW))
	if err != nil {
		return err
	}
	if overlap {
		return nil
	}

	amount := int64(math.Round(float64(grant.Amount) * REFERRAL_COMMISSION_RATE))
	if amount <= 0 {
		return nil
	}

	return datastore.InsertReferralCommission(ctx, tx, &models.ReferralCommission{
		ReferrerID: referrerID,
		ReferredID: user.ID,
		Amount:     amount,
		Status:     models.PendingStatusPending,
		ProcessAt:  time.Now().Add(REFERRAL_COMMISSION_DELAY),
		SourceID:   grant.SourceID,
		CreatedAt:  time.Now(),
	})
}

func (service *ServiceLedger) History(ctx context.Context, userID int64, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = HISTORY_PAGE_LIMIT_DEFAULT
	}
	if limit > HISTORY_PAGE_LIMIT_MAX {
		limit = HISTORY_PAGE_LIMIT_MAX
	}
	return datastore.ListTransactions(ctx, service.readonlyPostgresDB, userID, limit)
}
