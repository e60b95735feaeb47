package datastore

import (
	"context"
	"time"

	"bixquest/internal/models"

	"github.com/uptrace/bun"
)

func CreateTableReferral(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.ReferralHistory)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.ReferralHistory)(nil)).Index("index_referral_history_referred").Unique().IfNotExists().Column("referred_id").Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateTable().Model((*models.PendingReward)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.PendingReward)(nil)).Index("index_pending_reward_user_status").IfNotExists().Column("user_id", "status").Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateTable().Model((*models.ReferralCommission)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.ReferralCommission)(nil)).Index("index_referral_commission_referrer_status").IfNotExists().Column("referrer_id", "status").Exec(ctx)
	if err != nil {
		return err
	}

	return nil
}

func InsertReferralHistory(ctx context.Context, db bun.IDB, history *models.ReferralHistory) error {
	_, err := db.NewInsert().Model(history).Exec(ctx)
	return err
}

func HasReferralRecord(ctx context.Context, db bun.IDB, referredID int64) (bool, error) {
	count, err := db.NewSelect().Model((*models.ReferralHistory)(nil)).
		Where("referred_id = ?", referredID).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func CountReferrals(ctx context.Context, db bun.IDB, referrerID int64) (int, error) {
	return db.NewSelect().Model((*models.ReferralHistory)(nil)).
		Where("referrer_id = ?", referrerID).
		Count(ctx)
}

func CountReferralsOnDate(ctx context.Context, db bun.IDB, referrerID int64, day time.Time) (int, error) {
	start := dayStartUTC(day)
	return db.NewSelect().Model((*models.ReferralHistory)(nil)).
		Where("referrer_id = ?", referrerID).
		Where("created_at >= ?", start).
		Where("created_at < ?", start.Add(24*time.Hour)).
		Count(ctx)
}

func InsertPendingReward(ctx context.Context, db bun.IDB, pending *models.PendingReward) error {
	_, err := db.NewInsert().Model(pending).Exec(ctx)
	return err
}

func InsertReferralCommission(ctx context.Context, db bun.IDB, commission *models.ReferralCommission) error {
	_, err := db.NewInsert().Model(commission).Exec(ctx)
	return err
}

func MaturedPendingRewards(ctx context.Context, db bun.IDB, userID int64, now time.Time) ([]models.PendingReward, error) {
	var rows []models.PendingReward
	err := db.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		Where("status = ?", models.PendingStatusPending).
		Where("eligible_at <= ?", now).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func MaturedCommissions(ctx context.Context, db bun.IDB, referrerID int64, now time.Time) ([]models.ReferralCommission, error) {
	var rows []models.ReferralCommission
	err := db.NewSelect().Model(&rows).
		Where("referrer_id = ?", referrerID).
		Where("status = ?", models.PendingStatusPending).
		Where("process_at <= ?", now).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// AllMaturedPendingRewards feeds the periodic sweeper.
func AllMaturedPendingRewards(ctx context.Context, db bun.IDB, now time.Time, limit int) ([]models.PendingReward, error) {
	var rows []models.PendingReward
	err := db.NewSelect().Model(&rows).
		Where("status = ?", models.PendingStatusPending).
		Where("eligible_at <= ?", now).
		OrderExpr("eligible_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func AllMaturedCommissions(ctx context.Context, db bun.IDB, now time.Time, limit int) ([]models.ReferralCommission, error) {
	var rows []models.ReferralCommission
	err := db.NewSelect().Model(&rows).
		Where("status = ?", models.PendingStatusPending).
		Where("process_at <= ?", now).
		OrderExpr("process_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkPendingProcessed flips a pending reward exactly once; the returned
// count is zero when another request already settled the row.
func MarkPendingProcessed(ctx context.Context, tx bun.Tx, id int64, now time.Time) (bool, error) {
	res, err := tx.NewUpdate().Model((*models.PendingReward)(nil)).
		Set("status = ?", models.PendingStatusProcessed).
		Set("processed_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", models.PendingStatusPending).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func MarkCommissionProcessed(ctx context.Context, tx bun.Tx, id int64, now time.Time) (bool, error) {
	res, err := tx.NewUpdate().Model((*models.ReferralCommission)(nil)).
		Set("status = ?", models.PendingStatusProcessed).
		Set("processed_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", models.PendingStatusPending).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
