package datastore

import (
	"context"
	"time"

	"bixquest/internal/models"

	"github.com/uptrace/bun"
)

func CreateTableAbuseFlag(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.AbuseFlag)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.AbuseFlag)(nil)).Index("index_abuse_flag_user_id").IfNotExists().Column("user_id").Exec(ctx)
	if err != nil {
		return err
	}

	return nil
}

func InsertAbuseFlag(ctx context.Context, db bun.IDB, flag *models.AbuseFlag) error {
	_, err := db.NewInsert().Model(flag).Exec(ctx)
	return err
}

func UnresolvedFlagsByUser(ctx context.Context, db bun.IDB, userID int64) ([]models.AbuseFlag, error) {
	var flags []models.AbuseFlag
	err := db.NewSelect().Model(&flags).
		Where("user_id = ?", userID).
		Where("resolved = FALSE").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return flags, nil
}

func HasUnresolvedFlagOfType(ctx context.Context, db bun.IDB, userID int64, flagType string) (bool, error) {
	count, err := db.NewSelect().Model((*models.AbuseFlag)(nil)).
		Where("user_id = ?", userID).
		Where("flag_type = ?", flagType).
		Where("resolved = FALSE").
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func ListUnresolvedFlags(ctx context.Context, db bun.IDB, limit int) ([]models.AbuseFlag, error) {
	var flags []models.AbuseFlag
	err := db.NewSelect().Model(&flags).
		Where("resolved = FALSE").
		OrderExpr("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return flags, nil
}

func ResolveAbuseFlag(ctx context.Context, db *bun.DB, flagID int64, adminID int64, at time.Time) (bool, error) {
	res, err := db.NewUpdate().Model((*models.AbuseFlag)(nil)).
		Set("resolved = TRUE").
		Set("resolved_by = ?", adminID).
		Set("resolved_at = ?", at).
		Where("id = ?", flagID).
		Where("resolved = FALSE").
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
