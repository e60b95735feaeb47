package datastore

import (
	"context"
	"time"

	"bixquest/internal/models"

	"github.com/uptrace/bun"
)

func CreateTableCodeWindow(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.CodeWindow)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.CodeWindow)(nil)).Index("index_code_window_code").Unique().IfNotExists().Column("code").Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateTable().Model((*models.Redemption)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	// at-most-once redemption per user per window
	_, err = db.NewCreateIndex().Model((*models.Redemption)(nil)).Index("index_redemption_user_window").Unique().IfNotExists().Column("user_id", "window_id").Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.Redemption)(nil)).Index("index_redemption_ip_hash").IfNotExists().Column("ip_hash").Exec(ctx)
	if err != nil {
		return err
	}

	return nil
}

func InsertCodeWindow(ctx context.Context, db *bun.DB, window *models.CodeWindow) error {
	_, err := db.NewInsert().Model(window).Exec(ctx)
	return err
}

func GetActiveWindowByCode(ctx context.Context, db bun.IDB, code string) (*models.CodeWindow, error) {
	var window models.CodeWindow
	err := db.NewSelect().Model(&window).
		Where("code = ?", code).
		Where("is_active = TRUE").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &window, nil
}

// LockCodeWindow re-reads the window under a row lock so the redemption
// counter check and increment are indivisible.
func LockCodeWindow(ctx context.Context, tx bun.Tx, windowID string) (*models.CodeWindow, error) {
	var window models.CodeWindow
	err := tx.NewSelect().Model(&window).Where("id = ?", windowID).For("UPDATE").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &window, nil
}

func IncrementWindowRedemptions(ctx context.Context, tx bun.Tx, windowID string) error {
	_, err := tx.NewUpdate().Model((*models.CodeWindow)(nil)).
		Set("current_redemptions = current_redemptions + 1").
		Where("id = ?", windowID).
		Exec(ctx)
	return err
}

func CountWindowsCreatedToday(ctx context.Context, db bun.IDB, taskID string, now time.Time) (int, error) {
	start := dayStartUTC(now)
	return db.NewSelect().Model((*models.CodeWindow)(nil)).
		Where("task_id = ?", taskID).
		Where("is_active = TRUE").
		Where("created_at >= ?", start).
		Count(ctx)
}

func ListCodeWindows(ctx context.Context, db bun.IDB, limit int) ([]models.CodeWindow, error) {
	var windows []models.CodeWindow
	err := db.NewSelect().Model(&windows).
		OrderExpr("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return windows, nil
}

func DeactivateCodeWindow(ctx context.Context, db *bun.DB, windowID string) error {
	_, err := db.NewUpdate().Model((*models.CodeWindow)(nil)).
		Set("is_active = FALSE").
		Where("id = ?", windowID).
		Exec(ctx)
	return err
}

func InsertRedemption(ctx context.Context, db bun.IDB, redemption *models.Redemption) error {
	_, err := db.NewInsert().Model(redemption).Exec(ctx)
	return err
}

func HasRedemption(ctx context.Context, db bun.IDB, userID int64, windowID string) (bool, error) {
	count, err := db.NewSelect().Model((*models.Redemption)(nil)).
		Where("user_id = ?", userID).
		Where("window_id = ?", windowID).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func CountRedemptionsByUserSince(ctx context.Context, db bun.IDB, userID int64, since time.Time) (int, error) {
	return db.NewSelect().Model((*models.Redemption)(nil)).
		Where("user_id = ?", userID).
		Where("created_at >= ?", since).
		Count(ctx)
}

func CountRedemptions(ctx context.Context, db bun.IDB, userID int64) (int, error) {
	return db.NewSelect().Model((*models.Redemption)(nil)).
		Where("user_id = ?", userID).
		Count(ctx)
}

// CountDistinctUsersByIPSince backs the multi-account fraud signal.
func CountDistinctUsersByIPSince(ctx context.Context, db bun.IDB, ipHash string, since time.Time) (int, error) {
	var count int
	err := db.NewSelect().Model((*models.Redemption)(nil)).
		ColumnExpr("COUNT(DISTINCT user_id)").
		Where("ip_hash = ?", ipHash).
		Where("created_at >= ?", since).
		Scan(ctx, &count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// UserSharedIP reports whether the user has any redemption from the given
// IP hash; backs the referral anti-collusion check.
func UserSharedIP(ctx context.Context, db bun.IDB, userID int64, ipHash string) (bool, error) {
	if ipHash == "" {
		return false, nil
	}
	count, err := db.NewSelect().Model((*models.Redemption)(nil)).
		Where("user_id = ?", userID).
		Where("ip_hash = ?", ipHash).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RedemptionIPOverlap reports whether two users share any redemption IP
// hash in the trailing window.
func RedemptionIPOverlap(ctx context.Context, db bun.IDB, userA, userB int64, since time.Time) (bool, error) {
	count, err := db.NewSelect().Model((*models.Redemption)(nil)).
		Where("user_id = ?", userA).
		Where("created_at >= ?", since).
		Where("ip_hash != ''").
		Where("ip_hash IN (SELECT ip_hash FROM redemption WHERE user_id = ? AND created_at >= ?)", userB, since).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
