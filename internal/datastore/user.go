package datastore

import (
	"context"
	"time"

	"bixquest/internal/models"

	"github.com/uptrace/bun"
)

func CreateTableUser(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.User)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.User)(nil)).Index("index_user_profile_ref_code").Unique().IfNotExists().Column("ref_code").Exec(ctx)
	if err != nil {
		return err
	}

	return nil
}

func FindUserByID(ctx context.Context, db bun.IDB, userID int64) (*models.User, error) {
	var user models.User
	err := db.NewSelect().Model(&user).Where("id = ?", userID).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func CreateUser(ctx context.Context, db *bun.DB, user *models.User) (*models.User, error) {
	_, err := db.NewInsert().Model(user).Exec(ctx)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func UpdateUserProfile(ctx context.Context, db *bun.DB, user *models.User) error {
	user.UpdatedAt = time.Now()
	_, err := db.NewUpdate().Model(user).
		Set("username = ?", user.Username).
		Set("updated_at = ?", user.UpdatedAt).
		WherePK().Exec(ctx)
	return err
}

// LockUser takes a row lock on the profile for the duration of the
// surrounding transaction. Every balance mutation goes through this.
func LockUser(ctx context.Context, tx bun.Tx, userID int64) (*models.User, error) {
	var user models.User
	err := tx.NewSelect().Model(&user).Where("id = ?", userID).For("UPDATE").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ApplyBalanceDelta persists a balance/earned/xp change computed against a
// locked row.
func ApplyBalanceDelta(ctx context.Context, tx bun.Tx, user *models.User) error {
	_, err := tx.NewUpdate().Model(user).
		Set("balance = ?", user.Balance).
		Set("total_earned = ?", user.TotalEarned).
		Set("xp = ?", user.XP).
		Set("updated_at = current_timestamp").
		WherePK().Exec(ctx)
	return err
}

func UpdateUserCheckin(ctx context.Context, tx bun.Tx, user *models.User) error {
	_, err := tx.NewUpdate().Model(user).
		Set("daily_streak = ?", user.DailyStreak).
		Set("last_checkin_at = ?", user.LastCheckinAt).
		Set("updated_at = current_timestamp").
		WherePK().Exec(ctx)
	return err
}

func SetReferredBy(ctx context.Context, tx bun.Tx, userID int64, referrerID int64) error {
	_, err := tx.NewUpdate().Model((*models.User)(nil)).
		Set("referred_by = ?", referrerID).
		Set("updated_at = current_timestamp").
		Where("id = ?", userID).
		Where("referred_by IS NULL").
		Exec(ctx)
	return err
}

func GetUserByRefCode(ctx context.Context, db bun.IDB, refCode string) (*models.User, error) {
	var user models.User
	err := db.NewSelect().Model(&user).Where("ref_code = ?", refCode).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
