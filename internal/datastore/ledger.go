package datastore

import (
	"context"

	"bixquest/internal/models"

	"github.com/uptrace/bun"
)

func CreateTableLedger(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.Transaction)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.Transaction)(nil)).Index("index_transaction_user_id").IfNotExists().Column("user_id").Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateTable().Model((*models.RewardLog)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.RewardLog)(nil)).Index("index_reward_log_user_id").IfNotExists().Column("user_id").Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.RewardLog)(nil)).Index("index_reward_log_source_id").IfNotExists().Column("source_id").Exec(ctx)
	if err != nil {
		return err
	}

	return nil
}

func InsertTransaction(ctx context.Context, db bun.IDB, txn *models.Transaction) error {
	_, err := db.NewInsert().Model(txn).Exec(ctx)
	return err
}

func InsertRewardLog(ctx context.Context, db bun.IDB, rl *models.RewardLog) error {
	_, err := db.NewInsert().Model(rl).Exec(ctx)
	return err
}

func ListTransactions(ctx context.Context, db bun.IDB, userID int64, limit int) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := db.NewSelect().Model(&txns).
		Where("user_id = ?", userID).
		OrderExpr("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return txns, nil
}
