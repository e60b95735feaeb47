package datastore

import (
	"context"

	"github.com/uptrace/bun"
)

func CreateTables(ctx context.Context, db *bun.DB) error {
	for _, create := range []func(context.Context, *bun.DB) error{
		CreateTableUser,
		CreateTableLedger,
		CreateTableTask,
		CreateTableCodeWindow,
		CreateTableQuiz,
		CreateTableReferral,
		CreateTableAbuseFlag,
		CreateTablePlatformMetric,
		CreateTableConfig,
	} {
		if err := create(ctx, db); err != nil {
			return err
		}
	}
	return nil
}
