package datastore

import (
	"context"
	"fmt"

	"bixquest/internal/models"

	"github.com/uptrace/bun"
)

func CreateTablePlatformMetric(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.PlatformMetric)(nil)).IfNotExists().Exec(ctx)
	return err
}

var metricColumns = map[string]string{
	models.RewardTask:     "task_bix",
	models.RewardCode:     "code_bix",
	models.RewardQuiz:     "quiz_bix",
	models.RewardReferral: "referral_bix",
	models.RewardCheckin:  "checkin_bix",
	models.RewardGame:     "game_bix",
}

// UpsertMetricDelta increments today's counters, creating the row when it
// doesn't exist yet. The ON CONFLICT arm makes two concurrent first
// writers for the same day safe.
func UpsertMetricDelta(ctx context.Context, db bun.IDB, day string, category string, amount int64) error {
	column, ok := metricColumns[category]
	if !ok {
		return fmt.Errorf("unknown reward category %q", category)
	}

	metric := &models.PlatformMetric{
		Day:        day,
		TotalBix:   amount,
		GrantCount: 1,
	}
	switch column {
	case "task_bix":
		metric.TaskBix = amount
	case "code_bix":
		metric.CodeBix = amount
	case "quiz_bix":
		metric.QuizBix = amount
	case "referral_bix":
		metric.ReferralBix = amount
	case "checkin_bix":
		metric.CheckinBix = amount
	case "game_bix":
		metric.GameBix = amount
	}

	_, err := db.NewInsert().Model(metric).
		On("CONFLICT (day) DO UPDATE").
		Set(fmt.Sprintf("%s = platform_metric.%s + EXCLUDED.%s", column, column, column)).
		Set("total_bix = platform_metric.total_bix + EXCLUDED.total_bix").
		Set("grant_count = platform_metric.grant_count + EXCLUDED.grant_count").
		Exec(ctx)
	return err
}

func GetMetrics(ctx context.Context, db bun.IDB, limit int) ([]models.PlatformMetric, error) {
	var metrics []models.PlatformMetric
	err := db.NewSelect().Model(&metrics).
		OrderExpr("day DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return metrics, nil
}
