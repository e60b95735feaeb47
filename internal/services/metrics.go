package services

import (
	"context"

	"bixquest/internal/datastore"
	"bixquest/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/do"
	"github.com/uptrace/bun"
)

// ServiceMetrics mirrors reward grants into prometheus counters. The
// platform_metric table stays the source of truth; these counters only
// feed dashboards.
type ServiceMetrics struct {
	container          *do.Injector
	readonlyPostgresDB *bun.DB

	grantsTotal *prometheus.CounterVec
	bixIssued   *prometheus.CounterVec
}

func NewServiceMetrics(container *do.Injector) (*ServiceMetrics, error) {
	readonlyPostgresDB, err := do.InvokeNamed[*bun.DB](container, "db-readonly")
	if err != nil {
		return nil, err
	}

	grantsTotal := promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bixquest",
		Name:      "reward_grants_total",
		Help:      "Number of settled reward grants by category.",
	}, []string{"category"})

	bixIssued := promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bixquest",
		Name:      "bix_issued_total",
		Help:      "Total BIX credited by category.",
	}, []string{"category"})

	return &ServiceMetrics{container, readonlyPostgresDB, grantsTotal, bixIssued}, nil
}

func (service *ServiceMetrics) ObserveGrant(category string, amount int64) {
	service.grantsTotal.WithLabelValues(category).Inc()
	if amount > 0 {
		service.bixIssued.WithLabelValues(category).Add(float64(amount))
	}
}

func (service *ServiceMetrics) GetMetrics(ctx context.Context, days int) ([]models.PlatformMetric, error) {
	if days <= 0 || days > 90 {
		days = 30
	}
	return datastore.GetMetrics(ctx, service.readonlyPostgresDB, days)
}
