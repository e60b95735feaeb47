package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"bixquest/internal/datastore"
	"bixquest/internal/models"

	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/samber/do"
	"github.com/uptrace/bun"
)

type FraudScore struct {
	Allowed    bool    `json:"allowed"`
	Multiplier float64 `json:"multiplier"`
	Reason     string  `json:"reason,omitempty"`
}

type fraudSignals struct {
	blockingFlag    bool
	recentVelocity  int
	ipClusterActors int
	lowFlags        int
}

// ServiceFraud turns abuse signals into a reward multiplier and a hard
// block decision. The multiplier is applied to every reward grant, not
// only to redemptions.
type ServiceFraud struct {
	container          *do.Injector
	postgresDB         *bun.DB
	readonlyPostgresDB *bun.DB
}

func NewServiceFraud(container *do.Injector) (*ServiceFraud, error) {
	postgresDB, err := do.Invoke[*bun.DB](container)
	if err != nil {
		return nil, err
	}

	readonlyPostgresDB, err := do.InvokeNamed[*bun.DB](container, "db-readonly")
	if err != nil {
		return nil, err
	}

	return &ServiceFraud{container, postgresDB, readonlyPostgresDB}, nil
}

func (service *ServiceFraud) Score(ctx context.Context, user *models.User, ipHash string) (*FraudScore, error) {
	flags, err := datastore.UnresolvedFlagsByUser(ctx, service.readonlyPostgresDB, user.ID)
	if err != nil {
		return nil, err
	}

	signals := fraudSignals{}
	for _, flag := range flags {
		if flag.Blocking() {
			signals.blockingFlag = true
		}
		if flag.Severity == models.SeverityLow {
			signals.lowFlags++
		}
	}

	if signals.blockingFlag {
		return &FraudScore{Allowed: false, Multiplier: 0, Reason: "unresolved blocking flag"}, nil
	}

	now := time.Now()
	signals.recentVelocity, err = datastore.CountRedemptionsByUserSince(ctx, service.readonlyPostgresDB, user.ID, now.Add(-FRAUD_VELOCITY_WINDOW))
	if err != nil {
		return nil, err
	}

	if ipHash != "" {
		signals.ipClusterActors, err = datastore.CountDistinctUsersByIPSince(ctx, service.readonlyPostgresDB, ipHash, now.Add(-FRAUD_IP_CLUSTER_WINDOW))
		if err != nil {
			return nil, err
		}
	}

	score := scoreFromSignals(signals)

	if signals.ipClusterActors > FRAUD_IP_CLUSTER_ACTORS {
		service.flagOnce(ctx, user.ID, models.FlagMultiAccountIP, models.SeverityMedium,
			fmt.Sprintf("%d actors redeemed from ip %s within 24h", signals.ipClusterActors, ipHash))
	}

	return score, nil
}

// scoreFromSignals is the pure scoring rule; kept free of IO for tests.
func scoreFromSignals(signals fraudSignals) *FraudScore {
	if signals.blockingFlag {
		return &FraudScore{Allowed: false, Multiplier: 0, Reason: "unresolved blocking flag"}
	}

	multiplier := 1.0
	reason := ""

	if signals.recentVelocity >= FRAUD_VELOCITY_COUNT {
		multiplier *= FRAUD_VELOCITY_PENALTY
		reason = "redemption velocity"
	}
	if signals.ipClusterActors > FRAUD_IP_CLUSTER_ACTORS {
		multiplier *= FRAUD_IP_CLUSTER_PENALTY
		reason = "ip cluster"
	}
	if signals.lowFlags >= 1 && signals.lowFlags <= 2 {
		multiplier *= FRAUD_LOW_FLAGS_PENALTY
		if reason == "" {
			reason = "unresolved low flags"
		}
	}
	if multiplier < FRAUD_MULTIPLIER_FLOOR {
		multiplier = FRAUD_MULTIPLIER_FLOOR
	}

	return &FraudScore{Allowed: true, Multiplier: multiplier, Reason: reason}
}

// ApplyMultiplier rounds the adjusted amount half away from zero.
func (score *FraudScore) ApplyMultiplier(amount int64) int64 {
	return int64(math.Round(float64(amount) * score.Multiplier))
}

// flagOnce persists a flag unless an unresolved one of the same type
// already exists. Failures are logged and never fail the caller.
func (service *ServiceFraud) flagOnce(ctx context.Context, userID int64, flagType string, severity models.FlagSeverity, details string) {
	exists, err := datastore.HasUnresolvedFlagOfType(ctx, service.postgresDB, userID, flagType)
	if err != nil {
		log.Println("flagOnce lookup error:", err, "user:", userID, "type:", flagType)
		return
	}
	if exists {
		return
	}

	err = datastore.InsertAbuseFlag(ctx, service.postgresDB, &models.AbuseFlag{
		UserID:    userID,
		FlagType:  flagType,
		Severity:  severity,
		Details:   details,
		CreatedAt: time.Now(),
	})
	if err != nil {
		log.Println("flagOnce insert error:", err, "user:", userID, "type:", flagType)
	}
}

func (service *ServiceFraud) Flag(ctx context.Context, userID int64, flagType string, severity models.FlagSeverity, details string) {
	service.flagOnce(ctx, userID, flagType, severity, details)
}

func (service *ServiceFraud) ListFlags(ctx context.Context, admin *models.User, limit int) ([]models.AbuseFlag, error) {
	if !admin.IsAdmin() {
		return nil, errorx.Wrap(ErrAdminOnly, errorx.Authn)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return datastore.ListUnresolvedFlags(ctx, service.readonlyPostgresDB, limit)
}

func (service *ServiceFraud) ResolveFlag(ctx context.Context, admin *models.User, flagID int64) error {
	if !admin.IsAdmin() {
		return errorx.Wrap(ErrAdminOnly, errorx.Authn)
	}

	resolved, err := datastore.ResolveAbuseFlag(ctx, service.postgresDB, flagID, admin.ID, time.Now())
	if err != nil {
		return errorx.Wrap(err, errorx.Service)
	}
	if !resolved {
		return errorx.Wrap(fmt.Errorf("flag %d not found or already resolved", flagID), errorx.NotExist)
	}
	return nil
}

func (service *ServiceFraud) UnresolvedFlagCount(ctx context.Context, userID int64) (int, error) {
	flags, err := datastore.UnresolvedFlagsByUser(ctx, service.readonlyPostgresDB, userID)
	if err != nil {
		return 0, err
	}
	return len(flags), nil
}
