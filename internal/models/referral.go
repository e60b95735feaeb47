package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	PendingStatusPending   = "pending"
	PendingStatusProcessed = "processed"
)

type ReferralHistory struct {
	bun.BaseModel `bun:"table:referral_history"`
	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	ReferrerID    int64     `bun:"referrer_id" json:"referrer_id"`
	ReferredID    int64     `bun:"referred_id" json:"referred_id"`
	IPHash        string    `bun:"ip_hash" json:"-"`
	CreatedAt     time.Time `bun:"created_at,default:current_timestamp" json:"created_at"`
}

// PendingReward is a deferred credit for the actor itself; settled by the
// sweep once eligible_at has passed.
type PendingReward struct {
	bun.BaseModel `bun:"table:pending_reward"`
	ID            int64      `bun:"id,pk,autoincrement" json:"id"`
	UserID        int64      `bun:"user_id" json:"user_id"`
	Amount        int64      `bun:"amount" json:"amount"`
	Status        string     `bun:"status" json:"status"`
	EligibleAt    time.Time  `bun:"eligible_at" json:"eligible_at"`
	SourceID      string     `bun:"source_id" json:"source_id"`
	CreatedAt     time.Time  `bun:"created_at,default:current_timestamp" json:"created_at"`
	ProcessedAt   *time.Time `bun:"processed_at" json:"processed_at"`
}

// ReferralCommission is a deferred credit for a referrer, earned from a
// referred user's activity.
type ReferralCommission struct {
	bun.BaseModel `bun:"table:referral_commission"`
	ID            int64      `bun:"id,pk,autoincrement" json:"id"`
	ReferrerID    int64      `bun:"referrer_id" json:"referrer_id"`
	ReferredID    int64      `bun:"referred_id" json:"referred_id"`
	Amount        int64      `bun:"amount" json:"amount"`
	Status        string     `bun:"status" json:"status"`
	ProcessAt     time.Time  `bun:"process_at" json:"process_at"`
	SourceID      string     `bun:"source_id" json:"source_id"`
	CreatedAt     time.Time  `bun:"created_at,default:current_timestamp" json:"created_at"`
	ProcessedAt   *time.Time `bun:"processed_at" json:"processed_at"`
}
