package models

import (
	"time"

	"github.com/uptrace/bun"
)

type FlagSeverity string

const (
	SeverityLow      FlagSeverity = "low"
	SeverityMedium   FlagSeverity = "medium"
	SeverityHigh     FlagSeverity = "high"
	SeverityCritical FlagSeverity = "critical"
)

const (
	FlagMultiAccountIP  = "multi_account_ip"
	FlagBruteForceCodes = "brute_force_codes"
	FlagReferralIPMatch = "referral_ip_match"
)

type AbuseFlag struct {
	bun.BaseModel `bun:"table:abuse_flag"`
	ID            int64        `bun:"id,pk,autoincrement" json:"id"`
	UserID        int64        `bun:"user_id" json:"user_id"`
	FlagType      string       `bun:"flag_type" json:"flag_type"`
	Severity      FlagSeverity `bun:"severity" json:"severity"`
	Details       string       `bun:"details" json:"details"`
	Resolved      bool         `bun:"resolved" json:"resolved"`
	ResolvedBy    *int64       `bun:"resolved_by" json:"resolved_by"`
	ResolvedAt    *time.Time   `bun:"resolved_at" json:"resolved_at"`
	CreatedAt     time.Time    `bun:"created_at,default:current_timestamp" json:"created_at"`
}

func (f *AbuseFlag) Blocking() bool {
	return !f.Resolved && (f.Severity == SeverityHigh || f.Severity == SeverityCritical)
}
