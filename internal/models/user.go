package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// XP needed per level step, derived from lifetime earnings.
const PointsPerLevel = 500

type User struct {
	bun.BaseModel `bun:"table:user_profile"`
	ID            int64      `bun:"id,pk" json:"id"`
	Username      string     `bun:"username" json:"username"`
	Balance       int64      `bun:"balance" json:"balance"`
	TotalEarned   int64      `bun:"total_earned" json:"total_earned"`
	XP            int64      `bun:"xp" json:"xp"`
	DailyStreak   int        `bun:"daily_streak" json:"daily_streak"`
	LastCheckinAt *time.Time `bun:"last_checkin_at" json:"last_checkin_at"`
	ReferredBy    *int64     `bun:"referred_by" json:"referred_by"`
	RefCode       string     `bun:"ref_code" json:"ref_code"`
	Role          string     `bun:"role" json:"-"`
	CreatedAt     time.Time  `bun:"created_at,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time  `bun:"updated_at" json:"updated_at"`

	IsNewUser bool `bun:"-" json:"is_new_user"`
}

func (u *User) Level() int {
	return int(u.TotalEarned/PointsPerLevel) + 1
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// UserFromAuth only use in middleware
type UserFromAuth struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}
