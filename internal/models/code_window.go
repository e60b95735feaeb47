package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TaskIDGeneral marks a window that is not tied to any task; redemptions
// fall back to the default reward amount.
const TaskIDGeneral = "general"

type CodeWindow struct {
	bun.BaseModel      `bun:"table:code_window"`
	ID                 string    `bun:"id,pk" json:"id"`
	TaskID             string    `bun:"task_id" json:"task_id"`
	Code               string    `bun:"code" json:"code"`
	ValidFrom          time.Time `bun:"valid_from" json:"valid_from"`
	ValidUntil         time.Time `bun:"valid_until" json:"valid_until"`
	MaxRedemptions     *int      `bun:"max_redemptions" json:"max_redemptions"`
	CurrentRedemptions int       `bun:"current_redemptions" json:"current_redemptions"`
	IsActive           bool      `bun:"is_active" json:"is_active"`
	CreatedBy          int64     `bun:"created_by" json:"created_by"`
	CreatedAt          time.Time `bun:"created_at,default:current_timestamp" json:"created_at"`
}

func (w *CodeWindow) WithinWindow(now time.Time) bool {
	return !now.Before(w.ValidFrom) && !now.After(w.ValidUntil)
}

func (w *CodeWindow) Exhausted() bool {
	return w.MaxRedemptions != nil && w.CurrentRedemptions >= *w.MaxRedemptions
}

type Redemption struct {
	bun.BaseModel `bun:"table:redemption"`
	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID        int64     `bun:"user_id" json:"user_id"`
	WindowID      string    `bun:"window_id" json:"window_id"`
	IPHash        string    `bun:"ip_hash" json:"-"`
	DeviceHash    string    `bun:"device_hash" json:"-"`
	UserAgent     string    `bun:"user_agent" json:"-"`
	CreatedAt     time.Time `bun:"created_at,default:current_timestamp" json:"created_at"`
}
