// Package domain contains the metered session and its append-only audit trail.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageSession tracks one start..end span of a metered service. Rows are immutable
// once State leaves active.
type UsageSession struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	UserID          string       `gorm:"type:varchar(128);not null;uniqueIndex:ux_usage_sessions_user_session,priority:1"`
	SessionID       string       `gorm:"type:varchar(128);not null;uniqueIndex:ux_usage_sessions_user_session,priority:2"`
	ServiceKind     ServiceKind  `gorm:"type:varchar(32);not null"`
	State           SessionState `gorm:"type:varchar(32);not null"`
	StartedAt       time.Time    `gorm:"not null"`
	EndedAt         *time.Time
	SecondsConsumed int64     `gorm:"not null;default:0"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (UsageSession) TableName() string { return "usage_sessions" }

// UsageEvent is the audit record of one applied action.
type UsageEvent struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	UserID           string       `gorm:"type:varchar(128);not null;index:ix_usage_events_user,priority:1"`
	SessionID        string       `gorm:"type:varchar(128);not null"`
	ServiceKind      ServiceKind  `gorm:"type:varchar(32);not null"`
	ActionKind       ActionKind   `gorm:"type:varchar(32);not null"`
	SecondsRequested int64        `gorm:"not null"`
	SecondsApplied   int64        `gorm:"not null"`
	BalanceBefore    int64        `gorm:"not null"`
	BalanceAfter     int64        `gorm:"not null"`
	OccurredAt       time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (UsageEvent) TableName() string { return "usage_events" }
