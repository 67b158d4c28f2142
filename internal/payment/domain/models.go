package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const CreditStatusCompleted = "completed"

// PaymentCredit records that a payment reference has been credited. The unique
// reference is the idempotency gate; BalanceAfter is kept so replays answer identically.
type PaymentCredit struct {
	ID               snowflake.ID      `json:"id" gorm:"primaryKey"`
	PaymentReference string            `json:"payment_reference" gorm:"type:varchar(255);not null;uniqueIndex:ux_payment_credits_reference"`
	UserID           string            `json:"user_id" gorm:"type:varchar(128);not null;index"`
	SecondsCredited  int64             `json:"seconds_credited" gorm:"not null"`
	AmountPaid       int64             `json:"amount_paid" gorm:"not null"`
	Currency         string            `json:"currency" gorm:"type:varchar(8);not null"`
	Status           string            `json:"status" gorm:"type:varchar(32);not null"`
	BalanceAfter     int64             `json:"balance_after" gorm:"not null;default:0"`
	Provider         string            `json:"provider" gorm:"type:varchar(32);not null"`
	Metadata         datatypes.JSONMap `json:"metadata"`
	RecordedAt       time.Time         `json:"recorded_at" gorm:"not null"`
}

func (PaymentCredit) TableName() string { return "payment_credits" }

// EventRecord is the raw inbound webhook log, deduplicated per provider event id.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:varchar(32);not null;uniqueIndex:ux_payment_events_provider_event,priority:1"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_payment_events_provider_event,priority:2"`
	EventType       string         `json:"event_type" gorm:"type:varchar(128);not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }
