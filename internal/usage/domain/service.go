package domain

import (
	"context"
	"time"

	"github.com/brujulacripto/creditledger/pkg/db/pagination"
)

type ApplyUsageActionRequest struct {
	UserID           string
	ServiceKind      ServiceKind
	ActionKind       ActionKind
	SecondsRequested int64
	SessionID        string
}

type ApplyUsageActionResult struct {
	SessionID                string       `json:"session_id"`
	ServiceKind              ServiceKind  `json:"service_kind"`
	ActionKind               ActionKind   `json:"action_kind"`
	State                    SessionState `json:"state"`
	SecondsRequested         int64        `json:"seconds_requested"`
	SecondsApplied           int64        `json:"seconds_applied"`
	BalanceBefore            int64        `json:"balance_before"`
	BalanceAfter             int64        `json:"balance_after"`
	SecondsConsumedInSession int64        `json:"seconds_consumed_in_session"`
}

type Session struct {
	SessionID       string       `json:"session_id"`
	ServiceKind     ServiceKind  `json:"service_kind"`
	State           SessionState `json:"state"`
	StartedAt       time.Time    `json:"started_at"`
	EndedAt         *time.Time   `json:"ended_at,omitempty"`
	SecondsConsumed int64        `json:"seconds_consumed"`
}

type ListEventsRequest struct {
	UserID    string
	SessionID string
	PageToken string
	PageSize  int
}

type Event struct {
	ID               string      `json:"id"`
	SessionID        string      `json:"session_id"`
	ServiceKind      ServiceKind `json:"service_kind"`
	ActionKind       ActionKind  `json:"action_kind"`
	SecondsRequested int64       `json:"seconds_requested"`
	SecondsApplied   int64       `json:"seconds_applied"`
	BalanceBefore    int64       `json:"balance_before"`
	BalanceAfter     int64       `json:"balance_after"`
	OccurredAt       time.Time   `json:"occurred_at"`
}

type ListEventsResponse struct {
	pagination.PageInfo
	Events []Event `json:"events"`
}

type Service interface {
	ApplyUsageAction(context.Context, ApplyUsageActionRequest) (*ApplyUsageActionResult, error)
	GetSession(ctx context.Context, userID, sessionID string) (*Session, error)
	ListEvents(context.Context, ListEventsRequest) (ListEventsResponse, error)
}
