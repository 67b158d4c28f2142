package domain

import (
	"strings"
)

// ServiceKind names a metered product. The set is closed.
type ServiceKind string

const (
	ServiceKindTools   ServiceKind = "tools"
	ServiceKindChatbot ServiceKind = "chatbot"
)

func ParseServiceKind(raw string) (ServiceKind, error) {
	switch kind := ServiceKind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case ServiceKindTools, ServiceKindChatbot:
		return kind, nil
	default:
		return "", ErrInvalidServiceKind
	}
}

func (k ServiceKind) String() string { return string(k) }

// ActionKind is a step of the session lifecycle.
type ActionKind string

const (
	ActionStart     ActionKind = "start"
	ActionIncrement ActionKind = "increment"
	ActionEnd       ActionKind = "end"
)

func ParseActionKind(raw string) (ActionKind, error) {
	switch kind := ActionKind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case ActionStart, ActionIncrement, ActionEnd:
		return kind, nil
	default:
		return "", ErrInvalidActionKind
	}
}

func (k ActionKind) String() string { return string(k) }

type SessionState string

const (
	SessionActive                 SessionState = "active"
	SessionCompleted              SessionState = "completed"
	SessionCompletedWithShortfall SessionState = "completed_with_shortfall"
)

func (s SessionState) Closed() bool {
	return s == SessionCompleted || s == SessionCompletedWithShortfall
}
