package models

import "time"

// ActionKind enumerates the security-relevant actions the audit subsystem
// recognizes.
type ActionKind string

const (
	ActionLogin       ActionKind = "LOGIN"
	ActionLogout      ActionKind = "LOGOUT"
	ActionAddCard     ActionKind = "ADD_CARD"
	ActionDeleteCard  ActionKind = "DELETE_CARD"
	ActionBlockCard   ActionKind = "BLOCK_CARD"
	ActionTransaction ActionKind = "TRANSACTION"
	ActionLimitChange ActionKind = "LIMIT_CHANGE"
	ActionFailedLogin ActionKind = "FAILED_LOGIN"
)

// Valid reports whether k is one of the recognized action kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionLogin, ActionLogout, ActionAddCard, ActionDeleteCard,
		ActionBlockCard, ActionTransaction, ActionLimitChange, ActionFailedLogin:
		return true
	}
	return false
}

// AuditEntry is an immutable, append-only record of a security-relevant
// action. UserID is nil for unauthenticated attempts. The timestamp is
// server-assigned at creation and never mutated.
type AuditEntry struct {
	ID        string
	UserID    *string
	Action    ActionKind
	IPAddress string
	Details   map[string]string
	RiskScore int
	CreatedAt time.Time
}
