package domain

import "time"

// RecoveryActionKind is the decision returned by the recovery engine.
type RecoveryActionKind string

const (
	ActionRetry    RecoveryActionKind = "retry"
	ActionFallback RecoveryActionKind = "fallback"
	ActionSkip     RecoveryActionKind = "skip"
	ActionEscalate RecoveryActionKind = "escalate"
)

// RecoveryAction records one recovery decision. Never mutated once stored.
type RecoveryAction struct {
	ID            string             `json:"id"`
	Timestamp     time.Time          `json:"timestamp"`
	ErrorMessage  string             `json:"error_message"`
	CorrelationID string             `json:"correlation_id"`
	AgentID       string             `json:"agent_id,omitempty"`
	Kind          RecoveryActionKind `json:"action"`
	Success       bool               `json:"success"`
	Message       string             `json:"message"`
	RetryCount    int                `json:"retry_count,omitempty"`
}
