package types

import "time"

// LoginAttempt is an append-only record of a single authentication attempt.
// Rows are never updated or deleted.
type LoginAttempt struct {
	ID            string    `json:"id"`
	UserID        *string   `json:"user_id,omitempty"` // nil when the identifier matched no account
	Email         string    `json:"email"`
	Success       bool      `json:"success"`
	FailureReason *string   `json:"failure_reason,omitempty"`
	IPAddress     *string   `json:"ip_address,omitempty"`
	UserAgent     *string   `json:"user_agent,omitempty"`
	AttemptedAt   time.Time `json:"attempted_at"`
}

// AuditLogEntry is an append-only record of a privileged action.
type AuditLogEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	Details   []byte    `json:"details,omitempty"` // serialized JSON, optional
	IPAddress *string   `json:"ip_address,omitempty"`
	UserAgent *string   `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Origin carries request metadata attached to attempt and audit rows.
type Origin struct {
	IPAddress string
	UserAgent string
}
