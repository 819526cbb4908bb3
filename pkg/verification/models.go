package verification

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the state of a pending verification
type Status string

const (
	StatusWaitingEmail Status = "waiting_email"
	StatusWaitingCode  Status = "waiting_code"
	StatusVerified     Status = "verified"
	StatusFailed       Status = "failed"
)

// Action identifies the kind of security log entry
type Action string

const (
	ActionJoin         Action = "join"
	ActionEmailAttempt Action = "email_attempt"
	ActionCodeAttempt  Action = "code_attempt"
	ActionVerified     Action = "verified"
	ActionFailed       Action = "failed"
	ActionRateLimited  Action = "rate_limited"
	ActionSuspicious   Action = "suspicious"
)

// VerificationMethodEmailCode is the only method currently supported
const VerificationMethodEmailCode = "email_code"

// PendingVerification is the per-user verification record.
// At most one exists per user id at any time.
type PendingVerification struct {
	UserID           string     `json:"user_id"`
	DisplayName      string     `json:"display_name"`
	GroupID          string     `json:"group_id"`
	Email            string     `json:"email,omitempty"`
	VerificationCode string     `json:"verification_code,omitempty"`
	CodeExpiresAt    *time.Time `json:"code_expires_at,omitempty"`
	Attempts         int        `json:"attempts"`
	Status           Status     `json:"status"`
	JoinedAt         time.Time  `json:"joined_at"`
	LastAttempt      time.Time  `json:"last_attempt"`
}

// VerifiedUser is created exactly once when a pending verification succeeds
type VerifiedUser struct {
	UserID             string    `json:"user_id"`
	DisplayName        string    `json:"display_name"`
	Email              string    `json:"email"`
	GroupID            string    `json:"group_id"`
	VerifiedAt         time.Time `json:"verified_at"`
	VerificationMethod string    `json:"verification_method"`
}

// SecurityLogEntry is an append-only audit record written after every
// state transition attempt, successful or not
type SecurityLogEntry struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Action      Action    `json:"action"`
	Details     string    `json:"details"`
	Success     bool      `json:"success"`
	Timestamp   time.Time `json:"timestamp"`
}
