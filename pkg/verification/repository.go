package verification

import (
	"context"
	"time"
)

// Repository defines the persistence operations the verification engine
// consumes. The store is the single source of truth; the engine never keeps
// verification state in memory between calls.
type Repository interface {
	// GetPending returns the pending verification for a user, or
	// ErrPendingNotFound when none exists
	GetPending(ctx context.Context, userID string) (*PendingVerification, error)

	// UpsertPending creates or replaces the pending verification keyed by
	// its UserID
	UpsertPending(ctx context.Context, pending *PendingVerification) error

	// DeletePending removes the pending verification for a user. Deleting a
	// missing record is not an error.
	DeletePending(ctx context.Context, userID string) error

	// GetVerified returns the verified user by user id, or ErrVerifiedNotFound
	GetVerified(ctx context.Context, userID string) (*VerifiedUser, error)

	// FindVerifiedByEmail returns the verified user owning the given
	// (normalized) email, or ErrVerifiedNotFound
	FindVerifiedByEmail(ctx context.Context, email string) (*VerifiedUser, error)

	// CreateVerified stores a new verified user. Returns ErrAlreadyVerified
	// if the user id is taken and ErrEmailTaken if the email is.
	CreateVerified(ctx context.Context, user *VerifiedUser) error

	// AppendSecurityLog appends an audit entry. Entries are never updated.
	AppendSecurityLog(ctx context.Context, entry *SecurityLogEntry) error

	// CountPending returns the number of pending verifications
	CountPending(ctx context.Context) (int64, error)

	// CountVerified returns the number of users verified at or after since.
	// A zero since counts all verified users.
	CountVerified(ctx context.Context, since time.Time) (int64, error)

	// CountSecurityLogs counts audit entries for an action at or after since.
	// An empty action counts all actions; a zero since counts all entries.
	CountSecurityLogs(ctx context.Context, action Action, since time.Time) (int64, error)

	// ListSecurityLogs returns the most recent audit entries, newest first
	ListSecurityLogs(ctx context.Context, limit int) ([]SecurityLogEntry, error)

	// DeletePendingBefore removes pending verifications joined before cutoff
	// and reports how many were deleted. Used by the retention sweeper.
	DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
