package verification

import "errors"

var (
	// ErrPendingNotFound is returned when no pending verification exists for a user
	ErrPendingNotFound = errors.New("pending verification not found")

	// ErrVerifiedNotFound is returned when no verified user matches the lookup
	ErrVerifiedNotFound = errors.New("verified user not found")

	// ErrEmailTaken is returned when an email already belongs to a verified user
	ErrEmailTaken = errors.New("email already belongs to a verified user")

	// ErrAlreadyVerified is returned when creating a verified user that already exists
	ErrAlreadyVerified = errors.New("user already verified")

	// ErrCodeDispatchFailed is returned when the verification code could not be delivered
	ErrCodeDispatchFailed = errors.New("failed to deliver verification code")
)
