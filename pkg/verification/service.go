package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CodeSender delivers a one-time code out of band (email). Implemented by
// pkg/notice over the notification manager, and by mocks in tests.
type CodeSender interface {
	SendCode(ctx context.Context, email, code, displayName string) error
}

// CooldownTracker throttles users who exhausted their attempt budget.
// Implemented by pkg/ratelimit. Process-local and advisory: the persisted
// attempt counter is the real security boundary.
type CooldownTracker interface {
	RecordCooldown(userID string)
	InCooldown(userID string) bool
	Remaining(userID string) time.Duration
}

// Config holds the verification policy knobs. All of it comes from the
// environment once, in main.
type Config struct {
	MaxAttempts         int
	Cooldown            time.Duration
	CodeTTL             time.Duration
	AllowedEmailDomains []string
	Retention           time.Duration
}

// DefaultConfig returns the policy defaults used when an option is zero
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Cooldown:    60 * time.Minute,
		CodeTTL:     10 * time.Minute,
		Retention:   24 * time.Hour,
	}
}

// ReplyKind classifies the outcome of an engine call for the ingress
// adapter to render. The engine never produces platform-specific content.
type ReplyKind string

const (
	ReplyNone              ReplyKind = "none"
	ReplyWelcome           ReplyKind = "welcome"
	ReplyCooldown          ReplyKind = "cooldown"
	ReplyInvalidEmail      ReplyKind = "invalid_email"
	ReplyEmailTaken        ReplyKind = "email_taken"
	ReplyCodeSent          ReplyKind = "code_sent"
	ReplyCodeExpired       ReplyKind = "code_expired"
	ReplyWrongCode         ReplyKind = "wrong_code"
	ReplyAttemptsExhausted ReplyKind = "attempts_exhausted"
	ReplyVerified          ReplyKind = "verified"
	ReplyTransientError    ReplyKind = "transient_error"
)

// Result is the structured outcome of an engine call
type Result struct {
	Status       Status
	ReplyKind    ReplyKind
	Email        string        // set for code_sent / email_taken
	AttemptsLeft int           // set for invalid_email / wrong_code
	RetryAfter   time.Duration // set for cooldown / attempts_exhausted
	CodeTTL      time.Duration // set for code_sent
}

// Service is the verification engine: it owns the per-user state machine,
// validates inputs, generates and checks codes, enforces attempt and time
// limits, and writes a security log entry for every transition attempt.
type Service struct {
	repo      Repository
	sender    CodeSender
	cooldowns CooldownTracker
	config    Config

	now        func() time.Time
	onVerified func(ctx context.Context, user *VerifiedUser) error

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// ServiceOption defines configuration options for the engine
type ServiceOption func(*Service)

// WithClock overrides the engine clock, for deterministic tests
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// WithOnVerified registers a callback invoked after a successful
// verification is committed. Role grants live here; callback errors are
// logged, never surfaced to the user.
func WithOnVerified(fn func(ctx context.Context, user *VerifiedUser) error) ServiceOption {
	return func(s *Service) {
		s.onVerified = fn
	}
}

// NewService creates a verification engine
func NewService(repo Repository, sender CodeSender, cooldowns CooldownTracker, config Config, opts ...ServiceOption) *Service {
	defaults := DefaultConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.Cooldown <= 0 {
		config.Cooldown = defaults.Cooldown
	}
	if config.CodeTTL <= 0 {
		config.CodeTTL = defaults.CodeTTL
	}
	if config.Retention <= 0 {
		config.Retention = defaults.Retention
	}

	s := &Service{
		repo:      repo,
		sender:    sender,
		cooldowns: cooldowns,
		config:    config,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// userLock returns the mutex serializing operations for one user. Two
// concurrent messages from the same user must not race on the same pending
// record; cross-user operations stay fully parallel.
func (s *Service) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// OnMemberJoined registers a new member and creates their pending
// verification in waiting_email. Joining again restarts the flow.
func (s *Service) OnMemberJoined(ctx context.Context, userID, displayName, groupID string) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.repo.GetVerified(ctx, userID); err == nil {
		slog.Info("Member already verified, skipping", "user_id", userID)
		return nil
	} else if !errors.Is(err, ErrVerifiedNotFound) {
		return fmt.Errorf("failed to check verified user: %w", err)
	}

	now := s.now()
	pending := &PendingVerification{
		UserID:      userID,
		DisplayName: displayName,
		GroupID:     groupID,
		Status:      StatusWaitingEmail,
		Attempts:    0,
		JoinedAt:    now,
		LastAttempt: now,
	}

	if err := s.repo.UpsertPending(ctx, pending); err != nil {
		slog.Error("Failed to create pending verification", "user_id", userID, "err", err)
		return fmt.Errorf("failed to create pending verification: %w", err)
	}

	s.logSecurity(ctx, userID, displayName, ActionJoin, "new member awaiting verification", true)
	slog.Info("Member joined, verification started", "user_id", userID, "group_id", groupID)
	return nil
}

// OnUserMessage feeds one inbound message into the state machine and
// returns the structured outcome. Infrastructure failures come back as
// ReplyTransientError results, never as raw errors to the ingress.
func (s *Service) OnUserMessage(ctx context.Context, userID, displayName, text string) (Result, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	pending, err := s.repo.GetPending(ctx, userID)
	if errors.Is(err, ErrPendingNotFound) {
		return s.startFromMessage(ctx, userID, displayName)
	}
	if err != nil {
		slog.Error("Failed to load pending verification", "user_id", userID, "err", err)
		return s.transient(), nil
	}

	if s.cooldowns.InCooldown(userID) {
		remaining := s.cooldowns.Remaining(userID)
		s.logSecurity(ctx, userID, displayName, ActionRateLimited, "message received during cooldown", false)
		return Result{Status: pending.Status, ReplyKind: ReplyCooldown, RetryAfter: remaining}, nil
	}

	// Cooldown elapsed after an exhausted budget: full restart at
	// waiting_email with a fresh attempt budget.
	if pending.Status == StatusFailed || pending.Attempts >= s.config.MaxAttempts {
		pending.Status = StatusWaitingEmail
		pending.Attempts = 0
		pending.Email = ""
		pending.VerificationCode = ""
		pending.CodeExpiresAt = nil
		if err := s.repo.UpsertPending(ctx, pending); err != nil {
			slog.Error("Failed to restart verification", "user_id", userID, "err", err)
			return s.transient(), nil
		}
		slog.Info("Cooldown elapsed, verification restarted", "user_id", userID)
	}

	switch pending.Status {
	case StatusWaitingEmail:
		return s.handleEmailSubmission(ctx, pending, displayName, text)
	case StatusWaitingCode:
		return s.handleCodeSubmission(ctx, pending, displayName, text)
	default:
		return Result{Status: pending.Status, ReplyKind: ReplyNone}, nil
	}
}

// startFromMessage handles first contact via DM: a verified user gets a
// no-op, anyone else gets a fresh pending record and welcome instructions.
// The message content itself is not consumed as an email submission.
func (s *Service) startFromMessage(ctx context.Context, userID, displayName string) (Result, error) {
	if _, err := s.repo.GetVerified(ctx, userID); err == nil {
		return Result{Status: StatusVerified, ReplyKind: ReplyNone}, nil
	} else if !errors.Is(err, ErrVerifiedNotFound) {
		slog.Error("Failed to check verified user", "user_id", userID, "err", err)
		return s.transient(), nil
	}

	now := s.now()
	pending := &PendingVerification{
		UserID:      userID,
		DisplayName: displayName,
		Status:      StatusWaitingEmail,
		Attempts:    0,
		JoinedAt:    now,
		LastAttempt: now,
	}
	if err := s.repo.UpsertPending(ctx, pending); err != nil {
		slog.Error("Failed to create pending verification", "user_id", userID, "err", err)
		return s.transient(), nil
	}

	s.logSecurity(ctx, userID, displayName, ActionJoin, "verification started from first message", true)
	return Result{Status: StatusWaitingEmail, ReplyKind: ReplyWelcome}, nil
}

func (s *Service) handleEmailSubmission(ctx context.Context, pending *PendingVerification, displayName, text string) (Result, error) {
	email := NormalizeEmail(text)
	now := s.now()
	pending.LastAttempt = now

	if !IsInstitutionalEmail(email, s.config.AllowedEmailDomains) {
		pending.Attempts++
		exhausted := pending.Attempts >= s.config.MaxAttempts
		if exhausted {
			pending.Status = StatusFailed
		}
		if err := s.repo.UpsertPending(ctx, pending); err != nil {
			slog.Error("Failed to record email attempt", "user_id", pending.UserID, "err", err)
			return s.transient(), nil
		}

		s.logSecurity(ctx, pending.UserID, displayName, ActionEmailAttempt,
			fmt.Sprintf("invalid email (attempt %d/%d)", pending.Attempts, s.config.MaxAttempts), false)

		if exhausted {
			s.cooldowns.RecordCooldown(pending.UserID)
			s.logSecurity(ctx, pending.UserID, displayName, ActionFailed,
				fmt.Sprintf("max attempts reached: %d", pending.Attempts), false)
			slog.Warn("Attempt budget exhausted on email step", "user_id", pending.UserID)
			return Result{Status: pending.Status, ReplyKind: ReplyAttemptsExhausted, RetryAfter: s.config.Cooldown}, nil
		}
		return Result{
			Status:       pending.Status,
			ReplyKind:    ReplyInvalidEmail,
			AttemptsLeft: s.config.MaxAttempts - pending.Attempts,
		}, nil
	}

	// An email that already verified another identity is rejected without
	// consuming the attempt budget, but always audited.
	if _, err := s.repo.FindVerifiedByEmail(ctx, email); err == nil {
		s.logSecurity(ctx, pending.UserID, displayName, ActionEmailAttempt, "email already used: "+email, false)
		return Result{Status: pending.Status, ReplyKind: ReplyEmailTaken, Email: email}, nil
	} else if !errors.Is(err, ErrVerifiedNotFound) {
		slog.Error("Failed to check email ownership", "user_id", pending.UserID, "err", err)
		return s.transient(), nil
	}

	code, err := GenerateCode()
	if err != nil {
		slog.Error("Failed to generate verification code", "user_id", pending.UserID, "err", err)
		return s.transient(), nil
	}

	// Send before committing waiting_code: a record claiming a code is on
	// its way when nothing was delivered would strand the user.
	if err := s.sender.SendCode(ctx, email, code, displayName); err != nil {
		slog.Error("Failed to send verification code", "user_id", pending.UserID, "email", email, "err", err)
		s.logSecurity(ctx, pending.UserID, displayName, ActionEmailAttempt, "code dispatch failed for "+email, false)
		return s.transient(), nil
	}

	expiresAt := now.Add(s.config.CodeTTL)
	pending.Email = email
	pending.VerificationCode = code
	pending.CodeExpiresAt = &expiresAt
	pending.Status = StatusWaitingCode
	if err := s.repo.UpsertPending(ctx, pending); err != nil {
		slog.Error("Failed to store verification code", "user_id", pending.UserID, "err", err)
		return s.transient(), nil
	}

	s.logSecurity(ctx, pending.UserID, displayName, ActionEmailAttempt, "code sent to "+email, true)
	slog.Info("Verification code dispatched", "user_id", pending.UserID, "email", email, "expires_at", expiresAt)
	return Result{
		Status:    StatusWaitingCode,
		ReplyKind: ReplyCodeSent,
		Email:     email,
		CodeTTL:   s.config.CodeTTL,
	}, nil
}

func (s *Service) handleCodeSubmission(ctx context.Context, pending *PendingVerification, displayName, text string) (Result, error) {
	code := strings.TrimSpace(text)
	now := s.now()
	pending.LastAttempt = now

	// Expiry is a timeout, not a wrong guess: the attempt counter is
	// preserved and the user restarts at the email step.
	if pending.CodeExpiresAt == nil || now.After(*pending.CodeExpiresAt) {
		pending.VerificationCode = ""
		pending.CodeExpiresAt = nil
		pending.Status = StatusWaitingEmail
		if err := s.repo.UpsertPending(ctx, pending); err != nil {
			slog.Error("Failed to expire verification code", "user_id", pending.UserID, "err", err)
			return s.transient(), nil
		}
		s.logSecurity(ctx, pending.UserID, displayName, ActionCodeAttempt, "code expired", false)
		return Result{Status: StatusWaitingEmail, ReplyKind: ReplyCodeExpired}, nil
	}

	// Exact string comparison keeps leading zeros significant: "4521"
	// never matches a stored "004521".
	if code != pending.VerificationCode {
		pending.Attempts++
		exhausted := pending.Attempts >= s.config.MaxAttempts
		if exhausted {
			pending.Status = StatusFailed
		}
		if err := s.repo.UpsertPending(ctx, pending); err != nil {
			slog.Error("Failed to record code attempt", "user_id", pending.UserID, "err", err)
			return s.transient(), nil
		}

		s.logSecurity(ctx, pending.UserID, displayName, ActionCodeAttempt,
			fmt.Sprintf("wrong code (attempt %d/%d)", pending.Attempts, s.config.MaxAttempts), false)

		if exhausted {
			s.cooldowns.RecordCooldown(pending.UserID)
			s.logSecurity(ctx, pending.UserID, displayName, ActionFailed,
				fmt.Sprintf("max attempts reached: %d", pending.Attempts), false)
			slog.Warn("Attempt budget exhausted on code step", "user_id", pending.UserID)
			return Result{Status: pending.Status, ReplyKind: ReplyAttemptsExhausted, RetryAfter: s.config.Cooldown}, nil
		}
		return Result{
			Status:       pending.Status,
			ReplyKind:    ReplyWrongCode,
			AttemptsLeft: s.config.MaxAttempts - pending.Attempts,
		}, nil
	}

	user := &VerifiedUser{
		UserID:             pending.UserID,
		DisplayName:        pending.DisplayName,
		Email:              pending.Email,
		GroupID:            pending.GroupID,
		VerifiedAt:         now,
		VerificationMethod: VerificationMethodEmailCode,
	}

	if err := s.repo.CreateVerified(ctx, user); err != nil {
		switch {
		case errors.Is(err, ErrAlreadyVerified):
			// Lost a race with ourselves; clean up and treat as done.
			if delErr := s.repo.DeletePending(ctx, pending.UserID); delErr != nil {
				slog.Error("Failed to delete pending after duplicate verify", "user_id", pending.UserID, "err", delErr)
			}
			return Result{Status: StatusVerified, ReplyKind: ReplyNone}, nil
		case errors.Is(err, ErrEmailTaken):
			s.logSecurity(ctx, pending.UserID, displayName, ActionSuspicious, "email verified concurrently: "+pending.Email, false)
			return Result{Status: pending.Status, ReplyKind: ReplyEmailTaken, Email: pending.Email}, nil
		default:
			slog.Error("Failed to create verified user", "user_id", pending.UserID, "err", err)
			return s.transient(), nil
		}
	}

	if err := s.repo.DeletePending(ctx, pending.UserID); err != nil {
		slog.Error("Failed to delete pending verification", "user_id", pending.UserID, "err", err)
	}

	s.logSecurity(ctx, pending.UserID, displayName, ActionVerified, "verified with "+pending.Email, true)
	slog.Info("User verified", "user_id", pending.UserID, "email", pending.Email)

	if s.onVerified != nil {
		if err := s.onVerified(ctx, user); err != nil {
			slog.Error("Verified callback failed", "user_id", pending.UserID, "err", err)
		}
	}

	return Result{Status: StatusVerified, ReplyKind: ReplyVerified, Email: pending.Email}, nil
}

// CleanupExpired enforces the fixed-horizon retention policy on pending
// verifications. Run periodically; lazy expiry at the next interaction
// keeps correctness either way.
func (s *Service) CleanupExpired(ctx context.Context) error {
	cutoff := s.now().Add(-s.config.Retention)
	deleted, err := s.repo.DeletePendingBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Failed to cleanup stale pending verifications", "err", err)
		return fmt.Errorf("failed to cleanup stale pending verifications: %w", err)
	}
	if deleted > 0 {
		slog.Info("Stale pending verifications removed", "count", deleted, "cutoff", cutoff)
	}
	return nil
}

func (s *Service) transient() Result {
	return Result{ReplyKind: ReplyTransientError}
}

// logSecurity appends an audit entry. Audit failures are logged and
// swallowed: a broken log must not block the user-facing transition.
func (s *Service) logSecurity(ctx context.Context, userID, displayName string, action Action, details string, success bool) {
	entry := &SecurityLogEntry{
		ID:          uuid.New(),
		UserID:      userID,
		DisplayName: displayName,
		Action:      action,
		Details:     details,
		Success:     success,
		Timestamp:   s.now(),
	}
	if err := s.repo.AppendSecurityLog(ctx, entry); err != nil {
		slog.Error("Failed to append security log", "user_id", userID, "action", action, "err", err)
	}
}
