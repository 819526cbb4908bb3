package verification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/discord-verify/pkg/ratelimit"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type sentCode struct {
	Email       string
	Code        string
	DisplayName string
}

type mockSender struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (m *mockSender) SendCode(ctx context.Context, email, code, displayName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentCode{Email: email, Code: code, DisplayName: displayName})
	return nil
}

func (m *mockSender) last(t *testing.T) sentCode {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1]
}

type fixture struct {
	repo      *InMemRepository
	sender    *mockSender
	cooldowns *ratelimit.CooldownTracker
	clock     *fakeClock
	service   *Service
}

func setupService(t *testing.T, opts ...ServiceOption) *fixture {
	t.Helper()

	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	repo := NewInMemRepository()
	sender := &mockSender{}
	config := Config{
		MaxAttempts:         3,
		Cooldown:            60 * time.Minute,
		CodeTTL:             10 * time.Minute,
		AllowedEmailDomains: []string{"university.edu"},
		Retention:           24 * time.Hour,
	}
	cooldowns := ratelimit.NewCooldownTracker(config.Cooldown, ratelimit.WithClock(clock.Now))

	opts = append([]ServiceOption{WithClock(clock.Now)}, opts...)
	service := NewService(repo, sender, cooldowns, config, opts...)

	return &fixture{
		repo:      repo,
		sender:    sender,
		cooldowns: cooldowns,
		clock:     clock,
		service:   service,
	}
}

// submitEmail walks a fresh user to waiting_code and returns the sent code
func (f *fixture) submitEmail(t *testing.T, userID, email string) string {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, f.service.OnMemberJoined(ctx, userID, userID, "guild-1"))
	result, err := f.service.OnUserMessage(ctx, userID, userID, email)
	require.NoError(t, err)
	require.Equal(t, ReplyCodeSent, result.ReplyKind)
	return f.sender.last(t).Code
}

func (f *fixture) actionCount(t *testing.T, action Action) int64 {
	t.Helper()
	count, err := f.repo.CountSecurityLogs(context.Background(), action, time.Time{})
	require.NoError(t, err)
	return count
}

func TestOnMemberJoined(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	t.Run("creates pending in waiting_email", func(t *testing.T) {
		require.NoError(t, f.service.OnMemberJoined(ctx, "user-1", "alice", "guild-1"))

		pending, err := f.repo.GetPending(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, StatusWaitingEmail, pending.Status)
		assert.Equal(t, 0, pending.Attempts)
		assert.Equal(t, "alice", pending.DisplayName)
		assert.Equal(t, "guild-1", pending.GroupID)
		assert.Equal(t, int64(1), f.actionCount(t, ActionJoin))
	})

	t.Run("rejoin restarts the flow", func(t *testing.T) {
		result, err := f.service.OnUserMessage(ctx, "user-1", "alice", "alice@university.edu")
		require.NoError(t, err)
		require.Equal(t, ReplyCodeSent, result.ReplyKind)

		require.NoError(t, f.service.OnMemberJoined(ctx, "user-1", "alice", "guild-1"))
		pending, err := f.repo.GetPending(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, StatusWaitingEmail, pending.Status)
		assert.Empty(t, pending.VerificationCode)
	})

	t.Run("verified member is skipped", func(t *testing.T) {
		g := setupService(t)
		code := g.submitEmail(t, "user-2", "bob@university.edu")
		result, err := g.service.OnUserMessage(ctx, "user-2", "bob", code)
		require.NoError(t, err)
		require.Equal(t, ReplyVerified, result.ReplyKind)

		require.NoError(t, g.service.OnMemberJoined(ctx, "user-2", "bob", "guild-1"))
		_, err = g.repo.GetPending(ctx, "user-2")
		assert.ErrorIs(t, err, ErrPendingNotFound)
	})
}

func TestFirstMessageStartsFlow(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	// The first DM is not consumed as an email submission
	result, err := f.service.OnUserMessage(ctx, "user-1", "alice", "alice@university.edu")
	require.NoError(t, err)
	assert.Equal(t, ReplyWelcome, result.ReplyKind)
	assert.Equal(t, StatusWaitingEmail, result.Status)

	pending, err := f.repo.GetPending(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, pending.Attempts)
	assert.Empty(t, pending.Email)

	// The next message is consumed as an email submission
	result, err = f.service.OnUserMessage(ctx, "user-1", "alice", "alice@university.edu")
	require.NoError(t, err)
	assert.Equal(t, ReplyCodeSent, result.ReplyKind)
}

func TestEmailSubmission(t *testing.T) {
	ctx := context.Background()

	t.Run("valid email dispatches a code", func(t *testing.T) {
		f := setupService(t)
		require.NoError(t, f.service.OnMemberJoined(ctx, "user-1", "alice", "guild-1"))

		result, err := f.service.OnUserMessage(ctx, "user-1", "alice", "  Alice@University.EDU ")
		require.NoError(t, err)
		assert.Equal(t, ReplyCodeSent, result.ReplyKind)
		assert.Equal(t, "alice@university.edu", result.Email)
		assert.Equal(t, 10*time.Minute, result.CodeTTL)

		sent := f.sender.last(t)
		assert.Equal(t, "alice@university.edu", sent.Email)
		assert.Len(t, sent.Code, CodeLength)

		pending, err := f.repo.GetPending(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, StatusWaitingCode, pending.Status)
		assert.Equal(t, sent.Code, pending.VerificationCode)
		require.NotNil(t, pending.CodeExpiresAt)
		assert.Equal(t, f.clock.Now().Add(10*time.Minute), *pending.CodeExpiresAt)
	})

	t.Run("invalid email consumes an attempt", func(t *testing.T) {
		f := setupService(t)
		require.NoError(t, f.service.OnMemberJoined(ctx, "user-1", "alice", "guild-1"))

		result, err := f.service.OnUserMessage(ctx, "user-1", "alice", "not-an-email")
		require.NoError(t, err)
		assert.Equal(t, ReplyInvalidEmail, result.ReplyKind)
		assert.Equal(t, 2, result.AttemptsLeft)

		result, err = f.service.OnUserMessage(ctx, "user-1", "alice", "alice@gmail.com")
		require.NoError(t, err)
		assert.Equal(t, ReplyInvalidEmail, result.ReplyKind)
		assert.Equal(t, 1, result.AttemptsLeft)
	})

	t.Run("taken email is rejected without consuming attempts", func(t *testing.T) {
		f := setupService(t)
		code := f.submitEmail(t, "user-1", "shared@university.edu")
		result, err := f.service.OnUserMessage(ctx, "user-1", "alice", code)
		require.NoError(t, err)
		require.Equal(t, ReplyVerified, result.ReplyKind)

		require.NoError(t, f.service.OnMemberJoined(ctx, "user-2", "bob", "guild-1"))
		result, err = f.service.OnUserMessage(ctx, "user-2", "bob", "Shared@University.edu")
		require.NoError(t, err)
		assert.Equal(t, ReplyEmailTaken, result.ReplyKind)
		assert.Equal(t, "shared@university.edu", result.Email)

		pending, err := f.repo.GetPending(ctx, "user-2")
		require.NoError(t, err)
		assert.Equal(t, 0, pending.Attempts)
		assert.Equal(t, StatusWaitingEmail, pending.Status)
	})

	t.Run("send failure does not commit the code", func(t *testing.T) {
		f := setupService(t)
		f.sender.err = errors.New("smtp unreachable")
		require.NoError(t, f.service.OnMemberJoined(ctx, "user-1", "alice", "guild-1"))

		result, err := f.service.OnUserMessage(ctx, "user-1", "alice", "alice@university.edu")
		require.NoError(t, err)
		assert.Equal(t, ReplyTransientError, result.ReplyKind)

		pending, err := f.repo.GetPending(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, StatusWaitingEmail, pending.Status)
		assert.Empty(t, pending.VerificationCode)
	})
}

func TestCodeSubmission(t *testing.T) {
	ctx := context.Background()

	t.Run("correct code verifies", func(t *testing.T) {
		var granted []string
		f := setupService(t, WithOnVerified(func(ctx context.Context, user *VerifiedUser) error {
			granted = append(granted, user.UserID)
			return nil
		}))
		code := f.submitEmail(t, "user-1", "alice@university.edu")

		result, err := f.service.OnUserMessage(ctx, "user-1", "alice", " "+code+" ")
		require.NoError(t, err)
		assert.Equal(t, ReplyVerified, result.ReplyKind)
		assert.Equal(t, StatusVerified, result.Status)

		user, err := f.repo.GetVerified(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, "alice@university.edu", user.Email)
		assert.Equal(t, VerificationMethodEmailCode, user.VerificationMethod)

		_, err = f.repo.GetPending(ctx, "user-1")
		assert.ErrorIs(t, err, ErrPendingNotFound)
		assert.Equal(t, []string{"user-1"}, granted)
	})

	t.Run("wrong code consumes an attempt", func(t *testing.T) {
		f := setupService(t)
		code := f.submitEmail(t, "user-1", "alice@university.edu")
		wrong := "000000"
		if wrong == code {
			wrong = "000001"
		}

		result, err := f.service.OnUserMessage(ctx, "user-1", "alice", wrong)
		require.NoError(t, err)
		assert.Equal(t, ReplyWrongCode, result.ReplyKind)
		assert.Equal(t, 2, result.AttemptsLeft)
	})

	t.Run("leading zeros are significant", func(t *testing.T) {
		f := setupService(t)
		f.submitEmail(t, "user-1", "alice@university.edu")

		pending, err := f.repo.GetPending(ctx, "user-1")
		require.NoError(t, err)
		pending.VerificationCode = "004521"
		require.NoError(t, f.repo.UpsertPending(ctx, pending))

		result, err := f.service.OnUserMessage(ctx, "user-1", "alice", "4521")
		require.NoError(t, err)
		assert.Equal(t, ReplyWrongCode, result.ReplyKind)

		result, err = f.service.OnUserMessage(ctx, "user-1", "alice", "004521")
		require.NoError(t, err)
		assert.Equal(t, ReplyVerified, result.ReplyKind)
	})

	t.Run("expired code restarts the email step", func(t *testing.T) {
		f := setupService(t)
		code := f.submitEmail(t, "user-1", "alice@university.edu")

		// One wrong guess first so we can check the counter survives expiry
		wrong := "999999"
		if wrong == code {
			wrong = "999998"
		}
		result, err := f.service.OnUserMessage(ctx, "user-1", "alice", wrong)
		require.NoError(t, err)
		require.Equal(t, ReplyWrongCode, result.ReplyKind)

		f.clock.Advance(11 * time.Minute)

		result, err = f.service.OnUserMessage(ctx, "user-1", "alice", code)
		require.NoError(t, err)
		assert.Equal(t, ReplyCodeExpired, result.ReplyKind)
		assert.Equal(t, StatusWaitingEmail, result.Status)

		pending, err := f.repo.GetPending(ctx, "user-1")
		require.NoError(t, err)
		assert.Empty(t, pending.VerificationCode)
		assert.Nil(t, pending.CodeExpiresAt)
		assert.Equal(t, 1, pending.Attempts)
	})
}

func TestAttemptExhaustionAndCooldown(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	code := f.submitEmail(t, "user-1", "alice@university.edu")
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i := 0; i < 2; i++ {
		result, err := f.service.OnUserMessage(ctx, "user-1", "alice", wrong)
		require.NoError(t, err)
		require.Equal(t, ReplyWrongCode, result.ReplyKind)
	}

	// Third wrong guess exhausts the budget
	result, err := f.service.OnUserMessage(ctx, "user-1", "alice", wrong)
	require.NoError(t, err)
	assert.Equal(t, ReplyAttemptsExhausted, result.ReplyKind)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 60*time.Minute, result.RetryAfter)
	assert.Equal(t, int64(1), f.actionCount(t, ActionFailed))

	// Anything during the cooldown is throttled, even the right code
	f.clock.Advance(30 * time.Minute)
	result, err = f.service.OnUserMessage(ctx, "user-1", "alice", code)
	require.NoError(t, err)
	assert.Equal(t, ReplyCooldown, result.ReplyKind)
	assert.Equal(t, 30*time.Minute, result.RetryAfter)
	assert.Equal(t, int64(1), f.actionCount(t, ActionRateLimited))

	// After the cooldown the flow restarts from scratch: the old code is
	// gone and the message is consumed as an email submission
	f.clock.Advance(31 * time.Minute)
	result, err = f.service.OnUserMessage(ctx, "user-1", "alice", "alice@university.edu")
	require.NoError(t, err)
	assert.Equal(t, ReplyCodeSent, result.ReplyKind)

	pending, err := f.repo.GetPending(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, StatusWaitingCode, pending.Status)
	assert.Equal(t, 0, pending.Attempts)
	assert.NotEqual(t, code, pending.VerificationCode)
}

func TestExhaustionOnEmailStep(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	require.NoError(t, f.service.OnMemberJoined(ctx, "user-1", "alice", "guild-1"))

	for i := 0; i < 2; i++ {
		result, err := f.service.OnUserMessage(ctx, "user-1", "alice", "nonsense")
		require.NoError(t, err)
		require.Equal(t, ReplyInvalidEmail, result.ReplyKind)
	}

	result, err := f.service.OnUserMessage(ctx, "user-1", "alice", "nonsense")
	require.NoError(t, err)
	assert.Equal(t, ReplyAttemptsExhausted, result.ReplyKind)

	pending, err := f.repo.GetPending(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, pending.Status)
}

func TestVerifiedUserMessagesAreSilent(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	code := f.submitEmail(t, "user-1", "alice@university.edu")
	result, err := f.service.OnUserMessage(ctx, "user-1", "alice", code)
	require.NoError(t, err)
	require.Equal(t, ReplyVerified, result.ReplyKind)

	result, err = f.service.OnUserMessage(ctx, "user-1", "alice", "hello again")
	require.NoError(t, err)
	assert.Equal(t, ReplyNone, result.ReplyKind)
	assert.Equal(t, StatusVerified, result.Status)
}

func TestCleanupExpired(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	require.NoError(t, f.service.OnMemberJoined(ctx, "stale", "stale", "guild-1"))
	f.clock.Advance(25 * time.Hour)
	require.NoError(t, f.service.OnMemberJoined(ctx, "fresh", "fresh", "guild-1"))

	require.NoError(t, f.service.CleanupExpired(ctx))

	_, err := f.repo.GetPending(ctx, "stale")
	assert.ErrorIs(t, err, ErrPendingNotFound)
	_, err = f.repo.GetPending(ctx, "fresh")
	assert.NoError(t, err)
}

func TestFullFlowAuditTrail(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	require.NoError(t, f.service.OnMemberJoined(ctx, "user-1", "alice", "guild-1"))
	f.clock.Advance(time.Minute)

	result, err := f.service.OnUserMessage(ctx, "user-1", "alice", "bad-input")
	require.NoError(t, err)
	require.Equal(t, ReplyInvalidEmail, result.ReplyKind)
	f.clock.Advance(time.Minute)

	result, err = f.service.OnUserMessage(ctx, "user-1", "alice", "alice@university.edu")
	require.NoError(t, err)
	require.Equal(t, ReplyCodeSent, result.ReplyKind)
	f.clock.Advance(time.Minute)

	result, err = f.service.OnUserMessage(ctx, "user-1", "alice", f.sender.last(t).Code)
	require.NoError(t, err)
	require.Equal(t, ReplyVerified, result.ReplyKind)

	entries, err := f.repo.ListSecurityLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	// Newest first
	assert.Equal(t, ActionVerified, entries[0].Action)
	assert.True(t, entries[0].Success)
	assert.Equal(t, ActionEmailAttempt, entries[1].Action)
	assert.True(t, entries[1].Success)
	assert.Equal(t, ActionEmailAttempt, entries[2].Action)
	assert.False(t, entries[2].Success)
	assert.Equal(t, ActionJoin, entries[3].Action)
}

func TestConcurrentMessagesSameUser(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	code := f.submitEmail(t, "user-1", "alice@university.edu")

	var wg sync.WaitGroup
	verified := make(chan ReplyKind, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.service.OnUserMessage(ctx, "user-1", "alice", code)
			if err == nil {
				verified <- result.ReplyKind
			}
		}()
	}
	wg.Wait()
	close(verified)

	var wins int
	for kind := range verified {
		if kind == ReplyVerified {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one submission should verify")

	user, err := f.repo.GetVerified(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "alice@university.edu", user.Email)
}
