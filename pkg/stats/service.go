package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/tendant/discord-verify/pkg/verification"
)

// Overview aggregates verification counters for a reporting window.
type Overview struct {
	PendingCount   int64         `json:"pending_count"`
	VerifiedTotal  int64         `json:"verified_total"`
	VerifiedRecent int64         `json:"verified_recent"`
	FailedCount    int64         `json:"failed_count"`
	RateLimited    int64         `json:"rate_limited"`
	Suspicious     int64         `json:"suspicious"`
	Window         time.Duration `json:"-"`
}

// Service computes verification statistics from the repository.
type Service struct {
	repo verification.Repository
	now  func() time.Time
}

type ServiceOption func(*Service)

// WithClock overrides the service's time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(repo verification.Repository, opts ...ServiceOption) *Service {
	s := &Service{
		repo: repo,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Overview returns counters for the given window. A zero window reports
// all-time counts for the windowed fields.
func (s *Service) Overview(ctx context.Context, window time.Duration) (Overview, error) {
	var since time.Time
	if window > 0 {
		since = s.now().Add(-window)
	}

	pending, err := s.repo.CountPending(ctx)
	if err != nil {
		return Overview{}, fmt.Errorf("failed to count pending verifications: %w", err)
	}

	verifiedTotal, err := s.repo.CountVerified(ctx, time.Time{})
	if err != nil {
		return Overview{}, fmt.Errorf("failed to count verified users: %w", err)
	}

	verifiedRecent, err := s.repo.CountVerified(ctx, since)
	if err != nil {
		return Overview{}, fmt.Errorf("failed to count recent verified users: %w", err)
	}

	failed, err := s.repo.CountSecurityLogs(ctx, verification.ActionFailed, since)
	if err != nil {
		return Overview{}, fmt.Errorf("failed to count failed verifications: %w", err)
	}

	rateLimited, err := s.repo.CountSecurityLogs(ctx, verification.ActionRateLimited, since)
	if err != nil {
		return Overview{}, fmt.Errorf("failed to count rate limited events: %w", err)
	}

	suspicious, err := s.repo.CountSecurityLogs(ctx, verification.ActionSuspicious, since)
	if err != nil {
		return Overview{}, fmt.Errorf("failed to count suspicious events: %w", err)
	}

	return Overview{
		PendingCount:   pending,
		VerifiedTotal:  verifiedTotal,
		VerifiedRecent: verifiedRecent,
		FailedCount:    failed,
		RateLimited:    rateLimited,
		Suspicious:     suspicious,
		Window:         window,
	}, nil
}

// RecentActivity returns the most recent security log entries, newest first.
func (s *Service) RecentActivity(ctx context.Context, limit int) ([]verification.SecurityLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	entries, err := s.repo.ListSecurityLogs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list security logs: %w", err)
	}
	return entries, nil
}
