package verification

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemRepository implements Repository with in-process maps. Suited for
// tests and throwaway deployments; nothing survives a restart.
type InMemRepository struct {
	mutex    sync.RWMutex
	pending  map[string]*PendingVerification // key: user id
	verified map[string]*VerifiedUser        // key: user id
	byEmail  map[string]*VerifiedUser        // key: normalized email
	logs     []SecurityLogEntry
}

// NewInMemRepository creates an empty in-memory repository
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{
		pending:  make(map[string]*PendingVerification),
		verified: make(map[string]*VerifiedUser),
		byEmail:  make(map[string]*VerifiedUser),
	}
}

func (r *InMemRepository) GetPending(ctx context.Context, userID string) (*PendingVerification, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	p, ok := r.pending[userID]
	if !ok {
		return nil, ErrPendingNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *InMemRepository) UpsertPending(ctx context.Context, pending *PendingVerification) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	cp := *pending
	r.pending[pending.UserID] = &cp
	return nil
}

func (r *InMemRepository) DeletePending(ctx context.Context, userID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.pending, userID)
	return nil
}

func (r *InMemRepository) GetVerified(ctx context.Context, userID string) (*VerifiedUser, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	u, ok := r.verified[userID]
	if !ok {
		return nil, ErrVerifiedNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *InMemRepository) FindVerifiedByEmail(ctx context.Context, email string) (*VerifiedUser, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	u, ok := r.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrVerifiedNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *InMemRepository) CreateVerified(ctx context.Context, user *VerifiedUser) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.verified[user.UserID]; exists {
		return ErrAlreadyVerified
	}
	email := NormalizeEmail(user.Email)
	if _, exists := r.byEmail[email]; exists {
		return ErrEmailTaken
	}

	cp := *user
	cp.Email = email
	r.verified[cp.UserID] = &cp
	r.byEmail[email] = &cp
	return nil
}

func (r *InMemRepository) AppendSecurityLog(ctx context.Context, entry *SecurityLogEntry) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.logs = append(r.logs, *entry)
	return nil
}

func (r *InMemRepository) CountPending(ctx context.Context) (int64, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return int64(len(r.pending)), nil
}

func (r *InMemRepository) CountVerified(ctx context.Context, since time.Time) (int64, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var count int64
	for _, u := range r.verified {
		if since.IsZero() || !u.VerifiedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *InMemRepository) CountSecurityLogs(ctx context.Context, action Action, since time.Time) (int64, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var count int64
	for _, e := range r.logs {
		if action != "" && e.Action != action {
			continue
		}
		if !since.IsZero() && e.Timestamp.Before(since) {
			continue
		}
		count++
	}
	return count, nil
}

func (r *InMemRepository) ListSecurityLogs(ctx context.Context, limit int) ([]SecurityLogEntry, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entries := make([]SecurityLogEntry, len(r.logs))
	copy(entries, r.logs)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (r *InMemRepository) DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var deleted int64
	for id, p := range r.pending {
		if p.JoinedAt.Before(cutoff) {
			delete(r.pending, id)
			deleted++
		}
	}
	return deleted, nil
}
