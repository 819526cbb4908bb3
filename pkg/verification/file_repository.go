package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileRepository implements Repository using JSON file storage. It keeps
// everything in memory and rewrites the file on every mutation, which is
// plenty for a single community's verification volume.
type FileRepository struct {
	dataDir  string
	mutex    sync.RWMutex
	pending  map[string]*PendingVerification
	verified map[string]*VerifiedUser
	logs     []SecurityLogEntry
}

// verificationData represents the structure of data stored in the JSON file
type verificationData struct {
	Pending  []*PendingVerification `json:"pending"`
	Verified []*VerifiedUser        `json:"verified"`
	Logs     []SecurityLogEntry     `json:"security_logs"`
}

// NewFileRepository creates a file-based repository rooted at dataDir
func NewFileRepository(dataDir string) (*FileRepository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FileRepository{
		dataDir:  dataDir,
		pending:  make(map[string]*PendingVerification),
		verified: make(map[string]*VerifiedUser),
	}

	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}

	return repo, nil
}

func (r *FileRepository) filePath() string {
	return filepath.Join(r.dataDir, "verification.json")
}

func (r *FileRepository) load() error {
	data, err := os.ReadFile(r.filePath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var stored verificationData
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to parse %s: %w", r.filePath(), err)
	}

	for _, p := range stored.Pending {
		r.pending[p.UserID] = p
	}
	for _, u := range stored.Verified {
		r.verified[u.UserID] = u
	}
	r.logs = stored.Logs
	return nil
}

// save writes the whole dataset. Callers must hold the write lock.
func (r *FileRepository) save() error {
	stored := verificationData{Logs: r.logs}
	for _, p := range r.pending {
		stored.Pending = append(stored.Pending, p)
	}
	for _, u := range r.verified {
		stored.Verified = append(stored.Verified, u)
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.filePath(), data, 0644)
}

func (r *FileRepository) GetPending(ctx context.Context, userID string) (*PendingVerification, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	p, ok := r.pending[userID]
	if !ok {
		return nil, ErrPendingNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *FileRepository) UpsertPending(ctx context.Context, pending *PendingVerification) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	prev, hadPrev := r.pending[pending.UserID]
	cp := *pending
	r.pending[pending.UserID] = &cp

	if err := r.save(); err != nil {
		if hadPrev {
			r.pending[pending.UserID] = prev
		} else {
			delete(r.pending, pending.UserID)
		}
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

func (r *FileRepository) DeletePending(ctx context.Context, userID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	prev, hadPrev := r.pending[userID]
	if !hadPrev {
		return nil
	}
	delete(r.pending, userID)

	if err := r.save(); err != nil {
		r.pending[userID] = prev
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

func (r *FileRepository) GetVerified(ctx context.Context, userID string) (*VerifiedUser, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	u, ok := r.verified[userID]
	if !ok {
		return nil, ErrVerifiedNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *FileRepository) FindVerifiedByEmail(ctx context.Context, email string) (*VerifiedUser, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	email = NormalizeEmail(email)
	for _, u := range r.verified {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrVerifiedNotFound
}

func (r *FileRepository) CreateVerified(ctx context.Context, user *VerifiedUser) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.verified[user.UserID]; exists {
		return ErrAlreadyVerified
	}
	email := NormalizeEmail(user.Email)
	for _, u := range r.verified {
		if u.Email == email {
			return ErrEmailTaken
		}
	}

	cp := *user
	cp.Email = email
	r.verified[cp.UserID] = &cp

	if err := r.save(); err != nil {
		delete(r.verified, cp.UserID)
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

func (r *FileRepository) AppendSecurityLog(ctx context.Context, entry *SecurityLogEntry) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.logs = append(r.logs, *entry)
	if err := r.save(); err != nil {
		r.logs = r.logs[:len(r.logs)-1]
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

func (r *FileRepository) CountPending(ctx context.Context) (int64, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return int64(len(r.pending)), nil
}

func (r *FileRepository) CountVerified(ctx context.Context, since time.Time) (int64, error) {
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

func (r *FileRepository) CountSecurityLogs(ctx context.Context, action Action, since time.Time) (int64, error) {
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

func (r *FileRepository) ListSecurityLogs(ctx context.Context, limit int) ([]SecurityLogEntry, error) {
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

func (r *FileRepository) DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var stale []string
	for id, p := range r.pending {
		if p.JoinedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	for _, id := range stale {
		delete(r.pending, id)
	}
	if err := r.save(); err != nil {
		return 0, fmt.Errorf("failed to save: %w", err)
	}
	return int64(len(stale)), nil
}
