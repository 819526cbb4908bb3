package verification

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/boltdb/bolt"
	jsoniter "github.com/json-iterator/go"
)

const (
	bucketPending  = "pending_verifications"
	bucketVerified = "verified_users"
	bucketByEmail  = "verified_by_email"
	bucketLogs     = "security_logs"
)

// BoltRepository implements Repository on an embedded bolt database.
// Single-file durability without an external database server.
type BoltRepository struct {
	db *bolt.DB
}

// NewBoltRepository opens (or creates) bolt.db under dataDir and ensures
// all buckets exist
func NewBoltRepository(dataDir string) (*BoltRepository, error) {
	db, err := bolt.Open(filepath.Join(dataDir, "bolt.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketPending, bucketVerified, bucketByEmail, bucketLogs} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltRepository{db: db}, nil
}

// Close releases the underlying database file
func (r *BoltRepository) Close() error {
	return r.db.Close()
}

func (r *BoltRepository) GetPending(ctx context.Context, userID string) (*PendingVerification, error) {
	var p PendingVerification
	err := r.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(bucketPending)).Get([]byte(userID))
		if raw == nil {
			return ErrPendingNotFound
		}
		return jsoniter.Unmarshal(raw, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *BoltRepository) UpsertPending(ctx context.Context, pending *PendingVerification) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		raw, err := jsoniter.Marshal(pending)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketPending)).Put([]byte(pending.UserID), raw)
	})
}

func (r *BoltRepository) DeletePending(ctx context.Context, userID string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketPending)).Delete([]byte(userID))
	})
}

func (r *BoltRepository) GetVerified(ctx context.Context, userID string) (*VerifiedUser, error) {
	var u VerifiedUser
	err := r.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(bucketVerified)).Get([]byte(userID))
		if raw == nil {
			return ErrVerifiedNotFound
		}
		return jsoniter.Unmarshal(raw, &u)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *BoltRepository) FindVerifiedByEmail(ctx context.Context, email string) (*VerifiedUser, error) {
	var u VerifiedUser
	err := r.db.View(func(tx *bolt.Tx) error {
		userID := tx.Bucket([]byte(bucketByEmail)).Get([]byte(NormalizeEmail(email)))
		if userID == nil {
			return ErrVerifiedNotFound
		}
		raw := tx.Bucket([]byte(bucketVerified)).Get(userID)
		if raw == nil {
			return ErrVerifiedNotFound
		}
		return jsoniter.Unmarshal(raw, &u)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *BoltRepository) CreateVerified(ctx context.Context, user *VerifiedUser) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		verified := tx.Bucket([]byte(bucketVerified))
		byEmail := tx.Bucket([]byte(bucketByEmail))

		if verified.Get([]byte(user.UserID)) != nil {
			return ErrAlreadyVerified
		}
		email := NormalizeEmail(user.Email)
		if byEmail.Get([]byte(email)) != nil {
			return ErrEmailTaken
		}

		cp := *user
		cp.Email = email
		raw, err := jsoniter.Marshal(&cp)
		if err != nil {
			return err
		}
		if err := verified.Put([]byte(cp.UserID), raw); err != nil {
			return err
		}
		return byEmail.Put([]byte(email), []byte(cp.UserID))
	})
}

func (r *BoltRepository) AppendSecurityLog(ctx context.Context, entry *SecurityLogEntry) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(bucketLogs))
		seq, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		raw, err := jsoniter.Marshal(entry)
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return bkt.Put(key, raw)
	})
}

func (r *BoltRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.View(func(tx *bolt.Tx) error {
		count = int64(tx.Bucket([]byte(bucketPending)).Stats().KeyN)
		return nil
	})
	return count, err
}

func (r *BoltRepository) CountVerified(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketVerified)).ForEach(func(_, raw []byte) error {
			if since.IsZero() {
				count++
				return nil
			}
			var u VerifiedUser
			if err := jsoniter.Unmarshal(raw, &u); err != nil {
				return err
			}
			if !u.VerifiedAt.Before(since) {
				count++
			}
			return nil
		})
	})
	return count, err
}

func (r *BoltRepository) CountSecurityLogs(ctx context.Context, action Action, since time.Time) (int64, error) {
	var count int64
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketLogs)).ForEach(func(_, raw []byte) error {
			var e SecurityLogEntry
			if err := jsoniter.Unmarshal(raw, &e); err != nil {
				return err
			}
			if action != "" && e.Action != action {
				return nil
			}
			if !since.IsZero() && e.Timestamp.Before(since) {
				return nil
			}
			count++
			return nil
		})
	})
	return count, err
}

func (r *BoltRepository) ListSecurityLogs(ctx context.Context, limit int) ([]SecurityLogEntry, error) {
	var entries []SecurityLogEntry
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketLogs)).ForEach(func(_, raw []byte) error {
			var e SecurityLogEntry
			if err := jsoniter.Unmarshal(raw, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (r *BoltRepository) DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(bucketPending))
		var stale [][]byte
		err := bkt.ForEach(func(k, raw []byte) error {
			var p PendingVerification
			if err := jsoniter.Unmarshal(raw, &p); err != nil {
				return err
			}
			if p.JoinedAt.Before(cutoff) {
				key := make([]byte, len(k))
				copy(key, k)
				stale = append(stale, key)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := bkt.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
