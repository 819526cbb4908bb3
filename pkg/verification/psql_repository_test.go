package verification

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDatabase(t *testing.T) (*pgxpool.Pool, func()) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithInitScripts(filepath.Join("../../migrations", "verify_db.sql")),
		postgres.WithDatabase("verify_db"),
		postgres.WithUsername("verify"),
		postgres.WithPassword("pwd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	require.NoError(t, err)

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	poolConfig, err := pgxpool.ParseConfig(connString)
	require.NoError(t, err)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

func TestPostgresRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test in short mode")
	}

	pool, cleanup := setupTestDatabase(t)
	defer cleanup()

	repo := NewPostgresRepository(pool)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("pending lifecycle", func(t *testing.T) {
		_, err := repo.GetPending(ctx, "missing")
		assert.ErrorIs(t, err, ErrPendingNotFound)

		expiry := now.Add(10 * time.Minute)
		pending := &PendingVerification{
			UserID:           "pg-user-1",
			DisplayName:      "alice",
			GroupID:          "guild-1",
			Email:            "alice@university.edu",
			VerificationCode: "004521",
			CodeExpiresAt:    &expiry,
			Attempts:         1,
			Status:           StatusWaitingCode,
			JoinedAt:         now,
			LastAttempt:      now,
		}
		require.NoError(t, repo.UpsertPending(ctx, pending))

		got, err := repo.GetPending(ctx, "pg-user-1")
		require.NoError(t, err)
		assert.Equal(t, StatusWaitingCode, got.Status)
		assert.Equal(t, "004521", got.VerificationCode)
		assert.Equal(t, "alice@university.edu", got.Email)
		require.NotNil(t, got.CodeExpiresAt)
		assert.True(t, expiry.Equal(got.CodeExpiresAt.UTC()))

		// Clearing email and code maps to NULL, comes back as empty strings
		pending.Email = ""
		pending.VerificationCode = ""
		pending.CodeExpiresAt = nil
		pending.Status = StatusWaitingEmail
		require.NoError(t, repo.UpsertPending(ctx, pending))

		got, err = repo.GetPending(ctx, "pg-user-1")
		require.NoError(t, err)
		assert.Empty(t, got.Email)
		assert.Empty(t, got.VerificationCode)
		assert.Nil(t, got.CodeExpiresAt)

		require.NoError(t, repo.DeletePending(ctx, "pg-user-1"))
		_, err = repo.GetPending(ctx, "pg-user-1")
		assert.ErrorIs(t, err, ErrPendingNotFound)
	})

	t.Run("verified users and constraints", func(t *testing.T) {
		user := &VerifiedUser{
			UserID:             "pg-user-2",
			DisplayName:        "bob",
			Email:              "Bob@University.EDU",
			GroupID:            "guild-1",
			VerifiedAt:         now,
			VerificationMethod: VerificationMethodEmailCode,
		}
		require.NoError(t, repo.CreateVerified(ctx, user))

		got, err := repo.GetVerified(ctx, "pg-user-2")
		require.NoError(t, err)
		assert.Equal(t, "bob@university.edu", got.Email)

		byEmail, err := repo.FindVerifiedByEmail(ctx, "bob@university.edu")
		require.NoError(t, err)
		assert.Equal(t, "pg-user-2", byEmail.UserID)

		err = repo.CreateVerified(ctx, &VerifiedUser{
			UserID: "pg-user-2", Email: "other@university.edu", VerifiedAt: now,
		})
		assert.ErrorIs(t, err, ErrAlreadyVerified)

		err = repo.CreateVerified(ctx, &VerifiedUser{
			UserID: "pg-user-3", Email: "bob@university.edu", VerifiedAt: now,
		})
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("security logs and counters", func(t *testing.T) {
		for i, action := range []Action{ActionJoin, ActionCodeAttempt, ActionVerified} {
			require.NoError(t, repo.AppendSecurityLog(ctx, &SecurityLogEntry{
				ID:        uuid.New(),
				UserID:    "pg-user-2",
				Action:    action,
				Success:   action == ActionVerified,
				Timestamp: now.Add(time.Duration(i) * time.Minute),
			}))
		}

		total, err := repo.CountSecurityLogs(ctx, "", time.Time{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)

		joins, err := repo.CountSecurityLogs(ctx, ActionJoin, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), joins)

		recent, err := repo.CountSecurityLogs(ctx, "", now.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(2), recent)

		entries, err := repo.ListSecurityLogs(ctx, 2)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, ActionVerified, entries[0].Action)

		verified, err := repo.CountVerified(ctx, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), verified)
	})

	t.Run("retention sweep", func(t *testing.T) {
		require.NoError(t, repo.UpsertPending(ctx, testPending("pg-stale", now.Add(-48*time.Hour))))
		require.NoError(t, repo.UpsertPending(ctx, testPending("pg-fresh", now)))

		deleted, err := repo.DeletePendingBefore(ctx, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		_, err = repo.GetPending(ctx, "pg-stale")
		assert.ErrorIs(t, err, ErrPendingNotFound)
	})
}
