package verification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltRepository_PersistsAcrossReopen(t *testing.T) {
	tempDir := t.TempDir()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	repo, err := NewBoltRepository(tempDir)
	require.NoError(t, err)

	require.NoError(t, repo.UpsertPending(ctx, testPending("user-1", now)))
	require.NoError(t, repo.CreateVerified(ctx, &VerifiedUser{
		UserID:             "user-2",
		Email:              "bob@university.edu",
		VerifiedAt:         now,
		VerificationMethod: VerificationMethodEmailCode,
	}))
	require.NoError(t, repo.Close())

	reopened, err := NewBoltRepository(tempDir)
	require.NoError(t, err)
	defer reopened.Close()

	pending, err := reopened.GetPending(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, StatusWaitingEmail, pending.Status)

	verified, err := reopened.FindVerifiedByEmail(ctx, "bob@university.edu")
	require.NoError(t, err)
	assert.Equal(t, "user-2", verified.UserID)
}
