package signing

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, 0)
		require.Less(t, n, 1000000)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1, "64 draws should not all collide")
}

func wrongCodeFor(code string) string {
	if code == "000000" {
		return "000001"
	}
	return "000000"
}

func TestVerifyAcceptsOnlyTheIssuedCode(t *testing.T) {
	repo := newMemoryRepository()
	mgr := NewOTPManager(repo, 5, false)
	ctx := context.Background()
	reportID := uuid.New()

	issued, err := mgr.Issue(ctx, reportID, RoleClient, "client@example.com", time.Minute)
	require.NoError(t, err)
	require.False(t, issued.ExpiresAt.Before(time.Now()))

	_, err = mgr.Verify(ctx, reportID, RoleClient, wrongCodeFor(issued.Code))
	assert.Equal(t, KindOTPInvalid, KindOf(err))

	rec, err := mgr.Verify(ctx, reportID, RoleClient, issued.Code)
	require.NoError(t, err)
	assert.NotNil(t, rec.OTPVerifiedAt)
}

func TestVerifyWithoutIssuance(t *testing.T) {
	mgr := NewOTPManager(newMemoryRepository(), 5, false)

	_, err := mgr.Verify(context.Background(), uuid.New(), RoleProfessional, "123456")
	assert.Equal(t, KindOTPNotRequested, KindOf(err))
}

func TestVerifyLocksAfterFiveFailures(t *testing.T) {
	repo := newMemoryRepository()
	mgr := NewOTPManager(repo, 5, false)
	ctx := context.Background()
	reportID := uuid.New()

	issued, err := mgr.Issue(ctx, reportID, RoleClient, "client@example.com", time.Minute)
	require.NoError(t, err)
	wrong := wrongCodeFor(issued.Code)

	for i := 0; i < 4; i++ {
		_, err := mgr.Verify(ctx, reportID, RoleClient, wrong)
		assert.Equal(t, KindOTPInvalid, KindOf(err), "attempt %d", i+1)
	}
	_, err = mgr.Verify(ctx, reportID, RoleClient, wrong)
	assert.Equal(t, KindOTPLocked, KindOf(err))

	// Even the correct code is refused once locked.
	_, err = mgr.Verify(ctx, reportID, RoleClient, issued.Code)
	assert.Equal(t, KindOTPLocked, KindOf(err))
}

func TestIssueSupersedesLockedCode(t *testing.T) {
	repo := newMemoryRepository()
	mgr := NewOTPManager(repo, 5, false)
	ctx := context.Background()
	reportID := uuid.New()

	issued, err := mgr.Issue(ctx, reportID, RoleClient, "client@example.com", time.Minute)
	require.NoError(t, err)
	wrong := wrongCodeFor(issued.Code)
	for i := 0; i < 5; i++ {
		_, _ = mgr.Verify(ctx, reportID, RoleClient, wrong)
	}

	reissued, err := mgr.Issue(ctx, reportID, RoleClient, "client@example.com", time.Minute)
	require.NoError(t, err)

	rec, err := repo.GetSignatureRecord(ctx, reportID, RoleClient)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Zero(t, rec.OTPAttempts)
	assert.Nil(t, rec.OTPLockedAt)
	assert.Nil(t, rec.OTPVerifiedAt)

	verified, err := mgr.Verify(ctx, reportID, RoleClient, reissued.Code)
	require.NoError(t, err)
	assert.NotNil(t, verified.OTPVerifiedAt)
}

func TestVerifyExpiredCode(t *testing.T) {
	repo := newMemoryRepository()
	mgr := NewOTPManager(repo, 5, false)
	ctx := context.Background()
	reportID := uuid.New()

	issued, err := mgr.Issue(ctx, reportID, RoleProfessional, "pro@example.com", time.Minute)
	require.NoError(t, err)

	mgr.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	// Expiry wins regardless of remaining attempts.
	_, err = mgr.Verify(ctx, reportID, RoleProfessional, issued.Code)
	assert.Equal(t, KindOTPExpired, KindOf(err))
}

func TestConsumedCodeRejectedInSingleUseMode(t *testing.T) {
	repo := newMemoryRepository()
	mgr := NewOTPManager(repo, 5, true)
	ctx := context.Background()
	reportID := uuid.New()

	issued, err := mgr.Issue(ctx, reportID, RoleClient, "client@example.com", time.Minute)
	require.NoError(t, err)

	_, err = mgr.Verify(ctx, reportID, RoleClient, issued.Code)
	require.NoError(t, err)
	require.NoError(t, mgr.Consume(ctx, reportID, RoleClient))

	_, err = mgr.Verify(ctx, reportID, RoleClient, issued.Code)
	assert.Equal(t, KindOTPNotRequested, KindOf(err))
}
