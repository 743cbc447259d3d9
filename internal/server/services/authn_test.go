package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkravets/bankvault/internal/common"
	"github.com/dkravets/bankvault/internal/server/auth"
	"github.com/dkravets/bankvault/internal/server/config"
	"github.com/dkravets/bankvault/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMatcher struct {
	result *models.MatchResult
	err    error
}

func (f *fakeMatcher) Match(_ context.Context, _ []byte) (*models.MatchResult, error) {
	return f.result, f.err
}

func newAuthnService(matcher FaceMatcher) (*AuthnService, *fakeRepoManager) {
	rm := newFakeRepoManager()
	log := testLogger()
	cfg := &config.Config{
		SecretKey:                    "test-secret",
		AccessTokenValidityDuration:  15 * time.Minute,
		RefreshTokenValidityDuration: 24 * time.Hour,
		MatchTimeout:                 2 * time.Second,
	}
	devices := NewDeviceService(nil, rm, log)
	auditSvc := NewAuditService(nil, rm, log)
	svc := NewAuthnService(nil, rm, matcher, devices, auditSvc, cfg, log)
	return svc, rm
}

func registerUser(t *testing.T, svc *AuthnService) *models.User {
	t.Helper()
	user, err := svc.Register(context.Background(), "ivan@example.com", "correct horse battery")
	require.NoError(t, err)
	return user
}

func TestAuthnService_Register(t *testing.T) {
	svc, rm := newAuthnService(&fakeMatcher{})

	user := registerUser(t, svc)

	assert.NotEmpty(t, user.ID)
	assert.NotEmpty(t, user.Salt)
	assert.NotEmpty(t, user.Verifier)
	assert.NotContains(t, string(user.Verifier), "correct horse battery")
	assert.Contains(t, rm.users.byID, user.ID)
}

func TestAuthnService_Register_Validation(t *testing.T) {
	svc, _ := newAuthnService(&fakeMatcher{})
	ctx := context.Background()

	_, err := svc.Register(ctx, "not-an-email", "long enough password")
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = svc.Register(ctx, "ivan@example.com", "short")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestAuthnService_LoginPassword_Success(t *testing.T) {
	svc, rm := newAuthnService(&fakeMatcher{})
	ctx := context.Background()
	registered := registerUser(t, svc)

	pair, user, err := svc.LoginPassword(ctx, "ivan@example.com", "correct horse battery", "10.0.0.1", chromeOnMac)
	require.NoError(t, err)
	require.Equal(t, registered.ID, user.ID)

	// both tokens carry the user's identity
	for _, token := range []string{pair.AccessToken, pair.RefreshToken} {
		id, err := auth.GetUserIDFromToken(token, []byte("test-secret"))
		require.NoError(t, err)
		assert.Equal(t, registered.ID, id)
	}

	// the login landed in the ledger with the device context
	entry := rm.audit.lastEntry(t)
	assert.Equal(t, models.ActionLogin, entry.Action)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, registered.ID, *entry.UserID)
	assert.NotEmpty(t, entry.Details["device_id"])
	assert.Equal(t, "macOS", entry.Details["os"])
	assert.Equal(t, "Chrome", entry.Details["browser"])

	// and the device was sighted
	list, err := svc.devices.ListDevices(ctx, registered.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAuthnService_LoginPassword_WrongPassword(t *testing.T) {
	svc, rm := newAuthnService(&fakeMatcher{})
	ctx := context.Background()
	registered := registerUser(t, svc)

	pair, user, err := svc.LoginPassword(ctx, "ivan@example.com", "wrong password!!", "10.0.0.1", chromeOnMac)
	assert.ErrorIs(t, err, common.ErrUnauthorized)
	assert.Nil(t, pair)
	assert.Nil(t, user)

	entry := rm.audit.lastEntry(t)
	assert.Equal(t, models.ActionFailedLogin, entry.Action)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, registered.ID, *entry.UserID)
}

func TestAuthnService_LoginPassword_UnknownAccount(t *testing.T) {
	svc, rm := newAuthnService(&fakeMatcher{})

	_, _, err := svc.LoginPassword(context.Background(), "nobody@example.com", "whatever pass", "10.0.0.1", chromeOnMac)
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	entry := rm.audit.lastEntry(t)
	assert.Equal(t, models.ActionFailedLogin, entry.Action)
	assert.Nil(t, entry.UserID, "unknown accounts are recorded without a user")
}

func TestAuthnService_LoginFace_Success(t *testing.T) {
	matcher := &fakeMatcher{}
	svc, rm := newAuthnService(matcher)
	ctx := context.Background()
	registered := registerUser(t, svc)

	matcher.result = &models.MatchResult{Matched: true, UserID: registered.ID, Distance: 0.2, Threshold: 0.45}

	pair, user, err := svc.LoginFace(ctx, []byte("image"), "10.0.0.1", chromeOnMac)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	assert.NotEmpty(t, pair.AccessToken)

	entry := rm.audit.lastEntry(t)
	assert.Equal(t, models.ActionLogin, entry.Action)
}

func TestAuthnService_LoginFace_NoMatch(t *testing.T) {
	matcher := &fakeMatcher{result: &models.MatchResult{Matched: false, Distance: 0.9, Threshold: 0.45}}
	svc, rm := newAuthnService(matcher)

	_, _, err := svc.LoginFace(context.Background(), []byte("image"), "10.0.0.1", chromeOnMac)
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	entry := rm.audit.lastEntry(t)
	assert.Equal(t, models.ActionFailedLogin, entry.Action)
}

func TestAuthnService_LoginFace_MatchFailuresAreUniform(t *testing.T) {
	// every per-attempt verdict collapses into the same external error
	for _, matchErr := range []error{
		common.ErrInvalidImage,
		common.ErrNoGallery,
		common.ErrExtraction,
		context.DeadlineExceeded,
	} {
		t.Run(matchErr.Error(), func(t *testing.T) {
			svc, rm := newAuthnService(&fakeMatcher{err: matchErr})

			_, _, err := svc.LoginFace(context.Background(), []byte("image"), "10.0.0.1", chromeOnMac)
			assert.ErrorIs(t, err, common.ErrUnauthorized)
			assert.Equal(t, models.ActionFailedLogin, rm.audit.lastEntry(t).Action)
		})
	}
}

func TestAuthnService_LoginFace_InfrastructureErrorPassesThrough(t *testing.T) {
	infraErr := errors.New("gallery store unreachable")
	svc, rm := newAuthnService(&fakeMatcher{err: infraErr})

	_, _, err := svc.LoginFace(context.Background(), []byte("image"), "10.0.0.1", chromeOnMac)
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrUnauthorized)
	assert.ErrorIs(t, err, infraErr)
	assert.Empty(t, rm.audit.entries, "infrastructure failures are not authentication verdicts")
}

func TestAuthnService_LoginFace_GalleryUserMissing(t *testing.T) {
	matcher := &fakeMatcher{result: &models.MatchResult{Matched: true, UserID: "ghost", Distance: 0.1, Threshold: 0.45}}
	svc, rm := newAuthnService(matcher)

	_, _, err := svc.LoginFace(context.Background(), []byte("image"), "10.0.0.1", chromeOnMac)
	assert.ErrorIs(t, err, common.ErrUnauthorized)
	assert.Equal(t, models.ActionFailedLogin, rm.audit.lastEntry(t).Action)
}

func TestAuthnService_LedgerFailureFailsLogin(t *testing.T) {
	svc, rm := newAuthnService(&fakeMatcher{})
	ctx := context.Background()
	registerUser(t, svc)

	rm.audit.appendErr = errors.New("ledger down")

	pair, _, err := svc.LoginPassword(ctx, "ivan@example.com", "correct horse battery", "10.0.0.1", chromeOnMac)
	require.Error(t, err)
	assert.Nil(t, pair, "no tokens when the attempt cannot be recorded")
	assert.Contains(t, err.Error(), "ledger down")
}

func TestAuthnService_LedgerFailureWinsOverUnauthorized(t *testing.T) {
	svc, rm := newAuthnService(&fakeMatcher{})
	ctx := context.Background()
	registerUser(t, svc)

	rm.audit.appendErr = errors.New("ledger down")

	_, _, err := svc.LoginPassword(ctx, "ivan@example.com", "wrong password!!", "10.0.0.1", chromeOnMac)
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrUnauthorized)
	assert.Contains(t, err.Error(), "ledger down")
}

func TestAuthnService_Logout(t *testing.T) {
	svc, rm := newAuthnService(&fakeMatcher{})
	registered := registerUser(t, svc)

	require.NoError(t, svc.Logout(context.Background(), registered.ID, "10.0.0.1"))

	entry := rm.audit.lastEntry(t)
	assert.Equal(t, models.ActionLogout, entry.Action)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, registered.ID, *entry.UserID)
}
