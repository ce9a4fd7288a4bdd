package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/orbital-labs/orbital/internal/errors"
	"github.com/orbital-labs/orbital/internal/model"
)

const testBaseURL = "http://localhost:3005"

func newTestDeviceAuthService(t *testing.T) (*DeviceAuthService, *memGrantStore, *AuthService) {
	t.Helper()
	auth, _ := newTestAuthService(t)
	store := newMemGrantStore()
	return NewDeviceAuthService(store, allowAllLimiter{}, auth, testBaseURL), store, auth
}

func registerTestUser(t *testing.T, auth *AuthService) *model.User {
	t.Helper()
	user, err := auth.Register(context.Background(), "operator@example.com", "Operator", "password123")
	require.NoError(t, err)
	return user
}

func TestIssueGrant(t *testing.T) {
	ctx := context.Background()

	t.Run("issues a pending grant", func(t *testing.T) {
		svc, store, _ := newTestDeviceAuthService(t)

		resp, err := svc.IssueGrant(ctx, "orbital-cli", "openid profile email")
		require.NoError(t, err)

		assert.Len(t, resp.DeviceCode, 64)
		assert.Equal(t, 9, len(resp.UserCode)) // XXXX-XXXX
		assert.Contains(t, resp.UserCode, "-")
		assert.Equal(t, testBaseURL+"/device", resp.VerificationURI)
		assert.True(t, strings.HasPrefix(resp.VerificationURIComplete, resp.VerificationURI+"?user_code="))
		assert.Equal(t, 1800, resp.ExpiresIn)
		assert.Equal(t, 5, resp.Interval)

		grant, err := store.FindByDeviceCode(ctx, resp.DeviceCode)
		require.NoError(t, err)
		require.NotNil(t, grant)
		assert.Equal(t, model.GrantStatusPending, grant.Status)
		assert.Nil(t, grant.UserID)
	})

	t.Run("requires client_id", func(t *testing.T) {
		svc, _, _ := newTestDeviceAuthService(t)

		_, err := svc.IssueGrant(ctx, "", "openid")
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMissingRequired))
	})
}

func TestApproveAndDeny(t *testing.T) {
	ctx := context.Background()

	t.Run("approve records the user", func(t *testing.T) {
		svc, store, auth := newTestDeviceAuthService(t)
		user := registerTestUser(t, auth)

		resp, err := svc.IssueGrant(ctx, "orbital-cli", "openid")
		require.NoError(t, err)

		// the portal posts the code the way the user typed it
		require.NoError(t, svc.Approve(ctx, resp.UserCode, user.ID))

		grant, err := store.FindByDeviceCode(ctx, resp.DeviceCode)
		require.NoError(t, err)
		assert.Equal(t, model.GrantStatusApproved, grant.Status)
		require.NotNil(t, grant.UserID)
		assert.Equal(t, user.ID, *grant.UserID)
	})

	t.Run("deny is terminal", func(t *testing.T) {
		svc, store, auth := newTestDeviceAuthService(t)
		user := registerTestUser(t, auth)

		resp, err := svc.IssueGrant(ctx, "orbital-cli", "openid")
		require.NoError(t, err)

		require.NoError(t, svc.Deny(ctx, resp.UserCode, user.ID))

		grant, err := store.FindByDeviceCode(ctx, resp.DeviceCode)
		require.NoError(t, err)
		assert.Equal(t, model.GrantStatusDenied, grant.Status)

		// a denied grant cannot be approved afterwards
		err = svc.Approve(ctx, resp.UserCode, user.ID)
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConflict))
	})

	t.Run("unknown user code", func(t *testing.T) {
		svc, _, auth := newTestDeviceAuthService(t)
		user := registerTestUser(t, auth)

		err := svc.Approve(ctx, "ZZZZ-ZZZZ", user.ID)
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
	})

	t.Run("approve twice conflicts", func(t *testing.T) {
		svc, _, auth := newTestDeviceAuthService(t)
		user := registerTestUser(t, auth)

		resp, err := svc.IssueGrant(ctx, "orbital-cli", "openid")
		require.NoError(t, err)

		require.NoError(t, svc.Approve(ctx, resp.UserCode, user.ID))
		err = svc.Approve(ctx, resp.UserCode, user.ID)
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConflict))
	})
}

func TestExchangeToken(t *testing.T) {
	ctx := context.Background()

	t.Run("pending grant", func(t *testing.T) {
		svc, _, _ := newTestDeviceAuthService(t)

		resp, err := svc.IssueGrant(ctx, "orbital-cli", "openid")
		require.NoError(t, err)

		out, err := svc.ExchangeToken(ctx, GrantTypeDeviceCode, resp.DeviceCode, "orbital-cli")
		require.NoError(t, err)
		assert.Equal(t, OAuthErrAuthorizationPending, out.ErrorCode)
		assert.Empty(t, out.AccessToken)
	})

	t.Run("approved grant yields a working token", func(t *testing.T) {
		svc, store, auth := newTestDeviceAuthService(t)
		user := registerTestUser(t, auth)

		resp, err := svc.IssueGrant(ctx, "orbital-cli", "openid profile")
		require.NoError(t, err)
		require.NoError(t, svc.Approve(ctx, resp.UserCode, user.ID))

		out, err := svc.ExchangeToken(ctx, GrantTypeDeviceCode, resp.DeviceCode, "orbital-cli")
		require.NoError(t, err)
		assert.Empty(t, out.ErrorCode)
		assert.NotEmpty(t, out.AccessToken)
		assert.Equal(t, "Bearer", out.TokenType)
		assert.Equal(t, "openid profile", out.Scope)
		assert.Greater(t, out.ExpiresIn, 0)

		// the token resolves to the approving user
		got, err := auth.UserForToken(ctx, out.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)

		// the grant is consumed: a second exchange fails
		grant, err := store.FindByDeviceCode(ctx, resp.DeviceCode)
		require.NoError(t, err)
		assert.Nil(t, grant)

		out, err = svc.ExchangeToken(ctx, GrantTypeDeviceCode, resp.DeviceCode, "orbital-cli")
		require.NoError(t, err)
		assert.Equal(t, OAuthErrInvalidGrant, out.ErrorCode)
	})

	t.Run("denied grant", func(t *testing.T) {
		svc, _, auth := newTestDeviceAuthService(t)
		user := registerTestUser(t, auth)

		resp, err := svc.IssueGrant(ctx, "orbital-cli", "openid")
		require.NoError(t, err)
		require.NoError(t, svc.Deny(ctx, resp.UserCode, user.ID))

		out, err := svc.ExchangeToken(ctx, GrantTypeDeviceCode, resp.DeviceCode, "orbital-cli")
		require.NoError(t, err)
		assert.Equal(t, OAuthErrAccessDenied, out.ErrorCode)

		// access_denied consumes the grant too
		out, err = svc.ExchangeToken(ctx, GrantTypeDeviceCode, resp.DeviceCode, "orbital-cli")
		require.NoError(t, err)
		assert.Equal(t, OAuthErrInvalidGrant, out.ErrorCode)
	})

	t.Run("wrong grant type", func(t *testing.T) {
		svc, _, _ := newTestDeviceAuthService(t)

		out, err := svc.ExchangeToken(ctx, "authorization_code", "whatever", "orbital-cli")
		require.NoError(t, err)
		assert.Equal(t, OAuthErrUnsupportedGrant, out.ErrorCode)
	})

	t.Run("wrong client", func(t *testing.T) {
		svc, _, _ := newTestDeviceAuthService(t)

		resp, err := svc.IssueGrant(ctx, "orbital-cli", "openid")
		require.NoError(t, err)

		out, err := svc.ExchangeToken(ctx, GrantTypeDeviceCode, resp.DeviceCode, "other-client")
		require.NoError(t, err)
		assert.Equal(t, OAuthErrInvalidClient, out.ErrorCode)
	})

	t.Run("unknown device code", func(t *testing.T) {
		svc, _, _ := newTestDeviceAuthService(t)

		out, err := svc.ExchangeToken(ctx, GrantTypeDeviceCode, "nope", "orbital-cli")
		require.NoError(t, err)
		assert.Equal(t, OAuthErrInvalidGrant, out.ErrorCode)
	})

	t.Run("expired grant", func(t *testing.T) {
		svc, store, _ := newTestDeviceAuthService(t)

		resp, err := svc.IssueGrant(ctx, "orbital-cli", "openid")
		require.NoError(t, err)

		grant, err := store.FindByDeviceCode(ctx, resp.DeviceCode)
		require.NoError(t, err)
		grant.ExpiresAt = grant.CreatedAt.Add(-1)
		require.NoError(t, store.Update(ctx, grant))

		out, err := svc.ExchangeToken(ctx, GrantTypeDeviceCode, resp.DeviceCode, "orbital-cli")
		require.NoError(t, err)
		assert.Equal(t, OAuthErrExpiredToken, out.ErrorCode)
	})

	t.Run("throttled poll", func(t *testing.T) {
		auth, _ := newTestAuthService(t)
		store := newMemGrantStore()
		svc := NewDeviceAuthService(store, denyLimiter{}, auth, testBaseURL)

		resp, err := svc.IssueGrant(ctx, "orbital-cli", "openid")
		require.NoError(t, err)

		out, err := svc.ExchangeToken(ctx, GrantTypeDeviceCode, resp.DeviceCode, "orbital-cli")
		require.NoError(t, err)
		assert.Equal(t, OAuthErrSlowDown, out.ErrorCode)
	})
}
