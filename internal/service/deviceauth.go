package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/orbital-labs/orbital/internal/config"
	apperrors "github.com/orbital-labs/orbital/internal/errors"
	"github.com/orbital-labs/orbital/internal/model"
	"github.com/orbital-labs/orbital/internal/util"
)

// GrantTypeDeviceCode is the grant_type the token endpoint accepts.
const GrantTypeDeviceCode = "urn:ietf:params:oauth:grant-type:device_code"

// OAuth error codes the token endpoint emits (RFC 8628 §3.5, RFC 6749 §5.2)
const (
	OAuthErrAuthorizationPending = "authorization_pending"
	OAuthErrSlowDown             = "slow_down"
	OAuthErrAccessDenied         = "access_denied"
	OAuthErrExpiredToken         = "expired_token"
	OAuthErrInvalidGrant         = "invalid_grant"
	OAuthErrInvalidClient        = "invalid_client"
	OAuthErrUnsupportedGrant     = "unsupported_grant_type"
)

// GrantResponse is the device authorization response payload.
type GrantResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// TokenOutcome is the result of one token-endpoint poll. Either AccessToken
// or ErrorCode is set, never both.
type TokenOutcome struct {
	AccessToken      string `json:"access_token,omitempty"`
	TokenType        string `json:"token_type,omitempty"`
	ExpiresIn        int    `json:"expires_in,omitempty"`
	Scope            string `json:"scope,omitempty"`
	ErrorCode        string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func oauthFailure(code, description string) *TokenOutcome {
	return &TokenOutcome{ErrorCode: code, ErrorDescription: description}
}

// DeviceAuthService is the server half of the device authorization grant:
// it issues grants, lets an authenticated operator approve or deny them, and
// exchanges approved grants for access tokens.
type DeviceAuthService struct {
	grants  GrantStore
	limiter PollLimiter
	auth    *AuthService
	baseURL string
}

func NewDeviceAuthService(grants GrantStore, limiter PollLimiter, auth *AuthService, baseURL string) *DeviceAuthService {
	return &DeviceAuthService{
		grants:  grants,
		limiter: limiter,
		auth:    auth,
		baseURL: baseURL,
	}
}

// IssueGrant creates a fresh device grant and returns the wire response.
func (s *DeviceAuthService) IssueGrant(ctx context.Context, clientID, scope string) (*GrantResponse, error) {
	if clientID == "" {
		return nil, apperrors.MissingRequired("client_id")
	}

	deviceCode, err := util.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate device code: %w", err)
	}
	userCode, err := util.GenerateUserCode()
	if err != nil {
		return nil, fmt.Errorf("generate user code: %w", err)
	}

	now := time.Now().UTC()
	grant := &model.DeviceGrant{
		DeviceCode: deviceCode,
		UserCode:   userCode,
		ClientID:   clientID,
		Scope:      scope,
		Status:     model.GrantStatusPending,
		Interval:   config.DevicePollInterval,
		ExpiresAt:  now.Add(config.DeviceGrantLifetime),
		CreatedAt:  now,
	}

	// keep the record around a little past expiry so late polls get
	// expired_token instead of invalid_grant
	ttl := config.DeviceGrantLifetime + time.Minute
	if err := s.grants.Save(ctx, grant, ttl); err != nil {
		return nil, fmt.Errorf("save device grant: %w", err)
	}

	log.Info().
		Str("clientId", clientID).
		Str("userCode", util.MaskCode(userCode)).
		Msg("device grant issued")

	verificationURI := s.baseURL + "/device"
	return &GrantResponse{
		DeviceCode:              deviceCode,
		UserCode:                util.FormatUserCode(userCode),
		VerificationURI:         verificationURI,
		VerificationURIComplete: verificationURI + "?user_code=" + userCode,
		ExpiresIn:               int(config.DeviceGrantLifetime / time.Second),
		Interval:                int(config.DevicePollInterval / time.Second),
	}, nil
}

// GrantForUserCode looks up a pending grant for the approval page.
func (s *DeviceAuthService) GrantForUserCode(ctx context.Context, userCode string) (*model.DeviceGrant, error) {
	grant, err := s.grants.FindByUserCode(ctx, util.NormalizeUserCode(userCode))
	if err != nil {
		return nil, fmt.Errorf("find grant: %w", err)
	}
	if grant == nil {
		return nil, apperrors.NotFound("Device code")
	}
	if grant.IsExpired() {
		return nil, apperrors.DeviceCodeExpired()
	}
	return grant, nil
}

// Approve marks the grant approved on behalf of userID. Only pending grants
// can be approved.
func (s *DeviceAuthService) Approve(ctx context.Context, userCode, userID string) error {
	grant, err := s.GrantForUserCode(ctx, userCode)
	if err != nil {
		return err
	}
	if grant.Status != model.GrantStatusPending {
		return apperrors.New(apperrors.ErrCodeConflict, "Device code already decided")
	}

	grant.Status = model.GrantStatusApproved
	grant.UserID = &userID
	if err := s.grants.Update(ctx, grant); err != nil {
		return fmt.Errorf("update grant: %w", err)
	}

	log.Info().
		Str("userId", userID).
		Str("userCode", util.MaskCode(grant.UserCode)).
		Msg("device grant approved")
	return nil
}

// Deny marks the grant denied. Deny and approve are distinct operations on
// distinct states; a denied grant can never be exchanged.
func (s *DeviceAuthService) Deny(ctx context.Context, userCode, userID string) error {
	grant, err := s.GrantForUserCode(ctx, userCode)
	if err != nil {
		return err
	}
	if grant.Status != model.GrantStatusPending {
		return apperrors.New(apperrors.ErrCodeConflict, "Device code already decided")
	}

	grant.Status = model.GrantStatusDenied
	if err := s.grants.Update(ctx, grant); err != nil {
		return fmt.Errorf("update grant: %w", err)
	}

	log.Info().
		Str("userId", userID).
		Str("userCode", util.MaskCode(grant.UserCode)).
		Msg("device grant denied")
	return nil
}

// ExchangeToken handles one poll of the token endpoint. OAuth-level
// failures come back inside the TokenOutcome; the error return is for
// internal failures only.
func (s *DeviceAuthService) ExchangeToken(ctx context.Context, grantType, deviceCode, clientID string) (*TokenOutcome, error) {
	if grantType != GrantTypeDeviceCode {
		return oauthFailure(OAuthErrUnsupportedGrant, "grant_type must be "+GrantTypeDeviceCode), nil
	}
	if deviceCode == "" {
		return oauthFailure(OAuthErrInvalidGrant, "device_code is required"), nil
	}

	grant, err := s.grants.FindByDeviceCode(ctx, deviceCode)
	if err != nil {
		return nil, fmt.Errorf("find grant: %w", err)
	}
	if grant == nil {
		return oauthFailure(OAuthErrInvalidGrant, "Unknown device code"), nil
	}
	if grant.ClientID != clientID {
		return oauthFailure(OAuthErrInvalidClient, "client_id does not match the device code"), nil
	}
	if grant.IsExpired() {
		_ = s.grants.Delete(ctx, grant)
		return oauthFailure(OAuthErrExpiredToken, "The device code has expired"), nil
	}

	allowed, err := s.limiter.Allow(ctx, deviceCode, grant.Interval)
	if err != nil {
		log.Warn().Err(err).Msg("poll limiter unavailable, allowing request")
	} else if !allowed {
		return oauthFailure(OAuthErrSlowDown, "Polling too frequently"), nil
	}

	switch grant.Status {
	case model.GrantStatusPending:
		return oauthFailure(OAuthErrAuthorizationPending, "Authorization request is still pending"), nil

	case model.GrantStatusDenied:
		_ = s.grants.Delete(ctx, grant)
		return oauthFailure(OAuthErrAccessDenied, "The user denied the authorization request"), nil

	case model.GrantStatusApproved:
		token, _, err := s.auth.CreateSession(ctx, *grant.UserID)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		if err := s.grants.Delete(ctx, grant); err != nil {
			log.Warn().Err(err).Msg("failed to delete exchanged grant")
		}

		log.Info().Str("userId", *grant.UserID).Msg("device grant exchanged for token")
		return &TokenOutcome{
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresIn:   int(config.SessionLifetime / time.Second),
			Scope:       grant.Scope,
		}, nil

	default:
		return nil, fmt.Errorf("unexpected grant status %q", grant.Status)
	}
}
