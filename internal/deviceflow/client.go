// Package deviceflow implements the client half of the OAuth 2.0 Device
// Authorization Grant (RFC 8628): request a device code, hand the user code
// to the operator, then poll the token endpoint until the authorization
// server reaches a terminal answer.
package deviceflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/orbital-labs/orbital/internal/config"
	apperrors "github.com/orbital-labs/orbital/internal/errors"
	"github.com/orbital-labs/orbital/internal/model"
)

// GrantTypeDeviceCode is the grant_type value for device code exchange.
const GrantTypeDeviceCode = "urn:ietf:params:oauth:grant-type:device_code"

// Token endpoint error codes defined by RFC 8628 §3.5
const (
	errAuthorizationPending = "authorization_pending"
	errSlowDown             = "slow_down"
	errAccessDenied         = "access_denied"
	errExpiredToken         = "expired_token"
)

// Grant is the device authorization response. It lives only in memory and
// only for the duration of one login attempt.
type Grant struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	Scope            string `json:"scope,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// SleepFunc waits for d or until ctx is cancelled. Tests substitute a fake
// so the polling loop runs without wall-clock delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	sleep      SleepFunc
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithSleep(sleep SleepFunc) Option {
	return func(c *Client) { c.sleep = sleep }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: config.DeviceHTTPTimeout},
		sleep:      defaultSleep,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestGrant asks the authorization server for a new device code.
func (c *Client) RequestGrant(ctx context.Context, clientID, scope string) (*Grant, error) {
	form := url.Values{
		"client_id": {clientID},
		"scope":     {scope},
	}

	body, status, err := c.postForm(ctx, "/oauth/device/code", form)
	if err != nil {
		return nil, apperrors.Network(err)
	}

	if status != http.StatusOK {
		var errResp tokenResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return nil, apperrors.Protocol(fmt.Sprintf("%s: %s", errResp.Error, errResp.ErrorDescription))
		}
		return nil, apperrors.Protocol(fmt.Sprintf("device code request returned status %d", status))
	}

	var grant Grant
	if err := json.Unmarshal(body, &grant); err != nil {
		return nil, apperrors.Protocol("device code response is not valid JSON").WithCause(err)
	}
	if grant.DeviceCode == "" || grant.UserCode == "" {
		return nil, apperrors.Protocol("device code response is missing required fields")
	}
	if grant.Interval < 1 {
		grant.Interval = int(config.DevicePollInterval / time.Second)
	}
	return &grant, nil
}

// ObtainCredential runs the full device authorization flow. onGrant is
// called once with the fresh grant so the caller can show the user code and
// verification URL; it must not block on operator input.
//
// The loop issues one request at a time: each poll is scheduled only after
// the previous response arrives, so slow_down adjustments take effect on the
// very next wait. The grant's expires_in bounds the total wait even when the
// server keeps answering authorization_pending.
func (c *Client) ObtainCredential(ctx context.Context, clientID, scope string, onGrant func(*Grant)) (*model.Credential, error) {
	grant, err := c.RequestGrant(ctx, clientID, scope)
	if err != nil {
		return nil, err
	}

	if onGrant != nil {
		onGrant(grant)
	}

	interval := time.Duration(grant.Interval) * time.Second
	deadline := c.now().Add(time.Duration(grant.ExpiresIn) * time.Second)

	for {
		if err := c.sleep(ctx, interval); err != nil {
			return nil, err
		}
		if c.now().After(deadline) {
			return nil, apperrors.DeviceCodeExpired()
		}

		resp, status, err := c.pollToken(ctx, grant.DeviceCode, clientID)
		if err != nil {
			return nil, apperrors.Network(err)
		}

		if status == http.StatusOK && resp.AccessToken != "" {
			return credentialFromResponse(resp, c.now()), nil
		}

		switch resp.Error {
		case errAuthorizationPending:
			// keep waiting at the current interval
		case errSlowDown:
			interval += config.SlowDownIncrement
			log.Debug().Dur("interval", interval).Msg("server requested slower polling")
		case errAccessDenied:
			return nil, apperrors.AccessDenied()
		case errExpiredToken:
			return nil, apperrors.DeviceCodeExpired()
		case "":
			return nil, apperrors.Protocol(fmt.Sprintf("token endpoint returned status %d without an error code", status))
		default:
			desc := resp.ErrorDescription
			if desc == "" {
				desc = resp.Error
			}
			return nil, apperrors.Protocol(desc)
		}
	}
}

func (c *Client) pollToken(ctx context.Context, deviceCode, clientID string) (*tokenResponse, int, error) {
	form := url.Values{
		"grant_type":  {GrantTypeDeviceCode},
		"device_code": {deviceCode},
		"client_id":   {clientID},
	}

	body, status, err := c.postForm(ctx, "/oauth/device/token", form)
	if err != nil {
		return nil, 0, err
	}

	var resp tokenResponse
	// a decode failure leaves Error empty, which the caller reports as a
	// protocol error
	_ = json.Unmarshal(body, &resp)
	return &resp, status, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, res.StatusCode, nil
}

func credentialFromResponse(resp *tokenResponse, now time.Time) *model.Credential {
	tokenType := resp.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &model.Credential{
		AccessToken:  resp.AccessToken,
		TokenType:    tokenType,
		ExpiresAt:    now.Add(time.Duration(resp.ExpiresIn) * time.Second),
		RefreshToken: resp.RefreshToken,
		Scope:        resp.Scope,
	}
}
