package deviceflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/orbital-labs/orbital/internal/errors"
)

type pollReply struct {
	status int
	body   map[string]any
}

func pending() pollReply {
	return pollReply{http.StatusBadRequest, map[string]any{"error": "authorization_pending"}}
}

func slowDown() pollReply {
	return pollReply{http.StatusBadRequest, map[string]any{"error": "slow_down"}}
}

func granted(token string) pollReply {
	return pollReply{http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   3600,
	}}
}

func oauthError(code, desc string) pollReply {
	return pollReply{http.StatusBadRequest, map[string]any{
		"error":             code,
		"error_description": desc,
	}}
}

// authServer scripts the token endpoint: each poll consumes the next reply,
// and the last reply repeats once the script runs out.
type authServer struct {
	mu      sync.Mutex
	grant   Grant
	replies []pollReply
	polls   int
}

func newAuthServer(grant Grant, replies ...pollReply) (*authServer, *httptest.Server) {
	as := &authServer{grant: grant, replies: replies}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/device/code", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(as.grant)
	})
	mux.HandleFunc("/oauth/device/token", func(w http.ResponseWriter, r *http.Request) {
		as.mu.Lock()
		reply := as.replies[0]
		if len(as.replies) > 1 {
			as.replies = as.replies[1:]
		}
		as.polls++
		as.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(reply.status)
		json.NewEncoder(w).Encode(reply.body)
	})

	return as, httptest.NewServer(mux)
}

func (as *authServer) pollCount() int {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.polls
}

// fakeTime advances a virtual clock instead of sleeping, recording every
// requested wait.
type fakeTime struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeTime() *fakeTime {
	return &fakeTime{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTime) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	f.sleeps = append(f.sleeps, d)
	return nil
}

func testGrant(interval, expiresIn int) Grant {
	return Grant{
		DeviceCode:      "dev-code-1",
		UserCode:        "ABCDEFGH",
		VerificationURI: "http://localhost:3005/device",
		ExpiresIn:       expiresIn,
		Interval:        interval,
	}
}

func newTestClient(url string, ft *fakeTime) *Client {
	return NewClient(url, WithSleep(ft.Sleep), WithClock(ft.Now))
}

func TestObtainCredential_PendingThenGranted(t *testing.T) {
	as, srv := newAuthServer(testGrant(5, 1800), pending(), pending(), granted("tok-1"))
	defer srv.Close()

	ft := newFakeTime()
	client := newTestClient(srv.URL, ft)

	var grantSeen *Grant
	cred, err := client.ObtainCredential(context.Background(), "orbital-cli", "openid profile email", func(g *Grant) {
		grantSeen = g
	})

	require.NoError(t, err)
	assert.Equal(t, "tok-1", cred.AccessToken)
	assert.Equal(t, "Bearer", cred.TokenType)
	assert.True(t, cred.ExpiresAt.After(ft.Now()))

	require.NotNil(t, grantSeen)
	assert.Equal(t, "ABCDEFGH", grantSeen.UserCode)

	// success is terminal: exactly one poll per scripted reply, none after
	assert.Equal(t, 3, as.pollCount())
}

func TestObtainCredential_AccessDenied(t *testing.T) {
	as, srv := newAuthServer(testGrant(5, 1800), oauthError("access_denied", ""))
	defer srv.Close()

	client := newTestClient(srv.URL, newFakeTime())

	_, err := client.ObtainCredential(context.Background(), "orbital-cli", "openid", nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAccessDenied))
	assert.Equal(t, 1, as.pollCount())
}

func TestObtainCredential_ExpiredToken(t *testing.T) {
	as, srv := newAuthServer(testGrant(5, 1800), oauthError("expired_token", ""))
	defer srv.Close()

	client := newTestClient(srv.URL, newFakeTime())

	_, err := client.ObtainCredential(context.Background(), "orbital-cli", "openid", nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDeviceCodeExpired))
	assert.Equal(t, 1, as.pollCount())
}

func TestObtainCredential_SlowDownGrowsInterval(t *testing.T) {
	_, srv := newAuthServer(testGrant(5, 1800), slowDown(), slowDown(), granted("tok-2"))
	defer srv.Close()

	ft := newFakeTime()
	client := newTestClient(srv.URL, ft)

	_, err := client.ObtainCredential(context.Background(), "orbital-cli", "openid", nil)
	require.NoError(t, err)

	// waits: initial 5s, then 10s and 15s after each slow_down
	require.Len(t, ft.sleeps, 3)
	assert.Equal(t, 5*time.Second, ft.sleeps[0])
	assert.Equal(t, 10*time.Second, ft.sleeps[1])
	assert.Equal(t, 15*time.Second, ft.sleeps[2])
	for i := 1; i < len(ft.sleeps); i++ {
		assert.Greater(t, ft.sleeps[i], ft.sleeps[i-1])
	}
}

func TestObtainCredential_DeadlineBoundsPolling(t *testing.T) {
	// 60s lifetime at a 5s interval allows exactly 12 polls even when the
	// server never stops answering authorization_pending
	as, srv := newAuthServer(testGrant(5, 60), pending())
	defer srv.Close()

	client := newTestClient(srv.URL, newFakeTime())

	_, err := client.ObtainCredential(context.Background(), "orbital-cli", "openid", nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDeviceCodeExpired))
	assert.Equal(t, 12, as.pollCount())
}

func TestObtainCredential_UnknownErrorCode(t *testing.T) {
	as, srv := newAuthServer(testGrant(5, 1800), oauthError("server_on_fire", "datacenter unavailable"))
	defer srv.Close()

	client := newTestClient(srv.URL, newFakeTime())

	_, err := client.ObtainCredential(context.Background(), "orbital-cli", "openid", nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeProtocol))
	assert.Contains(t, err.Error(), "datacenter unavailable")
	assert.Equal(t, 1, as.pollCount())
}

func TestObtainCredential_NetworkErrorIsTerminal(t *testing.T) {
	_, srv := newAuthServer(testGrant(5, 1800), pending())
	ft := newFakeTime()
	client := newTestClient(srv.URL, ft)

	grant, err := client.RequestGrant(context.Background(), "orbital-cli", "openid")
	require.NoError(t, err)
	require.NotNil(t, grant)

	// server goes away before the first poll
	srv.Close()

	_, err = client.ObtainCredential(context.Background(), "orbital-cli", "openid", nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNetwork))
}

func TestObtainCredential_ContextCancelledDuringWait(t *testing.T) {
	_, srv := newAuthServer(testGrant(5, 1800), pending())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(srv.URL, newFakeTime())

	_, err := client.ObtainCredential(ctx, "orbital-cli", "openid", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRequestGrant(t *testing.T) {
	t.Run("fills default interval", func(t *testing.T) {
		_, srv := newAuthServer(testGrant(0, 1800), pending())
		defer srv.Close()

		client := newTestClient(srv.URL, newFakeTime())
		grant, err := client.RequestGrant(context.Background(), "orbital-cli", "openid")
		require.NoError(t, err)
		assert.Equal(t, 5, grant.Interval)
	})

	t.Run("rejects empty payload", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		client := newTestClient(srv.URL, newFakeTime())
		_, err := client.RequestGrant(context.Background(), "orbital-cli", "openid")
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeProtocol))
	})

	t.Run("surfaces server error payload", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_client","error_description":"unknown client"}`))
		}))
		defer srv.Close()

		client := newTestClient(srv.URL, newFakeTime())
		_, err := client.RequestGrant(context.Background(), "orbital-cli", "openid")
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeProtocol))
		assert.Contains(t, err.Error(), "unknown client")
	})
}
