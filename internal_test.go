package verda

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenServer serves the token endpoint and one resource path, recording
// the grants and the bearer tokens it sees.
type tokenServer struct {
	*httptest.Server

	mu         sync.Mutex
	issued     int
	grants     []string
	bearers    []string
	failGrants map[string]bool
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()

	s := &tokenServer{failGrants: make(map[string]bool)}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		s.mu.Lock()
		defer s.mu.Unlock()
		s.grants = append(s.grants, body["grant_type"])
		w.Header().Set("Content-Type", "application/json")
		if s.failGrants[body["grant_type"]] {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"invalid_request","message":"rejected"}`))
			return
		}
		s.issued++
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "access-" + strconv.Itoa(s.issued),
			"refresh_token": "refresh-" + strconv.Itoa(s.issued),
			"scope":         "fullAccess",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("GET /balance", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.bearers = append(s.bearers, r.Header.Get("Authorization"))
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"amount":12.5,"currency":"usd"}`))
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *tokenServer) fail(grantType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGrants[grantType] = true
}

func (s *tokenServer) snapshot() (grants, bearers []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.grants...), append([]string(nil), s.bearers...)
}

// fakeClock is a settable clock for the authentication service.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newClockedAuth(t *testing.T, baseURL string) (*AuthenticationService, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	auth := NewAuthenticationService("client-id-1234567890", "secret", baseURL, nil)
	auth.now = clock.Now
	return auth, clock
}

// TestIsExpired_Boundary verifies that the expiry instant itself counts as
// expired.
func TestIsExpired_Boundary(t *testing.T) {
	// Arrange
	server := newTokenServer(t)
	auth, clock := newClockedAuth(t, server.URL)
	issuedAt := clock.now
	_, err := auth.Authenticate(context.Background())
	require.NoError(t, err)
	require.Equal(t, issuedAt.Add(time.Hour), auth.Token().ExpiresAt)

	// Act & Assert
	clock.now = issuedAt.Add(time.Hour - time.Nanosecond)
	assert.False(t, auth.IsExpired(), "one nanosecond before expiry")

	clock.now = issuedAt.Add(time.Hour)
	assert.True(t, auth.IsExpired(), "at expiry")

	clock.now = issuedAt.Add(2 * time.Hour)
	assert.True(t, auth.IsExpired(), "after expiry")
}

// TestHTTPClient_AuthExpireRefreshFlow runs the whole token lifecycle:
// authenticate, call, expire, refresh exactly once, call again.
func TestHTTPClient_AuthExpireRefreshFlow(t *testing.T) {
	// Arrange
	server := newTokenServer(t)
	auth, clock := newClockedAuth(t, server.URL)
	client := NewHTTPClient(auth, server.URL, nil, time.Second)
	ctx := context.Background()

	_, err := auth.Authenticate(ctx)
	require.NoError(t, err)

	// Act: a call with a fresh token does not touch the token endpoint
	resp, err := client.Get(ctx, "/balance")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	// Act: expire the token and call again
	clock.now = auth.Token().ExpiresAt.Add(time.Second)
	resp, err = client.Get(ctx, "/balance")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	// Assert
	grants, bearers := server.snapshot()
	assert.Equal(t, []string{"client_credentials", "refresh_token"}, grants)
	assert.Equal(t, []string{"Bearer access-1", "Bearer access-2"}, bearers)
	assert.False(t, auth.IsExpired())
}

// TestHTTPClient_RefreshFailureFallsBackToAuthenticate verifies the single
// re-authentication after a failed refresh.
func TestHTTPClient_RefreshFailureFallsBackToAuthenticate(t *testing.T) {
	// Arrange
	server := newTokenServer(t)
	auth, clock := newClockedAuth(t, server.URL)
	client := NewHTTPClient(auth, server.URL, nil, time.Second)
	ctx := context.Background()

	_, err := auth.Authenticate(ctx)
	require.NoError(t, err)
	server.fail("refresh_token")
	clock.now = auth.Token().ExpiresAt

	// Act
	resp, err := client.Get(ctx, "/balance")

	// Assert
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	grants, bearers := server.snapshot()
	assert.Equal(t, []string{"client_credentials", "refresh_token", "client_credentials"}, grants)
	assert.Equal(t, []string{"Bearer access-2"}, bearers)
}

// TestHTTPClient_FallbackFailurePropagates verifies that a failing fallback
// is reported and the request is never sent.
func TestHTTPClient_FallbackFailurePropagates(t *testing.T) {
	// Arrange
	server := newTokenServer(t)
	auth, clock := newClockedAuth(t, server.URL)
	client := NewHTTPClient(auth, server.URL, nil, time.Second)
	ctx := context.Background()

	_, err := auth.Authenticate(ctx)
	require.NoError(t, err)
	server.fail("refresh_token")
	server.fail("client_credentials")
	clock.now = auth.Token().ExpiresAt.Add(time.Minute)

	// Act
	_, err = client.Get(ctx, "/balance")

	// Assert
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, ErrorCodeInvalidRequest, apiErr.Code)
	grants, bearers := server.snapshot()
	assert.Equal(t, []string{"client_credentials", "refresh_token", "client_credentials"}, grants)
	assert.Empty(t, bearers)
}

// TestIsStreamResponse covers every rule of the stream heuristic.
func TestIsStreamResponse(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		hint    bool
		want    bool
	}{
		{name: "stream flag", hint: true, want: true},
		{name: "chunked", headers: map[string]string{"Transfer-Encoding": "chunked"}, want: true},
		{name: "event stream", headers: map[string]string{"Content-Type": "text/event-stream"}, want: true},
		{name: "ndjson with charset", headers: map[string]string{"Content-Type": "application/x-ndjson; charset=utf-8"}, want: true},
		{name: "stream json", headers: map[string]string{"Content-Type": "application/stream+json"}, want: true},
		{name: "keep-alive without length", headers: map[string]string{"Connection": "keep-alive"}, want: true},
		{name: "keep-alive with length", headers: map[string]string{"Connection": "keep-alive", "Content-Length": "12"}, want: false},
		{name: "plain json", headers: map[string]string{"Content-Type": "application/json", "Content-Length": "12"}, want: false},
		{name: "no headers", want: false},
		{name: "chunked json", headers: map[string]string{"Content-Type": "application/json", "Transfer-Encoding": "chunked"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := make(http.Header)
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			assert.Equal(t, tt.want, isStreamResponse(h, tt.hint))
		})
	}
}

// TestParseAsyncStatus covers the status encodings accepted from the server.
func TestParseAsyncStatus(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    AsyncStatus
		wantErr bool
	}{
		{name: "json number", in: json.Number("3"), want: AsyncStatusCompleted},
		{name: "float", in: float64(1), want: AsyncStatusQueue},
		{name: "numeric string", in: "2", want: AsyncStatusInference},
		{name: "name", in: "completed", want: AsyncStatusCompleted},
		{name: "out of range", in: json.Number("9"), wantErr: true},
		{name: "unknown name", in: "done", wantErr: true},
		{name: "wrong type", in: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAsyncStatus(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAPIVersionFromBaseURL(t *testing.T) {
	assert.Equal(t, "v1", apiVersionFromBaseURL("https://api.verda.com/v1"))
	assert.Equal(t, "v2", apiVersionFromBaseURL("https://api.verda.com/v2/"))
	assert.Equal(t, "", apiVersionFromBaseURL("http://127.0.0.1:8080"))
	assert.Equal(t, "", apiVersionFromBaseURL("https://api.verda.com/version"))
}

func TestClientFingerprint(t *testing.T) {
	assert.Equal(t, "short", clientFingerprint("short"))
	assert.Equal(t, "0123456789", clientFingerprint("0123456789abcdef"))
	assert.Equal(t, "日本語日本語日本語日", clientFingerprint("日本語日本語日本語日本語"))
}
