package verda_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/verda-cloud/verda-go"
)

const (
	testClientID     = "client-id-1234567890"
	testClientSecret = "client-secret"
)

// mustEncode encodes v as JSON and writes it to w.
// Panics on error - safe in tests since errors indicate test bugs.
func mustEncode(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic("failed to encode response: " + err.Error())
	}
}

// mustDecode decodes JSON from r.Body into v.
// Panics on error - safe in tests since errors indicate test bugs.
func mustDecode(r *http.Request, v interface{}) {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		panic("failed to decode request: " + err.Error())
	}
}

// fakeAPI is a Verda API stand-in with a working token endpoint.
// Resource handlers are registered per test with handle.
type fakeAPI struct {
	*httptest.Server

	mux *http.ServeMux

	mu          sync.Mutex
	grants      []string
	issued      int
	expiresIn   int
	failGrants  map[string]int
	lastTokenUA string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()

	f := &fakeAPI{
		mux:        http.NewServeMux(),
		expiresIn:  3600,
		failGrants: make(map[string]int),
	}
	f.mux.HandleFunc("POST /oauth2/token", f.token)
	f.Server = httptest.NewServer(f.mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeAPI) handle(pattern string, h http.HandlerFunc) {
	f.mux.HandleFunc(pattern, h)
}

// failGrant makes the token endpoint reject grantType with status.
func (f *fakeAPI) failGrant(grantType string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGrants[grantType] = status
}

func (f *fakeAPI) grantLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.grants...)
}

func (f *fakeAPI) accessToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fmt.Sprintf("access-%d", f.issued)
}

func (f *fakeAPI) token(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	mustDecode(r, &body)

	f.mu.Lock()
	defer f.mu.Unlock()

	grant := body["grant_type"]
	f.grants = append(f.grants, grant)
	f.lastTokenUA = r.Header.Get("User-Agent")

	if status, ok := f.failGrants[grant]; ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code":    verda.ErrorCodeUnauthorizedRequest,
			"message": "grant rejected",
		})
		return
	}

	f.issued++
	mustEncode(w, map[string]interface{}{
		"access_token":  fmt.Sprintf("access-%d", f.issued),
		"refresh_token": fmt.Sprintf("refresh-%d", f.issued),
		"scope":         "fullAccess",
		"token_type":    "Bearer",
		"expires_in":    f.expiresIn,
	})
}

// newTestClient creates an authenticated client against f.
func newTestClient(t *testing.T, f *fakeAPI, opts ...verda.Option) *verda.Client {
	t.Helper()

	opts = append([]verda.Option{verda.WithBaseURL(f.URL)}, opts...)
	client, err := verda.NewClient(context.Background(), testClientID, testClientSecret, opts...)
	require.NoError(t, err)
	return client
}
