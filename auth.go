package verda

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-openapi/runtime"
	"github.com/sirupsen/logrus"
)

const (
	tokenEndpoint = "/oauth2/token"

	grantTypeClientCredentials = "client_credentials"
	grantTypeRefreshToken      = "refresh_token"

	// clientFingerprintLength is the number of leading client id characters
	// sent in User-Agent headers.
	clientFingerprintLength = 10
)

// Token is an OAuth2 access/refresh token pair.
//
// ExpiresAt is the absolute instant computed as now + expires_in when the
// token was issued.
type Token struct {
	AccessToken  string
	RefreshToken string
	Scope        string
	TokenType    string
	ExpiresAt    time.Time
}

// String returns a representation of the token that omits the secrets.
func (t Token) String() string {
	return fmt.Sprintf("Token(type=%s, scope=%s, expires_at=%s)",
		t.TokenType, t.Scope, t.ExpiresAt.Format(time.RFC3339))
}

// AuthResponse is the payload returned by the token endpoint.
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// AuthenticationService owns the OAuth2 token of a client.
//
// It is not safe for concurrent use: callers sharing an AuthenticationService
// across goroutines must synchronize externally.
type AuthenticationService struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       logrus.FieldLogger
	now          func() time.Time

	token         Token
	authenticated bool
}

// NewAuthenticationService creates an authentication service for the token
// endpoint under baseURL. No request is made until [AuthenticationService.Authenticate].
func NewAuthenticationService(clientID, clientSecret, baseURL string, httpClient *http.Client) *AuthenticationService {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AuthenticationService{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		logger:       discardLogger(),
		now:          time.Now,
	}
}

// ClientID returns the client id used for authentication.
func (s *AuthenticationService) ClientID() string {
	return s.clientID
}

// Token returns a copy of the current token.
func (s *AuthenticationService) Token() Token {
	return s.token
}

// Authenticate obtains a new token with the client credentials grant.
//
// On success the stored token is replaced and the raw payload returned.
// On a non-2xx response an [*APIError] is returned and the stored token is
// left unchanged.
func (s *AuthenticationService) Authenticate(ctx context.Context) (*AuthResponse, error) {
	s.logger.WithField("grant_type", grantTypeClientCredentials).Debug("requesting access token")
	return s.requestToken(ctx, &tokenRequest{
		GrantType:    grantTypeClientCredentials,
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
	})
}

// Refresh rotates the token with the refresh token grant.
// Failure semantics match [AuthenticationService.Authenticate].
func (s *AuthenticationService) Refresh(ctx context.Context) (*AuthResponse, error) {
	s.logger.WithField("grant_type", grantTypeRefreshToken).Debug("refreshing access token")
	return s.requestToken(ctx, &tokenRequest{
		GrantType:    grantTypeRefreshToken,
		RefreshToken: s.token.RefreshToken,
	})
}

// IsExpired reports whether the access token is expired.
// The expiry instant itself counts as expired, and so does a service that
// never authenticated.
func (s *AuthenticationService) IsExpired() bool {
	if !s.authenticated {
		return true
	}
	return !s.now().Before(s.token.ExpiresAt)
}

func (s *AuthenticationService) requestToken(ctx context.Context, payload *tokenRequest) (*AuthResponse, error) {
	var buf bytes.Buffer
	if err := runtime.JSONProducer().Produce(&buf, payload); err != nil {
		return nil, fmt.Errorf("encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+tokenEndpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set(runtime.HeaderContentType, runtime.JSONMime)
	req.Header.Set("User-Agent", "verda-go-"+clientFingerprint(s.clientID))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	if !isOK(resp.StatusCode) {
		return nil, newAPIError(resp)
	}
	defer func() { _ = resp.Body.Close() }()

	var auth AuthResponse
	if err := runtime.JSONConsumer().Consume(resp.Body, &auth); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	// Replace the whole token only once the payload decoded.
	s.token = Token{
		AccessToken:  auth.AccessToken,
		RefreshToken: auth.RefreshToken,
		Scope:        auth.Scope,
		TokenType:    auth.TokenType,
		ExpiresAt:    s.now().Add(time.Duration(auth.ExpiresIn) * time.Second),
	}
	s.authenticated = true
	s.logger.WithFields(logrus.Fields{
		"token_type": auth.TokenType,
		"expires_in": auth.ExpiresIn,
	}).Debug("access token issued")

	return &auth, nil
}

// newAPIError builds an APIError from a non-2xx response. A body that is
// not JSON yields a decode error instead.
func newAPIError(resp *http.Response) error {
	body, err := readErrorBody(resp)
	if err != nil {
		return fmt.Errorf("read error response (status %d): %w", resp.StatusCode, err)
	}
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := runtime.JSONConsumer().Consume(bytes.NewReader(body), apiErr); err != nil {
		return fmt.Errorf("decode error response (status %d): %w", resp.StatusCode, err)
	}
	return apiErr
}

// clientFingerprint returns the first ten characters of a client id.
func clientFingerprint(clientID string) string {
	runes := []rune(clientID)
	if len(runes) > clientFingerprintLength {
		runes = runes[:clientFingerprintLength]
	}
	return string(runes)
}
