package verda

import (
	"context"
	"net/http"
	"time"

	oaierrors "github.com/go-openapi/errors"
	"github.com/go-openapi/validate"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultBaseURL is the production API base URL.
	DefaultBaseURL = "https://api.verda.com/v1"

	defaultTimeout = 30 * time.Second
)

// Client is the Verda API client.
//
// A Client authenticates eagerly in [NewClient] and then exposes one service
// per API resource. The services share a single [HTTPClient] and token, so a
// Client must not be used from several goroutines without external
// synchronization.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	timeout      time.Duration
	inferenceKey string
	logger       logrus.FieldLogger

	auth *AuthenticationService
	http *HTTPClient

	// Balance reads the account balance.
	Balance *BalanceService

	// SSHKeys manages SSH keys.
	SSHKeys *SSHKeysService

	// Locations lists datacenter locations.
	Locations *LocationsService

	// Instances deploys and manages instances.
	Instances *InstancesService

	// Volumes manages block storage volumes.
	Volumes *VolumesService

	// Images lists OS images for instances.
	Images *ImagesService

	// InstanceTypes lists instance types and their prices.
	InstanceTypes *InstanceTypesService

	// VolumeTypes lists volume types and their prices.
	VolumeTypes *VolumeTypesService

	// StartupScripts manages first-boot scripts for instances.
	StartupScripts *StartupScriptsService

	// Containers manages serverless container deployments and their secrets.
	Containers *ContainersService
}

// NewClient creates a client and authenticates with the client credentials.
//
//	client, err := verda.NewClient(ctx, clientID, clientSecret,
//	    verda.WithInferenceKey(inferenceKey),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	balance, err := client.Balance.Get(ctx)
func NewClient(ctx context.Context, clientID, clientSecret string, opts ...Option) (*Client, error) {
	if err := validateCredentials(clientID, clientSecret); err != nil {
		return nil, err
	}

	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
		timeout:    defaultTimeout,
		logger:     discardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.auth = NewAuthenticationService(clientID, clientSecret, c.baseURL, c.httpClient)
	c.auth.logger = c.logger
	c.http = NewHTTPClient(c.auth, c.baseURL, c.httpClient, c.timeout)
	c.http.logger = c.logger

	c.checkAPIVersion()

	if _, err := c.auth.Authenticate(ctx); err != nil {
		return nil, err
	}

	c.Balance = &BalanceService{client: c.http}
	c.SSHKeys = &SSHKeysService{client: c.http}
	c.Locations = &LocationsService{client: c.http}
	c.Instances = &InstancesService{client: c.http}
	c.Volumes = &VolumesService{client: c.http}
	c.Images = &ImagesService{client: c.http}
	c.InstanceTypes = &InstanceTypesService{client: c.http}
	c.VolumeTypes = &VolumeTypesService{client: c.http}
	c.StartupScripts = &StartupScriptsService{client: c.http}
	c.Containers = &ContainersService{
		client:       c.http,
		inferenceKey: c.inferenceKey,
		httpClient:   c.httpClient,
		logger:       c.logger,
	}
	return c, nil
}

func validateCredentials(clientID, clientSecret string) error {
	var errs []error
	if err := validate.RequiredString("client_id", "client", clientID); err != nil {
		errs = append(errs, err)
	}
	if err := validate.RequiredString("client_secret", "client", clientSecret); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return oaierrors.CompositeValidationError(errs...)
	}
	return nil
}

// checkAPIVersion warns when the base URL targets an API major version this
// SDK was not built for.
func (c *Client) checkAPIVersion() {
	v := apiVersionFromBaseURL(c.baseURL)
	if v == "" {
		return
	}
	if result := CheckCompatibility(v); result.Status == Incompatible {
		c.logger.WithField("api_version", v).Warn(result.Message)
	}
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the authenticated HTTP client shared by the services.
// Use it to call endpoints the SDK does not wrap.
func (c *Client) HTTPClient() *HTTPClient {
	return c.http
}

// Auth returns the authentication service holding the client token.
func (c *Client) Auth() *AuthenticationService {
	return c.auth
}
