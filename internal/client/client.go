package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/WolVesz/oic-devops/internal/auth"
	"github.com/WolVesz/oic-devops/internal/constants"
	"github.com/WolVesz/oic-devops/internal/http"
	"github.com/WolVesz/oic-devops/pkg/oic"
)

// Static errors for err113 compliance.
var (
	ErrBaseURLRequired          = errors.New("OIC base URL is required")
	ErrNoTokenManagerConfigured = errors.New("no token manager configured")
)

// Client implements oic.API for one OIC instance.
type Client struct {
	httpClient   *http.Client
	tokenManager auth.TokenManager
	baseURL      string
	logger       oic.Logger
	cache        oic.Cache

	// Resource clients
	connections  *ConnectionsClient
	integrations *IntegrationsClient
	lookups      *LookupsClient
	libraries    *Gateway
	packages     *PackagesClient
	monitoring   *MonitoringClient
}

// createTokenManager creates the token manager matching the credentials in config.
func createTokenManager(config *oic.Config) auth.TokenManager {
	if config.AccessToken != "" {
		return auth.NewStaticTokenManager(config.AccessToken)
	}

	if config.ClientID != "" && config.ClientSecret != "" {
		return auth.NewOAuth2TokenManager(&auth.OAuth2Config{
			TokenURL:     TokenURL(config),
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Scope:        config.Scope,
		})
	}

	return nil
}

// TokenURL returns the token URL from config or the conventional path on the base URL.
func TokenURL(config *oic.Config) string {
	if config.TokenURL != "" {
		return config.TokenURL
	}

	return strings.TrimSuffix(config.BaseURL, "/") + "/oauth2/v1/token"
}

// createHTTPClientOptions builds HTTP client options from config.
func createHTTPClientOptions(config *oic.Config) []http.Option {
	httpOpts := []http.Option{
		http.WithIdentityDomain(config.IdentityDomain),
	}

	if config.Logger != nil {
		httpOpts = append(httpOpts, http.WithLogger(config.Logger))
	}

	if config.Debug {
		httpOpts = append(httpOpts, http.WithDebug(true))
	}

	if config.UserAgent != "" {
		httpOpts = append(httpOpts, http.WithUserAgent(config.UserAgent))
	}

	if config.HTTPTimeout > 0 {
		httpOpts = append(httpOpts, http.WithTimeout(config.HTTPTimeout))
	}

	if config.RetryMax > 0 {
		retryWaitMin := constants.DefaultRetryWaitMin
		retryWaitMax := constants.DefaultRetryWaitMax

		if config.RetryWaitMin > 0 {
			retryWaitMin = config.RetryWaitMin
		}

		if config.RetryWaitMax > 0 {
			retryWaitMax = config.RetryWaitMax
		}

		httpOpts = append(httpOpts, http.WithRetryConfig(config.RetryMax, retryWaitMin, retryWaitMax))
	}

	return httpOpts
}

// New creates a new OIC client. Extra options are applied after the ones
// derived from config.
func New(ctx context.Context, config *oic.Config, extra ...http.Option) (*Client, error) {
	if config == nil {
		return nil, oic.ErrConfigRequired
	}

	tokenManager := createTokenManager(config)
	if tokenManager == nil {
		return nil, ErrNoTokenManagerConfigured
	}

	return NewWithTokenManager(config, tokenManager, extra...)
}

// NewWithTokenManager creates a new OIC client with a custom token manager.
func NewWithTokenManager(config *oic.Config, tokenManager auth.TokenManager, extra ...http.Option) (*Client, error) {
	if config == nil {
		return nil, oic.ErrConfigRequired
	}

	if config.BaseURL == "" {
		return nil, ErrBaseURLRequired
	}

	cache := oic.Cache(oic.NewNoOpCache())

	if config.Cache != nil {
		configured, err := oic.NewCacheFromConfig(config.Cache)
		if err != nil {
			return nil, fmt.Errorf("creating cache: %w", err)
		}

		cache = configured
	}

	httpOpts := append(createHTTPClientOptions(config), extra...)

	logger := config.Logger
	if logger == nil {
		logger = oic.NoopLogger{}
	}

	client := &Client{
		httpClient:   http.NewClient(config.BaseURL, tokenManager, httpOpts...),
		tokenManager: tokenManager,
		baseURL:      config.BaseURL,
		logger:       logger,
		cache:        cache,
	}

	client.initializeResourceClients(config.Cache.EffectiveTTL())

	return client, nil
}

// GetTokenManager returns the token manager for this client.
func (c *Client) GetTokenManager() auth.TokenManager {
	return c.tokenManager
}

// GetToken returns the current access token.
func (c *Client) GetToken(ctx context.Context) (string, error) {
	if c.tokenManager == nil {
		return "", ErrNoTokenManagerConfigured
	}

	token, err := c.tokenManager.GetToken(ctx)
	if err != nil {
		return "", fmt.Errorf("getting token: %w", err)
	}

	return token, nil
}

// BaseURL returns the instance URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping verifies credentials and reachability with the smallest possible listing.
func (c *Client) Ping(ctx context.Context) error {
	params := url.Values{}
	params.Set(constants.QueryLimit, "1")

	_, err := c.httpClient.Get(ctx, constants.APIPathIntegrations, params)
	if err != nil {
		return fmt.Errorf("checking connectivity: %w", err)
	}

	return nil
}

// Close releases the cache backend when it holds connections.
func (c *Client) Close() error {
	if closer, ok := c.cache.(io.Closer); ok {
		err := closer.Close()
		if err != nil {
			return fmt.Errorf("closing cache: %w", err)
		}
	}

	return nil
}

// Connections implements oic.API.
func (c *Client) Connections() oic.ConnectionsGateway {
	return c.connections
}

// Integrations implements oic.API.
func (c *Client) Integrations() oic.IntegrationsGateway {
	return c.integrations
}

// Lookups implements oic.API.
func (c *Client) Lookups() oic.LookupsGateway {
	return c.lookups
}

// Libraries implements oic.API.
func (c *Client) Libraries() oic.Gateway {
	return c.libraries
}

// Packages implements oic.API.
func (c *Client) Packages() oic.PackagesGateway {
	return c.packages
}

// Monitoring implements oic.API.
func (c *Client) Monitoring() oic.MonitoringGateway {
	return c.monitoring
}

// ConnectionTypes lists the available connection adapter types.
func (c *Client) ConnectionTypes(ctx context.Context) ([]oic.Object, error) {
	return c.connections.Types(ctx)
}

func (c *Client) initializeResourceClients(cacheTTL time.Duration) {
	c.connections = NewConnectionsClient(c.httpClient, c.logger)
	c.integrations = NewIntegrationsClient(c.httpClient, c.logger, c.cache, cacheTTL)
	c.lookups = NewLookupsClient(c.httpClient, c.logger)
	c.libraries = NewLibrariesClient(c.httpClient, c.logger)
	c.packages = NewPackagesClient(c.httpClient, c.logger)
	c.monitoring = NewMonitoringClient(c.httpClient, c.logger)
}
