package oic

import (
	"context"
	"net/url"
	"time"
)

// TokenManager obtains and lazily replaces the bearer credential.
type TokenManager interface {
	// GetToken returns the held token, acquiring one on first use.
	GetToken(ctx context.Context) (string, error)
	// RefreshToken replaces stale with a fresh token. When stale has already
	// been replaced by a concurrent caller the current token is returned
	// without another exchange.
	RefreshToken(ctx context.Context, stale string) (string, error)
}

// ListFunc fetches one page of a listing.
type ListFunc func(ctx context.Context, params url.Values) (Object, error)

// Gateway is the operation surface shared by every resource kind.
type Gateway interface {
	Kind() ResourceKind
	List(ctx context.Context, params url.Values) ([]Object, error)
	ListAll(ctx context.Context, params url.Values) ([]Object, error)
	Get(ctx context.Context, id string) (Object, error)
	Create(ctx context.Context, data Object) (Object, error)
	Update(ctx context.Context, id string, data Object) (Object, error)
	Delete(ctx context.Context, id string) error
	ExecuteAction(ctx context.Context, action, id string, data Object, method string) (Object, error)
	ExportBinary(ctx context.Context, id, destPath string) (string, error)
	ImportBinary(ctx context.Context, filePath string, meta map[string]string) (Object, error)
}

// ConnectionsGateway adds connection-specific actions.
type ConnectionsGateway interface {
	Gateway
	Test(ctx context.Context, id string) (Object, error)
	Clone(ctx context.Context, id string, data Object) (Object, error)
	FindByIdentifier(ctx context.Context, identifier string) (Object, error)
}

// IntegrationsGateway adds lifecycle actions and cached reads.
type IntegrationsGateway interface {
	Gateway
	Activate(ctx context.Context, id string) (Object, error)
	Deactivate(ctx context.Context, id string, stopSchedule bool) (Object, error)
	ResumeSchedule(ctx context.Context, id string) (Object, error)
	Clone(ctx context.Context, id string, data Object) (Object, error)
	GetCached(ctx context.Context, id string) (Object, error)
}

// LookupsGateway adds access to lookup rows.
type LookupsGateway interface {
	Gateway
	Data(ctx context.Context, id string) (Object, error)
	UpdateData(ctx context.Context, id string, data Object) (Object, error)
}

// PackagesGateway adds package composition.
type PackagesGateway interface {
	Gateway
	Resources(ctx context.Context, id string) ([]Object, error)
	AddResource(ctx context.Context, id string, data Object) (Object, error)
	RemoveResource(ctx context.Context, id, resourceID string) error
}

// InstanceFilter narrows a monitoring instance listing.
type InstanceFilter struct {
	IntegrationID string
	Status        string
	TimeWindow    string
	StartTime     time.Time
	EndTime       time.Time
	Limit         int
}

// MonitoringGateway reads run instances and statistics.
type MonitoringGateway interface {
	ListInstances(ctx context.Context, filter InstanceFilter) ([]Object, error)
	Instance(ctx context.Context, id string) (Object, error)
	Activities(ctx context.Context, id string) ([]Object, error)
	Payload(ctx context.Context, instanceID, activityID, direction string) (Object, error)
	Purge(ctx context.Context, data Object) (Object, error)
	Resubmit(ctx context.Context, id string) (Object, error)
	IntegrationStats(ctx context.Context, params url.Values) (Object, error)
	Errors(ctx context.Context, params url.Values) ([]Object, error)
}

// API aggregates the gateways of one OIC instance.
type API interface {
	Connections() ConnectionsGateway
	Integrations() IntegrationsGateway
	Lookups() LookupsGateway
	Libraries() Gateway
	Packages() PackagesGateway
	Monitoring() MonitoringGateway
}

// GatewayFor returns the gateway serving kind.
func GatewayFor(api API, kind ResourceKind) (Gateway, error) {
	switch kind {
	case KindConnection:
		return api.Connections(), nil
	case KindIntegration:
		return api.Integrations(), nil
	case KindLookup:
		return api.Lookups(), nil
	case KindLibrary:
		return api.Libraries(), nil
	case KindPackage:
		return api.Packages(), nil
	default:
		return nil, ErrUnknownResourceKind
	}
}

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// NoopLogger discards everything.
type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]interface{}) {}
func (NoopLogger) Info(string, map[string]interface{})  {}
func (NoopLogger) Warn(string, map[string]interface{})  {}
func (NoopLogger) Error(string, map[string]interface{}) {}

// Config represents client configuration for one OIC instance.
//
// Authentication precedence:
//  1. AccessToken: used directly as a static bearer token, never refreshed.
//  2. ClientID/ClientSecret: OAuth2 client_credentials grant against TokenURL,
//     with the optional Scope.
type Config struct {
	// BaseURL is the design-time host of the instance, e.g. "https://design.integration.example.com".
	BaseURL string `validate:"required,url"`
	// IdentityDomain is sent as the integrationInstance query parameter on every call.
	IdentityDomain string `validate:"required"`

	TokenURL     string `validate:"omitempty,url"`
	ClientID     string `validate:"required_without=AccessToken"`
	ClientSecret string `validate:"required_without=AccessToken"`
	Scope        string
	AccessToken  string

	// HTTPTimeout bounds each request. Zero uses the package default.
	HTTPTimeout time.Duration `validate:"gte=0"`
	// RetryMax is the number of transport retries on 5xx/429. Zero disables them.
	RetryMax     int           `validate:"gte=0"`
	RetryWaitMin time.Duration `validate:"gte=0"`
	RetryWaitMax time.Duration `validate:"gte=0"`

	// Debug enables request/response logging when a Logger is provided.
	Debug     bool
	Logger    Logger
	UserAgent string

	// Cache configures the read cache used for dependency discovery. Nil disables it.
	Cache *CacheConfig
}
