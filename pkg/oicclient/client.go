package oicclient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/WolVesz/oic-devops/internal/auth"
	"github.com/WolVesz/oic-devops/internal/client"
	"github.com/WolVesz/oic-devops/internal/http"
	"github.com/WolVesz/oic-devops/pkg/oic"
	"github.com/go-playground/validator/v10"
)

// Client is the handle returned by New.
type Client interface {
	oic.API
	Ping(ctx context.Context) error
	BaseURL() string
	Close() error
}

// Option customises the underlying dispatcher.
type Option = http.Option

// WithRequestObserver reports every HTTP exchange to observer.
func WithRequestObserver(observer http.RequestObserver) Option {
	return http.WithRequestObserver(observer)
}

var configValidator = validator.New()

// New validates config, normalises its URLs and creates a client.
func New(ctx context.Context, config *oic.Config, opts ...Option) (Client, error) {
	if config == nil {
		return nil, oic.ErrConfigRequired
	}

	config.BaseURL = normalizeURL(config.BaseURL)
	if config.TokenURL != "" {
		config.TokenURL = normalizeURL(config.TokenURL)
	}

	err := ValidateConfig(config)
	if err != nil {
		return nil, err
	}

	oicClient, err := client.New(ctx, config, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create new client: %w", err)
	}

	return oicClient, nil
}

// NewPersisting creates a client whose client-credentials tokens are handed
// to persister after every exchange. A valid initialToken is sent first. A
// static AccessToken in config bypasses the persister.
func NewPersisting(config *oic.Config, persister auth.ConfigPersister, profile string, initialToken *auth.Token, opts ...Option) (Client, error) {
	if config == nil {
		return nil, oic.ErrConfigRequired
	}

	config.BaseURL = normalizeURL(config.BaseURL)
	if config.TokenURL != "" {
		config.TokenURL = normalizeURL(config.TokenURL)
	}

	err := ValidateConfig(config)
	if err != nil {
		return nil, err
	}

	var tokenManager auth.TokenManager

	if config.AccessToken != "" {
		tokenManager = auth.NewStaticTokenManager(config.AccessToken)
	} else {
		tokenManager = auth.NewConfigTokenManager(&auth.OAuth2Config{
			TokenURL:     client.TokenURL(config),
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Scope:        config.Scope,
		}, persister, profile, initialToken)
	}

	oicClient, err := client.NewWithTokenManager(config, tokenManager, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create new client: %w", err)
	}

	return oicClient, nil
}

// ValidateConfig checks config against its validate tags and reports the
// first offending field as a ConfigurationError.
func ValidateConfig(config *oic.Config) error {
	if config == nil {
		return oic.ErrConfigRequired
	}

	err := configValidator.Struct(config)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		fieldErr := validationErrs[0]

		return &oic.ConfigurationError{Field: fieldErr.Field(), Message: describeTag(fieldErr)}
	}

	return &oic.ConfigurationError{Message: err.Error()}
}

func describeTag(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return "is required unless " + fieldErr.Param() + " is set"
	case "url":
		return "must be a valid URL"
	case "gte":
		return "must not be negative"
	default:
		return "failed " + fieldErr.Tag() + " validation"
	}
}

// normalizeURL trims trailing slashes and defaults the scheme to https.
func normalizeURL(raw string) string {
	trimmed := strings.TrimSuffix(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return ""
	}

	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "https://" + trimmed
	}

	return trimmed
}
