package oic_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/WolVesz/oic-devops/pkg/oic"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "authentication",
			err:      &oic.AuthenticationError{Message: "token endpoint returned 400"},
			expected: "authentication failed: token endpoint returned 400",
		},
		{
			name:     "not found",
			err:      &oic.ResourceNotFoundError{URL: "https://oic/ic/api/integration/v1/connections/X"},
			expected: "resource not found: https://oic/ic/api/integration/v1/connections/X",
		},
		{
			name:     "validation with missing fields",
			err:      &oic.ValidationError{Kind: oic.KindConnection, Missing: []string{"identifier", "connectionType"}},
			expected: "validation failed for connection: missing required fields: identifier, connectionType",
		},
		{
			name:     "api status",
			err:      &oic.APIError{StatusCode: 409, Message: "already exists"},
			expected: "API request failed with status code 409: already exists",
		},
		{
			name:     "transport",
			err:      &oic.APIError{Err: errBoom},
			expected: "request failed: boom",
		},
		{
			name:     "configuration",
			err:      &oic.ConfigurationError{Field: "BaseURL", Message: "is required"},
			expected: "invalid configuration: BaseURL: is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	t.Parallel()

	notFound := fmt.Errorf("getting connection: %w", &oic.ResourceNotFoundError{URL: "u"})
	unauthorized := fmt.Errorf("listing: %w", &oic.AuthenticationError{Message: "401"})
	api := fmt.Errorf("creating: %w", &oic.APIError{StatusCode: 503, Message: "busy"})
	validation := &oic.ValidationError{Message: "rows required"}

	assert.True(t, oic.IsNotFound(notFound))
	assert.False(t, oic.IsNotFound(api))
	assert.True(t, oic.IsUnauthorized(unauthorized))
	assert.True(t, oic.IsValidation(validation))

	assert.Equal(t, 404, oic.StatusCode(notFound))
	assert.Equal(t, 401, oic.StatusCode(unauthorized))
	assert.Equal(t, 503, oic.StatusCode(api))
	assert.Equal(t, 0, oic.StatusCode(errors.New("plain")))

	assert.Equal(t, "ResourceNotFoundError", oic.ErrorType(notFound))
	assert.Equal(t, "APIError", oic.ErrorType(api))
	assert.Equal(t, "ValidationError", oic.ErrorType(validation))
	assert.Empty(t, oic.ErrorType(nil))
}

func TestAPIError_UnwrapsTransportCause(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("listing: %w", &oic.APIError{Err: errBoom})

	assert.ErrorIs(t, err, errBoom)
}
