package constants

import "errors"

// Configuration errors.
var (
	ErrNoProfileConfigured = errors.New("no profile configured, use 'oic config init' to add one")
	ErrProfileNotFound     = errors.New("profile not found in configuration")
	ErrNoBaseURL           = errors.New("no OIC base URL configured")
	ErrNoCredentials       = errors.New("no client credentials or token configured")
	ErrUnknownConfigKey    = errors.New("unknown configuration key")
)

// Command argument errors.
var (
	ErrUnsupportedOutput   = errors.New("unsupported output format")
	ErrUnsupportedKind     = errors.New("unsupported resource kind")
	ErrInvalidCredential   = errors.New("credential must be given as key=value")
	ErrWorkflowFailed      = errors.New("workflow reported failure")
	ErrTargetProfileNeeded = errors.New("--target-profile is required")
)

// File system errors.
var (
	ErrDirectoryTraversalDetected = errors.New("directory traversal detected in file path")
)
