package constants

import "time"

// File and directory permissions.
const (
	// ConfigDirPerm is the permission for configuration and backup directories.
	ConfigDirPerm = 0750

	// ConfigFilePerm is the permission for configuration files.
	ConfigFilePerm = 0600

	// ArtifactFilePerm is the permission for exported archives and reports.
	ArtifactFilePerm = 0640
)

// HTTP and network timeouts.
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// ShortHTTPTimeout is used for the token exchange.
	ShortHTTPTimeout = 10 * time.Second
)

// Retry limits.
const (
	// DefaultRetryMax is the default maximum number of transport retries.
	DefaultRetryMax = 3

	// DefaultRetryWaitMin is the minimum wait between transport retries.
	DefaultRetryWaitMin = 500 * time.Millisecond

	// DefaultRetryWaitMax is the maximum wait between transport retries.
	DefaultRetryWaitMax = 10 * time.Second
)

// Pagination.
const (
	// MonitoringMaxOffset is the largest offset the monitoring instances endpoint accepts.
	MonitoringMaxOffset = 500

	// MonitoringPageLimit is the largest page the monitoring instances endpoint returns.
	MonitoringPageLimit = 50

	// DefaultTimeWindow is the monitoring time window used when none is given.
	DefaultTimeWindow = "RETENTIONPERIOD"
)

// Polling.
const (
	// DefaultPollInterval is the wait between status checks after a state change.
	DefaultPollInterval = 10 * time.Second

	// DefaultPollAttempts is the number of status checks before giving up.
	DefaultPollAttempts = 30

	// DefaultRestartWait is the pause between sequential activations.
	DefaultRestartWait = 10 * time.Second
)

// Cache settings.
const (
	// DefaultNATSBucket is the KV bucket used by the NATS cache backend.
	DefaultNATSBucket = "oic-devops-cache"
)

// Backup layout.
const (
	// BackupPrefix starts every backup directory and archive name.
	BackupPrefix = "oic_backup_"

	// BackupTimestampFormat is the Go layout of the backup timestamp suffix.
	BackupTimestampFormat = "20060102_150405"

	// BackupMetadataFile is written at the root of every backup.
	BackupMetadataFile = "backup_metadata.json"

	// MaxSanitizedNameLength is the longest name kept verbatim in artifact file names.
	MaxSanitizedNameLength = 50

	// DefaultRetentionDays is the age limit used by prune when none is given.
	DefaultRetentionDays = 30

	// DefaultRetentionCount is the number of newest backups always kept.
	DefaultRetentionCount = 5
)

// Integration and connection states.
const (
	StatusActivated  = "ACTIVATED"
	StatusConfigured = "CONFIGURED"
	StatusError      = "ERROR"
	StatusSuccess    = "SUCCESS"
	StatusFailed     = "FAILED"
	StatusUnknown    = "UNKNOWN"
)

// HTTP headers and content types.
const (
	HeaderMethodOverride = "X-HTTP-Method-Override"
	ContentTypeJSON      = "application/json"
	ContentTypeOctet     = "application/octet-stream"
	DefaultUserAgent     = "oic-devops/1.0"
)

// API paths.
const (
	APIPathRoot         = "/ic/api/integration/v1"
	APIPathConnections  = APIPathRoot + "/connections"
	APIPathIntegrations = APIPathRoot + "/integrations"
	APIPathLookups      = APIPathRoot + "/lookups"
	APIPathLibraries    = APIPathRoot + "/libraries"
	APIPathPackages     = APIPathRoot + "/packages"
	APIPathMonitoring   = APIPathRoot + "/monitoring"
)

// Query parameters.
const (
	QueryIntegrationInstance = "integrationInstance"
	QueryLimit               = "limit"
	QueryFilter              = "q"
	QueryStatus              = "status"
)
