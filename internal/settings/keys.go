package settings

// Persisted configuration keys. After first boot these live in the
// database; environment values only seed an empty store.
const (
	KeyAccessKeys              = "ACCESS_KEY"
	KeyAdminKey                = "ADMIN_KEY"
	KeyUpstreamBaseURL         = "GEMINI_API_BASE_URL"
	KeyMaxFailureCount         = "MAX_FAILURE_COUNT"
	KeyMaxRetryCount           = "MAX_RETRY_COUNT"
	KeyValidationModel         = "VALIDATION_MODEL"
	KeyValidationIntervalHours = "KEY_VALIDATION_INTERVAL_HOURS"
	KeySchedulerTimezone       = "SCHEDULER_TIMEZONE"
	KeyErrorLogRetentionDays   = "ERROR_LOG_RETENTION_DAYS"
	KeyRequestLogRetentionDays = "REQUEST_LOG_RETENTION_DAYS"
)

// DefaultUpstreamBaseURL is where relayed requests go when the store
// carries no override.
const DefaultUpstreamBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// schedulerKeys are the settings whose change requires rebuilding the
// job scheduler.
var schedulerKeys = map[string]bool{
	KeyValidationModel:         true,
	KeyValidationIntervalHours: true,
	KeySchedulerTimezone:       true,
	KeyErrorLogRetentionDays:   true,
	KeyRequestLogRetentionDays: true,
}
