package settings

import (
	"context"
	"strings"

	"gemini-synapse/internal/constants"
)

// Domain accessors with the documented defaults.

func (r *Registry) UpstreamBaseURL(ctx context.Context) string {
	return r.GetString(ctx, KeyUpstreamBaseURL, DefaultUpstreamBaseURL)
}

func (r *Registry) MaxFailureCount(ctx context.Context) int {
	return r.GetInt(ctx, KeyMaxFailureCount, constants.DefaultMaxFailureCount)
}

func (r *Registry) MaxRetryCount(ctx context.Context) int {
	return r.GetInt(ctx, KeyMaxRetryCount, constants.DefaultMaxRetryCount)
}

func (r *Registry) ValidationModel(ctx context.Context) string {
	return r.GetString(ctx, KeyValidationModel, "gemini-2.5-flash-lite")
}

func (r *Registry) ValidationIntervalHours(ctx context.Context) int {
	n := r.GetInt(ctx, KeyValidationIntervalHours, 1)
	if n < 1 {
		return 1
	}
	return n
}

func (r *Registry) SchedulerTimezone(ctx context.Context) string {
	return r.GetString(ctx, KeySchedulerTimezone, "Asia/Shanghai")
}

func (r *Registry) ErrorLogRetentionDays(ctx context.Context) int {
	return r.GetInt(ctx, KeyErrorLogRetentionDays, 15)
}

func (r *Registry) RequestLogRetentionDays(ctx context.Context) int {
	return r.GetInt(ctx, KeyRequestLogRetentionDays, 30)
}

// AccessKeys returns the configured client access keys. Stored as one
// comma-joined string.
func (r *Registry) AccessKeys(ctx context.Context) ([]string, error) {
	raw, err := r.Get(ctx, KeyAccessKeys)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	return keys, nil
}

func (r *Registry) AdminKey(ctx context.Context) (string, error) {
	return r.Get(ctx, KeyAdminKey)
}
