package settings

import (
	"context"
	"errors"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"gemini-synapse/internal/config"
)

// Seed plants the initial settings into an empty store from the
// environment. Keys already present are left alone, so env values are
// only honored on first boot. ACCESS_KEY and ADMIN_KEY have no sane
// defaults: missing both in store and env is a startup error.
func (r *Registry) Seed(ctx context.Context, cfg *config.Config) error {
	r.BeginBulk()
	defer r.EndBulk(false)

	accessInDB, err := r.Get(ctx, KeyAccessKeys)
	if err != nil {
		return err
	}
	if accessInDB == "" {
		if len(cfg.AccessKeys) == 0 {
			return errors.New("cannot seed ACCESS_KEY: not set in environment")
		}
		log.Info("ACCESS_KEY not found in store, seeding from environment")
		if err := r.Set(ctx, KeyAccessKeys, strings.Join(cfg.AccessKeys, ",")); err != nil {
			return err
		}
	}

	adminInDB, err := r.Get(ctx, KeyAdminKey)
	if err != nil {
		return err
	}
	if adminInDB == "" {
		if cfg.AdminKey == "" {
			return errors.New("cannot seed ADMIN_KEY: not set in environment")
		}
		log.Info("ADMIN_KEY not found in store, seeding from environment")
		if err := r.Set(ctx, KeyAdminKey, cfg.AdminKey); err != nil {
			return err
		}
	}

	defaults := map[string]string{
		KeyUpstreamBaseURL:         DefaultUpstreamBaseURL,
		KeyMaxFailureCount:         strconv.Itoa(5),
		KeyMaxRetryCount:           strconv.Itoa(3),
		KeyValidationModel:         cfg.ValidationModel,
		KeyValidationIntervalHours: strconv.Itoa(cfg.ValidationIntervalHours),
		KeySchedulerTimezone:       cfg.SchedulerTimezone,
		KeyErrorLogRetentionDays:   strconv.Itoa(cfg.ErrorLogRetentionDays),
		KeyRequestLogRetentionDays: strconv.Itoa(cfg.RequestLogRetentionDays),
	}
	for key, value := range defaults {
		existing, err := r.Get(ctx, key)
		if err != nil {
			return err
		}
		if existing != "" {
			continue
		}
		if err := r.Set(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}
