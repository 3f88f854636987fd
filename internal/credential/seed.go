package credential

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// SeedFromEnv plants the initial upstream keys when the credential table
// is empty. A populated table wins over the environment.
func (p *Pool) SeedFromEnv(ctx context.Context, keys []string) error {
	var count int
	if err := p.store.DB().GetContext(ctx, &count, "SELECT COUNT(*) FROM credentials"); err != nil {
		return fmt.Errorf("count credentials: %w", err)
	}
	if count > 0 {
		log.Info("credential table already populated, skipping environment seed")
		return nil
	}
	if len(keys) == 0 {
		log.Warn("credential table empty and GOOGLE_API_KEYS not set")
		return nil
	}

	log.WithField("count", len(keys)).Info("seeding credentials from environment")
	for _, key := range keys {
		if err := p.Add(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
