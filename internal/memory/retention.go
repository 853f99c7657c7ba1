package memory

import (
	"context"

	"github.com/rs/zerolog/log"
)

// RunRetention purges items older than retentionDays. It is called on a
// schedule from serve; a non-positive retention disables it.
func RunRetention(ctx context.Context, store *Store, retentionDays int) {
	if store == nil || retentionDays <= 0 {
		return
	}
	purged, err := store.PurgeExpired(ctx, retentionDays)
	if err != nil {
		log.Error().Err(err).Int("retention_days", retentionDays).Msg("memory_retention_failed")
		return
	}
	if purged > 0 {
		log.Info().Int64("purged", purged).Int("retention_days", retentionDays).Msg("memory_retention_completed")
	}
}
