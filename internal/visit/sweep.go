package visit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SweepMissed periodically marks upcoming visits whose slot has ended as
// missed. It blocks until the context is cancelled.
func SweepMissed(ctx context.Context, repo *Repository, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.MarkMissed(ctx, time.Now())
			if err != nil {
				logger.Warn().Err(err).Msg("missed visit sweep failed")
				continue
			}
			if n > 0 {
				logger.Info().Int64("visits", n).Msg("marked visits missed")
			}
		}
	}
}
