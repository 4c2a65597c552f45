package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	retentionInterval  = time.Hour
	retentionBatchSize = 100
)

// RunRetentionSweeper deletes sessions older than the configured TTL until
// ctx is cancelled.
func (s *Service) RunRetentionSweeper(ctx context.Context) {
	if s.config.SessionTTL <= 0 {
		return
	}

	s.sweepExpiredSessions(ctx)

	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepExpiredSessions(ctx)
		}
	}
}

func (s *Service) sweepExpiredSessions(ctx context.Context) int {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-s.config.SessionTTL)
	total := 0
	for {
		n, err := s.store.DeleteSessionsBefore(sweepCtx, cutoff, retentionBatchSize)
		if err != nil {
			log.Warn().Err(err).Msg("session retention sweep failed")
			break
		}
		total += n
		if n < retentionBatchSize {
			break
		}
	}

	if total > 0 {
		log.Info().Int("deleted", total).Dur("ttl", s.config.SessionTTL).Msg("expired sessions removed")
	}
	return total
}
