package reconcile

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TaeDongUm/devCampHub/internal/metrics"
	"github.com/TaeDongUm/devCampHub/internal/stream"
)

// Sweeper periodically ends persisted streams left ACTIVE after their liveness
// session expired without a disconnect event, e.g. a partition that drops the
// heartbeat path but not the transport connection.
type Sweeper struct {
	tracker  *stream.Tracker
	streams  stream.StreamRepository
	interval time.Duration
	metrics  *metrics.Metrics
}

func NewSweeper(tracker *stream.Tracker, streams stream.StreamRepository, interval time.Duration) *Sweeper {
	return &Sweeper{
		tracker:  tracker,
		streams:  streams,
		interval: interval,
		metrics:  metrics.Default(),
	}
}

// Run blocks until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Str("module", "reconcile").Dur("interval", s.interval).Msg("stream sweep started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "reconcile").Msg("stream sweep stopping")
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one reconciliation pass. Only streams older than one TTL are
// considered, so a freshly started stream whose key scan raced the start is
// never ended early.
func (s *Sweeper) Sweep(ctx context.Context) {
	live, err := s.tracker.LiveStreamIDs(ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "reconcile").Msg("sweep: live session scan")
		return
	}

	cutoff := time.Now().Add(-s.tracker.TTL())
	stale, err := s.streams.FindActiveStartedBefore(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Str("module", "reconcile").Msg("sweep: stale stream query")
		return
	}

	for _, rec := range stale {
		if _, ok := live[rec.ID]; ok {
			continue
		}
		if err := s.streams.End(ctx, rec.ID); err != nil {
			log.Error().Err(err).Str("module", "reconcile").Str("stream_id", rec.ID).Msg("sweep: end stream")
			continue
		}
		s.metrics.StreamsSwept.Inc()
		log.Warn().Str("module", "reconcile").Str("stream_id", rec.ID).Str("owner", string(rec.OwnerEmail)).
			Msg("sweep: ended orphaned stream")
	}
}
