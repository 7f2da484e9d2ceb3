// Package reconcile reacts to transport lifecycle events and repairs durable
// state: presence entries on disconnect, and persisted stream records whose
// liveness session silently expired.
package reconcile

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/TaeDongUm/devCampHub/internal/domain"
	"github.com/TaeDongUm/devCampHub/internal/metrics"
	"github.com/TaeDongUm/devCampHub/internal/presence"
	"github.com/TaeDongUm/devCampHub/internal/relay"
	"github.com/TaeDongUm/devCampHub/internal/stream"
)

type Reconciler struct {
	registry *presence.Registry
	relay    *relay.Relay
	streams  stream.StreamRepository
	metrics  *metrics.Metrics
}

func NewReconciler(registry *presence.Registry, rel *relay.Relay, streams stream.StreamRepository) *Reconciler {
	return &Reconciler{
		registry: registry,
		relay:    rel,
		streams:  streams,
		metrics:  metrics.Default(),
	}
}

// OnDisconnect runs the disconnect path for one transport session. Steps are
// ordered so presence cleanup is never blocked by the slower persisted-store
// reconciliation, and each step is best-effort and logged on its own.
func (r *Reconciler) OnDisconnect(ctx context.Context, sid domain.SessionID) {
	identity, found, err := r.registry.UnregisterSession(ctx, sid)
	if err != nil {
		log.Error().Err(err).Str("module", "reconcile").Str("sid", string(sid)).Msg("unregister session")
		return
	}
	if !found {
		log.Debug().Str("module", "reconcile").Str("sid", string(sid)).Msg("no identity for disconnected session")
		return
	}

	roomID, inRoom, err := r.registry.RoomOf(ctx, identity)
	if err != nil {
		log.Error().Err(err).Str("module", "reconcile").Str("identity", string(identity)).Msg("room lookup")
	} else if inRoom {
		if err := r.registry.LeaveRoom(ctx, identity); err != nil {
			log.Error().Err(err).Str("module", "reconcile").Str("identity", string(identity)).Msg("leave room")
		}
		r.relay.AnnounceLeave(ctx, identity, roomID)
	}

	// A publisher that crashed without a STOP leaves its stream record ACTIVE.
	rec, active, err := r.streams.FindActiveByOwner(ctx, identity)
	if err != nil {
		log.Error().Err(err).Str("module", "reconcile").Str("identity", string(identity)).Msg("active stream lookup")
	} else if active {
		if err := r.streams.End(ctx, rec.ID); err != nil {
			log.Error().Err(err).Str("module", "reconcile").Str("stream_id", rec.ID).Msg("end stream")
		} else {
			r.metrics.StreamsEnded.Inc()
			log.Warn().Str("module", "reconcile").Str("identity", string(identity)).Str("stream_id", rec.ID).
				Msg("identity disconnected without stopping, stream ended")
		}
	}

	r.metrics.DisconnectsReconciled.Inc()
	log.Info().Str("module", "reconcile").Str("sid", string(sid)).Str("identity", string(identity)).Msg("disconnect reconciled")
}
