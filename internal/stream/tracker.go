// Package stream tracks broadcast liveness. A broadcast stays alive only as
// long as its heartbeat keeps refreshing a TTL key in the shared store; the
// persisted stream record is ACTIVE while and only while that key exists,
// modulo one heartbeat interval of lag.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/TaeDongUm/devCampHub/internal/domain"
	"github.com/TaeDongUm/devCampHub/internal/metrics"
	"github.com/TaeDongUm/devCampHub/internal/store"
)

const sessionPrefix = "stream:session:"

// HeartbeatTTL = 30s heartbeat cadence + 15s grace. The grace must absorb one
// missed heartbeat of jitter while still detecting a crashed publisher within
// roughly one extra interval.
const HeartbeatTTL = 45 * time.Second

// Classifier decides the stream type from the owner's role. Policy rule, not
// hard-coded into the tracker.
type Classifier func(role domain.Role) domain.StreamType

// DefaultClassifier: admins broadcast lectures, everyone else a mogakco room.
func DefaultClassifier(role domain.Role) domain.StreamType {
	if role == domain.RoleAdmin {
		return domain.StreamLive
	}
	return domain.StreamMogakco
}

type Tracker struct {
	store    store.Store
	streams  StreamRepository
	users    UserRepository
	classify Classifier
	ttl      time.Duration
	metrics  *metrics.Metrics
}

func NewTracker(s store.Store, streams StreamRepository, users UserRepository, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		store:    s,
		streams:  streams,
		users:    users,
		classify: DefaultClassifier,
		ttl:      HeartbeatTTL,
		metrics:  metrics.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type TrackerOption func(*Tracker)

func WithTTL(ttl time.Duration) TrackerOption {
	return func(t *Tracker) { t.ttl = ttl }
}

func WithClassifier(c Classifier) TrackerOption {
	return func(t *Tracker) { t.classify = c }
}

func sessionKey(streamSessionID string) string {
	return sessionPrefix + streamSessionID
}

// HandleEvent dispatches one lifecycle event for an authenticated owner.
func (t *Tracker) HandleEvent(ctx context.Context, ev domain.StreamEvent, owner domain.Identity) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	key := sessionKey(ev.StreamSessionID)

	switch ev.EventType {
	case domain.EventStart:
		return t.start(ctx, key, ev, owner)
	case domain.EventHeartbeat:
		return t.heartbeat(ctx, key)
	case domain.EventStop:
		return t.stop(ctx, key)
	}
	return domain.ErrEventTypeInvalid
}

func (t *Tracker) start(ctx context.Context, key string, ev domain.StreamEvent, owner domain.Identity) error {
	user, found, err := t.users.FindByEmail(ctx, owner)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("unknown stream owner %s: %w", owner, ErrNotFound)
	}

	rec := domain.Stream{
		ID:         uuid.NewString(),
		CampID:     ev.CampID,
		OwnerEmail: owner,
		Title:      ev.StreamTitle,
		Type:       t.classify(user.Role),
		Status:     domain.StreamActive,
		StartedAt:  time.Now(),
	}
	if err := t.streams.Create(ctx, rec); err != nil {
		return err
	}

	if err := t.store.HSet(ctx, key, "streamId", rec.ID); err != nil {
		return err
	}
	if err := t.store.HSet(ctx, key, "userId", string(owner)); err != nil {
		return err
	}
	if _, err := t.store.Expire(ctx, key, t.ttl); err != nil {
		return err
	}

	t.metrics.StreamsStarted.Inc()
	log.Info().Str("module", "stream").Str("session", key).Str("stream_id", rec.ID).
		Str("owner", string(owner)).Str("type", string(rec.Type)).Msg("stream started")
	return nil
}

// heartbeat refreshes the TTL only. An expired or never-started session is not
// resurrected from a bare heartbeat; the expiry already answered the liveness
// question.
func (t *Tracker) heartbeat(ctx context.Context, key string) error {
	ok, err := t.store.Expire(ctx, key, t.ttl)
	if err != nil {
		return err
	}
	if !ok {
		log.Warn().Str("module", "stream").Str("session", key).Msg("heartbeat for non-existent session")
		return nil
	}
	log.Debug().Str("module", "stream").Str("session", key).Msg("heartbeat")
	return nil
}

func (t *Tracker) stop(ctx context.Context, key string) error {
	streamID, found, err := t.store.HGet(ctx, key, "streamId")
	if err != nil {
		return err
	}
	if !found {
		log.Warn().Str("module", "stream").Str("session", key).Msg("stop for non-existent session")
		return nil
	}
	if err := t.streams.End(ctx, streamID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := t.store.Del(ctx, key); err != nil {
		return err
	}
	t.metrics.StreamsEnded.Inc()
	log.Info().Str("module", "stream").Str("session", key).Str("stream_id", streamID).Msg("stream stopped")
	return nil
}

// Lookup returns the broadcast session tracked under a stream session id, if
// it is still alive.
func (t *Tracker) Lookup(ctx context.Context, streamSessionID string) (domain.BroadcastSession, bool, error) {
	fields, err := t.store.HGetAll(ctx, sessionKey(streamSessionID))
	if err != nil {
		return domain.BroadcastSession{}, false, err
	}
	streamID, ok := fields["streamId"]
	if !ok {
		return domain.BroadcastSession{}, false, nil
	}
	return domain.BroadcastSession{
		StreamID: streamID,
		OwnerID:  domain.Identity(fields["userId"]),
	}, true, nil
}

// LiveStreamIDs lists the persisted stream ids referenced by live tracker
// keys. Used by the expiry sweep.
func (t *Tracker) LiveStreamIDs(ctx context.Context) (map[string]struct{}, error) {
	keys, err := t.store.Scan(ctx, sessionPrefix+"*")
	if err != nil {
		return nil, err
	}
	live := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		streamID, found, err := t.store.HGet(ctx, key, "streamId")
		if err != nil {
			return nil, err
		}
		if found {
			live[streamID] = struct{}{}
		}
	}
	return live, nil
}

// TTL exposes the configured heartbeat TTL, used to size the sweep cutoff.
func (t *Tracker) TTL() time.Duration { return t.ttl }
