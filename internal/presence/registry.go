// Package presence maps connection sessions to identities and identities to
// rooms. It holds no connection-affine state: everything lives in the shared
// store, so any relay process sees the same picture.
package presence

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/TaeDongUm/devCampHub/internal/domain"
	"github.com/TaeDongUm/devCampHub/internal/store"
)

const (
	roomPrefix         = "ws:room:"
	sessionIdentityMap = "ws:session-identity"
	identityRoomMap    = "ws:identity-room"
)

type Registry struct {
	store store.Store
}

func NewRegistry(s store.Store) *Registry {
	return &Registry{store: s}
}

func roomKey(roomID domain.RoomID) string {
	return roomPrefix + string(roomID)
}

// RegisterSession binds a transport session to an identity. Idempotent upsert;
// a prior binding for the same session is overwritten.
func (r *Registry) RegisterSession(ctx context.Context, sid domain.SessionID, identity domain.Identity) error {
	if err := r.store.HSet(ctx, sessionIdentityMap, string(sid), string(identity)); err != nil {
		return err
	}
	log.Info().Str("module", "presence").Str("sid", string(sid)).Str("identity", string(identity)).Msg("session registered")
	return nil
}

// UnregisterSession removes the binding and returns the identity that was
// bound, so the caller can run identity-keyed cleanup without a second lookup
// race. ok is false when nothing was bound.
func (r *Registry) UnregisterSession(ctx context.Context, sid domain.SessionID) (domain.Identity, bool, error) {
	identity, found, err := r.store.HGet(ctx, sessionIdentityMap, string(sid))
	if err != nil {
		return "", false, err
	}
	if !found {
		return "", false, nil
	}
	if err := r.store.HDel(ctx, sessionIdentityMap, string(sid)); err != nil {
		return "", false, err
	}
	log.Info().Str("module", "presence").Str("sid", string(sid)).Str("identity", identity).Msg("session unregistered")
	return domain.Identity(identity), true, nil
}

// JoinRoom adds the identity to the room's member set and records the
// identity→room mapping. A stale mapping to another room is overwritten; the
// join handler owns the auto-leave policy, not the registry.
func (r *Registry) JoinRoom(ctx context.Context, roomID domain.RoomID, identity domain.Identity) error {
	key := roomKey(roomID)
	if err := r.store.SAdd(ctx, key, string(identity)); err != nil {
		return err
	}
	if err := r.store.HSet(ctx, identityRoomMap, string(identity), string(roomID)); err != nil {
		return err
	}
	size, _ := r.store.SCard(ctx, key)
	log.Info().Str("module", "presence").Str("identity", string(identity)).Str("room", string(roomID)).Int64("members", size).Msg("joined room")
	return nil
}

// LeaveRoom removes the identity from whatever room it is mapped to. Two-step:
// set removal first, then the mapping, so a mapping may transiently outlive
// set membership but never the reverse.
func (r *Registry) LeaveRoom(ctx context.Context, identity domain.Identity) error {
	roomID, found, err := r.store.HGet(ctx, identityRoomMap, string(identity))
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	key := roomKey(domain.RoomID(roomID))
	removed, err := r.store.SRem(ctx, key, string(identity))
	if err != nil {
		return err
	}
	if removed {
		size, _ := r.store.SCard(ctx, key)
		log.Info().Str("module", "presence").Str("identity", string(identity)).Str("room", roomID).Int64("members", size).Msg("left room")
	}
	return r.store.HDel(ctx, identityRoomMap, string(identity))
}

// MembersOf is a snapshot read; membership may change concurrently.
func (r *Registry) MembersOf(ctx context.Context, roomID domain.RoomID) ([]domain.Identity, error) {
	members, err := r.store.SMembers(ctx, roomKey(roomID))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Identity, 0, len(members))
	for _, m := range members {
		out = append(out, domain.Identity(m))
	}
	return out, nil
}

func (r *Registry) RoomOf(ctx context.Context, identity domain.Identity) (domain.RoomID, bool, error) {
	roomID, found, err := r.store.HGet(ctx, identityRoomMap, string(identity))
	if err != nil {
		return "", false, err
	}
	return domain.RoomID(roomID), found, nil
}

func (r *Registry) IdentityOf(ctx context.Context, sid domain.SessionID) (domain.Identity, bool, error) {
	identity, found, err := r.store.HGet(ctx, sessionIdentityMap, string(sid))
	if err != nil {
		return "", false, err
	}
	return domain.Identity(identity), found, nil
}
