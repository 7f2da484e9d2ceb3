// Package relay implements the signaling protocol: join and leave manage room
// presence and announce membership changes; every other message type is fanned
// out to the room topic verbatim, payload uninspected.
package relay

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/TaeDongUm/devCampHub/internal/broker"
	"github.com/TaeDongUm/devCampHub/internal/domain"
	"github.com/TaeDongUm/devCampHub/internal/metrics"
	"github.com/TaeDongUm/devCampHub/internal/presence"
)

const topicPrefix = "signal:room:"

// TopicFor names the broker topic carrying one room's broadcasts.
func TopicFor(roomID domain.RoomID) string {
	return topicPrefix + string(roomID)
}

// DirectSender delivers a message to the requesting connection only, outside
// the room topic. Used for the user-list reply on join.
type DirectSender func(msg domain.SignalMessage)

type Relay struct {
	registry *presence.Registry
	broker   broker.Broker
	metrics  *metrics.Metrics
}

func NewRelay(registry *presence.Registry, b broker.Broker) *Relay {
	return &Relay{registry: registry, broker: b, metrics: metrics.Default()}
}

// HandleMessage processes one inbound envelope from an authenticated sender.
// Store failures propagate to the caller; broadcast failures are logged and
// swallowed, so the triggering request still completes.
func (r *Relay) HandleMessage(ctx context.Context, sender domain.Identity, msg domain.SignalMessage, reply DirectSender) error {
	msg.Sender = sender // never trust the envelope's own sender field

	switch msg.Type {
	case domain.MsgJoin:
		return r.handleJoin(ctx, sender, msg, reply)
	case domain.MsgLeave:
		return r.handleLeave(ctx, sender, msg.RoomID)
	default:
		return r.forward(ctx, msg)
	}
}

func (r *Relay) handleJoin(ctx context.Context, sender domain.Identity, msg domain.SignalMessage, reply DirectSender) error {
	// A client that joins without leaving its previous room would otherwise
	// leave a stale membership entry behind until disconnect; announce the
	// departure there first.
	if prev, ok, err := r.registry.RoomOf(ctx, sender); err != nil {
		return err
	} else if ok && prev != msg.RoomID {
		if err := r.registry.LeaveRoom(ctx, sender); err != nil {
			return err
		}
		r.broadcast(ctx, prev, domain.SignalMessage{
			Type:   domain.MsgUserLeft,
			Sender: sender,
			RoomID: prev,
		})
	}

	// Snapshot before adding the sender: the joiner gets the room as it was,
	// not including itself.
	existing, err := r.registry.MembersOf(ctx, msg.RoomID)
	if err != nil {
		return err
	}
	if err := r.registry.JoinRoom(ctx, msg.RoomID, sender); err != nil {
		return err
	}

	users, err := json.Marshal(existing)
	if err != nil {
		return err
	}
	if reply != nil {
		reply(domain.SignalMessage{
			Type:   domain.MsgUserList,
			RoomID: msg.RoomID,
			Data:   users,
		})
	}

	r.broadcast(ctx, msg.RoomID, domain.SignalMessage{
		Type:     domain.MsgUserJoined,
		Sender:   sender,
		RoomID:   msg.RoomID,
		Nickname: msg.Nickname,
	})
	return nil
}

func (r *Relay) handleLeave(ctx context.Context, sender domain.Identity, roomID domain.RoomID) error {
	if err := r.registry.LeaveRoom(ctx, sender); err != nil {
		return err
	}
	r.broadcast(ctx, roomID, domain.SignalMessage{
		Type:   domain.MsgUserLeft,
		Sender: sender,
		RoomID: roomID,
	})
	return nil
}

// forward relays offer/answer/ice-candidate and any unknown-but-well-formed
// type. A receiver field is advisory; delivery is still the shared topic and
// clients filter.
func (r *Relay) forward(ctx context.Context, msg domain.SignalMessage) error {
	r.broadcast(ctx, msg.RoomID, msg)
	return nil
}

// AnnounceLeave publishes a user-left on behalf of a departed identity. Used
// by the disconnect reconciler, which has no live connection to speak through.
func (r *Relay) AnnounceLeave(ctx context.Context, identity domain.Identity, roomID domain.RoomID) {
	r.broadcast(ctx, roomID, domain.SignalMessage{
		Type:   domain.MsgUserLeft,
		Sender: identity,
		RoomID: roomID,
	})
}

func (r *Relay) broadcast(ctx context.Context, roomID domain.RoomID, msg domain.SignalMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Str("room", string(roomID)).Msg("marshal broadcast")
		return
	}
	if err := r.broker.Publish(ctx, TopicFor(roomID), payload); err != nil {
		// Fire-and-forget: the sender's request still completes.
		log.Error().Err(err).Str("module", "relay").Str("room", string(roomID)).Str("type", string(msg.Type)).Msg("broadcast failed")
		return
	}
	r.metrics.MessagesRelayed.Inc()
}
