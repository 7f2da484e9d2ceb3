package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/TaeDongUm/devCampHub/internal/domain"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, c *wsSignalConn) {
	ticker := time.NewTicker(ctl.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, s *session) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(s.sid)).Msg("readPump closing")
		s.unsubscribe()
		s.conn.Close()
		s.cancel()
		ctl.metrics.ActiveConnections.Dec()
		// Disconnect reconciliation must run even when the surrounding server
		// context is shutting down.
		ctl.Reconciler.OnDisconnect(context.WithoutCancel(ctx), s.sid)
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(s.sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := s.conn.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("sid", string(s.sid)).Msg("readPump read error")
				return
			}
			ctl.handleFrame(ctx, s, data)
		}
	}
}

func (ctl *Controller) handleFrame(ctx context.Context, s *session, data []byte) {
	msg, err := domain.ParseSignalMessage(data)
	if err != nil {
		ctl.metrics.MessagesDropped.Inc()
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(s.sid)).Msg("malformed message dropped")
		return
	}

	// Re-validate the session on every message, not only at connect time: once
	// the session is unregistered no further messages are accepted.
	identity, ok, err := ctl.Registry.IdentityOf(ctx, s.sid)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(s.sid)).Msg("identity lookup")
		return
	}
	if !ok {
		ctl.metrics.MessagesDropped.Inc()
		log.Warn().Str("module", "signal").Str("sid", string(s.sid)).Str("type", string(msg.Type)).Msg("unauthenticated message dropped")
		return
	}

	if msg.Type == domain.MsgJoin {
		if !ctl.limiter.Allow(identity) {
			ctl.metrics.MessagesDropped.Inc()
			log.Warn().Str("module", "signal").Str("identity", string(identity)).Msg("join rate limited")
			return
		}
		// Subscribe before the relay announces the join so this connection
		// observes everything published from that point on.
		if err := s.subscribe(ctx, ctl.Broker, msg.RoomID); err != nil {
			log.Error().Err(err).Str("module", "signal").Str("room", string(msg.RoomID)).Msg("room subscribe")
			return
		}
	}

	reply := func(out domain.SignalMessage) {
		b, err := json.Marshal(out)
		if err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("marshal reply")
			return
		}
		if err := s.conn.TrySend(b); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("sid", string(s.sid)).Msg("reply dropped")
		}
	}

	if err := ctl.Relay.HandleMessage(ctx, identity, msg, reply); err != nil {
		// Store unavailability aborts this one request only; the connection
		// and its neighbors keep running.
		log.Error().Err(err).Str("module", "signal").Str("sid", string(s.sid)).Str("type", string(msg.Type)).Msg("relay error")
		return
	}

	if msg.Type == domain.MsgLeave {
		s.unsubscribe()
	}
}
