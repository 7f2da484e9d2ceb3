// Package signal is the WebSocket transport adapter: it authenticates
// connections, pumps frames both ways, and hands parsed envelopes to the
// relay.
package signal

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/TaeDongUm/devCampHub/internal/auth"
	"github.com/TaeDongUm/devCampHub/internal/broker"
	"github.com/TaeDongUm/devCampHub/internal/domain"
	"github.com/TaeDongUm/devCampHub/internal/metrics"
	"github.com/TaeDongUm/devCampHub/internal/presence"
	"github.com/TaeDongUm/devCampHub/internal/reconcile"
	"github.com/TaeDongUm/devCampHub/internal/relay"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Registry   *presence.Registry
	Relay      *relay.Relay
	Reconciler *reconcile.Reconciler
	Verifier   auth.Verifier
	Broker     broker.Broker

	ReadLimit  int64
	PingPeriod time.Duration

	limiter *JoinRateLimiter
	metrics *metrics.Metrics
}

func NewController(
	registry *presence.Registry,
	rel *relay.Relay,
	rec *reconcile.Reconciler,
	verifier auth.Verifier,
	b broker.Broker,
	readLimit int64,
	pingPeriod time.Duration,
) *Controller {
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	return &Controller{
		Registry:   registry,
		Relay:      rel,
		Reconciler: rec,
		Verifier:   verifier,
		Broker:     b,
		ReadLimit:  readLimit,
		PingPeriod: pingPeriod,
		limiter:    NewJoinRateLimiter(5, 10*time.Second),
		metrics:    metrics.Default(),
	}
}

type wsSignalConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *wsSignalConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// bearerToken pulls the credential from the handshake: query parameter first,
// Authorization header as the alternative.
func bearerToken(c *gin.Context) string {
	if t := c.Query("token"); t != "" {
		return t
	}
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// HandleSignal upgrades the connection and runs it until disconnect. A
// missing or invalid token does not reject the transport; downstream handlers
// drop privileged messages from unauthenticated sessions.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	token := bearerToken(c)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	// The session id belongs to this connection, not the client: two tabs from
	// the same browser must each get their own registry binding. The ct cookie
	// only correlates logs.
	sid := domain.SessionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("client", c.GetString("client_token")).Msg("new WS connection")

	if token != "" {
		identity, err := ctl.Verifier.Verify(token)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("token rejected, proceeding unauthenticated")
		} else if err := ctl.Registry.RegisterSession(ctx, sid, identity); err != nil {
			log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("register session")
		}
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := &wsSignalConn{
		conn: ws,
		send: make(chan []byte, 32),
	}

	ctx, cancel := context.WithCancel(ctx)
	sess := &session{sid: sid, conn: conn, cancel: cancel}

	ctl.metrics.ActiveConnections.Inc()
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sess)
}

// session is the per-connection state the adapter owns: the transport handle
// and the current room-topic subscription. Everything else lives in the store.
type session struct {
	sid    domain.SessionID
	conn   *wsSignalConn
	cancel context.CancelFunc

	mu   sync.Mutex
	sub  broker.Subscription
	room domain.RoomID
}

// subscribe switches the connection onto a room topic, dropping any previous
// subscription first.
func (s *session) subscribe(ctx context.Context, b broker.Broker, roomID domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil && s.room == roomID {
		return nil
	}
	if s.sub != nil {
		_ = s.sub.Close()
		s.sub = nil
	}
	sub, err := b.Subscribe(ctx, relay.TopicFor(roomID))
	if err != nil {
		return err
	}
	s.sub = sub
	s.room = roomID

	go func() {
		for payload := range sub.Messages() {
			if err := s.conn.TrySend(payload); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(s.sid)).Msg("dropping room broadcast")
			}
		}
	}()
	return nil
}

func (s *session) unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		_ = s.sub.Close()
		s.sub = nil
		s.room = ""
	}
}
