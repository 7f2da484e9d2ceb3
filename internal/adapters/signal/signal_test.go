package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/tj/assert"

	"github.com/TaeDongUm/devCampHub/internal/auth"
	"github.com/TaeDongUm/devCampHub/internal/broker"
	"github.com/TaeDongUm/devCampHub/internal/domain"
	"github.com/TaeDongUm/devCampHub/internal/presence"
	"github.com/TaeDongUm/devCampHub/internal/reconcile"
	"github.com/TaeDongUm/devCampHub/internal/relay"
	"github.com/TaeDongUm/devCampHub/internal/store"
	"github.com/TaeDongUm/devCampHub/internal/stream"
)

func TestJoinRateLimiter(t *testing.T) {
	rl := NewJoinRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("alice@devcamp.io"))
	}
	assert.False(t, rl.Allow("alice@devcamp.io"))

	// Other identities have their own window.
	assert.True(t, rl.Allow("bob@devcamp.io"))
}

func TestBearerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newCtx := func(target string, header string) *gin.Context {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, target, nil)
		if header != "" {
			c.Request.Header.Set("Authorization", header)
		}
		return c
	}

	assert.Equal(t, "abc", bearerToken(newCtx("/api/ws/signal?token=abc", "")))
	assert.Equal(t, "xyz", bearerToken(newCtx("/api/ws/signal", "Bearer xyz")))
	// Query parameter wins when both are present.
	assert.Equal(t, "abc", bearerToken(newCtx("/api/ws/signal?token=abc", "Bearer xyz")))
	assert.Equal(t, "", bearerToken(newCtx("/api/ws/signal", "Basic dXNlcg==")))
	assert.Equal(t, "", bearerToken(newCtx("/api/ws/signal", "")))
}

type noopStreamRepo struct{}

func (noopStreamRepo) Create(context.Context, domain.Stream) error { return nil }
func (noopStreamRepo) End(context.Context, string) error           { return stream.ErrNotFound }
func (noopStreamRepo) FindActiveByOwner(context.Context, domain.Identity) (domain.Stream, bool, error) {
	return domain.Stream{}, false, nil
}
func (noopStreamRepo) FindActiveStartedBefore(context.Context, time.Time) ([]domain.Stream, error) {
	return nil, nil
}

type signalFixture struct {
	registry *presence.Registry
	broker   *broker.MemoryBroker
	verifier *auth.JWTVerifier
	srv      *httptest.Server
}

// newSignalFixture stands up the controller behind a real HTTP server. Every
// connection carries the same client token, the way one browser's tabs would.
func newSignalFixture(t *testing.T) *signalFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	kv := store.NewMemoryStore()
	registry := presence.NewRegistry(kv)
	b := broker.NewMemoryBroker()
	rel := relay.NewRelay(registry, b)
	verifier := auth.NewJWTVerifier("test-secret")
	rec := reconcile.NewReconciler(registry, rel, noopStreamRepo{})
	ctrl := NewController(registry, rel, rec, verifier, b, 32768, time.Minute)

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		c.Set("client_token", "one-browser")
		ctrl.HandleSignal(context.Background(), c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &signalFixture{registry: registry, broker: b, verifier: verifier, srv: srv}
}

func (f *signalFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) (domain.SignalMessage, bool) {
	t.Helper()
	assert.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return domain.SignalMessage{}, false
	}
	var m domain.SignalMessage
	assert.NoError(t, json.Unmarshal(data, &m))
	return m, true
}

func TestTabsGetIndependentSessions(t *testing.T) {
	f := newSignalFixture(t)
	ctx := context.Background()
	alice := domain.Identity("alice@devcamp.io")
	token, err := f.verifier.Issue(alice, time.Minute)
	assert.NoError(t, err)

	connA := f.dial(t, token)
	connB := f.dial(t, token)

	// Tab A joins a room, then the tab closes without a leave.
	assert.NoError(t, connA.WriteJSON(domain.SignalMessage{Type: domain.MsgJoin, RoomID: "r9"}))
	_, ok := readFrame(t, connA, time.Second)
	assert.True(t, ok, "tab A never got its member list")
	assert.NoError(t, connA.Close())

	// Disconnect reconciliation for A has finished once alice is out of r9.
	deadline := time.Now().Add(2 * time.Second)
	for {
		members, err := f.registry.MembersOf(ctx, "r9")
		assert.NoError(t, err)
		if len(members) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("tab A was never reconciled")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Tab B must still hold its own session binding: its join goes through
	// and the member list comes back.
	assert.NoError(t, connB.WriteJSON(domain.SignalMessage{Type: domain.MsgJoin, RoomID: "r1"}))
	m, ok := readFrame(t, connB, time.Second)
	assert.True(t, ok, "surviving tab lost its session when the other closed")
	assert.Equal(t, domain.MsgUserList, m.Type)

	members, err := f.registry.MembersOf(ctx, "r1")
	assert.NoError(t, err)
	assert.Equal(t, []domain.Identity{alice}, members)
}

func TestUnauthenticatedJoinIsDropped(t *testing.T) {
	f := newSignalFixture(t)
	ctx := context.Background()

	topic, err := f.broker.Subscribe(ctx, relay.TopicFor("r1"))
	assert.NoError(t, err)
	defer topic.Close()

	conn := f.dial(t, "")
	assert.NoError(t, conn.WriteJSON(domain.SignalMessage{Type: domain.MsgJoin, RoomID: "r1"}))

	// Dropped silently: no error frame back, nothing on the room topic, no
	// membership side effect.
	select {
	case <-topic.Messages():
		t.Fatal("unauthenticated join reached the room topic")
	case <-time.After(300 * time.Millisecond):
	}
	_, ok := readFrame(t, conn, 300*time.Millisecond)
	assert.False(t, ok, "unauthenticated join produced a reply frame")

	members, err := f.registry.MembersOf(ctx, "r1")
	assert.NoError(t, err)
	assert.Len(t, members, 0)
}
