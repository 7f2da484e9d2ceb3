package reconcile

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/tj/assert"

	"github.com/TaeDongUm/devCampHub/internal/broker"
	"github.com/TaeDongUm/devCampHub/internal/domain"
	"github.com/TaeDongUm/devCampHub/internal/presence"
	"github.com/TaeDongUm/devCampHub/internal/relay"
	"github.com/TaeDongUm/devCampHub/internal/store"
	"github.com/TaeDongUm/devCampHub/internal/stream"
)

type fakeStreamRepo struct {
	mu      sync.Mutex
	streams map[string]domain.Stream
}

func newFakeStreamRepo() *fakeStreamRepo {
	return &fakeStreamRepo{streams: make(map[string]domain.Stream)}
}

func (r *fakeStreamRepo) Create(_ context.Context, s domain.Stream) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[s.ID] = s
	return nil
}

func (r *fakeStreamRepo) End(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[id]
	if !ok || s.Status != domain.StreamActive {
		return stream.ErrNotFound
	}
	s.Status = domain.StreamEnded
	s.EndedAt = time.Now()
	r.streams[id] = s
	return nil
}

func (r *fakeStreamRepo) FindActiveByOwner(_ context.Context, owner domain.Identity) (domain.Stream, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.streams {
		if s.OwnerEmail == owner && s.Status == domain.StreamActive {
			return s, true, nil
		}
	}
	return domain.Stream{}, false, nil
}

func (r *fakeStreamRepo) FindActiveStartedBefore(_ context.Context, cutoff time.Time) ([]domain.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Stream
	for _, s := range r.streams {
		if s.Status == domain.StreamActive && s.StartedAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeStreamRepo) status(id string) domain.StreamStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streams[id].Status
}

type fakeUserRepo struct{}

func (fakeUserRepo) FindByEmail(_ context.Context, email domain.Identity) (domain.User, bool, error) {
	return domain.User{Email: email, Role: domain.RoleStudent}, true, nil
}

func TestDisconnectReconciliation(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	registry := presence.NewRegistry(kv)
	b := broker.NewMemoryBroker()
	rel := relay.NewRelay(registry, b)
	repo := newFakeStreamRepo()
	rec := NewReconciler(registry, rel, repo)

	alice := domain.Identity("alice@devcamp.io")
	assert.NoError(t, registry.RegisterSession(ctx, "sid-1", alice))
	assert.NoError(t, registry.JoinRoom(ctx, "r1", alice))
	assert.NoError(t, repo.Create(ctx, domain.Stream{
		ID: "s-1", OwnerEmail: alice, Status: domain.StreamActive, StartedAt: time.Now(),
	}))

	sub, err := b.Subscribe(ctx, relay.TopicFor("r1"))
	assert.NoError(t, err)
	defer sub.Close()

	// No explicit leave or STOP was ever sent.
	rec.OnDisconnect(ctx, "sid-1")

	_, found, err := registry.RoomOf(ctx, alice)
	assert.NoError(t, err)
	assert.False(t, found)

	members, err := registry.MembersOf(ctx, "r1")
	assert.NoError(t, err)
	assert.Len(t, members, 0)

	assert.Equal(t, domain.StreamEnded, repo.status("s-1"))

	select {
	case payload := <-sub.Messages():
		var m domain.SignalMessage
		assert.NoError(t, json.Unmarshal(payload, &m))
		assert.Equal(t, domain.MsgUserLeft, m.Type)
		assert.Equal(t, alice, m.Sender)
	case <-time.After(time.Second):
		t.Fatal("no user-left broadcast")
	}
}

func TestDisconnectUnknownSessionIsNoop(t *testing.T) {
	ctx := context.Background()
	registry := presence.NewRegistry(store.NewMemoryStore())
	rel := relay.NewRelay(registry, broker.NewMemoryBroker())
	rec := NewReconciler(registry, rel, newFakeStreamRepo())

	// Nothing registered: reconciliation stops at step one without error.
	rec.OnDisconnect(ctx, "ghost-sid")
}

func TestSweepEndsOrphanedStreams(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	repo := newFakeStreamRepo()
	tracker := stream.NewTracker(kv, repo, fakeUserRepo{})

	started := time.Now().Add(-2 * time.Minute)
	assert.NoError(t, repo.Create(ctx, domain.Stream{
		ID: "orphan", OwnerEmail: "a@devcamp.io", Status: domain.StreamActive, StartedAt: started,
	}))
	assert.NoError(t, repo.Create(ctx, domain.Stream{
		ID: "healthy", OwnerEmail: "b@devcamp.io", Status: domain.StreamActive, StartedAt: started,
	}))
	// Only the healthy stream still has a live tracker key.
	assert.NoError(t, kv.HSet(ctx, "stream:session:sess-b", "streamId", "healthy"))

	sweeper := NewSweeper(tracker, repo, time.Minute)
	sweeper.Sweep(ctx)

	assert.Equal(t, domain.StreamEnded, repo.status("orphan"))
	assert.Equal(t, domain.StreamActive, repo.status("healthy"))
}

func TestSweepSparesFreshStreams(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	repo := newFakeStreamRepo()
	tracker := stream.NewTracker(kv, repo, fakeUserRepo{})

	// Started seconds ago, no tracker key yet visible to the scan: still
	// inside the TTL window, so the sweep must not touch it.
	assert.NoError(t, repo.Create(ctx, domain.Stream{
		ID: "fresh", OwnerEmail: "c@devcamp.io", Status: domain.StreamActive, StartedAt: time.Now(),
	}))

	sweeper := NewSweeper(tracker, repo, time.Minute)
	sweeper.Sweep(ctx)

	assert.Equal(t, domain.StreamActive, repo.status("fresh"))
}
