package presence

import (
	"context"
	"testing"

	"github.com/tj/assert"

	"github.com/TaeDongUm/devCampHub/internal/domain"
	"github.com/TaeDongUm/devCampHub/internal/store"
)

func newTestRegistry() *Registry {
	return NewRegistry(store.NewMemoryStore())
}

func TestRegisterAndUnregisterSession(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	assert.NoError(t, r.RegisterSession(ctx, "sid-1", "alice@devcamp.io"))

	identity, found, err := r.IdentityOf(ctx, "sid-1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domain.Identity("alice@devcamp.io"), identity)

	// Upsert overwrites a prior binding.
	assert.NoError(t, r.RegisterSession(ctx, "sid-1", "bob@devcamp.io"))
	identity, _, err = r.IdentityOf(ctx, "sid-1")
	assert.NoError(t, err)
	assert.Equal(t, domain.Identity("bob@devcamp.io"), identity)

	identity, found, err = r.UnregisterSession(ctx, "sid-1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domain.Identity("bob@devcamp.io"), identity)

	// Second unregister reports absent.
	_, found, err = r.UnregisterSession(ctx, "sid-1")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestJoinLeaveLastWriteWins(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	alice := domain.Identity("alice@devcamp.io")

	assert.NoError(t, r.JoinRoom(ctx, "r1", alice))
	room, found, err := r.RoomOf(ctx, alice)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domain.RoomID("r1"), room)

	// Joining another room overwrites the mapping. The registry does not
	// auto-leave; the stale set entry in r1 is the caller's problem.
	assert.NoError(t, r.JoinRoom(ctx, "r2", alice))
	room, _, err = r.RoomOf(ctx, alice)
	assert.NoError(t, err)
	assert.Equal(t, domain.RoomID("r2"), room)

	assert.NoError(t, r.LeaveRoom(ctx, alice))
	_, found, err = r.RoomOf(ctx, alice)
	assert.NoError(t, err)
	assert.False(t, found)

	members, err := r.MembersOf(ctx, "r2")
	assert.NoError(t, err)
	assert.Len(t, members, 0)

	// Leave with no room is a no-op.
	assert.NoError(t, r.LeaveRoom(ctx, alice))
}

func TestMembersOfSnapshot(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	assert.NoError(t, r.JoinRoom(ctx, "r1", "a@devcamp.io"))
	assert.NoError(t, r.JoinRoom(ctx, "r1", "b@devcamp.io"))

	members, err := r.MembersOf(ctx, "r1")
	assert.NoError(t, err)
	assert.Len(t, members, 2)

	assert.NoError(t, r.LeaveRoom(ctx, "a@devcamp.io"))
	members, err = r.MembersOf(ctx, "r1")
	assert.NoError(t, err)
	assert.Equal(t, []domain.Identity{"b@devcamp.io"}, members)
}
