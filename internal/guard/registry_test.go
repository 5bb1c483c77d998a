package guard_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campaigndesk/campaigndesk/internal/guard"
)

func TestRegistryEvictsIdleClients(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	reg := guard.NewRegistry(func(key string) *guard.Guard {
		return guard.New(key, guard.Options{
			Secrets: guard.Secrets{Admin: adminSecret, Viewer: viewerSecret},
		}, guard.Deps{State: f.state, Sessions: f.sessions, Scheduler: f.sched})
	}, f.sched, 10*time.Minute, 0, nil)
	reg.Start(time.Minute)
	defer reg.Close()

	g, err := reg.Get(ctx, "alpha")
	require.NoError(t, err)
	same, err := reg.Get(ctx, "alpha")
	require.NoError(t, err)
	assert.Same(t, g, same)

	_, err = g.AttemptLogin(ctx, adminSecret, device)
	require.NoError(t, err)

	_, err = reg.Get(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	f.sched.Advance(5 * time.Minute)
	_, err = reg.Get(ctx, "beta")
	require.NoError(t, err)

	f.sched.Advance(6 * time.Minute)
	assert.Equal(t, 1, reg.Len())

	// Evicted guards stop refreshing their session.
	_, before := f.sessions.counts()
	f.sched.Advance(2 * time.Minute)
	_, after := f.sessions.counts()
	assert.Equal(t, before, after)

	back, err := reg.Get(ctx, "alpha")
	require.NoError(t, err)
	assert.NotSame(t, g, back)
	assert.True(t, back.Status().Authenticated)
}

func TestRegistryPeekKeepsOnlyClientsWithState(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	reg := guard.NewRegistry(func(key string) *guard.Guard {
		return guard.New(key, guard.Options{
			Secrets: guard.Secrets{Admin: adminSecret, Viewer: viewerSecret},
		}, guard.Deps{State: f.state, Sessions: f.sessions, Scheduler: f.sched})
	}, f.sched, 10*time.Minute, 0, nil)
	defer reg.Close()

	for i := 0; i < 50; i++ {
		g, err := reg.Peek(ctx, fmt.Sprintf("anonymous-%d", i))
		require.NoError(t, err)
		assert.False(t, g.Status().Authenticated)
	}
	assert.Zero(t, reg.Len())

	// A locked out client has state worth keeping.
	locked, err := reg.Get(ctx, "locked")
	require.NoError(t, err)
	_, err = locked.AttemptLogin(ctx, "guess", device)
	require.ErrorIs(t, err, guard.ErrDenied)
	reg.Close()
	assert.Zero(t, reg.Len())

	peeked, err := reg.Peek(ctx, "locked")
	require.NoError(t, err)
	assert.True(t, peeked.Status().Locked)
	assert.Equal(t, 1, reg.Len())
	again, err := reg.Peek(ctx, "locked")
	require.NoError(t, err)
	assert.Same(t, peeked, again)
}

func TestRegistrySuspendsLeastRecentPastLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	reg := guard.NewRegistry(func(key string) *guard.Guard {
		return guard.New(key, guard.Options{
			Secrets: guard.Secrets{Admin: adminSecret, Viewer: viewerSecret},
		}, guard.Deps{State: f.state, Sessions: f.sessions, Scheduler: f.sched})
	}, f.sched, time.Hour, 2, nil)
	defer reg.Close()

	oldest, err := reg.Get(ctx, "oldest")
	require.NoError(t, err)
	_, err = oldest.AttemptLogin(ctx, adminSecret, device)
	require.NoError(t, err)

	f.sched.Advance(time.Second)
	_, err = reg.Get(ctx, "middle")
	require.NoError(t, err)
	f.sched.Advance(time.Second)
	_, err = reg.Get(ctx, "newest")
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	// The evicted client comes back from the state store.
	back, err := reg.Get(ctx, "oldest")
	require.NoError(t, err)
	assert.NotSame(t, oldest, back)
	assert.True(t, back.Status().Authenticated)
	assert.Equal(t, 2, reg.Len())
}
