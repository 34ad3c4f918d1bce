package turn

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatmap/internal/modules/chat"
	"chatmap/internal/modules/geo"
	"chatmap/internal/modules/history"
	"chatmap/internal/modules/mapstate"
)

func newTestManager(t *testing.T, p *fakeProvider) (*Manager, *mapstate.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := mapstate.NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	m := NewManager(Deps{
		Generator: chat.NewGenerator(p, nil),
		Extractor: geo.NewExtractor(p, geo.Options{}, nil),
		Snapshots: store,
	}, time.Minute)
	t.Cleanup(m.Close)
	return m, store
}

func TestManager_GetReusesSession(t *testing.T) {
	m, _ := newTestManager(t, &fakeProvider{})
	ctx := context.Background()

	a, err := m.Get(ctx, "s1")
	require.NoError(t, err)
	b, err := m.Get(ctx, "s1")
	require.NoError(t, err)
	c, err := m.Get(ctx, "s2")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, m.Len())

	_, ok := m.Lookup("missing")
	assert.False(t, ok)
}

func TestManager_RestoresSnapshot(t *testing.T) {
	p := &fakeProvider{extract: respond(listJSON)}
	m, store := newTestManager(t, p)
	ctx := context.Background()

	saved := mapstate.State{
		TaskType: geo.TaskLocationList,
		Markers:  []geo.Location{{ID: "a", Title: "Louvre", Latitude: 48.86, Longitude: 2.34}},
	}
	require.NoError(t, store.Save(ctx, "s1", mapstate.Snapshot{Version: 7, State: saved}))

	o, err := m.Get(ctx, "s1")
	require.NoError(t, err)
	st, version := o.MapState()
	assert.Equal(t, uint64(7), version)
	assert.Equal(t, "Louvre", st.Markers[0].Title)

	// Turn ids continue after the restored version so the next write is accepted.
	tr, err := o.Submit("Universities?", testCfg)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), tr.ID())
	p.answer(0, "Two.")
	waitDone(t, tr)

	snap, ok, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(8), snap.Version)
	assert.Len(t, snap.State.Markers, 2)
}

func TestManager_ClearPersistsEmptyMap(t *testing.T) {
	m, store := newTestManager(t, &fakeProvider{})
	ctx := context.Background()
	saved := mapstate.State{
		TaskType: geo.TaskLocationList,
		Markers:  []geo.Location{{ID: "a", Title: "Louvre", Latitude: 48.86, Longitude: 2.34}},
	}
	require.NoError(t, store.Save(ctx, "s1", mapstate.Snapshot{Version: 2, State: saved}))

	o, err := m.Get(ctx, "s1")
	require.NoError(t, err)
	o.Clear()

	snap, ok, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(3), snap.Version)
	assert.Empty(t, snap.State.Markers)

	// A recreated session starts from the cleared map and keeps counting.
	require.Equal(t, 1, m.Evict(time.Now().Add(time.Hour)))
	o, err = m.Get(ctx, "s1")
	require.NoError(t, err)
	st, version := o.MapState()
	assert.Empty(t, st.Markers)
	assert.Equal(t, uint64(3), version)
}

func TestManager_EvictsIdleSessions(t *testing.T) {
	m, _ := newTestManager(t, &fakeProvider{})
	ctx := context.Background()

	_, err := m.Get(ctx, "idle")
	require.NoError(t, err)
	watched, err := m.Get(ctx, "watched")
	require.NoError(t, err)
	_, unsub := watched.Events().Subscribe()
	defer unsub()

	n := m.Evict(time.Now().Add(time.Hour))
	assert.Equal(t, 1, n)
	_, ok := m.Lookup("idle")
	assert.False(t, ok)
	_, ok = m.Lookup("watched")
	assert.True(t, ok)
}

func TestManager_ClosedRejectsGet(t *testing.T) {
	m, _ := newTestManager(t, &fakeProvider{})
	m.Close()
	_, err := m.Get(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrClosed)
}

// heldSnapshots delays the first Save until release is closed, then writes
// through to the Redis store like every later call.
type heldSnapshots struct {
	*mapstate.Store
	once    sync.Once
	held    chan struct{}
	release chan struct{}
}

func holdFirstSave(store *mapstate.Store) *heldSnapshots {
	return &heldSnapshots{Store: store, held: make(chan struct{}), release: make(chan struct{})}
}

func (h *heldSnapshots) Save(ctx context.Context, sessionID string, snap mapstate.Snapshot) error {
	first := false
	h.once.Do(func() { first = true })
	if first {
		close(h.held)
		<-h.release
	}
	return h.Store.Save(ctx, sessionID, snap)
}

func (h *heldSnapshots) waitHeld(t *testing.T) {
	t.Helper()
	select {
	case <-h.held:
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot save was never attempted")
	}
}

func respondInOrder(replies ...string) func(context.Context) (string, error) {
	var (
		mu sync.Mutex
		n  int
	)
	return func(context.Context) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		r := replies[min(n, len(replies)-1)]
		n++
		return r, nil
	}
}

func newRedisStore(t *testing.T) *mapstate.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mapstate.NewStore(client)
}

func TestSnapshot_LateSaveDoesNotOverwriteNewerTurn(t *testing.T) {
	store := newRedisStore(t)
	snaps := holdFirstSave(store)
	p := &fakeProvider{extract: respondInOrder(listJSON, routeJSON)}
	o := newTestOrchestrator(p, Deps{Snapshots: snaps})
	defer o.Close()
	ctx := context.Background()

	first, err := o.Submit("Universities?", testCfg)
	require.NoError(t, err)
	p.answer(0, "Two.")
	snaps.waitHeld(t)

	second, err := o.Submit("Route to Shanghai?", testCfg)
	require.NoError(t, err)
	p.answer(1, "Three stops.")
	waitDone(t, second)

	close(snaps.release)
	waitDone(t, first)

	snap, ok, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second.ID(), snap.Version)
	assert.Equal(t, geo.TaskRoute, snap.State.TaskType)
	assert.Len(t, snap.State.Markers, 3)

	m := NewManager(Deps{
		Generator: chat.NewGenerator(p, nil),
		Extractor: geo.NewExtractor(p, geo.Options{}, nil),
		Snapshots: store,
	}, time.Minute)
	defer m.Close()
	restored, err := m.Get(ctx, "s1")
	require.NoError(t, err)
	st, version := restored.MapState()
	assert.Equal(t, second.ID(), version)
	assert.Equal(t, geo.TaskRoute, st.TaskType)
}

func TestSnapshot_ClearOutranksPendingSave(t *testing.T) {
	store := newRedisStore(t)
	snaps := holdFirstSave(store)
	p := &fakeProvider{extract: respond(listJSON)}
	o := newTestOrchestrator(p, Deps{Snapshots: snaps})
	defer o.Close()
	ctx := context.Background()

	tr, err := o.Submit("Universities?", testCfg)
	require.NoError(t, err)
	p.answer(0, "Two.")
	snaps.waitHeld(t)

	o.Clear()
	close(snaps.release)
	waitDone(t, tr)

	live, _ := o.MapState()
	assert.Empty(t, live.Markers)
	snap, ok, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, snap.Version, tr.ID())
	assert.Empty(t, snap.State.Markers)
}

func TestManager_TurnIDsContinueAfterRecordedHistory(t *testing.T) {
	rec, err := history.Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })

	p := &fakeProvider{extract: respond(listJSON)}
	m := NewManager(Deps{
		Generator: chat.NewGenerator(p, nil),
		Extractor: geo.NewExtractor(p, geo.Options{}, nil),
		Recorder:  rec,
	}, time.Minute)
	defer m.Close()
	ctx := context.Background()

	o, err := m.Get(ctx, "uid-1")
	require.NoError(t, err)
	first, err := o.Submit("first question", testCfg)
	require.NoError(t, err)
	p.answer(0, "First answer.")
	waitDone(t, first)

	require.Equal(t, 1, m.Evict(time.Now().Add(time.Hour)))

	o, err = m.Get(ctx, "uid-1")
	require.NoError(t, err)
	second, err := o.Submit("second question", testCfg)
	require.NoError(t, err)
	assert.Greater(t, second.ID(), first.ID())
	p.answer(1, "Second answer.")
	waitDone(t, second)

	recs, err := rec.List(ctx, "uid-1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "second question", recs[0].Query)
	assert.Equal(t, "Second answer.", recs[0].Answer)
	assert.Equal(t, "first question", recs[1].Query)
	assert.Equal(t, "First answer.", recs[1].Answer)
}

// slowSnapshots blocks Load for one session until release is closed.
type slowSnapshots struct {
	slow    string
	entered chan struct{}
	release chan struct{}
}

func (s *slowSnapshots) Save(context.Context, string, mapstate.Snapshot) error { return nil }

func (s *slowSnapshots) Load(ctx context.Context, sessionID string) (mapstate.Snapshot, bool, error) {
	if sessionID == s.slow {
		close(s.entered)
		<-s.release
	}
	return mapstate.Snapshot{}, false, nil
}

func TestManager_SlowRestoreDoesNotBlockOtherSessions(t *testing.T) {
	snaps := &slowSnapshots{slow: "slow", entered: make(chan struct{}), release: make(chan struct{})}
	p := &fakeProvider{}
	m := NewManager(Deps{
		Generator: chat.NewGenerator(p, nil),
		Extractor: geo.NewExtractor(p, geo.Options{}, nil),
		Snapshots: snaps,
	}, time.Minute)
	defer m.Close()
	ctx := context.Background()

	slowDone := make(chan *Orchestrator, 1)
	go func() {
		o, _ := m.Get(ctx, "slow")
		slowDone <- o
	}()
	<-snaps.entered

	fastDone := make(chan struct{})
	go func() {
		_, _ = m.Get(ctx, "fast")
		_, _ = m.Lookup("fast")
		m.Evict(time.Now().Add(-time.Hour))
		close(fastDone)
	}()
	select {
	case <-fastDone:
	case <-time.After(2 * time.Second):
		t.Fatal("registry blocked while another session was restoring")
	}

	close(snaps.release)
	select {
	case o := <-slowDone:
		require.NotNil(t, o)
		got, ok := m.Lookup("slow")
		require.True(t, ok)
		assert.Same(t, o, got)
	case <-time.After(2 * time.Second):
		t.Fatal("slow restore never finished")
	}
	assert.Equal(t, 2, m.Len())
}
