package engine

import (
	"context"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/osa030/playdeck/internal/app/notification"
	"github.com/osa030/playdeck/internal/app/playback"
	"github.com/osa030/playdeck/internal/app/playback/playbacktest"
	"github.com/osa030/playdeck/internal/app/resolver"
	"github.com/osa030/playdeck/internal/domain/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

type recordingStream struct {
	mu   sync.Mutex
	recv []*notification.Notification
}

func (s *recordingStream) Send(n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recv = append(s.recv, n)
	return nil
}

func (s *recordingStream) find(kind notification.Kind, key string, value any) *notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.recv {
		if n.Kind == kind && n.Payload[key] == value {
			return n
		}
	}
	return nil
}

type stubCatalog struct {
	songs []track.Song
	err   error
}

func (c *stubCatalog) ListByUser(_ context.Context, userID string) ([]track.Song, error) {
	if c.err != nil {
		return nil, c.err
	}
	var out []track.Song
	for _, s := range c.songs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (c *stubCatalog) SearchByTitle(_ context.Context, query string) ([]track.Song, error) {
	if c.err != nil {
		return nil, c.err
	}
	var out []track.Song
	for _, s := range c.songs {
		if s.MatchesTitle(query) {
			out = append(out, s)
		}
	}
	return out, nil
}

func newTestEngine(t *testing.T, factory playback.Factory, catalog Catalog) *Engine {
	t.Helper()
	static, err := resolver.NewStaticResolver(map[string]any{
		"tracks": map[string]any{
			"a": "https://cdn.test/a.mp3",
			"b": "https://cdn.test/b.mp3",
			"c": "https://cdn.test/c.mp3",
		},
	})
	require.NoError(t, err)

	e, err := New(Deps{
		Playback: playback.DefaultConfig(),
		Resolver: static,
		Factory:  factory,
		Catalog:  catalog,
	})
	require.NoError(t, err)
	return e
}

func TestNew_RequiresResolverAndFactory(t *testing.T) {
	_, err := New(Deps{Factory: playbacktest.NewFactory(time.Minute)})
	assert.Error(t, err)

	static, err := resolver.NewStaticResolver(map[string]any{"tracks": map[string]any{"a": "https://cdn.test/a"}})
	require.NoError(t, err)
	_, err = New(Deps{Resolver: static})
	assert.Error(t, err)
}

func TestEngine_PlayFrom(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		factory := playbacktest.NewFactory(3 * time.Minute)
		e := newTestEngine(t, factory, nil)
		defer e.Close()
		require.NoError(t, e.Start(context.Background()))

		stream := &recordingStream{}
		e.Notifications().Subscribe(stream)

		require.NoError(t, e.PlayFrom([]track.ID{"a", "b", "c"}, "b"))
		synctest.Wait()

		st := e.Status()
		assert.Equal(t, []track.ID{"a", "b", "c"}, st.Queue.IDs)
		assert.Equal(t, "b", st.Queue.Active)
		assert.Equal(t, playback.StatusPlaying, st.Playback.Status)
		assert.Equal(t, "b", st.Playback.TrackID)
		assert.Equal(t, "https://cdn.test/b.mp3", st.Playback.SourceURL)
		assert.Equal(t, 1, st.Subscribers)

		require.NotNil(t, factory.Last())
		assert.True(t, factory.Last().Playing())

		assert.NotNil(t, stream.find(notification.KindQueue, "change", "queue_replaced"))
		assert.NotNil(t, stream.find(notification.KindQueue, "change", "active_changed"))
		assert.NotNil(t, stream.find(notification.KindStatus, "status", "loading"))
		assert.NotNil(t, stream.find(notification.KindStatus, "status", "playing"))

		stream.mu.Lock()
		for i, n := range stream.recv {
			assert.Equal(t, uint64(i+1), n.SequenceNo)
		}
		stream.mu.Unlock()
	})
}

func TestEngine_PlayFromErrors(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		e := newTestEngine(t, playbacktest.NewFactory(time.Minute), nil)
		defer e.Close()
		require.NoError(t, e.Start(context.Background()))

		err := e.PlayFrom(nil, "a")
		assert.ErrorIs(t, err, ErrEmptyQueue)

		err = e.PlayFrom([]track.ID{"a", "b"}, "z")
		assert.ErrorIs(t, err, ErrNotQueued)

		synctest.Wait()
		assert.Equal(t, 0, e.Queue().Len())
		assert.Equal(t, playback.StatusIdle, e.Status().Playback.Status)
	})
}

func TestEngine_ProgressNotifications(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		factory := playbacktest.NewFactory(3 * time.Minute)
		e := newTestEngine(t, factory, nil)
		defer e.Close()
		require.NoError(t, e.Start(context.Background()))

		stream := &recordingStream{}
		e.Notifications().Subscribe(stream)

		require.NoError(t, e.PlayFrom([]track.ID{"a"}, "a"))
		synctest.Wait()

		factory.Last().Advance(2 * time.Second)
		time.Sleep(time.Second)
		synctest.Wait()

		n := stream.find(notification.KindProgress, "current", 2.0)
		require.NotNil(t, n)
		assert.Equal(t, 180.0, n.Payload["duration"])
		assert.InDelta(t, 2.0/180.0, n.Payload["fraction"], 1e-9)
	})
}

func TestEngine_ErrorNotifications(t *testing.T) {
	tests := []struct {
		name   string
		id     track.ID
		ids    []track.ID
		reason string
	}{
		{name: "unresolvable track", id: "x", ids: []track.ID{"a", "x"}, reason: "resolution"},
		{name: "resource open failure", id: "c", ids: []track.ID{"c"}, reason: "resource"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synctest.Test(t, func(t *testing.T) {
				factory := playbacktest.NewFactory(time.Minute)
				factory.Errs["https://cdn.test/c.mp3"] = errors.New("decode failed")
				e := newTestEngine(t, factory, nil)
				defer e.Close()
				require.NoError(t, e.Start(context.Background()))

				stream := &recordingStream{}
				e.Notifications().Subscribe(stream)

				require.NoError(t, e.PlayFrom(tt.ids, tt.id))
				synctest.Wait()

				assert.Equal(t, playback.StatusErrored, e.Status().Playback.Status)
				n := stream.find(notification.KindError, "reason", tt.reason)
				require.NotNil(t, n)
				assert.Equal(t, tt.id, n.Payload["track_id"])
				assert.NotEmpty(t, n.Payload["message"])
			})
		})
	}
}

func TestEngine_PlayUserLibrary(t *testing.T) {
	now := time.Now()
	catalog := &stubCatalog{songs: []track.Song{
		{ID: "b", UserID: "u1", Title: "Beta", CreatedAt: now},
		{ID: "a", UserID: "u1", Title: "Alpha", CreatedAt: now.Add(-time.Hour)},
		{ID: "c", UserID: "u2", Title: "Alpha Two", CreatedAt: now.Add(-2 * time.Hour)},
	}}

	tests := []struct {
		name       string
		userID     string
		startID    track.ID
		wantIDs    []track.ID
		wantActive track.ID
		wantErr    error
	}{
		{name: "starts at newest", userID: "u1", wantIDs: []track.ID{"b", "a"}, wantActive: "b"},
		{name: "explicit start", userID: "u1", startID: "a", wantIDs: []track.ID{"b", "a"}, wantActive: "a"},
		{name: "start not in library", userID: "u1", startID: "c", wantErr: ErrNotQueued},
		{name: "empty library", userID: "nobody", wantErr: ErrEmptyQueue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synctest.Test(t, func(t *testing.T) {
				e := newTestEngine(t, playbacktest.NewFactory(time.Minute), catalog)
				defer e.Close()
				require.NoError(t, e.Start(context.Background()))

				err := e.PlayUserLibrary(context.Background(), tt.userID, tt.startID)
				synctest.Wait()
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
					return
				}
				require.NoError(t, err)
				snap := e.Queue().Snapshot()
				assert.Equal(t, tt.wantIDs, snap.IDs)
				assert.Equal(t, tt.wantActive, snap.Active)
				assert.Equal(t, tt.wantActive, e.Status().Playback.TrackID)
			})
		})
	}
}

func TestEngine_PlaySearch(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		catalog := &stubCatalog{songs: []track.Song{
			{ID: "b", UserID: "u1", Title: "Beta"},
			{ID: "a", UserID: "u1", Title: "Alpha"},
			{ID: "c", UserID: "u2", Title: "alpha two"},
		}}
		e := newTestEngine(t, playbacktest.NewFactory(time.Minute), catalog)
		defer e.Close()
		require.NoError(t, e.Start(context.Background()))

		require.NoError(t, e.PlaySearch(context.Background(), "ALPHA", ""))
		synctest.Wait()

		snap := e.Queue().Snapshot()
		assert.Equal(t, []track.ID{"a", "c"}, snap.IDs)
		assert.Equal(t, "a", snap.Active)
	})
}

func TestEngine_CatalogErrors(t *testing.T) {
	e := newTestEngine(t, playbacktest.NewFactory(time.Minute), nil)
	defer e.Close()

	assert.ErrorIs(t, e.PlayUserLibrary(context.Background(), "u1", ""), ErrNoCatalog)
	assert.ErrorIs(t, e.PlaySearch(context.Background(), "x", ""), ErrNoCatalog)

	boom := errors.New("database is locked")
	failing := newTestEngine(t, playbacktest.NewFactory(time.Minute), &stubCatalog{err: boom})
	defer failing.Close()
	assert.ErrorIs(t, failing.PlayUserLibrary(context.Background(), "u1", ""), boom)
	assert.ErrorIs(t, failing.PlaySearch(context.Background(), "x", ""), boom)
}

func TestEngine_Lifecycle(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		factory := playbacktest.NewFactory(time.Minute)
		e := newTestEngine(t, factory, nil)

		require.NoError(t, e.Start(context.Background()))
		assert.ErrorIs(t, e.Start(context.Background()), ErrAlreadyStarted)

		require.NoError(t, e.PlayFrom([]track.ID{"a"}, "a"))
		synctest.Wait()

		e.Close()
		e.Close()

		assert.True(t, factory.Last().Closed())
		assert.ErrorIs(t, e.PlayFrom([]track.ID{"a"}, "a"), ErrClosed)
		assert.ErrorIs(t, e.Start(context.Background()), ErrClosed)
	})
}

func TestEngine_CloseWithoutStart(t *testing.T) {
	e := newTestEngine(t, playbacktest.NewFactory(time.Minute), nil)
	e.Close()
	assert.ErrorIs(t, e.Start(context.Background()), ErrClosed)
}

func TestStatusPayload_IsStructCompatible(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		factory := playbacktest.NewFactory(time.Minute)
		factory.Errs["https://cdn.test/c.mp3"] = errors.New("decode failed")
		e := newTestEngine(t, factory, nil)
		defer e.Close()
		require.NoError(t, e.Start(context.Background()))

		require.NoError(t, e.PlayFrom([]track.ID{"a", "c"}, "c"))
		synctest.Wait()

		payload := StatusPayload(e.Status())
		s, err := structpb.NewStruct(payload)
		require.NoError(t, err)

		m := s.AsMap()
		assert.Equal(t, "errored", m["status"])
		assert.Equal(t, "c", m["track_id"])
		queue, ok := m["queue"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, []any{"a", "c"}, queue["ids"])
		errPayload, ok := m["error"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "resource", errPayload["reason"])
	})
}

type invalidatingResolver struct {
	playback.Resolver

	mu          sync.Mutex
	invalidated []track.ID
}

func (r *invalidatingResolver) Invalidate(id track.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated = append(r.invalidated, id)
}

func (r *invalidatingResolver) calls() []track.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]track.ID(nil), r.invalidated...)
}

func TestEngine_InvalidatesResolutionOnResourceFailure(t *testing.T) {
	tests := []struct {
		name string
		ids  []track.ID
		id   track.ID
		want []track.ID
	}{
		{name: "resource failure", ids: []track.ID{"c"}, id: "c", want: []track.ID{"c"}},
		{name: "resolution failure", ids: []track.ID{"a", "x"}, id: "x"},
		{name: "healthy track", ids: []track.ID{"a"}, id: "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synctest.Test(t, func(t *testing.T) {
				static, err := resolver.NewStaticResolver(map[string]any{
					"tracks": map[string]any{
						"a": "https://cdn.test/a.mp3",
						"c": "https://cdn.test/c.mp3",
					},
				})
				require.NoError(t, err)
				res := &invalidatingResolver{Resolver: static}

				factory := playbacktest.NewFactory(time.Minute)
				factory.Errs["https://cdn.test/c.mp3"] = errors.New("connection reset")

				e, err := New(Deps{
					Playback: playback.DefaultConfig(),
					Resolver: res,
					Factory:  factory,
				})
				require.NoError(t, err)
				defer e.Close()
				require.NoError(t, e.Start(context.Background()))

				require.NoError(t, e.PlayFrom(tt.ids, tt.id))
				synctest.Wait()

				assert.Equal(t, tt.want, res.calls())
			})
		})
	}
}
