package connect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/playdeck/internal/app/engine"
	"github.com/osa030/playdeck/internal/domain/track"
)

// Library is the catalog view the LibraryService reads from.
type Library interface {
	ListAll(ctx context.Context) ([]track.Song, error)
	ListByUser(ctx context.Context, userID string) ([]track.Song, error)
	SearchByTitle(ctx context.Context, query string) ([]track.Song, error)
}

// LibraryService implements the LibraryService RPC.
type LibraryService struct {
	engine  *engine.Engine
	library Library
}

// NewLibraryService creates a new LibraryService.
func NewLibraryService(e *engine.Engine, library Library) *LibraryService {
	return &LibraryService{engine: e, library: library}
}

// Handler returns the mount path and handler for every LibraryService
// procedure.
func (s *LibraryService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(LibraryListSongsProcedure, connect.NewUnaryHandler(LibraryListSongsProcedure, s.ListSongs, opts...))
	mux.Handle(LibrarySearchSongsProcedure, connect.NewUnaryHandler(LibrarySearchSongsProcedure, s.SearchSongs, opts...))
	mux.Handle(LibraryPlayUserProcedure, connect.NewUnaryHandler(LibraryPlayUserProcedure, s.PlayUser, opts...))
	mux.Handle(LibraryPlaySearchProcedure, connect.NewUnaryHandler(LibraryPlaySearchProcedure, s.PlaySearch, opts...))
	return "/" + LibraryServiceName + "/", mux
}

// ListSongs lists {"user_id": id} songs newest first, or every song when
// user_id is empty.
func (s *LibraryService) ListSongs(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	if s.library == nil {
		return nil, toConnectError(engine.ErrNoCatalog)
	}

	var (
		songs []track.Song
		err   error
	)
	if userID := stringField(req.Msg, "user_id"); userID != "" {
		songs, err = s.library.ListByUser(ctx, userID)
	} else {
		songs, err = s.library.ListAll(ctx)
	}
	if err != nil {
		return nil, toConnectError(errors.Wrap(err, "failed to list songs"))
	}
	return s.songs(songs)
}

// SearchSongs lists songs whose title contains {"query": q}.
func (s *LibraryService) SearchSongs(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	if s.library == nil {
		return nil, toConnectError(engine.ErrNoCatalog)
	}
	songs, err := s.library.SearchByTitle(ctx, stringField(req.Msg, "query"))
	if err != nil {
		return nil, toConnectError(errors.Wrap(err, "failed to search songs"))
	}
	return s.songs(songs)
}

// PlayUser queues the songs of {"user_id": id} and plays from
// {"start_id": id} or the newest song.
func (s *LibraryService) PlayUser(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	userID := stringField(req.Msg, "user_id")
	if userID == "" {
		return nil, invalidArgument("user_id is required")
	}
	if err := s.engine.PlayUserLibrary(ctx, userID, stringField(req.Msg, "start_id")); err != nil {
		return nil, toConnectError(err)
	}
	return s.queue()
}

// PlaySearch queues the songs matching {"query": q} and plays from
// {"start_id": id} or the first match.
func (s *LibraryService) PlaySearch(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	if err := s.engine.PlaySearch(ctx, stringField(req.Msg, "query"), stringField(req.Msg, "start_id")); err != nil {
		return nil, toConnectError(err)
	}
	return s.queue()
}

func (s *LibraryService) songs(songs []track.Song) (*connect.Response[structpb.Struct], error) {
	msg, err := newStruct(songsPayload(songs))
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(msg), nil
}

func (s *LibraryService) queue() (*connect.Response[structpb.Struct], error) {
	msg, err := newStruct(engine.QueuePayload(s.engine.Queue().Snapshot()))
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(msg), nil
}
