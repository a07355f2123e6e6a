package connect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/samber/lo"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/playdeck/internal/app/engine"
)

// QueueService implements the QueueService RPC.
type QueueService struct {
	engine *engine.Engine
}

// NewQueueService creates a new QueueService.
func NewQueueService(e *engine.Engine) *QueueService {
	return &QueueService{engine: e}
}

// Handler returns the mount path and handler for every QueueService
// procedure.
func (s *QueueService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(QueueGetQueueProcedure, connect.NewUnaryHandler(QueueGetQueueProcedure, s.GetQueue, opts...))
	mux.Handle(QueueSetQueueProcedure, connect.NewUnaryHandler(QueueSetQueueProcedure, s.SetQueue, opts...))
	mux.Handle(QueueSetActiveProcedure, connect.NewUnaryHandler(QueueSetActiveProcedure, s.SetActive, opts...))
	mux.Handle(QueuePlayFromProcedure, connect.NewUnaryHandler(QueuePlayFromProcedure, s.PlayFrom, opts...))
	return "/" + QueueServiceName + "/", mux
}

// GetQueue returns the queue snapshot.
func (s *QueueService) GetQueue(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.snapshot()
}

// SetQueue replaces the queue with {"ids": [...]}.
func (s *QueueService) SetQueue(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	ids, err := stringListField(req.Msg, "ids")
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	s.engine.Queue().SetQueue(ids)
	return s.snapshot()
}

// SetActive activates {"id": id}, which must already be queued.
func (s *QueueService) SetActive(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	id := stringField(req.Msg, "id")
	if id == "" {
		return nil, invalidArgument("id is required")
	}
	if !lo.Contains(s.engine.Queue().Snapshot().IDs, id) {
		return nil, connect.NewError(connect.CodeNotFound, engine.ErrNotQueued)
	}
	s.engine.Queue().SetActive(id)
	return s.snapshot()
}

// PlayFrom sets {"ids": [...]} as the queue and activates {"id": id}.
func (s *QueueService) PlayFrom(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	ids, err := stringListField(req.Msg, "ids")
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	id := stringField(req.Msg, "id")
	if id == "" {
		return nil, invalidArgument("id is required")
	}
	if err := s.engine.PlayFrom(ids, id); err != nil {
		return nil, toConnectError(err)
	}
	return s.snapshot()
}

func (s *QueueService) snapshot() (*connect.Response[structpb.Struct], error) {
	msg, err := newStruct(engine.QueuePayload(s.engine.Queue().Snapshot()))
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(msg), nil
}
