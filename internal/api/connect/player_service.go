package connect

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/playdeck/internal/app/engine"
	"github.com/osa030/playdeck/internal/app/notification"
)

// PlayerService implements the PlayerService RPC.
type PlayerService struct {
	engine *engine.Engine
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(e *engine.Engine) *PlayerService {
	return &PlayerService{engine: e}
}

// Handler returns the mount path and handler for every PlayerService
// procedure.
func (s *PlayerService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(PlayerGetStatusProcedure, connect.NewUnaryHandler(PlayerGetStatusProcedure, s.GetStatus, opts...))
	mux.Handle(PlayerPlayProcedure, connect.NewUnaryHandler(PlayerPlayProcedure, s.Play, opts...))
	mux.Handle(PlayerPauseProcedure, connect.NewUnaryHandler(PlayerPauseProcedure, s.Pause, opts...))
	mux.Handle(PlayerToggleProcedure, connect.NewUnaryHandler(PlayerToggleProcedure, s.Toggle, opts...))
	mux.Handle(PlayerStopProcedure, connect.NewUnaryHandler(PlayerStopProcedure, s.Stop, opts...))
	mux.Handle(PlayerSeekProcedure, connect.NewUnaryHandler(PlayerSeekProcedure, s.Seek, opts...))
	mux.Handle(PlayerSeekFractionProcedure, connect.NewUnaryHandler(PlayerSeekFractionProcedure, s.SeekFraction, opts...))
	mux.Handle(PlayerSkipForwardProcedure, connect.NewUnaryHandler(PlayerSkipForwardProcedure, s.SkipForward, opts...))
	mux.Handle(PlayerSkipBackwardProcedure, connect.NewUnaryHandler(PlayerSkipBackwardProcedure, s.SkipBackward, opts...))
	mux.Handle(PlayerNextProcedure, connect.NewUnaryHandler(PlayerNextProcedure, s.Next, opts...))
	mux.Handle(PlayerPreviousProcedure, connect.NewUnaryHandler(PlayerPreviousProcedure, s.Previous, opts...))
	mux.Handle(PlayerSetVolumeProcedure, connect.NewUnaryHandler(PlayerSetVolumeProcedure, s.SetVolume, opts...))
	mux.Handle(PlayerToggleMuteProcedure, connect.NewUnaryHandler(PlayerToggleMuteProcedure, s.ToggleMute, opts...))
	mux.Handle(PlayerSubscribeProcedure, connect.NewServerStreamHandler(PlayerSubscribeProcedure, s.Subscribe, opts...))
	return "/" + PlayerServiceName + "/", mux
}

// GetStatus returns the aggregate player status.
func (s *PlayerService) GetStatus(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.status()
}

// Play starts or resumes playback.
func (s *PlayerService) Play(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	s.engine.Player().Play()
	return s.status()
}

// Pause pauses playback.
func (s *PlayerService) Pause(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	s.engine.Player().Pause()
	return s.status()
}

// Toggle switches between playing and paused.
func (s *PlayerService) Toggle(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	s.engine.Player().Toggle()
	return s.status()
}

// Stop ends the current session.
func (s *PlayerService) Stop(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	s.engine.Player().Stop()
	return s.status()
}

// Seek moves to {"position": seconds}.
func (s *PlayerService) Seek(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	pos, ok := numberField(req.Msg, "position")
	if !ok {
		return nil, invalidArgument("position is required")
	}
	s.engine.Player().Seek(time.Duration(pos * float64(time.Second)))
	return s.status()
}

// SeekFraction moves to {"fraction": f} of the track.
func (s *PlayerService) SeekFraction(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	f, ok := numberField(req.Msg, "fraction")
	if !ok {
		return nil, invalidArgument("fraction is required")
	}
	s.engine.Player().SeekFraction(f)
	return s.status()
}

// SkipForward skips ahead by the configured increment.
func (s *PlayerService) SkipForward(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	s.engine.Player().SkipForward()
	return s.status()
}

// SkipBackward skips back by the configured increment.
func (s *PlayerService) SkipBackward(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	s.engine.Player().SkipBackward()
	return s.status()
}

// Next activates the next queued track.
func (s *PlayerService) Next(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	s.engine.Player().Next()
	return s.status()
}

// Previous activates the previous queued track.
func (s *PlayerService) Previous(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	s.engine.Player().Previous()
	return s.status()
}

// SetVolume sets {"volume": level}.
func (s *PlayerService) SetVolume(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	v, ok := numberField(req.Msg, "volume")
	if !ok {
		return nil, invalidArgument("volume is required")
	}
	s.engine.Player().SetVolume(v)
	return s.status()
}

// ToggleMute mutes or restores the volume.
func (s *PlayerService) ToggleMute(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	s.engine.Player().ToggleMute()
	return s.status()
}

// Subscribe streams the current status followed by every notification.
func (s *PlayerService) Subscribe(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
	stream *connect.ServerStream[structpb.Struct],
) error {
	notifManager := s.engine.Notifications()

	initial, err := NotificationStruct(&notification.Notification{
		SequenceNo: notifManager.SequenceNo(),
		Kind:       notification.KindInitial,
		Time:       time.Now(),
		Payload:    engine.StatusPayload(s.engine.Status()),
	})
	if err != nil {
		return connect.NewError(connect.CodeInternal, err)
	}
	if err := stream.Send(initial); err != nil {
		return err
	}

	subscriptionID := notifManager.Subscribe(&notificationStreamAdapter{stream: stream})
	zlog.Debug().Msgf("connect: subscriber joined: id=%s", subscriptionID)

	select {
	case <-ctx.Done():
	case <-s.engine.Done():
	case <-notifManager.Done(subscriptionID):
		zlog.Debug().Msgf("connect: subscriber dropped: id=%s", subscriptionID)
	}

	notifManager.Unsubscribe(subscriptionID)
	zlog.Debug().Msgf("connect: subscriber left: id=%s", subscriptionID)
	return nil
}

func (s *PlayerService) status() (*connect.Response[structpb.Struct], error) {
	msg, err := newStruct(engine.StatusPayload(s.engine.Status()))
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(msg), nil
}

// notificationStreamAdapter adapts connect.ServerStream to notification.Stream.
type notificationStreamAdapter struct {
	stream *connect.ServerStream[structpb.Struct]
}

func (a *notificationStreamAdapter) Send(n *notification.Notification) error {
	msg, err := NotificationStruct(n)
	if err != nil {
		return err
	}
	return a.stream.Send(msg)
}
