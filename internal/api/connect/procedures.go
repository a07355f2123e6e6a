// Package connect provides Connect RPC service implementations.
//
// Messages are protobuf well-known types: requests without arguments use
// emptypb.Empty, everything else travels as structpb.Struct.
package connect

import (
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/playdeck/internal/app/engine"
	"github.com/osa030/playdeck/internal/app/notification"
	"github.com/osa030/playdeck/internal/domain/track"
)

const (
	PlayerServiceName  = "playdeck.v1.PlayerService"
	QueueServiceName   = "playdeck.v1.QueueService"
	LibraryServiceName = "playdeck.v1.LibraryService"
)

// PlayerService procedures.
const (
	PlayerGetStatusProcedure    = "/" + PlayerServiceName + "/GetStatus"
	PlayerPlayProcedure         = "/" + PlayerServiceName + "/Play"
	PlayerPauseProcedure        = "/" + PlayerServiceName + "/Pause"
	PlayerToggleProcedure       = "/" + PlayerServiceName + "/Toggle"
	PlayerStopProcedure         = "/" + PlayerServiceName + "/Stop"
	PlayerSeekProcedure         = "/" + PlayerServiceName + "/Seek"
	PlayerSeekFractionProcedure = "/" + PlayerServiceName + "/SeekFraction"
	PlayerSkipForwardProcedure  = "/" + PlayerServiceName + "/SkipForward"
	PlayerSkipBackwardProcedure = "/" + PlayerServiceName + "/SkipBackward"
	PlayerNextProcedure         = "/" + PlayerServiceName + "/Next"
	PlayerPreviousProcedure     = "/" + PlayerServiceName + "/Previous"
	PlayerSetVolumeProcedure    = "/" + PlayerServiceName + "/SetVolume"
	PlayerToggleMuteProcedure   = "/" + PlayerServiceName + "/ToggleMute"
	PlayerSubscribeProcedure    = "/" + PlayerServiceName + "/Subscribe"
)

// QueueService procedures.
const (
	QueueGetQueueProcedure  = "/" + QueueServiceName + "/GetQueue"
	QueueSetQueueProcedure  = "/" + QueueServiceName + "/SetQueue"
	QueueSetActiveProcedure = "/" + QueueServiceName + "/SetActive"
	QueuePlayFromProcedure  = "/" + QueueServiceName + "/PlayFrom"
)

// LibraryService procedures.
const (
	LibraryListSongsProcedure   = "/" + LibraryServiceName + "/ListSongs"
	LibrarySearchSongsProcedure = "/" + LibraryServiceName + "/SearchSongs"
	LibraryPlayUserProcedure    = "/" + LibraryServiceName + "/PlayUser"
	LibraryPlaySearchProcedure  = "/" + LibraryServiceName + "/PlaySearch"
)

// readOnlyProcedures never change player state and skip the control token
// check.
var readOnlyProcedures = map[string]bool{
	PlayerGetStatusProcedure:    true,
	PlayerSubscribeProcedure:    true,
	QueueGetQueueProcedure:      true,
	LibraryListSongsProcedure:   true,
	LibrarySearchSongsProcedure: true,
}

// IsReadOnly reports whether procedure leaves player state untouched.
func IsReadOnly(procedure string) bool {
	return readOnlyProcedures[procedure]
}

// toConnectError maps engine errors to Connect codes.
func toConnectError(err error) *connect.Error {
	switch {
	case errors.Is(err, engine.ErrEmptyQueue), errors.Is(err, engine.ErrNotQueued):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, engine.ErrNoCatalog):
		return connect.NewError(connect.CodeUnimplemented, err)
	case errors.Is(err, engine.ErrClosed):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

func invalidArgument(format string, args ...any) *connect.Error {
	return connect.NewError(connect.CodeInvalidArgument, errors.Newf(format, args...))
}

func newStruct(payload map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, errors.Wrap(err, "failed to encode response"))
	}
	return s, nil
}

func stringField(msg *structpb.Struct, key string) string {
	return msg.GetFields()[key].GetStringValue()
}

func numberField(msg *structpb.Struct, key string) (float64, bool) {
	v, ok := msg.GetFields()[key]
	if !ok {
		return 0, false
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}
	return n.NumberValue, true
}

func stringListField(msg *structpb.Struct, key string) ([]string, error) {
	values := msg.GetFields()[key].GetListValue().GetValues()
	out := make([]string, 0, len(values))
	for i, v := range values {
		s, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, errors.Newf("%s[%d] is not a string", key, i)
		}
		out = append(out, s.StringValue)
	}
	return out, nil
}

// SongPayload converts a catalog song into payload form.
func SongPayload(s track.Song) map[string]any {
	payload := map[string]any{
		"id":         s.ID,
		"user_id":    s.UserID,
		"title":      s.Title,
		"author":     s.Author,
		"song_path":  s.SongPath,
		"image_path": s.ImagePath,
		"duration":   s.Duration.Seconds(),
	}
	if !s.CreatedAt.IsZero() {
		payload["created_at"] = s.CreatedAt.UTC().Format(time.RFC3339)
	}
	return payload
}

func songsPayload(songs []track.Song) map[string]any {
	list := make([]any, 0, len(songs))
	for _, s := range songs {
		list = append(list, SongPayload(s))
	}
	return map[string]any{"songs": list}
}

// NotificationStruct converts a notification into its wire form.
func NotificationStruct(n *notification.Notification) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"sequence_no": n.SequenceNo,
		"kind":        string(n.Kind),
		"time":        n.Time.UTC().Format(time.RFC3339Nano),
		"payload":     n.Payload,
	})
}
