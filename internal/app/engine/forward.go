package engine

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/osa030/playdeck/internal/app/notification"
	"github.com/osa030/playdeck/internal/app/playback"
	"github.com/osa030/playdeck/internal/app/queue"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// forwardLoop turns controller and queue events into notifications.
func (e *Engine) forwardLoop(ctx context.Context, playerSub *playback.Subscription, queueSub *queue.Subscription) {
	defer close(e.done)
	defer e.player.Unsubscribe(playerSub)
	defer e.store.Unsubscribe(queueSub)

	for {
		select {
		case <-ctx.Done():
			return
		case <-playerSub.Done:
			return
		case <-queueSub.Done:
			return
		case ev := <-playerSub.StatusChanged:
			e.onStatusChange(ev)
		case ev := <-playerSub.ProgressChanged:
			e.broadcast(notification.KindProgress, ProgressPayload(ev.Generation, ev.TrackID, ev.Progress))
		case ev := <-playerSub.VolumeChanged:
			e.broadcast(notification.KindVolume, map[string]any{
				"volume": ev.Volume,
				"muted":  ev.Muted,
			})
		case change := <-queueSub.Changes:
			payload := QueuePayload(change.Snapshot)
			payload["change"] = change.Kind.String()
			e.broadcast(notification.KindQueue, payload)
		}
	}
}

func (e *Engine) onStatusChange(ev playback.StatusChange) {
	zlog.Debug().Msgf("engine: status changed: generation=%d track_id=%s previous=%s current=%s",
		ev.Generation, ev.TrackID, ev.Previous, ev.Current)

	e.broadcast(notification.KindStatus, map[string]any{
		"generation": ev.Generation,
		"track_id":   ev.TrackID,
		"previous":   ev.Previous.String(),
		"status":     ev.Current.String(),
	})

	if ev.Current != playback.StatusErrored || ev.Err == nil {
		return
	}
	zlog.Warn().Msgf("engine: playback failed: track_id=%s error=%v", ev.TrackID, ev.Err)
	// A failing resource may come from a stale cached URL.
	if e.invalidator != nil && errors.Is(ev.Err, playback.ErrResource) {
		e.invalidator.Invalidate(ev.TrackID)
	}
	e.broadcast(notification.KindError, ErrorPayload(ev.Generation, ev.TrackID, ev.Err))
}

func (e *Engine) broadcast(kind notification.Kind, payload map[string]any) {
	e.notification.Broadcast(&notification.Notification{
		Kind:    kind,
		Payload: payload,
	})
}

// QueuePayload converts a queue snapshot into notification payload form.
func QueuePayload(s queue.Snapshot) map[string]any {
	return map[string]any{
		"ids":    lo.ToAnySlice(s.IDs),
		"active": s.Active,
	}
}

// ProgressPayload converts a progress snapshot into notification payload form.
func ProgressPayload(gen uint64, id string, p playback.Progress) map[string]any {
	return map[string]any{
		"generation": gen,
		"track_id":   id,
		"current":    p.CurrentSeconds(),
		"duration":   p.DurationSeconds(),
		"fraction":   p.Fraction,
	}
}

// ErrorPayload classifies a playback failure for subscribers.
func ErrorPayload(gen uint64, id string, err error) map[string]any {
	return map[string]any{
		"generation": gen,
		"track_id":   id,
		"reason":     failureReason(err),
		"message":    err.Error(),
	}
}

// StatusPayload converts the aggregate status into payload form.
func StatusPayload(s Status) map[string]any {
	pb := s.Playback
	payload := map[string]any{
		"queue":       QueuePayload(s.Queue),
		"generation":  pb.Generation,
		"track_id":    pb.TrackID,
		"source_url":  pb.SourceURL,
		"status":      pb.Status.String(),
		"volume":      pb.Volume,
		"muted":       pb.Muted,
		"progress":    ProgressPayload(pb.Generation, pb.TrackID, pb.Progress),
		"subscribers": s.Subscribers,
	}
	if pb.Err != nil {
		payload["error"] = ErrorPayload(pb.Generation, pb.TrackID, pb.Err)
	}
	return payload
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, playback.ErrResolution):
		return "resolution"
	case errors.Is(err, playback.ErrResource):
		return "resource"
	default:
		return "unknown"
	}
}
