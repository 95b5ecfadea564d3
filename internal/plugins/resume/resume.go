// Package resume remembers how far each video was watched and seeks back to
// that point when playback of the same video starts again.
package resume

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/twincitiespublictelevision/pbs-partner/internal/control"
	"github.com/twincitiespublictelevision/pbs-partner/internal/events"
	"github.com/twincitiespublictelevision/pbs-partner/internal/lifecycle"
	"github.com/twincitiespublictelevision/pbs-partner/internal/player"
	"github.com/twincitiespublictelevision/pbs-partner/internal/protocol"
)

// Name is the plugin's registry name.
const Name = "resume"

const storeTimeout = 2 * time.Second

type Resume struct {
	api   *control.API
	store Store
	log   zerolog.Logger
}

// New binds resume tracking to api. Nothing is stored while the API has no
// video id.
func New(api *control.API, store Store, log zerolog.Logger) *Resume {
	r := &Resume{api: api, store: store, log: log}
	api.On(protocol.EventPosition, r.onPosition)
	api.On(protocol.EventMediaStop, r.onStop)
	api.On(protocol.EventMediaStart, r.onStart)
	api.On(protocol.EventComplete, r.onComplete)
	return r
}

// Factory builds a player plugin over store. The store outlives every
// attachment and is not closed by the plugin.
func Factory(store Store, log zerolog.Logger) player.Factory {
	return func(api *control.API) (player.Plugin, error) {
		return New(api, store, log), nil
	}
}

// Position returns the stored position for the current video.
func (r *Resume) Position(ctx context.Context) (int, bool) {
	id := r.api.VideoID()
	if id == "" {
		return 0, false
	}
	seconds, ok, err := r.store.Get(ctx, id)
	if err != nil {
		r.log.Warn().Err(err).Str("video", id).Msg("reading resume position")
		return 0, false
	}
	return seconds, ok
}

func (r *Resume) onPosition(ev events.Event) {
	position, ok := ev.Value.(float64)
	if !ok {
		return
	}
	r.save(int(math.Floor(position)))
}

func (r *Resume) onStop(ev events.Event) {
	stop, ok := ev.Value.(lifecycle.MediaStop)
	if !ok || stop.SecondsReached <= 0 {
		return
	}
	r.save(stop.SecondsReached)
}

// onComplete forgets finished videos so they start over next time.
func (r *Resume) onComplete(events.Event) {
	id := r.api.VideoID()
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := r.store.Delete(ctx, id); err != nil {
		r.log.Warn().Err(err).Str("video", id).Msg("clearing resume position")
	}
}

func (r *Resume) onStart(events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	seconds, ok := r.Position(ctx)
	if !ok || seconds <= 0 {
		return
	}
	r.log.Debug().Str("video", r.api.VideoID()).Int("seconds", seconds).Msg("resuming")
	if err := r.api.Seek(ctx, float64(seconds)); err != nil {
		r.log.Warn().Err(err).Msg("seeking to resume position")
	}
}

func (r *Resume) save(seconds int) {
	id := r.api.VideoID()
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := r.store.Set(ctx, id, seconds); err != nil {
		r.log.Warn().Err(err).Str("video", id).Msg("saving resume position")
	}
}
