package lifecycle

import (
	"context"
	"sync"

	"github.com/twincitiespublictelevision/pbs-partner/internal/events"
	"github.com/twincitiespublictelevision/pbs-partner/internal/protocol"
)

// EndDetector covers two gaps in the player's own events. Some videos end
// with a pause instead of complete, so each pause is checked against the full
// duration recorded on the first play. It also announces connected on the
// first message seen from the player.
type EndDetector struct {
	events    Events
	positions Positions
	opts      options

	mu        sync.Mutex
	subs      []subscription
	firstPlay events.HandlerID
	hello     events.HandlerID
	duration  float64
	cycle     uint64
}

func NewEndDetector(ev Events, positions Positions, opts ...Option) *EndDetector {
	return &EndDetector{
		events:    ev,
		positions: positions,
		opts:      newOptions(opts),
	}
}

// Start binds the detector to its event source.
func (d *EndDetector) Start() {
	d.mu.Lock()
	d.duration = 0
	d.mu.Unlock()

	hello := d.events.On(protocol.EventMessage, d.onFirstMessage)
	firstPlay := d.events.On(protocol.EventPlay, d.onFirstPlay)
	pause := d.events.On(protocol.EventPause, d.onPause)

	d.mu.Lock()
	d.hello = hello
	d.firstPlay = firstPlay
	d.subs = append(d.subs,
		subscription{protocol.EventMessage, hello},
		subscription{protocol.EventPlay, firstPlay},
		subscription{protocol.EventPause, pause},
	)
	d.mu.Unlock()
}

// Stop unbinds the detector and forgets the recorded duration.
func (d *EndDetector) Stop() {
	d.mu.Lock()
	subs := d.subs
	d.subs = nil
	d.duration = 0
	d.cycle++
	d.mu.Unlock()

	for _, s := range subs {
		d.events.Off(s.event, s.id)
	}
}

// Duration is the recorded full duration, zero while unknown.
func (d *EndDetector) Duration() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.duration
}

func (d *EndDetector) onFirstMessage(events.Event) {
	if id := d.take(&d.hello); id != 0 {
		d.events.Off(protocol.EventMessage, id)
		d.events.Trigger(protocol.EventConnected, nil)
	}
}

func (d *EndDetector) onFirstPlay(events.Event) {
	id := d.take(&d.firstPlay)
	if id == 0 {
		return
	}
	d.events.Off(protocol.EventPlay, id)

	d.mu.Lock()
	d.duration = 0
	cycle := d.cycle
	d.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.timeout)
		defer cancel()
		duration := d.positions.GetDuration(ctx)

		d.mu.Lock()
		defer d.mu.Unlock()
		if d.cycle == cycle {
			d.duration = duration
			d.opts.log.Debug().Float64("duration", duration).Msg("recorded full duration")
		}
	}()
}

func (d *EndDetector) onPause(events.Event) {
	d.mu.Lock()
	cycle := d.cycle
	d.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.timeout)
		defer cancel()
		position := d.positions.GetPosition(ctx)

		d.mu.Lock()
		duration := d.duration
		current := d.cycle == cycle
		d.mu.Unlock()

		if current && position > 0 && duration > 0 && position >= duration {
			d.opts.log.Debug().Float64("position", position).Msg("pause at end of video")
			d.events.Trigger(protocol.EventComplete, nil)
		}
	}()
}

// take returns the one-shot handler id in *slot and clears it, so only the
// first caller acts on it.
func (d *EndDetector) take(slot *events.HandlerID) events.HandlerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := *slot
	*slot = 0
	return id
}
