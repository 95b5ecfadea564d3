// Package lifecycle derives media analytics from the normalized player event
// stream: MediaStart and MediaStop around each playback cycle, played time,
// furthest reach and end-of-video detection.
package lifecycle

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/twincitiespublictelevision/pbs-partner/internal/events"
	"github.com/twincitiespublictelevision/pbs-partner/internal/protocol"
)

const (
	DefaultInterval     = time.Second
	DefaultQueryTimeout = 2 * time.Second
)

// Events is anything that emits normalized player events.
type Events interface {
	On(event string, handler events.Handler) events.HandlerID
	Off(event string, id events.HandlerID)
	Trigger(event string, value any)
}

// Positions answers playback position queries. Failures come back as zero.
type Positions interface {
	GetPosition(ctx context.Context) float64
	GetDuration(ctx context.Context) float64
}

// MediaStart is the payload of the MediaStart event.
type MediaStart struct{}

// MediaStop is the payload of the MediaStop event.
type MediaStop struct {
	SecondsPlayed  int `json:"secondsPlayed"`
	SecondsReached int `json:"secondsReached"`
}

type Option func(*options)

type options struct {
	clock   clock.Clock
	every   time.Duration
	timeout time.Duration
	log     zerolog.Logger
}

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithInterval sets how often a running cycle is sampled.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.every = d
		}
	}
}

// WithQueryTimeout bounds each position or duration query.
func WithQueryTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

func newOptions(opts []Option) options {
	o := options{
		clock:   clock.New(),
		every:   DefaultInterval,
		timeout: DefaultQueryTimeout,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Stats is a snapshot of the current cycle.
type Stats struct {
	Tracking       bool
	Sampling       bool
	PlayedMs       int64
	SecondsReached int
}

// sampler is the running sampling timer of one cycle.
type sampler struct {
	ticker *clock.Ticker
	done   chan struct{}
}

type subscription struct {
	event string
	id    events.HandlerID
}

// Tracker turns play, pause, adPlay, complete and destroy into MediaStart and
// MediaStop. Between the two it samples played wall-clock time and the
// furthest position reached.
type Tracker struct {
	events    Events
	positions Positions
	opts      options

	mu       sync.Mutex
	subs     []subscription
	tracking bool
	cycle    uint64
	playedMs int64
	furthest int
	lastRun  time.Time
	sampler  *sampler
}

func NewTracker(ev Events, positions Positions, opts ...Option) *Tracker {
	return &Tracker{
		events:    ev,
		positions: positions,
		opts:      newOptions(opts),
	}
}

// Start binds the tracker to its event source.
func (t *Tracker) Start() {
	subs := []subscription{
		{protocol.EventPlay, t.events.On(protocol.EventPlay, t.onPlay)},
		{protocol.EventPause, t.events.On(protocol.EventPause, t.onPause)},
		{protocol.EventAdPlay, t.events.On(protocol.EventAdPlay, t.onPause)},
		{protocol.EventComplete, t.events.On(protocol.EventComplete, t.onEnd)},
		{protocol.EventDestroy, t.events.On(protocol.EventDestroy, t.onEnd)},
	}
	t.mu.Lock()
	t.subs = append(t.subs, subs...)
	t.mu.Unlock()
}

// Stop unbinds the tracker and drops the current cycle without emitting
// MediaStop.
func (t *Tracker) Stop() {
	t.mu.Lock()
	subs := t.subs
	t.subs = nil
	t.stopSampling()
	t.reset()
	t.mu.Unlock()

	for _, s := range subs {
		t.events.Off(s.event, s.id)
	}
}

func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		Tracking:       t.tracking,
		Sampling:       t.sampler != nil,
		PlayedMs:       t.playedMs,
		SecondsReached: t.furthest,
	}
}

func (t *Tracker) onPlay(events.Event) {
	t.mu.Lock()
	first := !t.tracking
	if first {
		t.tracking = true
	}
	t.startSampling()
	cycle := t.cycle
	t.mu.Unlock()

	if first {
		t.opts.log.Debug().Uint64("cycle", cycle).Msg("media start")
		t.events.Trigger(protocol.EventMediaStart, MediaStart{})
	}
}

func (t *Tracker) onPause(events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sampler != nil {
		t.flush()
		t.stopSampling()
	}
}

func (t *Tracker) onEnd(events.Event) {
	t.mu.Lock()
	if !t.tracking {
		t.mu.Unlock()
		return
	}
	if t.sampler != nil {
		t.flush()
		t.stopSampling()
	}
	stop := MediaStop{
		SecondsPlayed:  int(t.playedMs / 1000),
		SecondsReached: t.furthest,
	}
	t.reset()
	t.mu.Unlock()

	t.opts.log.Debug().
		Int("secondsPlayed", stop.SecondsPlayed).
		Int("secondsReached", stop.SecondsReached).
		Msg("media stop")
	t.events.Trigger(protocol.EventMediaStop, stop)
}

// reset must be called with mu held. Bumping the cycle invalidates samples
// still in flight.
func (t *Tracker) reset() {
	t.tracking = false
	t.cycle++
	t.playedMs = 0
	t.furthest = 0
	t.lastRun = time.Time{}
}

// startSampling must be called with mu held. A running sampler is replaced.
func (t *Tracker) startSampling() {
	t.stopSampling()
	s := &sampler{
		ticker: t.opts.clock.Ticker(t.opts.every),
		done:   make(chan struct{}),
	}
	t.sampler = s
	t.lastRun = t.opts.clock.Now()
	go t.run(s, t.cycle)
}

// stopSampling must be called with mu held.
func (t *Tracker) stopSampling() {
	if t.sampler == nil {
		return
	}
	t.sampler.ticker.Stop()
	close(t.sampler.done)
	t.sampler = nil
}

// flush must be called with mu held.
func (t *Tracker) flush() {
	now := t.opts.clock.Now()
	t.playedMs += now.Sub(t.lastRun).Milliseconds()
	t.lastRun = now
}

func (t *Tracker) run(s *sampler, cycle uint64) {
	for {
		select {
		case <-s.done:
			return
		case <-s.ticker.C:
			t.sample(s, cycle)
		}
	}
}

func (t *Tracker) sample(s *sampler, cycle uint64) {
	t.mu.Lock()
	if t.sampler != s || t.cycle != cycle {
		t.mu.Unlock()
		return
	}
	t.flush()
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), t.opts.timeout)
	defer cancel()
	position := t.positions.GetPosition(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cycle != cycle {
		return
	}
	if reached := int(math.Floor(position)); reached > t.furthest {
		t.furthest = reached
	}
}
