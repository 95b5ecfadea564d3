// Package control is the typed control surface of an embedded player. It
// wraps a transport, caches the playback state reported by the player and
// manages attaching to and detaching from the player frame.
package control

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/twincitiespublictelevision/pbs-partner/internal/dom"
	"github.com/twincitiespublictelevision/pbs-partner/internal/events"
	"github.com/twincitiespublictelevision/pbs-partner/internal/protocol"
	"github.com/twincitiespublictelevision/pbs-partner/internal/transport"
)

// mobileAgents get pagehide instead of beforeunload, which they do not fire
// reliably.
var mobileAgents = []string{"ipad", "iphone"}

type Option func(*config)

type config struct {
	allowed   []string
	log       zerolog.Logger
	transport []transport.Option
}

// WithAllowedEvents extends the public event allow-list.
func WithAllowedEvents(names ...string) Option {
	return func(c *config) { c.allowed = append(c.allowed, names...) }
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *config) { c.log = log }
}

func WithTransportOptions(opts ...transport.Option) Option {
	return func(c *config) { c.transport = append(c.transport, opts...) }
}

type API struct {
	env       dom.Window
	transport *transport.Transport
	allowed   []string
	log       zerolog.Logger

	mu        sync.Mutex
	state     State
	muted     bool
	videoID   string
	player    dom.Element
	leave     *dom.Listener
	leaveType string
}

// New creates an API for players embedded in env, the host page's window.
func New(env dom.Window, opts ...Option) *API {
	cfg := config{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	allowed := lo.Uniq(append(append([]string{}, protocol.AllowedEvents...), cfg.allowed...))

	a := &API{
		env:     env,
		allowed: allowed,
		log:     cfg.log,
	}
	topts := append([]transport.Option{
		transport.WithAllowedEvents(allowed),
		transport.WithLogger(cfg.log),
		transport.WithObserver(a.observe),
	}, cfg.transport...)
	a.transport = transport.New(topts...)
	return a
}

// observe keeps the cached playback state in step with the events seen.
func (a *API) observe(event string, _ any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch event {
	case protocol.EventInitialize, protocol.EventStop, protocol.EventComplete:
		a.state = StateIdle
	case protocol.EventPlay:
		a.state = StatePlaying
	case protocol.EventPause:
		a.state = StatePaused
	}
}

func (a *API) SetVideoID(id string) {
	a.mu.Lock()
	a.videoID = id
	a.mu.Unlock()
}

func (a *API) VideoID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.videoID
}

// Attached reports whether the API is bound to a frame with a content
// window.
func (a *API) Attached() bool {
	a.mu.Lock()
	player := a.player
	a.mu.Unlock()
	return player != nil && player.ContentWindow() != nil
}

// Attach binds the API to the player frame el, destroying any previous
// attachment first. A frame without a content window is ignored and false is
// returned.
func (a *API) Attach(el dom.Element) bool {
	if a.Attached() {
		a.Destroy()
	}

	a.mu.Lock()
	a.player = el
	a.mu.Unlock()

	if el == nil || el.ContentWindow() == nil {
		a.log.Debug().Msg("player frame has no content window, not attaching")
		return false
	}

	a.transport.Connect(a.env, el)

	leaveType := dom.TypeBeforeUnload
	if isMobile(a.env.Navigator().UserAgent) {
		leaveType = dom.TypePageHide
	}
	leave := dom.NewListener(func(dom.Event) { a.Destroy() })
	a.env.AddEventListener(leaveType, leave)

	a.mu.Lock()
	a.leave = leave
	a.leaveType = leaveType
	a.mu.Unlock()

	a.log.Info().Str("video", a.VideoID()).Str("leave", leaveType).Msg("attached to player")
	a.transport.Trigger(protocol.EventCreate, nil)
	return true
}

// AttachSelector finds the player frame in the page's document and attaches
// to it.
func (a *API) AttachSelector(selector string) bool {
	doc := a.Document()
	if doc == nil {
		return a.Attach(nil)
	}
	return a.Attach(doc.QuerySelector(selector))
}

// Document is the host page's document.
func (a *API) Document() dom.Document {
	return a.env.Document()
}

// Destroy tears the channel down: destroy fires, every handler is unbound and
// the page-leave guard is removed.
func (a *API) Destroy() {
	a.transport.Cleanup()
	a.Off("", 0)

	a.mu.Lock()
	leave, leaveType := a.leave, a.leaveType
	a.leave = nil
	a.leaveType = ""
	a.player = nil
	a.state = StateIdle
	a.mu.Unlock()

	if leave != nil {
		a.env.RemoveEventListener(leaveType, leave)
		a.log.Info().Str("video", a.VideoID()).Msg("detached from player")
	}
}

// On binds handler to an allowed event. Names outside the allow-list are
// ignored and yield the zero HandlerID.
func (a *API) On(event string, handler events.Handler) events.HandlerID {
	if !lo.Contains(a.allowed, event) {
		return 0
	}
	return a.transport.Bind(event, handler)
}

// Off follows events.Emitter.Unbind.
func (a *API) Off(event string, id events.HandlerID) {
	a.transport.Unbind(event, id)
}

// Trigger dispatches a synthetic event as if the player had sent it.
func (a *API) Trigger(event string, value any) {
	a.observe(event, value)
	a.transport.Trigger(event, value)
}

// Transport exposes the underlying channel.
func (a *API) Transport() *transport.Transport {
	return a.transport
}

// History returns the recent raw traffic with the player.
func (a *API) History() (incoming, outgoing []string) {
	return a.transport.History()
}

// Origin is the trusted player origin in use.
func (a *API) Origin() string {
	return a.transport.Origin()
}

// GetState returns the cached state without asking the player.
func (a *API) GetState() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *API) IsPlaying() bool {
	return a.GetState() == StatePlaying
}

func (a *API) IsComplete(ctx context.Context) bool {
	return toBool(a.transport.GetResponse(ctx, protocol.CmdEnded, false))
}

func (a *API) IsSeeking(ctx context.Context) bool {
	return toFloat(a.transport.GetResponse(ctx, protocol.CmdReadyState, 0)) == 1
}

// GetPosition returns the playback position in seconds.
func (a *API) GetPosition(ctx context.Context) float64 {
	return toFloat(a.transport.GetResponse(ctx, protocol.CmdCurrentTime, 0))
}

// GetDuration returns the length of the current video in seconds.
func (a *API) GetDuration(ctx context.Context) float64 {
	return toFloat(a.transport.GetResponse(ctx, protocol.CmdDuration, 0))
}

func (a *API) GetMute(ctx context.Context) bool {
	return toBool(a.transport.GetResponse(ctx, protocol.CmdMuted, false))
}

// GetVolume returns the volume as a percentage.
func (a *API) GetVolume(ctx context.Context) float64 {
	return toFloat(a.transport.GetResponse(ctx, protocol.CmdVolume, 0)) * 100
}

// TogglePlayState asks the player to flip between playing and paused.
func (a *API) TogglePlayState(ctx context.Context) error {
	return a.send(ctx, protocol.CmdPlay, nil)
}

// Play is a no-op when the player is already known to be playing.
func (a *API) Play(ctx context.Context) error {
	if a.IsPlaying() {
		return nil
	}
	return a.send(ctx, protocol.CmdPlay, nil)
}

// Pause is a no-op unless the player is known to be playing.
func (a *API) Pause(ctx context.Context) error {
	if !a.IsPlaying() {
		return nil
	}
	return a.send(ctx, protocol.CmdPause, nil)
}

// Stop pauses, then unloads the current media.
func (a *API) Stop(ctx context.Context) error {
	if err := a.send(ctx, protocol.CmdPause, nil); err != nil {
		return err
	}
	return a.send(ctx, protocol.CmdLoad, nil)
}

// Seek jumps to position, in seconds.
func (a *API) Seek(ctx context.Context, position float64) error {
	return a.send(ctx, protocol.CmdSetCurrentTime, position)
}

// SetMute toggles muting. The mute flag is tracked locally rather than asked
// for.
func (a *API) SetMute(ctx context.Context) error {
	a.mu.Lock()
	a.muted = !a.muted
	muted := a.muted
	a.mu.Unlock()
	return a.send(ctx, protocol.CmdSetMuted, muted)
}

// SetVolume sets the volume from a percentage between 0 and 100.
func (a *API) SetVolume(ctx context.Context, percentage float64) error {
	return a.send(ctx, protocol.CmdSetVolume, percentage/100)
}

func (a *API) send(ctx context.Context, command string, value any) error {
	_, err := a.transport.Send(ctx, command, value)
	return err
}

func isMobile(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	return lo.ContainsBy(mobileAgents, func(agent string) bool {
		return strings.Contains(ua, agent)
	})
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func toBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case float64:
		return b != 0
	case string:
		parsed, err := strconv.ParseBool(b)
		return err == nil && parsed
	default:
		return false
	}
}
