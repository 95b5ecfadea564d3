// Package transport owns the raw message channel between the host page and
// the embedded player. It is the only code that posts to or listens on the
// player's window.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/twincitiespublictelevision/pbs-partner/internal/dom"
	"github.com/twincitiespublictelevision/pbs-partner/internal/events"
	"github.com/twincitiespublictelevision/pbs-partner/internal/history"
	"github.com/twincitiespublictelevision/pbs-partner/internal/protocol"
)

var (
	ErrNotConnected = errors.New("transport: failed to connect to a player instance")
	ErrClosed       = errors.New("transport: closed before the player responded")
)

type Option func(*Transport)

// WithOrigin replaces the trusted player origin.
func WithOrigin(origin string) Option {
	return func(t *Transport) { t.origin = origin }
}

func WithHistorySize(size int) Option {
	return func(t *Transport) {
		t.incoming = history.NewRing[string](size)
		t.outgoing = history.NewRing[string](size)
	}
}

func WithAllowedEvents(names []string) Option {
	return func(t *Transport) { t.allowed = names }
}

func WithLogger(log zerolog.Logger) Option {
	return func(t *Transport) { t.log = log }
}

// WithObserver sees every public event translated from an inbound message
// before any handler does.
func WithObserver(observe func(event string, value any)) Option {
	return func(t *Transport) { t.observe = observe }
}

// pending is a command waiting for the player to echo it back.
type pending struct {
	command  string
	listener *dom.Listener
	result   chan protocol.Message
	closed   chan struct{}
}

// Transport translates the player's messages into events on its embedded
// Emitter and correlates commands with their responses.
type Transport struct {
	*events.Emitter

	origin   string
	allowed  []string
	log      zerolog.Logger
	observe  func(event string, value any)
	incoming *history.Ring[string]
	outgoing *history.Ring[string]

	mu      sync.Mutex
	client  dom.Window
	server  dom.Element
	channel *dom.Listener
	pending []*pending
}

func New(opts ...Option) *Transport {
	t := &Transport{
		Emitter:  events.NewEmitter(),
		origin:   protocol.TrustedOrigin,
		allowed:  protocol.AllowedEvents,
		log:      zerolog.Nop(),
		incoming: history.NewRing[string](history.DefaultSize),
		outgoing: history.NewRing[string](history.DefaultSize),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Origin is the origin messages are posted to and accepted from.
func (t *Transport) Origin() string {
	return t.origin
}

// Connect listens for the player's messages on client. server is the frame
// element hosting the player; its content window is resolved on every send.
func (t *Transport) Connect(client dom.Window, server dom.Element) {
	t.mu.Lock()
	previous, previousClient := t.channel, t.client
	t.client = client
	t.server = server
	t.channel = dom.NewListener(t.onMessage)
	channel := t.channel
	t.mu.Unlock()

	if previous != nil && previousClient != nil {
		previousClient.RemoveEventListener(dom.TypeMessage, previous)
	}
	client.AddEventListener(dom.TypeMessage, channel)
	t.log.Debug().Str("origin", t.origin).Msg("transport connected")
}

// Connected reports whether a player window is currently reachable.
func (t *Transport) Connected() bool {
	_, _, err := t.peer()
	return err == nil
}

func (t *Transport) peer() (dom.Window, dom.Window, error) {
	t.mu.Lock()
	client, server := t.client, t.server
	t.mu.Unlock()

	if client == nil || server == nil {
		return nil, nil, ErrNotConnected
	}
	window := server.ContentWindow()
	if window == nil {
		return nil, nil, ErrNotConnected
	}
	return client, window, nil
}

// validate accepts only messages from the trusted origin sent by the
// attached player window.
func (t *Transport) validate(ev dom.Event) bool {
	if ev.Origin != t.origin {
		return false
	}
	t.mu.Lock()
	server := t.server
	t.mu.Unlock()
	if server == nil {
		return false
	}
	window := server.ContentWindow()
	return window != nil && ev.Source == window
}

func (t *Transport) onMessage(ev dom.Event) {
	if !t.validate(ev) {
		return
	}
	t.incoming.Push(ev.Data)

	t.Trigger(protocol.EventMessage, ev.Data)

	if name, value, ok := protocol.Translate(ev.Data, t.allowed); ok {
		if t.observe != nil {
			t.observe(name, value)
		}
		t.Trigger(name, value)
	}
}

// Send posts command (with value, unless nil) to the player. Commands the
// player never answers return (nil, nil) once posted. Everything else blocks
// until the matching response arrives, ctx ends, or the transport is cleaned
// up.
func (t *Transport) Send(ctx context.Context, command string, value any) (*protocol.Message, error) {
	client, window, err := t.peer()
	if err != nil {
		return nil, err
	}

	var p *pending
	if protocol.ExpectsResponse(command) {
		p = &pending{
			command: command,
			result:  make(chan protocol.Message, 1),
			closed:  make(chan struct{}),
		}
		p.listener = dom.NewListener(func(ev dom.Event) {
			if !t.validate(ev) {
				return
			}
			msg := protocol.Decode(ev.Data)
			if msg.Name != command {
				return
			}
			if t.release(client, p) {
				p.result <- msg
			}
		})
		t.mu.Lock()
		if t.client != client {
			t.mu.Unlock()
			return nil, ErrClosed
		}
		t.pending = append(t.pending, p)
		client.AddEventListener(dom.TypeMessage, p.listener)
		t.mu.Unlock()
	}

	encoded := protocol.Encode(command, value)
	t.outgoing.Push(encoded)
	if err := window.PostMessage(encoded, t.origin); err != nil {
		if p != nil {
			t.release(client, p)
		}
		return nil, fmt.Errorf("transport: post %q: %w", command, err)
	}

	if p == nil {
		return nil, nil
	}

	select {
	case msg := <-p.result:
		return &msg, nil
	case <-p.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		t.release(client, p)
		return nil, ctx.Err()
	}
}

// release drops p from the pending set. Only the first caller gets true.
func (t *Transport) release(client dom.Window, p *pending) bool {
	t.mu.Lock()
	found := false
	for i, candidate := range t.pending {
		if candidate == p {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			found = true
			break
		}
	}
	t.mu.Unlock()

	if found {
		client.RemoveEventListener(dom.TypeMessage, p.listener)
	}
	return found
}

// GetResponse sends command and decodes the value of its response. Any
// failure, including a missing or null value, yields defaultValue.
func (t *Transport) GetResponse(ctx context.Context, command string, defaultValue any) any {
	msg, err := t.Send(ctx, command, nil)
	if err != nil {
		t.log.Debug().Err(err).Str("command", command).Msg("response unavailable, using default")
		return defaultValue
	}
	if msg == nil {
		return defaultValue
	}
	if value := msg.Parsed(); value != nil {
		return value
	}
	return defaultValue
}

// Cleanup fires destroy, stops listening to the player and releases every
// caller still waiting for a response with ErrClosed. It does nothing when
// the transport was never connected.
func (t *Transport) Cleanup() {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return
	}

	t.Trigger(protocol.EventDestroy, nil)

	t.mu.Lock()
	channel := t.channel
	waiting := t.pending
	t.pending = nil
	t.channel = nil
	t.client = nil
	t.server = nil
	t.mu.Unlock()

	if channel != nil {
		client.RemoveEventListener(dom.TypeMessage, channel)
	}
	for _, p := range waiting {
		client.RemoveEventListener(dom.TypeMessage, p.listener)
		close(p.closed)
		t.log.Debug().Str("command", p.command).Msg("abandoning pending command")
	}
	t.log.Debug().Msg("transport cleaned up")
}

// Pending reports how many commands are waiting for a response.
func (t *Transport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// History returns the most recent incoming and outgoing messages, oldest
// first.
func (t *Transport) History() (incoming, outgoing []string) {
	return t.incoming.Snapshot(), t.outgoing.Snapshot()
}
