// Package dom describes the slice of a browser page the player stack needs:
// windows that exchange messages, a document that finds frames, and the
// navigator's user agent. Global, Frame and FrameWindow are in-memory
// implementations driven by whoever owns the page (a bridge session or a
// test).
package dom

import "sync"

// Event types the player stack listens for.
const (
	TypeMessage      = "message"
	TypePageHide     = "pagehide"
	TypeBeforeUnload = "beforeunload"
)

// Event is a dispatched page event. Origin, Source and Data are only set for
// message events.
type Event struct {
	Type   string
	Origin string
	Source Window
	Data   string
}

// Listener is compared by pointer, like a DOM event listener function.
type Listener struct {
	fn func(Event)
}

func NewListener(fn func(Event)) *Listener {
	return &Listener{fn: fn}
}

func (l *Listener) Handle(ev Event) {
	l.fn(ev)
}

type EventTarget interface {
	AddEventListener(typ string, l *Listener)
	RemoveEventListener(typ string, l *Listener)
}

type Window interface {
	EventTarget
	PostMessage(message, targetOrigin string) error
	Navigator() Navigator
	Document() Document
}

type Navigator struct {
	UserAgent string
}

type Document interface {
	// QuerySelector returns nil when nothing matches.
	QuerySelector(selector string) Element
}

type Element interface {
	// ContentWindow returns nil until the frame has a loaded window.
	ContentWindow() Window
}

// target is the listener registry shared by the in-memory windows.
type target struct {
	mu        sync.RWMutex
	listeners map[string][]*Listener
}

func (t *target) AddEventListener(typ string, l *Listener) {
	if l == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listeners == nil {
		t.listeners = make(map[string][]*Listener)
	}
	for _, existing := range t.listeners[typ] {
		if existing == l {
			return
		}
	}
	t.listeners[typ] = append(t.listeners[typ], l)
}

func (t *target) RemoveEventListener(typ string, l *Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bound := t.listeners[typ]
	for i, existing := range bound {
		if existing == l {
			next := make([]*Listener, 0, len(bound)-1)
			next = append(next, bound[:i]...)
			t.listeners[typ] = append(next, bound[i+1:]...)
			return
		}
	}
}

// DispatchEvent runs the listeners registered for ev.Type when the dispatch
// starts, in registration order.
func (t *target) DispatchEvent(ev Event) {
	t.mu.RLock()
	snapshot := make([]*Listener, len(t.listeners[ev.Type]))
	copy(snapshot, t.listeners[ev.Type])
	t.mu.RUnlock()

	for _, l := range snapshot {
		l.Handle(ev)
	}
}

func (t *target) ListenerCount(typ string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.listeners[typ])
}
