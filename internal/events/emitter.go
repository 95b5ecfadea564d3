// Package events implements the named handler registry every layer of the
// player stack dispatches through.
package events

import "sync"

// Event is what a handler receives. Value is nil when the event carries no
// payload.
type Event struct {
	Name  string
	Value any
}

type Handler func(Event)

// HandlerID identifies one binding. The zero value never names a binding.
type HandlerID uint64

type binding struct {
	id      HandlerID
	handler Handler
}

// Emitter is safe for concurrent use. Handlers are invoked outside the
// registry lock, so they may bind or unbind freely.
type Emitter struct {
	mu     sync.RWMutex
	nextID HandlerID
	events map[string][]binding
}

func NewEmitter() *Emitter {
	return &Emitter{events: make(map[string][]binding)}
}

// Bind registers handler under name. Binding the same function twice stores
// two independent entries.
func (e *Emitter) Bind(name string, handler Handler) HandlerID {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.events[name] = append(e.events[name], binding{id: e.nextID, handler: handler})
	return e.nextID
}

// Unbind removes a single handler when both name and id are given, every
// handler of name when only name is given, and everything when neither is.
func (e *Emitter) Unbind(name string, id HandlerID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case name == "" && id == 0:
		e.events = make(map[string][]binding)
	case id == 0:
		delete(e.events, name)
	default:
		bound := e.events[name]
		for i, b := range bound {
			if b.id == id {
				// copy so an in-flight snapshot keeps its view
				next := make([]binding, 0, len(bound)-1)
				next = append(next, bound[:i]...)
				next = append(next, bound[i+1:]...)
				e.events[name] = next
				return
			}
		}
	}
}

// Trigger calls the handlers bound to name at the time of the call, in
// binding order.
func (e *Emitter) Trigger(name string, value any) {
	e.mu.RLock()
	snapshot := make([]binding, len(e.events[name]))
	copy(snapshot, e.events[name])
	e.mu.RUnlock()

	ev := Event{Name: name, Value: value}
	for _, b := range snapshot {
		b.handler(ev)
	}
}

// Len reports how many handlers are bound to name.
func (e *Emitter) Len(name string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.events[name])
}
