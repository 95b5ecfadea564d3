package dom

import (
	"strings"
	"sync"
)

// Global is the host page's window. It doubles as its document: frames are
// registered on it and found again by selector.
type Global struct {
	target

	pageMu    sync.RWMutex
	userAgent string
	frames    []*Frame
}

func NewGlobal(userAgent string) *Global {
	return &Global{userAgent: userAgent}
}

func (g *Global) SetUserAgent(userAgent string) {
	g.pageMu.Lock()
	g.userAgent = userAgent
	g.pageMu.Unlock()
}

func (g *Global) Navigator() Navigator {
	g.pageMu.RLock()
	defer g.pageMu.RUnlock()
	return Navigator{UserAgent: g.userAgent}
}

func (g *Global) Document() Document {
	return g
}

// PostMessage delivers message to the page itself.
func (g *Global) PostMessage(message, _ string) error {
	g.DispatchEvent(Event{Type: TypeMessage, Source: g, Data: message})
	return nil
}

// AddFrame registers f, replacing any frame with the same id.
func (g *Global) AddFrame(f *Frame) {
	g.pageMu.Lock()
	defer g.pageMu.Unlock()
	for i, existing := range g.frames {
		if existing.id == f.id {
			g.frames[i] = f
			return
		}
	}
	g.frames = append(g.frames, f)
}

func (g *Global) RemoveFrame(id string) {
	g.pageMu.Lock()
	defer g.pageMu.Unlock()
	for i, existing := range g.frames {
		if existing.id == id {
			g.frames = append(g.frames[:i], g.frames[i+1:]...)
			return
		}
	}
}

// Frame returns the frame registered under id.
func (g *Global) Frame(id string) (*Frame, bool) {
	g.pageMu.RLock()
	defer g.pageMu.RUnlock()
	for _, f := range g.frames {
		if f.id == id {
			return f, true
		}
	}
	return nil, false
}

// QuerySelector understands "#id" and the exact selector a frame was
// registered with.
func (g *Global) QuerySelector(selector string) Element {
	g.pageMu.RLock()
	defer g.pageMu.RUnlock()
	id, byID := strings.CutPrefix(selector, "#")
	for _, f := range g.frames {
		if f.selector == selector || (byID && f.id == id) {
			return f
		}
	}
	return nil
}

// Frame is an iframe element.
type Frame struct {
	id       string
	selector string
	window   *FrameWindow
}

// NewFrame creates a frame element. A nil window models a frame whose
// content window is not available.
func NewFrame(id, selector string, window *FrameWindow) *Frame {
	return &Frame{id: id, selector: selector, window: window}
}

func (f *Frame) ID() string {
	return f.id
}

func (f *Frame) Selector() string {
	return f.selector
}

func (f *Frame) ContentWindow() Window {
	if f.window == nil {
		return nil
	}
	return f.window
}

// Poster carries a postMessage call to wherever the real frame lives.
type Poster func(message, targetOrigin string) error

// FrameWindow is the content window of a frame; posting to it hands the
// message to its Poster.
type FrameWindow struct {
	target
	post Poster
}

func NewFrameWindow(post Poster) *FrameWindow {
	return &FrameWindow{post: post}
}

func (w *FrameWindow) PostMessage(message, targetOrigin string) error {
	if w.post == nil {
		return nil
	}
	return w.post(message, targetOrigin)
}

func (w *FrameWindow) Navigator() Navigator {
	return Navigator{}
}

func (w *FrameWindow) Document() Document {
	return emptyDocument{}
}

type emptyDocument struct{}

func (emptyDocument) QuerySelector(string) Element {
	return nil
}
