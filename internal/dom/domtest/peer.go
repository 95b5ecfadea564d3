// Package domtest provides a scripted embedded player for tests.
package domtest

import (
	"strings"
	"sync"

	"github.com/twincitiespublictelevision/pbs-partner/internal/dom"
	"github.com/twincitiespublictelevision/pbs-partner/internal/protocol"
)

const (
	FrameID       = "player"
	FrameSelector = "#player"
)

// Peer is a page holding one player frame. Everything posted to the frame is
// recorded; commands with a scripted reply are answered synchronously.
type Peer struct {
	Global *dom.Global
	Frame  *dom.Frame
	Window *dom.FrameWindow

	mu      sync.Mutex
	posts   []string
	origins []string
	replies map[string]string
	silent  bool
}

func NewPeer(userAgent string) *Peer {
	p := &Peer{
		Global:  dom.NewGlobal(userAgent),
		replies: make(map[string]string),
	}
	p.Window = dom.NewFrameWindow(p.receive)
	p.Frame = dom.NewFrame(FrameID, FrameSelector, p.Window)
	p.Global.AddFrame(p.Frame)
	return p
}

// Reply scripts the answer "command::value" for command.
func (p *Peer) Reply(command, value string) {
	p.mu.Lock()
	p.replies[command] = value
	p.mu.Unlock()
}

// Silence stops all scripted replies.
func (p *Peer) Silence() {
	p.mu.Lock()
	p.silent = true
	p.mu.Unlock()
}

// Emit delivers data from the trusted origin and the player frame.
func (p *Peer) Emit(data string) {
	p.EmitFrom(protocol.TrustedOrigin, p.Window, data)
}

func (p *Peer) EmitFrom(origin string, source dom.Window, data string) {
	p.Global.DispatchEvent(dom.Event{
		Type:   dom.TypeMessage,
		Origin: origin,
		Source: source,
		Data:   data,
	})
}

// Leave fires a page-leave event on the host window.
func (p *Peer) Leave(typ string) {
	p.Global.DispatchEvent(dom.Event{Type: typ})
}

// Posts returns every message posted to the frame so far.
func (p *Peer) Posts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.posts))
	copy(out, p.posts)
	return out
}

// Count reports how many posted messages have the given command name.
func (p *Peer) Count(command string) int {
	n := 0
	for _, post := range p.Posts() {
		if protocol.Decode(post).Name == command {
			n++
		}
	}
	return n
}

// Origins returns the target origins used for each post.
func (p *Peer) Origins() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.origins))
	copy(out, p.origins)
	return out
}

func (p *Peer) receive(message, targetOrigin string) error {
	p.mu.Lock()
	p.posts = append(p.posts, message)
	p.origins = append(p.origins, targetOrigin)
	name, _, _ := strings.Cut(message, protocol.Separator)
	value, ok := p.replies[name]
	silent := p.silent
	p.mu.Unlock()

	if ok && !silent {
		p.Emit(name + protocol.Separator + value)
	}
	return nil
}
