// Package player assembles the full stack for one embedded player: the
// control API, the lifecycle tracker, the end-of-video detector and the
// registered plugins.
package player

import (
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/twincitiespublictelevision/pbs-partner/internal/control"
	"github.com/twincitiespublictelevision/pbs-partner/internal/dom"
	"github.com/twincitiespublictelevision/pbs-partner/internal/lifecycle"
)

type Option func(*config)

type config struct {
	control   []control.Option
	lifecycle []lifecycle.Option
	log       zerolog.Logger
}

func WithControlOptions(opts ...control.Option) Option {
	return func(c *config) { c.control = append(c.control, opts...) }
}

func WithLifecycleOptions(opts ...lifecycle.Option) Option {
	return func(c *config) { c.lifecycle = append(c.lifecycle, opts...) }
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *config) { c.log = log }
}

// Player is the consumer-facing object. The embedded control API provides
// the getters, commands and event binding.
type Player struct {
	*control.API

	cfg config

	mu       sync.Mutex
	tracker  *lifecycle.Tracker
	detector *lifecycle.EndDetector
	plugins  map[string]Plugin
}

func New(env dom.Window, opts ...Option) *Player {
	cfg := config{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	copts := append([]control.Option{control.WithLogger(cfg.log)}, cfg.control...)
	lopts := append([]lifecycle.Option{lifecycle.WithLogger(cfg.log)}, cfg.lifecycle...)
	cfg.lifecycle = lopts
	return &Player{
		API: control.New(env, copts...),
		cfg: cfg,
	}
}

// Attach tears down any previous attachment, starts tracking, boots every
// registered plugin and then attaches the control API to el.
func (p *Player) Attach(el dom.Element) bool {
	if p.Attached() {
		p.Destroy()
	} else {
		p.release()
	}

	tracker := lifecycle.NewTracker(p.API, p.API, p.cfg.lifecycle...)
	detector := lifecycle.NewEndDetector(p.API, p.API, p.cfg.lifecycle...)
	detector.Start()
	tracker.Start()

	plugins := p.loadPlugins()

	p.mu.Lock()
	p.tracker = tracker
	p.detector = detector
	p.plugins = plugins
	p.mu.Unlock()

	return p.API.Attach(el)
}

// AttachSelector attaches to the frame matching selector in the page.
func (p *Player) AttachSelector(selector string) bool {
	var el dom.Element
	if doc := p.Document(); doc != nil {
		el = doc.QuerySelector(selector)
	}
	return p.Attach(el)
}

// Destroy detaches from the player. A cycle in progress is closed with
// MediaStop before anything is unbound.
func (p *Player) Destroy() {
	p.API.Destroy()
	p.release()
}

// release stops tracking and closes the plugins of the current attachment.
func (p *Player) release() {
	p.mu.Lock()
	tracker, detector, plugins := p.tracker, p.detector, p.plugins
	p.tracker = nil
	p.detector = nil
	p.plugins = nil
	p.mu.Unlock()

	if tracker != nil {
		tracker.Stop()
	}
	if detector != nil {
		detector.Stop()
	}
	for name, plugin := range plugins {
		if closer, ok := plugin.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				p.cfg.log.Warn().Err(err).Str("plugin", name).Msg("closing plugin")
			}
		}
	}
}

// Plugin returns the instance booted under name for the current attachment.
func (p *Player) Plugin(name string) (Plugin, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	plugin, ok := p.plugins[name]
	return plugin, ok
}

// Stats reports the lifecycle tracker's current cycle.
func (p *Player) Stats() lifecycle.Stats {
	p.mu.Lock()
	tracker := p.tracker
	p.mu.Unlock()
	if tracker == nil {
		return lifecycle.Stats{}
	}
	return tracker.Stats()
}

func (p *Player) loadPlugins() map[string]Plugin {
	plugins := make(map[string]Plugin)
	for _, r := range registered() {
		plugin, err := r.factory(p.API)
		if err != nil {
			p.cfg.log.Error().Err(err).Str("plugin", r.name).Msg("plugin failed to boot")
			continue
		}
		plugins[r.name] = plugin
	}
	return plugins
}
