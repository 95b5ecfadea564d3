// Package analytics reports MediaStart and MediaStop to an event-tracking
// function, one hit per configured tracking target.
package analytics

import (
	"sync"

	"github.com/twincitiespublictelevision/pbs-partner/internal/control"
	"github.com/twincitiespublictelevision/pbs-partner/internal/events"
	"github.com/twincitiespublictelevision/pbs-partner/internal/lifecycle"
	"github.com/twincitiespublictelevision/pbs-partner/internal/player"
	"github.com/twincitiespublictelevision/pbs-partner/internal/protocol"
)

// Name is the plugin's registry name.
const Name = "analytics"

const (
	CommandSend   = "send"
	HitTypeEvent  = "event"
	TransportSend = "beacon"
)

// Hit is one event-tracking call. Value and Metrics are only set for
// MediaStop.
type Hit struct {
	Command   string         `json:"command"`
	HitType   string         `json:"hitType"`
	Category  string         `json:"category"`
	Action    string         `json:"action"`
	Label     string         `json:"label"`
	Value     int            `json:"value"`
	Metrics   map[string]int `json:"metrics,omitempty"`
	Transport string         `json:"transport"`
}

// TrackFunc receives every hit.
type TrackFunc func(Hit)

// Target is where one media event is tracked to. An empty Action falls back
// to the event name.
type Target struct {
	Category string
	Label    string
	Metric   string
	Action   string
}

type Analytics struct {
	api *control.API

	mu      sync.RWMutex
	track   TrackFunc
	targets map[string][]Target
}

// New binds a tracker to api's media events. Nothing is reported until a
// tracking function is set.
func New(api *control.API) *Analytics {
	a := &Analytics{
		api: api,
		targets: map[string][]Target{
			protocol.EventMediaStart: nil,
			protocol.EventMediaStop:  nil,
		},
	}
	api.On(protocol.EventMediaStart, a.trackStart)
	api.On(protocol.EventMediaStop, a.trackStop)
	return a
}

// Tracking configures both media events at once.
type Tracking struct {
	Category    string `mapstructure:"category"`
	Label       string `mapstructure:"label"`
	Metric      string `mapstructure:"metric"`
	StartAction string `mapstructure:"start_action"`
	StopAction  string `mapstructure:"stop_action"`
}

// Factory builds a player plugin that reports every tracking to track.
func Factory(track TrackFunc, trackings ...Tracking) player.Factory {
	return func(api *control.API) (player.Plugin, error) {
		a := New(api)
		a.SetTrackingFunction(track)
		for _, t := range trackings {
			a.AddMediaTracking(t.Category, t.Label, t.Metric, t.StartAction, t.StopAction)
		}
		return a, nil
	}
}

func (a *Analytics) SetTrackingFunction(track TrackFunc) {
	a.mu.Lock()
	a.track = track
	a.mu.Unlock()
}

func (a *Analytics) AddMediaStartTracking(category, label, metric, action string) {
	a.add(protocol.EventMediaStart, Target{category, label, metric, action})
}

func (a *Analytics) AddMediaStopTracking(category, label, metric, action string) {
	a.add(protocol.EventMediaStop, Target{category, label, metric, action})
}

// AddMediaTracking tracks both media events to the same category and label.
func (a *Analytics) AddMediaTracking(category, label, metric, startAction, stopAction string) {
	a.AddMediaStartTracking(category, label, metric, startAction)
	a.AddMediaStopTracking(category, label, metric, stopAction)
}

// Targets returns the targets configured for event.
func (a *Analytics) Targets(event string) []Target {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Target(nil), a.targets[event]...)
}

func (a *Analytics) add(event string, target Target) {
	a.mu.Lock()
	a.targets[event] = append(a.targets[event], target)
	a.mu.Unlock()
}

func (a *Analytics) snapshot(event string) (TrackFunc, []Target) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.track, append([]Target(nil), a.targets[event]...)
}

func (a *Analytics) trackStart(events.Event) {
	track, targets := a.snapshot(protocol.EventMediaStart)
	if track == nil {
		return
	}
	for _, target := range targets {
		track(Hit{
			Command:   CommandSend,
			HitType:   HitTypeEvent,
			Category:  target.Category,
			Action:    actionOr(target.Action, protocol.EventMediaStart),
			Label:     a.label(target),
			Transport: TransportSend,
		})
	}
}

func (a *Analytics) trackStop(ev events.Event) {
	track, targets := a.snapshot(protocol.EventMediaStop)
	if track == nil {
		return
	}
	stop, _ := ev.Value.(lifecycle.MediaStop)
	for _, target := range targets {
		track(Hit{
			Command:   CommandSend,
			HitType:   HitTypeEvent,
			Category:  target.Category,
			Action:    actionOr(target.Action, protocol.EventMediaStop),
			Label:     a.label(target),
			Value:     stop.SecondsPlayed,
			Metrics:   map[string]int{target.Metric: stop.SecondsReached},
			Transport: TransportSend,
		})
	}
}

// label falls back to the video id.
func (a *Analytics) label(target Target) string {
	if target.Label == "" {
		return a.api.VideoID()
	}
	return target.Label
}

func actionOr(action, fallback string) string {
	if action == "" {
		return fallback
	}
	return action
}
