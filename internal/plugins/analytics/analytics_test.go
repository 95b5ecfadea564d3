package analytics

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/twincitiespublictelevision/pbs-partner/internal/control"
	"github.com/twincitiespublictelevision/pbs-partner/internal/dom/domtest"
	"github.com/twincitiespublictelevision/pbs-partner/internal/lifecycle"
	"github.com/twincitiespublictelevision/pbs-partner/internal/player"
	"github.com/twincitiespublictelevision/pbs-partner/internal/protocol"
)

func newAPI(t *testing.T) *control.API {
	t.Helper()
	peer := domtest.NewPeer("test")
	api := control.New(peer.Global)
	require.True(t, api.Attach(peer.Frame))
	return api
}

func collect(hits *[]Hit) TrackFunc {
	return func(hit Hit) { *hits = append(*hits, hit) }
}

// TestNoTrackerNoHits nothing is reported before a tracking function is set
func TestNoTrackerNoHits(t *testing.T) {
	api := newAPI(t)
	a := New(api)
	a.AddMediaTracking("Video", "pbs", "metric1", "", "")

	api.Trigger(protocol.EventMediaStart, lifecycle.MediaStart{})

	var hits []Hit
	a.SetTrackingFunction(collect(&hits))
	api.Trigger(protocol.EventMediaStart, lifecycle.MediaStart{})
	assert.Len(t, hits, 1)
}

// TestHits each target gets one hit per media event
func TestHits(t *testing.T) {
	api := newAPI(t)
	a := New(api)
	var hits []Hit
	a.SetTrackingFunction(collect(&hits))
	a.AddMediaTracking("Video", "episode-1", "metric2", "", "Finished")
	a.AddMediaStartTracking("Shows", "nova", "metric3", "Began")

	api.Trigger(protocol.EventMediaStart, lifecycle.MediaStart{})
	api.Trigger(protocol.EventMediaStop, lifecycle.MediaStop{SecondsPlayed: 95, SecondsReached: 120})

	require.Len(t, hits, 3)
	assert.Equal(t, Hit{
		Command: "send", HitType: "event",
		Category: "Video", Action: "MediaStart", Label: "episode-1",
		Transport: "beacon",
	}, hits[0])
	assert.Equal(t, "Began", hits[1].Action)
	assert.Equal(t, Hit{
		Command: "send", HitType: "event",
		Category: "Video", Action: "Finished", Label: "episode-1",
		Value:     95,
		Metrics:   map[string]int{"metric2": 120},
		Transport: "beacon",
	}, hits[2])
	assert.Len(t, a.Targets(protocol.EventMediaStart), 2)
}

// TestMissingStopPayload a MediaStop without stats reports zeros
func TestMissingStopPayload(t *testing.T) {
	api := newAPI(t)
	var hits []Hit
	a := New(api)
	a.SetTrackingFunction(collect(&hits))
	a.AddMediaStopTracking("Video", "x", "metric1", "")

	api.Trigger(protocol.EventMediaStop, nil)
	require.Len(t, hits, 1)
	assert.Zero(t, hits[0].Value)
	assert.Equal(t, map[string]int{"metric1": 0}, hits[0].Metrics)
}

// TestFactory the registered plugin is configured from its trackings
func TestFactory(t *testing.T) {
	player.ResetPlugins()
	t.Cleanup(player.ResetPlugins)

	var hits []Hit
	player.AddPlugin(Name, Factory(collect(&hits), Tracking{Category: "Video", Label: "l", Metric: "m"}))

	peer := domtest.NewPeer("test")
	p := player.New(peer.Global)
	require.True(t, p.Attach(peer.Frame))

	plugin, ok := p.Plugin(Name)
	require.True(t, ok)
	require.IsType(t, &Analytics{}, plugin)

	peer.Emit("video::playing")
	p.Destroy()

	require.Len(t, hits, 2)
	assert.Equal(t, protocol.EventMediaStart, hits[0].Action)
	assert.Equal(t, protocol.EventMediaStop, hits[1].Action)
}

// TestLabelDefaultsToVideo an empty label reports the video id
func TestLabelDefaultsToVideo(t *testing.T) {
	player.ResetPlugins()
	t.Cleanup(player.ResetPlugins)

	var hits []Hit
	player.AddPlugin(Name, Factory(collect(&hits), Tracking{Category: "Video", Metric: "m"}))

	peer := domtest.NewPeer("test")
	p := player.New(peer.Global)
	p.SetVideoID("nova-s51e1")
	require.True(t, p.Attach(peer.Frame))

	peer.Emit("video::playing")
	require.Len(t, hits, 1)
	assert.Equal(t, "nova-s51e1", hits[0].Label)
}

// TestLogTracker hits become structured log lines
func TestLogTracker(t *testing.T) {
	var buf bytes.Buffer
	track := LogTracker(zerolog.New(&buf))

	track(Hit{Category: "Video", Action: "MediaStop", Label: "l", Value: 12, Metrics: map[string]int{"m": 30}, Transport: "beacon"})

	assert.Contains(t, buf.String(), `"action":"MediaStop"`)
	assert.Contains(t, buf.String(), `"value":12`)
	assert.Contains(t, buf.String(), `"message":"media hit"`)
}

// TestMeterTracker starts, played seconds and reach land on their instruments
func TestMeterTracker(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	track, err := MeterTracker(provider.Meter("test"))
	require.NoError(t, err)

	track(Hit{Category: "Video", Action: "MediaStart"})
	track(Hit{Category: "Video", Action: "MediaStop", Value: 40, Metrics: map[string]int{"m": 90}})
	track(Hit{Category: "Video", Action: "MediaStop", Value: 2, Metrics: map[string]int{"m": 10}})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byName := map[string]metricdata.Metrics{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		byName[m.Name] = m
	}

	starts := byName["media.starts"].Data.(metricdata.Sum[int64])
	require.Len(t, starts.DataPoints, 1)
	assert.Equal(t, int64(1), starts.DataPoints[0].Value)

	played := byName["media.played"].Data.(metricdata.Sum[int64])
	require.Len(t, played.DataPoints, 1)
	assert.Equal(t, int64(42), played.DataPoints[0].Value)

	reached := byName["media.reached"].Data.(metricdata.Histogram[int64])
	require.Len(t, reached.DataPoints, 1)
	assert.Equal(t, uint64(2), reached.DataPoints[0].Count)
}

// TestFanout every tracker sees every hit
func TestFanout(t *testing.T) {
	var a, b []Hit
	track := Fanout(collect(&a), nil, collect(&b))
	track(Hit{Action: "MediaStart"})
	assert.Len(t, a, 1)
	assert.Len(t, b, 1)
}
