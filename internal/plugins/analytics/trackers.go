package analytics

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LogTracker writes every hit as a structured log line.
func LogTracker(log zerolog.Logger) TrackFunc {
	return func(hit Hit) {
		e := log.Info().
			Str("category", hit.Category).
			Str("action", hit.Action).
			Str("label", hit.Label).
			Str("transport", hit.Transport)
		if hit.Metrics != nil {
			e = e.Int("value", hit.Value).Interface("metrics", hit.Metrics)
		}
		e.Msg("media hit")
	}
}

// MeterTracker records hits as OpenTelemetry instruments: a counter of
// starts, a counter of played seconds and a histogram of furthest reach.
func MeterTracker(meter metric.Meter) (TrackFunc, error) {
	starts, err := meter.Int64Counter("media.starts",
		metric.WithDescription("Playback cycles started"))
	if err != nil {
		return nil, fmt.Errorf("analytics: media.starts: %w", err)
	}
	played, err := meter.Int64Counter("media.played",
		metric.WithDescription("Seconds of playback"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("analytics: media.played: %w", err)
	}
	reached, err := meter.Int64Histogram("media.reached",
		metric.WithDescription("Furthest position reached per cycle"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("analytics: media.reached: %w", err)
	}

	return func(hit Hit) {
		ctx := context.Background()
		attrs := metric.WithAttributes(
			attribute.String("category", hit.Category),
			attribute.String("action", hit.Action),
			attribute.String("label", hit.Label),
		)
		if hit.Metrics == nil {
			starts.Add(ctx, 1, attrs)
			return
		}
		played.Add(ctx, int64(hit.Value), attrs)
		for _, seconds := range hit.Metrics {
			reached.Record(ctx, int64(seconds), attrs)
		}
	}, nil
}

// Fanout sends every hit to each of trackers in turn.
func Fanout(trackers ...TrackFunc) TrackFunc {
	return func(hit Hit) {
		for _, track := range trackers {
			if track != nil {
				track(hit)
			}
		}
	}
}

