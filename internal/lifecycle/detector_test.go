package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twincitiespublictelevision/pbs-partner/internal/protocol"
)

func startedDetector(t *testing.T, p *positions) (*EndDetector, *bus) {
	t.Helper()
	b := newBus()
	d := NewEndDetector(b, p)
	d.Start()
	t.Cleanup(d.Stop)
	return d, b
}

// TestPauseAtEndCompletes a pause at or past the recorded duration synthesizes complete once
func TestPauseAtEndCompletes(t *testing.T) {
	p := &positions{duration: 120}
	d, b := startedDetector(t, p)

	b.Trigger(protocol.EventPlay, nil)
	require.Eventually(t, func() bool { return d.Duration() == 120 }, time.Second, time.Millisecond)

	p.set(120.4)
	b.Trigger(protocol.EventPause, nil)
	require.Eventually(t, func() bool { return len(b.named(protocol.EventComplete)) == 1 }, time.Second, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, b.named(protocol.EventComplete), 1)
}

// TestPauseMidVideo a pause before the end is just a pause
func TestPauseMidVideo(t *testing.T) {
	p := &positions{duration: 120}
	d, b := startedDetector(t, p)

	b.Trigger(protocol.EventPlay, nil)
	require.Eventually(t, func() bool { return d.Duration() == 120 }, time.Second, time.Millisecond)

	p.set(60)
	b.Trigger(protocol.EventPause, nil)
	require.Eventually(t, func() bool { return p.count() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, b.named(protocol.EventComplete))
}

// TestUnknownDurationSkipsCheck without a duration no pause ever completes
func TestUnknownDurationSkipsCheck(t *testing.T) {
	p := &positions{}
	_, b := startedDetector(t, p)

	p.set(500)
	b.Trigger(protocol.EventPause, nil)
	require.Eventually(t, func() bool { return p.count() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, b.named(protocol.EventComplete))
}

// TestDurationRecordedOnce only the first play asks for the duration
func TestDurationRecordedOnce(t *testing.T) {
	p := &positions{duration: 30}
	d, b := startedDetector(t, p)

	b.Trigger(protocol.EventPlay, nil)
	require.Eventually(t, func() bool { return d.Duration() == 30 }, time.Second, time.Millisecond)

	p.mu.Lock()
	p.duration = 90
	p.mu.Unlock()
	b.Trigger(protocol.EventPlay, nil)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, float64(30), d.Duration())
	assert.Equal(t, 0, b.Len(protocol.EventPlay))
}

// TestConnectedOnFirstMessage connected fires for the first message only
func TestConnectedOnFirstMessage(t *testing.T) {
	_, b := startedDetector(t, &positions{})

	b.Trigger(protocol.EventMessage, "initialized")
	b.Trigger(protocol.EventMessage, "video::playing")

	assert.Len(t, b.named(protocol.EventConnected), 1)
	assert.Equal(t, 0, b.Len(protocol.EventMessage))
}

// TestStopForgetsDuration a stopped detector drops its duration and late answers
func TestStopForgetsDuration(t *testing.T) {
	p := &positions{duration: 45}
	d, b := startedDetector(t, p)

	b.Trigger(protocol.EventPlay, nil)
	require.Eventually(t, func() bool { return d.Duration() == 45 }, time.Second, time.Millisecond)

	d.Stop()
	assert.Zero(t, d.Duration())
	assert.Equal(t, 0, b.Len(protocol.EventPause))
}
