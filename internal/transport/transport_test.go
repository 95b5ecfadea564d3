package transport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twincitiespublictelevision/pbs-partner/internal/dom"
	"github.com/twincitiespublictelevision/pbs-partner/internal/dom/domtest"
	"github.com/twincitiespublictelevision/pbs-partner/internal/events"
	"github.com/twincitiespublictelevision/pbs-partner/internal/protocol"
)

func connected(t *testing.T) (*Transport, *domtest.Peer) {
	t.Helper()
	peer := domtest.NewPeer("test")
	tr := New()
	tr.Connect(peer.Global, peer.Frame)
	return tr, peer
}

func record(tr *Transport, names ...string) *[]events.Event {
	var got []events.Event
	for _, name := range names {
		tr.Bind(name, func(ev events.Event) { got = append(got, ev) })
	}
	return &got
}

// TestSendNoResponse commands the player never answers resolve right away
func TestSendNoResponse(t *testing.T) {
	tr, peer := connected(t)

	msg, err := tr.Send(context.Background(), protocol.CmdSetCurrentTime, 3)
	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.Equal(t, []string{"setCurrentTime::3"}, peer.Posts())
	assert.Equal(t, []string{protocol.TrustedOrigin}, peer.Origins())
	assert.Equal(t, 0, tr.Pending())
}

// TestSendRoundTrip responses resolve the matching request with the decoded value
func TestSendRoundTrip(t *testing.T) {
	cases := map[string]any{
		"23":    float64(23),
		"true":  true,
		"hello": "hello",
	}
	for raw, want := range cases {
		tr, peer := connected(t)
		peer.Reply(protocol.CmdCurrentTime, raw)

		msg, err := tr.Send(context.Background(), protocol.CmdCurrentTime, nil)
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.Equal(t, protocol.CmdCurrentTime, msg.Name)
		assert.Equal(t, want, msg.Parsed(), raw)
		assert.Equal(t, 0, tr.Pending())
	}
}

// TestSendIgnoresOtherResponses only a message with the same command name resolves a request
func TestSendIgnoresOtherResponses(t *testing.T) {
	tr, peer := connected(t)

	done := make(chan *protocol.Message, 1)
	go func() {
		msg, _ := tr.Send(context.Background(), protocol.CmdDuration, nil)
		done <- msg
	}()

	require.Eventually(t, func() bool { return tr.Pending() == 1 }, time.Second, time.Millisecond)
	peer.Emit("currentTime::5")
	peer.EmitFrom("https://evil.example", peer.Window, "duration::1")

	select {
	case <-done:
		t.Fatal("request resolved by an unrelated message")
	case <-time.After(20 * time.Millisecond):
	}

	peer.Emit("duration::90")
	select {
	case msg := <-done:
		require.NotNil(t, msg)
		assert.Equal(t, float64(90), msg.Parsed())
	case <-time.After(time.Second):
		t.Fatal("request never resolved")
	}
}

// TestSendNotConnected sending without a player fails without posting
func TestSendNotConnected(t *testing.T) {
	tr := New()
	_, err := tr.Send(context.Background(), protocol.CmdPlay, nil)
	assert.ErrorIs(t, err, ErrNotConnected)

	peer := domtest.NewPeer("test")
	unloaded := dom.NewFrame("player", "#player", nil)
	tr.Connect(peer.Global, unloaded)
	_, err = tr.Send(context.Background(), protocol.CmdPlay, nil)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, peer.Posts())
	assert.False(t, tr.Connected())
}

// TestGetResponseDefaults failures of any kind resolve to the default
func TestGetResponseDefaults(t *testing.T) {
	assert.Equal(t, 7, New().GetResponse(context.Background(), protocol.CmdDuration, 7))

	tr, peer := connected(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Equal(t, false, tr.GetResponse(ctx, protocol.CmdMuted, false))
	assert.Equal(t, 0, tr.Pending())

	peer.Reply(protocol.CmdDuration, "null")
	assert.Equal(t, 0, tr.GetResponse(context.Background(), protocol.CmdDuration, 0))

	peer.Reply(protocol.CmdDuration, "61.5")
	assert.Equal(t, 61.5, tr.GetResponse(context.Background(), protocol.CmdDuration, 0))
}

// TestInboundTranslation valid messages fire message then the mapped event
func TestInboundTranslation(t *testing.T) {
	tr, peer := connected(t)
	got := record(tr, protocol.EventMessage, protocol.EventPlay, protocol.EventPosition, protocol.EventError)

	peer.Emit("video::playing")
	peer.Emit("currentTime::12")
	peer.Emit("error")
	peer.Emit("unknown::thing")

	names := make([]string, 0, len(*got))
	for _, ev := range *got {
		names = append(names, ev.Name)
	}
	assert.Equal(t, []string{
		"message", "play",
		"message", "position",
		"message", "error",
		"message",
	}, names)
	assert.Equal(t, float64(12), (*got)[3].Value)
}

// TestUntrustedMessagesIgnored foreign origins and sources never reach handlers
func TestUntrustedMessagesIgnored(t *testing.T) {
	tr, peer := connected(t)
	got := record(tr, protocol.EventMessage, protocol.EventPlay)

	peer.EmitFrom("https://evil.example", peer.Window, "video::playing")
	peer.EmitFrom(protocol.TrustedOrigin, dom.NewFrameWindow(nil), "video::playing")
	peer.EmitFrom(protocol.TrustedOrigin, peer.Global, "video::playing")

	assert.Empty(t, *got)
	incoming, _ := tr.History()
	assert.Empty(t, incoming)
}

// TestHistoryBounded both histories keep the 25 most recent entries
func TestHistoryBounded(t *testing.T) {
	tr, peer := connected(t)
	for i := 0; i < 30; i++ {
		peer.Emit(fmt.Sprintf("currentTime::%d", i))
		_, err := tr.Send(context.Background(), protocol.CmdSetCurrentTime, i)
		require.NoError(t, err)
	}

	incoming, outgoing := tr.History()
	require.Len(t, incoming, 25)
	require.Len(t, outgoing, 25)
	assert.Equal(t, "currentTime::5", incoming[0])
	assert.Equal(t, "setCurrentTime::29", outgoing[24])
}

// TestCleanup destroy fires, waiters are released and later messages are ignored
func TestCleanup(t *testing.T) {
	tr, peer := connected(t)
	got := record(tr, protocol.EventDestroy, protocol.EventPlay, protocol.EventMessage)

	errs := make(chan error, 1)
	go func() {
		_, err := tr.Send(context.Background(), protocol.CmdDuration, nil)
		errs <- err
	}()
	require.Eventually(t, func() bool { return tr.Pending() == 1 }, time.Second, time.Millisecond)

	tr.Cleanup()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("pending request not released")
	}

	peer.Emit("video::playing")
	peer.Emit("duration::10")

	require.Len(t, *got, 1)
	assert.Equal(t, protocol.EventDestroy, (*got)[0].Name)
	assert.Equal(t, 0, peer.Global.ListenerCount(dom.TypeMessage))
	assert.False(t, tr.Connected())
}

// TestCleanupUnconnected cleaning up a transport that never connected fires nothing
func TestCleanupUnconnected(t *testing.T) {
	tr := New()
	got := record(tr, protocol.EventDestroy)
	tr.Cleanup()
	assert.Empty(t, *got)
}

// TestReconnectReplacesListener connecting twice never dispatches twice
func TestReconnectReplacesListener(t *testing.T) {
	tr, peer := connected(t)
	tr.Connect(peer.Global, peer.Frame)
	got := record(tr, protocol.EventPlay)

	peer.Emit("video::playing")

	assert.Len(t, *got, 1)
	assert.Equal(t, 1, peer.Global.ListenerCount(dom.TypeMessage))
}

// TestCustomOrigin a configured origin replaces the pinned one both ways
func TestCustomOrigin(t *testing.T) {
	peer := domtest.NewPeer("test")
	tr := New(WithOrigin("https://player.example"))
	tr.Connect(peer.Global, peer.Frame)
	got := record(tr, protocol.EventPlay)

	peer.Emit("video::playing")
	peer.EmitFrom("https://player.example", peer.Window, "video::playing")
	_, err := tr.Send(context.Background(), protocol.CmdPlay, nil)
	require.NoError(t, err)

	assert.Len(t, *got, 1)
	assert.Equal(t, []string{"https://player.example"}, peer.Origins())
}
