package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestQuerySelector frames resolve by id or by registered selector
func TestQuerySelector(t *testing.T) {
	g := NewGlobal("test")
	f := NewFrame("player", "iframe.pbs", NewFrameWindow(nil))
	g.AddFrame(f)

	assert.Equal(t, Element(f), g.QuerySelector("#player"))
	assert.Equal(t, Element(f), g.QuerySelector("iframe.pbs"))
	assert.Nil(t, g.QuerySelector("#missing"))
}

// TestFrameWithoutWindow an unloaded frame reports a nil content window
func TestFrameWithoutWindow(t *testing.T) {
	f := NewFrame("player", "#player", nil)
	assert.Nil(t, f.ContentWindow())
}

// TestListenersAreUnique adding the same listener twice registers it once
func TestListenersAreUnique(t *testing.T) {
	g := NewGlobal("test")
	count := 0
	l := NewListener(func(Event) { count++ })
	g.AddEventListener(TypeMessage, l)
	g.AddEventListener(TypeMessage, l)

	g.DispatchEvent(Event{Type: TypeMessage})
	assert.Equal(t, 1, count)

	g.RemoveEventListener(TypeMessage, l)
	g.DispatchEvent(Event{Type: TypeMessage})
	assert.Equal(t, 1, count)
	assert.Equal(t, 0, g.ListenerCount(TypeMessage))
}

// TestFrameWindowPosts posting to a frame reaches its poster
func TestFrameWindowPosts(t *testing.T) {
	var got []string
	w := NewFrameWindow(func(message, origin string) error {
		got = append(got, message+"@"+origin)
		return nil
	})

	require.NoError(t, w.PostMessage("play", "https://player.pbs.org"))
	assert.Equal(t, []string{"play@https://player.pbs.org"}, got)
}

// TestAddFrameReplaces re-registering an id swaps the element
func TestAddFrameReplaces(t *testing.T) {
	g := NewGlobal("test")
	g.AddFrame(NewFrame("player", "#player", nil))
	loaded := NewFrame("player", "#player", NewFrameWindow(nil))
	g.AddFrame(loaded)

	f, ok := g.Frame("player")
	require.True(t, ok)
	assert.Same(t, loaded, f)

	g.RemoveFrame("player")
	_, ok = g.Frame("player")
	assert.False(t, ok)
}
