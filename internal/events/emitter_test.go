package events

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTriggerOrder handlers run in binding order with the triggered value
func TestTriggerOrder(t *testing.T) {
	e := NewEmitter()
	var calls []string
	e.Bind("play", func(ev Event) { calls = append(calls, "a:"+ev.Value.(string)) })
	e.Bind("play", func(ev Event) { calls = append(calls, "b:"+ev.Value.(string)) })
	e.Bind("pause", func(ev Event) { calls = append(calls, "pause") })

	e.Trigger("play", "x")

	assert.Equal(t, []string{"a:x", "b:x"}, calls)
}

// TestDuplicateBindings the same function bound twice runs twice
func TestDuplicateBindings(t *testing.T) {
	e := NewEmitter()
	count := 0
	h := func(Event) { count++ }
	first := e.Bind("play", h)
	e.Bind("play", h)

	e.Trigger("play", nil)
	require.Equal(t, 2, count)

	e.Unbind("play", first)
	e.Trigger("play", nil)
	assert.Equal(t, 3, count)
}

// TestUnbindForms covers the three unbind shapes
func TestUnbindForms(t *testing.T) {
	e := NewEmitter()
	e.Bind("play", func(Event) {})
	e.Bind("play", func(Event) {})
	e.Bind("pause", func(Event) {})

	e.Unbind("play", 0)
	assert.Equal(t, 0, e.Len("play"))
	assert.Equal(t, 1, e.Len("pause"))

	e.Bind("play", func(Event) {})
	e.Unbind("", 0)
	assert.Equal(t, 0, e.Len("play"))
	assert.Equal(t, 0, e.Len("pause"))
}

// TestUnknownEvents triggering or unbinding unknown names is a no-op
func TestUnknownEvents(t *testing.T) {
	e := NewEmitter()
	assert.NotPanics(t, func() {
		e.Trigger("nothing", nil)
		e.Unbind("nothing", 42)
		e.Unbind("nothing", 0)
	})
}

// TestSelfUnbindDuringDispatch a handler removing itself does not stop the rest
func TestSelfUnbindDuringDispatch(t *testing.T) {
	e := NewEmitter()
	var calls []string
	var first HandlerID
	first = e.Bind("play", func(Event) {
		calls = append(calls, "first")
		e.Unbind("play", first)
	})
	e.Bind("play", func(Event) { calls = append(calls, "second") })

	e.Trigger("play", nil)
	e.Trigger("play", nil)

	assert.Equal(t, []string{"first", "second", "second"}, calls)
}

// TestBindDuringDispatch handlers added mid-dispatch wait for the next trigger
func TestBindDuringDispatch(t *testing.T) {
	e := NewEmitter()
	count := 0
	e.Bind("play", func(Event) {
		e.Bind("play", func(Event) { count++ })
	})

	e.Trigger("play", nil)
	assert.Equal(t, 0, count)

	e.Trigger("play", nil)
	assert.Equal(t, 1, count)
}

// TestUnbindOthersDuringDispatch removing a later handler mid-dispatch keeps the snapshot
func TestUnbindOthersDuringDispatch(t *testing.T) {
	e := NewEmitter()
	var calls []string
	var second HandlerID
	e.Bind("play", func(Event) {
		calls = append(calls, "first")
		e.Unbind("play", second)
	})
	second = e.Bind("play", func(Event) { calls = append(calls, "second") })

	e.Trigger("play", nil)
	e.Trigger("play", nil)

	assert.Equal(t, []string{"first", "second", "first"}, calls)
}

// TestTriggerMatchesBindings any bind/unbind sequence leaves exactly the bound handlers, in order
func TestTriggerMatchesBindings(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("trigger invokes the current bindings once each in order", prop.ForAll(
		func(ops []int) bool {
			e := NewEmitter()
			type entry struct {
				id    HandlerID
				label int
			}
			var model []entry
			var got []int

			for i, op := range ops {
				if op%3 != 0 || len(model) == 0 {
					label := i
					id := e.Bind("ev", func(Event) { got = append(got, label) })
					model = append(model, entry{id: id, label: label})
					continue
				}
				idx := (op / 3) % len(model)
				e.Unbind("ev", model[idx].id)
				model = append(model[:idx], model[idx+1:]...)
			}

			e.Trigger("ev", nil)

			if len(got) != len(model) {
				return false
			}
			for i := range model {
				if got[i] != model[i].label {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 99)),
	))

	properties.TestingRun(t)
}
