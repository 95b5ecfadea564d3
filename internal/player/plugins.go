package player

import (
	"sync"

	"github.com/samber/lo"

	"github.com/twincitiespublictelevision/pbs-partner/internal/control"
)

// Plugin is whatever a Factory builds. A Plugin that implements io.Closer is
// closed when its player detaches.
type Plugin any

// Factory builds a plugin bound to the control API of one attachment.
type Factory func(api *control.API) (Plugin, error)

type registration struct {
	name    string
	factory Factory
}

// registry is shared by every Player in the process and read on each Attach.
var registry struct {
	sync.RWMutex
	entries []registration
}

// AddPlugin registers factory under name for every future attachment.
// Registering a name again replaces its factory but keeps its position.
func AddPlugin(name string, factory Factory) {
	registry.Lock()
	defer registry.Unlock()
	for i, r := range registry.entries {
		if r.name == name {
			registry.entries[i].factory = factory
			return
		}
	}
	registry.entries = append(registry.entries, registration{name: name, factory: factory})
}

// ResetPlugins empties the registry.
func ResetPlugins() {
	registry.Lock()
	registry.entries = nil
	registry.Unlock()
}

// Plugins lists the registered names in boot order.
func Plugins() []string {
	registry.RLock()
	defer registry.RUnlock()
	return lo.Map(registry.entries, func(r registration, _ int) string { return r.name })
}

func registered() []registration {
	registry.RLock()
	defer registry.RUnlock()
	out := make([]registration, len(registry.entries))
	copy(out, registry.entries)
	return out
}
