package source

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Factory builds an adapter. It runs at discovery time.
type Factory func() (Adapter, error)

// Entry is a discovered, ready adapter.
type Entry struct {
	Name    string
	Adapter Adapter
}

// Registry maps source names to adapter factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Default is the process-wide registry adapter packages register into.
var Default = NewRegistry()

// Register adds f to the Default registry under name.
func Register(name string, f Factory) {
	Default.Register(name, f)
}

// Register adds f under name. It panics on an empty name, a nil factory or a
// duplicate name, like database/sql driver registration.
func (r *Registry) Register(name string, f Factory) {
	if name == "" {
		panic("source: Register with empty name")
	}
	if f == nil {
		panic("source: Register factory is nil for " + name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[name]; dup {
		panic("source: Register called twice for " + name)
	}
	r.factories[name] = f
}

// Names returns the registered source names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Discover builds every registered adapter, sorted by name. When enabled is
// non-empty only those names are considered. A candidate whose factory fails,
// returns nil, or reports not ready is logged and skipped; one bad candidate
// never aborts discovery.
func (r *Registry) Discover(enabled []string, log *slog.Logger) []Entry {
	var entries []Entry
	for _, name := range r.Names() {
		if len(enabled) > 0 && !slices.Contains(enabled, name) {
			log.Debug("source disabled by configuration", "source", name)
			continue
		}

		r.mu.RLock()
		f := r.factories[name]
		r.mu.RUnlock()

		a, err := build(f)
		if err != nil {
			log.Warn("skip source", "source", name, "error", err)
			continue
		}
		if a == nil {
			log.Warn("skip source", "source", name, "error", "factory returned no adapter")
			continue
		}
		if rd, ok := a.(Readiness); ok && !rd.Ready() {
			log.Info("source is not ready", "source", name)
			continue
		}
		entries = append(entries, Entry{Name: name, Adapter: a})
	}

	for _, name := range enabled {
		if !slices.ContainsFunc(entries, func(e Entry) bool { return e.Name == name }) {
			log.Debug("enabled source not available", "source", name)
		}
	}
	return entries
}

func build(f Factory) (a Adapter, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("factory panicked: %v", r)
		}
	}()
	return f()
}
