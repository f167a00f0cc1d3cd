package llm

import (
	"fmt"
	"sort"
	"sync"
)

// registeredLoaders holds Loader implementations registered by driver
// name, following the database/sql driver-registration convention: a
// backend package registers itself from an init func, and callers
// select it by name at runtime instead of importing the concrete type.
var (
	loaderMu          sync.RWMutex
	registeredLoaders = map[string]Loader{}
)

// Register makes a Loader available under name. Panics on a duplicate
// or empty name, mirroring database/sql.Register's contract — this is
// a startup-time programming error, not a runtime condition to recover
// from.
func Register(name string, loader Loader) {
	loaderMu.Lock()
	defer loaderMu.Unlock()

	if name == "" {
		panic("llm: Register called with empty name")
	}
	if loader == nil {
		panic("llm: Register called with nil Loader")
	}
	if _, dup := registeredLoaders[name]; dup {
		panic("llm: Register called twice for driver " + name)
	}
	registeredLoaders[name] = loader
}

// Open returns the Loader registered under name. No concrete backend
// ships in this module (the LLM inference backend is an external
// collaborator); a binary that links a backend driver registers it
// from an init func in that driver's package, imported for side effect
// in cmd/governor's main package.
func Open(name string) (Loader, error) {
	loaderMu.RLock()
	defer loaderMu.RUnlock()

	loader, ok := registeredLoaders[name]
	if !ok {
		return nil, fmt.Errorf("llm: unknown backend driver %q (registered: %v)", name, Drivers())
	}
	return loader, nil
}

// Drivers returns the sorted names of all registered backend drivers.
func Drivers() []string {
	loaderMu.RLock()
	defer loaderMu.RUnlock()

	names := make([]string, 0, len(registeredLoaders))
	for name := range registeredLoaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
