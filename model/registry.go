package model

import (
	"fmt"
	"sort"
	"sync"
)

// Backend builds a model from an opaque option map. Framework bindings
// register themselves at init time, database/sql style, so this module
// never links against a specific runtime. The returned handle exposes
// whichever of Trainable, Decoder, Posterior and FeatureSource the
// backend supports; callers assert for the surfaces they need.
type Backend interface {
	Open(options map[string]any) (any, error)
}

var (
	backendsMu sync.RWMutex
	backends   = map[string]Backend{}
)

// Register makes a backend available under the given name. It panics on
// a duplicate registration, which is always a programming error.
func Register(name string, b Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if _, dup := backends[name]; dup {
		panic("model: Register called twice for backend " + name)
	}
	backends[name] = b
}

// Open builds a model through a registered backend.
func Open(name string, options map[string]any) (any, error) {
	backendsMu.RLock()
	b, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("model: unknown backend %q (registered: %v)", name, Backends())
	}
	return b.Open(options)
}

// Backends lists the registered backend names.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
