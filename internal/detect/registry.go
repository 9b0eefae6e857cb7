// SPDX-License-Identifier: MIT

package detect

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the closed set of detectors available to the scheduler.
// Detectors are registered once at startup; the registry is read-only
// afterwards. Adding a capability means declaring a new Kind and registering
// its adapter here, never runtime reflection.
type Registry struct {
	mu        sync.RWMutex
	detectors map[Kind]Detector
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{detectors: make(map[Kind]Detector)}
}

// Register adds a detector. Registering the same kind twice is a wiring bug.
func (r *Registry) Register(d Detector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.detectors[d.Kind()]; dup {
		return fmt.Errorf("detector %q registered twice", d.Kind())
	}
	r.detectors[d.Kind()] = d
	return nil
}

// MustRegister panics on duplicate registration; for startup wiring only.
func (r *Registry) MustRegister(d Detector) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Get returns the detector for kind.
func (r *Registry) Get(kind Kind) (Detector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.detectors[kind]
	return d, ok
}

// Kinds returns the registered kinds in stable order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.detectors))
	for k := range r.detectors {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
