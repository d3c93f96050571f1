package funnel

import (
	"errors"
	"sort"
	"sync"
)

// ErrEmptyKey is returned when mounting a logic without an identifier
var ErrEmptyKey = errors.New("funnel key is required")

// Registry owns the mounted funnel logics, one per key
type Registry struct {
	mu     sync.RWMutex
	logics map[string]*Logic
	build  func(key string) Options
}

// NewRegistry creates a registry; build supplies the options for each newly
// mounted key.
func NewRegistry(build func(key string) Options) *Registry {
	return &Registry{
		logics: make(map[string]*Logic),
		build:  build,
	}
}

// Mount returns the logic for key, creating it on first use. The second
// return value reports whether it was created.
func (r *Registry) Mount(key string) (*Logic, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if logic, ok := r.logics[key]; ok {
		return logic, false, nil
	}
	var opts Options
	if r.build != nil {
		opts = r.build(key)
	}
	logic := NewLogic(key, opts)
	r.logics[key] = logic
	return logic, true, nil
}

// Get returns the logic for key if it is mounted
func (r *Registry) Get(key string) (*Logic, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	logic, ok := r.logics[key]
	return logic, ok
}

// Unmount closes and forgets the logic for key. Loads still in flight for it
// finish as superseded.
func (r *Registry) Unmount(key string) bool {
	r.mu.Lock()
	logic, ok := r.logics[key]
	delete(r.logics, key)
	r.mu.Unlock()

	if ok {
		logic.Close()
	}
	return ok
}

// Keys returns the mounted keys in sorted order
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.logics))
	for key := range r.logics {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
