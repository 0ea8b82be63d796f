package config

import "sync"

// OverrideStore holds runtime key/value overrides set through the CLI or an
// admin surface. Reads vastly outnumber writes; an RWMutex keeps lookups
// cheap under concurrent sessions.
type OverrideStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewOverrideStore returns an empty override store.
func NewOverrideStore() *OverrideStore {
	return &OverrideStore{values: make(map[string]string)}
}

// Set records an override. Setting an empty value removes the key.
func (o *OverrideStore) Set(key, value string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if value == "" {
		delete(o.values, key)
		return
	}
	o.values[key] = value
}

// Get returns the override for key, if present.
func (o *OverrideStore) Get(key string) (string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.values[key]
	return v, ok
}

// Snapshot returns a copy of all current overrides.
func (o *OverrideStore) Snapshot() map[string]string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]string, len(o.values))
	for k, v := range o.values {
		out[k] = v
	}
	return out
}
