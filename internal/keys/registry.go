package keys

import "errors"

// ErrKeyNotFound is returned when no key record exists for an owner.
var ErrKeyNotFound = errors.New("key record not found")

// Registry stores one key record per owner. It is not safe for concurrent
// use; the payments service serializes access.
type Registry struct {
	records map[string]KeyRecord
}

// NewRegistry builds an empty key registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]KeyRecord)}
}

// Put stores record for owner, replacing any previous record.
func (r *Registry) Put(owner string, record KeyRecord) {
	r.records[owner] = record
}

// Get returns the key record for owner.
func (r *Registry) Get(owner string) (KeyRecord, error) {
	record, ok := r.records[owner]
	if !ok {
		return KeyRecord{}, ErrKeyNotFound
	}
	return record, nil
}

// Snapshot copies every record.
func (r *Registry) Snapshot() map[string]KeyRecord {
	out := make(map[string]KeyRecord, len(r.records))
	for owner, record := range r.records {
		out[owner] = record
	}
	return out
}

// Restore replaces the registry contents with records.
func (r *Registry) Restore(records map[string]KeyRecord) {
	r.records = make(map[string]KeyRecord, len(records))
	for owner, record := range records {
		r.records[owner] = record
	}
}
