package snapshot

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu      sync.RWMutex
	payload []byte
}

// NewMemoryStore keeps the latest snapshot in process memory. Useful for
// development and tests.
func NewMemoryStore() Store {
	return &memoryStore{}
}

func (s *memoryStore) Save(_ context.Context, state State) error {
	payload, err := Encode(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = payload
	return nil
}

func (s *memoryStore) Load(_ context.Context) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.payload == nil {
		return State{}, ErrNoSnapshot
	}
	return Decode(s.payload)
}
