package store

import (
	"context"
	"sync"
)

// MemoryMarkerStore keeps meeting markers in process memory. Markers are
// lost on restart; use the Redis store when more than one worker runs.
type MemoryMarkerStore struct {
	mu      sync.Mutex
	markers map[string]int64
	locks   map[string]chan struct{}
}

func NewMemoryMarkerStore() *MemoryMarkerStore {
	return &MemoryMarkerStore{
		markers: make(map[string]int64),
		locks:   make(map[string]chan struct{}),
	}
}

func (s *MemoryMarkerStore) Get(_ context.Context, conversationID string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.markers[conversationID]
	return ts, ok, nil
}

func (s *MemoryMarkerStore) Set(_ context.Context, conversationID string, startTimestamp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[conversationID] = startTimestamp
	return nil
}

func (s *MemoryMarkerStore) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, conversationID)
	return nil
}

// Lock blocks until the conversation's lock is free or ctx is done.
func (s *MemoryMarkerStore) Lock(ctx context.Context, conversationID string) (func(), error) {
	s.mu.Lock()
	ch, ok := s.locks[conversationID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[conversationID] = ch
	}
	s.mu.Unlock()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}
