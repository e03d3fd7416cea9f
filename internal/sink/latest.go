package sink

import (
	"context"
	"sync"

	"github.com/edgecomet/detailwatch/internal/extract"
	"github.com/edgecomet/detailwatch/pkg/types"
)

// LatestStore keeps the most recent accepted result and navigation for readers
// outside the coordinator goroutine.
type LatestStore struct {
	mu         sync.RWMutex
	result     *extract.Result
	navigation *types.NavigationEvent
	accepted   int64
}

func NewLatestStore() *LatestStore {
	return &LatestStore{}
}

func (s *LatestStore) Name() string {
	return "latest"
}

func (s *LatestStore) Publish(_ context.Context, result *extract.Result) error {
	copied := *result

	s.mu.Lock()
	s.result = &copied
	s.accepted++
	s.mu.Unlock()
	return nil
}

func (s *LatestStore) NavigationChanged(_ context.Context, event types.NavigationEvent) error {
	s.mu.Lock()
	s.navigation = &event
	s.mu.Unlock()
	return nil
}

// Restore seeds the store with a result stored by an earlier run. It is
// ignored once a result has been published and does not count as accepted.
func (s *LatestStore) Restore(result *extract.Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result != nil || result == nil {
		return false
	}
	copied := *result
	s.result = &copied
	return true
}

// Latest returns a copy of the most recent accepted result
func (s *LatestStore) Latest() (extract.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return extract.Result{}, false
	}
	return *s.result, true
}

// LastNavigation returns the most recent navigation event
func (s *LatestStore) LastNavigation() (types.NavigationEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.navigation == nil {
		return types.NavigationEvent{}, false
	}
	return *s.navigation, true
}

// Accepted is the number of results published since start
func (s *LatestStore) Accepted() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accepted
}

func (s *LatestStore) Close() error {
	return nil
}
