package memory

import (
	"context"
	"sync"

	"trivia-quiz-service/internal/domain"
)

// SlotStore keeps the cache slot in process memory. It survives navigation but not restarts.
type SlotStore struct {
	mu   sync.RWMutex
	slot *domain.CacheSlot
}

func NewSlotStore() *SlotStore {
	return &SlotStore{}
}

func (s *SlotStore) LoadSlot(_ context.Context) (domain.CacheSlot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.slot == nil {
		return domain.CacheSlot{}, false, nil
	}
	slot := *s.slot
	slot.Questions = domain.CloneQuestions(slot.Questions)
	return slot, true, nil
}

func (s *SlotStore) SaveSlot(_ context.Context, slot domain.CacheSlot) error {
	slot.Questions = domain.CloneQuestions(slot.Questions)
	s.mu.Lock()
	s.slot = &slot
	s.mu.Unlock()
	return nil
}

func (s *SlotStore) DeleteSlot(_ context.Context) error {
	s.mu.Lock()
	s.slot = nil
	s.mu.Unlock()
	return nil
}
