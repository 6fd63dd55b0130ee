package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"trivia-quiz-service/internal/domain"
)

// SlotStore persists the cache slot as JSONB under trivia:cache.
type SlotStore struct {
	store *Store
}

func (s *SlotStore) LoadSlot(ctx context.Context) (domain.CacheSlot, bool, error) {
	raw, ok, err := s.store.get(ctx, domain.CacheKey)
	if err != nil || !ok {
		return domain.CacheSlot{}, false, err
	}
	var slot domain.CacheSlot
	if err := json.Unmarshal(raw, &slot); err != nil {
		return domain.CacheSlot{}, false, fmt.Errorf("unmarshal cache slot: %w", err)
	}
	return slot, true, nil
}

func (s *SlotStore) SaveSlot(ctx context.Context, slot domain.CacheSlot) error {
	raw, err := json.Marshal(slot)
	if err != nil {
		return fmt.Errorf("marshal cache slot: %w", err)
	}
	return s.store.put(ctx, domain.CacheKey, raw)
}

func (s *SlotStore) DeleteSlot(ctx context.Context) error {
	return s.store.delete(ctx, domain.CacheKey)
}
