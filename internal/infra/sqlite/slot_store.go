package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"trivia-quiz-service/internal/domain"
)

// SlotStore persists the cache slot as JSON under trivia:cache.
type SlotStore struct {
	store *Store
}

func (s *SlotStore) LoadSlot(ctx context.Context) (domain.CacheSlot, bool, error) {
	raw, ok, err := getValue(ctx, s.store.db, domain.CacheKey)
	if err != nil || !ok {
		return domain.CacheSlot{}, false, err
	}
	var slot domain.CacheSlot
	if err := json.Unmarshal([]byte(raw), &slot); err != nil {
		return domain.CacheSlot{}, false, fmt.Errorf("decode cache slot: %w", err)
	}
	return slot, true, nil
}

func (s *SlotStore) SaveSlot(ctx context.Context, slot domain.CacheSlot) error {
	raw, err := json.Marshal(slot)
	if err != nil {
		return fmt.Errorf("encode cache slot: %w", err)
	}
	return putValue(ctx, s.store.db, domain.CacheKey, string(raw))
}

func (s *SlotStore) DeleteSlot(ctx context.Context) error {
	return deleteValue(ctx, s.store.db, domain.CacheKey)
}
