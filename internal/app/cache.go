package app

import (
	"context"
	"fmt"
	"sync"

	"trivia-quiz-service/internal/domain"
	"trivia-quiz-service/internal/logging"
)

// SlotStore persists the single cache slot outside process memory.
// LoadSlot reports ok=false when nothing has been saved yet.
type SlotStore interface {
	LoadSlot(ctx context.Context) (domain.CacheSlot, bool, error)
	SaveSlot(ctx context.Context, slot domain.CacheSlot) error
	DeleteSlot(ctx context.Context) error
}

// QuestionCache holds the most recently fetched question batch for exactly one category.
// A put for any category replaces the slot; batches are never merged.
type QuestionCache struct {
	store  SlotStore
	logger logging.Logger

	mu      sync.RWMutex
	slot    domain.CacheSlot
	version uint64

	// persistMu orders durable writes. A snapshot older than the last one written is skipped.
	persistMu sync.Mutex
	persisted uint64
}

// slotSnapshot is an in-memory slot state waiting to be written to the durable store.
type slotSnapshot struct {
	slot    domain.CacheSlot
	version uint64
}

// NewQuestionCache returns an empty cache. store may be nil for a memory-only cache.
func NewQuestionCache(store SlotStore, logger logging.Logger) *QuestionCache {
	if logger == nil {
		logger = logging.Nop()
	}
	return &QuestionCache{store: store, logger: logger.With("component", "question_cache")}
}

// Get returns a copy of the cached batch when the slot belongs to categoryID.
func (c *QuestionCache) Get(categoryID int) ([]domain.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.slot.HasCategory || c.slot.CategoryID != categoryID || len(c.slot.Questions) == 0 {
		return nil, false
	}
	return domain.CloneQuestions(c.slot.Questions), true
}

// Put overwrites the slot and mirrors it to the durable store if one is configured.
// The in-memory slot is updated even when persisting fails.
func (c *QuestionCache) Put(ctx context.Context, categoryID int, questions []domain.Question) error {
	return c.persist(ctx, c.stage(categoryID, questions))
}

// stage overwrites the in-memory slot and returns the snapshot to persist.
func (c *QuestionCache) stage(categoryID int, questions []domain.Question) slotSnapshot {
	slot := domain.CacheSlot{
		CategoryID:  categoryID,
		HasCategory: true,
		Questions:   domain.CloneQuestions(questions),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.version++
	c.slot = slot
	return slotSnapshot{slot: slot, version: c.version}
}

// persist writes snap unless a later snapshot already reached the store.
func (c *QuestionCache) persist(ctx context.Context, snap slotSnapshot) error {
	if c.store == nil {
		return nil
	}
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	if snap.version <= c.persisted {
		return nil
	}
	c.persisted = snap.version
	if err := c.store.SaveSlot(ctx, snap.slot); err != nil {
		return fmt.Errorf("persist cache slot: %w", err)
	}
	return nil
}

// Clear empties the slot in memory and in the durable store.
func (c *QuestionCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.version++
	version := c.version
	c.slot = domain.CacheSlot{}
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	c.persisted = version
	if err := c.store.DeleteSlot(ctx); err != nil {
		return fmt.Errorf("delete cache slot: %w", err)
	}
	return nil
}

// Restore loads a previously persisted slot into memory. A missing slot leaves the cache as is.
func (c *QuestionCache) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	slot, ok, err := c.store.LoadSlot(ctx)
	if err != nil {
		return fmt.Errorf("load cache slot: %w", err)
	}
	if !ok {
		return nil
	}

	c.mu.Lock()
	c.version++
	c.slot = domain.CacheSlot{
		CategoryID:  slot.CategoryID,
		HasCategory: slot.HasCategory,
		Questions:   domain.CloneQuestions(slot.Questions),
	}
	c.mu.Unlock()
	c.logger.Debug("cache slot restored", "category", slot.CategoryID, "questions", len(slot.Questions))
	return nil
}
