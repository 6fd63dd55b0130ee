package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"trivia-quiz-service/internal/domain"
)

// SlotStore keeps the cache slot as a JSON string: SET trivia:cache {slot} EX ttl.
// A zero ttl keeps the key forever.
type SlotStore struct {
	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSlotStore(client *redis.Client, ttl time.Duration) *SlotStore {
	return &SlotStore{
		client: client,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *SlotStore) LoadSlot(ctx context.Context) (domain.CacheSlot, bool, error) {
	// Concurrent restores share one round trip.
	result, err, _ := s.sf.Do(domain.CacheKey, func() (interface{}, error) {
		raw, err := s.client.Get(ctx, domain.CacheKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("redis get %s: %w", domain.CacheKey, err)
		}
		var slot domain.CacheSlot
		if err := json.Unmarshal(raw, &slot); err != nil {
			return nil, fmt.Errorf("decode cache slot: %w", err)
		}
		return &slot, nil
	})
	if err != nil {
		return domain.CacheSlot{}, false, err
	}
	slot, _ := result.(*domain.CacheSlot)
	if slot == nil {
		return domain.CacheSlot{}, false, nil
	}
	out := *slot
	out.Questions = domain.CloneQuestions(slot.Questions)
	return out, true, nil
}

func (s *SlotStore) SaveSlot(ctx context.Context, slot domain.CacheSlot) error {
	raw, err := json.Marshal(slot)
	if err != nil {
		return fmt.Errorf("encode cache slot: %w", err)
	}
	if err := s.client.Set(ctx, domain.CacheKey, raw, s.ttlWithJitter()).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", domain.CacheKey, err)
	}
	return nil
}

func (s *SlotStore) DeleteSlot(ctx context.Context) error {
	if err := s.client.Del(ctx, domain.CacheKey).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", domain.CacheKey, err)
	}
	return nil
}

// ttlWithJitter spreads expiries by up to 10% of the ttl.
func (s *SlotStore) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	jitterMax := int64(s.ttl) / 10
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}
