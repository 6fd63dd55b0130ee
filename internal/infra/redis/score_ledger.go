package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"trivia-quiz-service/internal/domain"
)

// Hash fields under trivia:scores.
const (
	fieldTotal     = "total"
	fieldCorrect   = "correct"
	fieldIncorrect = "incorrect"
)

// ScoreLedger stores the cumulative score as a hash and increments it atomically
// with MULTI/EXEC, so concurrent writers from several processes never lose an answer.
type ScoreLedger struct {
	client *redis.Client
}

func NewScoreLedger(client *redis.Client) *ScoreLedger {
	return &ScoreLedger{client: client}
}

func (l *ScoreLedger) Get(ctx context.Context) (domain.ScoreRecord, error) {
	values, err := l.client.HGetAll(ctx, domain.ScoreKey).Result()
	if err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("redis hgetall %s: %w", domain.ScoreKey, err)
	}
	if len(values) == 0 {
		return domain.ScoreRecord{}, nil
	}
	return parseRecord(values)
}

func (l *ScoreLedger) Increment(ctx context.Context, correct bool) (domain.ScoreRecord, error) {
	field := fieldIncorrect
	if correct {
		field = fieldCorrect
	}

	var all *redis.MapStringStringCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, domain.ScoreKey, fieldTotal, 1)
		pipe.HIncrBy(ctx, domain.ScoreKey, field, 1)
		all = pipe.HGetAll(ctx, domain.ScoreKey)
		return nil
	})
	if err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("redis increment %s: %w", domain.ScoreKey, err)
	}
	return parseRecord(all.Val())
}

func (l *ScoreLedger) Reset(ctx context.Context) error {
	if err := l.client.Del(ctx, domain.ScoreKey).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", domain.ScoreKey, err)
	}
	return nil
}

func parseRecord(values map[string]string) (domain.ScoreRecord, error) {
	var record domain.ScoreRecord
	for field, dst := range map[string]*int{
		fieldTotal:     &record.TotalAnswers,
		fieldCorrect:   &record.CorrectAnswers,
		fieldIncorrect: &record.IncorrectAnswers,
	} {
		raw, ok := values[field]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return domain.ScoreRecord{}, fmt.Errorf("parse score field %s: %w", field, err)
		}
		*dst = n
	}
	return record, nil
}
