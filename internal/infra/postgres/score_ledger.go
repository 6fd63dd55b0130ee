package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"trivia-quiz-service/internal/domain"
)

// incrementSQL bumps the counters in a single upsert so concurrent writers serialize on the row lock.
const incrementSQL = `
INSERT INTO trivia_kv (key, value, updated_at) VALUES ($1, $2::jsonb, now())
ON CONFLICT (key) DO UPDATE SET
	value = jsonb_build_object(
		'totalAnswers',     COALESCE((trivia_kv.value->>'totalAnswers')::int, 0) + 1,
		'correctAnswers',   COALESCE((trivia_kv.value->>'correctAnswers')::int, 0) + $3::int,
		'incorrectAnswers', COALESCE((trivia_kv.value->>'incorrectAnswers')::int, 0) + $4::int
	),
	updated_at = now()
RETURNING value`

// ScoreLedger persists the cumulative score as JSONB under trivia:scores.
type ScoreLedger struct {
	store *Store
}

func (l *ScoreLedger) Get(ctx context.Context) (domain.ScoreRecord, error) {
	raw, ok, err := l.store.get(ctx, domain.ScoreKey)
	if err != nil || !ok {
		return domain.ScoreRecord{}, err
	}
	return decodeScore(raw)
}

func (l *ScoreLedger) Increment(ctx context.Context, correct bool) (domain.ScoreRecord, error) {
	first, err := json.Marshal(domain.ScoreRecord{}.Apply(correct))
	if err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("marshal score: %w", err)
	}
	correctDelta, incorrectDelta := 0, 1
	if correct {
		correctDelta, incorrectDelta = 1, 0
	}

	var raw []byte
	err = l.store.pool.QueryRow(ctx, incrementSQL, domain.ScoreKey, string(first), correctDelta, incorrectDelta).Scan(&raw)
	if err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("increment score: %w", err)
	}
	return decodeScore(raw)
}

func (l *ScoreLedger) Reset(ctx context.Context) error {
	return l.store.delete(ctx, domain.ScoreKey)
}

func decodeScore(raw []byte) (domain.ScoreRecord, error) {
	var record domain.ScoreRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("unmarshal score: %w", err)
	}
	return record, nil
}
