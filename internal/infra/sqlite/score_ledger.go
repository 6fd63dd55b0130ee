package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"trivia-quiz-service/internal/domain"
)

// ScoreLedger persists the cumulative score as JSON under trivia:scores.
type ScoreLedger struct {
	store *Store
}

func (l *ScoreLedger) Get(ctx context.Context) (domain.ScoreRecord, error) {
	return readScore(ctx, l.store.db)
}

// Increment reads, applies and writes the record in one transaction.
func (l *ScoreLedger) Increment(ctx context.Context, correct bool) (domain.ScoreRecord, error) {
	tx, err := l.store.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ScoreRecord{}, err
	}
	defer tx.Rollback()

	current, err := readScore(ctx, tx)
	if err != nil {
		return domain.ScoreRecord{}, err
	}
	next := current.Apply(correct)

	raw, err := json.Marshal(next)
	if err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("encode score: %w", err)
	}
	if err := putValue(ctx, tx, domain.ScoreKey, string(raw)); err != nil {
		return domain.ScoreRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ScoreRecord{}, err
	}
	return next, nil
}

func (l *ScoreLedger) Reset(ctx context.Context) error {
	return deleteValue(ctx, l.store.db, domain.ScoreKey)
}

func readScore(ctx context.Context, q queryer) (domain.ScoreRecord, error) {
	raw, ok, err := getValue(ctx, q, domain.ScoreKey)
	if err != nil || !ok {
		return domain.ScoreRecord{}, err
	}
	var record domain.ScoreRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("decode score: %w", err)
	}
	return record, nil
}
