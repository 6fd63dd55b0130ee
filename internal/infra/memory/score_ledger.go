package memory

import (
	"context"
	"sync"

	"trivia-quiz-service/internal/domain"
)

// ScoreLedger is an in-process app.ScoreLedger.
type ScoreLedger struct {
	mu     sync.Mutex
	record *domain.ScoreRecord
}

func NewScoreLedger() *ScoreLedger {
	return &ScoreLedger{}
}

func (l *ScoreLedger) Get(_ context.Context) (domain.ScoreRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.record == nil {
		return domain.ScoreRecord{}, nil
	}
	return *l.record, nil
}

func (l *ScoreLedger) Increment(_ context.Context, correct bool) (domain.ScoreRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var current domain.ScoreRecord
	if l.record != nil {
		current = *l.record
	}
	next := current.Apply(correct)
	l.record = &next
	return next, nil
}

func (l *ScoreLedger) Reset(_ context.Context) error {
	l.mu.Lock()
	l.record = nil
	l.mu.Unlock()
	return nil
}
