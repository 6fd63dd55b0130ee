package app_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/domain"
	"trivia-quiz-service/internal/infra/memory"
)

// stubFetcher returns canned records and counts calls. When block is set, each call waits
// for it to close or for the context to end.
type stubFetcher struct {
	mu      sync.Mutex
	calls   int
	records []domain.QuestionRecord
	err     error
	block   chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (f *stubFetcher) FetchQuestions(ctx context.Context, amount int, categoryID int) ([]domain.QuestionRecord, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	records, err := f.records, f.err
	f.mu.Unlock()

	if f.entered != nil {
		f.once.Do(func() { close(f.entered) })
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, domain.NewFetchError("fetch questions", 0, ctx.Err())
		}
	}
	return records, err
}

func (f *stubFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeScheduler captures auto-advance timers so tests decide when they fire.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	mu      sync.Mutex
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) app.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Fire runs timer i as the runtime would, unless it was stopped.
func (s *fakeScheduler) Fire(i int) bool {
	t := s.timer(i)
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return false
	}
	t.fired = true
	t.mu.Unlock()
	t.f()
	return true
}

// FireStale runs timer i's callback even if it was stopped, as when the callback was
// already scheduled when Stop was called.
func (s *fakeScheduler) FireStale(i int) {
	s.timer(i).f()
}

func (s *fakeScheduler) timer(i int) *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[i]
}

func (s *fakeScheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *fakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		t.mu.Lock()
		if !t.stopped && !t.fired {
			n++
		}
		t.mu.Unlock()
	}
	return n
}

// countingSlotStore counts durable cache writes.
type countingSlotStore struct {
	*memory.SlotStore
	mu    sync.Mutex
	saves int
}

func newCountingSlotStore() *countingSlotStore {
	return &countingSlotStore{SlotStore: memory.NewSlotStore()}
}

func (s *countingSlotStore) SaveSlot(ctx context.Context, slot domain.CacheSlot) error {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	return s.SlotStore.SaveSlot(ctx, slot)
}

func (s *countingSlotStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type failingLedger struct{}

func (failingLedger) Get(context.Context) (domain.ScoreRecord, error) {
	return domain.ScoreRecord{}, errors.New("storage unavailable")
}

func (failingLedger) Increment(context.Context, bool) (domain.ScoreRecord, error) {
	return domain.ScoreRecord{}, errors.New("storage unavailable")
}

func (failingLedger) Reset(context.Context) error {
	return errors.New("storage unavailable")
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type harness struct {
	service   *app.QuizService
	fetcher   *stubFetcher
	cache     *app.QuestionCache
	slots     *countingSlotStore
	ledger    app.ScoreLedger
	scheduler *fakeScheduler
	publisher *recordingPublisher
}

func newHarness(t *testing.T, fetcher *stubFetcher) *harness {
	t.Helper()
	return newHarnessWithLedger(t, fetcher, memory.NewScoreLedger())
}

func newHarnessWithLedger(t *testing.T, fetcher *stubFetcher, ledger app.ScoreLedger) *harness {
	t.Helper()
	slots := newCountingSlotStore()
	cache := app.NewQuestionCache(slots, nil)
	scheduler := &fakeScheduler{}
	publisher := &recordingPublisher{}
	service := app.NewQuizService(fetcher, cache, ledger, app.Options{
		Rand:      rand.New(rand.NewSource(42)),
		AfterFunc: scheduler.AfterFunc,
		Publisher: publisher,
	})
	t.Cleanup(service.Close)
	return &harness{
		service:   service,
		fetcher:   fetcher,
		cache:     cache,
		slots:     slots,
		ledger:    ledger,
		scheduler: scheduler,
		publisher: publisher,
	}
}

func sampleRecords(n int) []domain.QuestionRecord {
	records := make([]domain.QuestionRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, domain.QuestionRecord{
			Type:             "multiple",
			Difficulty:       "easy",
			Category:         "General Knowledge",
			Question:         fmt.Sprintf("Question %d &amp; more", i+1),
			CorrectAnswer:    fmt.Sprintf("Right %d", i+1),
			IncorrectAnswers: []string{"Wrong A", "Wrong B", "Wrong C"},
		})
	}
	return records
}

func waitEvent(t *testing.T, ch <-chan domain.Event, want domain.EventType) domain.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed while waiting for %s", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for event %s", want)
		}
	}
}

// gatedLedger blocks every Increment until release is closed.
type gatedLedger struct {
	*memory.ScoreLedger
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedLedger() *gatedLedger {
	return &gatedLedger{
		ScoreLedger: memory.NewScoreLedger(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (l *gatedLedger) Increment(ctx context.Context, correct bool) (domain.ScoreRecord, error) {
	l.once.Do(func() { close(l.entered) })
	<-l.release
	return l.ScoreLedger.Increment(ctx, correct)
}
