package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"trivia-quiz-service/internal/domain"
	"trivia-quiz-service/internal/logging"
)

const (
	DefaultAmount       = 10
	DefaultAdvanceDelay = 1500 * time.Millisecond
)

// QuestionFetcher loads raw question batches from the remote source.
type QuestionFetcher interface {
	FetchQuestions(ctx context.Context, amount int, categoryID int) ([]domain.QuestionRecord, error)
}

// ScoreLedger persists the cumulative score. A missing record reads as the zero record.
type ScoreLedger interface {
	Get(ctx context.Context) (domain.ScoreRecord, error)
	Increment(ctx context.Context, correct bool) (domain.ScoreRecord, error)
	Reset(ctx context.Context) error
}

// EventPublisher forwards engine events beyond in-process subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Timer is a pending one-shot task.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. Swapped out in tests.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Options tunes a QuizService. Zero values pick the defaults.
type Options struct {
	Amount       int
	AdvanceDelay time.Duration
	Logger       logging.Logger
	Publisher    EventPublisher
	Rand         *rand.Rand
	AfterFunc    AfterFunc
	Now          func() time.Time
	NewID        func() string
}

// QuizService drives the single active quiz: loading, answering, auto-advance and scoring.
type QuizService struct {
	fetcher   QuestionFetcher
	cache     *QuestionCache
	ledger    ScoreLedger
	publisher EventPublisher

	amount       int
	advanceDelay time.Duration
	logger       logging.Logger
	rnd          *rand.Rand
	afterFunc    AfterFunc
	now          func() time.Time
	newID        func() string

	mu          sync.Mutex
	session     *session
	pending     Timer
	advanceSeq  uint64
	cancelLoad  context.CancelFunc
	subscribers map[chan domain.Event]struct{}
	eventSeq    uint64

	// ledgerMu keeps increment and reset read-modify-write cycles from interleaving.
	// It is never taken while holding mu.
	ledgerMu sync.Mutex
}

type session struct {
	id               string
	categoryID       int
	phase            domain.Phase
	questions        []domain.Question
	currentIndex     int
	finishedNotified bool
}

func NewQuizService(fetcher QuestionFetcher, cache *QuestionCache, ledger ScoreLedger, opts Options) *QuizService {
	if opts.Amount <= 0 {
		opts.Amount = DefaultAmount
	}
	if opts.AdvanceDelay <= 0 {
		opts.AdvanceDelay = DefaultAdvanceDelay
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = realAfterFunc
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if cache == nil {
		cache = NewQuestionCache(nil, opts.Logger)
	}

	return &QuizService{
		fetcher:      fetcher,
		cache:        cache,
		ledger:       ledger,
		publisher:    opts.Publisher,
		amount:       opts.Amount,
		advanceDelay: opts.AdvanceDelay,
		logger:       opts.Logger.With("component", "quiz_service"),
		rnd:          opts.Rand,
		afterFunc:    opts.AfterFunc,
		now:          opts.Now,
		newID:        opts.NewID,
		session:      &session{phase: domain.PhaseIdle},
		subscribers:  make(map[chan domain.Event]struct{}),
	}
}

// Start opens a quiz for categoryID. A cached batch for the category is reused with
// fresh answer state; otherwise the batch is fetched. While a fetch is in flight any
// further Start or Resume is ignored and returns the current view.
func (s *QuizService) Start(ctx context.Context, categoryID int) (domain.SessionView, error) {
	return s.load(ctx, categoryID, false)
}

// Resume re-enters the quiz view. Cached answer state is kept; a cache miss behaves like Start.
func (s *QuizService) Resume(ctx context.Context, categoryID int) (domain.SessionView, error) {
	if err := callerGone(ctx); err != nil {
		return s.View(), err
	}
	s.mu.Lock()
	cur := s.session
	if cur.phase == domain.PhaseLoading {
		s.logger.WarnContext(ctx, "question load already in flight, resume ignored", "category", categoryID)
		view := s.viewLocked()
		s.mu.Unlock()
		return view, nil
	}
	if cur.categoryID == categoryID && len(cur.questions) > 0 &&
		(cur.phase == domain.PhaseReady || cur.phase == domain.PhaseFinished) {
		view := s.viewLocked()
		s.mu.Unlock()
		return view, nil
	}
	s.mu.Unlock()

	if _, ok := s.cache.Get(categoryID); !ok {
		if err := s.cache.Restore(ctx); err != nil {
			s.logger.WarnContext(ctx, "cache restore failed", "error", err)
		}
	}
	return s.load(ctx, categoryID, true)
}

func (s *QuizService) load(ctx context.Context, categoryID int, keepProgress bool) (domain.SessionView, error) {
	s.mu.Lock()
	if err := callerGone(ctx); err != nil {
		view := s.viewLocked()
		s.mu.Unlock()
		return view, err
	}
	if s.session.phase == domain.PhaseLoading {
		s.logger.WarnContext(ctx, "question load already in flight, start ignored",
			"category", categoryID, "loading_category", s.session.categoryID)
		view := s.viewLocked()
		s.mu.Unlock()
		return view, nil
	}

	s.teardownLocked()
	sess := &session{id: s.newID(), categoryID: categoryID, phase: domain.PhaseIdle}
	s.session = sess

	if cached, ok := s.cache.Get(categoryID); ok {
		snap, staged := s.seedLocked(sess, cached, keepProgress)
		ev := s.emitLocked(domain.EventQuestionsReady, sess, sess.currentIndex, "")
		view := s.viewLocked()
		s.mu.Unlock()
		if staged {
			s.persistSlot(ctx, snap)
		}
		s.logger.InfoContext(ctx, "quiz seeded from cache", "session", sess.id, "category", categoryID, "questions", len(view.Questions))
		s.publishExternal(ctx, ev)
		return view, nil
	}

	sess.phase = domain.PhaseLoading
	loadCtx, cancel := context.WithCancel(ctx)
	s.cancelLoad = cancel
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "fetching questions", "session", sess.id, "category", categoryID, "amount", s.amount)
	records, err := s.fetcher.FetchQuestions(loadCtx, s.amount, categoryID)
	cancel()

	s.mu.Lock()
	if s.session != sess || sess.phase != domain.PhaseLoading {
		view := s.viewLocked()
		s.mu.Unlock()
		s.logger.InfoContext(ctx, "discarding questions for closed session", "session", sess.id, "category", categoryID)
		return view, domain.ErrSessionClosed
	}
	s.cancelLoad = nil

	var questions []domain.Question
	if err == nil {
		questions = domain.BuildQuestions(records, s.rnd)
		if len(questions) == 0 {
			err = domain.ErrInvalidResponse
		}
	}
	if err != nil {
		err = classifyFetchError(err)
		sess.phase = domain.PhaseIdle
		sess.questions = nil
		ev := s.emitLocked(fetchEventType(err), sess, 0, domain.UserMessage(err))
		view := s.viewLocked()
		s.mu.Unlock()
		s.logger.WarnContext(ctx, "question load failed", "session", sess.id, "category", categoryID,
			"kind", domain.ErrorKind(err), "error", err)
		s.publishExternal(ctx, ev)
		return view, err
	}

	snap := s.cache.stage(categoryID, questions)
	sess.questions = questions
	sess.currentIndex = 0
	sess.phase = domain.PhaseReady
	ev := s.emitLocked(domain.EventQuestionsReady, sess, 0, "")
	view := s.viewLocked()
	s.mu.Unlock()

	s.persistSlot(ctx, snap)

	s.logger.InfoContext(ctx, "quiz ready", "session", sess.id, "category", categoryID, "questions", len(questions))
	s.publishExternal(ctx, ev)
	return view, nil
}

// seedLocked fills sess from a cached batch. A fresh start clears the answer state and
// returns the slot snapshot that must be persisted once the lock is released.
func (s *QuizService) seedLocked(sess *session, cached []domain.Question, keepProgress bool) (slotSnapshot, bool) {
	sess.questions = cached
	sess.currentIndex = 0
	sess.phase = domain.PhaseReady

	if !keepProgress {
		for i := range sess.questions {
			sess.questions[i] = sess.questions[i].Reset()
		}
		return s.cache.stage(sess.categoryID, sess.questions), true
	}

	sess.currentIndex = len(sess.questions) - 1
	for i, q := range sess.questions {
		if !q.Completed {
			sess.currentIndex = i
			return slotSnapshot{}, false
		}
	}
	sess.phase = domain.PhaseFinished
	sess.finishedNotified = true
	return slotSnapshot{}, false
}

func (s *QuizService) persistSlot(ctx context.Context, snap slotSnapshot) {
	if err := s.cache.persist(ctx, snap); err != nil {
		s.logger.WarnContext(ctx, "cache write failed", "category", snap.slot.CategoryID, "error", err)
	}
}

// SelectAnswer records the first answer for a question; later calls for the same
// question change nothing. A recorded answer is scored and arms the auto-advance timer,
// replacing any pending one. Score and cache writes happen after the session lock is released.
func (s *QuizService) SelectAnswer(ctx context.Context, questionIndex int, answer string) (domain.AnswerOutcome, error) {
	s.mu.Lock()
	if err := callerGone(ctx); err != nil {
		s.mu.Unlock()
		return domain.AnswerOutcome{}, err
	}
	sess := s.session
	if len(sess.questions) == 0 || (sess.phase != domain.PhaseReady && sess.phase != domain.PhaseFinished) {
		s.mu.Unlock()
		return domain.AnswerOutcome{}, domain.ErrNoActiveQuiz
	}
	if questionIndex < 0 || questionIndex >= len(sess.questions) {
		s.mu.Unlock()
		return domain.AnswerOutcome{}, domain.ErrQuestionNotFound
	}

	q := &sess.questions[questionIndex]
	if q.Completed {
		outcome := domain.AnswerOutcome{
			QuestionIndex: questionIndex,
			Answer:        q.SelectedAnswer,
			Correct:       domain.AnswersMatch(q.SelectedAnswer, q.CorrectAnswer),
			Accepted:      false,
			CorrectAnswer: q.CorrectAnswer,
		}
		s.mu.Unlock()
		s.logger.DebugContext(ctx, "answer ignored, question already completed", "session", sess.id, "question", questionIndex)
		return outcome, nil
	}

	q.Completed = true
	q.SelectedAnswer = answer
	correct := domain.AnswersMatch(answer, q.CorrectAnswer)
	correctAnswer := q.CorrectAnswer
	snap := s.cache.stage(sess.categoryID, sess.questions)
	s.armAdvanceLocked(sess)
	s.mu.Unlock()

	score := s.increment(ctx, correct)
	s.persistSlot(ctx, snap)

	s.mu.Lock()
	ev := s.newEvent(domain.EventAnswerRecorded, sess, questionIndex, "")
	ev.Score = &score
	s.broadcastLocked(ev)
	s.mu.Unlock()

	outcome := domain.AnswerOutcome{
		QuestionIndex: questionIndex,
		Answer:        answer,
		Correct:       correct,
		Accepted:      true,
		CorrectAnswer: correctAnswer,
		Score:         score,
	}

	s.logger.InfoContext(ctx, "answer recorded", "session", sess.id, "question", questionIndex, "correct", correct)
	s.publishExternal(ctx, ev)
	return outcome, nil
}

// Advance moves to the next question, cancelling any pending auto-advance. On the last
// question it reports Finished, and keeps doing so on every further call.
func (s *QuizService) Advance(ctx context.Context) (domain.AdvanceResult, error) {
	s.mu.Lock()
	if len(s.session.questions) == 0 {
		s.mu.Unlock()
		return domain.AdvanceResult{}, domain.ErrNoActiveQuiz
	}
	s.stopTimerLocked()
	result, events := s.advanceLocked()
	s.mu.Unlock()

	s.publishExternal(ctx, events...)
	return result, nil
}

func (s *QuizService) advanceLocked() (domain.AdvanceResult, []domain.Event) {
	sess := s.session
	if sess.currentIndex < len(sess.questions)-1 {
		sess.currentIndex++
		sess.phase = domain.PhaseReady
		ev := s.emitLocked(domain.EventQuestionAdvanced, sess, sess.currentIndex, "")
		return domain.AdvanceResult{CurrentIndex: sess.currentIndex}, []domain.Event{ev}
	}

	sess.phase = domain.PhaseFinished
	result := domain.AdvanceResult{CurrentIndex: sess.currentIndex, Finished: true}
	if sess.finishedNotified {
		return result, nil
	}
	sess.finishedNotified = true
	s.logger.Info("quiz finished", "session", sess.id, "category", sess.categoryID)
	return result, []domain.Event{s.emitLocked(domain.EventQuizFinished, sess, sess.currentIndex, domain.FinishedMessage)}
}

func (s *QuizService) armAdvanceLocked(sess *session) {
	s.stopTimerLocked()
	seq := s.advanceSeq
	id := sess.id
	s.pending = s.afterFunc(s.advanceDelay, func() {
		s.onAdvanceTimer(id, seq)
	})
}

// stopTimerLocked cancels the pending timer and invalidates a callback that already fired
// but has not yet taken the lock.
func (s *QuizService) stopTimerLocked() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.advanceSeq++
}

func (s *QuizService) onAdvanceTimer(sessionID string, seq uint64) {
	s.mu.Lock()
	if s.session.id != sessionID || s.advanceSeq != seq || s.pending == nil {
		s.mu.Unlock()
		s.logger.Debug("stale advance timer ignored", "session", sessionID)
		return
	}
	s.pending = nil
	_, events := s.advanceLocked()
	s.mu.Unlock()

	s.publishExternal(context.Background(), events...)
}

// CancelPendingAdvance drops a scheduled auto-advance, if any.
func (s *QuizService) CancelPendingAdvance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
}

// Close tears the session down when the quiz view goes away: the pending timer and any
// in-flight fetch are cancelled and the engine returns to idle. Progress stays in the cache.
func (s *QuizService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
	s.session = &session{phase: domain.PhaseIdle}
}

func (s *QuizService) teardownLocked() {
	s.stopTimerLocked()
	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}
}

// View returns a snapshot of the active session.
func (s *QuizService) View() domain.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *QuizService) viewLocked() domain.SessionView {
	sess := s.session
	return domain.SessionView{
		SessionID:    sess.id,
		CategoryID:   sess.categoryID,
		Phase:        sess.phase,
		CurrentIndex: sess.currentIndex,
		Questions:    domain.CloneQuestions(sess.questions),
	}
}

// Score reads the persisted score. Storage failures yield the zero record.
func (s *QuizService) Score(ctx context.Context) domain.ScoreRecord {
	record, err := s.ledger.Get(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "score read failed", "error", err)
		return domain.ScoreRecord{}
	}
	return record
}

// ResetScore deletes the persisted score.
func (s *QuizService) ResetScore(ctx context.Context) error {
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()
	if err := s.ledger.Reset(ctx); err != nil {
		s.logger.ErrorContext(ctx, "score reset failed", "error", err)
		return err
	}
	s.logger.InfoContext(ctx, "score reset")
	return nil
}

func (s *QuizService) increment(ctx context.Context, correct bool) domain.ScoreRecord {
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()
	record, err := s.ledger.Increment(ctx, correct)
	if err != nil {
		s.logger.ErrorContext(ctx, "score increment failed", "correct", correct, "error", err)
		return domain.ScoreRecord{}
	}
	return record
}

// callerGone rejects commands whose caller has already gone away, so nothing queued
// behind a closed view can reopen or score a session.
func callerGone(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSessionClosed, err)
	}
	return nil
}

func classifyFetchError(err error) error {
	if errors.Is(err, domain.ErrRateLimited) ||
		errors.Is(err, domain.ErrInvalidResponse) ||
		errors.Is(err, domain.ErrFetchFailed) {
		return err
	}
	return domain.NewFetchError("fetch questions", 0, err)
}

func fetchEventType(err error) domain.EventType {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return domain.EventRateLimited
	case errors.Is(err, domain.ErrInvalidResponse):
		return domain.EventInvalidResponse
	default:
		return domain.EventFetchFailed
	}
}
