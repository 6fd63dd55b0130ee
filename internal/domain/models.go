package domain

import "time"

// Category is a trivia category as listed by the remote source.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// QuestionRecord is the raw question payload at the fetch boundary.
type QuestionRecord struct {
	Type             string   `json:"type"`
	Difficulty       string   `json:"difficulty"`
	Category         string   `json:"category"`
	Question         string   `json:"question" validate:"required"`
	CorrectAnswer    string   `json:"correct_answer" validate:"required"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

// Question is a normalized question owned by a quiz session.
// AllAnswers is shuffled once at creation and never reordered afterwards.
type Question struct {
	Text           string   `json:"text"`
	CorrectAnswer  string   `json:"correctAnswer"`
	AllAnswers     []string `json:"allAnswers"`
	Completed      bool     `json:"completed"`
	SelectedAnswer string   `json:"selectedAnswer,omitempty"`
	Difficulty     string   `json:"difficulty,omitempty"`
	Category       string   `json:"category,omitempty"`
}

// Clone returns a deep copy so callers cannot alias session state.
func (q Question) Clone() Question {
	q.AllAnswers = append([]string(nil), q.AllAnswers...)
	return q
}

// Reset clears answer state, keeping text and answer order.
func (q Question) Reset() Question {
	q = q.Clone()
	q.Completed = false
	q.SelectedAnswer = ""
	return q
}

// CloneQuestions deep-copies a question batch.
func CloneQuestions(questions []Question) []Question {
	if questions == nil {
		return nil
	}
	out := make([]Question, len(questions))
	for i, q := range questions {
		out[i] = q.Clone()
	}
	return out
}

// CacheSlot is the single persisted question batch, keyed by category.
type CacheSlot struct {
	CategoryID  int        `json:"categoryId"`
	HasCategory bool       `json:"hasCategory"`
	Questions   []Question `json:"questions"`
}

// ScoreRecord is the cumulative answer tally. The zero value means "no answers yet".
type ScoreRecord struct {
	TotalAnswers     int `json:"totalAnswers"`
	CorrectAnswers   int `json:"correctAnswers"`
	IncorrectAnswers int `json:"incorrectAnswers"`
}

// Apply returns the record after one more answer.
func (r ScoreRecord) Apply(correct bool) ScoreRecord {
	r.TotalAnswers++
	if correct {
		r.CorrectAnswers++
	} else {
		r.IncorrectAnswers++
	}
	return r
}

// Consistent reports whether the total equals correct plus incorrect.
func (r ScoreRecord) Consistent() bool {
	return r.TotalAnswers >= 0 && r.CorrectAnswers >= 0 && r.IncorrectAnswers >= 0 &&
		r.TotalAnswers == r.CorrectAnswers+r.IncorrectAnswers
}

// Phase is the lifecycle state of a quiz session.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseLoading  Phase = "loading"
	PhaseReady    Phase = "ready"
	PhaseFinished Phase = "finished"
)

// SessionView is a read-only snapshot of the active quiz session.
type SessionView struct {
	SessionID    string     `json:"sessionId"`
	CategoryID   int        `json:"categoryId"`
	Phase        Phase      `json:"phase"`
	CurrentIndex int        `json:"currentIndex"`
	Questions    []Question `json:"questions"`
}

// AnswerOutcome summarizes one answer selection.
// Accepted is false when the question was already answered and the call was ignored.
type AnswerOutcome struct {
	QuestionIndex int         `json:"questionIndex"`
	Answer        string      `json:"answer"`
	Correct       bool        `json:"correct"`
	Accepted      bool        `json:"accepted"`
	CorrectAnswer string      `json:"correctAnswer"`
	Score         ScoreRecord `json:"score"`
}

// AdvanceResult reports the position after an advance.
type AdvanceResult struct {
	CurrentIndex int  `json:"currentIndex"`
	Finished     bool `json:"finished"`
}

// EventType names an engine event surfaced to the presentation layer.
type EventType string

const (
	EventQuestionsReady   EventType = "questions.ready"
	EventRateLimited      EventType = "fetch.rate_limited"
	EventFetchFailed      EventType = "fetch.failed"
	EventInvalidResponse  EventType = "fetch.invalid_response"
	EventAnswerRecorded   EventType = "answer.recorded"
	EventQuestionAdvanced EventType = "question.advanced"
	EventQuizFinished     EventType = "quiz.finished"
)

// Event is emitted by the quiz engine on every observable state change. Seq increases
// by one per event in the order subscribers receive them.
type Event struct {
	Seq           uint64       `json:"seq"`
	Type          EventType    `json:"type"`
	SessionID     string       `json:"sessionId"`
	CategoryID    int          `json:"categoryId"`
	QuestionIndex int          `json:"questionIndex"`
	Message       string       `json:"message,omitempty"`
	Score         *ScoreRecord `json:"score,omitempty"`
	At            time.Time    `json:"at"`
}

// Durable storage keys shared by every persistent backend.
const (
	CacheKey = "trivia:cache"
	ScoreKey = "trivia:scores"
)
