package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned when the question source answers with HTTP 429.
	ErrRateLimited = errors.New("question source rate limited")
	// ErrFetchFailed matches every transport or non-2xx failure (see FetchError).
	ErrFetchFailed = errors.New("question fetch failed")
	// ErrInvalidResponse indicates a malformed or empty question payload.
	ErrInvalidResponse = errors.New("invalid question response")
	// ErrNoActiveQuiz is returned when an answer or advance arrives before questions are loaded.
	ErrNoActiveQuiz = errors.New("no active quiz")
	// ErrQuestionNotFound indicates a question index outside the session.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrSessionClosed is returned when a load completes after its session was torn down.
	ErrSessionClosed = errors.New("quiz session closed")
)

// FetchError carries the underlying cause of a failed fetch.
type FetchError struct {
	Op     string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrFetchFailed) match any FetchError.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}

// NewFetchError wraps cause as a FetchError.
func NewFetchError(op string, status int, cause error) *FetchError {
	return &FetchError{Op: op, Status: status, Err: cause}
}

// UserMessage maps an engine error to the text shown to players.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return "Too many requests. Please wait a moment and try again."
	case errors.Is(err, ErrInvalidResponse):
		return "No questions available for this category. Please try again later."
	case errors.Is(err, ErrNoActiveQuiz):
		return "No quiz is loaded yet."
	case errors.Is(err, ErrQuestionNotFound):
		return "That question does not exist."
	default:
		return "Something went wrong. Please try again."
	}
}

// ErrorKind returns a stable identifier for err, used on the wire.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, ErrFetchFailed):
		return "fetch_failed"
	case errors.Is(err, ErrNoActiveQuiz):
		return "no_active_quiz"
	case errors.Is(err, ErrQuestionNotFound):
		return "question_not_found"
	case errors.Is(err, ErrSessionClosed):
		return "session_closed"
	default:
		return "internal"
	}
}

// FinishedMessage is shown when the last question has been passed.
const FinishedMessage = "Quiz finished"
