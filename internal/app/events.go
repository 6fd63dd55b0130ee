package app

import (
	"context"

	"trivia-quiz-service/internal/domain"
)

const subscriberBuffer = 16

// Subscribe returns a channel receiving every engine event from now on.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe() (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, subscriberBuffer)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// emitLocked stamps an event and fans it out to in-process subscribers.
func (s *QuizService) emitLocked(typ domain.EventType, sess *session, questionIndex int, message string) domain.Event {
	ev := s.newEvent(typ, sess, questionIndex, message)
	s.broadcastLocked(ev)
	return ev
}

// newEvent must be called with mu held and broadcast before mu is released, so Seq
// follows the order in-process subscribers observe.
func (s *QuizService) newEvent(typ domain.EventType, sess *session, questionIndex int, message string) domain.Event {
	s.eventSeq++
	return domain.Event{
		Seq:           s.eventSeq,
		Type:          typ,
		SessionID:     sess.id,
		CategoryID:    sess.categoryID,
		QuestionIndex: questionIndex,
		Message:       message,
		At:            s.now(),
	}
}

func (s *QuizService) broadcastLocked(ev domain.Event) {
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop its oldest event rather than block the engine.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// publishExternal hands events to the configured publisher outside the session lock.
// Overlapping operations may publish out of order; consumers order by Event.Seq.
func (s *QuizService) publishExternal(ctx context.Context, events ...domain.Event) {
	if s.publisher == nil {
		return
	}
	for _, ev := range events {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.logger.WarnContext(ctx, "event publish failed", "type", ev.Type, "error", err)
		}
	}
}
