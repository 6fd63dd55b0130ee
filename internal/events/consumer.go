package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"trivia-quiz-service/internal/domain"
	"trivia-quiz-service/internal/logging"
)

// Handler processes one decoded quiz event.
type Handler func(ctx context.Context, event domain.Event) error

// Consume subscribes to topic and hands every event to handle until ctx ends.
// Undecodable messages are acked and dropped; handler failures are nacked.
func Consume(ctx context.Context, sub message.Subscriber, topic string, handle Handler, logger logging.Logger) error {
	if logger == nil {
		logger = logging.Nop()
	}
	messages, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	for msg := range messages {
		var event domain.Event
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			logger.Warn("dropping malformed quiz event", "message_id", msg.UUID, "error", err)
			msg.Ack()
			continue
		}
		if err := handle(msg.Context(), event); err != nil {
			logger.Warn("quiz event handler failed", "message_id", msg.UUID, "event_type", event.Type, "error", err)
			msg.Nack()
			continue
		}
		msg.Ack()
	}
	return nil
}

// LogHandler writes every event to the logger as an audit trail.
func LogHandler(logger logging.Logger) Handler {
	return func(ctx context.Context, event domain.Event) error {
		args := []any{
			"seq", event.Seq,
			"event_type", event.Type,
			"session", event.SessionID,
			"category", event.CategoryID,
			"question", event.QuestionIndex,
		}
		if event.Score != nil {
			args = append(args, "total", event.Score.TotalAnswers, "correct", event.Score.CorrectAnswers)
		}
		if event.Message != "" {
			args = append(args, "message", event.Message)
		}
		logger.InfoContext(ctx, "quiz event", args...)
		return nil
	}
}
