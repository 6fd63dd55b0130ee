package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"trivia-quiz-service/internal/domain"
	"trivia-quiz-service/internal/logging"
)

const DefaultTopic = "trivia.events"

// Publisher forwards quiz engine events to a watermill topic as JSON messages.
type Publisher struct {
	publisher message.Publisher
	topic     string
	logger    logging.Logger
}

// KafkaConfig holds the settings for the Kafka-backed publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Logger  logging.Logger
}

// NewKafkaPublisher creates a publisher writing to Kafka.
func NewKafkaPublisher(cfg KafkaConfig) (*Publisher, error) {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher: no brokers configured")
	}

	pub, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   cfg.Brokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, watermill.NewSlogLogger(logging.Slog(cfg.Logger)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
	}
	return newPublisher(pub, cfg.Topic, cfg.Logger), nil
}

// NewGoChannelPublisher creates an in-process publisher. The returned GoChannel can be
// subscribed to on the same topic.
func NewGoChannelPublisher(topic string, logger logging.Logger) (*Publisher, *gochannel.GoChannel) {
	if logger == nil {
		logger = logging.Nop()
	}
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, watermill.NewSlogLogger(logging.Slog(logger)))
	return newPublisher(pubSub, topic, logger), pubSub
}

func newPublisher(pub message.Publisher, topic string, logger logging.Logger) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		publisher: pub,
		topic:     topic,
		logger:    logger.With("component", "event_publisher"),
	}
}

// Topic reports the topic messages are published to.
func (p *Publisher) Topic() string {
	return p.topic
}

// Publish marshals the event and sends it to the topic.
func (p *Publisher) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal quiz event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("seq", strconv.FormatUint(event.Seq, 10))
	msg.Metadata.Set("event_type", string(event.Type))
	msg.Metadata.Set("session_id", event.SessionID)
	msg.Metadata.Set("category_id", strconv.Itoa(event.CategoryID))
	msg.Metadata.Set("timestamp", event.At.Format(time.RFC3339))

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		p.logger.ErrorContext(ctx, "failed to publish quiz event",
			"event_type", event.Type,
			"session", event.SessionID,
			"error", err)
		return fmt.Errorf("failed to publish quiz event: %w", err)
	}

	p.logger.DebugContext(ctx, "published quiz event",
		"message_id", msg.UUID,
		"event_type", event.Type,
		"topic", p.topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.publisher.Close()
}
