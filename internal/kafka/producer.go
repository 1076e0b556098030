package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"ms-escrow/internal/config"
	"ms-escrow/internal/escrow"
	"ms-escrow/internal/logger"
)

// Producer streams domain events to Kafka, one topic per event kind.
type Producer struct {
	writers map[string]*kafka.Writer
	topics  config.TopicConfig
	Logger  *logger.Logger
}

func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	p := &Producer{
		writers: make(map[string]*kafka.Writer),
		topics:  topics,
		Logger:  log,
	}
	for _, topic := range []string{
		topics.EventCreated,
		topics.TicketCreated,
		topics.JoinedEvent,
		topics.CheckedIn,
		topics.Withdrawn,
	} {
		p.writers[topic] = kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   topic,
		})
	}
	return p
}

func (p *Producer) Close() {
	for _, w := range p.writers {
		_ = w.Close()
	}
}

func (p *Producer) publish(topic, key string, payload any) error {
	msgBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if p.Logger != nil {
		p.Logger.LogKafka("PUBLISH", topic, string(msgBytes))
	}
	return p.writers[topic].WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(key),
			Value: msgBytes,
		},
	)
}

func (p *Producer) PublishEventCreated(evt escrow.EventCreated) error {
	return p.publish(p.topics.EventCreated, evt.Event, evt)
}

func (p *Producer) PublishTicketCreated(evt escrow.TicketCreated) error {
	return p.publish(p.topics.TicketCreated, evt.Ticket, evt)
}

func (p *Producer) PublishJoinedEvent(evt escrow.JoinedEvent) error {
	return p.publish(p.topics.JoinedEvent, evt.Event, evt)
}

func (p *Producer) PublishCheckedIn(evt escrow.CheckedIn) error {
	return p.publish(p.topics.CheckedIn, evt.Ticket, evt)
}

func (p *Producer) PublishWithdrawn(evt escrow.Withdrawn) error {
	return p.publish(p.topics.Withdrawn, evt.Event, evt)
}

// MockPublisher logs events instead of producing them. Used when Kafka is
// disabled or in mock mode.
type MockPublisher struct {
	Logger *logger.Logger
}

func (m *MockPublisher) log(topic string, payload any) error {
	if m.Logger != nil {
		msgBytes, _ := json.Marshal(payload)
		m.Logger.LogKafka("MOCK", topic, string(msgBytes))
	}
	return nil
}

func (m *MockPublisher) PublishEventCreated(evt escrow.EventCreated) error {
	return m.log("escrow-event-created", evt)
}

func (m *MockPublisher) PublishTicketCreated(evt escrow.TicketCreated) error {
	return m.log("escrow-ticket-created", evt)
}

func (m *MockPublisher) PublishJoinedEvent(evt escrow.JoinedEvent) error {
	return m.log("escrow-joined-event", evt)
}

func (m *MockPublisher) PublishCheckedIn(evt escrow.CheckedIn) error {
	return m.log("escrow-checked-in", evt)
}

func (m *MockPublisher) PublishWithdrawn(evt escrow.Withdrawn) error {
	return m.log("escrow-withdrawn", evt)
}
