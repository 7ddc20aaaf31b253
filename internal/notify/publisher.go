// Package notify hands appointment events to the notification service.
// Delivery (email, SMS, push) happens downstream; this side only reports
// whether the hand-off succeeded.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/abhishinde10/healthnexus/internal/appointment"
)

type KafkaPublisher struct {
	writer *kafka.Writer
	log    zerolog.Logger
}

// NewKafkaPublisher writes to topic, keyed by appointment id so every event
// for one appointment lands on the same partition in order.
func NewKafkaPublisher(brokers []string, topic string, log zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
			WriteTimeout: 5 * time.Second,
		},
		log: log.With().Str("component", "notify").Logger(),
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev appointment.Event) error {
	msg, err := buildMessage(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", ev.Type, err)
	}
	p.log.Debug().Str("event", ev.Type).Str("appointment_id", ev.AppointmentID.String()).Msg("event published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func buildMessage(ev appointment.Event) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	return kafka.Message{
		Key:   []byte(ev.AppointmentID.String()),
		Value: value,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}, nil
}

// LogPublisher is used when no brokers are configured.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log.With().Str("component", "notify").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, ev appointment.Event) error {
	p.log.Info().
		Str("event", ev.Type).
		Str("appointment_id", ev.AppointmentID.String()).
		Str("status", string(ev.Status)).
		Time("scheduled_at", ev.ScheduledAt).
		Msg("appointment event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }
