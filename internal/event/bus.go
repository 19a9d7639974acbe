package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	incidentStreamName     = "INCIDENTS"
	incidentStreamSubjects = "incident.*"

	streamMaxAge  = 24 * time.Hour
	streamMaxMsgs = -1
)

// Publisher is the write side of the event bus. Components that only emit
// envelopes depend on this interface so tests can substitute a recorder.
type Publisher interface {
	Publish(ctx context.Context, env *Envelope) error
}

// Bus is a NATS JetStream backed event transport for incident envelopes.
// Each envelope is published on incident.<event_type>.
type Bus struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

// NewBus creates the bus and ensures the incident stream exists.
func NewBus(js nats.JetStreamContext, logger *zap.Logger) (*Bus, error) {
	bus := &Bus{
		js:     js,
		logger: logger.Named("event-bus"),
	}

	_, err := js.AddStream(&nats.StreamConfig{
		Name:     incidentStreamName,
		Subjects: []string{incidentStreamSubjects},
		Storage:  nats.FileStorage,
		MaxAge:   streamMaxAge,
		MaxMsgs:  streamMaxMsgs,
	})
	if err != nil {
		if err == nats.ErrStreamNameAlreadyInUse {
			bus.logger.Info("Stream already exists", zap.String("stream", incidentStreamName))
			return bus, nil
		}
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	bus.logger.Info("Stream created successfully", zap.String("stream", incidentStreamName))
	return bus, nil
}

// Subject returns the NATS subject an event type is published on.
func Subject(t Type) string {
	return "incident." + string(t)
}

// Publish implements Publisher.
func (b *Bus) Publish(ctx context.Context, env *Envelope) error {
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	_, err = b.js.Publish(Subject(env.EventType), data, nats.Context(ctx))
	if err != nil {
		b.logger.Error("Failed to publish envelope",
			zap.String("event_type", string(env.EventType)),
			zap.String("incident_id", env.IncidentID),
			zap.Error(err))
		return fmt.Errorf("failed to publish envelope: %w", err)
	}

	b.logger.Debug("Envelope published",
		zap.String("event_type", string(env.EventType)),
		zap.String("incident_id", env.IncidentID))
	return nil
}

// Subscribe delivers decoded envelopes of the given type to the handler.
// Envelopes that fail boundary validation are logged and dropped. The
// subscription is torn down when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, t Type, handler func(*Envelope)) error {
	sub, err := b.js.Subscribe(Subject(t), func(msg *nats.Msg) {
		env, err := Decode(msg.Data)
		if err != nil {
			b.logger.Warn("Rejected malformed envelope",
				zap.String("subject", msg.Subject),
				zap.Error(err))
			// Terminate so JetStream never redelivers the poison message.
			msg.Term()
			return
		}

		handler(env)
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", Subject(t), err)
	}

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()

	return nil
}
