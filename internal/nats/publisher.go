package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher provides typed methods for publishing events to NATS JetStream.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a new Publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishMemoryChange publishes a global-tier change event. The category is
// part of the subject so consumers can filter server-side.
func (p *Publisher) PublishMemoryChange(ctx context.Context, event MemoryChangeEvent) error {
	subject := fmt.Sprintf("%s.%s", SubjectMemoryChangedPrefix, event.Category)
	return p.publish(ctx, subject, event)
}

// PublishInsights publishes the result of a completed analysis run.
func (p *Publisher) PublishInsights(ctx context.Context, event InsightEvent) error {
	return p.publish(ctx, SubjectInsightsReady, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	_, err = p.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}
