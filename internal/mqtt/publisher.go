package mqtt

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tphakala/spamguard-go/internal/detection"
	"github.com/tphakala/spamguard-go/internal/errors"
)

// Publisher sends detection events to <topic>/<content type>.
type Publisher struct {
	client Client
	topic  string
}

// NewPublisher wraps a connected or connecting client.
func NewPublisher(client Client, topic string) *Publisher {
	return &Publisher{client: client, topic: strings.TrimRight(topic, "/")}
}

// Topic returns the topic an event of contentType is published to.
func (p *Publisher) Topic(contentType string) string {
	return p.topic + "/" + contentType
}

// PublishClassification implements detection.EventPublisher.
func (p *Publisher) PublishClassification(ctx context.Context, ev detection.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("operation", "marshal_event").
			Build()
	}
	return p.client.Publish(ctx, p.Topic(ev.Type), payload)
}

// Close disconnects the underlying client.
func (p *Publisher) Close() {
	p.client.Disconnect()
}
