package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/shopapp/api/internal/services"
)

// PubSubMailPublisher renders order confirmations and enqueues them on a
// Pub/Sub topic consumed by the mail worker. It implements
// services.OrderNotifier.
type PubSubMailPublisher struct {
	topic    *pubsub.Topic
	renderer *MailRenderer
	marshal  func(any) ([]byte, error)
}

var _ services.OrderNotifier = (*PubSubMailPublisher)(nil)

// NewPubSubMailPublisher constructs a Pub/Sub backed mail publisher.
func NewPubSubMailPublisher(topic *pubsub.Topic, renderer *MailRenderer) (*PubSubMailPublisher, error) {
	if topic == nil {
		return nil, errors.New("mail publisher: topic is required")
	}
	if renderer == nil {
		return nil, errors.New("mail publisher: renderer is required")
	}
	return &PubSubMailPublisher{
		topic:    topic,
		renderer: renderer,
		marshal:  json.Marshal,
	}, nil
}

// SendOrderConfirmation renders and enqueues the confirmation mail. The order
// id doubles as the idempotency key so a redelivered reconcile cannot queue a
// second mail for the same order.
func (p *PubSubMailPublisher) SendOrderConfirmation(ctx context.Context, cmd services.OrderConfirmationCommand) error {
	if p == nil || p.topic == nil {
		return errors.New("mail publisher: not initialised")
	}

	mail, err := p.renderer.RenderOrderConfirmation(cmd)
	if err != nil {
		return err
	}

	data, err := p.marshal(mail)
	if err != nil {
		return fmt.Errorf("marshal mail message: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "orderId", cmd.Order.ID)
	setAttr(attrs, "to", mail.To)
	setAttr(attrs, "idempotencyKey", cmd.Order.ID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish mail message: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
