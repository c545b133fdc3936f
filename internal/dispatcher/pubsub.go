package dispatcher

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/prism-insight/execution-core/internal/config"
	"google.golang.org/api/option"
)

// PubSubSubscriber adapts a cloud.google.com/go/pubsub subscription to the
// Subscriber interface the Dispatcher consumes.
type PubSubSubscriber struct {
	client *pubsub.Client
	sub    *pubsub.Subscription
}

// NewPubSubSubscriber connects to the configured project and subscription.
// The bus client delivers messages sequentially per its own guarantees; this
// adapter caps outstanding messages at 1 so the dispatcher sees the same
// one-at-a-time ordering the rest of the core assumes.
func NewPubSubSubscriber(ctx context.Context, cfg config.PubSubConfig) (*PubSubSubscriber, error) {
	var opts []option.ClientOption
	if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	sub := client.Subscription(cfg.SubscriptionID)
	sub.ReceiveSettings.MaxOutstandingMessages = 1

	return &PubSubSubscriber{client: client, sub: sub}, nil
}

// Receive blocks, delivering each bus message to handle until ctx is
// cancelled.
func (p *PubSubSubscriber) Receive(ctx context.Context, handle func(ctx context.Context, msg Message)) error {
	return p.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		handle(ctx, Message{
			Data: m.Data,
			Ack:  m.Ack,
			Nack: m.Nack,
		})
	})
}

// Close releases the underlying client connection.
func (p *PubSubSubscriber) Close() error {
	return p.client.Close()
}
