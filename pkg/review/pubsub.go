package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"mercator-hq/aegis/pkg/governance"
	"mercator-hq/aegis/pkg/telemetry/tracing"
)

// PubSubEmitter publishes flags as JSON messages to a Pub/Sub topic.
type PubSubEmitter struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger *slog.Logger
}

// NewPubSubEmitter connects to projectID and resolves topicID. The topic
// must already exist.
func NewPubSubEmitter(ctx context.Context, projectID, topicID string, opts ...option.ClientOption) (*PubSubEmitter, error) {
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	return &PubSubEmitter{
		client: client,
		topic:  client.Topic(topicID),
		logger: slog.Default().With("component", "review.pubsub"),
	}, nil
}

// Emit publishes the flag and waits for the server acknowledgement.
func (e *PubSubEmitter) Emit(ctx context.Context, flag governance.ReviewFlag) error {
	b, err := json.Marshal(flag)
	if err != nil {
		return fmt.Errorf("failed to marshal review flag: %w", err)
	}

	attrs := map[string]string{
		"stage":    flag.Stage,
		"priority": string(flag.Priority),
		"status":   flag.Status,
	}
	tracing.InjectToMap(ctx, attrs)

	res := e.topic.Publish(ctx, &pubsub.Message{Data: b, Attributes: attrs})

	id, err := res.Get(ctx)
	if err != nil {
		return governance.NewExternalServiceError("pubsub", "publish", err)
	}
	e.logger.Debug("Review flag published", "flag_id", flag.ID, "message_id", id)
	return nil
}

// Close flushes pending messages and releases the client.
func (e *PubSubEmitter) Close() error {
	e.topic.Stop()
	return e.client.Close()
}
