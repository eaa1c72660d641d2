// Package notify publishes quarantine events for human review over Redis
// Pub/Sub. Delivery is best-effort: a failed publish is reported to the
// caller for logging but must never fail the workflow that raised it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/novacat/novacat/pkg/catalog"
)

// QuarantineEvent is the payload delivered to reviewers when a product
// enters quarantine. It intentionally carries no idempotency key: that is
// internal coordination state, never an event field.
type QuarantineEvent struct {
	WorkflowName  string `json:"workflow_name"`
	JobRunID      string `json:"job_run_id"`
	CorrelationID string `json:"correlation_id"`
	NovaID        string `json:"nova_id"`
	ProductID     string `json:"product_id"`
	Provider      string `json:"provider"`
	ReasonCode    string `json:"reason_code"`
	ObjectKey     string `json:"object_key,omitempty"`
	OccurredAtMs  int64  `json:"occurred_at_ms"`
}

// Publisher emits quarantine events.
type Publisher struct {
	rdb *redis.Client
}

// NewPublisher creates a quarantine event publisher on an existing Redis
// client.
func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// Notify publishes a quarantine event to the nova's quarantine channel.
// Callers treat a returned error as log-and-continue.
func (p *Publisher) Notify(ctx context.Context, event QuarantineEvent) error {
	if event.OccurredAtMs == 0 {
		event.OccurredAtMs = catalog.NowMs()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal quarantine event: %w", err)
	}

	channel := catalog.QuarantineEventsChannel(event.NovaID)
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish quarantine event: %w", err)
	}
	return nil
}
