package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Gateways retry undelivered webhooks for up to three days, so processed
// event ids must stay visible at least that long.
const dedupTTL = 72 * time.Hour

// EventDedup provides webhook idempotency checks backed by Redis, keyed by
// the gateway-assigned event id.
type EventDedup struct {
	client *redis.Client
}

// NewEventDedup creates an EventDedup wrapping the given Redis client.
func NewEventDedup(client *redis.Client) *EventDedup {
	return &EventDedup{client: client}
}

// IsDuplicate reports whether this event has already been processed.
func (d *EventDedup) IsDuplicate(ctx context.Context, eventID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	return n > 0, nil
}

// Mark records that this event has been processed (expires after dedupTTL).
func (d *EventDedup) Mark(ctx context.Context, eventID string) error {
	return d.client.Set(ctx, d.key(eventID), "1", dedupTTL).Err()
}

func (d *EventDedup) key(eventID string) string {
	return fmt.Sprintf("webhook:event:%s", eventID)
}
