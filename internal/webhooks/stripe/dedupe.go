package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgredis "github.com/artisanalley/marketplace-backend/pkg/redis"
)

const providerStripe = "stripe"

var errEventIDRequired = errors.New("stripe event id is required")

type eventStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	WebhookEventKey(provider, eventID string) string
}

// EventDeduper remembers processed event ids so redeliveries skip the
// database. An id is recorded only after its writes commit; a missed record
// costs one redundant, still idempotent, write.
type EventDeduper struct {
	store eventStore
	ttl   time.Duration
	now   func() time.Time
}

func NewEventDeduper(store eventStore, ttl time.Duration) (*EventDeduper, error) {
	switch {
	case store == nil:
		return nil, errors.New("event deduper: store is required")
	case ttl <= 0:
		return nil, fmt.Errorf("event deduper: ttl must be positive, got %s", ttl)
	}
	return &EventDeduper{store: store, ttl: ttl, now: time.Now}, nil
}

// Seen reports whether eventID was processed within the ttl.
func (d *EventDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errEventIDRequired
	}
	_, err := d.store.Get(ctx, d.store.WebhookEventKey(providerStripe, eventID))
	switch {
	case err == nil:
		return true, nil
	case pkgredis.IsNil(err):
		return false, nil
	default:
		return false, fmt.Errorf("lookup stripe event %s: %w", eventID, err)
	}
}

// MarkProcessed records eventID with the time it was handled.
func (d *EventDeduper) MarkProcessed(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errEventIDRequired
	}
	seenAt := d.now().UTC().Format(time.RFC3339)
	if err := d.store.Set(ctx, d.store.WebhookEventKey(providerStripe, eventID), seenAt, d.ttl); err != nil {
		return fmt.Errorf("record stripe event %s: %w", eventID, err)
	}
	return nil
}
