package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/turtacn/edefter-tracker/internal/domain/deadline"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

// SentAlertTTL keeps a (date, threshold) marker long enough to cover the
// second alert time of the day and a restart shortly after midnight.
const SentAlertTTL = 48 * time.Hour

// SentAlertRegistry is the Redis implementation of the reminder de-dup
// registry.  Entries expire on their own after SentAlertTTL.
type SentAlertRegistry struct {
	client *Client
	prefix string
	ttl    time.Duration
}

func NewSentAlertRegistry(client *Client, prefix string) *SentAlertRegistry {
	return &SentAlertRegistry{client: client, prefix: prefix + "sent:", ttl: SentAlertTTL}
}

func (r *SentAlertRegistry) key(date deadline.Date, threshold int) string {
	return fmt.Sprintf("%s%s:%d", r.prefix, date, threshold)
}

func (r *SentAlertRegistry) WasSent(ctx context.Context, date deadline.Date, threshold int) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(date, threshold)).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to query sent alerts")
	}
	return n > 0, nil
}

func (r *SentAlertRegistry) MarkSent(ctx context.Context, date deadline.Date, threshold int) error {
	if err := r.client.SetNX(ctx, r.key(date, threshold), time.Now().UTC().Format(time.RFC3339), r.ttl).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to record sent alert")
	}
	return nil
}
