package repositories

import (
	"context"
	"time"

	"github.com/turtacn/edefter-tracker/internal/domain/deadline"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/database/sqlite"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/logging"
)

// SentAlertRepo records which (date, threshold) digests were delivered so a
// restart on the same day does not send them twice.
type SentAlertRepo struct {
	baseRepo
	now func() time.Time
}

// NewSentAlertRepo returns a sent-alert registry backed by conn.
func NewSentAlertRepo(conn *sqlite.Connection, log logging.Logger) *SentAlertRepo {
	return &SentAlertRepo{baseRepo: newBaseRepo(conn, log), now: time.Now}
}

// WasSent reports whether the digest for threshold was sent on date.
func (r *SentAlertRepo) WasSent(ctx context.Context, date deadline.Date, threshold int) (bool, error) {
	var n int
	err := r.executor().GetContext(ctx, &n,
		`SELECT COUNT(*) FROM sent_alerts WHERE alert_date = ? AND threshold = ?`,
		date.String(), threshold)
	if err != nil {
		return false, dbError(err, "failed to query sent alerts")
	}
	return n > 0, nil
}

// MarkSent records the digest for threshold on date.  Marking twice is a
// no-op.
func (r *SentAlertRepo) MarkSent(ctx context.Context, date deadline.Date, threshold int) error {
	_, err := r.executor().ExecContext(ctx,
		`INSERT INTO sent_alerts (alert_date, threshold, sent_at) VALUES (?, ?, ?)
		 ON CONFLICT(alert_date, threshold) DO NOTHING`,
		date.String(), threshold, r.now().UTC())
	if err != nil {
		return dbError(err, "failed to record sent alert")
	}
	return nil
}

// Prune removes entries older than before and returns how many were deleted.
func (r *SentAlertRepo) Prune(ctx context.Context, before deadline.Date) (int64, error) {
	res, err := r.executor().ExecContext(ctx, `DELETE FROM sent_alerts WHERE alert_date < ?`, before.String())
	if err != nil {
		return 0, dbError(err, "failed to prune sent alerts")
	}
	return res.RowsAffected()
}
