// Package notification sends the e-Defter reminder digests.  A Scheduler
// polls the clock once per minute and, at each configured alert time, mails
// one digest listing the companies whose remaining days hit a threshold.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/turtacn/edefter-tracker/internal/application/tracking"
	"github.com/turtacn/edefter-tracker/internal/config"
	"github.com/turtacn/edefter-tracker/internal/domain/deadline"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/messaging/smtp"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

// Digest outcomes, used as metric labels and in CheckResult.Status.
const (
	StatusSent    = "sent"
	StatusEmpty   = "empty"
	StatusSkipped = "skipped"
	StatusFailure = "failure"
	StatusPreview = "preview"
)

const (
	defaultTickInterval = time.Minute
	lockTTL             = 5 * time.Minute
	eventSource         = "edefter-worker"
)

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// Mailer delivers a rendered digest.
type Mailer interface {
	Send(ctx context.Context, m smtp.Mail) error
}

// SentRegistry remembers which (date, threshold) pairs were already mailed.
type SentRegistry interface {
	WasSent(ctx context.Context, date deadline.Date, threshold int) (bool, error)
	MarkSent(ctx context.Context, date deadline.Date, threshold int) error
}

// AlertPublisher emits one event per alerted company.
type AlertPublisher interface {
	PublishDeadlineAlerts(ctx context.Context, alerts []kafka.DeadlineAlertPayload) (int, error)
}

// Locker keeps two workers from mailing the same digest.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Config holds the scheduler settings.
type Config struct {
	AlertTimes []config.ClockTime
	Thresholds []int
	Recipients []string
	Subject    string
	Location   *time.Location
}

// ConfigFrom derives scheduler settings from the application config.
func ConfigFrom(cfg *config.Config) (Config, error) {
	times, err := cfg.AlertClockTimes()
	if err != nil {
		return Config{}, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return Config{}, err
	}
	return Config{
		AlertTimes: times,
		Thresholds: cfg.Notification.Thresholds,
		Recipients: cfg.Notification.Recipients,
		Subject:    cfg.Notification.Subject,
		Location:   loc,
	}, nil
}

// CheckResult reports one digest run.
type CheckResult struct {
	Date            string      `json:"date"`
	Status          string      `json:"status"`
	Digest          *Digest     `json:"digest,omitempty"`
	HTML            string      `json:"-"`
	Matched         map[int]int `json:"matched,omitempty"`
	AlreadySent     []int       `json:"already_sent,omitempty"`
	EventsPublished int         `json:"events_published"`
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithTickInterval overrides the one-minute polling interval.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

func WithPublisher(p AlertPublisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

func WithLocker(l Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

func WithMetrics(m *prometheus.AppMetrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// ---------------------------------------------------------------------------
// Scheduler
// ---------------------------------------------------------------------------

// Scheduler owns the reminder loop and its de-duplication state.
type Scheduler struct {
	cfg       Config
	tracking  tracking.Service
	mailer    Mailer
	sent      SentRegistry
	publisher AlertPublisher
	locker    Locker
	metrics   *prometheus.AppMetrics
	logger    logging.Logger
	now       func() time.Time
	tick      time.Duration

	mu        sync.Mutex
	lastFired string
}

// settings returns a copy of the current configuration.
func (s *Scheduler) settings() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Reconfigure swaps alert times, thresholds, recipients and subject.  The
// location is kept when cfg carries none.
func (s *Scheduler) Reconfigure(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.Location == nil {
		cfg.Location = s.cfg.Location
	}
	if len(cfg.Thresholds) == 0 {
		cfg.Thresholds = append([]int(nil), deadline.DefaultAlertThresholds...)
	}
	if cfg.Subject == "" {
		cfg.Subject = config.DefaultNotificationSubject
	}
	s.cfg = cfg
	s.logger.Info("notification settings reloaded",
		logging.Int("alert_times", len(cfg.AlertTimes)),
		logging.Int("recipients", len(cfg.Recipients)))
}

// NewScheduler wires a scheduler.  mailer may be nil for preview-only use.
func NewScheduler(cfg Config, svc tracking.Service, mailer Mailer, sent SentRegistry, logger logging.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if len(cfg.Thresholds) == 0 {
		cfg.Thresholds = append([]int(nil), deadline.DefaultAlertThresholds...)
	}
	if cfg.Subject == "" {
		cfg.Subject = config.DefaultNotificationSubject
	}
	s := &Scheduler{
		cfg:      cfg,
		tracking: svc,
		mailer:   mailer,
		sent:     sent,
		logger:   logger,
		now:      time.Now,
		tick:     defaultTickInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run polls the clock until ctx is cancelled and runs Check at every alert
// time.  Each alert minute fires at most once even if the tick interval is
// shorter than a minute.
func (s *Scheduler) Run(ctx context.Context) error {
	cfg := s.settings()
	s.logger.Info("notification scheduler started",
		logging.Int("alert_times", len(cfg.AlertTimes)),
		logging.Any("thresholds", cfg.Thresholds))

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("notification scheduler stopped")
			return nil
		case <-ticker.C:
			s.onTick(ctx)
		}
	}
}

func (s *Scheduler) onTick(ctx context.Context) {
	now := s.now().In(s.settings().Location)
	if !s.due(now) {
		return
	}
	res, err := s.Check(ctx, now)
	if err != nil {
		s.logger.Error("reminder digest failed", logging.Err(err))
		return
	}
	s.logger.Info("reminder check finished",
		logging.String("date", res.Date),
		logging.String("status", res.Status))
}

// due reports whether now is an alert minute not yet handled.
func (s *Scheduler) due(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, at := range s.cfg.AlertTimes {
		if !at.Matches(now) {
			continue
		}
		key := now.Format("2006-01-02 15:04")
		if s.lastFired == key {
			return false
		}
		s.lastFired = key
		return true
	}
	return false
}

// Check sends today's digest.  Thresholds already mailed today are left out;
// when nothing is left, nothing is sent.
func (s *Scheduler) Check(ctx context.Context, now time.Time) (*CheckResult, error) {
	cfg := s.settings()
	now = now.In(cfg.Location)
	date := deadline.DateOf(now)

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, "notification:"+date.String(), lockTTL)
		if err != nil {
			s.logger.Warn("notification lock unavailable, continuing without it", logging.Err(err))
		} else if !ok {
			prometheus.RecordDigest(s.metrics, StatusSkipped, nil)
			return &CheckResult{Date: date.String(), Status: StatusSkipped}, nil
		} else {
			defer func() {
				if err := release(context.Background()); err != nil {
					s.logger.Warn("failed to release notification lock", logging.Err(err))
				}
			}()
		}
	}

	res, err := s.prepare(ctx, cfg, now, true)
	if err != nil {
		prometheus.RecordDigest(s.metrics, StatusFailure, nil)
		return nil, err
	}
	if res.Digest == nil {
		prometheus.RecordDigest(s.metrics, StatusEmpty, nil)
		return res, nil
	}

	if s.mailer == nil || len(cfg.Recipients) == 0 {
		prometheus.RecordDigest(s.metrics, StatusFailure, nil)
		return nil, errors.New(errors.ErrCodeFeatureDisabled, "mail delivery is not configured")
	}
	err = s.mailer.Send(ctx, smtp.Mail{
		To:       cfg.Recipients,
		Subject:  cfg.Subject,
		HTMLBody: res.HTML,
	})
	if err != nil {
		prometheus.RecordDigest(s.metrics, StatusFailure, nil)
		return nil, err
	}
	res.Status = StatusSent

	if s.sent != nil {
		for _, sec := range res.Digest.Sections {
			if err := s.sent.MarkSent(ctx, date, sec.Threshold); err != nil {
				s.logger.Error("failed to record sent reminder",
					logging.String("date", date.String()),
					logging.Int("threshold", sec.Threshold),
					logging.Err(err))
			}
		}
	}

	if s.publisher != nil {
		n, err := s.publisher.PublishDeadlineAlerts(ctx, alertPayloads(res.Digest, date))
		prometheus.RecordEventPublish(s.metrics, n, err)
		res.EventsPublished = n
		if err != nil {
			s.logger.Warn("failed to publish deadline alerts", logging.Err(err))
		}
	}

	prometheus.RecordDigest(s.metrics, StatusSent, res.Matched)
	s.logger.Info("reminder digest sent",
		logging.String("date", date.String()),
		logging.Int("companies", res.Digest.Total()),
		logging.Int("recipients", len(cfg.Recipients)))
	return res, nil
}

// Preview builds today's digest without sending it or touching the
// de-duplication registry.  Thresholds already mailed are still reported.
func (s *Scheduler) Preview(ctx context.Context, now time.Time) (*CheckResult, error) {
	cfg := s.settings()
	res, err := s.prepare(ctx, cfg, now.In(cfg.Location), false)
	if err != nil {
		return nil, err
	}
	if res.Digest != nil {
		res.Status = StatusPreview
	}
	return res, nil
}

func (s *Scheduler) prepare(ctx context.Context, cfg Config, now time.Time, skipSent bool) (*CheckResult, error) {
	date := deadline.DateOf(now)
	res := &CheckResult{Date: date.String(), Status: StatusEmpty, Matched: make(map[int]int)}

	snap, err := s.tracking.SnapshotAt(ctx, now)
	if err != nil {
		return nil, err
	}
	rows := snap.Rows

	var sections []Section
	seen := make(map[int]bool, len(cfg.Thresholds))
	for _, th := range cfg.Thresholds {
		if seen[th] {
			continue
		}
		seen[th] = true

		var matched []tracking.Row
		for i := range rows {
			if deadline.AlertMatches(&rows[i].Result, th) {
				matched = append(matched, rows[i])
			}
		}
		if len(matched) == 0 {
			continue
		}

		if s.sent != nil {
			was, err := s.sent.WasSent(ctx, date, th)
			if err != nil {
				return nil, err
			}
			if was {
				res.AlreadySent = append(res.AlreadySent, th)
				if skipSent {
					continue
				}
			}
		}
		sections = append(sections, Section{Threshold: th, Rows: matched})
		res.Matched[th] = len(matched)
	}
	if len(sections) == 0 {
		return res, nil
	}

	res.Digest = &Digest{Date: now, Sections: sections}
	html, err := RenderDigest(res.Digest)
	if err != nil {
		return nil, err
	}
	res.HTML = html
	return res, nil
}

func alertPayloads(d *Digest, date deadline.Date) []kafka.DeadlineAlertPayload {
	out := make([]kafka.DeadlineAlertPayload, 0, d.Total())
	for _, sec := range d.Sections {
		for _, r := range sec.Rows {
			out = append(out, kafka.DeadlineAlertPayload{
				CompanyID:     r.CompanyID,
				CompanyName:   r.CompanyName,
				CompanyKey:    r.CompanyKey,
				Regime:        string(r.Regime),
				Cadence:       string(r.Cadence),
				Period:        r.PeriodLabel,
				DeadlineDate:  deadline.DateOf(r.DeadlineDate).String(),
				RemainingDays: r.RemainingDays,
				Threshold:     sec.Threshold,
				Status:        string(r.Status),
				AlertDate:     date.String(),
			})
		}
	}
	return out
}
