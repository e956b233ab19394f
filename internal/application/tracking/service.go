// Package tracking computes the next e-Defter deadline of every tracked
// company and aggregates the results for listings, the dashboard, reports
// and the reminder scheduler.
package tracking

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/turtacn/edefter-tracker/internal/domain/company"
	"github.com/turtacn/edefter-tracker/internal/domain/deadline"
	"github.com/turtacn/edefter-tracker/internal/domain/upload"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

const (
	cachePrefix     = "tracking:"
	defaultCacheTTL = time.Minute
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

// Row is the deadline of one company.
type Row struct {
	CompanyID   string          `json:"company_id"`
	CompanyName string          `json:"company_name"`
	Regime      deadline.Regime `json:"regime"`
	Email       string          `json:"email,omitempty"`
	PeriodLabel string          `json:"period_label"`
	deadline.Result
}

// Filter narrows ListDeadlines.  Zero values match everything.
type Filter struct {
	Statuses []deadline.Status `json:"statuses,omitempty"`
	Regime   deadline.Regime   `json:"regime,omitempty"`
	Query    string            `json:"query,omitempty"`
}

func (f Filter) match(r Row) bool {
	if f.Regime != "" && r.Regime != f.Regime {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if r.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if q := company.FoldName(f.Query); q != "" {
		return containsFold(r.CompanyName, q) || containsFold(r.CompanyKey, q)
	}
	return true
}

// Snapshot is the outcome of one pass over all companies for one date.
type Snapshot struct {
	Date            string `json:"date"`
	Rows            []Row  `json:"rows"`
	TotalCompanies  int    `json:"total_companies"`
	ActiveCompanies int    `json:"active_companies"`
	WithoutHistory  int    `json:"without_history"`
	Skipped         int    `json:"skipped"`
}

// Dashboard summarizes the tracked portfolio.
type Dashboard struct {
	GeneratedAt     time.Time               `json:"generated_at"`
	TotalCompanies  int                     `json:"total_companies"`
	ActiveCompanies int                     `json:"active_companies"`
	WithoutHistory  int                     `json:"without_history"`
	Skipped         int                     `json:"skipped"`
	ByStatus        map[deadline.Status]int `json:"by_status"`
	NextDeadline    *time.Time              `json:"next_deadline,omitempty"`
	MostUrgent      []Row                   `json:"most_urgent,omitempty"`
}

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// Cache is the subset of the Redis cache the service uses.
type Cache interface {
	GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) error
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Service defines the deadline tracking contract.
type Service interface {
	// ListDeadlines returns one row per active company with a computable
	// deadline, most urgent first.
	ListDeadlines(ctx context.Context, filter Filter) ([]Row, error)

	// Dashboard returns portfolio-wide counts.
	Dashboard(ctx context.Context) (*Dashboard, error)

	// Snapshot returns the full pass for today.
	Snapshot(ctx context.Context) (*Snapshot, error)

	// SnapshotAt returns the full pass for the calendar day of at, in the
	// configured location.
	SnapshotAt(ctx context.Context, at time.Time) (*Snapshot, error)

	// Invalidate drops cached passes after companies or uploads change.
	Invalidate(ctx context.Context) error

	// Now returns the current time in the configured location.
	Now() time.Time
}

// Option customizes the service.
type Option func(*serviceImpl)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *serviceImpl) { s.now = now }
}

// WithLocation sets the zone used to derive "today".
func WithLocation(loc *time.Location) Option {
	return func(s *serviceImpl) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithCache enables caching of passes.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *serviceImpl) {
		s.cache = c
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithMetrics records pass metrics.
func WithMetrics(m *prometheus.AppMetrics) Option {
	return func(s *serviceImpl) { s.metrics = m }
}

type serviceImpl struct {
	engine    *deadline.Engine
	companies company.Repository
	uploads   upload.Repository
	cache     Cache
	cacheTTL  time.Duration
	metrics   *prometheus.AppMetrics
	logger    logging.Logger
	now       func() time.Time
	loc       *time.Location
}

// NewService constructs a tracking Service.
func NewService(engine *deadline.Engine, companies company.Repository, uploads upload.Repository, logger logging.Logger, opts ...Option) Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &serviceImpl{
		engine:    engine,
		companies: companies,
		uploads:   uploads,
		cacheTTL:  defaultCacheTTL,
		logger:    logger,
		now:       time.Now,
		loc:       time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *serviceImpl) Now() time.Time {
	return s.now().In(s.loc)
}

func (s *serviceImpl) Snapshot(ctx context.Context) (*Snapshot, error) {
	return s.SnapshotAt(ctx, s.Now())
}

func (s *serviceImpl) SnapshotAt(ctx context.Context, at time.Time) (*Snapshot, error) {
	now := at.In(s.loc)
	if s.cache == nil {
		return s.compute(ctx, now)
	}

	var snap Snapshot
	loaded := false
	key := cachePrefix + deadline.DateOf(now).String()
	err := s.cache.GetOrSet(ctx, key, &snap, s.cacheTTL, func(ctx context.Context) (interface{}, error) {
		loaded = true
		return s.compute(ctx, now)
	})
	prometheus.RecordCacheAccess(s.metrics, "tracking", !loaded)
	if err != nil {
		if errors.IsCode(err, errors.CodeCacheError) || errors.IsCode(err, errors.ErrCodeSerialization) {
			s.logger.Warn("tracking cache unavailable, computing directly", logging.Err(err))
			return s.compute(ctx, now)
		}
		return nil, err
	}
	return &snap, nil
}

func (s *serviceImpl) ListDeadlines(ctx context.Context, filter Filter) ([]Row, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(snap.Rows))
	for _, r := range snap.Rows {
		if filter.match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

const mostUrgentLimit = 5

func (s *serviceImpl) Dashboard(ctx context.Context) (*Dashboard, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	d := &Dashboard{
		GeneratedAt:     s.Now(),
		TotalCompanies:  snap.TotalCompanies,
		ActiveCompanies: snap.ActiveCompanies,
		WithoutHistory:  snap.WithoutHistory,
		Skipped:         snap.Skipped,
		ByStatus:        make(map[deadline.Status]int, len(deadline.AllStatuses)),
	}
	for _, st := range deadline.AllStatuses {
		d.ByStatus[st] = 0
	}
	for _, r := range snap.Rows {
		d.ByStatus[r.Status]++
		if r.RemainingDays >= 0 && (d.NextDeadline == nil || r.DeadlineDate.Before(*d.NextDeadline)) {
			next := r.DeadlineDate
			d.NextDeadline = &next
		}
	}
	n := len(snap.Rows)
	if n > mostUrgentLimit {
		n = mostUrgentLimit
	}
	d.MostUrgent = append([]Row(nil), snap.Rows[:n]...)
	return d, nil
}

func (s *serviceImpl) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if _, err := s.cache.DeleteByPrefix(ctx, cachePrefix); err != nil {
		return errors.Wrap(err, errors.CodeCacheError, "failed to invalidate tracking cache")
	}
	return nil
}

// compute runs the engine for every active company.  Companies without
// history or with a capped result are left out; a rule configuration error
// skips the company and is logged.
func (s *serviceImpl) compute(ctx context.Context, now time.Time) (*Snapshot, error) {
	start := time.Now()
	companies, err := s.companies.List(ctx, company.ListOptions{})
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Date: deadline.DateOf(now).String(), Rows: make([]Row, 0, len(companies))}
	for _, c := range companies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snap.TotalCompanies++
		if !c.Active {
			continue
		}
		snap.ActiveCompanies++

		filed, err := s.uploads.FiledPeriods(ctx, c.Key())
		if err != nil {
			return nil, err
		}
		if len(filed) == 0 {
			snap.WithoutHistory++
			continue
		}

		res, err := s.engine.NextDeadlineFor(c.Regime, c.Cadence, filed, now)
		if err != nil {
			if errors.IsConfiguration(err) {
				snap.Skipped++
				prometheus.RecordDeadlineError(s.metrics, "configuration")
				s.logger.Error("deadline rule configuration error, company skipped",
					logging.String("company_id", c.ID),
					logging.String("company_key", c.Key()),
					logging.Err(err))
				continue
			}
			return nil, err
		}
		if res == nil {
			s.logger.Debug("no computable deadline", logging.String("company_key", c.Key()))
			continue
		}
		res.CompanyKey = c.Key()
		snap.Rows = append(snap.Rows, Row{
			CompanyID:   c.ID,
			CompanyName: c.Name,
			Regime:      c.Regime,
			Email:       c.Email,
			PeriodLabel: res.PeriodLabel(),
			Result:      *res,
		})
	}
	SortRows(snap.Rows)

	counts := make(map[string]int, len(deadline.AllStatuses))
	for _, r := range snap.Rows {
		counts[string(r.Status)]++
	}
	statuses := make([]string, len(deadline.AllStatuses))
	for i, st := range deadline.AllStatuses {
		statuses[i] = string(st)
	}
	prometheus.RecordTrackingPass(s.metrics, counts, statuses, time.Since(start))
	prometheus.RecordCompanies(s.metrics, snap.ActiveCompanies, snap.TotalCompanies-snap.ActiveCompanies, snap.WithoutHistory)

	s.logger.Debug("tracking pass complete",
		logging.String("date", snap.Date),
		logging.Int("rows", len(snap.Rows)),
		logging.Int("skipped", snap.Skipped))
	return snap, nil
}

// SortRows orders rows by remaining days, then by company name with Turkish
// collation.
func SortRows(rows []Row) {
	less := company.NameLess()
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].RemainingDays != rows[j].RemainingDays {
			return rows[i].RemainingDays < rows[j].RemainingDays
		}
		return less(rows[i].CompanyName, rows[j].CompanyName)
	})
}

func containsFold(s, foldedQuery string) bool {
	return strings.Contains(company.FoldName(s), foldedQuery)
}
