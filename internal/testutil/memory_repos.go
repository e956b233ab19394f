package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/turtacn/edefter-tracker/internal/domain/company"
	"github.com/turtacn/edefter-tracker/internal/domain/deadline"
	"github.com/turtacn/edefter-tracker/internal/domain/upload"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// MemoryCompanyRepo
// ─────────────────────────────────────────────────────────────────────────────

// MemoryCompanyRepo is an in-memory company.Repository for service tests.
type MemoryCompanyRepo struct {
	mu   sync.Mutex
	byID map[string]*company.Company
	// Err, when set, is returned by every method.
	Err error
}

func NewMemoryCompanyRepo(companies ...*company.Company) *MemoryCompanyRepo {
	r := &MemoryCompanyRepo{byID: make(map[string]*company.Company)}
	for _, c := range companies {
		cp := *c
		r.byID[c.ID] = &cp
	}
	return r
}

func (r *MemoryCompanyRepo) Save(_ context.Context, c *company.Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	for id, other := range r.byID {
		if id != c.ID && other.Key() == c.Key() {
			return errors.New(errors.CodeCompanyAlreadyExists, "company already exists").WithDetail(c.Key())
		}
	}
	cp := *c
	r.byID[c.ID] = &cp
	return nil
}

func (r *MemoryCompanyRepo) FindByID(_ context.Context, id string) (*company.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	c, ok := r.byID[id]
	if !ok {
		return nil, errors.New(errors.CodeCompanyNotFound, "company not found").WithDetail(id)
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryCompanyRepo) FindByKey(_ context.Context, key string) (*company.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	for _, c := range r.byID {
		if c.Key() == key {
			cp := *c
			return &cp, nil
		}
	}
	return nil, errors.New(errors.CodeCompanyNotFound, "company not found").WithDetail(key)
}

func (r *MemoryCompanyRepo) List(_ context.Context, opts company.ListOptions) ([]*company.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]*company.Company, 0, len(r.byID))
	for _, c := range r.byID {
		if opts.ActiveOnly && !c.Active {
			continue
		}
		if !c.Matches(opts.Query) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	company.SortByName(out)
	return out, nil
}

func (r *MemoryCompanyRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.byID[id]; !ok {
		return errors.New(errors.CodeCompanyNotFound, "company not found").WithDetail(id)
	}
	delete(r.byID, id)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// MemoryUploadRepo
// ─────────────────────────────────────────────────────────────────────────────

type uploadKey struct {
	companyKey string
	period     deadline.Period
}

// MemoryUploadRepo is an in-memory upload.Repository for service tests.
type MemoryUploadRepo struct {
	mu      sync.Mutex
	records map[uploadKey]*upload.Record
	Err     error
}

func NewMemoryUploadRepo() *MemoryUploadRepo {
	return &MemoryUploadRepo{records: make(map[uploadKey]*upload.Record)}
}

// AddFiled stores complete records for periods of companyKey.
func (r *MemoryUploadRepo) AddFiled(companyKey string, periods ...deadline.Period) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range periods {
		r.records[uploadKey{companyKey, p}] = &upload.Record{
			CompanyKey: companyKey, Year: p.Year, Month: p.Month,
			HasKB: true, HasYB: true, Complete: true,
		}
	}
}

func (r *MemoryUploadRepo) Upsert(_ context.Context, rec *upload.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	cp := *rec
	cp.Files = append([]string(nil), rec.Files...)
	r.records[uploadKey{rec.CompanyKey, rec.Period()}] = &cp
	return nil
}

func (r *MemoryUploadRepo) Find(_ context.Context, companyKey string, period deadline.Period) (*upload.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	rec, ok := r.records[uploadKey{companyKey, period}]
	if !ok {
		return nil, errors.New(errors.CodeUploadNotFound, "upload record not found").WithDetail(companyKey + " " + period.String())
	}
	cp := *rec
	cp.Files = append([]string(nil), rec.Files...)
	return &cp, nil
}

func (r *MemoryUploadRepo) ListByCompany(_ context.Context, companyKey string) ([]*upload.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	var out []*upload.Record
	for k, rec := range r.records {
		if k.companyKey == companyKey {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *MemoryUploadRepo) FiledPeriods(ctx context.Context, companyKey string) ([]deadline.Period, error) {
	recs, err := r.ListByCompany(ctx, companyKey)
	if err != nil {
		return nil, err
	}
	return upload.FiledPeriods(recs), nil
}

func (r *MemoryUploadRepo) ListAll(_ context.Context) ([]*upload.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]*upload.Record, 0, len(r.records))
	for _, rec := range r.records {
		cp := *rec
		out = append(out, &cp)
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(recs []*upload.Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CompanyKey != recs[j].CompanyKey {
			return recs[i].CompanyKey < recs[j].CompanyKey
		}
		return recs[j].Period().Before(recs[i].Period())
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// MemorySentAlerts
// ─────────────────────────────────────────────────────────────────────────────

// MemorySentAlerts is an in-memory sent-alert registry.
type MemorySentAlerts struct {
	mu   sync.Mutex
	sent map[string]bool
}

func NewMemorySentAlerts() *MemorySentAlerts {
	return &MemorySentAlerts{sent: make(map[string]bool)}
}

func sentKey(date deadline.Date, threshold int) string {
	return fmt.Sprintf("%s/%d", date, threshold)
}

func (m *MemorySentAlerts) WasSent(_ context.Context, date deadline.Date, threshold int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[sentKey(date, threshold)], nil
}

func (m *MemorySentAlerts) MarkSent(_ context.Context, date deadline.Date, threshold int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[sentKey(date, threshold)] = true
	return nil
}
