// Package registry manages the tracked companies and exposes their upload
// history.  Every change drops the cached deadline pass.
package registry

import (
	"context"
	"strings"

	"github.com/turtacn/edefter-tracker/internal/domain/company"
	"github.com/turtacn/edefter-tracker/internal/domain/deadline"
	"github.com/turtacn/edefter-tracker/internal/domain/upload"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

// AddInput carries the fields of a new company.
type AddInput struct {
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
	Regime     string `json:"regime"`
	Cadence    string `json:"cadence"`
	Email      string `json:"email,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// UpdateInput is a partial change; nil fields are kept.
type UpdateInput struct {
	Name       *string `json:"name,omitempty"`
	Identifier *string `json:"identifier,omitempty"`
	Regime     *string `json:"regime,omitempty"`
	Cadence    *string `json:"cadence,omitempty"`
	Email      *string `json:"email,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

// Invalidator drops derived state after a change.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Service defines the company registry contract.  ref arguments accept a
// company ID or its VKN/TCKN.
type Service interface {
	Add(ctx context.Context, in AddInput) (*company.Company, error)
	Update(ctx context.Context, ref string, in UpdateInput) (*company.Company, error)
	SetActive(ctx context.Context, ref string, active bool) (*company.Company, error)
	Remove(ctx context.Context, ref string) error
	Get(ctx context.Context, ref string) (*company.Company, error)
	List(ctx context.Context, opts company.ListOptions) ([]*company.Company, error)
	Uploads(ctx context.Context, ref string) ([]*upload.Record, error)
}

type serviceImpl struct {
	companies   company.Repository
	uploads     upload.Repository
	invalidator Invalidator
	logger      logging.Logger
}

// NewService returns the registry.  invalidator may be nil.
func NewService(companies company.Repository, uploads upload.Repository, invalidator Invalidator, logger logging.Logger) Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &serviceImpl{companies: companies, uploads: uploads, invalidator: invalidator, logger: logger}
}

func (s *serviceImpl) Add(ctx context.Context, in AddInput) (*company.Company, error) {
	regime, err := parseRegimeFor(in.Identifier, in.Regime)
	if err != nil {
		return nil, err
	}
	cadence, err := deadline.ParseCadence(defaultString(in.Cadence, string(deadline.CadenceMonthly)))
	if err != nil {
		return nil, err
	}
	c, err := company.NewCompany(in.Name, in.Identifier, regime, cadence)
	if err != nil {
		return nil, err
	}
	if in.Email != "" || in.Notes != "" {
		email, notes := in.Email, in.Notes
		if err := c.Apply(company.Update{Email: &email, Notes: &notes}); err != nil {
			return nil, err
		}
	}
	if err := s.companies.Save(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("company added",
		logging.String("company_id", c.ID),
		logging.String("company_key", c.Key()),
		logging.String("regime", string(c.Regime)))
	s.invalidate(ctx)
	return c, nil
}

func (s *serviceImpl) Update(ctx context.Context, ref string, in UpdateInput) (*company.Company, error) {
	c, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	u := company.Update{Name: in.Name, Identifier: in.Identifier, Email: in.Email, Notes: in.Notes}
	if in.Regime != nil {
		r, err := deadline.ParseRegime(*in.Regime)
		if err != nil {
			return nil, err
		}
		u.Regime = &r
	}
	if in.Cadence != nil {
		cd, err := deadline.ParseCadence(*in.Cadence)
		if err != nil {
			return nil, err
		}
		u.Cadence = &cd
	}
	if err := c.Apply(u); err != nil {
		return nil, err
	}
	if err := s.companies.Save(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("company updated", logging.String("company_id", c.ID))
	s.invalidate(ctx)
	return c, nil
}

func (s *serviceImpl) SetActive(ctx context.Context, ref string, active bool) (*company.Company, error) {
	c, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if c.Active == active {
		return c, nil
	}
	if active {
		c.Activate()
	} else {
		c.Deactivate()
	}
	if err := s.companies.Save(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("company tracking changed",
		logging.String("company_id", c.ID),
		logging.Bool("active", active))
	s.invalidate(ctx)
	return c, nil
}

func (s *serviceImpl) Remove(ctx context.Context, ref string) error {
	c, err := s.Get(ctx, ref)
	if err != nil {
		return err
	}
	if err := s.companies.Delete(ctx, c.ID); err != nil {
		return err
	}
	s.logger.Info("company removed", logging.String("company_id", c.ID), logging.String("company_key", c.Key()))
	s.invalidate(ctx)
	return nil
}

func (s *serviceImpl) Get(ctx context.Context, ref string) (*company.Company, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.InvalidParam("company reference is required")
	}
	if isIdentifier(ref) {
		return s.companies.FindByKey(ctx, ref)
	}
	return s.companies.FindByID(ctx, ref)
}

func (s *serviceImpl) List(ctx context.Context, opts company.ListOptions) ([]*company.Company, error) {
	return s.companies.List(ctx, opts)
}

func (s *serviceImpl) Uploads(ctx context.Context, ref string) ([]*upload.Record, error) {
	c, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.uploads.ListByCompany(ctx, c.Key())
}

func (s *serviceImpl) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx); err != nil {
		s.logger.Warn("failed to invalidate deadline cache", logging.Err(err))
	}
}

// parseRegimeFor defaults the regime from the identifier: a TCKN files under
// income tax, a VKN under corporate tax.
func parseRegimeFor(identifier, regime string) (deadline.Regime, error) {
	if strings.TrimSpace(regime) != "" {
		return deadline.ParseRegime(regime)
	}
	if len(strings.TrimSpace(identifier)) == company.NationalIDLength {
		return deadline.RegimeIncomeTax, nil
	}
	return deadline.RegimeCorporateTax, nil
}

func isIdentifier(ref string) bool {
	if len(ref) != company.TaxNumberLength && len(ref) != company.NationalIDLength {
		return false
	}
	for _, r := range ref {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func defaultString(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
