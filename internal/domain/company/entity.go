// Package company implements the Company aggregate: tax identifier
// validation, regime inference and the persistence contract used by the
// tracking, monitoring and notification services.
package company

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/edefter-tracker/internal/domain/deadline"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

// Identifier lengths.  A VKN (vergi kimlik numarası) has 10 digits, a TCKN
// (T.C. kimlik numarası) has 11.
const (
	TaxNumberLength  = 10
	NationalIDLength = 11
)

// ─────────────────────────────────────────────────────────────────────────────
// Company aggregate root
// ─────────────────────────────────────────────────────────────────────────────

// Company is a filer whose e-Defter uploads are tracked.
type Company struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`

	// TaxNumber is the 10-digit VKN.  Empty for sole proprietors that file
	// under their national ID.
	TaxNumber string `json:"tax_number,omitempty" db:"tax_number"`

	// NationalID is the 11-digit TCKN.  When present it is the matching key
	// and the company files under the income-tax regime.
	NationalID string `json:"national_id,omitempty" db:"national_id"`

	Regime  deadline.Regime  `json:"regime" db:"regime"`
	Cadence deadline.Cadence `json:"cadence" db:"cadence"`

	Email  string `json:"email,omitempty" db:"email"`
	Notes  string `json:"notes,omitempty" db:"notes"`
	Active bool   `json:"active" db:"active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewCompany validates the input and returns an active company.  The
// identifier may be a VKN or a TCKN; a TCKN forces the income-tax regime.
func NewCompany(name, identifier string, regime deadline.Regime, cadence deadline.Cadence) (*Company, error) {
	now := time.Now().UTC()
	c := &Company{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Regime:    regime,
		Cadence:   cadence,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.setIdentifier(identifier); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Key returns the identifier upload records are matched on.
func (c *Company) Key() string {
	if c.NationalID != "" {
		return c.NationalID
	}
	return c.TaxNumber
}

// Validate enforces the aggregate invariants.
func (c *Company) Validate() error {
	if c.Name == "" {
		return errors.InvalidParam("company name must not be empty")
	}
	if c.TaxNumber == "" && c.NationalID == "" {
		return errors.New(errors.CodeCompanyInvalidIdentifier, "tax number or national ID is required")
	}
	if c.TaxNumber != "" && c.NationalID != "" {
		return errors.New(errors.CodeCompanyInvalidIdentifier, "only one of tax number and national ID may be set")
	}
	if c.TaxNumber != "" && !isDigits(c.TaxNumber, TaxNumberLength) {
		return errors.New(errors.CodeCompanyInvalidIdentifier, "tax number must have 10 digits").WithDetail(c.TaxNumber)
	}
	if c.NationalID != "" {
		if !isDigits(c.NationalID, NationalIDLength) || c.NationalID[0] == '0' {
			return errors.New(errors.CodeCompanyInvalidIdentifier, "national ID must have 11 digits and not start with 0").
				WithDetail(c.NationalID)
		}
		if c.Regime != deadline.RegimeIncomeTax {
			return errors.InvalidParam("national ID filers use the income-tax regime")
		}
	}
	if !c.Regime.IsValid() {
		return errors.InvalidParam("invalid tax regime").WithDetail(string(c.Regime))
	}
	if !c.Cadence.IsValid() {
		return errors.InvalidParam("invalid reporting cadence").WithDetail(string(c.Cadence))
	}
	if c.Email != "" {
		if _, err := mail.ParseAddress(c.Email); err != nil {
			return errors.InvalidParam("invalid e-mail address").WithDetail(c.Email)
		}
	}
	return nil
}

// Update describes a partial change.  Nil fields are left untouched.
type Update struct {
	Name       *string
	Identifier *string
	Regime     *deadline.Regime
	Cadence    *deadline.Cadence
	Email      *string
	Notes      *string
}

// Apply mutates c and re-validates.  On error c is left unchanged.
func (c *Company) Apply(u Update) error {
	next := *c
	if u.Name != nil {
		next.Name = strings.TrimSpace(*u.Name)
	}
	if u.Regime != nil {
		next.Regime = *u.Regime
	}
	if u.Cadence != nil {
		next.Cadence = *u.Cadence
	}
	if u.Email != nil {
		next.Email = strings.TrimSpace(*u.Email)
	}
	if u.Notes != nil {
		next.Notes = *u.Notes
	}
	if u.Identifier != nil {
		if err := next.setIdentifier(*u.Identifier); err != nil {
			return err
		}
	}
	if err := next.Validate(); err != nil {
		return err
	}
	next.UpdatedAt = time.Now().UTC()
	*c = next
	return nil
}

// Activate marks the company as tracked.
func (c *Company) Activate() {
	c.Active = true
	c.UpdatedAt = time.Now().UTC()
}

// Deactivate stops tracking without deleting history.
func (c *Company) Deactivate() {
	c.Active = false
	c.UpdatedAt = time.Now().UTC()
}

func (c *Company) setIdentifier(identifier string) error {
	id := strings.TrimSpace(identifier)
	switch len(id) {
	case TaxNumberLength:
		c.TaxNumber, c.NationalID = id, ""
	case NationalIDLength:
		c.TaxNumber, c.NationalID = "", id
		c.Regime = deadline.RegimeIncomeTax
	default:
		return errors.New(errors.CodeCompanyInvalidIdentifier, "identifier must have 10 or 11 digits").WithDetail(id)
	}
	return nil
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
