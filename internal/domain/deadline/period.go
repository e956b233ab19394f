// Package deadline implements the e-Defter deadline engine: period
// advancement over a company's upload history, statutory deadline lookup,
// weekend/holiday roll-forward and status classification.  The package is
// pure; it performs no I/O and holds no mutable state.
package deadline

import (
	"fmt"
	"strings"

	"github.com/turtacn/edefter-tracker/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Regime enumeration
// ─────────────────────────────────────────────────────────────────────────────

// Regime is the tax regime of a filer.  It selects the deadline-day table.
type Regime string

const (
	// RegimeIncomeTax covers individual (gelir vergisi) filers.
	RegimeIncomeTax Regime = "income-tax"

	// RegimeCorporateTax covers company (kurumlar vergisi) filers.
	RegimeCorporateTax Regime = "corporate-tax"
)

// IsValid reports whether r is a known regime.
func (r Regime) IsValid() bool {
	return r == RegimeIncomeTax || r == RegimeCorporateTax
}

// ParseRegime accepts the canonical names plus the short forms used on the
// command line ("income", "corporate").
func ParseRegime(s string) (Regime, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income-tax", "income", "gelir":
		return RegimeIncomeTax, nil
	case "corporate-tax", "corporate", "kurumlar":
		return RegimeCorporateTax, nil
	}
	return "", errors.InvalidParam("unknown tax regime").WithDetail(s)
}

// ─────────────────────────────────────────────────────────────────────────────
// Cadence enumeration
// ─────────────────────────────────────────────────────────────────────────────

// Cadence is the reporting frequency of a filer.
type Cadence string

const (
	CadenceMonthly   Cadence = "monthly"
	CadenceQuarterly Cadence = "quarterly"
)

// IsValid reports whether c is a known cadence.
func (c Cadence) IsValid() bool {
	return c == CadenceMonthly || c == CadenceQuarterly
}

// ParseCadence parses a cadence name.
func ParseCadence(s string) (Cadence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly", "aylik":
		return CadenceMonthly, nil
	case "quarterly", "3-monthly", "ucaylik":
		return CadenceQuarterly, nil
	}
	return "", errors.InvalidParam("unknown reporting cadence").WithDetail(s)
}

// ─────────────────────────────────────────────────────────────────────────────
// Period value object
// ─────────────────────────────────────────────────────────────────────────────

// Period is a calendar month.  For quarterly cadence the engine uses the
// first month of the quarter (1, 4, 7 or 10) as the period key.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// NewPeriod validates month and returns the Period.
func NewPeriod(year, month int) (Period, error) {
	if month < 1 || month > 12 {
		return Period{}, errors.InvalidParam("month must be between 1 and 12").
			WithDetail(fmt.Sprintf("month=%d", month))
	}
	return Period{Year: year, Month: month}, nil
}

// Before reports whether p sorts strictly before o by (year, month).
func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

// After reports whether p sorts strictly after o.
func (p Period) After(o Period) bool {
	return o.Before(p)
}

// NextMonth returns the following calendar month.
func (p Period) NextMonth() Period {
	if p.Month >= 12 {
		return Period{Year: p.Year + 1, Month: 1}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// QuarterStart returns the first month of the quarter containing p.
func (p Period) QuarterStart() Period {
	return Period{Year: p.Year, Month: QuarterStartMonth(p.Month)}
}

// NextQuarter returns the first month of the quarter after the one
// containing p.
func (p Period) NextQuarter() Period {
	start := QuarterStartMonth(p.Month)
	if start == 10 {
		return Period{Year: p.Year + 1, Month: 1}
	}
	return Period{Year: p.Year, Month: start + 3}
}

// Quarter returns 1..4.
func (p Period) Quarter() int {
	return (p.Month-1)/3 + 1
}

// String renders "2025-02" for months.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Label renders the period for the given cadence: "2025-02" or "2025-Q2".
func (p Period) Label(c Cadence) string {
	if c == CadenceQuarterly {
		return fmt.Sprintf("%04d-Q%d", p.Year, p.Quarter())
	}
	return p.String()
}

// QuarterStartMonth maps a month onto the first month of its quarter.
func QuarterStartMonth(month int) int {
	return ((month-1)/3)*3 + 1
}
