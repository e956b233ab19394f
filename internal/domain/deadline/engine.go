package deadline

import (
	"fmt"
	"time"

	"github.com/turtacn/edefter-tracker/pkg/errors"
)

// Safety bounds.  Exceeding either yields "no deadline", not an error.
const (
	MaxPeriodAdvances  = 36
	MaxRollForwardDays = 365
)

// DueSoonDays is the upper bound of the due-soon status window.  It is
// independent of the alert thresholds used by the notification scheduler.
const DueSoonDays = 3

// DefaultAlertThresholds are the remaining-day counts on which reminder
// digests fire.
var DefaultAlertThresholds = []int{7, 3, 1, 0}

// ─────────────────────────────────────────────────────────────────────────────
// Status
// ─────────────────────────────────────────────────────────────────────────────

// Status classifies a deadline relative to the reference date.
type Status string

const (
	StatusOverdue Status = "overdue"
	StatusDueSoon Status = "due-soon"
	StatusPending Status = "pending"
)

// AllStatuses lists statuses in urgency order.
var AllStatuses = []Status{StatusOverdue, StatusDueSoon, StatusPending}

// ClassifyStatus maps remaining days onto exactly one status.
func ClassifyStatus(remainingDays int) Status {
	switch {
	case remainingDays < 0:
		return StatusOverdue
	case remainingDays <= DueSoonDays:
		return StatusDueSoon
	default:
		return StatusPending
	}
}

// ParseStatus parses a status name.
func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", errors.InvalidParam("unknown deadline status").WithDetail(s)
}

// ─────────────────────────────────────────────────────────────────────────────
// Result
// ─────────────────────────────────────────────────────────────────────────────

// Result is the engine output for one company.  CompanyKey is filled in by
// the caller; the engine only knows periods.
type Result struct {
	CompanyKey    string    `json:"company_key,omitempty"`
	Cadence       Cadence   `json:"cadence"`
	NextPeriod    Period    `json:"next_period"`
	DeadlineDate  time.Time `json:"deadline_date"`
	RemainingDays int       `json:"remaining_days"`
	Status        Status    `json:"status"`
}

// PeriodLabel renders the next period for the result's cadence.
func (r *Result) PeriodLabel() string {
	return r.NextPeriod.Label(r.Cadence)
}

// AlertMatches reports whether result fires the given threshold.  The match
// is exact: each threshold fires on one day only, and callers de-duplicate.
func AlertMatches(result *Result, thresholdDays int) bool {
	return result != nil && result.RemainingDays == thresholdDays
}

// ─────────────────────────────────────────────────────────────────────────────
// Engine
// ─────────────────────────────────────────────────────────────────────────────

// Engine computes next deadlines.  It is immutable and safe for concurrent use.
type Engine struct {
	rules    RuleTable
	calendar *HolidayCalendar
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRules replaces the default rule table.
func WithRules(rules RuleTable) Option {
	return func(e *Engine) { e.rules = rules }
}

// WithCalendar replaces the default holiday calendar.
func WithCalendar(c *HolidayCalendar) Option {
	return func(e *Engine) { e.calendar = c }
}

// NewEngine returns an engine using the default rules and calendar unless
// overridden.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.rules == nil {
		e.rules = DefaultRuleTable()
	}
	if e.calendar == nil {
		e.calendar = NewHolidayCalendar()
	}
	return e
}

// Calendar exposes the holiday calendar in use.
func (e *Engine) Calendar() *HolidayCalendar {
	return e.calendar
}

// NextDeadlineFor returns the next unfiled period after the most recent filed
// one, its holiday-adjusted deadline and its status relative to ref.
//
// A nil result with a nil error means no deadline is computable: filed is
// empty or a safety bound was reached.  A configuration error means the rule
// table is missing an entry or yields an invalid date.
func (e *Engine) NextDeadlineFor(regime Regime, cadence Cadence, filed []Period, ref time.Time) (*Result, error) {
	if len(filed) == 0 {
		return nil, nil
	}

	candidate, ok := nextUnfiled(cadence, filed)
	if !ok {
		return nil, nil
	}

	key := RuleKey{Regime: regime, Cadence: cadence, PeriodKey: candidate.Month}
	rule, err := e.rules.Lookup(key)
	if err != nil {
		return nil, err
	}

	raw, err := ruleDate(candidate.Year+rule.YearOffset, rule)
	if err != nil {
		return nil, err
	}

	due, ok := e.rollForward(raw)
	if !ok {
		return nil, nil
	}

	remaining := DateOf(ref).DaysUntil(due)
	return &Result{
		Cadence:       cadence,
		NextPeriod:    candidate,
		DeadlineDate:  due.Time(),
		RemainingDays: remaining,
		Status:        ClassifyStatus(remaining),
	}, nil
}

// nextUnfiled advances from the anchor period until it reaches a period that
// is not filed, giving up after MaxPeriodAdvances steps.
func nextUnfiled(cadence Cadence, filed []Period) (Period, bool) {
	anchor := filed[0]
	months := make(map[Period]struct{}, len(filed))
	quarters := make(map[Period]struct{}, len(filed))
	for _, p := range filed {
		if p.After(anchor) {
			anchor = p
		}
		months[p] = struct{}{}
		quarters[p.QuarterStart()] = struct{}{}
	}

	advance := Period.NextMonth
	filedSet := months
	if cadence == CadenceQuarterly {
		advance = Period.NextQuarter
		filedSet = quarters
	}
	isFiled := func(p Period) bool {
		_, ok := filedSet[p]
		return ok
	}

	return advanceUntilUnfiled(anchor, advance, isFiled)
}

// advanceUntilUnfiled steps forward from start until isFiled reports false,
// giving up after MaxPeriodAdvances steps.  Starting from the latest filed
// period the first step already lands on an unfiled one; the cap only bounds
// the loop for an isFiled that never does.
func advanceUntilUnfiled(start Period, advance func(Period) Period, isFiled func(Period) bool) (Period, bool) {
	candidate := advance(start)
	for steps := 1; isFiled(candidate); steps++ {
		if steps >= MaxPeriodAdvances {
			return Period{}, false
		}
		candidate = advance(candidate)
	}
	return candidate, true
}

// ruleDate builds the raw deadline date, rejecting values time.Date would
// silently normalize.
func ruleDate(year int, r Rule) (Date, error) {
	if r.DeadlineMonth < 1 || r.DeadlineMonth > 12 || r.DeadlineDay < 1 {
		return Date{}, errors.Configuration("invalid deadline date").
			WithDetail(fmt.Sprintf("%04d-%02d-%02d", year, r.DeadlineMonth, r.DeadlineDay))
	}
	d := DateOf(time.Date(year, time.Month(r.DeadlineMonth), r.DeadlineDay, 0, 0, 0, 0, time.UTC))
	if int(d.Month) != r.DeadlineMonth || d.Day != r.DeadlineDay {
		return Date{}, errors.Configuration("invalid deadline date").
			WithDetail(fmt.Sprintf("%04d-%02d-%02d", year, r.DeadlineMonth, r.DeadlineDay))
	}
	return d, nil
}

// rollForward moves d to the first business day on or after d.
func (e *Engine) rollForward(d Date) (Date, bool) {
	for i := 0; i <= MaxRollForwardDays; i++ {
		if e.calendar.IsBusinessDay(d) {
			return d, true
		}
		d = d.AddDays(1)
	}
	return Date{}, false
}
