package deadline

import (
	"fmt"

	"github.com/turtacn/edefter-tracker/pkg/errors"
)

// Rule is the statutory deadline for one period key: the deadline falls on
// DeadlineDay of DeadlineMonth in the period's year plus YearOffset.
type Rule struct {
	DeadlineMonth int `json:"deadline_month" mapstructure:"deadline_month"`
	DeadlineDay   int `json:"deadline_day" mapstructure:"deadline_day"`
	YearOffset    int `json:"year_offset" mapstructure:"year_offset"`
}

// RuleKey addresses one entry of a RuleTable.  PeriodKey is the month for
// monthly cadence and the quarter start month (1, 4, 7, 10) for quarterly.
type RuleKey struct {
	Regime    Regime
	Cadence   Cadence
	PeriodKey int
}

func (k RuleKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Regime, k.Cadence, k.PeriodKey)
}

// RuleTable is the static e-Defter berat upload deadline table.
type RuleTable map[RuleKey]Rule

// Lookup returns the rule for key or a configuration error when the table has
// no entry.
func (t RuleTable) Lookup(key RuleKey) (Rule, error) {
	r, ok := t[key]
	if !ok {
		return Rule{}, errors.Configuration("no deadline rule").WithDetail(key.String())
	}
	return r, nil
}

// Statutory deadline days: corporate filers upload by the 14th, income tax
// filers by the 10th.
const (
	corporateDeadlineDay = 14
	incomeDeadlineDay    = 10
)

// monthsAfterPeriodEnd is the number of months between the last month of a
// period and the month its berat is due.
const monthsAfterPeriodEnd = 4

// DefaultRuleTable returns the e-Defter rules: every period is due in the
// fourth month after the period's last month.
//
//	monthly:   Jan→May, Feb→Jun, ... Sep→Jan(+1), ... Dec→Apr(+1)
//	quarterly: Q1→Jul, Q2→Oct, Q3→Jan(+1), Q4→Apr(+1)
func DefaultRuleTable() RuleTable {
	t := make(RuleTable, 32)
	for _, regime := range []Regime{RegimeCorporateTax, RegimeIncomeTax} {
		day := incomeDeadlineDay
		if regime == RegimeCorporateTax {
			day = corporateDeadlineDay
		}
		for m := 1; m <= 12; m++ {
			t[RuleKey{regime, CadenceMonthly, m}] = ruleAfter(m, day)
		}
		for _, q := range []int{1, 4, 7, 10} {
			t[RuleKey{regime, CadenceQuarterly, q}] = ruleAfter(q+2, day)
		}
	}
	return t
}

func ruleAfter(lastMonth, day int) Rule {
	target := lastMonth + monthsAfterPeriodEnd
	offset := 0
	if target > 12 {
		target -= 12
		offset = 1
	}
	return Rule{DeadlineMonth: target, DeadlineDay: day, YearOffset: offset}
}
