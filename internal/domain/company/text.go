package company

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// FoldName lower-cases s with Turkish rules (İ→i, I→ı) so "ISIK" and "ışık"
// compare equal.
func FoldName(s string) string {
	return cases.Lower(language.Turkish).String(strings.TrimSpace(s))
}

// Matches reports whether c's name or identifier contains query.
func (c *Company) Matches(query string) bool {
	q := FoldName(query)
	if q == "" {
		return true
	}
	return strings.Contains(FoldName(c.Name), q) || strings.Contains(c.Key(), q)
}

// NameLess returns a comparator ordering names with Turkish collation.
// The returned function is not safe for concurrent use.
func NameLess() func(a, b string) bool {
	col := collate.New(language.Turkish, collate.IgnoreCase)
	return func(a, b string) bool {
		return col.CompareString(a, b) < 0
	}
}

// SortByName orders companies by name using Turkish collation.
func SortByName(companies []*Company) {
	less := NameLess()
	sort.SliceStable(companies, func(i, j int) bool {
		return less(companies[i].Name, companies[j].Name)
	})
}
