// Package upload models the e-Defter upload history of a company: which
// periods have their GIB-signed KB and YB berat archives on disk, and which of
// those periods therefore count as filed.
package upload

import (
	"sort"
	"time"

	"github.com/turtacn/edefter-tracker/internal/domain/deadline"
)

// ArchiveKind is the ledger type of a GIB berat archive.
type ArchiveKind string

const (
	// KindKebir is the general ledger (büyük defter) berat.
	KindKebir ArchiveKind = "KB"
	// KindYevmiye is the journal (yevmiye defteri) berat.
	KindYevmiye ArchiveKind = "YB"
)

// Record is the upload state of one company period.
type Record struct {
	CompanyKey string `json:"company_key" db:"company_key"`
	Year       int    `json:"year" db:"year"`
	Month      int    `json:"month" db:"month"`
	HasKB      bool   `json:"has_kb" db:"has_kb"`
	HasYB      bool   `json:"has_yb" db:"has_yb"`

	// Complete is true once both archives were seen.  Only complete records
	// count as filed.
	Complete bool `json:"complete" db:"complete"`

	// Files lists the archive paths that contributed to this record.
	Files []string `json:"files,omitempty" db:"-"`

	DetectedAt time.Time `json:"detected_at" db:"detected_at"`
}

// Period returns the record's period.
func (r *Record) Period() deadline.Period {
	return deadline.Period{Year: r.Year, Month: r.Month}
}

// Merge marks archive a on the record and recomputes Complete.  It reports
// whether the record changed.
func (r *Record) Merge(a Archive, seenAt time.Time) bool {
	changed := false
	switch a.Kind {
	case KindKebir:
		changed = !r.HasKB
		r.HasKB = true
	case KindYevmiye:
		changed = !r.HasYB
		r.HasYB = true
	}
	if a.Path != "" && !containsString(r.Files, a.Path) {
		r.Files = append(r.Files, a.Path)
		changed = true
	}
	complete := r.HasKB && r.HasYB
	if complete && !r.Complete {
		r.DetectedAt = seenAt
	}
	r.Complete = complete
	return changed
}

// NewRecord returns an empty record for the archive's company period.
func NewRecord(a Archive) *Record {
	return &Record{CompanyKey: a.CompanyKey, Year: a.Period.Year, Month: a.Period.Month}
}

// FiledPeriods returns the deduplicated periods of complete records, newest
// first.
func FiledPeriods(records []*Record) []deadline.Period {
	seen := make(map[deadline.Period]struct{}, len(records))
	out := make([]deadline.Period, 0, len(records))
	for _, r := range records {
		if !r.Complete {
			continue
		}
		p := r.Period()
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[j].Before(out[i]) })
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
