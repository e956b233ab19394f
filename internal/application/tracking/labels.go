package tracking

import (
	"time"

	"github.com/turtacn/edefter-tracker/internal/domain/deadline"
)

// Turkish display labels shared by the digest and the Excel report.

func StatusLabel(s deadline.Status) string {
	switch s {
	case deadline.StatusOverdue:
		return "Gecikmiş"
	case deadline.StatusDueSoon:
		return "Yaklaşıyor"
	case deadline.StatusPending:
		return "Bekliyor"
	}
	return string(s)
}

func RegimeLabel(r deadline.Regime) string {
	switch r {
	case deadline.RegimeIncomeTax:
		return "Gelir Vergisi"
	case deadline.RegimeCorporateTax:
		return "Kurumlar Vergisi"
	}
	return string(r)
}

func CadenceLabel(c deadline.Cadence) string {
	switch c {
	case deadline.CadenceMonthly:
		return "Aylık"
	case deadline.CadenceQuarterly:
		return "3 Aylık"
	}
	return string(c)
}

// FormatDate renders t as dd.mm.yyyy.
func FormatDate(t time.Time) string {
	return t.Format("02.01.2006")
}
