package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/edefter-tracker/internal/application/monitoring"
	"github.com/turtacn/edefter-tracker/internal/application/tracking"
	"github.com/turtacn/edefter-tracker/internal/domain/deadline"
)

// NewScanCmd rescans the archive folder once.
func NewScanCmd() *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the archive folder for berat archives",
		Long: `Walk the archive folder, parse every GIB berat archive name
(GIB-<VKN|TCKN>-<YYYYMM>-<KB|YB>-<seq>.zip) and record which periods have
been uploaded.  Running it twice is harmless.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			if root == "" {
				root = a.Config.Archive.Root
			}
			res, err := a.Monitor.Scan(cmd.Context(), root)
			if err != nil {
				return err
			}
			return PrintResult(cmd, scanView{res})
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "archive folder (default archive.root)")
	return cmd
}

// NewDeadlinesCmd lists the next deadline of every active company.
func NewDeadlinesCmd() *cobra.Command {
	var (
		statuses []string
		regime   string
		query    string
	)

	cmd := &cobra.Command{
		Use:     "deadlines",
		Aliases: []string{"takvim"},
		Short:   "List upcoming e-Defter deadlines",
		Long:    "List the next upload deadline of every active company, most urgent first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := tracking.Filter{Query: query}
			for _, s := range statuses {
				st, err := deadline.ParseStatus(strings.TrimSpace(s))
				if err != nil {
					return err
				}
				filter.Statuses = append(filter.Statuses, st)
			}
			if regime != "" {
				r, err := deadline.ParseRegime(regime)
				if err != nil {
					return err
				}
				filter.Regime = r
			}

			_, a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			rows, err := a.Tracking.ListDeadlines(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return PrintResult(cmd, deadlineTable(rows))
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "filter by status (overdue, due-soon, pending; comma-separated)")
	cmd.Flags().StringVar(&regime, "regime", "", "filter by regime (income-tax, corporate-tax)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "filter by company name or identifier")
	return cmd
}

// NewDashboardCmd prints portfolio-wide counts.
func NewDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Summarize the tracked portfolio",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			d, err := a.Tracking.Dashboard(cmd.Context())
			if err != nil {
				return err
			}
			return PrintResult(cmd, dashboardView{d})
		},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Views
// ─────────────────────────────────────────────────────────────────────────────

type scanView struct{ *monitoring.ScanResult }

func (v scanView) String() string {
	return fmt.Sprintf("%s: %d files, %d archives, %d invalid, %d records updated (%s)",
		v.Root, v.FilesSeen, v.Archives, v.Invalid, v.RecordsTouched, v.Duration.Round(time.Millisecond))
}

type deadlineTable []tracking.Row

func (t deadlineTable) TableHeaders() []string {
	return []string{"FIRMA", "VKN/TCKN", "VERGİ", "DÖNEM", "SON GÜN", "KALAN", "DURUM"}
}

func (t deadlineTable) TableRows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		rows = append(rows, []string{
			r.CompanyName,
			r.CompanyKey,
			tracking.RegimeLabel(r.Regime),
			r.PeriodLabel,
			tracking.FormatDate(r.DeadlineDate),
			strconv.Itoa(r.RemainingDays),
			tracking.StatusLabel(r.Status),
		})
	}
	return rows
}

type dashboardView struct{ *tracking.Dashboard }

func (v dashboardView) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Firmalar:     %d (aktif %d, geçmişi olmayan %d)\n",
		v.TotalCompanies, v.ActiveCompanies, v.WithoutHistory)
	for _, st := range deadline.AllStatuses {
		fmt.Fprintf(&sb, "%-13s %d\n", tracking.StatusLabel(st)+":", v.ByStatus[st])
	}
	if v.NextDeadline != nil {
		fmt.Fprintf(&sb, "En yakın:     %s\n", tracking.FormatDate(*v.NextDeadline))
	}
	if len(v.MostUrgent) > 0 {
		sb.WriteString("\n")
		sb.WriteString(FormatTable(deadlineTable(v.MostUrgent).TableHeaders(), deadlineTable(v.MostUrgent).TableRows()))
	}
	return strings.TrimRight(sb.String(), "\n")
}
