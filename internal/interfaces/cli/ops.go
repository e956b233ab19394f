package cli

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/edefter-tracker/internal/application/backup"
	"github.com/turtacn/edefter-tracker/internal/application/notification"
	"github.com/turtacn/edefter-tracker/internal/application/reporting"
	"github.com/turtacn/edefter-tracker/internal/application/tracking"
	"github.com/turtacn/edefter-tracker/internal/infrastructure/database/sqlite"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// notify
// ─────────────────────────────────────────────────────────────────────────────

// NewNotifyCmd groups reminder commands.
func NewNotifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Reminder digests",
	}
	cmd.AddCommand(newNotifyCheckCmd())
	return cmd
}

func newNotifyCheckCmd() *cobra.Command {
	var (
		dryRun   bool
		htmlPath string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Send today's reminder digest now",
		Long: `Build today's reminder digest and mail it, as the worker does at each
alert time.  Thresholds already mailed today are left out.  With --dry-run
nothing is sent or recorded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, a, err := openApp(cmd, !dryRun)
			if err != nil {
				return err
			}
			now := a.Tracking.Now()

			var res *notification.CheckResult
			if dryRun {
				res, err = a.Scheduler.Preview(cmd.Context(), now)
			} else {
				res, err = a.Scheduler.Check(cmd.Context(), now)
			}
			if err != nil {
				return err
			}

			if htmlPath != "" && res.HTML != "" {
				if err := os.WriteFile(htmlPath, []byte(res.HTML), 0o644); err != nil {
					return errors.Wrap(err, errors.ErrCodeInternal, "failed to write digest").WithDetail(htmlPath)
				}
			}
			return PrintResult(cmd, checkView{res})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "build the digest without sending it")
	cmd.Flags().StringVar(&htmlPath, "html", "", "also write the rendered digest to this file")
	return cmd
}

type checkView struct{ *notification.CheckResult }

func (v checkView) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s", v.Date, v.Status)
	if v.Digest != nil {
		for _, sec := range v.Digest.Sections {
			fmt.Fprintf(&sb, "\n  %s: %d", sec.Title(), len(sec.Rows))
			for _, r := range sec.Rows {
				fmt.Fprintf(&sb, "\n    - %s (%s, %s)", r.CompanyName, r.PeriodLabel, tracking.FormatDate(r.DeadlineDate))
			}
		}
	}
	if len(v.AlreadySent) > 0 {
		sent := make([]string, len(v.AlreadySent))
		for i, th := range v.AlreadySent {
			sent[i] = strconv.Itoa(th)
		}
		fmt.Fprintf(&sb, "\n  already sent today: %s", strings.Join(sent, ", "))
	}
	if v.EventsPublished > 0 {
		fmt.Fprintf(&sb, "\n  events published: %d", v.EventsPublished)
	}
	return sb.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// export
// ─────────────────────────────────────────────────────────────────────────────

// NewExportCmd writes the deadline table to an Excel workbook.
func NewExportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export deadlines to an Excel workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			if out == "" {
				out = reporting.FileName(a.Tracking.Now())
			}
			rows, err := a.Tracking.ListDeadlines(cmd.Context(), tracking.Filter{})
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeExportFailed, "failed to create export file").WithDetail(out)
			}
			if err := a.Exporter.ExportDeadlines(cmd.Context(), f, rows); err != nil {
				f.Close()
				os.Remove(out)
				return err
			}
			if err := f.Close(); err != nil {
				return errors.Wrap(err, errors.ErrCodeExportFailed, "failed to write export file").WithDetail(out)
			}
			PrintSuccess(cmd, fmt.Sprintf("%d companies written to %s", len(rows), out))
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "output file (default edefter-takvim-<date>.xlsx)")
	return cmd
}

// ─────────────────────────────────────────────────────────────────────────────
// backup
// ─────────────────────────────────────────────────────────────────────────────

// NewBackupCmd groups backup commands.
func NewBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up the tracker database",
	}
	cmd.AddCommand(newBackupCreateCmd(), newBackupListCmd())
	return cmd
}

func newBackupCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a backup archive now",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, a, err := openApp(cmd, true)
			if err != nil {
				return err
			}
			info, err := a.Backup.Create(cmd.Context())
			if err != nil {
				return err
			}
			return PrintResult(cmd, info)
		},
	}
}

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List local backup archives, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			list, err := a.Backup.List(cmd.Context())
			if err != nil {
				return err
			}
			return PrintResult(cmd, backupTable(list))
		},
	}
}

type backupTable []backup.Info

func (t backupTable) TableHeaders() []string {
	return []string{"NAME", "SIZE", "CREATED"}
}

func (t backupTable) TableRows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, b := range t {
		rows = append(rows, []string{b.Name, strconv.FormatInt(b.Size, 10), b.CreatedAt.Format("2006-01-02 15:04:05")})
	}
	return rows
}

// ─────────────────────────────────────────────────────────────────────────────
// db
// ─────────────────────────────────────────────────────────────────────────────

// SchemaStatus is the migration state of the database file.
type SchemaStatus struct {
	Path    string `json:"path"`
	Version uint   `json:"version"`
	Dirty   bool   `json:"dirty"`
}

func (s SchemaStatus) String() string {
	state := "clean"
	if s.Dirty {
		state = "dirty"
	}
	return fmt.Sprintf("%s: schema version %d (%s)", s.Path, s.Version, state)
}

// NewDBCmd groups schema maintenance commands.  The tracker migrates on
// start, so these are only needed to inspect or undo a release.
func NewDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect or roll back the database schema",
	}
	cmd.AddCommand(newDBStatusCmd(), newDBRollbackCmd())
	return cmd
}

func schemaStatus(path string) (SchemaStatus, error) {
	version, dirty, err := sqlite.MigrationStatus(path)
	if err != nil {
		return SchemaStatus{}, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read schema version")
	}
	return SchemaStatus{Path: path, Version: version, Dirty: dirty}, nil
}

func newDBStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			st, err := schemaStatus(cliCtx.Config.Database.Path)
			if err != nil {
				return err
			}
			return PrintResult(cmd, st)
		},
	}
}

func newDBRollbackCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Undo the most recent schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			path := cliCtx.Config.Database.Path
			if err := sqlite.RollbackMigration(path, steps); err != nil {
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "schema rollback failed")
			}
			st, err := schemaStatus(path)
			if err != nil {
				return err
			}
			return PrintResult(cmd, st)
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to undo")
	return cmd
}

// ─────────────────────────────────────────────────────────────────────────────
// version
// ─────────────────────────────────────────────────────────────────────────────

// BuildInfo holds version information injected at build time.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("edefter %s (commit %s, built %s, %s)", b.Version, b.Commit, b.BuildDate, b.GoVersion)
}

// NewVersionCmd prints build information.  It needs no configuration.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			info := BuildInfo{Version: Version, Commit: GitCommit, BuildDate: BuildDate, GoVersion: runtime.Version()}
			format, _ := cmd.Flags().GetString("output")
			if strings.EqualFold(format, OutputJSON) {
				return printJSON(cmd, info)
			}
			return printText(cmd, info)
		},
	}
}
