package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/edefter-tracker/internal/application/registry"
	"github.com/turtacn/edefter-tracker/internal/application/tracking"
	"github.com/turtacn/edefter-tracker/internal/domain/company"
	"github.com/turtacn/edefter-tracker/internal/domain/upload"
)

// NewCompanyCmd groups the company registry commands.
func NewCompanyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "company",
		Aliases: []string{"firma"},
		Short:   "Manage tracked companies",
		Long: `Add, change and remove the companies whose e-Defter deadlines are tracked.

A company is referenced by its ID or by its VKN (10 digits) / TCKN (11 digits).
A TCKN always files under the income-tax regime.`,
	}

	cmd.AddCommand(
		newCompanyAddCmd(),
		newCompanyListCmd(),
		newCompanyShowCmd(),
		newCompanyUpdateCmd(),
		newCompanyActiveCmd("activate", true),
		newCompanyActiveCmd("deactivate", false),
		newCompanyRemoveCmd(),
		newCompanyUploadsCmd(),
	)
	return cmd
}

func newCompanyAddCmd() *cobra.Command {
	var in registry.AddInput

	cmd := &cobra.Command{
		Use:   "add <name> <vkn|tckn>",
		Short: "Register a company",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			in.Name, in.Identifier = args[0], args[1]
			c, err := a.Registry.Add(cmd.Context(), in)
			if err != nil {
				return err
			}
			return PrintResult(cmd, companyView{c})
		},
	}

	cmd.Flags().StringVar(&in.Regime, "regime", "", "tax regime: income-tax or corporate-tax (default from identifier length)")
	cmd.Flags().StringVar(&in.Cadence, "cadence", "", "filing cadence: monthly or quarterly (default monthly)")
	cmd.Flags().StringVar(&in.Email, "email", "", "contact e-mail")
	cmd.Flags().StringVar(&in.Notes, "notes", "", "free-form notes")
	return cmd
}

func newCompanyListCmd() *cobra.Command {
	var opts company.ListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List companies",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			list, err := a.Registry.List(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return PrintResult(cmd, companyTable(list))
		},
	}

	cmd.Flags().BoolVar(&opts.ActiveOnly, "active", false, "only active companies")
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "filter by name or identifier")
	return cmd
}

func newCompanyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <ref>",
		Short: "Show one company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			c, err := a.Registry.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return PrintResult(cmd, companyView{c})
		},
	}
}

func newCompanyUpdateCmd() *cobra.Command {
	var name, identifier, regime, cadence, email, notes string

	cmd := &cobra.Command{
		Use:   "update <ref>",
		Short: "Change company fields",
		Long:  "Change the given fields of a company.  Flags that are not passed keep their value.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in registry.UpdateInput
			flags := cmd.Flags()
			if flags.Changed("name") {
				in.Name = &name
			}
			if flags.Changed("identifier") {
				in.Identifier = &identifier
			}
			if flags.Changed("regime") {
				in.Regime = &regime
			}
			if flags.Changed("cadence") {
				in.Cadence = &cadence
			}
			if flags.Changed("email") {
				in.Email = &email
			}
			if flags.Changed("notes") {
				in.Notes = &notes
			}
			if in == (registry.UpdateInput{}) {
				return fmt.Errorf("nothing to update: pass at least one of --name, --identifier, --regime, --cadence, --email, --notes")
			}

			_, a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			c, err := a.Registry.Update(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}
			return PrintResult(cmd, companyView{c})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "company name")
	cmd.Flags().StringVar(&identifier, "identifier", "", "VKN or TCKN")
	cmd.Flags().StringVar(&regime, "regime", "", "income-tax or corporate-tax")
	cmd.Flags().StringVar(&cadence, "cadence", "", "monthly or quarterly")
	cmd.Flags().StringVar(&email, "email", "", "contact e-mail")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	return cmd
}

func newCompanyActiveCmd(use string, active bool) *cobra.Command {
	short := "Resume tracking a company"
	if !active {
		short = "Stop tracking a company without deleting it"
	}
	return &cobra.Command{
		Use:   use + " <ref>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			c, err := a.Registry.SetActive(cmd.Context(), args[0], active)
			if err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("%s %sd", c.Name, use))
			return nil
		},
	}
}

func newCompanyRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <ref>",
		Aliases: []string{"rm"},
		Short:   "Delete a company",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			if err := a.Registry.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			PrintSuccess(cmd, "company removed")
			return nil
		},
	}
}

func newCompanyUploadsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uploads <ref>",
		Short: "List detected uploads of a company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, a, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			records, err := a.Registry.Uploads(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return PrintResult(cmd, uploadTable(records))
		},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Views
// ─────────────────────────────────────────────────────────────────────────────

type companyView struct{ *company.Company }

func (v companyView) String() string {
	c := v.Company
	state := "aktif"
	if !c.Active {
		state = "pasif"
	}
	s := fmt.Sprintf("%s\n  ID:        %s\n  VKN/TCKN:  %s\n  Vergi:     %s\n  Dönem:     %s\n  Durum:     %s",
		c.Name, c.ID, c.Key(), tracking.RegimeLabel(c.Regime), tracking.CadenceLabel(c.Cadence), state)
	if c.Email != "" {
		s += "\n  E-posta:   " + c.Email
	}
	if c.Notes != "" {
		s += "\n  Not:       " + c.Notes
	}
	return s
}

type companyTable []*company.Company

func (t companyTable) TableHeaders() []string {
	return []string{"ID", "FIRMA", "VKN/TCKN", "VERGİ", "DÖNEM", "AKTİF"}
}

func (t companyTable) TableRows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, c := range t {
		rows = append(rows, []string{
			c.ID, c.Name, c.Key(),
			tracking.RegimeLabel(c.Regime), tracking.CadenceLabel(c.Cadence),
			strconv.FormatBool(c.Active),
		})
	}
	return rows
}

type uploadTable []*upload.Record

func (t uploadTable) TableHeaders() []string {
	return []string{"DÖNEM", "KB", "YB", "TAMAM", "TESPİT"}
}

func (t uploadTable) TableRows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		rows = append(rows, []string{
			r.Period().String(),
			strconv.FormatBool(r.HasKB),
			strconv.FormatBool(r.HasYB),
			strconv.FormatBool(r.Complete),
			tracking.FormatDate(r.DetectedAt),
		})
	}
	return rows
}
