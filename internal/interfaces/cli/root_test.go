package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/edefter-tracker/pkg/errors"
)

// 2025-06-09 09:00 Istanbul: a company that filed January 2025 under the
// corporate-tax regime has 7 days left for February.
func testClock(t *testing.T) func() time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Istanbul")
	require.NoError(t, err)
	ref := time.Date(2025, time.June, 9, 9, 0, 0, 0, loc)
	return func() time.Time { return ref }
}

type env struct {
	t       *testing.T
	dir     string
	cfgPath string
	clock   func() time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`app:
  timezone: Europe/Istanbul
database:
  path: %[1]s/edefter.db
archive:
  root: %[1]s/arsiv
backup:
  dir: %[1]s/yedek
  retain: 3
metrics:
  enabled: false
`, filepath.ToSlash(dir))
	cfgPath := filepath.Join(dir, "edefter.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "arsiv"), 0o755))
	return &env{t: t, dir: dir, cfgPath: cfgPath, clock: testClock(t)}
}

func (e *env) run(args ...string) (string, error) {
	e.t.Helper()
	cmd := NewRootCommand(WithClock(e.clock))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.cfgPath, "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *env) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err, out)
	return out
}

func (e *env) archive(names ...string) {
	e.t.Helper()
	dir := filepath.Join(e.dir, "arsiv", "2025")
	require.NoError(e.t, os.MkdirAll(dir, 0o755))
	for _, n := range names {
		require.NoError(e.t, os.WriteFile(filepath.Join(dir, n), []byte("zip"), 0o644))
	}
}

// seed registers Anadolu Gıda with a complete January 2025 upload.
func (e *env) seed() {
	e.t.Helper()
	e.mustRun("company", "add", "Anadolu Gıda", "1111111111", "--regime", "corporate-tax")
	e.archive("GIB-1111111111-202501-KB-000000.zip", "GIB-1111111111-202501-YB-000000.zip")
	e.mustRun("scan")
}

func TestRoot_Structure(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "edefter", cmd.Use)
	assert.NotEmpty(t, cmd.Short)

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"company", "scan", "deadlines", "dashboard", "notify", "export", "backup", "db", "version"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}

	for _, flag := range []string{"config", "log-level", "output", "verbose", "no-color", "timeout"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
	assert.Equal(t, OutputText, cmd.PersistentFlags().Lookup("output").DefValue)
}

func TestRoot_RejectsUnknownOutputFormat(t *testing.T) {
	e := newEnv(t)
	_, err := e.run("-o", "yaml", "company", "list")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err) || errors.IsCode(err, errors.CodeInvalidParam))
}

func TestRoot_BadConfigFile(t *testing.T) {
	e := newEnv(t)
	e.cfgPath = filepath.Join(e.dir, "missing.yaml")
	_, err := e.run("company", "list")
	assert.ErrorContains(t, err, "config initialization failed")
}

func TestVersion_NeedsNoConfig(t *testing.T) {
	e := newEnv(t)
	e.cfgPath = filepath.Join(e.dir, "missing.yaml")

	out := e.mustRun("version")
	assert.Contains(t, out, "edefter dev")

	out = e.mustRun("version", "-o", "json")
	var info BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, Version, info.Version)
}

func TestCompany_Lifecycle(t *testing.T) {
	e := newEnv(t)

	out := e.mustRun("-o", "json", "company", "add", "Anadolu Gıda", "1111111111", "--regime", "corporate-tax", "--email", "muhasebe@anadolu.example")
	var added map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	assert.Equal(t, "corporate-tax", added["regime"])
	assert.Equal(t, "monthly", added["cadence"])
	assert.Equal(t, true, added["active"])

	e.mustRun("company", "add", "Çınar Eczanesi", "10000000146")

	out = e.mustRun("-o", "table", "company", "list")
	assert.Contains(t, out, "Anadolu Gıda")
	assert.Contains(t, out, "Çınar Eczanesi")
	assert.Contains(t, out, "Gelir Vergisi")

	out = e.mustRun("company", "update", "1111111111", "--cadence", "quarterly")
	assert.Contains(t, out, "3 Aylık")

	_, err := e.run("company", "update", "1111111111")
	assert.ErrorContains(t, err, "nothing to update")

	out = e.mustRun("company", "deactivate", "1111111111")
	assert.Contains(t, out, "OK: Anadolu Gıda deactivated")

	out = e.mustRun("company", "list", "--active")
	assert.NotContains(t, out, "Anadolu Gıda")
	assert.Contains(t, out, "Çınar Eczanesi")

	e.mustRun("company", "activate", "1111111111")
	out = e.mustRun("company", "show", "1111111111")
	assert.Contains(t, out, "aktif")
	assert.Contains(t, out, "muhasebe@anadolu.example")

	e.mustRun("company", "remove", "1111111111")
	_, err = e.run("company", "show", "1111111111")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestCompany_AddRejectsBadIdentifier(t *testing.T) {
	e := newEnv(t)
	_, err := e.run("company", "add", "Hatalı", "12345")
	assert.Error(t, err)
}

func TestScanAndDeadlines(t *testing.T) {
	e := newEnv(t)
	e.seed()

	out := e.mustRun("scan")
	assert.Contains(t, out, "0 records updated")

	out = e.mustRun("company", "uploads", "1111111111")
	assert.Contains(t, out, "2025-01")

	out = e.mustRun("-o", "json", "deadlines")
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Anadolu Gıda", rows[0]["company_name"])
	assert.EqualValues(t, 7, rows[0]["remaining_days"])
	assert.Equal(t, "pending", rows[0]["status"])

	out = e.mustRun("deadlines")
	assert.Contains(t, out, "16.06.2025")
	assert.Contains(t, out, "Bekliyor")

	out = e.mustRun("-o", "json", "deadlines", "--status", "overdue")
	assert.JSONEq(t, "[]", out)

	out = e.mustRun("-o", "json", "deadlines", "--status", "overdue,pending")
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Len(t, rows, 1)

	_, err := e.run("deadlines", "--status", "late")
	assert.Error(t, err)
	_, err = e.run("deadlines", "--regime", "vat")
	assert.Error(t, err)

	out = e.mustRun("dashboard")
	assert.Contains(t, out, "Firmalar:     1")
	assert.Contains(t, out, "En yakın:     16.06.2025")
}

func TestDeadlines_DueSoonWindow(t *testing.T) {
	e := newEnv(t)
	e.seed()

	// Four days later the February deadline is three days away.
	ref := e.clock()
	e.clock = func() time.Time { return ref.AddDate(0, 0, 4) }

	out := e.mustRun("-o", "json", "deadlines", "--status", "due-soon")
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.EqualValues(t, 3, rows[0]["remaining_days"])
	assert.Equal(t, "due-soon", rows[0]["status"])

	out = e.mustRun("deadlines")
	assert.Contains(t, out, "Yaklaşıyor")
}

func TestNotifyCheck(t *testing.T) {
	e := newEnv(t)
	e.seed()

	htmlPath := filepath.Join(e.dir, "ozet.html")
	out := e.mustRun("notify", "check", "--dry-run", "--html", htmlPath)
	assert.Contains(t, out, "2025-06-09: preview")
	assert.Contains(t, out, "Son güne 7 gün kaldı: 1")
	assert.Contains(t, out, "Anadolu Gıda")

	html, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Anadolu Gıda")

	// Mail delivery is off in the test configuration.
	_, err = e.run("notify", "check")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeFeatureDisabled))
}

func TestExport(t *testing.T) {
	e := newEnv(t)
	e.seed()

	path := filepath.Join(e.dir, "takvim.xlsx")
	out := e.mustRun("export", "--out", path)
	assert.Contains(t, out, "1 companies written")

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, st.Size())
}

func TestBackup_CreateAndList(t *testing.T) {
	e := newEnv(t)
	e.seed()

	out := e.mustRun("-o", "json", "backup", "create")
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	name, _ := info["name"].(string)
	assert.True(t, strings.HasPrefix(name, "edefter-backup-"), name)

	out = e.mustRun("backup", "list")
	assert.Contains(t, out, name)
}

func TestGetCLIContext_Missing(t *testing.T) {
	cmd := &cobra.Command{}
	_, err := GetCLIContext(cmd)
	assert.Error(t, err)

	cmd.SetContext(context.Background())
	_, err = GetCLIContext(cmd)
	assert.Error(t, err)
}

func TestFormatTable_AlignsRunes(t *testing.T) {
	out := FormatTable([]string{"FIRMA", "KALAN"}, [][]string{
		{"Çınar", "1"},
		{"Işık Tekstil", "12"},
	})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "FIRMA         KALAN", lines[0])
	assert.Equal(t, "------------  -----", lines[1])
	assert.Equal(t, "Çınar         1    ", lines[2])
	assert.Equal(t, "Işık Tekstil  12   ", lines[3])

	assert.Empty(t, FormatTable(nil, nil))
}

func TestDB_StatusAndRollback(t *testing.T) {
	e := newEnv(t)
	e.mustRun("company", "list")

	out := e.mustRun("db", "status")
	assert.Contains(t, out, "schema version 1 (clean)")

	out = e.mustRun("-o", "json", "db", "rollback")
	var st SchemaStatus
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Zero(t, st.Version)
	assert.False(t, st.Dirty)

	_, err := e.run("db", "rollback", "--steps", "0")
	assert.True(t, errors.IsCode(err, errors.ErrCodeDatabaseError))
}
