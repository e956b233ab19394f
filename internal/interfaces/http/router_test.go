package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/edefter-tracker/internal/app"
	"github.com/turtacn/edefter-tracker/internal/config"
	"github.com/turtacn/edefter-tracker/internal/interfaces/http/handlers"
	"github.com/turtacn/edefter-tracker/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	t      *testing.T
	app    *app.App
	router *gin.Engine
	now    *time.Time
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Database.Path = filepath.Join(dir, "edefter.db")
	cfg.Archive.Root = filepath.Join(dir, "arsiv")
	cfg.Backup.Dir = filepath.Join(dir, "yedek")
	cfg.Metrics.Enabled = true
	for _, m := range mutate {
		m(cfg)
	}
	config.ApplyDefaults(cfg)
	require.NoError(t, os.MkdirAll(cfg.Archive.Root, 0o755))

	loc, err := time.LoadLocation("Europe/Istanbul")
	require.NoError(t, err)
	now := time.Date(2025, time.June, 9, 9, 0, 0, 0, loc)

	a, err := app.New(context.Background(), cfg, testutil.NewMockLogger(), app.Options{
		Now:     func() time.Time { return now },
		Offline: true,
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	r, err := NewAppRouter(a, "test")
	require.NoError(t, err)
	return &fixture{t: t, app: a, router: r, now: &now}
}

func (f *fixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) archive(names ...string) {
	f.t.Helper()
	for _, n := range names {
		require.NoError(f.t, os.WriteFile(filepath.Join(f.app.Config.Archive.Root, n), []byte("zip"), 0o644))
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestProbes(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	live := decode[handlers.LivenessResponse](t, w)
	assert.Equal(t, "alive", live.Status)
	assert.Equal(t, "test", live.Version)

	w = f.do(http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	ready := decode[handlers.ReadinessResponse](t, w)
	assert.Equal(t, "ready", ready.Status)
	assert.Equal(t, "healthy", ready.Components["sqlite"].Status)

	w = f.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestCompanies_CRUD(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/companies", map[string]string{
		"name":       "Anadolu Gıda",
		"identifier": "1111111111",
		"regime":     "corporate-tax",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[map[string]interface{}](t, w)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "/api/v1/companies/"+id, w.Header().Get("Location"))

	w = f.do(http.MethodPost, "/api/v1/companies", map[string]string{"name": "Kopya", "identifier": "1111111111"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodPost, "/api/v1/companies", map[string]string{"name": "Kısa", "identifier": "123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	apiErr := decode[handlers.ErrorResponse](t, w)
	assert.Equal(t, "CMP_003", apiErr.Code)

	w = f.do(http.MethodGet, "/api/v1/companies/1111111111", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPatch, "/api/v1/companies/"+id, map[string]string{"email": "muhasebe@anadolu.example"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "muhasebe@anadolu.example", decode[map[string]interface{}](t, w)["email"])

	w = f.do(http.MethodPatch, "/api/v1/companies/"+id, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/v1/companies/"+id+"/deactivate", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode[map[string]interface{}](t, w)["active"])

	w = f.do(http.MethodGet, "/api/v1/companies?active=true", nil)
	assert.JSONEq(t, "[]", w.Body.String())
	w = f.do(http.MethodGet, "/api/v1/companies?active=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/v1/companies/"+id+"/activate", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/api/v1/companies/"+id+"/uploads", nil)
	assert.JSONEq(t, "[]", w.Body.String())

	w = f.do(http.MethodDelete, "/api/v1/companies/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(http.MethodGet, "/api/v1/companies/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeadlines_ScanListExport(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/companies", map[string]string{
		"name": "Anadolu Gıda", "identifier": "1111111111", "regime": "corporate-tax",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	f.archive("GIB-1111111111-202501-KB-000000.zip", "GIB-1111111111-202501-YB-000000.zip")
	w = f.do(http.MethodPost, "/api/v1/scan", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decode[map[string]interface{}](t, w)["records_touched"])

	w = f.do(http.MethodGet, "/api/v1/deadlines", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rows := decode[[]map[string]interface{}](t, w)
	require.Len(t, rows, 1)
	assert.Equal(t, "1111111111", rows[0]["company_key"])
	assert.EqualValues(t, 7, rows[0]["remaining_days"])
	assert.Equal(t, "pending", rows[0]["status"])

	w = f.do(http.MethodGet, "/api/v1/deadlines?status=overdue,pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]interface{}](t, w), 1)

	w = f.do(http.MethodGet, "/api/v1/deadlines?status=due-soon", nil)
	assert.JSONEq(t, "[]", w.Body.String())

	w = f.do(http.MethodGet, "/api/v1/deadlines?status=late", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	dash := decode[map[string]interface{}](t, w)
	assert.EqualValues(t, 1, dash["active_companies"])

	w = f.do(http.MethodGet, "/api/v1/export.xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentTypeForTest, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "edefter-takvim-2025-06-09.xlsx")
	// XLSX files are zip archives.
	assert.True(t, strings.HasPrefix(w.Body.String(), "PK"))
}

func TestDeadlines_DueSoonWindow(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodPost, "/api/v1/companies", map[string]string{
		"name": "Anadolu Gıda", "identifier": "1111111111", "regime": "corporate-tax",
	})
	f.archive("GIB-1111111111-202501-KB-000000.zip", "GIB-1111111111-202501-YB-000000.zip")
	f.do(http.MethodPost, "/api/v1/scan", nil)

	// 2025-06-13: three days before the rolled-forward 2025-06-16 deadline.
	*f.now = f.now.AddDate(0, 0, 4)

	w := f.do(http.MethodGet, "/api/v1/deadlines?status=due-soon", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rows := decode[[]map[string]interface{}](t, w)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 3, rows[0]["remaining_days"])
	assert.Equal(t, "due-soon", rows[0]["status"])

	w = f.do(http.MethodGet, "/api/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	dash := decode[map[string]interface{}](t, w)
	byStatus, _ := dash["by_status"].(map[string]interface{})
	assert.EqualValues(t, 1, byStatus["due-soon"])
}

const xlsxContentTypeForTest = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func TestNotificationPreview(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/notifications/preview?format=html", nil)
	assert.Equal(t, http.StatusNoContent, w.Code, "nothing due yet")

	f.do(http.MethodPost, "/api/v1/companies", map[string]string{
		"name": "Anadolu Gıda", "identifier": "1111111111", "regime": "corporate-tax",
	})
	f.archive("GIB-1111111111-202501-KB-000000.zip", "GIB-1111111111-202501-YB-000000.zip")
	f.do(http.MethodPost, "/api/v1/scan", nil)

	w = f.do(http.MethodGet, "/api/v1/notifications/preview", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[map[string]interface{}](t, w)
	assert.Equal(t, "preview", res["status"])
	assert.Equal(t, "2025-06-09", res["date"])

	w = f.do(http.MethodGet, "/api/v1/notifications/preview?format=html", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Anadolu Gıda")
}

func TestScan_WithoutArchiveRoot(t *testing.T) {
	f := newFixture(t)
	f.router = NewRouter(RouterConfig{
		OperationsHandler: handlers.NewOperationsHandler(f.app.Monitor, "", nil, nil),
	})

	w := f.do(http.MethodPost, "/api/v1/scan", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodGet, "/api/v1/notifications/preview", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_UnknownRouteAndCORS(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.Server.AllowedOrigins = []string{"https://ofis.example.com"}
	})

	w := f.do(http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "COMMON_005", decode[handlers.ErrorResponse](t, w).Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deadlines", nil)
	req.Header.Set("Origin", "https://ofis.example.com")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://ofis.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewAppRouter_RejectsBadOrigins(t *testing.T) {
	f := newFixture(t)
	f.app.Config.Server.AllowedOrigins = []string{"ofis.example.com"}
	_, err := NewAppRouter(f.app, "test")
	assert.Error(t, err)
}
