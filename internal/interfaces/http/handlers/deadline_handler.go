package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/edefter-tracker/internal/application/reporting"
	"github.com/turtacn/edefter-tracker/internal/application/tracking"
	"github.com/turtacn/edefter-tracker/internal/domain/deadline"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// DeadlineExporter renders deadline rows as a workbook.
type DeadlineExporter interface {
	ExportDeadlines(ctx context.Context, w io.Writer, rows []tracking.Row) error
}

// DeadlineHandler serves the deadline table, dashboard and export.
type DeadlineHandler struct {
	tracking tracking.Service
	exporter DeadlineExporter
}

// NewDeadlineHandler creates a DeadlineHandler.  exporter may be nil, which
// disables the export route.
func NewDeadlineHandler(t tracking.Service, exporter DeadlineExporter) *DeadlineHandler {
	return &DeadlineHandler{tracking: t, exporter: exporter}
}

// parseFilter reads ?status=overdue,due-soon&regime=&q=.
func parseFilter(c *gin.Context) (tracking.Filter, error) {
	filter := tracking.Filter{Query: c.Query("q")}
	for _, s := range splitQuery(c, "status") {
		st, err := deadline.ParseStatus(s)
		if err != nil {
			return filter, err
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	if v := c.Query("regime"); v != "" {
		r, err := deadline.ParseRegime(v)
		if err != nil {
			return filter, err
		}
		filter.Regime = r
	}
	return filter, nil
}

// List handles GET /deadlines.
func (h *DeadlineHandler) List(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		writeAppError(c, err)
		return
	}
	rows, err := h.tracking.ListDeadlines(c.Request.Context(), filter)
	if err != nil {
		writeAppError(c, err)
		return
	}
	if rows == nil {
		rows = []tracking.Row{}
	}
	c.JSON(http.StatusOK, rows)
}

// Dashboard handles GET /dashboard.
func (h *DeadlineHandler) Dashboard(c *gin.Context) {
	d, err := h.tracking.Dashboard(c.Request.Context())
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// Export handles GET /export.xlsx.  It accepts the same filters as List.
func (h *DeadlineHandler) Export(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		writeAppError(c, err)
		return
	}
	rows, err := h.tracking.ListDeadlines(c.Request.Context(), filter)
	if err != nil {
		writeAppError(c, err)
		return
	}

	// Buffered so a failed export still gets a JSON error instead of a
	// truncated workbook.
	var buf bytes.Buffer
	if err := h.exporter.ExportDeadlines(c.Request.Context(), &buf, rows); err != nil {
		writeAppError(c, err)
		return
	}
	name := reporting.FileName(h.tracking.Now())
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
