package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/edefter-tracker/internal/application/monitoring"
	"github.com/turtacn/edefter-tracker/internal/application/notification"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

// Scanner rescans the archive folder.
type Scanner interface {
	Scan(ctx context.Context, root string) (*monitoring.ScanResult, error)
}

// DigestPreviewer builds a reminder digest without sending it.
type DigestPreviewer interface {
	Preview(ctx context.Context, now time.Time) (*notification.CheckResult, error)
}

// OperationsHandler triggers archive scans and previews the reminder digest.
type OperationsHandler struct {
	scanner   Scanner
	root      string
	previewer DigestPreviewer
	now       func() time.Time
}

// NewOperationsHandler creates an OperationsHandler.  An empty root disables
// scanning; a nil previewer disables the digest preview.
func NewOperationsHandler(scanner Scanner, root string, previewer DigestPreviewer, now func() time.Time) *OperationsHandler {
	if now == nil {
		now = time.Now
	}
	return &OperationsHandler{scanner: scanner, root: root, previewer: previewer, now: now}
}

// Scan handles POST /scan.
func (h *OperationsHandler) Scan(c *gin.Context) {
	if h.scanner == nil || h.root == "" {
		writeAppError(c, errors.New(errors.ErrCodeFeatureDisabled, "archive root is not configured"))
		return
	}
	res, err := h.scanner.Scan(c.Request.Context(), h.root)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// PreviewDigest handles GET /notifications/preview.  With ?format=html the
// rendered mail body is returned instead of JSON.
func (h *OperationsHandler) PreviewDigest(c *gin.Context) {
	if h.previewer == nil {
		writeAppError(c, errors.New(errors.ErrCodeFeatureDisabled, "notifications are not configured"))
		return
	}
	res, err := h.previewer.Preview(c.Request.Context(), h.now())
	if err != nil {
		writeAppError(c, err)
		return
	}
	if c.Query("format") == "html" {
		if res.HTML == "" {
			c.Status(http.StatusNoContent)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(res.HTML))
		return
	}
	c.JSON(http.StatusOK, res)
}
