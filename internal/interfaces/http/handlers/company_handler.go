package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/edefter-tracker/internal/application/registry"
	"github.com/turtacn/edefter-tracker/internal/domain/company"
	"github.com/turtacn/edefter-tracker/internal/domain/upload"
)

// CompanyHandler exposes the company registry.  Routes take either the
// company ID or its VKN/TCKN as :ref.
type CompanyHandler struct {
	registry registry.Service
}

// NewCompanyHandler creates a CompanyHandler.
func NewCompanyHandler(r registry.Service) *CompanyHandler {
	return &CompanyHandler{registry: r}
}

// List handles GET /companies?active=true&q=.
func (h *CompanyHandler) List(c *gin.Context) {
	opts := company.ListOptions{Query: c.Query("q")}
	if v := c.Query("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, "active must be true or false")
			return
		}
		opts.ActiveOnly = active
	}

	list, err := h.registry.List(c.Request.Context(), opts)
	if err != nil {
		writeAppError(c, err)
		return
	}
	if list == nil {
		list = []*company.Company{}
	}
	c.JSON(http.StatusOK, list)
}

// Create handles POST /companies.
func (h *CompanyHandler) Create(c *gin.Context) {
	var in registry.AddInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	created, err := h.registry.Add(c.Request.Context(), in)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.Header("Location", "/api/v1/companies/"+created.ID)
	c.JSON(http.StatusCreated, created)
}

// Get handles GET /companies/:ref.
func (h *CompanyHandler) Get(c *gin.Context) {
	found, err := h.registry.Get(c.Request.Context(), c.Param("ref"))
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

// Update handles PATCH /companies/:ref.  Absent fields are kept.
func (h *CompanyHandler) Update(c *gin.Context) {
	var in registry.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if in == (registry.UpdateInput{}) {
		badRequest(c, "nothing to update")
		return
	}
	updated, err := h.registry.Update(c.Request.Context(), c.Param("ref"), in)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Activate handles POST /companies/:ref/activate.
func (h *CompanyHandler) Activate(c *gin.Context) { h.setActive(c, true) }

// Deactivate handles POST /companies/:ref/deactivate.
func (h *CompanyHandler) Deactivate(c *gin.Context) { h.setActive(c, false) }

func (h *CompanyHandler) setActive(c *gin.Context, active bool) {
	updated, err := h.registry.SetActive(c.Request.Context(), c.Param("ref"), active)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Delete handles DELETE /companies/:ref.
func (h *CompanyHandler) Delete(c *gin.Context) {
	if err := h.registry.Remove(c.Request.Context(), c.Param("ref")); err != nil {
		writeAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Uploads handles GET /companies/:ref/uploads, newest period first.
func (h *CompanyHandler) Uploads(c *gin.Context) {
	records, err := h.registry.Uploads(c.Request.Context(), c.Param("ref"))
	if err != nil {
		writeAppError(c, err)
		return
	}
	if records == nil {
		records = []*upload.Record{}
	}
	c.JSON(http.StatusOK, records)
}
