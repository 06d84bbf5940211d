package handler

import (
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lingoria/school-ops-api/internal/service"
	appErrors "github.com/lingoria/school-ops-api/pkg/errors"
	"github.com/lingoria/school-ops-api/pkg/response"
	"github.com/lingoria/school-ops-api/pkg/storage"
)

// AttendanceHandler exposes attendance marking, summaries and exports.
type AttendanceHandler struct {
	attendance *service.AttendanceService
	files      *storage.LocalStorage
	signer     *storage.SignedURLSigner
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService, files *storage.LocalStorage, signer *storage.SignedURLSigner) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance, files: files, signer: signer}
}

// List godoc
// @Summary List attendance records
// @Tags Attendance
// @Produce json
// @Param cohortId query string false "Filter by cohort"
// @Param studentId query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	req := service.AttendanceListRequest{
		CohortID:  c.Query("cohortId"),
		ClassID:   c.Query("classId"),
		StudentID: c.Query("studentId"),
		Status:    c.Query("status"),
	}
	if from := c.Query("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from must be YYYY-MM-DD"))
			return
		}
		req.DateFrom = &t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "to must be YYYY-MM-DD"))
			return
		}
		req.DateTo = &t
	}
	req.Page, req.PageSize = pageParams(c)

	records, pagination, err := h.attendance.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// BulkMark godoc
// @Summary Mark a class roster in one call
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.BulkMarkRequest true "Roster marks"
// @Success 200 {object} response.Envelope
// @Router /attendance/bulk [post]
func (h *AttendanceHandler) BulkMark(c *gin.Context) {
	var req service.BulkMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims := claimsFromContext(c); claims != nil && req.MarkedBy == nil {
		req.MarkedBy = &claims.UserID
	}
	count, err := h.attendance.BulkMark(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"marked": count}, nil)
}

// Summary godoc
// @Summary Per-student attendance summary for a cohort
// @Tags Attendance
// @Produce json
// @Param id path string true "Cohort ID"
// @Success 200 {object} response.Envelope
// @Router /cohorts/{id}/attendance/summary [get]
func (h *AttendanceHandler) Summary(c *gin.Context) {
	summary, err := h.attendance.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Export godoc
// @Summary Render an attendance sheet and return a signed download link
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.ExportRequest true "Export options"
// @Success 201 {object} response.Envelope
// @Router /attendance/exports [post]
func (h *AttendanceHandler) Export(c *gin.Context) {
	var req service.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.attendance.Export(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download serves a rendered export after verifying its signed token. The
// token is the only credential, so the route sits outside the JWT group.
func (h *AttendanceHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing token"))
		return
	}
	exportID, relPath, expiresAt, err := h.signer.Parse(token)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token"))
		return
	}
	if exportID != c.Param("id") {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "token does not match export"))
		return
	}
	if time.Now().UTC().After(expiresAt) {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "link expired"))
		return
	}

	file, err := h.files.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "export no longer available"))
		return
	}
	defer file.Close()

	name := filepath.Base(relPath)
	contentType := "text/csv"
	if strings.HasSuffix(name, ".pdf") {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Header("Content-Type", contentType)
	c.File(h.files.Path(relPath))
}
