package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lingoria/school-ops-api/internal/service"
	appErrors "github.com/lingoria/school-ops-api/pkg/errors"
	"github.com/lingoria/school-ops-api/pkg/response"
)

// CohortHandler exposes cohort and weekly session endpoints.
type CohortHandler struct {
	cohorts *service.CohortService
}

// NewCohortHandler constructs CohortHandler.
func NewCohortHandler(cohorts *service.CohortService) *CohortHandler {
	return &CohortHandler{cohorts: cohorts}
}

// List godoc
// @Summary List cohorts
// @Tags Cohorts
// @Produce json
// @Param status query string false "Filter by status"
// @Param productId query string false "Filter by product"
// @Param levelId query string false "Filter by current level"
// @Success 200 {object} response.Envelope
// @Router /cohorts [get]
func (h *CohortHandler) List(c *gin.Context) {
	req := service.CohortListRequest{
		Status:    c.Query("status"),
		ProductID: c.Query("productId"),
		LevelID:   c.Query("levelId"),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	req.Page, req.PageSize = pageParams(c)

	cohorts, pagination, err := h.cohorts.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cohorts, pagination)
}

// Get godoc
// @Summary Get cohort detail
// @Tags Cohorts
// @Produce json
// @Param id path string true "Cohort ID"
// @Success 200 {object} response.Envelope
// @Router /cohorts/{id} [get]
func (h *CohortHandler) Get(c *gin.Context) {
	cohort, err := h.cohorts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cohort, nil)
}

// Create godoc
// @Summary Create cohort
// @Tags Cohorts
// @Accept json
// @Produce json
// @Param payload body service.SaveCohortRequest true "Cohort payload"
// @Success 201 {object} response.Envelope
// @Router /cohorts [post]
func (h *CohortHandler) Create(c *gin.Context) {
	var req service.SaveCohortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	cohort, err := h.cohorts.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cohort)
}

// Update godoc
// @Summary Update cohort
// @Tags Cohorts
// @Accept json
// @Produce json
// @Param id path string true "Cohort ID"
// @Param payload body service.SaveCohortRequest true "Cohort payload"
// @Success 200 {object} response.Envelope
// @Router /cohorts/{id} [put]
func (h *CohortHandler) Update(c *gin.Context) {
	var req service.SaveCohortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	cohort, err := h.cohorts.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cohort, nil)
}

// ListSessions godoc
// @Summary List a cohort's weekly sessions
// @Tags Cohorts
// @Produce json
// @Param id path string true "Cohort ID"
// @Success 200 {object} response.Envelope
// @Router /cohorts/{id}/sessions [get]
func (h *CohortHandler) ListSessions(c *gin.Context) {
	sessions, err := h.cohorts.ListSessions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// AddSession godoc
// @Summary Add a weekly session to a cohort
// @Tags Cohorts
// @Accept json
// @Produce json
// @Param id path string true "Cohort ID"
// @Param payload body service.SaveWeeklySessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Router /cohorts/{id}/sessions [post]
func (h *CohortHandler) AddSession(c *gin.Context) {
	var req service.SaveWeeklySessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.cohorts.AddSession(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// UpdateSession godoc
// @Summary Update a weekly session
// @Tags Cohorts
// @Accept json
// @Produce json
// @Param id path string true "Cohort ID"
// @Param sessionId path string true "Session ID"
// @Param payload body service.SaveWeeklySessionRequest true "Session payload"
// @Success 200 {object} response.Envelope
// @Router /cohorts/{id}/sessions/{sessionId} [put]
func (h *CohortHandler) UpdateSession(c *gin.Context) {
	var req service.SaveWeeklySessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.cohorts.UpdateSession(c.Request.Context(), c.Param("id"), c.Param("sessionId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// RemoveSession godoc
// @Summary Remove a weekly session
// @Tags Cohorts
// @Produce json
// @Param id path string true "Cohort ID"
// @Param sessionId path string true "Session ID"
// @Success 204
// @Router /cohorts/{id}/sessions/{sessionId} [delete]
func (h *CohortHandler) RemoveSession(c *gin.Context) {
	if err := h.cohorts.RemoveSession(c.Request.Context(), c.Param("id"), c.Param("sessionId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// FinalizeSetup godoc
// @Summary Finalize cohort setup and queue calendar events
// @Tags Cohorts
// @Produce json
// @Param id path string true "Cohort ID"
// @Success 200 {object} response.Envelope
// @Router /cohorts/{id}/finalize-setup [post]
func (h *CohortHandler) FinalizeSetup(c *gin.Context) {
	result, err := h.cohorts.FinalizeSetup(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// GenerateClasses godoc
// @Summary Materialise dated classes from the weekly plan
// @Tags Cohorts
// @Produce json
// @Param id path string true "Cohort ID"
// @Param weeks query int false "Weeks ahead to generate"
// @Success 200 {object} response.Envelope
// @Router /cohorts/{id}/generate-classes [post]
func (h *CohortHandler) GenerateClasses(c *gin.Context) {
	weeks, _ := strconv.Atoi(c.DefaultQuery("weeks", "0"))
	result, err := h.cohorts.GenerateClasses(c.Request.Context(), c.Param("id"), weeks)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// AvailableBeginner godoc
// @Summary Open beginner cohorts with spare capacity
// @Tags Cohorts
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /public/cohorts/beginner [get]
func (h *CohortHandler) AvailableBeginner(c *gin.Context) {
	cohorts, err := h.cohorts.AvailableBeginnerCohorts(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cohorts, nil)
}
