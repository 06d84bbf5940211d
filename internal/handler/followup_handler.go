package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lingoria/school-ops-api/internal/service"
	appErrors "github.com/lingoria/school-ops-api/pkg/errors"
	"github.com/lingoria/school-ops-api/pkg/response"
)

// FollowUpHandler exposes follow-up sequence and instance endpoints.
type FollowUpHandler struct {
	followUps *service.FollowUpService
}

// NewFollowUpHandler constructs FollowUpHandler.
func NewFollowUpHandler(followUps *service.FollowUpService) *FollowUpHandler {
	return &FollowUpHandler{followUps: followUps}
}

// ListSequences godoc
// @Summary List follow-up sequence templates
// @Tags FollowUps
// @Produce json
// @Param active query bool false "Only active sequences"
// @Success 200 {object} response.Envelope
// @Router /follow-up-sequences [get]
func (h *FollowUpHandler) ListSequences(c *gin.Context) {
	sequences, err := h.followUps.ListSequences(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sequences, nil)
}

// GetSequence godoc
// @Summary Get one sequence with its messages
// @Tags FollowUps
// @Produce json
// @Param id path string true "Sequence ID"
// @Success 200 {object} response.Envelope
// @Router /follow-up-sequences/{id} [get]
func (h *FollowUpHandler) GetSequence(c *gin.Context) {
	sequence, err := h.followUps.GetSequence(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sequence, nil)
}

// CreateSequence godoc
// @Summary Create a sequence template
// @Tags FollowUps
// @Accept json
// @Produce json
// @Param payload body service.SaveSequenceRequest true "Sequence payload"
// @Success 201 {object} response.Envelope
// @Router /follow-up-sequences [post]
func (h *FollowUpHandler) CreateSequence(c *gin.Context) {
	var req service.SaveSequenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	sequence, err := h.followUps.CreateSequence(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sequence)
}

// UpdateSequence godoc
// @Summary Update a sequence template and replace its messages
// @Tags FollowUps
// @Accept json
// @Produce json
// @Param id path string true "Sequence ID"
// @Param payload body service.SaveSequenceRequest true "Sequence payload"
// @Success 200 {object} response.Envelope
// @Router /follow-up-sequences/{id} [put]
func (h *FollowUpHandler) UpdateSequence(c *gin.Context) {
	var req service.SaveSequenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	sequence, err := h.followUps.UpdateSequence(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sequence, nil)
}

// ListInstances godoc
// @Summary List follow-up instances
// @Tags FollowUps
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param sequenceId query string false "Filter by sequence"
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Router /follow-ups [get]
func (h *FollowUpHandler) ListInstances(c *gin.Context) {
	req := service.FollowUpListRequest{
		StudentID:  c.Query("studentId"),
		SequenceID: c.Query("sequenceId"),
		Status:     c.Query("status"),
	}
	req.Page, req.PageSize = pageParams(c)

	instances, pagination, err := h.followUps.ListInstances(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instances, pagination)
}

// GetInstance godoc
// @Summary Get a follow-up instance
// @Tags FollowUps
// @Produce json
// @Param id path string true "Follow-up ID"
// @Success 200 {object} response.Envelope
// @Router /follow-ups/{id} [get]
func (h *FollowUpHandler) GetInstance(c *gin.Context) {
	instance, err := h.followUps.GetInstance(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instance, nil)
}

// Start godoc
// @Summary Activate a sequence for a student
// @Tags FollowUps
// @Accept json
// @Produce json
// @Param payload body service.StartFollowUpRequest true "Student and sequence"
// @Success 201 {object} response.Envelope
// @Router /follow-ups [post]
func (h *FollowUpHandler) Start(c *gin.Context) {
	var req service.StartFollowUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	instance, err := h.followUps.Start(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, instance)
}

// Advance godoc
// @Summary Manually push a follow-up one step forward
// @Tags FollowUps
// @Produce json
// @Param id path string true "Follow-up ID"
// @Success 200 {object} response.Envelope
// @Router /follow-ups/{id}/advance [post]
func (h *FollowUpHandler) Advance(c *gin.Context) {
	instance, err := h.followUps.Advance(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instance, nil)
}

// Stop godoc
// @Summary Disable a running follow-up
// @Tags FollowUps
// @Produce json
// @Param id path string true "Follow-up ID"
// @Success 200 {object} response.Envelope
// @Router /follow-ups/{id}/stop [post]
func (h *FollowUpHandler) Stop(c *gin.Context) {
	instance, err := h.followUps.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, instance, nil)
}
