package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lingoria/school-ops-api/internal/service"
	appErrors "github.com/lingoria/school-ops-api/pkg/errors"
	"github.com/lingoria/school-ops-api/pkg/response"
)

// ChatHandler exposes cohort chat endpoints.
type ChatHandler struct {
	chat *service.ChatService
}

// NewChatHandler constructs ChatHandler.
func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// List godoc
// @Summary List a cohort's chat messages, newest first
// @Tags Chat
// @Produce json
// @Param id path string true "Cohort ID"
// @Param before query string false "RFC3339 cursor; only older messages"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /cohorts/{id}/messages [get]
func (h *ChatHandler) List(c *gin.Context) {
	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "before must be RFC3339"))
			return
		}
		before = &t
	}
	size, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	messages, pagination, err := h.chat.ListMessages(c.Request.Context(), c.Param("id"), before, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, messages, pagination)
}

// Post godoc
// @Summary Post a message to a cohort's chat
// @Tags Chat
// @Accept json
// @Produce json
// @Param id path string true "Cohort ID"
// @Param payload body service.PostMessageRequest true "Message payload"
// @Success 201 {object} response.Envelope
// @Router /cohorts/{id}/messages [post]
func (h *ChatHandler) Post(c *gin.Context) {
	var req service.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	message, err := h.chat.PostMessage(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, message)
}
