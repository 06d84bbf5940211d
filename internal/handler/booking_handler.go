package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lingoria/school-ops-api/internal/service"
	appErrors "github.com/lingoria/school-ops-api/pkg/errors"
	"github.com/lingoria/school-ops-api/pkg/response"
)

// BookingHandler exposes private class booking endpoints.
type BookingHandler struct {
	booking *service.BookingService
}

// NewBookingHandler constructs BookingHandler.
func NewBookingHandler(booking *service.BookingService) *BookingHandler {
	return &BookingHandler{booking: booking}
}

// CheckEligibility godoc
// @Summary Check whether a student can book a private class slot
// @Tags Booking
// @Accept json
// @Produce json
// @Param payload body service.EligibilityRequest true "Slot requirements"
// @Success 200 {object} response.Envelope
// @Router /class-booking/eligibility [post]
func (h *BookingHandler) CheckEligibility(c *gin.Context) {
	var req service.EligibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.booking.CheckEligibility(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// CheckoutURL godoc
// @Summary Build a prefilled checkout link for a product
// @Tags Booking
// @Accept json
// @Produce json
// @Param payload body service.CheckoutURLRequest true "Student and product"
// @Success 200 {object} response.Envelope
// @Router /class-booking/checkout-url [post]
func (h *BookingHandler) CheckoutURL(c *gin.Context) {
	var req service.CheckoutURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.booking.BuildCheckoutURL(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
