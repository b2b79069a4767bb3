package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"coachly/services/booking"
	"coachly/services/payment"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BookingHandler exposes the booking lifecycle over HTTP.
type BookingHandler struct {
	Svc    booking.BookingService
	Logger *zap.Logger
}

func NewBookingHandler(svc booking.BookingService, logger *zap.Logger) *BookingHandler {
	return &BookingHandler{Svc: svc, Logger: logger}
}

// respondBookingError maps domain errors to HTTP statuses. Business rule
// failures carry their message verbatim; infrastructure failures get a
// generic body so internals never leak to clients.
func (h *BookingHandler) respondBookingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, booking.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, booking.ErrBookingNotFound), errors.Is(err, payment.ErrIntentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, booking.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, booking.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, booking.ErrOutsideAvailability):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, booking.ErrInvalidTransition), errors.Is(err, booking.ErrStaleState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, booking.ErrCancellationWindowClosed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, payment.ErrPaymentDeclined):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "payment was declined"})
	case errors.Is(err, payment.ErrProviderTimeout):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payment provider unavailable, please retry"})
	default:
		h.Logger.Error("booking request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// CreateBooking reserves a slot and authorizes payment in one call. The
// player id always comes from the token, never the body.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var input struct {
		CoachID         string    `json:"coach_id"`
		StartAt         time.Time `json:"start_at"`
		DurationMinutes int       `json:"duration_minutes"`
		Timezone        string    `json:"timezone"`
		Amount          int64     `json:"amount"`
		Currency        string    `json:"currency"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	if c.GetString("actorRole") != booking.RolePlayer {
		c.JSON(http.StatusForbidden, gin.H{"error": "only players can create bookings"})
		return
	}

	res, err := h.Svc.CreateBooking(c.Request.Context(), booking.CreateBookingRequest{
		PlayerID:        c.GetString("actorID"),
		CoachID:         input.CoachID,
		StartAt:         input.StartAt,
		DurationMinutes: input.DurationMinutes,
		Timezone:        input.Timezone,
		Amount:          input.Amount,
		Currency:        input.Currency,
	})
	if err != nil {
		h.respondBookingError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// GetBooking returns a single booking visible to the acting user.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	b, err := h.Svc.GetBooking(c.Request.Context(), c.Param("id"), c.GetString("actorID"), c.GetString("actorRole"))
	if err != nil {
		h.respondBookingError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// ListBookings pages through the acting user's bookings, newest start first.
// Admins list on behalf of a user via the user_id query, with role selecting
// which side of that user's bookings to show (player unless stated).
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userID := c.GetString("actorID")
	role := c.GetString("actorRole")
	if role == booking.RoleAdmin {
		userID = c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "admin listing requires the user_id query parameter"})
			return
		}
		role = c.DefaultQuery("role", booking.RolePlayer)
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	res, err := h.Svc.ListBookings(c.Request.Context(), userID, role, c.Query("status"), page, pageSize)
	if err != nil {
		h.respondBookingError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// TransitionStatus advances the booking lifecycle (in_progress, completed,
// or cancelled).
func (h *BookingHandler) TransitionStatus(c *gin.Context) {
	var input struct {
		Target string `json:"target"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	b, err := h.Svc.TransitionStatus(c.Request.Context(), c.Param("id"), input.Target,
		c.GetString("actorID"), c.GetString("actorRole"))
	if err != nil {
		h.respondBookingError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// CancelBooking cancels a booking and settles its payment per the refund policy.
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	var input struct {
		Reason string `json:"reason"`
	}
	// The body is optional; an empty reason is allowed.
	_ = c.ShouldBindJSON(&input)

	res, err := h.Svc.CancelBooking(c.Request.Context(), c.Param("id"),
		c.GetString("actorID"), c.GetString("actorRole"), input.Reason)
	if err != nil {
		h.respondBookingError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
