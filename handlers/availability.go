package handlers

import (
	"net/http"
	"time"

	availabilityRepo "coachly/database/repository/availability"
	"coachly/models"
	"coachly/services/booking"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AvailabilityHandler lets coaches declare bookable windows and players
// browse them.
type AvailabilityHandler struct {
	Repo    availabilityRepo.AvailabilityRepository
	Checker booking.AvailabilityChecker
	Logger  *zap.Logger
}

func NewAvailabilityHandler(repo availabilityRepo.AvailabilityRepository, checker booking.AvailabilityChecker, logger *zap.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{Repo: repo, Checker: checker, Logger: logger}
}

// DeclareWindow registers a bookable window for the acting coach.
func (h *AvailabilityHandler) DeclareWindow(c *gin.Context) {
	var input struct {
		StartAt time.Time `json:"start_at"`
		EndAt   time.Time `json:"end_at"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}
	if c.GetString("actorRole") != booking.RoleCoach {
		c.JSON(http.StatusForbidden, gin.H{"error": "only coaches can declare availability"})
		return
	}
	if !input.EndAt.After(input.StartAt) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_at must be after start_at"})
		return
	}

	slot := &models.AvailabilitySlot{
		ID:      uuid.New().String(),
		CoachID: c.GetString("actorID"),
		StartAt: input.StartAt.UTC(),
		EndAt:   input.EndAt.UTC(),
	}
	if err := h.Repo.Create(c.Request.Context(), slot); err != nil {
		h.Logger.Error("failed to declare availability window", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusCreated, slot)
}

// ListWindows returns a coach's declared windows intersecting the requested
// range. Defaults to the next seven days.
func (h *AvailabilityHandler) ListWindows(c *gin.Context) {
	from := time.Now().UTC()
	to := from.Add(7 * 24 * time.Hour)
	if q := c.Query("from"); q != "" {
		t, err := time.Parse(time.RFC3339, q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'from' timestamp"})
			return
		}
		from = t
	}
	if q := c.Query("to"); q != "" {
		t, err := time.Parse(time.RFC3339, q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'to' timestamp"})
			return
		}
		to = t
	}

	slots, err := h.Checker.ListWindows(c.Request.Context(), c.Param("coachId"), from, to)
	if err != nil {
		h.Logger.Error("failed to list availability windows", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"windows": slots})
}
