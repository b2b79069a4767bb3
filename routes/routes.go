package routes

import (
	"net/http"
	"time"

	"coachly/handlers"
	"coachly/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterBookingRoutes sets up the booking lifecycle endpoints.
func RegisterBookingRoutes(r *gin.Engine, bh *handlers.BookingHandler) {
	api := r.Group("/api/bookings")
	{
		api.Use(middleware.JWTAuthMiddleware())
		api.POST("", bh.CreateBooking)
		api.GET("", bh.ListBookings)
		api.GET("/:id", bh.GetBooking)
		api.POST("/:id/transition", bh.TransitionStatus)
		api.POST("/:id/cancel", bh.CancelBooking)
	}
}

// RegisterAvailabilityRoutes sets up coach availability endpoints.
func RegisterAvailabilityRoutes(r *gin.Engine, ah *handlers.AvailabilityHandler) {
	api := r.Group("/api/availability")
	{
		api.Use(middleware.JWTAuthMiddleware())
		api.POST("", ah.DeclareWindow)
		api.GET("/coach/:coachId", ah.ListWindows)
	}
}

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Hi, I'm Coachly"})
	})
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, bh *handlers.BookingHandler, ah *handlers.AvailabilityHandler) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	RegisterHealthRoute(r)
	RegisterBookingRoutes(r, bh)
	RegisterAvailabilityRoutes(r, ah)
}
