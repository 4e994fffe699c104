package routes

import (
	"time"

	"partnerdesk/handlers"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.GET("/health", hb.Health)
}

// RegisterDashboardRoutes exposes the synchronized view.
func RegisterDashboardRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api")
	{
		api.GET("/dashboard", hb.Dashboard)
		api.POST("/refresh", hb.Refresh)
		api.GET("/location", hb.Location)
		api.GET("/earnings", hb.Earnings)
	}
}

// RegisterBookingRoutes sets up the partner action endpoints.
func RegisterBookingRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	bookingGroup := r.Group("/api/bookings/:id")
	{
		bookingGroup.GET("", hb.GetBooking)
		bookingGroup.POST("/accept", hb.AcceptBooking)
		bookingGroup.POST("/reject", hb.RejectBooking)
		bookingGroup.POST("/status", hb.UpdateStatus)
		bookingGroup.POST("/start", hb.StartService)
		bookingGroup.POST("/destination", hb.FixDestination)
		bookingGroup.POST("/reached", hb.ReachedLocation)
		bookingGroup.POST("/complete", hb.CompleteService)
	}
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	RegisterHealthRoute(r, hb)
	RegisterDashboardRoutes(r, hb)
	RegisterBookingRoutes(r, hb)
}
