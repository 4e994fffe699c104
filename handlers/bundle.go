package handlers

import "github.com/gin-gonic/gin"

// HandlerBundle groups the local view endpoints for route registration.
type HandlerBundle struct {
	Health    gin.HandlerFunc
	Dashboard gin.HandlerFunc
	Refresh   gin.HandlerFunc
	Location  gin.HandlerFunc
	Earnings  gin.HandlerFunc

	// Booking endpoints
	GetBooking      gin.HandlerFunc
	AcceptBooking   gin.HandlerFunc
	RejectBooking   gin.HandlerFunc
	UpdateStatus    gin.HandlerFunc
	StartService    gin.HandlerFunc
	FixDestination  gin.HandlerFunc
	ReachedLocation gin.HandlerFunc
	CompleteService gin.HandlerFunc
}

// NewHandlerBundle wires every endpoint of h.
func NewHandlerBundle(h *BookingHandler) *HandlerBundle {
	return &HandlerBundle{
		Health:          h.Health,
		Dashboard:       h.Dashboard,
		Refresh:         h.Refresh,
		Location:        h.Location,
		Earnings:        h.Earnings,
		GetBooking:      h.GetBooking,
		AcceptBooking:   h.Accept,
		RejectBooking:   h.Reject,
		UpdateStatus:    h.UpdateStatus,
		StartService:    h.StartService,
		FixDestination:  h.FixDestination,
		ReachedLocation: h.ReachedLocation,
		CompleteService: h.CompleteService,
	}
}
