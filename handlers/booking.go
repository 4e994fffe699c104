package handlers

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"partnerdesk/models"
	"partnerdesk/services/booking"
	"partnerdesk/services/partner"
	"partnerdesk/services/socket"
	"partnerdesk/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SnapshotSource is the read side of the reconciler.
type SnapshotSource interface {
	Snapshot() booking.Snapshot
	OnChange(fn booking.Listener) func()
}

// Locator gives the partner's last known position.
type Locator interface {
	Last() (models.Coordinates, bool)
	Suggested() models.Coordinates
}

// BookingHandler serves the local dashboard. It reads only the snapshots the
// reconciler publishes and sends every intent through the coordinator.
type BookingHandler struct {
	actions booking.ActionService
	state   func() socket.State
	locator Locator
	now     func() time.Time

	mu          sync.RWMutex
	view        booking.Snapshot
	unsubscribe func()
}

func NewBookingHandler(src SnapshotSource, actions booking.ActionService, state func() socket.State, locator Locator) *BookingHandler {
	h := &BookingHandler{
		actions: actions,
		state:   state,
		locator: locator,
		now:     time.Now,
	}
	h.unsubscribe = src.OnChange(h.apply)
	h.apply(src.Snapshot())
	return h
}

// Close stops following the reconciler.
func (h *BookingHandler) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
}

// apply keeps the newest snapshot; listeners on different goroutines may
// deliver out of order.
func (h *BookingHandler) apply(snap booking.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if snap.Version < h.view.Version {
		return
	}
	h.view = snap
}

func (h *BookingHandler) current() booking.Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.view
}

func (h *BookingHandler) connectionState() socket.State {
	if h.state == nil {
		return socket.StateIdle
	}
	return h.state()
}

// Health reports liveness plus the last background probe.
func (h *BookingHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"connection": h.connectionState(),
		"checks":     utils.GetHealthStatus(),
	})
}

// Dashboard returns every bucket, the counts and the push channel state.
// partner carries the backend figures with totalBookings taken from the
// live buckets.
func (h *BookingHandler) Dashboard(c *gin.Context) {
	snap := h.current()
	figures, _ := h.actions.PartnerStats()
	figures.TotalBookings = snap.Stats.Total
	c.JSON(http.StatusOK, gin.H{
		"available":  orEmpty(snap.Available),
		"active":     orEmpty(snap.Active),
		"completed":  orEmpty(snap.Completed),
		"stats":      snap.Stats,
		"partner":    figures,
		"version":    snap.Version,
		"connection": h.connectionState(),
	})
}

// Earnings relays the backend earnings report; period defaults to month.
func (h *BookingHandler) Earnings(c *gin.Context) {
	period := c.DefaultQuery("period", "month")
	report, err := h.actions.Earnings(c.Request.Context(), period)
	if err != nil {
		h.writeActionError(c, err)
		return
	}
	if len(report) == 0 {
		report = []byte("{}")
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", report)
}

func (h *BookingHandler) GetBooking(c *gin.Context) {
	id := c.Param("id")
	bk, bucket, ok := findIn(h.current(), id)
	if !ok {
		utils.JSONError(c, http.StatusNotFound, "Booking not found", id)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": bk, "bucket": bucket})
}

func (h *BookingHandler) Refresh(c *gin.Context) {
	if err := h.actions.Refresh(c.Request.Context()); err != nil {
		h.writeActionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": h.current().Stats})
}

func (h *BookingHandler) Accept(c *gin.Context) {
	id := c.Param("id")
	if err := h.actions.Accept(c.Request.Context(), id); err != nil {
		h.writeActionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Booking accepted", "bookingId": id})
}

func (h *BookingHandler) Reject(c *gin.Context) {
	id := c.Param("id")
	var input struct {
		Reason string `json:"reason"`
	}
	if err := bindOptionalJSON(c, &input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid input", err.Error())
		return
	}
	if err := h.actions.Reject(c.Request.Context(), id, input.Reason); err != nil {
		h.writeActionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Booking rejected", "bookingId": id})
}

func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	id := c.Param("id")
	var input struct {
		Status models.BookingStatus `json:"status" binding:"required"`
		Extra  map[string]any       `json:"extra"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid input", err.Error())
		return
	}
	if err := h.actions.AdvanceStatus(c.Request.Context(), id, input.Status, input.Extra); err != nil {
		h.writeActionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Status updated", "bookingId": id, "status": input.Status})
}

// StartService answers with where to navigate, or with resume=true when
// the service is already under way.
func (h *BookingHandler) StartService(c *gin.Context) {
	id := c.Param("id")
	bk, err := h.actions.StartService(c.Request.Context(), id, h.now())
	if err != nil {
		h.writeActionError(c, err)
		return
	}
	resp := gin.H{"booking": bk, "resume": bk.Status == models.StatusInProgress}
	if dest, ok := bk.Destination(); ok {
		resp["destination"] = dest
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BookingHandler) FixDestination(c *gin.Context) {
	id := c.Param("id")
	var update models.DestinationUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid input", err.Error())
		return
	}
	if update.Coordinates == (models.Coordinates{}) {
		utils.JSONError(c, http.StatusBadRequest, "Customer location is required to start navigation", "coordinates missing")
		return
	}
	if err := h.actions.FixDestination(c.Request.Context(), id, update); err != nil {
		h.writeActionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Destination updated", "bookingId": id, "destination": update.Coordinates})
}

func (h *BookingHandler) ReachedLocation(c *gin.Context) {
	id := c.Param("id")
	if err := h.actions.ReachedLocation(c.Request.Context(), id); err != nil {
		h.writeActionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Service started", "bookingId": id})
}

func (h *BookingHandler) CompleteService(c *gin.Context) {
	id := c.Param("id")
	var input struct {
		Method models.PaymentMethod `json:"method"`
	}
	if err := bindOptionalJSON(c, &input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid input", err.Error())
		return
	}
	if input.Method != "" && !input.Method.Valid() {
		utils.JSONError(c, http.StatusBadRequest, "Unsupported payment method", string(input.Method))
		return
	}
	if err := h.actions.CompleteService(c.Request.Context(), id, input.Method); err != nil {
		h.writeActionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Service completed", "bookingId": id})
}

// Location reports the partner position the tracker last saw.
func (h *BookingHandler) Location(c *gin.Context) {
	if h.locator == nil {
		c.JSON(http.StatusOK, gin.H{"known": false})
		return
	}
	pt, ok := h.locator.Last()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"known": false, "suggested": h.locator.Suggested()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"known": true, "coordinates": pt})
}

func (h *BookingHandler) writeActionError(c *gin.Context, err error) {
	getLogger(c).Debug("action failed", zap.Error(err))

	switch {
	case errors.Is(err, booking.ErrBookingNotFound):
		utils.JSONError(c, http.StatusNotFound, "Booking not found", err.Error())
	case errors.Is(err, booking.ErrDestinationRequired):
		suggested := models.Coordinates{}
		if h.locator != nil {
			suggested = h.locator.Suggested()
		}
		utils.JSONErrorWithData(c, http.StatusConflict, "Customer location is required", err.Error(),
			gin.H{"suggested": suggested})
	case errors.Is(err, booking.ErrInvalidPeriod):
		utils.JSONError(c, http.StatusBadRequest, "Invalid period", err.Error())
	case errors.Is(err, booking.ErrNotScheduledYet), errors.Is(err, booking.ErrInvalidTransition):
		utils.JSONError(c, http.StatusUnprocessableEntity, "Action not allowed", err.Error())
	default:
		if apiErr, ok := partner.IsAPIError(err); ok {
			utils.JSONError(c, http.StatusBadGateway, apiErr.Message, err.Error())
			return
		}
		utils.JSONError(c, http.StatusBadGateway, "Backend unavailable", err.Error())
	}
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, v any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(v)
}

func findIn(snap booking.Snapshot, id string) (models.Booking, booking.Bucket, bool) {
	for _, pair := range []struct {
		name  booking.Bucket
		items []models.Booking
	}{
		{booking.BucketAvailable, snap.Available},
		{booking.BucketActive, snap.Active},
		{booking.BucketCompleted, snap.Completed},
	} {
		for _, bk := range pair.items {
			if bk.ID == id {
				return bk, pair.name, true
			}
		}
	}
	return models.Booking{}, booking.BucketNone, false
}

func orEmpty(items []models.Booking) []models.Booking {
	if items == nil {
		return []models.Booking{}
	}
	return items
}
