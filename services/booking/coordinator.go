package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"partnerdesk/models"
	"partnerdesk/services/partner"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Coordinator turns partner intents into authoritative backend calls. It
// never edits the buckets itself; the push stream reflects the outcome,
// except for Accept which forces a Refresh once the call succeeds.
type Coordinator struct {
	api        PartnerAPI
	reconciler *Reconciler
	payments   PaymentDispatcher
	currency   string
	logger     *zap.Logger

	statsMu   sync.RWMutex
	stats     models.PartnerStats
	haveStats bool
}

func NewCoordinator(api PartnerAPI, reconciler *Reconciler, payments PaymentDispatcher, currency string, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		api:        api,
		reconciler: reconciler,
		payments:   payments,
		currency:   currency,
		logger:     logger,
	}
}

// Refresh fetches the open and assigned lists in parallel and seeds the
// reconciler with both. Nothing is seeded unless both fetches succeed. The
// partner stats are fetched alongside; their failure only keeps the
// previous figures.
func (c *Coordinator) Refresh(ctx context.Context) error {
	var available, assigned []models.Booking
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.refreshStats(gctx)
		return nil
	})
	g.Go(func() error {
		list, err := c.api.ListAvailable(gctx)
		if err != nil {
			return fmt.Errorf("list available bookings: %w", err)
		}
		available = list
		return nil
	})
	g.Go(func() error {
		list, err := c.api.ListAssigned(gctx)
		if err != nil {
			return fmt.Errorf("list assigned bookings: %w", err)
		}
		assigned = list
		return nil
	})
	if err := g.Wait(); err != nil {
		c.logger.Warn("refresh failed", zap.Error(err))
		return err
	}

	c.reconciler.Seed(available, assigned)
	return nil
}

func (c *Coordinator) refreshStats(ctx context.Context) {
	stats, err := c.api.Stats(ctx)
	if err != nil {
		c.logger.Warn("partner stats unavailable", zap.Error(err))
		return
	}
	c.statsMu.Lock()
	c.stats, c.haveStats = stats, true
	c.statsMu.Unlock()
}

// PartnerStats returns the figures from the last successful stats fetch.
func (c *Coordinator) PartnerStats() (models.PartnerStats, bool) {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.stats, c.haveStats
}

// Earnings passes the backend earnings report for period through unchanged.
func (c *Coordinator) Earnings(ctx context.Context, period string) (json.RawMessage, error) {
	switch period {
	case "", "day", "week", "month", "year":
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	report, err := c.api.Earnings(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("earnings %s: %w", period, err)
	}
	return report, nil
}

func (c *Coordinator) Accept(ctx context.Context, id string) error {
	if err := c.checkTransition("accept", id, models.StatusAccepted); err != nil {
		return err
	}
	if err := c.api.Accept(ctx, id); err != nil {
		return newActionError("accept", id, err)
	}
	c.logger.Info("booking accepted", zap.String("bookingId", id))

	// The acceptance stands even if the follow-up fetch fails; the push
	// stream will still carry the update.
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("refresh after accept failed", zap.String("bookingId", id), zap.Error(err))
	}
	return nil
}

func (c *Coordinator) Reject(ctx context.Context, id, reason string) error {
	if err := c.checkTransition("reject", id, models.StatusRejected); err != nil {
		return err
	}
	if err := c.api.Reject(ctx, id, reason); err != nil {
		return newActionError("reject", id, err)
	}
	c.logger.Info("booking rejected", zap.String("bookingId", id), zap.String("reason", reason))
	return nil
}

// AdvanceStatus moves a booking to status, sending extra alongside it.
func (c *Coordinator) AdvanceStatus(ctx context.Context, id string, status models.BookingStatus, extra map[string]any) error {
	if !status.Valid() {
		return newActionError("update status", id, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status))
	}
	if err := c.checkTransition("update status", id, status); err != nil {
		return err
	}
	if err := c.api.UpdateStatus(ctx, id, status, extra); err != nil {
		return newActionError("update status", id, err)
	}
	c.logger.Info("booking status updated", zap.String("bookingId", id), zap.String("status", string(status)))
	return nil
}

// StartService begins travel to an active booking. A booking already in
// progress is returned unchanged so the partner can resume it. Without a
// known destination ErrDestinationRequired is returned and FixDestination
// must be called first. Bookings the reconciler has not seen yet are
// fetched from the backend.
func (c *Coordinator) StartService(ctx context.Context, id string, today time.Time) (models.Booking, error) {
	bk, bucket, ok := c.reconciler.Find(id)
	switch {
	case ok && bucket != BucketActive:
		return models.Booking{}, newActionError("start service", id, ErrBookingNotFound)
	case !ok:
		fetched, err := c.fetch(ctx, "start service", id)
		if err != nil {
			return models.Booking{}, err
		}
		if !fetched.Status.IsActive() {
			return models.Booking{}, newActionError("start service", id, ErrBookingNotFound)
		}
		bk = fetched
	}
	if !bk.StartableOn(today) {
		return bk, newActionError("start service", id, ErrNotScheduledYet)
	}
	if bk.Status == models.StatusInProgress {
		return bk, nil
	}
	if _, ok := bk.Destination(); !ok {
		return bk, newActionError("start service", id, ErrDestinationRequired)
	}
	if bk.Status == models.StatusAccepted {
		if err := c.api.UpdateStatus(ctx, id, models.StatusOnTheWay, nil); err != nil {
			return bk, newActionError("start service", id, err)
		}
		bk.Status = models.StatusOnTheWay
		c.logger.Info("partner on the way", zap.String("bookingId", id))
	}
	return bk, nil
}

// FixDestination stores a manually pinned customer location, then starts
// travel if the booking is still waiting in accepted.
func (c *Coordinator) FixDestination(ctx context.Context, id string, update models.DestinationUpdate) error {
	if err := c.api.UpdateDestination(ctx, id, update); err != nil {
		return newActionError("update destination", id, err)
	}
	c.logger.Info("destination updated", zap.String("bookingId", id),
		zap.Float64("lat", update.Coordinates.Lat), zap.Float64("lng", update.Coordinates.Lng))

	bk, _, ok := c.reconciler.Find(id)
	if !ok || bk.Status != models.StatusAccepted {
		return nil
	}
	if err := c.api.UpdateStatus(ctx, id, models.StatusOnTheWay, nil); err != nil {
		return newActionError("start service", id, err)
	}
	return nil
}

// ReachedLocation marks the partner as arrived and the service as started.
// A booking the reconciler does not know is fetched first; one already in
// progress is left alone.
func (c *Coordinator) ReachedLocation(ctx context.Context, id string) error {
	if _, _, ok := c.reconciler.Find(id); ok {
		return c.AdvanceStatus(ctx, id, models.StatusInProgress, nil)
	}

	bk, err := c.fetch(ctx, "reached location", id)
	if err != nil {
		return err
	}
	if bk.Status == models.StatusInProgress {
		return nil
	}
	if !models.CanTransition(bk.Status, models.StatusInProgress) {
		return newActionError("reached location", id,
			fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, bk.Status, models.StatusInProgress))
	}
	if err := c.api.UpdateStatus(ctx, id, models.StatusInProgress, nil); err != nil {
		return newActionError("reached location", id, err)
	}
	c.logger.Info("booking status corrected", zap.String("bookingId", id),
		zap.String("from", string(bk.Status)), zap.String("status", string(models.StatusInProgress)))
	return nil
}

// fetch reads one booking from the backend. A 404 becomes ErrBookingNotFound.
func (c *Coordinator) fetch(ctx context.Context, action, id string) (models.Booking, error) {
	bk, err := c.api.GetBooking(ctx, id)
	if err != nil {
		if apiErr, ok := partner.IsAPIError(err); ok && apiErr.StatusCode == http.StatusNotFound {
			return models.Booking{}, newActionError(action, id, ErrBookingNotFound)
		}
		return models.Booking{}, newActionError(action, id, err)
	}
	if bk == nil || bk.ID == "" {
		return models.Booking{}, newActionError(action, id, ErrBookingNotFound)
	}
	return *bk, nil
}

// CompleteService closes the booking and hands payment capture off. The
// completion is not undone if the hand-off fails.
func (c *Coordinator) CompleteService(ctx context.Context, id string, method models.PaymentMethod) error {
	if method == "" {
		method = models.PaymentCash
	}
	if !method.Valid() {
		return newActionError("complete service", id, fmt.Errorf("unsupported payment method %q", method))
	}

	extra := map[string]any{
		"paymentMethod": method,
		"notes":         completionNote(method),
	}
	if err := c.AdvanceStatus(ctx, id, models.StatusCompleted, extra); err != nil {
		return err
	}

	if c.payments == nil {
		return nil
	}
	bk, _, _ := c.reconciler.Find(id)
	req := c.paymentRequest(id, bk, method)
	if err := c.payments.Dispatch(ctx, req); err != nil {
		c.logger.Error("payment dispatch failed",
			zap.String("bookingId", id), zap.String("method", string(method)), zap.Error(err))
	}
	return nil
}

func (c *Coordinator) paymentRequest(id string, bk models.Booking, method models.PaymentMethod) models.PaymentRequest {
	title := bk.Title
	if title == "" {
		title = "booking " + id
	}
	return models.PaymentRequest{
		BookingID:     id,
		Amount:        bk.TotalAmount(),
		Currency:      c.currency,
		Method:        method,
		Idempotency:   PaymentKey(id),
		Description:   fmt.Sprintf("Service completion for %s via %s", title, strings.ToUpper(string(method))),
		CustomerName:  bk.ContactName(),
		CustomerEmail: bk.CustomerInfo().Email,
		Metadata:      map[string]string{"booking_id": id},
	}
}

// PaymentKey is stable per booking so a retried completion never charges twice.
func PaymentKey(bookingID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("partnerdesk:payment:"+bookingID)).String()
}

func completionNote(method models.PaymentMethod) string {
	if method == models.PaymentCash {
		return "Payment received via CASH (recorded by partner)"
	}
	return "Payment collected via " + strings.ToUpper(string(method))
}

// checkTransition refuses moves the lifecycle forbids for bookings the
// reconciler knows. Unknown bookings go to the backend, which decides.
func (c *Coordinator) checkTransition(action, id string, to models.BookingStatus) error {
	bk, _, ok := c.reconciler.Find(id)
	if !ok || !bk.Status.Valid() {
		return nil
	}
	if !models.CanTransition(bk.Status, to) {
		return newActionError(action, id, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, bk.Status, to))
	}
	return nil
}

var _ ActionService = (*Coordinator)(nil)
