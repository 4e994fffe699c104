// Package payment captures what the customer owes once a booking completes.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"partnerdesk/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// --- Interfaces ---

// Collector settles one payment request.
type Collector interface {
	Collect(ctx context.Context, req models.PaymentRequest) (*models.PaymentReceipt, error)
}

// Dispatcher hands a payment request off, inline or through a queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, req models.PaymentRequest) error
}

var ErrUnsupportedMethod = errors.New("unsupported payment method")

// --- Cash ---

// CashCollector records cash on delivery; nothing leaves the process.
type CashCollector struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewCashCollector(logger *zap.Logger) *CashCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CashCollector{logger: logger, now: time.Now}
}

func (c *CashCollector) Collect(ctx context.Context, req models.PaymentRequest) (*models.PaymentReceipt, error) {
	if err := validateRequest(req); err != nil {
		return nil, fmt.Errorf("invalid payment request: %w", err)
	}

	receipt := &models.PaymentReceipt{
		ReceiptID: uuid.New().String(),
		BookingID: req.BookingID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Method:    req.Method,
		Status:    "recorded",
		CreatedAt: c.now(),
	}
	c.logger.Info("cash payment recorded",
		zap.String("bookingId", req.BookingID), zap.String("receipt", receipt.ReceiptID))
	return receipt, nil
}

// --- Router ---

// Router picks the collector registered for the request's method.
type Router struct {
	collectors map[models.PaymentMethod]Collector
	logger     *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{collectors: make(map[models.PaymentMethod]Collector), logger: logger}
}

// Handle registers c for method, replacing any earlier registration.
func (r *Router) Handle(method models.PaymentMethod, c Collector) *Router {
	r.collectors[method] = c
	return r
}

func (r *Router) Collect(ctx context.Context, req models.PaymentRequest) (*models.PaymentReceipt, error) {
	c, ok := r.collectors[req.Method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, req.Method)
	}
	receipt, err := c.Collect(ctx, req)
	if err != nil {
		r.logger.Error("payment collection failed",
			zap.String("bookingId", req.BookingID), zap.String("method", string(req.Method)), zap.Error(err))
		return nil, err
	}
	return receipt, nil
}

// --- Inline dispatch ---

// InlineDispatcher collects within the calling goroutine.
type InlineDispatcher struct {
	Collector Collector
}

func (d InlineDispatcher) Dispatch(ctx context.Context, req models.PaymentRequest) error {
	_, err := d.Collector.Collect(ctx, req)
	return err
}

// --- Validator ---
func validateRequest(req models.PaymentRequest) error {
	if req.BookingID == "" {
		return errors.New("missing booking ID")
	}
	if req.Amount < 0 {
		return errors.New("invalid payment amount")
	}
	if !req.Method.Valid() {
		return ErrUnsupportedMethod
	}
	return nil
}
