package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"partnerdesk/models"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"go.uber.org/zap"
)

// IntentCreator is paymentintent.New; tests swap in a fake.
type IntentCreator func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)

// StripeCollector opens a PaymentIntent for card and UPI completions.
// stripe.Key must be set before use.
type StripeCollector struct {
	create IntentCreator
	logger *zap.Logger
	now    func() time.Time
}

func NewStripeCollector(create IntentCreator, logger *zap.Logger) *StripeCollector {
	if create == nil {
		create = paymentintent.New
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StripeCollector{create: create, logger: logger, now: time.Now}
}

func (s *StripeCollector) Collect(ctx context.Context, req models.PaymentRequest) (*models.PaymentReceipt, error) {
	if err := validateRequest(req); err != nil {
		return nil, fmt.Errorf("invalid payment request: %w", err)
	}
	if req.Amount <= 0 {
		return nil, errors.New("invalid payment request: nothing to charge")
	}
	if req.Currency == "" {
		return nil, errors.New("invalid payment request: missing currency")
	}

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(int64(math.Round(req.Amount * 100))),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx
	params.AddMetadata("booking_id", req.BookingID)
	params.AddMetadata("payment_method", string(req.Method))
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.Idempotency != "" {
		params.SetIdempotencyKey(req.Idempotency)
	}

	pi, err := s.create(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	receipt := &models.PaymentReceipt{
		ReceiptID: uuid.New().String(),
		BookingID: req.BookingID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Method:    req.Method,
		Status:    string(pi.Status),
		Reference: pi.ID,
		CreatedAt: s.now(),
	}
	s.logger.Info("payment intent created",
		zap.String("bookingId", req.BookingID), zap.String("intent", pi.ID), zap.String("status", receipt.Status))
	return receipt, nil
}
