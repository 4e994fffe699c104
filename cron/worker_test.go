package cron

import (
	"context"
	"errors"
	"testing"

	"partnerdesk/models"
	"partnerdesk/services/payment"
	"partnerdesk/services/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type stubCollector struct {
	err  error
	seen []models.PaymentRequest
}

func (s *stubCollector) Collect(ctx context.Context, req models.PaymentRequest) (*models.PaymentReceipt, error) {
	s.seen = append(s.seen, req)
	if s.err != nil {
		return nil, s.err
	}
	return &models.PaymentReceipt{ReceiptID: "r1", BookingID: req.BookingID, Status: "recorded"}, nil
}

func paymentTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, _, err := tasks.NewPaymentTask(models.PaymentRequest{
		BookingID: "b1", Amount: 200, Currency: "INR", Method: models.PaymentCash, Idempotency: "key-b1",
	})
	if err != nil {
		t.Fatalf("NewPaymentTask: %v", err)
	}
	return task
}

func TestHandlePaymentTaskCollects(t *testing.T) {
	c := &stubCollector{}
	h := HandlePaymentTask(c, zap.NewNop())

	if err := h(context.Background(), paymentTask(t)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(c.seen) != 1 || c.seen[0].BookingID != "b1" {
		t.Fatalf("collector saw %+v", c.seen)
	}
}

func TestHandlePaymentTaskSkipsRetryOnBadPayload(t *testing.T) {
	c := &stubCollector{}
	h := HandlePaymentTask(c, zap.NewNop())

	err := h(context.Background(), asynq.NewTask(tasks.TypePaymentCollect, []byte("not json")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}
	if len(c.seen) != 0 {
		t.Fatal("collector called for an undecodable payload")
	}
}

func TestHandlePaymentTaskRetryPolicy(t *testing.T) {
	unsupported := &stubCollector{err: payment.ErrUnsupportedMethod}
	if err := HandlePaymentTask(unsupported, zap.NewNop())(context.Background(), paymentTask(t)); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("unsupported method err = %v, want SkipRetry", err)
	}

	transient := &stubCollector{err: errors.New("gateway timeout")}
	err := HandlePaymentTask(transient, zap.NewNop())(context.Background(), paymentTask(t))
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("transient err = %v, want a retryable error", err)
	}
}
