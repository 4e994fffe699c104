package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"partnerdesk/models"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const TypePaymentCollect = "payment:collect"

// NewPaymentTask wraps req for the payment worker. The task id is the
// request's idempotency key, so a second enqueue for the same booking is
// refused by the queue.
func NewPaymentTask(req models.PaymentRequest) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypePaymentCollect, b)
	opts := []asynq.Option{
		asynq.MaxRetry(5),
		asynq.Timeout(30 * time.Second),
	}
	if req.Idempotency != "" {
		opts = append(opts, asynq.TaskID(req.Idempotency))
	}
	return task, opts, nil
}

// ParsePaymentTask is the worker-side inverse of NewPaymentTask.
func ParsePaymentTask(task *asynq.Task) (models.PaymentRequest, error) {
	var req models.PaymentRequest
	if err := json.Unmarshal(task.Payload(), &req); err != nil {
		return req, fmt.Errorf("decode %s payload: %w", TypePaymentCollect, err)
	}
	return req, nil
}

// Enqueuer is the part of *asynq.Client the dispatcher uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueDispatcher defers payment collection to the asynq worker.
type QueueDispatcher struct {
	client Enqueuer
	logger *zap.Logger
}

func NewQueueDispatcher(client Enqueuer, logger *zap.Logger) *QueueDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueDispatcher{client: client, logger: logger}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, req models.PaymentRequest) error {
	task, opts, err := NewPaymentTask(req)
	if err != nil {
		return err
	}
	info, err := d.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		d.logger.Info("payment already queued", zap.String("bookingId", req.BookingID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue payment: %w", err)
	}
	d.logger.Info("payment queued",
		zap.String("bookingId", req.BookingID), zap.String("taskId", info.ID), zap.String("queue", info.Queue))
	return nil
}
