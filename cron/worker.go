package cron

import (
	"context"
	"errors"
	"time"

	"partnerdesk/config"
	"partnerdesk/services/payment"
	"partnerdesk/services/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// PaymentWorker runs queued payment:collect tasks through a collector.
type PaymentWorker struct {
	redisOpts asynq.RedisClientOpt
	collector payment.Collector
	logger    *zap.Logger
	srv       *asynq.Server
}

// RedisOptsFromConfig points asynq at the payment queue database.
func RedisOptsFromConfig() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisPaymentQueueDB,
	}
}

func NewPaymentWorker(redisOpts asynq.RedisClientOpt, collector payment.Collector, logger *zap.Logger) *PaymentWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentWorker{redisOpts: redisOpts, collector: collector, logger: logger}
}

// Start runs the worker in the background until ctx is done.
func (w *PaymentWorker) Start(ctx context.Context) {
	w.srv = asynq.NewServer(
		w.redisOpts,
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				"default": 1,
			},
			Logger: w.logger.Sugar(),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypePaymentCollect, HandlePaymentTask(w.collector, w.logger))

	go w.monitorRedisConnection(ctx)

	go func() {
		w.logger.Info("starting payment worker")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			err := w.srv.Start(mux)
			if err == nil {
				return
			}
			w.logger.Error("payment worker failed to start",
				zap.Int("attempt", attempts), zap.Int("maxAttempts", maxAttempts), zap.Error(err))
			if attempts == maxAttempts {
				w.logger.Error("payment worker gave up; queued payments stay pending")
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempts*2) * time.Second):
			}
		}
	}()
}

// Shutdown waits for in-flight tasks and stops the server.
func (w *PaymentWorker) Shutdown() {
	if w.srv != nil {
		w.srv.Shutdown()
	}
}

// HandlePaymentTask decodes a queued request and collects it. A payload that
// cannot be decoded is dropped instead of retried.
func HandlePaymentTask(collector payment.Collector, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		req, err := tasks.ParsePaymentTask(task)
		if err != nil {
			logger.Error("invalid payment task payload", zap.Error(err))
			return errors.Join(err, asynq.SkipRetry)
		}

		receipt, err := collector.Collect(ctx, req)
		if err != nil {
			if errors.Is(err, payment.ErrUnsupportedMethod) {
				return errors.Join(err, asynq.SkipRetry)
			}
			return err
		}
		logger.Info("queued payment collected",
			zap.String("bookingId", req.BookingID), zap.String("receipt", receipt.ReceiptID), zap.String("status", receipt.Status))
		return nil
	}
}

// monitorRedisConnection pings Redis periodically to detect failures at runtime.
func (w *PaymentWorker) monitorRedisConnection(ctx context.Context) {
	client := redis.NewClient(&redis.Options{
		Addr:     w.redisOpts.Addr,
		Password: w.redisOpts.Password,
		DB:       w.redisOpts.DB,
	})
	defer client.Close()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Ping(ctx).Err(); err != nil && ctx.Err() == nil {
				w.logger.Warn("payment queue redis unreachable", zap.Error(err))
			}
		}
	}
}
