package main

import (
	"context"
	"net/http"
	"time"

	"partnerdesk/config"
	"partnerdesk/cron"
	"partnerdesk/models"
	"partnerdesk/services/booking"
	"partnerdesk/services/dispatch"
	"partnerdesk/services/location"
	"partnerdesk/services/partner"
	"partnerdesk/services/payment"
	"partnerdesk/services/socket"
	"partnerdesk/services/tasks"
	"partnerdesk/utils"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
)

const sessionTTL = 30 * 24 * time.Hour

// syncStack is everything that keeps the local view in step with the backend.
type syncStack struct {
	logger      *zap.Logger
	redis       *redis.Client
	sessions    *utils.SessionStore
	reconciler  *booking.Reconciler
	dispatcher  *dispatch.Dispatcher
	socket      *socket.Manager
	coordinator *booking.Coordinator
	tracker     *location.Tracker
	hasLocation bool
	queue       *asynq.Client
	worker      *cron.PaymentWorker

	unsubscribe func()
}

// newSyncStack wires the stack from config.AppConfig. queued switches payment
// capture from inline to the asynq worker.
func newSyncStack(logger *zap.Logger, queued bool) *syncStack {
	cfg := config.AppConfig
	s := &syncStack{logger: logger}

	s.redis = utils.GetSessionCacheClient()
	var sources []socket.TokenSource
	sources = append(sources, socket.StaticToken(cfg.PartnerToken))
	if s.redis != nil {
		s.sessions = utils.NewSessionStore(s.redis, sessionTTL)
		sources = append(sources, socket.SessionTokenSource{Store: s.sessions, SessionID: cfg.PartnerSessionID})
	}
	tokens := socket.ChainTokenSource{Sources: sources, Logger: logger}

	client := partner.NewClient(cfg.APIBaseURL, tokens.Token,
		partner.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		partner.WithLogger(logger.Named("api")))

	s.reconciler = booking.NewReconciler(logger.Named("reconciler"))
	s.dispatcher = dispatch.NewDispatcher(logger.Named("dispatch"))
	s.unsubscribe = s.dispatcher.Subscribe(s.reconciler.ApplyEvent)

	s.socket = socket.NewManager(socket.Options{
		BaseURL: cfg.WSURL,
		Tokens:  tokens,
		Policy:  socket.NewReconnectPolicy(cfg.ReconnectBaseDelay, cfg.ReconnectMaxAttempts),
		Logger:  logger.Named("socket"),
	}, s.dispatcher)

	router := s.paymentRouter()
	var payments booking.PaymentDispatcher = payment.InlineDispatcher{Collector: router}
	if queued {
		redisOpts := cron.RedisOptsFromConfig()
		s.queue = asynq.NewClient(redisOpts)
		s.worker = cron.NewPaymentWorker(redisOpts, router, logger.Named("payments"))
		payments = tasks.NewQueueDispatcher(s.queue, logger.Named("payments"))
	}
	s.coordinator = booking.NewCoordinator(client, s.reconciler, payments, cfg.PaymentCurrency, logger.Named("actions"))

	var source location.Source
	if cfg.PartnerLat != 0 || cfg.PartnerLng != 0 {
		source = location.StaticSource{
			Point:    models.Coordinates{Lat: cfg.PartnerLat, Lng: cfg.PartnerLng},
			Interval: cfg.LocationReportInterval,
		}
		s.hasLocation = true
	}
	s.tracker = location.NewTracker(source, s.socket, cfg.LocationReportInterval, logger.Named("location"))
	return s
}

func (s *syncStack) paymentRouter() *payment.Router {
	router := payment.NewRouter(s.logger.Named("payments")).
		Handle(models.PaymentCash, payment.NewCashCollector(s.logger.Named("payments")))

	if config.AppConfig.StripeKey == "" {
		s.logger.Warn("STRIPE_KEY not set; card and UPI completions will not be charged")
		return router
	}
	stripe.Key = config.AppConfig.StripeKey
	card := payment.NewStripeCollector(nil, s.logger.Named("payments"))
	return router.Handle(models.PaymentCard, card).Handle(models.PaymentUPI, card)
}

// start opens the push channel and loads the first snapshot. Missing
// credentials are fatal; a failed first refresh is not, the push channel's
// INITIAL_DATA seeds the buckets as well.
func (s *syncStack) start(ctx context.Context) error {
	if s.worker != nil {
		s.worker.Start(ctx)
	}
	if err := s.socket.Connect(ctx, config.AppConfig.WSNamespace, ""); err != nil {
		return err
	}
	if err := s.coordinator.Refresh(ctx); err != nil {
		s.logger.Warn("initial refresh failed", zap.Error(err))
	}
	if s.hasLocation {
		if err := s.tracker.Start(ctx); err != nil {
			s.logger.Warn("location tracking unavailable", zap.Error(err))
		}
	}
	return nil
}

func (s *syncStack) stop() {
	s.tracker.Stop()
	s.socket.Disconnect()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.worker != nil {
		s.worker.Shutdown()
	}
	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			s.logger.Warn("closing payment queue client", zap.Error(err))
		}
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
}
