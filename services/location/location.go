// Package location follows the partner's own position and reports it over
// the push channel at a bounded rate.
package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"partnerdesk/models"
	"partnerdesk/services/socket"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// FrameType tags outbound position reports.
const FrameType = "PARTNER_LOCATION"

// DefaultCentre is the suggested pin when no position has been seen yet.
var DefaultCentre = models.Coordinates{Lat: 13.0827, Lng: 80.2707}

// Source streams positions until ctx is cancelled, then closes the channel.
type Source interface {
	Watch(ctx context.Context) (<-chan models.Coordinates, error)
}

// Sender writes one frame to the push channel.
type Sender interface {
	Send(v any) error
}

// Frame is the outbound position report.
type Frame struct {
	Type      string             `json:"type"`
	Payload   models.Coordinates `json:"payload"`
	Timestamp time.Time          `json:"timestamp"`
}

// StaticSource emits a fixed point once and then every Interval.
type StaticSource struct {
	Point    models.Coordinates
	Interval time.Duration
}

func (s StaticSource) Watch(ctx context.Context) (<-chan models.Coordinates, error) {
	out := make(chan models.Coordinates, 1)
	go func() {
		defer close(out)
		out <- s.Point
		if s.Interval <= 0 {
			<-ctx.Done()
			return
		}
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case out <- s.Point:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Tracker keeps the latest position and forwards it to the push channel no
// more than once per interval.
type Tracker struct {
	source  Source
	sender  Sender
	limiter *rate.Limiter
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.RWMutex
	last   *models.Coordinates
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTracker(source Source, sender Sender, interval time.Duration, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Tracker{
		source:  source,
		sender:  sender,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		now:     time.Now,
	}
}

// Start begins watching the source. Calling it while running is a no-op.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return nil
	}

	wctx, cancel := context.WithCancel(ctx)
	points, err := t.source.Watch(wctx)
	if err != nil {
		cancel()
		return err
	}
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(points, t.done)
	return nil
}

// Stop ends the watch and waits for the loop to exit. Safe to call repeatedly.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Last returns the most recent position, if any has been seen.
func (t *Tracker) Last() (models.Coordinates, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last == nil {
		return models.Coordinates{}, false
	}
	return *t.last, true
}

// Suggested is the pin offered when a customer location has to be fixed by hand.
func (t *Tracker) Suggested() models.Coordinates {
	if pt, ok := t.Last(); ok {
		return pt
	}
	return DefaultCentre
}

func (t *Tracker) run(points <-chan models.Coordinates, done chan struct{}) {
	defer close(done)
	for pt := range points {
		p := pt
		t.mu.Lock()
		t.last = &p
		t.mu.Unlock()

		if !t.limiter.Allow() {
			continue
		}
		t.report(p)
	}
}

func (t *Tracker) report(pt models.Coordinates) {
	if t.sender == nil {
		return
	}
	err := t.sender.Send(Frame{Type: FrameType, Payload: pt, Timestamp: t.now().UTC()})
	if err == nil {
		return
	}
	if errors.Is(err, socket.ErrNotConnected) {
		t.logger.Debug("location report skipped; push channel offline")
		return
	}
	t.logger.Warn("location report failed", zap.Error(err))
}
