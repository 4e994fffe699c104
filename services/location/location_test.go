package location

import (
	"context"
	"sync"
	"testing"
	"time"

	"partnerdesk/models"
	"partnerdesk/services/socket"
)

type chanSource struct {
	ch chan models.Coordinates
}

func (s chanSource) Watch(ctx context.Context) (<-chan models.Coordinates, error) {
	return s.ch, nil
}

type frameSink struct {
	mu     sync.Mutex
	err    error
	frames []Frame
}

func (s *frameSink) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, v.(Frame))
	return nil
}

func (s *frameSink) sent() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.frames...)
}

func TestTrackerRateLimitsReports(t *testing.T) {
	src := chanSource{ch: make(chan models.Coordinates, 3)}
	sink := &frameSink{}
	tr := NewTracker(src, sink, time.Hour, nil)

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	src.ch <- models.Coordinates{Lat: 13.01, Lng: 80.21}
	src.ch <- models.Coordinates{Lat: 13.02, Lng: 80.22}
	src.ch <- models.Coordinates{Lat: 13.03, Lng: 80.23}
	close(src.ch)
	tr.Stop()

	frames := sink.sent()
	if len(frames) != 1 {
		t.Fatalf("sent %d frames, want 1 within one interval", len(frames))
	}
	if frames[0].Type != FrameType || frames[0].Payload.Lat != 13.01 {
		t.Fatalf("frame = %+v", frames[0])
	}

	last, ok := tr.Last()
	if !ok || last.Lat != 13.03 {
		t.Fatalf("Last = %+v, %t; want the newest point", last, ok)
	}
	if tr.Suggested() != last {
		t.Fatalf("Suggested = %+v, want %+v", tr.Suggested(), last)
	}
}

func TestSuggestedFallsBackToCentre(t *testing.T) {
	tr := NewTracker(chanSource{ch: make(chan models.Coordinates)}, nil, time.Second, nil)
	if _, ok := tr.Last(); ok {
		t.Fatal("Last reported a position before any was seen")
	}
	if tr.Suggested() != DefaultCentre {
		t.Fatalf("Suggested = %+v, want %+v", tr.Suggested(), DefaultCentre)
	}
}

func TestTrackerToleratesOfflineChannel(t *testing.T) {
	src := chanSource{ch: make(chan models.Coordinates, 1)}
	sink := &frameSink{err: socket.ErrNotConnected}
	tr := NewTracker(src, sink, 0, nil)

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	src.ch <- models.Coordinates{Lat: 12.9, Lng: 80.1}
	close(src.ch)
	tr.Stop()

	if _, ok := tr.Last(); !ok {
		t.Fatal("position lost while the push channel was offline")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	tr := NewTracker(StaticSource{Point: DefaultCentre}, &frameSink{}, time.Minute, nil)
	tr.Stop()

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	tr.Stop()
	tr.Stop()
}

func TestStaticSourceRepeats(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	points, err := StaticSource{Point: DefaultCentre, Interval: 5 * time.Millisecond}.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	for i := 0; i < 3; i++ {
		select {
		case pt := <-points:
			if pt != DefaultCentre {
				t.Fatalf("point = %+v", pt)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for a point")
		}
	}
	cancel()
	for range points {
	}
}
