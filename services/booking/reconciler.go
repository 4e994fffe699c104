// File: services/booking/reconciler.go
package booking

import (
	"sync"

	"partnerdesk/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Stats are the bucket sizes; Total is recomputed on every change.
type Stats struct {
	Available int `json:"available"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Total     int `json:"totalBookings"`
}

// Snapshot is a read-only copy of the buckets. Version grows with every
// mutation so listeners can discard a snapshot older than one already seen.
type Snapshot struct {
	Available []models.Booking `json:"available"`
	Active    []models.Booking `json:"active"`
	Completed []models.Booking `json:"completed"`
	Stats     Stats            `json:"stats"`
	Version   uint64           `json:"version"`
}

// Listener is called after each mutation, outside the reconciler's lock.
type Listener func(Snapshot)

// Reconciler owns the available/active/completed buckets and is the only
// code allowed to mutate them. Seed and ApplyEvent are idempotent and never
// reject an event for an id they have not seen.
type Reconciler struct {
	mu        sync.RWMutex
	available bucket
	active    bucket
	completed bucket
	stats     Stats
	version   uint64

	lmu       sync.Mutex
	listeners map[string]Listener

	logger *zap.Logger
}

func NewReconciler(logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		listeners: make(map[string]Listener),
		logger:    logger,
	}
}

// Seed overwrites all three buckets from an authoritative snapshot. Assigned
// bookings are partitioned by status; statuses outside active/completed are
// dropped. An id listed in both inputs lands only in its assigned bucket.
func (r *Reconciler) Seed(available, assigned []models.Booking) {
	r.mu.Lock()
	r.seedLocked(available, assigned)
	snap := r.commitLocked()
	r.mu.Unlock()

	r.logger.Debug("buckets seeded",
		zap.Int("available", snap.Stats.Available),
		zap.Int("active", snap.Stats.Active),
		zap.Int("completed", snap.Stats.Completed))
	r.notify(snap)
}

func (r *Reconciler) seedLocked(available, assigned []models.Booking) {
	var active, completed []models.Booking
	owned := make(map[string]struct{}, len(assigned))
	for _, bk := range assigned {
		if bk.ID == "" {
			continue
		}
		if _, dup := owned[bk.ID]; dup {
			continue
		}
		switch {
		case bk.Status.IsActive():
			active = append(active, bk)
		case bk.Status == models.StatusCompleted:
			completed = append(completed, bk)
		default:
			continue
		}
		owned[bk.ID] = struct{}{}
	}

	open := make([]models.Booking, 0, len(available))
	for _, bk := range available {
		if _, taken := owned[bk.ID]; taken {
			continue
		}
		open = append(open, bk)
	}

	r.available.replace(open)
	r.active.replace(active)
	r.completed.replace(completed)
}

// ApplyEvent folds one push event into the buckets, strictly in call order.
func (r *Reconciler) ApplyEvent(evt models.Event) {
	r.mu.Lock()
	changed := r.applyLocked(evt)
	var snap Snapshot
	if changed {
		snap = r.commitLocked()
	}
	r.mu.Unlock()

	if changed {
		r.notify(snap)
	}
}

func (r *Reconciler) applyLocked(evt models.Event) bool {
	switch e := evt.(type) {
	case models.InitialData:
		r.seedLocked(e.Available, e.Accepted)
		return true

	case models.NewBooking:
		// A late duplicate of a creation must not resurrect a booking that was
		// already taken before this client saw it.
		if r.locateLocked(e.Booking.ID) != BucketNone {
			r.logger.Debug("ignoring NEW_BOOKING for known booking", zap.String("bookingId", e.Booking.ID))
			return false
		}
		return r.available.insert(e.Booking)

	case models.BookingUpdated:
		return r.applyUpdateLocked(e.Booking)

	case models.BookingCancelled:
		a := r.available.remove(e.BookingID)
		b := r.active.remove(e.BookingID)
		c := r.completed.remove(e.BookingID)
		return a || b || c

	case models.UnknownEvent:
		r.logger.Info("ignoring unknown event type", zap.String("type", string(e.Kind)))
		return false

	default:
		r.logger.Warn("ignoring unsupported event", zap.Any("event", evt))
		return false
	}
}

func (r *Reconciler) applyUpdateLocked(bk models.Booking) bool {
	// Accepted or rejected bookings leave the open pool whatever comes next.
	changed := r.available.remove(bk.ID)

	switch {
	case bk.Status == models.StatusCompleted:
		r.active.remove(bk.ID)
		r.completed.upsert(bk)
		return true

	case bk.Status.IsActive():
		r.completed.remove(bk.ID)
		r.active.upsert(bk)
		return true

	case bk.Status.IsWithdrawn():
		// Not returned to available; a fresh NEW_BOOKING does that if the
		// backend re-broadcasts it.
		a := r.active.remove(bk.ID)
		c := r.completed.remove(bk.ID)
		return changed || a || c
	}
	return changed
}

// commitLocked recomputes stats and takes the snapshot handed to listeners.
func (r *Reconciler) commitLocked() Snapshot {
	r.stats = Stats{
		Available: r.available.len(),
		Active:    r.active.len(),
		Completed: r.completed.len(),
	}
	r.stats.Total = r.stats.Available + r.stats.Active + r.stats.Completed
	r.version++
	return r.snapshotLocked()
}

func (r *Reconciler) snapshotLocked() Snapshot {
	return Snapshot{
		Available: r.available.snapshot(),
		Active:    r.active.snapshot(),
		Completed: r.completed.snapshot(),
		Stats:     r.stats,
		Version:   r.version,
	}
}

func (r *Reconciler) locateLocked(id string) Bucket {
	switch {
	case r.available.has(id):
		return BucketAvailable
	case r.active.has(id):
		return BucketActive
	case r.completed.has(id):
		return BucketCompleted
	}
	return BucketNone
}

// Snapshot returns copies of the current buckets.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Stats returns the current bucket sizes.
func (r *Reconciler) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// Find returns the booking with id and the bucket holding it.
func (r *Reconciler) Find(id string) (models.Booking, Bucket, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, pair := range []struct {
		name Bucket
		b    *bucket
	}{
		{BucketAvailable, &r.available},
		{BucketActive, &r.active},
		{BucketCompleted, &r.completed},
	} {
		if bk, ok := pair.b.get(id); ok {
			return bk, pair.name, true
		}
	}
	return models.Booking{}, BucketNone, false
}

// OnChange registers fn for every later mutation. fn runs on the goroutine
// that caused the change.
func (r *Reconciler) OnChange(fn Listener) func() {
	id := uuid.New().String()
	r.lmu.Lock()
	r.listeners[id] = fn
	r.lmu.Unlock()
	return func() {
		r.lmu.Lock()
		delete(r.listeners, id)
		r.lmu.Unlock()
	}
}

func (r *Reconciler) notify(snap Snapshot) {
	r.lmu.Lock()
	listeners := make([]Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		listeners = append(listeners, l)
	}
	r.lmu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}
