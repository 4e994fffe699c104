package models

// serviceFlow lists the forward moves of a booking through service.
var serviceFlow = map[BookingStatus][]BookingStatus{
	StatusPending:    {StatusAccepted},
	StatusAccepted:   {StatusOnTheWay},
	StatusOnTheWay:   {StatusInProgress},
	StatusInProgress: {StatusCompleted},
}

// CanTransition reports whether a booking in from may be moved to to.
// Completed is terminal. Cancelled and rejected are reachable from every
// other state, and repeating the current status is allowed so retried calls
// stay idempotent.
func CanTransition(from, to BookingStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	if from.IsTerminal() || from.IsWithdrawn() {
		return false
	}
	if to.IsWithdrawn() {
		return true
	}
	for _, next := range serviceFlow[from] {
		if next == to {
			return true
		}
	}
	return false
}
