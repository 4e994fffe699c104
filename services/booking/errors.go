package booking

import (
	"errors"
	"fmt"
)

var (
	ErrBookingNotFound     = errors.New("booking not found")
	ErrDestinationRequired = errors.New("customer location is missing")
	ErrNotScheduledYet     = errors.New("service cannot be started before the scheduled date")
	ErrInvalidTransition   = errors.New("status change not allowed")
	ErrInvalidPeriod       = errors.New("unknown earnings period")
)

// ActionError wraps a failed partner action. The buckets are untouched when
// one is returned.
type ActionError struct {
	Action    string
	BookingID string
	Err       error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Action, e.BookingID, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

func newActionError(action, id string, err error) error {
	return &ActionError{
		Action:    action,
		BookingID: id,
		Err:       err,
	}
}
