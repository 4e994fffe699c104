package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType identifies the kind of message pushed over the partner channel.
type EventType string

const (
	// EventInitialData carries a full snapshot.
	// Payload: available, accepted
	EventInitialData EventType = "INITIAL_DATA"

	// EventNewBooking announces a booking open for partners to accept.
	// Payload: booking
	EventNewBooking EventType = "NEW_BOOKING"

	// EventBookingUpdated carries a booking with its new status.
	// Payload: booking
	EventBookingUpdated EventType = "BOOKING_UPDATED"

	// EventBookingCancelled names a booking that was withdrawn.
	// Payload: bookingId
	EventBookingCancelled EventType = "BOOKING_CANCELLED"
)

// ErrMalformedEvent wraps every decode failure at the channel boundary.
var ErrMalformedEvent = errors.New("malformed event")

// Event is one decoded push message. The set of implementations is closed:
// InitialData, NewBooking, BookingUpdated, BookingCancelled and UnknownEvent.
type Event interface {
	Type() EventType
	isEvent()
}

// InitialData is an authoritative snapshot sent by the server on connect.
type InitialData struct {
	Available []Booking
	Accepted  []Booking
}

// NewBooking is a booking entering the open pool.
type NewBooking struct {
	Booking Booking
}

// BookingUpdated is a full booking carrying its new status.
type BookingUpdated struct {
	Booking Booking
}

// BookingCancelled only names the booking.
type BookingCancelled struct {
	BookingID string
}

// UnknownEvent is a well-formed envelope with a type this client does not handle.
type UnknownEvent struct {
	Kind EventType
}

func (InitialData) Type() EventType      { return EventInitialData }
func (NewBooking) Type() EventType       { return EventNewBooking }
func (BookingUpdated) Type() EventType   { return EventBookingUpdated }
func (BookingCancelled) Type() EventType { return EventBookingCancelled }
func (e UnknownEvent) Type() EventType   { return e.Kind }

func (InitialData) isEvent()      {}
func (NewBooking) isEvent()       {}
func (BookingUpdated) isEvent()   {}
func (BookingCancelled) isEvent() {}
func (UnknownEvent) isEvent()     {}

// envelope is the wire shape: {type, ...payload}.
type envelope struct {
	Type      EventType `json:"type"`
	Available []Booking `json:"available"`
	Accepted  []Booking `json:"accepted"`
	Booking   *Booking  `json:"booking"`
	BookingID string    `json:"bookingId"`
}

// DecodeEvent parses and validates one text frame.
func DecodeEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}

	switch env.Type {
	case EventInitialData:
		for _, list := range [][]Booking{env.Available, env.Accepted} {
			for i := range list {
				if list[i].ID == "" {
					return nil, fmt.Errorf("%w: %s entry %d has no _id", ErrMalformedEvent, env.Type, i)
				}
			}
		}
		return InitialData{Available: env.Available, Accepted: env.Accepted}, nil

	case EventNewBooking:
		if env.Booking == nil || env.Booking.ID == "" {
			return nil, fmt.Errorf("%w: %s without booking", ErrMalformedEvent, env.Type)
		}
		return NewBooking{Booking: *env.Booking}, nil

	case EventBookingUpdated:
		if env.Booking == nil || env.Booking.ID == "" {
			return nil, fmt.Errorf("%w: %s without booking", ErrMalformedEvent, env.Type)
		}
		if !env.Booking.Status.Valid() {
			return nil, fmt.Errorf("%w: %s with status %q", ErrMalformedEvent, env.Type, env.Booking.Status)
		}
		return BookingUpdated{Booking: *env.Booking}, nil

	case EventBookingCancelled:
		if env.BookingID == "" {
			return nil, fmt.Errorf("%w: %s without bookingId", ErrMalformedEvent, env.Type)
		}
		return BookingCancelled{BookingID: env.BookingID}, nil
	}

	return UnknownEvent{Kind: env.Type}, nil
}
