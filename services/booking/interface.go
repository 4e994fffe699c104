package booking

import (
	"context"
	"encoding/json"
	"time"

	"partnerdesk/models"
)

// PartnerAPI is the slice of the backend the coordinator calls.
// *partner.Client implements it.
type PartnerAPI interface {
	ListAvailable(ctx context.Context) ([]models.Booking, error)
	ListAssigned(ctx context.Context) ([]models.Booking, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	Stats(ctx context.Context) (models.PartnerStats, error)
	Earnings(ctx context.Context, period string) (json.RawMessage, error)
	Accept(ctx context.Context, id string) error
	Reject(ctx context.Context, id, reason string) error
	UpdateStatus(ctx context.Context, id string, status models.BookingStatus, extra map[string]any) error
	UpdateDestination(ctx context.Context, id string, update models.DestinationUpdate) error
}

// PaymentDispatcher hands a completed booking's payment to whatever captures it.
type PaymentDispatcher interface {
	Dispatch(ctx context.Context, req models.PaymentRequest) error
}

// ActionService is what the view layer drives.
type ActionService interface {
	Refresh(ctx context.Context) error
	Accept(ctx context.Context, id string) error
	Reject(ctx context.Context, id, reason string) error
	AdvanceStatus(ctx context.Context, id string, status models.BookingStatus, extra map[string]any) error
	StartService(ctx context.Context, id string, today time.Time) (models.Booking, error)
	FixDestination(ctx context.Context, id string, update models.DestinationUpdate) error
	ReachedLocation(ctx context.Context, id string) error
	CompleteService(ctx context.Context, id string, method models.PaymentMethod) error
	PartnerStats() (models.PartnerStats, bool)
	Earnings(ctx context.Context, period string) (json.RawMessage, error)
}
