package models

import "time"

// PaymentMethod is how the customer settles once service is completed.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cod"
	PaymentCard PaymentMethod = "card"
	PaymentUPI  PaymentMethod = "upi"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentCard || m == PaymentUPI
}

// --- PaymentRequest & PaymentReceipt ---
type PaymentRequest struct {
	BookingID     string            `json:"bookingId"`
	Amount        float64           `json:"amount"`
	Currency      string            `json:"currency"`
	Method        PaymentMethod     `json:"method"`
	Idempotency   string            `json:"idempotency"`
	Description   string            `json:"description"`
	CustomerName  string            `json:"customerName,omitempty"`
	CustomerEmail string            `json:"customerEmail,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type PaymentReceipt struct {
	ReceiptID string        `json:"receiptId"`
	BookingID string        `json:"bookingId"`
	Amount    float64       `json:"amount"`
	Currency  string        `json:"currency"`
	Method    PaymentMethod `json:"method"`
	Status    string        `json:"status"`
	Reference string        `json:"reference,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}
