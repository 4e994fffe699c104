package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BookingStatus is the lifecycle state reported by the backend.
type BookingStatus string

const (
	StatusPending    BookingStatus = "pending"
	StatusAccepted   BookingStatus = "accepted"
	StatusOnTheWay   BookingStatus = "on_the_way"
	StatusInProgress BookingStatus = "in_progress"
	StatusCompleted  BookingStatus = "completed"
	StatusCancelled  BookingStatus = "cancelled"
	StatusRejected   BookingStatus = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusOnTheWay, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// IsActive is true for statuses that belong in the partner's active bucket.
func (s BookingStatus) IsActive() bool {
	return s == StatusAccepted || s == StatusOnTheWay || s == StatusInProgress
}

// IsTerminal is true once the service has been completed.
func (s BookingStatus) IsTerminal() bool {
	return s == StatusCompleted
}

// IsWithdrawn is true when the booking left service without completing.
func (s BookingStatus) IsWithdrawn() bool {
	return s == StatusCancelled || s == StatusRejected
}

// Coordinates is a WGS84 point. The backend sends numbers or numeric strings.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c *Coordinates) UnmarshalJSON(data []byte) error {
	var raw struct {
		Lat json.RawMessage `json:"lat"`
		Lng json.RawMessage `json:"lng"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	lat, err := looseFloat(raw.Lat)
	if err != nil {
		return fmt.Errorf("lat: %w", err)
	}
	lng, err := looseFloat(raw.Lng)
	if err != nil {
		return fmt.Errorf("lng: %w", err)
	}
	c.Lat, c.Lng = lat, lng
	return nil
}

// Address is a customer address; Coordinates may be missing until the partner pins it.
type Address struct {
	AddressLine  string       `json:"addressLine,omitempty"`
	AddressLine1 string       `json:"addressLine1,omitempty"`
	City         string       `json:"city,omitempty"`
	PinCode      string       `json:"pinCode,omitempty"`
	Coordinates  *Coordinates `json:"coordinates,omitempty"`
}

// UnmarshalJSON never fails: a bare string becomes AddressLine, fields of
// an unexpected type are left empty and unreadable coordinates are dropped.
func (a *Address) UnmarshalJSON(data []byte) error {
	*a = Address{}
	var line string
	if json.Unmarshal(data, &line) == nil {
		a.AddressLine = line
		return nil
	}
	var raw struct {
		AddressLine  json.RawMessage `json:"addressLine"`
		AddressLine1 json.RawMessage `json:"addressLine1"`
		City         json.RawMessage `json:"city"`
		PinCode      json.RawMessage `json:"pinCode"`
		Coordinates  json.RawMessage `json:"coordinates"`
	}
	if json.Unmarshal(data, &raw) != nil {
		return nil
	}
	a.AddressLine = looseString(raw.AddressLine)
	a.AddressLine1 = looseString(raw.AddressLine1)
	a.City = looseString(raw.City)
	a.PinCode = looseString(raw.PinCode)
	a.Coordinates = decodePoint(raw.Coordinates)
	return nil
}

func (a *Address) clone() *Address {
	if a == nil {
		return nil
	}
	c := *a
	if a.Coordinates != nil {
		pt := *a.Coordinates
		c.Coordinates = &pt
	}
	return &c
}

// Customer is the decoded view of the opaque customer object.
type Customer struct {
	Name        string       `json:"name,omitempty"`
	Email       string       `json:"email,omitempty"`
	Phone       string       `json:"phone,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// Booking is a service request as seen by the partner. Customer contact and
// pricing are carried as received and only read on demand.
type Booking struct {
	ID            string          `json:"_id"`
	Status        BookingStatus   `json:"status"`
	Title         string          `json:"title,omitempty"`
	ScheduledDate *Date           `json:"scheduledDate,omitempty"`
	CustomAddress *Address        `json:"customAddress,omitempty"`
	Address       *Address        `json:"address,omitempty"`
	Customer      json.RawMessage `json:"customer,omitempty"`
	CustomerName  json.RawMessage `json:"customerName,omitempty"`
	CustomerPhone json.RawMessage `json:"customerPhone,omitempty"`
	Pricing       json.RawMessage `json:"pricing,omitempty"`
	Service       json.RawMessage `json:"service,omitempty"`
	Category      json.RawMessage `json:"category,omitempty"`
}

// Clone returns a copy of b that shares no memory with it.
func (b Booking) Clone() Booking {
	out := b
	if b.ScheduledDate != nil {
		d := *b.ScheduledDate
		out.ScheduledDate = &d
	}
	out.CustomAddress = b.CustomAddress.clone()
	out.Address = b.Address.clone()
	out.Customer = cloneRaw(b.Customer)
	out.CustomerName = cloneRaw(b.CustomerName)
	out.CustomerPhone = cloneRaw(b.CustomerPhone)
	out.Pricing = cloneRaw(b.Pricing)
	out.Service = cloneRaw(b.Service)
	out.Category = cloneRaw(b.Category)
	return out
}

// CustomerInfo decodes the customer object. Fields it cannot read are left empty.
func (b Booking) CustomerInfo() Customer {
	var raw struct {
		Name        json.RawMessage `json:"name"`
		Email       json.RawMessage `json:"email"`
		Phone       json.RawMessage `json:"phone"`
		Coordinates json.RawMessage `json:"coordinates"`
	}
	if len(b.Customer) == 0 || json.Unmarshal(b.Customer, &raw) != nil {
		return Customer{}
	}
	return Customer{
		Name:        looseString(raw.Name),
		Email:       looseString(raw.Email),
		Phone:       looseString(raw.Phone),
		Coordinates: decodePoint(raw.Coordinates),
	}
}

// Destination resolves where the partner has to travel: the pinned custom
// address first, then the saved address, then the customer's profile point.
func (b Booking) Destination() (Coordinates, bool) {
	if b.CustomAddress != nil && b.CustomAddress.Coordinates != nil {
		return *b.CustomAddress.Coordinates, true
	}
	if b.Address != nil && b.Address.Coordinates != nil {
		return *b.Address.Coordinates, true
	}
	if pt := b.CustomerInfo().Coordinates; pt != nil {
		return *pt, true
	}
	return Coordinates{}, false
}

// DisplayAddress is the best human readable address available.
func (b Booking) DisplayAddress() string {
	for _, a := range []*Address{b.CustomAddress, b.Address} {
		if a == nil {
			continue
		}
		line := a.AddressLine1
		if line == "" {
			line = a.AddressLine
		}
		if line == "" {
			continue
		}
		if a.City != "" {
			return line + ", " + a.City
		}
		return line
	}
	return ""
}

// StartableOn reports whether service may begin on day. Only the calendar
// date matters; a booking without a readable scheduled date can start any time.
func (b Booking) StartableOn(day time.Time) bool {
	if b.ScheduledDate == nil || b.ScheduledDate.IsZero() {
		return true
	}
	return !b.ScheduledDate.In(day.Location()).After(truncateToDate(day))
}

// TotalAmount reads pricing.totalAmount, falling back to pricing.amount.
func (b Booking) TotalAmount() float64 {
	var p struct {
		TotalAmount json.RawMessage `json:"totalAmount"`
		Amount      json.RawMessage `json:"amount"`
	}
	if len(b.Pricing) == 0 || json.Unmarshal(b.Pricing, &p) != nil {
		return 0
	}
	for _, raw := range []json.RawMessage{p.TotalAmount, p.Amount} {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		if v, err := looseFloat(raw); err == nil {
			return v
		}
	}
	return 0
}

// ContactName picks the customer name from whichever field the backend filled.
func (b Booking) ContactName() string {
	if name := b.CustomerInfo().Name; name != "" {
		return name
	}
	return looseString(b.CustomerName)
}

// ContactPhone picks the customer phone from whichever field the backend filled.
func (b Booking) ContactPhone() string {
	if phone := b.CustomerInfo().Phone; phone != "" {
		return phone
	}
	return looseString(b.CustomerPhone)
}

// Date accepts both a bare calendar date and a full RFC 3339 timestamp.
type Date struct {
	time.Time
	dateOnly bool
}

// CalendarDate builds a bare calendar date.
func CalendarDate(year int, month time.Month, day int) *Date {
	return &Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), dateOnly: true}
}

// In returns midnight of the scheduled calendar day in loc. A bare date keeps
// its calendar day; a timestamp is converted to loc first.
func (d Date) In(loc *time.Location) time.Time {
	if d.dateOnly {
		y, m, day := d.Time.Date()
		return time.Date(y, m, day, 0, 0, 0, 0, loc)
	}
	return truncateToDate(d.Time.In(loc))
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// UnmarshalJSON leaves d zero for anything it cannot parse.
func (d *Date) UnmarshalJSON(data []byte) error {
	*d = Date{}
	var raw string
	if json.Unmarshal(data, &raw) != nil || raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			d.Time = t
			d.dateOnly = layout == "2006-01-02"
			return nil
		}
	}
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.dateOnly {
		return json.Marshal(d.Time.Format("2006-01-02"))
	}
	return json.Marshal(d.Time.Format(time.RFC3339))
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DestinationUpdate is the body of the manual "fix location" call.
type DestinationUpdate struct {
	Address     string      `json:"address"`
	Coordinates Coordinates `json:"coordinates"`
	City        string      `json:"city"`
	PinCode     string      `json:"pinCode"`
}

// looseString reads a JSON string or number as text; anything else is "".
func looseString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

// looseFloat reads a JSON number or numeric string. Missing and null are zero.
func looseFloat(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("not a number: %s", raw)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// decodePoint returns nil for missing, null or unreadable coordinates.
func decodePoint(raw json.RawMessage) *Coordinates {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var pt Coordinates
	if json.Unmarshal(raw, &pt) != nil {
		return nil
	}
	return &pt
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage{}, raw...)
}
