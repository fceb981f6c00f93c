// Package events mirrors the payloads published by the booking service.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	RKBookingCreated       = "booking.created"
	RKBookingConfirmed     = "booking.confirmed"
	RKBookingCancelled     = "booking.cancelled"
	RKBookingStatusChanged = "booking.status_changed"

	RKPaymentCreated   = "payment.created"
	RKPaymentPaid      = "payment.paid"
	RKPaymentFailed    = "payment.failed"
	RKPaymentRefunded  = "payment.refunded"
	RKPaymentCancelled = "payment.cancelled"
)

// Envelope is the wrapper every message body arrives in.
type Envelope struct {
	Event      string          `json:"event"`
	Version    int             `json:"version"`
	OccurredAt string          `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type ServiceLine struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Duration int    `json:"duration"`
}

// Details is the denormalized view attached to booking.confirmed.
type Details struct {
	CustomerName  string        `json:"customerName"`
	CustomerPhone string        `json:"customerPhone"`
	SalonName     string        `json:"salonName"`
	SalonPhone    string        `json:"salonPhone"`
	SalonAddress  string        `json:"salonAddress"`
	Date          string        `json:"date"`
	Time          string        `json:"time"`
	TotalDuration int           `json:"totalDuration"`
	Services      []ServiceLine `json:"services"`
}

type Booking struct {
	BookingID       string    `json:"booking_id"`
	CustomerID      string    `json:"customer_id"`
	SalonID         string    `json:"salon_id"`
	StaffID         string    `json:"staff_id,omitempty"`
	Status          string    `json:"status"`
	PreviousStatus  string    `json:"previous_status,omitempty"`
	PaymentStatus   string    `json:"payment_status"`
	TotalPrice      int64     `json:"total_price"`
	DiscountApplied bool      `json:"discount_applied"`
	AppointmentTime time.Time `json:"appointment_time"`
	Details         *Details  `json:"details,omitempty"`
}

type Payment struct {
	PaymentID        string `json:"payment_id"`
	BookingID        string `json:"booking_id"`
	CustomerID       string `json:"customer_id"`
	SalonID          string `json:"salon_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Method           string `json:"method"`
	Status           string `json:"status"`
	GatewayPaymentID string `json:"gateway_payment_id,omitempty"`
	Reason           string `json:"reason,omitempty"`
	RefundAmount     int64  `json:"refund_amount,omitempty"`
}

// Decode unwraps the envelope and decodes its data as T.
func Decode[T any](body []byte) (T, error) {
	var (
		env Envelope
		t   T
	)
	if err := json.Unmarshal(body, &env); err != nil {
		return t, fmt.Errorf("decode envelope: %w", err)
	}
	if len(env.Data) == 0 {
		return t, fmt.Errorf("event %q has no data", env.Event)
	}
	if err := json.Unmarshal(env.Data, &t); err != nil {
		return t, fmt.Errorf("decode payload failed: %w", err)
	}
	return t, nil
}
