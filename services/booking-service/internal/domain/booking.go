package domain

import "time"

const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingCompleted = "completed"
	BookingCancelled = "cancelled"
)

var BookingStatuses = []string{BookingPending, BookingConfirmed, BookingCompleted, BookingCancelled}

const (
	PayStatusPending   = "pending"
	PayStatusCompleted = "completed"
	PayStatusFailed    = "failed"
	PayStatusRefunded  = "refunded"
)

// ServiceLine is a copy of a service taken at booking time.
type ServiceLine struct {
	ServiceID string `json:"serviceId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Duration  int    `json:"duration"` // minutes
}

type Booking struct {
	ID              string        `gorm:"primaryKey" json:"id"`
	CustomerID      string        `gorm:"index" json:"customerId"`
	SalonID         string        `gorm:"index" json:"salonId"`
	StaffID         *string       `gorm:"index" json:"staffId,omitempty"`
	Services        []ServiceLine `gorm:"serializer:json;type:text" json:"services"`
	Subtotal        int64         `json:"subtotal"`
	DiscountAmount  int64         `json:"discountAmount"`
	DiscountApplied bool          `json:"discountApplied"`
	TotalPrice      int64         `json:"totalPrice"`
	AppointmentTime time.Time     `gorm:"index" json:"appointmentTime"`
	Status          string        `gorm:"index" json:"status"`
	PaymentID       *string       `json:"paymentId,omitempty"`
	PaymentStatus   string        `json:"paymentStatus"`
	Notes           string        `json:"notes,omitempty"`
	ScheduleID      *string       `json:"scheduleId,omitempty"`
	SlotIndex       *int          `json:"slotIndex,omitempty"`
	// SlotKey is set while the booking holds its appointment; the unique index
	// makes a second active booking for the same salon/staff/time impossible.
	SlotKey   *string   `gorm:"uniqueIndex" json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func SlotKeyFor(salonID string, staffID *string, at time.Time) string {
	staff := "-"
	if staffID != nil && *staffID != "" {
		staff = *staffID
	}
	return salonID + "|" + staff + "|" + at.UTC().Format(time.RFC3339)
}

func (b *Booking) TotalDuration() int {
	n := 0
	for _, s := range b.Services {
		n += s.Duration
	}
	return n
}

func IsBookingStatus(s string) bool {
	for _, v := range BookingStatuses {
		if v == s {
			return true
		}
	}
	return false
}

var bookingTransitions = map[string][]string{
	BookingPending:   {BookingConfirmed, BookingCancelled},
	BookingConfirmed: {BookingCompleted, BookingCancelled},
}

// CanTransition is the forward-only booking graph; completed and cancelled are terminal.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range bookingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Confirmation is returned alongside a freshly created booking.
type Confirmation struct {
	BookingID       string    `json:"bookingId"`
	TotalPrice      int64     `json:"totalPrice"`
	AppointmentTime time.Time `json:"appointmentTime"`
	DiscountApplied bool      `json:"discountApplied"`
}

// BookingDetails is the denormalized view used for notification templates.
type BookingDetails struct {
	BookingID      string        `json:"bookingId"`
	Status         string        `json:"status"`
	PaymentStatus  string        `json:"paymentStatus"`
	CustomerName   string        `json:"customerName"`
	CustomerPhone  string        `json:"customerPhone"`
	SalonName      string        `json:"salonName"`
	SalonPhone     string        `json:"salonPhone"`
	SalonAddress   string        `json:"salonAddress"`
	Date           string        `json:"date"` // e.g. Saturday, 01 March 2025
	Time           string        `json:"time"` // e.g. 10:00
	TotalDuration  int           `json:"totalDuration"`
	TotalPrice     int64         `json:"totalPrice"`
	Services       []ServiceLine `json:"services"`
	DiscountAmount int64         `json:"discountAmount"`
}

// ReferralDiscount is pct percent of subtotal rounded half up.
func ReferralDiscount(subtotal int64, pct int) int64 {
	if pct <= 0 || subtotal <= 0 {
		return 0
	}
	return (subtotal*int64(pct) + 50) / 100
}

// ApplyDiscount fills the pricing fields from the subtotal and discount.
func (b *Booking) ApplyDiscount(discount int64) {
	b.DiscountAmount = discount
	b.DiscountApplied = discount > 0
	b.TotalPrice = b.Subtotal - discount
}
