package service

import (
	"time"

	"github.com/you/salon-booking/services/booking-service/internal/domain"
)

const (
	EvtBookingCreated       = "booking.created"
	EvtBookingConfirmed     = "booking.confirmed"
	EvtBookingCancelled     = "booking.cancelled"
	EvtBookingStatusChanged = "booking.status_changed"

	EvtPaymentCreated   = "payment.created"
	EvtPaymentPaid      = "payment.paid"
	EvtPaymentFailed    = "payment.failed"
	EvtPaymentRefunded  = "payment.refunded"
	EvtPaymentCancelled = "payment.cancelled"
)

type BookingEvent struct {
	BookingID       string                 `json:"booking_id"`
	CustomerID      string                 `json:"customer_id"`
	SalonID         string                 `json:"salon_id"`
	StaffID         string                 `json:"staff_id,omitempty"`
	Status          string                 `json:"status"`
	PreviousStatus  string                 `json:"previous_status,omitempty"`
	PaymentStatus   string                 `json:"payment_status"`
	TotalPrice      int64                  `json:"total_price"`
	DiscountApplied bool                   `json:"discount_applied"`
	AppointmentTime time.Time              `json:"appointment_time"`
	Details         *domain.BookingDetails `json:"details,omitempty"`
}

func bookingEvent(b *domain.Booking) BookingEvent {
	e := BookingEvent{
		BookingID:       b.ID,
		CustomerID:      b.CustomerID,
		SalonID:         b.SalonID,
		Status:          b.Status,
		PaymentStatus:   b.PaymentStatus,
		TotalPrice:      b.TotalPrice,
		DiscountApplied: b.DiscountApplied,
		AppointmentTime: b.AppointmentTime,
	}
	if b.StaffID != nil {
		e.StaffID = *b.StaffID
	}
	return e
}

type PaymentEvent struct {
	PaymentID        string `json:"payment_id"`
	BookingID        string `json:"booking_id"`
	CustomerID       string `json:"customer_id"`
	SalonID          string `json:"salon_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Method           string `json:"method"`
	Status           string `json:"status"`
	GatewayOrderID   string `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string `json:"gateway_payment_id,omitempty"`
	Reason           string `json:"reason,omitempty"`
	RefundAmount     int64  `json:"refund_amount,omitempty"`
}

func paymentEvent(p *domain.Payment) PaymentEvent {
	return PaymentEvent{
		PaymentID:        p.ID,
		BookingID:        p.BookingID,
		CustomerID:       p.CustomerID,
		SalonID:          p.SalonID,
		Amount:           p.Amount,
		Currency:         p.Currency,
		Method:           p.Method,
		Status:           p.Status,
		GatewayOrderID:   p.GatewayOrderID,
		GatewayPaymentID: p.GatewayPaymentID,
		Reason:           p.FailureReason,
		RefundAmount:     p.RefundAmount,
	}
}
