package domain

import "time"

const (
	PaymentPending    = "pending"
	PaymentProcessing = "processing"
	PaymentCompleted  = "completed"
	PaymentFailed     = "failed"
	PaymentCancelled  = "cancelled"
	PaymentRefunded   = "refunded"
)

var PaymentStatuses = []string{PaymentPending, PaymentProcessing, PaymentCompleted, PaymentFailed, PaymentCancelled, PaymentRefunded}

const (
	MethodGateway    = "gateway"
	MethodPayOnVisit = "pay_on_visit"
)

func IsPaymentMethod(m string) bool { return m == MethodGateway || m == MethodPayOnVisit }

// IsActivePayment reports the states that block a second payment for the same booking.
func IsActivePayment(status string) bool {
	return status == PaymentPending || status == PaymentProcessing || status == PaymentCompleted
}

type Payment struct {
	ID               string        `gorm:"primaryKey" json:"id"`
	BookingID        string        `gorm:"index" json:"bookingId"`
	CustomerID       string        `gorm:"index" json:"customerId"`
	SalonID          string        `gorm:"index" json:"salonId"`
	Services         []ServiceLine `gorm:"serializer:json;type:text" json:"services"`
	Amount           int64         `json:"amount"`
	Currency         string        `json:"currency"`
	Method           string        `json:"method"`
	Status           string        `gorm:"index" json:"status"`
	GatewayOrderID   string        `gorm:"index" json:"gatewayOrderId,omitempty"`
	GatewayPaymentID string        `json:"gatewayPaymentId,omitempty"`
	GatewaySignature string        `json:"-"`
	Receipt          string        `json:"receipt,omitempty"`
	DiscountAmount   int64         `json:"discountAmount"`
	DiscountApplied  bool          `json:"discountApplied"`
	RefundAmount     int64         `json:"refundAmount,omitempty"`
	RefundReason     string        `json:"refundReason,omitempty"`
	RefundID         string        `json:"refundId,omitempty"`
	FailureReason    string        `json:"failureReason,omitempty"`
	CallbackRaw      string        `gorm:"type:text" json:"-"`
	PaidAt           *time.Time    `json:"paidAt,omitempty"`
	FailedAt         *time.Time    `json:"failedAt,omitempty"`
	RefundedAt       *time.Time    `json:"refundedAt,omitempty"`
	CancelledAt      *time.Time    `json:"cancelledAt,omitempty"`
	// ActiveKey equals BookingID while the payment is pending, processing or
	// completed and is cleared otherwise; it carries a unique index.
	ActiveKey *string   `gorm:"uniqueIndex" json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MinorUnits converts whole currency units to the gateway's smallest unit.
func MinorUnits(amount int64) int64 { return amount * 100 }

type StatusSummary struct {
	Count  int64 `json:"count"`
	Amount int64 `json:"amount"`
}

// SalonPaymentReport is a page of payments plus per-status aggregates over all of them.
type SalonPaymentReport struct {
	Payments []Payment               `json:"payments"`
	Total    int64                   `json:"total"`
	Page     int                     `json:"page"`
	PageSize int                     `json:"pageSize"`
	ByStatus map[string]StatusSummary `json:"byStatus"`
	Revenue  int64                   `json:"revenue"`
}

type PaymentPage struct {
	Payments []Payment `json:"payments"`
	Total    int64     `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"pageSize"`
}

// VerifyResult is the outcome of a gateway callback; a bad signature is a
// result with Verified=false, not an error.
type VerifyResult struct {
	Verified bool     `json:"verified"`
	Payment  *Payment `json:"payment"`
	Booking  *Booking `json:"booking,omitempty"`
	Message  string   `json:"message"`
}
