package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/you/salon-booking/pkg/db"
	"github.com/you/salon-booking/services/booking-service/internal/domain"
)

type PaymentRepo struct{ db *gorm.DB }

func NewPaymentRepo(db *gorm.DB) *PaymentRepo { return &PaymentRepo{db: db} }

var openPaymentStatuses = []string{domain.PaymentPending, domain.PaymentProcessing}

// Active returns the payment currently blocking new ones for the booking, if any.
func (r *PaymentRepo) Active(ctx context.Context, bookingID string) (*domain.Payment, error) {
	var p domain.Payment
	err := r.db.WithContext(ctx).First(&p, "active_key = ?", bookingID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts the payment and links it on its booking in one transaction.
// A second active payment for the booking violates the unique active key.
func (r *PaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	key := p.BookingID
	p.ActiveKey = &key
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return domain.Conflict(domain.ErrActivePayment)
			}
			return err
		}
		return tx.Model(&domain.Booking{}).Where("id = ?", p.BookingID).Updates(map[string]any{
			"payment_id":     p.ID,
			"payment_status": domain.PayStatusPending,
			"updated_at":     nowUTC(),
		}).Error
	})
}

func (r *PaymentRepo) ByID(ctx context.Context, id string) (*domain.Payment, error) {
	var p domain.Payment
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "payment", id)
	}
	return &p, nil
}

func (r *PaymentRepo) ByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	var p domain.Payment
	if err := r.db.WithContext(ctx).First(&p, "gateway_order_id = ?", orderID).Error; err != nil {
		return nil, notFound(err, "payment", orderID)
	}
	return &p, nil
}

// Callback is what the gateway reported for a payment.
type Callback struct {
	GatewayPaymentID string
	Signature        string
	Raw              string
	Reason           string
}

// Settle completes an open payment and confirms its booking atomically.
// Settling an already completed payment returns it unchanged.
func (r *PaymentRepo) Settle(ctx context.Context, id string, cb Callback) (*domain.Payment, *domain.Booking, error) {
	var (
		p domain.Payment
		b domain.Booking
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := nowUTC()
		res := tx.Model(&domain.Payment{}).
			Where("id = ? AND status IN ?", id, openPaymentStatuses).
			Updates(map[string]any{
				"status":             domain.PaymentCompleted,
				"gateway_payment_id": cb.GatewayPaymentID,
				"gateway_signature":  cb.Signature,
				"callback_raw":       cb.Raw,
				"paid_at":            now,
				"updated_at":         now,
			})
		if res.Error != nil {
			return res.Error
		}
		if err := tx.First(&p, "id = ?", id).Error; err != nil {
			return notFound(err, "payment", id)
		}
		if res.RowsAffected == 0 && p.Status != domain.PaymentCompleted {
			return domain.Invalid("payment is %s and cannot be completed", p.Status)
		}
		if err := tx.Model(&domain.Booking{}).Where("id = ? AND status = ?", p.BookingID, domain.BookingPending).
			Updates(map[string]any{"status": domain.BookingConfirmed, "updated_at": now}).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Booking{}).Where("id = ?", p.BookingID).Updates(map[string]any{
			"payment_id":     p.ID,
			"payment_status": domain.PayStatusCompleted,
		}).Error; err != nil {
			return err
		}
		return tx.First(&b, "id = ?", p.BookingID).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &p, &b, nil
}

// MarkFailed fails an open payment, releasing its active key so the booking
// can be paid again.
func (r *PaymentRepo) MarkFailed(ctx context.Context, id string, cb Callback) (*domain.Payment, error) {
	var p domain.Payment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := nowUTC()
		fields := map[string]any{
			"status":         domain.PaymentFailed,
			"active_key":     nil,
			"callback_raw":   cb.Raw,
			"failure_reason": cb.Reason,
			"failed_at":      now,
			"updated_at":     now,
		}
		if cb.GatewayPaymentID != "" {
			fields["gateway_payment_id"] = cb.GatewayPaymentID
		}
		if cb.Signature != "" {
			fields["gateway_signature"] = cb.Signature
		}
		res := tx.Model(&domain.Payment{}).Where("id = ? AND status IN ?", id, openPaymentStatuses).Updates(fields)
		if res.Error != nil {
			return res.Error
		}
		if err := tx.First(&p, "id = ?", id).Error; err != nil {
			return notFound(err, "payment", id)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return tx.Model(&domain.Booking{}).Where("id = ?", p.BookingID).
			Update("payment_status", domain.PayStatusFailed).Error
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Refund records a completed refund.
func (r *PaymentRepo) Refund(ctx context.Context, id string, amount int64, reason, refundID string) (*domain.Payment, error) {
	var p domain.Payment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := nowUTC()
		res := tx.Model(&domain.Payment{}).Where("id = ? AND status = ?", id, domain.PaymentCompleted).
			Updates(map[string]any{
				"status":        domain.PaymentRefunded,
				"active_key":    nil,
				"refund_amount": amount,
				"refund_reason": reason,
				"refund_id":     refundID,
				"refunded_at":   now,
				"updated_at":    now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.Conflict(domain.ErrStaleState)
		}
		if err := tx.First(&p, "id = ?", id).Error; err != nil {
			return err
		}
		return tx.Model(&domain.Booking{}).Where("id = ?", p.BookingID).
			Update("payment_status", domain.PayStatusRefunded).Error
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Cancel abandons an open payment and unlinks it from its booking.
func (r *PaymentRepo) Cancel(ctx context.Context, id string) (*domain.Payment, error) {
	var p domain.Payment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := nowUTC()
		res := tx.Model(&domain.Payment{}).Where("id = ? AND status IN ?", id, openPaymentStatuses).
			Updates(map[string]any{
				"status":       domain.PaymentCancelled,
				"active_key":   nil,
				"cancelled_at": now,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if err := tx.First(&p, "id = ?", id).Error; err != nil {
			return notFound(err, "payment", id)
		}
		if res.RowsAffected == 0 {
			return domain.Invalid("payment is %s and cannot be cancelled", p.Status)
		}
		return tx.Model(&domain.Booking{}).Where("id = ? AND payment_id = ?", p.BookingID, p.ID).
			Updates(map[string]any{"payment_id": nil, "payment_status": domain.PayStatusPending}).Error
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepo) ListByCustomer(ctx context.Context, customerID string, page, size int) (domain.PaymentPage, error) {
	page, size = Page(page, size)
	out := domain.PaymentPage{Payments: []domain.Payment{}, Page: page, PageSize: size}
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&domain.Payment{}).Where("customer_id = ?", customerID)
	}
	if err := base().Count(&out.Total).Error; err != nil {
		return out, err
	}
	err := base().Order("created_at DESC").Limit(size).Offset((page - 1) * size).Find(&out.Payments).Error
	return out, err
}

type statusRow struct {
	Status string
	Count  int64
	Amount int64
}

// SalonReport pages a salon's payments and aggregates all of them by status.
func (r *PaymentRepo) SalonReport(ctx context.Context, salonID string, page, size int) (domain.SalonPaymentReport, error) {
	page, size = Page(page, size)
	out := domain.SalonPaymentReport{
		Payments: []domain.Payment{},
		Page:     page,
		PageSize: size,
		ByStatus: map[string]domain.StatusSummary{},
	}
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&domain.Payment{}).Where("salon_id = ?", salonID)
	}
	if err := base().Count(&out.Total).Error; err != nil {
		return out, err
	}
	if err := base().Order("created_at DESC").Limit(size).Offset((page - 1) * size).Find(&out.Payments).Error; err != nil {
		return out, err
	}
	var rows []statusRow
	if err := base().Select("status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount").
		Group("status").Scan(&rows).Error; err != nil {
		return out, err
	}
	for _, s := range domain.PaymentStatuses {
		out.ByStatus[s] = domain.StatusSummary{}
	}
	for _, row := range rows {
		out.ByStatus[row.Status] = domain.StatusSummary{Count: row.Count, Amount: row.Amount}
	}
	out.Revenue = out.ByStatus[domain.PaymentCompleted].Amount
	return out, nil
}
