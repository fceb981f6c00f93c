package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/you/salon-booking/pkg/db"
	"github.com/you/salon-booking/services/booking-service/internal/domain"
)

type BookingRepo struct{ db *gorm.DB }

func NewBookingRepo(db *gorm.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

// Pricing is the referral rule applied while the booking is inserted.
type Pricing struct {
	DiscountPercent int
	RewardPoints    int
}

// SlotRef points at a schedule slot the booking should hold.
type SlotRef struct {
	ScheduleID string
	Index      int
	ServiceID  *string
}

func (r *BookingRepo) Exists(ctx context.Context, id string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Booking{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

// Create inserts b in one transaction with the referral discount decision,
// the referrer's reward and the optional slot claim. The discount flag is
// flipped with a conditional update so concurrent first bookings cannot both
// receive it; the unique slot key rejects a second booking of the same time.
func (r *BookingRepo) Create(ctx context.Context, b *domain.Booking, p Pricing, slot *SlotRef) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b.ApplyDiscount(0)
		if p.DiscountPercent > 0 {
			res := tx.Model(&domain.Customer{}).
				Where("id = ? AND referred_by IS NOT NULL AND referred_by <> '' AND first_booking_discount_used = ?", b.CustomerID, false).
				Update("first_booking_discount_used", true)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				b.ApplyDiscount(domain.ReferralDiscount(b.Subtotal, p.DiscountPercent))
				if err := creditReferrer(tx, b.CustomerID, p.RewardPoints); err != nil {
					return err
				}
			}
		}

		if slot != nil {
			err := claimSlot(tx, slot.ScheduleID, slot.Index, SlotClaim{
				CustomerID: b.CustomerID,
				BookingRef: &b.ID,
				ServiceID:  slot.ServiceID,
				Notes:      b.Notes,
			})
			if errors.Is(err, domain.ErrAlreadyBooked) {
				return domain.Conflict(domain.ErrSlotTaken)
			}
			if err != nil {
				return err
			}
			idx := slot.Index
			b.ScheduleID, b.SlotIndex = &slot.ScheduleID, &idx
		}

		key := domain.SlotKeyFor(b.SalonID, b.StaffID, b.AppointmentTime)
		b.SlotKey = &key
		if err := tx.Create(b).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return domain.Conflict(domain.ErrSlotTaken)
			}
			return err
		}
		return nil
	})
}

func creditReferrer(tx *gorm.DB, customerID string, points int) error {
	if points <= 0 {
		return nil
	}
	var c domain.Customer
	if err := tx.Select("id", "referred_by").First(&c, "id = ?", customerID).Error; err != nil {
		return err
	}
	if c.ReferredBy == nil || *c.ReferredBy == "" {
		return nil
	}
	return tx.Model(&domain.Customer{}).Where("id = ?", *c.ReferredBy).
		UpdateColumn("reward_points", gorm.Expr("reward_points + ?", points)).Error
}

func (r *BookingRepo) ByID(ctx context.Context, id string) (*domain.Booking, error) {
	var b domain.Booking
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "booking", id)
	}
	return &b, nil
}

// UpdateStatus moves a booking along the status graph. It reports whether
// anything changed; cancelling frees the appointment and any held slot.
func (r *BookingRepo) UpdateStatus(ctx context.Context, id, to string) (*domain.Booking, bool, error) {
	var b domain.Booking
	changed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&b, "id = ?", id).Error; err != nil {
			return notFound(err, "booking", id)
		}
		if b.Status == to {
			return nil
		}
		if !domain.CanTransition(b.Status, to) {
			return domain.Invalid("cannot change booking from %s to %s", b.Status, to)
		}
		fields := map[string]any{"status": to, "updated_at": nowUTC()}
		if to == domain.BookingCancelled {
			fields["slot_key"] = nil
		}
		res := tx.Model(&domain.Booking{}).Where("id = ? AND status = ?", id, b.Status).Updates(fields)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.Conflict(domain.ErrStaleState)
		}
		if to == domain.BookingCancelled && b.ScheduleID != nil && b.SlotIndex != nil {
			if err := releaseSlot(tx, *b.ScheduleID, *b.SlotIndex, &b.ID); err != nil {
				return err
			}
		}
		changed = true
		return tx.First(&b, "id = ?", id).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &b, changed, nil
}

func (r *BookingRepo) ListByCustomer(ctx context.Context, customerID string) ([]domain.Booking, error) {
	out := []domain.Booking{}
	err := r.db.WithContext(ctx).Where("customer_id = ?", customerID).
		Order("appointment_time DESC").Find(&out).Error
	return out, err
}

// ListBySalon filters by status unless status is empty or "all".
func (r *BookingRepo) ListBySalon(ctx context.Context, salonID, status string) ([]domain.Booking, error) {
	out := []domain.Booking{}
	q := r.db.WithContext(ctx).Where("salon_id = ?", salonID)
	if status != "" && status != "all" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("appointment_time ASC").Find(&out).Error
	return out, err
}

func (r *BookingRepo) ListAll(ctx context.Context) ([]domain.Booking, error) {
	out := []domain.Booking{}
	err := r.db.WithContext(ctx).Order("appointment_time DESC").Limit(500).Find(&out).Error
	return out, err
}
