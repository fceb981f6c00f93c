package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/you/salon-booking/pkg/db"
	"github.com/you/salon-booking/services/booking-service/internal/domain"
)

type ScheduleRepo struct{ db *gorm.DB }

func NewScheduleRepo(db *gorm.DB) *ScheduleRepo { return &ScheduleRepo{db: db} }

func orderedSlots(tx *gorm.DB) *gorm.DB { return tx.Order("slot_index ASC") }

// Create persists a schedule with its slots; (staff, date) is unique.
func (r *ScheduleRepo) Create(ctx context.Context, s *domain.DaySchedule) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	for i := range s.Slots {
		s.Slots[i].ScheduleID = s.ID
	}
	err := r.db.WithContext(ctx).Create(s).Error
	if db.IsUniqueViolation(err) {
		return domain.Conflict(domain.ErrScheduleExists)
	}
	return err
}

func (r *ScheduleRepo) ByID(ctx context.Context, id string) (*domain.DaySchedule, error) {
	var s domain.DaySchedule
	err := r.db.WithContext(ctx).Preload("Slots", orderedSlots).First(&s, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "schedule", id)
	}
	return &s, nil
}

func (r *ScheduleRepo) ByStaffDate(ctx context.Context, staffID, date string) (*domain.DaySchedule, error) {
	var s domain.DaySchedule
	err := r.db.WithContext(ctx).Preload("Slots", orderedSlots).
		First(&s, "staff_id = ? AND date = ?", staffID, date).Error
	if err != nil {
		return nil, notFound(err, "schedule", staffID+"/"+date)
	}
	return &s, nil
}

// ListByStaff returns schedules with from <= date <= to, ordered by date.
// Dates are YYYY-MM-DD so string comparison is chronological.
func (r *ScheduleRepo) ListByStaff(ctx context.Context, staffID, from, to string) ([]domain.DaySchedule, error) {
	var out []domain.DaySchedule
	err := r.db.WithContext(ctx).Preload("Slots", orderedSlots).
		Where("staff_id = ? AND date >= ? AND date <= ?", staffID, from, to).
		Order("date ASC").Find(&out).Error
	return out, err
}

// Update changes notes and, when slots is non-nil, replaces the slot set.
// Replacing is refused while any slot is booked.
func (r *ScheduleRepo) Update(ctx context.Context, id string, duration *int, notes *string, slots []domain.Slot) (*domain.DaySchedule, error) {
	var out domain.DaySchedule
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&out, "id = ?", id).Error; err != nil {
			return notFound(err, "schedule", id)
		}
		fields := map[string]any{"updated_at": nowUTC()}
		if notes != nil {
			fields["notes"] = *notes
		}
		if slots != nil {
			if err := refuseIfBooked(tx, id); err != nil {
				return err
			}
			if err := tx.Where("schedule_id = ?", id).Delete(&domain.Slot{}).Error; err != nil {
				return err
			}
			for i := range slots {
				slots[i].ScheduleID = id
			}
			if len(slots) > 0 {
				if err := tx.Create(&slots).Error; err != nil {
					return err
				}
			}
		}
		if duration != nil {
			fields["slot_duration"] = *duration
		}
		if err := tx.Model(&domain.DaySchedule{}).Where("id = ?", id).Updates(fields).Error; err != nil {
			return err
		}
		return tx.Preload("Slots", orderedSlots).First(&out, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a schedule that has no booked slot.
func (r *ScheduleRepo) Delete(ctx context.Context, id string) (*domain.DaySchedule, error) {
	var s domain.DaySchedule
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&s, "id = ?", id).Error; err != nil {
			return notFound(err, "schedule", id)
		}
		if err := refuseIfBooked(tx, id); err != nil {
			return err
		}
		if err := tx.Where("schedule_id = ?", id).Delete(&domain.Slot{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.DaySchedule{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func refuseIfBooked(tx *gorm.DB, scheduleID string) error {
	var n int64
	if err := tx.Model(&domain.Slot{}).Where("schedule_id = ? AND booked = ?", scheduleID, true).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return domain.Conflict(domain.ErrScheduleHasBookings)
	}
	return nil
}

// SlotClaim is what gets written onto a slot when it is booked.
type SlotClaim struct {
	CustomerID string
	BookingRef *string
	ServiceID  *string
	Notes      string
}

// BookSlot flips booked false->true with one conditional update.
func (r *ScheduleRepo) BookSlot(ctx context.Context, scheduleID string, idx int, c SlotClaim) (*domain.Slot, error) {
	var slot domain.Slot
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := claimSlot(tx, scheduleID, idx, c); err != nil {
			return err
		}
		return tx.First(&slot, "schedule_id = ? AND slot_index = ?", scheduleID, idx).Error
	})
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (r *ScheduleRepo) CancelSlot(ctx context.Context, scheduleID string, idx int) (*domain.Slot, error) {
	var slot domain.Slot
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := releaseSlot(tx, scheduleID, idx, nil); err != nil {
			return err
		}
		return tx.First(&slot, "schedule_id = ? AND slot_index = ?", scheduleID, idx).Error
	})
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func claimSlot(tx *gorm.DB, scheduleID string, idx int, c SlotClaim) error {
	res := tx.Model(&domain.Slot{}).
		Where("schedule_id = ? AND slot_index = ? AND booked = ?", scheduleID, idx, false).
		Updates(map[string]any{
			"booked":      true,
			"booked_by":   c.CustomerID,
			"booking_ref": c.BookingRef,
			"service_id":  c.ServiceID,
			"notes":       c.Notes,
			"booked_at":   nowUTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("claim slot: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	return explainSlotMiss(tx, scheduleID, idx, domain.AlreadyBooked())
}

// releaseSlot clears a booked slot. With bookingRef set only that booking's
// claim is released; without it only a claim no booking holds.
func releaseSlot(tx *gorm.DB, scheduleID string, idx int, bookingRef *string) error {
	q := tx.Model(&domain.Slot{}).Where("schedule_id = ? AND slot_index = ? AND booked = ?", scheduleID, idx, true)
	if bookingRef != nil {
		q = q.Where("booking_ref = ?", *bookingRef)
	} else {
		q = q.Where("booking_ref IS NULL")
	}
	res := q.Updates(map[string]any{
		"booked":      false,
		"booked_by":   nil,
		"booking_ref": nil,
		"service_id":  nil,
		"notes":       "",
		"booked_at":   nil,
	})
	if res.Error != nil {
		return fmt.Errorf("release slot: %w", res.Error)
	}
	if res.RowsAffected == 1 || bookingRef != nil {
		return nil
	}
	var held int64
	err := tx.Model(&domain.Slot{}).
		Where("schedule_id = ? AND slot_index = ? AND booked = ? AND booking_ref IS NOT NULL", scheduleID, idx, true).
		Count(&held).Error
	if err != nil {
		return err
	}
	if held > 0 {
		return domain.Conflict(domain.ErrSlotHeld)
	}
	return explainSlotMiss(tx, scheduleID, idx, domain.NotBooked())
}

// explainSlotMiss turns a zero-row conditional update into the precise error.
func explainSlotMiss(tx *gorm.DB, scheduleID string, idx int, stateErr error) error {
	var sched int64
	if err := tx.Model(&domain.DaySchedule{}).Where("id = ?", scheduleID).Count(&sched).Error; err != nil {
		return err
	}
	if sched == 0 {
		return domain.NotFound("schedule", scheduleID)
	}
	var n int64
	if err := tx.Model(&domain.Slot{}).Where("schedule_id = ?", scheduleID).Count(&n).Error; err != nil {
		return err
	}
	if idx < 0 || int64(idx) >= n {
		return domain.InvalidIndex(idx, int(n))
	}
	return stateErr
}
