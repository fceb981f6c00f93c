package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/you/salon-booking/pkg/auth"
	"github.com/you/salon-booking/pkg/cache"
	"github.com/you/salon-booking/services/booking-service/internal/domain"
	"github.com/you/salon-booking/services/booking-service/internal/repository"
)

// maxRangeDays bounds range queries.
const maxRangeDays = 92

type AvailabilitySvc struct {
	schedules *repository.ScheduleRepo
	dir       *Directory
	cache     *cache.Client
	log       *slog.Logger
}

func NewAvailabilitySvc(schedules *repository.ScheduleRepo, dir *Directory, c *cache.Client, log *slog.Logger) *AvailabilitySvc {
	return &AvailabilitySvc{schedules: schedules, dir: dir, cache: c, log: log}
}

func parseDate(s string) (time.Time, error) {
	d, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return time.Time{}, domain.Invalid("date %q must be YYYY-MM-DD", s)
	}
	return d, nil
}

func parseRange(from, to string) error {
	f, err := parseDate(from)
	if err != nil {
		return err
	}
	t, err := parseDate(to)
	if err != nil {
		return err
	}
	if t.Before(f) {
		return domain.Invalid("range end %s is before start %s", to, from)
	}
	if t.Sub(f) > maxRangeDays*24*time.Hour {
		return domain.Invalid("range is limited to %d days", maxRangeDays)
	}
	return nil
}

// GenerateDaySchedule derives slots from the staff member's working hours
// without persisting anything.
func (s *AvailabilitySvc) GenerateDaySchedule(ctx context.Context, staffID, date string, duration int) ([]domain.Slot, error) {
	d, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	if duration <= 0 {
		return nil, domain.Invalid("slot duration must be positive")
	}
	staff, err := s.dir.Staff(ctx, staffID)
	if err != nil {
		return nil, err
	}
	return domain.BuildSlots(staff.WorkingHours.For(d.Weekday()), duration)
}

// canManage: admins, or the owner of the staff member's salon.
func (s *AvailabilitySvc) canManage(ctx context.Context, p auth.Principal, staff *domain.StaffMember) error {
	if p.IsAdmin() {
		return nil
	}
	if p.IsSalonOwner() {
		salon, err := s.dir.Salon(ctx, staff.SalonID)
		if err != nil {
			return err
		}
		if salon.OwnerID == p.ID {
			return nil
		}
	}
	return domain.Forbidden("only the salon owner can manage this schedule")
}

func (s *AvailabilitySvc) CreateDaySchedule(ctx context.Context, p auth.Principal, staffID, date string, duration int, notes string) (*domain.DaySchedule, error) {
	slots, err := s.GenerateDaySchedule(ctx, staffID, date, duration)
	if err != nil {
		return nil, err
	}
	staff, err := s.dir.Staff(ctx, staffID)
	if err != nil {
		return nil, err
	}
	if err := s.canManage(ctx, p, staff); err != nil {
		return nil, err
	}
	sched := &domain.DaySchedule{
		StaffID:      staffID,
		SalonID:      staff.SalonID,
		Date:         date,
		SlotDuration: duration,
		Notes:        notes,
		Slots:        slots,
	}
	if err := s.schedules.Create(ctx, sched); err != nil {
		return nil, err
	}
	invalidate(ctx, s.cache, cache.ScheduleInvalidation(sched.ID, staffID))
	s.log.Info("[availability] schedule created", "schedule_id", sched.ID, "staff_id", staffID, "date", date, "slots", len(slots))
	return sched, nil
}

func (s *AvailabilitySvc) GetSchedule(ctx context.Context, id string) (*domain.DaySchedule, error) {
	return cache.GetOrLoad(ctx, s.cache, cache.ScheduleKey(id), cache.TTLEntity, func(ctx context.Context) (*domain.DaySchedule, error) {
		return s.schedules.ByID(ctx, id)
	})
}

func (s *AvailabilitySvc) ListSchedules(ctx context.Context, staffID, from, to string) ([]domain.DaySchedule, error) {
	if err := parseRange(from, to); err != nil {
		return nil, err
	}
	return cache.GetOrLoad(ctx, s.cache, cache.StaffSchedulesKey(staffID, from, to), cache.TTLList, func(ctx context.Context) ([]domain.DaySchedule, error) {
		return s.schedules.ListByStaff(ctx, staffID, from, to)
	})
}

// UpdateSchedule changes notes and/or the slot duration. A new duration
// regenerates the slots and is refused while any slot is booked.
func (s *AvailabilitySvc) UpdateSchedule(ctx context.Context, p auth.Principal, id string, duration *int, notes *string) (*domain.DaySchedule, error) {
	cur, err := s.schedules.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	staff, err := s.dir.Staff(ctx, cur.StaffID)
	if err != nil {
		return nil, err
	}
	if err := s.canManage(ctx, p, staff); err != nil {
		return nil, err
	}
	var slots []domain.Slot
	if duration != nil && *duration != cur.SlotDuration {
		slots, err = s.GenerateDaySchedule(ctx, cur.StaffID, cur.Date, *duration)
		if err != nil {
			return nil, err
		}
	} else {
		duration = nil
	}
	out, err := s.schedules.Update(ctx, id, duration, notes, slots)
	if err != nil {
		return nil, err
	}
	invalidate(ctx, s.cache, cache.ScheduleInvalidation(id, cur.StaffID))
	return out, nil
}

func (s *AvailabilitySvc) DeleteSchedule(ctx context.Context, p auth.Principal, id string) error {
	cur, err := s.schedules.ByID(ctx, id)
	if err != nil {
		return err
	}
	staff, err := s.dir.Staff(ctx, cur.StaffID)
	if err != nil {
		return err
	}
	if err := s.canManage(ctx, p, staff); err != nil {
		return err
	}
	if _, err := s.schedules.Delete(ctx, id); err != nil {
		return err
	}
	invalidate(ctx, s.cache, cache.ScheduleInvalidation(id, cur.StaffID))
	s.log.Info("[availability] schedule deleted", "schedule_id", id)
	return nil
}

type BookSlotInput struct {
	ScheduleID string
	Index      int
	CustomerID string
	ServiceID  *string
	Notes      string
}

// BookSlot claims one slot. Exactly one of any number of concurrent callers
// for the same slot succeeds; the rest get an AlreadyBooked conflict.
func (s *AvailabilitySvc) BookSlot(ctx context.Context, in BookSlotInput) (slot *domain.Slot, err error) {
	ctx, span := startSpan(ctx, "availability.BookSlot",
		attribute.String("schedule.id", in.ScheduleID), attribute.Int("slot.index", in.Index))
	defer func() { endSpan(span, err) }()

	if in.CustomerID == "" {
		return nil, domain.Invalid("customer is required")
	}
	sched, err := s.schedules.ByID(ctx, in.ScheduleID)
	if err != nil {
		return nil, err
	}
	if in.Index < 0 || in.Index >= len(sched.Slots) {
		return nil, domain.InvalidIndex(in.Index, len(sched.Slots))
	}
	slot, err = s.schedules.BookSlot(ctx, in.ScheduleID, in.Index, repository.SlotClaim{
		CustomerID: in.CustomerID,
		ServiceID:  in.ServiceID,
		Notes:      in.Notes,
	})
	if err != nil {
		return nil, err
	}
	invalidate(ctx, s.cache, cache.ScheduleInvalidation(in.ScheduleID, sched.StaffID))
	return slot, nil
}

// CancelSlot frees a slot booked directly. The customer holding it, the salon
// owner and admins may cancel. A slot claimed by a booking is released only
// by cancelling that booking.
func (s *AvailabilitySvc) CancelSlot(ctx context.Context, p auth.Principal, scheduleID string, idx int) (*domain.Slot, error) {
	sched, err := s.schedules.ByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(sched.Slots) {
		return nil, domain.InvalidIndex(idx, len(sched.Slots))
	}
	cur := sched.Slots[idx]
	if !cur.Booked {
		return nil, domain.NotBooked()
	}
	holder := cur.BookedBy != nil && *cur.BookedBy == p.ID
	if !holder {
		staff, err := s.dir.Staff(ctx, sched.StaffID)
		if err != nil {
			return nil, err
		}
		if err := s.canManage(ctx, p, staff); err != nil {
			return nil, err
		}
	}
	if cur.BookingRef != nil {
		return nil, domain.Conflict(domain.ErrSlotHeld)
	}
	slot, err := s.schedules.CancelSlot(ctx, scheduleID, idx)
	if err != nil {
		return nil, err
	}
	invalidate(ctx, s.cache, cache.ScheduleInvalidation(scheduleID, sched.StaffID))
	return slot, nil
}

func (s *AvailabilitySvc) ListAvailability(ctx context.Context, staffID, from, to string) ([]domain.AvailabilityDay, error) {
	if err := parseRange(from, to); err != nil {
		return nil, err
	}
	return cache.GetOrLoad(ctx, s.cache, cache.AvailabilityRangeKey(staffID, from, to), cache.TTLAvailability, func(ctx context.Context) ([]domain.AvailabilityDay, error) {
		scheds, err := s.schedules.ListByStaff(ctx, staffID, from, to)
		if err != nil {
			return nil, err
		}
		out := make([]domain.AvailabilityDay, 0, len(scheds))
		for i := range scheds {
			out = append(out, domain.AvailabilityDay{
				Date:           scheds[i].Date,
				ScheduleID:     scheds[i].ID,
				TotalSlots:     len(scheds[i].Slots),
				AvailableSlots: len(scheds[i].Slots) - scheds[i].BookedCount(),
			})
		}
		return out, nil
	})
}

// GetAvailableSlots lists the free slots of the staff member's schedule for
// date; no schedule means nothing is bookable yet.
func (s *AvailabilitySvc) GetAvailableSlots(ctx context.Context, staffID, date string) ([]domain.Slot, error) {
	if _, err := parseDate(date); err != nil {
		return nil, err
	}
	return cache.GetOrLoad(ctx, s.cache, cache.AvailableSlotsKey(staffID, date), cache.TTLAvailability, func(ctx context.Context) ([]domain.Slot, error) {
		sched, err := s.schedules.ByStaffDate(ctx, staffID, date)
		if err != nil {
			var nf *domain.NotFoundError
			if errors.As(err, &nf) {
				return []domain.Slot{}, nil
			}
			return nil, err
		}
		return sched.AvailableSlots(), nil
	})
}

func (s *AvailabilitySvc) BookingStats(ctx context.Context, staffID, from, to string) (domain.SlotStats, error) {
	if err := parseRange(from, to); err != nil {
		return domain.SlotStats{}, err
	}
	return cache.GetOrLoad(ctx, s.cache, cache.SlotStatsKey(staffID, from, to), cache.TTLStats, func(ctx context.Context) (domain.SlotStats, error) {
		scheds, err := s.schedules.ListByStaff(ctx, staffID, from, to)
		if err != nil {
			return domain.SlotStats{}, err
		}
		st := domain.SlotStats{StaffID: staffID, From: from, To: to, Days: len(scheds)}
		for i := range scheds {
			st.TotalSlots += len(scheds[i].Slots)
			st.BookedSlots += scheds[i].BookedCount()
		}
		st.AvailableSlots = st.TotalSlots - st.BookedSlots
		if st.TotalSlots > 0 {
			st.Utilization = math.Round(float64(st.BookedSlots)/float64(st.TotalSlots)*10000) / 100
		}
		return st, nil
	})
}
