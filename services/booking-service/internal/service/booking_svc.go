package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/you/salon-booking/pkg/auth"
	"github.com/you/salon-booking/pkg/cache"
	"github.com/you/salon-booking/pkg/mq"
	"github.com/you/salon-booking/services/booking-service/internal/domain"
	"github.com/you/salon-booking/services/booking-service/internal/repository"
)

const bookingIDAttempts = 5

type BookingSvc struct {
	repo      *repository.BookingRepo
	schedules *repository.ScheduleRepo
	dir       *Directory
	cache     *cache.Client
	events    emitter
	log       *slog.Logger
	pricing   repository.Pricing
	now       Clock
}

func NewBookingSvc(
	repo *repository.BookingRepo,
	schedules *repository.ScheduleRepo,
	dir *Directory,
	c *cache.Client,
	pub mq.EventPublisher,
	pricing repository.Pricing,
	log *slog.Logger,
) *BookingSvc {
	return &BookingSvc{
		repo:      repo,
		schedules: schedules,
		dir:       dir,
		cache:     c,
		events:    newEmitter(pub, log),
		log:       log,
		pricing:   pricing,
		now:       systemClock,
	}
}

// WithClock replaces the time source.
func (s *BookingSvc) WithClock(c Clock) *BookingSvc {
	s.now = c
	return s
}

type CreateBookingInput struct {
	// CustomerID is only read for admins booking on a customer's behalf.
	CustomerID      string
	SalonID         string
	StaffID         *string
	// ServiceIDs are priced from the salon's catalogue, never by the caller.
	ServiceIDs      []string
	AppointmentTime time.Time
	Notes           string
}

func (s *BookingSvc) newBookingID(ctx context.Context) (string, error) {
	for i := 0; i < bookingIDAttempts; i++ {
		id := fmt.Sprintf("BK%d%03d", s.now().UnixMilli(), rand.Intn(1000))
		taken, err := s.repo.Exists(ctx, id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not allocate a booking id after %d attempts", bookingIDAttempts)
}

func (s *BookingSvc) customerFor(p auth.Principal, in CreateBookingInput) (string, error) {
	switch {
	case p.IsCustomer():
		return p.ID, nil
	case p.IsAdmin():
		if in.CustomerID == "" {
			return "", domain.Invalid("customerId is required when booking on behalf of a customer")
		}
		return in.CustomerID, nil
	default:
		return "", domain.Forbidden("only customers can create bookings")
	}
}

// CreateBooking prices and stores a booking. The referral discount is
// decided inside the insert transaction, so it is granted at most once per
// customer no matter how many bookings race.
func (s *BookingSvc) CreateBooking(ctx context.Context, p auth.Principal, in CreateBookingInput) (b *domain.Booking, conf domain.Confirmation, err error) {
	ctx, span := startSpan(ctx, "booking.Create", attribute.String("salon.id", in.SalonID))
	defer func() { endSpan(span, err) }()

	customerID, err := s.customerFor(p, in)
	if err != nil {
		return nil, conf, err
	}
	if in.SalonID == "" {
		return nil, conf, domain.Invalid("salonId is required")
	}
	if len(in.ServiceIDs) == 0 {
		return nil, conf, domain.Invalid("at least one service is required")
	}
	at := in.AppointmentTime.UTC()
	if at.Before(s.now()) {
		return nil, conf, domain.Invalid("appointment time must not be in the past")
	}

	customer, err := s.dir.Customer(ctx, customerID)
	if err != nil {
		return nil, conf, err
	}
	if _, err := s.dir.Salon(ctx, in.SalonID); err != nil {
		return nil, conf, err
	}
	lines, err := s.dir.ServiceLines(ctx, in.SalonID, in.ServiceIDs)
	if err != nil {
		return nil, conf, err
	}
	var subtotal int64
	for _, line := range lines {
		subtotal += line.Price
	}
	if in.StaffID != nil && *in.StaffID == "" {
		in.StaffID = nil
	}
	var slot *repository.SlotRef
	if in.StaffID != nil {
		staff, err := s.dir.Staff(ctx, *in.StaffID)
		if err != nil {
			return nil, conf, err
		}
		if staff.SalonID != in.SalonID {
			return nil, conf, domain.Invalid("staff member does not work at this salon")
		}
		if !staff.Active {
			return nil, conf, domain.Invalid("staff member is not taking bookings")
		}
		slot, err = s.slotFor(ctx, *in.StaffID, at, lines)
		if err != nil {
			return nil, conf, err
		}
	}

	for attempt := 1; ; attempt++ {
		id, err := s.newBookingID(ctx)
		if err != nil {
			return nil, conf, err
		}
		b = &domain.Booking{
			ID:              id,
			CustomerID:      customerID,
			SalonID:         in.SalonID,
			StaffID:         in.StaffID,
			Services:        lines,
			Subtotal:        subtotal,
			AppointmentTime: at,
			Status:          domain.BookingPending,
			PaymentStatus:   domain.PayStatusPending,
			Notes:           in.Notes,
		}
		err = s.repo.Create(ctx, b, s.pricing, slot)
		if err == nil {
			break
		}
		// A concurrent insert may have taken the id between the check and the insert.
		if errors.Is(err, domain.ErrSlotTaken) && attempt < bookingIDAttempts {
			if taken, _ := s.repo.Exists(ctx, id); taken {
				continue
			}
		}
		return nil, conf, err
	}

	invs := []cache.Invalidation{cache.BookingInvalidation(b.ID, b.CustomerID, b.SalonID)}
	if slot != nil {
		invs = append(invs, cache.ScheduleInvalidation(slot.ScheduleID, *in.StaffID))
	}
	if b.DiscountApplied && customer.ReferredBy != nil {
		invs = append(invs, cache.Invalidation{Keys: []string{cache.CustomerKey(*customer.ReferredBy)}})
	}
	invalidate(ctx, s.cache, invs...)

	s.log.Info("[booking] created", "booking_id", b.ID, "customer_id", b.CustomerID, "total", b.TotalPrice, "discount", b.DiscountAmount)
	s.events.emit(ctx, EvtBookingCreated, bookingEvent(b))

	conf = domain.Confirmation{
		BookingID:       b.ID,
		TotalPrice:      b.TotalPrice,
		AppointmentTime: b.AppointmentTime,
		DiscountApplied: b.DiscountApplied,
	}
	return b, conf, nil
}

// slotFor finds the published slot starting at the appointment time, if the
// staff member has a schedule for that day.
func (s *BookingSvc) slotFor(ctx context.Context, staffID string, at time.Time, lines []domain.ServiceLine) (*repository.SlotRef, error) {
	sched, err := s.schedules.ByStaffDate(ctx, staffID, at.Format(domain.DateLayout))
	var nf *domain.NotFoundError
	if errors.As(err, &nf) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sl, ok := sched.SlotStartingAt(at.Format("15:04"))
	if !ok {
		return nil, nil
	}
	if sl.Booked {
		return nil, domain.Conflict(domain.ErrSlotTaken)
	}
	ref := &repository.SlotRef{ScheduleID: sched.ID, Index: sl.Index}
	if len(lines) > 0 && lines[0].ServiceID != "" {
		sid := lines[0].ServiceID
		ref.ServiceID = &sid
	}
	return ref, nil
}

// canView: admins, the booking's customer, or the owner of its salon.
func (s *BookingSvc) canView(ctx context.Context, p auth.Principal, b *domain.Booking) error {
	if p.Owns(b.CustomerID) {
		return nil
	}
	if p.IsSalonOwner() {
		ok, err := s.dir.OwnsSalon(ctx, b.SalonID, p.ID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return domain.Forbidden("not allowed to view this booking")
}

func (s *BookingSvc) load(ctx context.Context, id string) (*domain.Booking, error) {
	return cache.GetOrLoad(ctx, s.cache, cache.BookingKey(id), cache.TTLEntity, func(ctx context.Context) (*domain.Booking, error) {
		return s.repo.ByID(ctx, id)
	})
}

func (s *BookingSvc) GetBooking(ctx context.Context, p auth.Principal, id string) (*domain.Booking, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canView(ctx, p, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *BookingSvc) ListBookingsForCustomer(ctx context.Context, p auth.Principal, customerID string) ([]domain.Booking, error) {
	if !p.Owns(customerID) {
		return nil, domain.Forbidden("not allowed to list these bookings")
	}
	return cache.GetOrLoad(ctx, s.cache, cache.CustomerBookingsKey(customerID), cache.TTLList, func(ctx context.Context) ([]domain.Booking, error) {
		return s.repo.ListByCustomer(ctx, customerID)
	})
}

// ListAllBookings is the admin-wide listing.
func (s *BookingSvc) ListAllBookings(ctx context.Context, p auth.Principal) ([]domain.Booking, error) {
	if !p.IsAdmin() {
		return nil, domain.Forbidden("admin only")
	}
	return cache.GetOrLoad(ctx, s.cache, cache.AllBookingsKey(), cache.TTLList, func(ctx context.Context) ([]domain.Booking, error) {
		return s.repo.ListAll(ctx)
	})
}

func (s *BookingSvc) ListBookingsForSalon(ctx context.Context, p auth.Principal, salonID, status string) ([]domain.Booking, error) {
	status = strings.ToLower(status)
	if status != "" && status != "all" && !domain.IsBookingStatus(status) {
		return nil, domain.Invalid("unknown booking status %q", status)
	}
	if !p.IsAdmin() {
		if !p.IsSalonOwner() {
			return nil, domain.Forbidden("only the salon owner can list its bookings")
		}
		ok, err := s.dir.OwnsSalon(ctx, salonID, p.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.Forbidden("only the salon owner can list its bookings")
		}
	}
	return cache.GetOrLoad(ctx, s.cache, cache.SalonBookingsKey(salonID, status), cache.TTLList, func(ctx context.Context) ([]domain.Booking, error) {
		return s.repo.ListBySalon(ctx, salonID, status)
	})
}

// UpdateStatus applies an admin status change along the forward-only graph.
func (s *BookingSvc) UpdateStatus(ctx context.Context, p auth.Principal, id, status string) (b *domain.Booking, err error) {
	ctx, span := startSpan(ctx, "booking.UpdateStatus", attribute.String("booking.id", id), attribute.String("status", status))
	defer func() { endSpan(span, err) }()

	if !p.IsAdmin() {
		return nil, domain.Forbidden("admin only")
	}
	status = strings.ToLower(status)
	if !domain.IsBookingStatus(status) {
		return nil, domain.Invalid("unknown booking status %q", status)
	}
	before, err := s.repo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	b, changed, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	if !changed {
		return b, nil
	}
	invs := []cache.Invalidation{cache.BookingInvalidation(b.ID, b.CustomerID, b.SalonID)}
	if before.ScheduleID != nil && b.StaffID != nil && status == domain.BookingCancelled {
		invs = append(invs, cache.ScheduleInvalidation(*before.ScheduleID, *b.StaffID))
	}
	invalidate(ctx, s.cache, invs...)

	s.log.Info("[booking] status changed", "booking_id", b.ID, "from", before.Status, "to", b.Status)
	evt := bookingEvent(b)
	evt.PreviousStatus = before.Status
	s.events.emit(ctx, EvtBookingStatusChanged, evt)
	switch status {
	case domain.BookingConfirmed:
		s.emitConfirmed(ctx, b)
	case domain.BookingCancelled:
		s.events.emit(ctx, EvtBookingCancelled, evt)
	}
	return b, nil
}

// emitConfirmed attaches the details projection for notification templates.
func (s *BookingSvc) emitConfirmed(ctx context.Context, b *domain.Booking) {
	evt := bookingEvent(b)
	if d, err := s.project(ctx, b); err == nil {
		evt.Details = &d
	} else {
		s.log.Warn("[booking] details projection failed", "booking_id", b.ID, "err", err)
	}
	s.events.emit(ctx, EvtBookingConfirmed, evt)
}

func (s *BookingSvc) GetBookingDetails(ctx context.Context, p auth.Principal, id string) (domain.BookingDetails, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return domain.BookingDetails{}, err
	}
	if err := s.canView(ctx, p, b); err != nil {
		return domain.BookingDetails{}, err
	}
	return cache.GetOrLoad(ctx, s.cache, cache.BookingDetailsKey(id), cache.TTLEntity, func(ctx context.Context) (domain.BookingDetails, error) {
		return s.project(ctx, b)
	})
}

func (s *BookingSvc) project(ctx context.Context, b *domain.Booking) (domain.BookingDetails, error) {
	c, err := s.dir.Customer(ctx, b.CustomerID)
	if err != nil {
		return domain.BookingDetails{}, err
	}
	salon, err := s.dir.Salon(ctx, b.SalonID)
	if err != nil {
		return domain.BookingDetails{}, err
	}
	return domain.BookingDetails{
		BookingID:      b.ID,
		Status:         b.Status,
		PaymentStatus:  b.PaymentStatus,
		CustomerName:   c.Name,
		CustomerPhone:  c.Phone,
		SalonName:      salon.Name,
		SalonPhone:     salon.Phone,
		SalonAddress:   salon.Address,
		Date:           b.AppointmentTime.Format("Monday, 02 January 2006"),
		Time:           b.AppointmentTime.Format("15:04"),
		TotalDuration:  b.TotalDuration(),
		TotalPrice:     b.TotalPrice,
		Services:       b.Services,
		DiscountAmount: b.DiscountAmount,
	}, nil
}
