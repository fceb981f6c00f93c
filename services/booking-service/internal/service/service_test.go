package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/you/salon-booking/pkg/auth"
	"github.com/you/salon-booking/pkg/cache"
	"github.com/you/salon-booking/pkg/logger"
	"github.com/you/salon-booking/pkg/mq"
	"github.com/you/salon-booking/services/booking-service/internal/domain"
	"github.com/you/salon-booking/services/booking-service/internal/gateway"
	"github.com/you/salon-booking/services/booking-service/internal/repository"
	"github.com/you/salon-booking/services/booking-service/internal/testutil"
)

const testSecret = "test-secret"

var (
	alice    = auth.Customer(testutil.Alice)
	bob      = auth.Customer(testutil.Bob)
	carol    = auth.Customer(testutil.Carol)
	owner    = auth.SalonOwner(testutil.OwnerID)
	stranger = auth.SalonOwner(testutil.Stranger)
	admin    = auth.Admin("admin-1")
)

// at is a time on the seeded Saturday.
func at(hhmm string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", "2025-03-01 "+hhmm)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

// tickingClock starts at testutil.Now and advances a millisecond per read,
// so generated booking ids never repeat.
func tickingClock() Clock {
	var n atomic.Int64
	return func() time.Time {
		return testutil.Now.Add(time.Duration(n.Add(1)) * time.Millisecond)
	}
}

type fixture struct {
	db       *gorm.DB
	cache    *cache.Client
	events   *mq.Recorder
	gw       *gateway.Fake
	dir      *repository.DirectoryRepo
	avail    *AvailabilitySvc
	bookings *BookingSvc
	payments *PaymentSvc
}

func disabledCache() *cache.Client {
	return cache.New(context.Background(), "", logger.Discard(), cache.Options{})
}

func redisCache(t *testing.T) (*cache.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := cache.NewFromRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), logger.Discard(), cache.Options{RetryAfter: time.Hour})
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func newFixtureWith(t *testing.T, c *cache.Client) *fixture {
	t.Helper()
	gdb := testutil.NewDB(t)
	testutil.Seed(t, gdb)

	log := logger.Discard()
	rec := &mq.Recorder{}
	gw := gateway.NewFake()
	dirRepo := repository.NewDirectoryRepo(gdb)
	schedules := repository.NewScheduleRepo(gdb)
	dir := NewDirectory(dirRepo, c)

	bookings := NewBookingSvc(repository.NewBookingRepo(gdb), schedules, dir, c, rec,
		repository.Pricing{DiscountPercent: 10, RewardPoints: 100}, log).WithClock(tickingClock())
	return &fixture{
		db:       gdb,
		cache:    c,
		events:   rec,
		gw:       gw,
		dir:      dirRepo,
		avail:    NewAvailabilitySvc(schedules, dir, c, log),
		bookings: bookings,
		payments: NewPaymentSvc(repository.NewPaymentRepo(gdb), bookings, gw,
			PaymentConfig{Secret: testSecret, Currency: "THB"}, c, rec, log),
	}
}

func newFixture(t *testing.T) *fixture { return newFixtureWith(t, disabledCache()) }

// book creates a staffless booking of one catalogue service.
func (f *fixture) book(t *testing.T, p auth.Principal, serviceID string, when time.Time) *domain.Booking {
	t.Helper()
	b, _, err := f.bookings.CreateBooking(context.Background(), p, CreateBookingInput{
		SalonID:         testutil.SalonID,
		ServiceIDs:      []string{serviceID},
		AppointmentTime: when,
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) bookWithStaff(p auth.Principal, when time.Time) (*domain.Booking, error) {
	staff := testutil.StaffID
	b, _, err := f.bookings.CreateBooking(context.Background(), p, CreateBookingInput{
		SalonID:         testutil.SalonID,
		StaffID:         &staff,
		ServiceIDs:      []string{testutil.Cut},
		AppointmentTime: when,
	})
	return b, err
}

// schedule publishes 30 minute slots for the seeded Saturday.
func (f *fixture) schedule(t *testing.T) *domain.DaySchedule {
	t.Helper()
	s, err := f.avail.CreateDaySchedule(context.Background(), owner, testutil.StaffID, "2025-03-01", 30, "")
	require.NoError(t, err)
	return s
}

func (f *fixture) customer(t *testing.T, id string) *domain.Customer {
	t.Helper()
	c, err := f.dir.Customer(context.Background(), id)
	require.NoError(t, err)
	return c
}
