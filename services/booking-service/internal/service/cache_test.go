package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/salon-booking/pkg/cache"
	"github.com/you/salon-booking/services/booking-service/internal/domain"
	"github.com/you/salon-booking/services/booking-service/internal/testutil"
)

// outcome is what a client can observe after a fixed sequence of operations.
type outcome struct {
	Status        string
	PaymentStatus string
	Total         int64
	FreeSlots     int
	Mine          int
	Revenue       int64
}

func runScenario(t *testing.T, f *fixture) outcome {
	t.Helper()
	ctx := context.Background()
	f.schedule(t)

	// warm every read path before writing
	_, err := f.avail.GetAvailableSlots(ctx, testutil.StaffID, "2025-03-01")
	require.NoError(t, err)
	_, err = f.bookings.ListBookingsForCustomer(ctx, bob, testutil.Bob)
	require.NoError(t, err)
	_, err = f.payments.GetSalonPayments(ctx, owner, testutil.SalonID, 1, 20)
	require.NoError(t, err)

	b, err := f.bookWithStaff(bob, at("10:00"))
	require.NoError(t, err)
	_, err = f.bookings.GetBooking(ctx, bob, b.ID)
	require.NoError(t, err)
	f.paid(t, b)

	got, err := f.bookings.GetBooking(ctx, bob, b.ID)
	require.NoError(t, err)
	free, err := f.avail.GetAvailableSlots(ctx, testutil.StaffID, "2025-03-01")
	require.NoError(t, err)
	mine, err := f.bookings.ListBookingsForCustomer(ctx, bob, testutil.Bob)
	require.NoError(t, err)
	report, err := f.payments.GetSalonPayments(ctx, owner, testutil.SalonID, 1, 20)
	require.NoError(t, err)

	return outcome{
		Status:        got.Status,
		PaymentStatus: got.PaymentStatus,
		Total:         got.TotalPrice,
		FreeSlots:     len(free),
		Mine:          len(mine),
		Revenue:       report.Revenue,
	}
}

func TestCacheIsTransparent(t *testing.T) {
	want := outcome{
		Status:        domain.BookingConfirmed,
		PaymentStatus: domain.PayStatusCompleted,
		Total:         900,
		FreeSlots:     15,
		Mine:          1,
		Revenue:       900,
	}

	t.Run("disabled", func(t *testing.T) {
		f := newFixtureWith(t, disabledCache())
		assert.Equal(t, "disabled", f.cache.Status())
		assert.Equal(t, want, runScenario(t, f))
	})

	t.Run("redis", func(t *testing.T) {
		c, mr := redisCache(t)
		f := newFixtureWith(t, c)
		assert.Equal(t, want, runScenario(t, f))
		assert.True(t, mr.Exists(cache.SalonKey(testutil.SalonID)))
	})

	t.Run("redis unreachable", func(t *testing.T) {
		c, mr := redisCache(t)
		mr.SetError("ERR injected failure")
		f := newFixtureWith(t, c)
		assert.Equal(t, want, runScenario(t, f))
		assert.Equal(t, "unavailable", c.Status())
	})
}

func TestCacheInvalidatedOnWrite(t *testing.T) {
	ctx := context.Background()
	c, mr := redisCache(t)
	f := newFixtureWith(t, c)

	b := f.book(t, alice, testutil.Cut, at("10:00"))
	got, err := f.bookings.GetBooking(ctx, alice, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, got.Status)
	require.True(t, mr.Exists(cache.BookingKey(b.ID)))

	_, err = f.bookings.UpdateStatus(ctx, admin, b.ID, domain.BookingConfirmed)
	require.NoError(t, err)
	assert.False(t, mr.Exists(cache.BookingKey(b.ID)))

	got, err = f.bookings.GetBooking(ctx, alice, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, got.Status)

	s := f.schedule(t)
	free, err := f.avail.GetAvailableSlots(ctx, testutil.StaffID, "2025-03-01")
	require.NoError(t, err)
	require.Len(t, free, 16)
	_, err = f.avail.BookSlot(ctx, BookSlotInput{ScheduleID: s.ID, Index: 0, CustomerID: testutil.Bob})
	require.NoError(t, err)
	free, err = f.avail.GetAvailableSlots(ctx, testutil.StaffID, "2025-03-01")
	require.NoError(t, err)
	assert.Len(t, free, 15)
}
