package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSlots(t *testing.T) {
	t.Run("walks working hours in steps", func(t *testing.T) {
		slots, err := BuildSlots(DayHours{Start: "09:00", End: "11:00", Working: true}, 30)
		require.NoError(t, err)
		require.Len(t, slots, 4)
		assert.Equal(t, "09:00", slots[0].Start)
		assert.Equal(t, "09:30", slots[0].End)
		assert.Equal(t, "10:30", slots[3].Start)
		assert.Equal(t, "11:00", slots[3].End)
		for i, s := range slots {
			assert.Equal(t, i, s.Index)
			assert.Equal(t, 30, s.Duration)
		}
	})

	t.Run("drops trailing remainder", func(t *testing.T) {
		slots, err := BuildSlots(DayHours{Start: "09:00", End: "10:50", Working: true}, 45)
		require.NoError(t, err)
		require.Len(t, slots, 2)
		assert.Equal(t, "10:30", slots[1].End)
	})

	t.Run("slots never overlap", func(t *testing.T) {
		slots, err := BuildSlots(DayHours{Start: "08:15", End: "19:40", Working: true}, 25)
		require.NoError(t, err)
		for i := 1; i < len(slots); i++ {
			prevEnd, _ := ParseClock(slots[i-1].End)
			start, _ := ParseClock(slots[i].Start)
			assert.LessOrEqual(t, prevEnd, start)
		}
	})

	t.Run("not working", func(t *testing.T) {
		slots, err := BuildSlots(DayHours{Start: "09:00", End: "17:00"}, 30)
		require.NoError(t, err)
		assert.Empty(t, slots)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := BuildSlots(DayHours{Start: "09:00", End: "17:00", Working: true}, 0)
		var ve *ValidationError
		assert.True(t, errors.As(err, &ve))

		_, err = BuildSlots(DayHours{Start: "9am", End: "17:00", Working: true}, 30)
		assert.True(t, errors.As(err, &ve))
	})
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{BookingPending, BookingConfirmed, true},
		{BookingPending, BookingCancelled, true},
		{BookingPending, BookingCompleted, false},
		{BookingConfirmed, BookingCompleted, true},
		{BookingConfirmed, BookingCancelled, true},
		{BookingConfirmed, BookingPending, false},
		{BookingCompleted, BookingPending, false},
		{BookingCancelled, BookingConfirmed, false},
		{BookingConfirmed, BookingConfirmed, true},
	}
	for _, tc := range cases {
		t.Run(tc.from+"->"+tc.to, func(t *testing.T) {
			assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to))
		})
	}
}

func TestSlotKeyFor(t *testing.T) {
	at := time.Date(2025, 3, 1, 17, 0, 0, 0, time.FixedZone("ICT", 7*3600))
	staff := "st1"
	assert.Equal(t, "salon1|st1|2025-03-01T10:00:00Z", SlotKeyFor("salon1", &staff, at))
	assert.Equal(t, "salon1|-|2025-03-01T10:00:00Z", SlotKeyFor("salon1", nil, at))
}

func TestErrors(t *testing.T) {
	assert.True(t, errors.Is(AlreadyBooked(), ErrAlreadyBooked))
	assert.True(t, errors.Is(NotBooked(), ErrNotBooked))
	assert.True(t, errors.Is(InvalidIndex(5, 3), ErrInvalidIndex))

	var ce *ConflictError
	assert.True(t, errors.As(AlreadyBooked(), &ce))

	gw := &GatewayError{Op: "refund", Err: errors.New("timeout")}
	assert.Contains(t, gw.Error(), "refund")
	assert.Equal(t, "booking not found", NotFound("booking", "BK1").Error())
}

func TestIsActivePayment(t *testing.T) {
	active := map[string]bool{}
	for _, s := range PaymentStatuses {
		active[s] = IsActivePayment(s)
	}
	assert.Equal(t, map[string]bool{
		PaymentPending: true, PaymentProcessing: true, PaymentCompleted: true,
		PaymentFailed: false, PaymentCancelled: false, PaymentRefunded: false,
	}, active)
}

func TestReferralDiscount(t *testing.T) {
	assert.Equal(t, int64(100), ReferralDiscount(1000, 10))
	assert.Equal(t, int64(0), ReferralDiscount(1000, 0))
	assert.Equal(t, int64(13), ReferralDiscount(125, 10))
	assert.Equal(t, int64(12), ReferralDiscount(124, 10))

	b := &Booking{Subtotal: 1000}
	b.ApplyDiscount(ReferralDiscount(b.Subtotal, 10))
	assert.Equal(t, int64(900), b.TotalPrice)
	assert.True(t, b.DiscountApplied)
}
