package cache

import (
	"fmt"
	"time"
)

const (
	TTLEntity       = 30 * time.Minute
	TTLList         = 5 * time.Minute
	TTLStats        = 2 * time.Minute
	TTLAvailability = 2 * time.Minute
)

// BookingStatusFilters are the variants of the salon booking list key. Any
// status added to bookings must be added here or its list goes stale.
var BookingStatusFilters = []string{"all", "pending", "confirmed", "completed", "cancelled"}

// Invalidation is the set of keys one mutation makes stale.
type Invalidation struct {
	Keys     []string
	Prefixes []string
}

func (i Invalidation) Merge(o Invalidation) Invalidation {
	return Invalidation{
		Keys:     append(append([]string(nil), i.Keys...), o.Keys...),
		Prefixes: append(append([]string(nil), i.Prefixes...), o.Prefixes...),
	}
}

// directory

func SalonKey(id string) string    { return "salon:" + id }
func StaffKey(id string) string    { return "staff:" + id }
func CustomerKey(id string) string { return "customer:" + id }

// availability

func ScheduleKey(id string) string { return "schedule:" + id }

func staffSchedulesPrefix(staffID string) string { return "schedules:staff:" + staffID + ":" }
func staffAvailabilityPrefix(staffID string) string {
	return "availability:staff:" + staffID + ":"
}

func StaffSchedulesKey(staffID, from, to string) string {
	return staffSchedulesPrefix(staffID) + from + ":" + to
}

func AvailableSlotsKey(staffID, date string) string {
	return staffAvailabilityPrefix(staffID) + "slots:" + date
}

func AvailabilityRangeKey(staffID, from, to string) string {
	return staffAvailabilityPrefix(staffID) + "range:" + from + ":" + to
}

func SlotStatsKey(staffID, from, to string) string {
	return staffAvailabilityPrefix(staffID) + "stats:" + from + ":" + to
}

// ScheduleInvalidation covers a schedule and every range query of its staff member.
func ScheduleInvalidation(scheduleID, staffID string) Invalidation {
	return Invalidation{
		Keys:     []string{ScheduleKey(scheduleID)},
		Prefixes: []string{staffSchedulesPrefix(staffID), staffAvailabilityPrefix(staffID)},
	}
}

// bookings

func BookingKey(id string) string          { return "booking:" + id }
func BookingDetailsKey(id string) string   { return "booking:" + id + ":details" }
func CustomerBookingsKey(id string) string { return "bookings:customer:" + id }
func AllBookingsKey() string               { return "bookings:all" }

func SalonBookingsKey(salonID, status string) string {
	if status == "" {
		status = "all"
	}
	return "bookings:salon:" + salonID + ":" + status
}

// BookingInvalidation covers the booking, its projections, its customer's
// list, every status variant of its salon's list and the admin aggregate.
// The customer entry is included because pricing flips the discount flag.
func BookingInvalidation(bookingID, customerID, salonID string) Invalidation {
	keys := []string{
		BookingKey(bookingID),
		BookingDetailsKey(bookingID),
		CustomerBookingsKey(customerID),
		CustomerKey(customerID),
		AllBookingsKey(),
	}
	for _, f := range BookingStatusFilters {
		keys = append(keys, SalonBookingsKey(salonID, f))
	}
	return Invalidation{Keys: keys}
}

// payments

func PaymentKey(id string) string { return "payment:" + id }

func customerPaymentsPrefix(id string) string { return "payments:customer:" + id + ":" }
func salonPaymentsPrefix(id string) string    { return "payments:salon:" + id + ":" }

func CustomerPaymentsKey(customerID string, page, size int) string {
	return customerPaymentsPrefix(customerID) + fmt.Sprintf("p%d:s%d", page, size)
}

func SalonPaymentsKey(salonID string, page, size int) string {
	return salonPaymentsPrefix(salonID) + fmt.Sprintf("p%d:s%d", page, size)
}

func PaymentInvalidation(paymentID, customerID, salonID string) Invalidation {
	return Invalidation{
		Keys:     []string{PaymentKey(paymentID)},
		Prefixes: []string{customerPaymentsPrefix(customerID), salonPaymentsPrefix(salonID)},
	}
}
