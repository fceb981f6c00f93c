// Package testutil builds in-memory stores and fixtures for package tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/you/salon-booking/services/booking-service/internal/domain"
	"github.com/you/salon-booking/services/booking-service/internal/repository"
)

// NewDB opens a private in-memory SQLite database with every table migrated.
// One connection keeps the database alive and serializes transactions.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repository.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

const (
	SalonID  = "salon-1"
	OwnerID  = "owner-1"
	StaffID  = "staff-1"
	Alice    = "cust-alice" // no referrer
	Bob      = "cust-bob"   // referred by Alice
	Carol    = "cust-carol" // referred by Alice
	Stranger = "owner-2"
)

// Catalogue of salon-1, plus one retired service and one from salon-2.
const (
	Cut     = "svc-cut"    // 1000, 45 min
	Trim    = "svc-trim"   // 500, 30 min
	Wash    = "svc-wash"   // 600, 30 min
	Colour  = "svc-colour" // 800, 60 min
	Retired = "svc-perm"
	Foreign = "svc-other"
)

// Now is a Saturday morning before the salon opens.
var Now = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func Weekdays(start, end string) domain.WeekHours {
	wh := domain.WeekHours{}
	for d := time.Sunday; d <= time.Saturday; d++ {
		wh[strings.ToLower(d.String())] = domain.DayHours{Start: start, End: end, Working: true}
	}
	return wh
}

func ptr[T any](v T) *T { return &v }

// Seed writes two salons with their services, one staff member working
// 09:00-17:00 except on Sunday, and three customers.
func Seed(t testing.TB, gdb *gorm.DB) {
	t.Helper()
	hours := Weekdays("09:00", "17:00")
	hours["sunday"] = domain.DayHours{}
	rows := []any{
		&domain.Salon{ID: SalonID, Name: "Silk & Scissors", Phone: "02-000-0000", Address: "1 Sukhumvit Rd", OwnerID: OwnerID},
		&domain.Salon{ID: "salon-2", Name: "Other", OwnerID: Stranger},
		&domain.Service{ID: Cut, SalonID: SalonID, Name: "Haircut", Price: 1000, Duration: 45, Active: true},
		&domain.Service{ID: Trim, SalonID: SalonID, Name: "Trim", Price: 500, Duration: 30, Active: true},
		&domain.Service{ID: Wash, SalonID: SalonID, Name: "Wash & Blow-dry", Price: 600, Duration: 30, Active: true},
		&domain.Service{ID: Colour, SalonID: SalonID, Name: "Colour", Price: 800, Duration: 60, Active: true},
		&domain.Service{ID: Retired, SalonID: SalonID, Name: "Perm", Price: 1500, Duration: 90},
		&domain.Service{ID: Foreign, SalonID: "salon-2", Name: "Haircut", Price: 700, Duration: 45, Active: true},
		&domain.StaffMember{ID: StaffID, SalonID: SalonID, Name: "Mai", WorkingHours: hours, Rating: 4.8, Active: true},
		&domain.Customer{ID: Alice, Name: "Alice", Phone: "081-111-1111", ReferralCode: ptr("ALICE1")},
		&domain.Customer{ID: Bob, Name: "Bob", Phone: "081-222-2222", ReferralCode: ptr("BOB1"), ReferredBy: ptr(Alice)},
		&domain.Customer{ID: Carol, Name: "Carol", Phone: "081-333-3333", ReferralCode: ptr("CAROL1"), ReferredBy: ptr(Alice)},
	}
	for _, r := range rows {
		if err := gdb.Create(r).Error; err != nil {
			t.Fatalf("seed %T: %v", r, err)
		}
	}
}

// Haircut is a booked service line as the repository stores it.
func Haircut(price int64) []domain.ServiceLine {
	return []domain.ServiceLine{{ServiceID: Cut, Name: "Haircut", Price: price, Duration: 45}}
}
