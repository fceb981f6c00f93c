package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/you/salon-booking/services/booking-service/internal/domain"
)

// Migrate creates or updates every table the engine owns or reads.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Salon{},
		&domain.StaffMember{},
		&domain.Customer{},
		&domain.Service{},
		&domain.DaySchedule{},
		&domain.Slot{},
		&domain.Booking{},
		&domain.Payment{},
	)
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NotFound(entity, id)
	}
	return err
}

func nowUTC() time.Time { return time.Now().UTC() }

// Page normalizes 1-based pagination input.
func Page(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}
