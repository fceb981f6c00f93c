package domain

import (
	"strings"
	"time"
)

// Salon, StaffMember and Customer are owned by the directory; the engine only reads
// them, except for the customer's referral discount flag and reward points.
type Salon struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	OwnerID   string    `gorm:"index" json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}

type DayHours struct {
	Start   string `json:"start"` // HH:mm
	End     string `json:"end"`   // HH:mm
	Working bool   `json:"working"`
}

// WeekHours is keyed by lower-case weekday name.
type WeekHours map[string]DayHours

func (w WeekHours) For(d time.Weekday) DayHours {
	return w[strings.ToLower(d.String())]
}

type StaffMember struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	SalonID      string    `gorm:"index" json:"salonId"`
	Name         string    `json:"name"`
	WorkingHours WeekHours `gorm:"serializer:json;type:text" json:"workingHours"`
	Rating       float64   `json:"rating"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Customer struct {
	ID                       string    `gorm:"primaryKey" json:"id"`
	Name                     string    `json:"name"`
	Phone                    string    `json:"phone"`
	Email                    string    `json:"email"`
	ReferralCode             *string   `gorm:"uniqueIndex" json:"referralCode,omitempty"`
	ReferredBy               *string   `gorm:"index" json:"referredBy,omitempty"`
	FirstBookingDiscountUsed bool      `json:"firstBookingDiscountUsed"`
	RewardPoints             int       `json:"rewardPoints"`
	CreatedAt                time.Time `json:"createdAt"`
	UpdatedAt                time.Time `json:"updatedAt"`
}

// EligibleForReferralDiscount is the read-side view of the flag; the write side
// is the conditional update in the booking repository.
func (c *Customer) EligibleForReferralDiscount() bool {
	return c.ReferredBy != nil && *c.ReferredBy != "" && !c.FirstBookingDiscountUsed
}

// Service is a salon's catalogue entry. Bookings copy it into a ServiceLine,
// so later price changes never touch existing bookings.
type Service struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	SalonID     string    `gorm:"index;not null" json:"salonId"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description,omitempty"`
	Price       int64     `gorm:"not null" json:"price"`
	Duration    int       `json:"duration"` // minutes
	Category    string    `gorm:"default:'General'" json:"category"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (s *Service) Line() ServiceLine {
	return ServiceLine{ServiceID: s.ID, Name: s.Name, Price: s.Price, Duration: s.Duration}
}
