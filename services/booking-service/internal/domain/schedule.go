package domain

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// DaySchedule is one staff member's slots for one calendar date.
type DaySchedule struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	StaffID      string    `gorm:"uniqueIndex:idx_staff_date" json:"staffId"`
	SalonID      string    `gorm:"index" json:"salonId"`
	Date         string    `gorm:"uniqueIndex:idx_staff_date" json:"date"` // YYYY-MM-DD
	SlotDuration int       `json:"slotDuration"`
	Notes        string    `json:"notes"`
	Slots        []Slot    `gorm:"foreignKey:ScheduleID;constraint:OnDelete:CASCADE" json:"slots"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Slot struct {
	ID         uint       `gorm:"primaryKey" json:"-"`
	ScheduleID string     `gorm:"uniqueIndex:idx_schedule_slot" json:"scheduleId"`
	Index      int        `gorm:"column:slot_index;uniqueIndex:idx_schedule_slot" json:"index"`
	Start      string     `json:"start"` // HH:mm
	End        string     `json:"end"`
	Duration   int        `json:"duration"`
	Booked     bool       `gorm:"index" json:"booked"`
	BookedBy   *string    `json:"bookedBy,omitempty"`
	BookingRef *string    `json:"bookingRef,omitempty"`
	ServiceID  *string    `json:"serviceId,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	BookedAt   *time.Time `json:"bookedAt,omitempty"`
}

func (d *DaySchedule) AvailableSlots() []Slot {
	out := make([]Slot, 0, len(d.Slots))
	for _, s := range d.Slots {
		if !s.Booked {
			out = append(out, s)
		}
	}
	return out
}

func (d *DaySchedule) BookedCount() int {
	n := 0
	for _, s := range d.Slots {
		if s.Booked {
			n++
		}
	}
	return n
}

// SlotStartingAt finds the slot whose start equals hhmm.
func (d *DaySchedule) SlotStartingAt(hhmm string) (Slot, bool) {
	for _, s := range d.Slots {
		if s.Start == hhmm {
			return s, true
		}
	}
	return Slot{}, false
}

// ParseClock parses HH:mm into minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("bad clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// BuildSlots walks [start, end) in duration steps; a trailing remainder shorter
// than duration is dropped.
func BuildSlots(hours DayHours, duration int) ([]Slot, error) {
	if !hours.Working {
		return []Slot{}, nil
	}
	if duration <= 0 {
		return nil, Invalid("slot duration must be positive")
	}
	start, err := ParseClock(hours.Start)
	if err != nil {
		return nil, Invalid("working hours: %v", err)
	}
	end, err := ParseClock(hours.End)
	if err != nil {
		return nil, Invalid("working hours: %v", err)
	}
	slots := []Slot{}
	for i, t := 0, start; t+duration <= end; i, t = i+1, t+duration {
		slots = append(slots, Slot{
			Index:    i,
			Start:    FormatClock(t),
			End:      FormatClock(t + duration),
			Duration: duration,
		})
	}
	return slots, nil
}

// AvailabilityDay is one row of the availability listing.
type AvailabilityDay struct {
	Date           string `json:"date"`
	ScheduleID     string `json:"scheduleId"`
	TotalSlots     int    `json:"totalSlots"`
	AvailableSlots int    `json:"availableSlots"`
}

type SlotStats struct {
	StaffID        string  `json:"staffId"`
	From           string  `json:"from"`
	To             string  `json:"to"`
	Days           int     `json:"days"`
	TotalSlots     int     `json:"totalSlots"`
	BookedSlots    int     `json:"bookedSlots"`
	AvailableSlots int     `json:"availableSlots"`
	Utilization    float64 `json:"utilization"` // percent
}
