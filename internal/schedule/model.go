package schedule

import (
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
	SlotCancelled SlotStatus = "cancelled"
)

// Bookable reports whether the slot can still accept an appointment.
func (s SlotStatus) Bookable() bool {
	return s == SlotAvailable
}

type Professional struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Client struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Slot is an offered window of a professional's time. Only the booking
// orchestrator moves a slot to booked, and only under the slot's lock;
// cancellation paths are owned elsewhere.
type Slot struct {
	ID             uuid.UUID
	ProfessionalID uuid.UUID
	StartTime      time.Time
	EndTime        time.Time
	Status         SlotStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Appointment struct {
	ID             uuid.UUID
	ProfessionalID uuid.UUID
	ClientID       uuid.UUID
	SlotID         *uuid.UUID
	StartTime      time.Time
	EndTime        time.Time
	Price          float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BlockedPeriod marks professional time as unbookable (vacation, admin
// time). AllowOverride lets existing appointments coexist with the block
// at reduced severity.
type BlockedPeriod struct {
	ID             uuid.UUID
	ProfessionalID uuid.UUID
	StartTime      time.Time
	EndTime        time.Time
	Reason         string
	AllowOverride  bool
	CreatedAt      time.Time
}

// Overlaps reports whether the half-open ranges [aStart,aEnd) and
// [bStart,bEnd) intersect. Adjacent, touching ranges do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
