package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// RangeCounts aggregates scheduling entities inside a window, for the
// conflict statistics surface.
type RangeCounts struct {
	Slots        int
	Appointments int
	Blocks       int
}

// Repository contains all persistence the conflict detector and booking
// orchestrator need. Every *Overlapping query uses the half-open rule:
// rows with start_time < end AND end_time > start.
type Repository interface {
	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)

	// For conflict checks
	SlotsOverlapping(ctx context.Context, professionalID uuid.UUID, start, end time.Time) ([]Slot, error)
	AvailableSlotsOverlapping(ctx context.Context, professionalID uuid.UUID, start, end time.Time) ([]Slot, error)
	AppointmentsOverlapping(ctx context.Context, professionalID uuid.UUID, start, end time.Time) ([]Appointment, error)
	ClientAppointmentsOverlapping(ctx context.Context, clientID uuid.UUID, start, end time.Time) ([]Appointment, error)
	BlockedPeriodsOverlapping(ctx context.Context, professionalID uuid.UUID, start, end time.Time) ([]BlockedPeriod, error)

	// CommitBooking atomically creates the appointment and moves the slot
	// from one status to the other; neither write lands without the other.
	// The status move is a compare-and-set: a slot no longer in the from
	// status fails the whole commit with ErrSlotNotFound.
	CommitBooking(ctx context.Context, a Appointment, slotID uuid.UUID, from, to SlotStatus) (*Appointment, *Slot, error)

	// Statistics
	CountInRange(ctx context.Context, professionalID uuid.UUID, start, end time.Time) (RangeCounts, error)
}
