package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/proserve/booking-core/internal/conflict"
	"github.com/proserve/booking-core/internal/lock"
	"github.com/proserve/booking-core/internal/schedule"
)

var (
	// ErrSlotUnavailable means the caller lost the booking race: the slot
	// was re-read under the lock and is no longer bookable.
	ErrSlotUnavailable = errors.New("slot is no longer available")

	// ErrBlocked means validation found critical conflicts.
	ErrBlocked = errors.New("booking blocked by conflicts")
)

const (
	DefaultTimeout    = 15 * time.Second
	DefaultMaxRetries = 2
)

// Details carries the caller-supplied appointment attributes.
type Details struct {
	Price float64
	Notes string
}

// Options tunes one booking attempt.
type Options struct {
	Timeout    time.Duration
	MaxRetries int

	// AllowCriticalConflicts forces the booking past critical validation
	// findings. The slot-status check is never bypassed.
	AllowCriticalConflicts bool
}

// Result is the committed booking.
type Result struct {
	Appointment *schedule.Appointment `json:"appointment"`
	Slot        *schedule.Slot        `json:"slot"`
}

// Orchestrator performs atomic slot booking by composing the lock manager
// with the conflict detector. The slot lock closes the check-then-act
// race: without it two callers could both observe an available slot before
// either commits.
type Orchestrator struct {
	repo     schedule.Repository
	locks    *lock.Manager
	detector *conflict.Detector
	log      *slog.Logger
}

func NewOrchestrator(repo schedule.Repository, locks *lock.Manager, detector *conflict.Detector, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{repo: repo, locks: locks, detector: detector, log: logger}
}

// SlotLockKey names the lock guarding a slot's booking transition.
func SlotLockKey(slotID uuid.UUID) string {
	return "slot:" + slotID.String()
}

// BookSlot books slotID for clientID. The whole read-validate-write runs
// inside the slot's lock; the lock manager releases on every exit path, so
// a losing caller surfaces ErrSlotUnavailable with the lock already freed.
func (o *Orchestrator) BookSlot(ctx context.Context, slotID, clientID uuid.UUID, details Details, opts Options) (*Result, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	lockOpts := lock.Options{
		TTL:        opts.Timeout,
		MaxRetries: opts.MaxRetries,
	}

	var result *Result
	err := o.locks.WithLock(ctx, SlotLockKey(slotID), lockOpts, func(ctx context.Context) error {
		// Re-read under the lock; the pre-lock view may be stale.
		slot, err := o.repo.GetSlotByID(ctx, slotID)
		if err != nil {
			return fmt.Errorf("load slot: %w", err)
		}
		if !slot.Status.Bookable() {
			return ErrSlotUnavailable
		}

		candidate := schedule.Appointment{
			ID:             uuid.New(),
			ProfessionalID: slot.ProfessionalID,
			ClientID:       clientID,
			SlotID:         &slot.ID,
			StartTime:      slot.StartTime,
			EndTime:        slot.EndTime,
			Price:          details.Price,
		}

		report, err := o.detector.ValidateEntity(ctx, candidate, conflict.EntityAppointment, conflict.ValidateOptions{
			AllowCriticalConflicts: opts.AllowCriticalConflicts,
		})
		if err != nil {
			return fmt.Errorf("validate booking: %w", err)
		}
		if !report.CanProceed {
			return fmt.Errorf("%w: %d critical conflict(s)", ErrBlocked, report.Summary.CriticalCount)
		}

		appt, booked, err := o.repo.CommitBooking(ctx, candidate, slotID, schedule.SlotAvailable, schedule.SlotBooked)
		if err != nil {
			return fmt.Errorf("commit booking: %w", err)
		}

		o.log.Info("slot booked",
			"slot_id", slotID,
			"client_id", clientID,
			"appointment_id", appt.ID,
		)
		result = &Result{Appointment: appt, Slot: booked}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
