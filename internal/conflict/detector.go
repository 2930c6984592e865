package conflict

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/proserve/booking-core/internal/schedule"
)

// ErrUnknownEntityType marks a caller passing an entity type the detector
// does not dispatch on. This is a programming error, not a conflict.
var ErrUnknownEntityType = errors.New("unknown entity type")

// DetectOptions tunes a single detection pass.
type DetectOptions struct {
	// CheckClientConflicts also scans the client's own calendar for
	// overlapping appointments with other professionals. Nil means true.
	CheckClientConflicts *bool

	// AllowOverride softens block-vs-appointment findings from critical
	// to medium, for blocks explicitly marked overridable.
	AllowOverride bool
}

func (o DetectOptions) checkClient() bool {
	return o.CheckClientConflicts == nil || *o.CheckClientConflicts
}

// Detector runs overlap and policy checks against the scheduling
// collaborators' persisted data. It never mutates anything.
type Detector struct {
	repo  schedule.Repository
	rules Rules
	now   func() time.Time
}

func NewDetector(repo schedule.Repository, rules Rules) *Detector {
	return &Detector{repo: repo, rules: rules, now: time.Now}
}

// DetectConflicts dispatches on entityType. The entity must be the
// matching schedule value (Slot, Appointment, or BlockedPeriod).
func (d *Detector) DetectConflicts(ctx context.Context, entity any, entityType EntityType, opts DetectOptions) ([]Conflict, error) {
	switch entityType {
	case EntitySlot:
		s, ok := entity.(schedule.Slot)
		if !ok {
			return nil, fmt.Errorf("entity type %s requires schedule.Slot, got %T", entityType, entity)
		}
		return d.DetectSlotConflicts(ctx, s, opts)
	case EntityAppointment:
		a, ok := entity.(schedule.Appointment)
		if !ok {
			return nil, fmt.Errorf("entity type %s requires schedule.Appointment, got %T", entityType, entity)
		}
		return d.DetectAppointmentConflicts(ctx, a, opts)
	case EntityBlock:
		b, ok := entity.(schedule.BlockedPeriod)
		if !ok {
			return nil, fmt.Errorf("entity type %s requires schedule.BlockedPeriod, got %T", entityType, entity)
		}
		return d.DetectBlockConflicts(ctx, b, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntityType, entityType)
	}
}

// DetectSlotConflicts checks a candidate slot against the professional's
// existing slots and blocked periods, plus the business rules.
func (d *Detector) DetectSlotConflicts(ctx context.Context, s schedule.Slot, _ DetectOptions) ([]Conflict, error) {
	var conflicts []Conflict

	overlapping, err := d.repo.SlotsOverlapping(ctx, s.ProfessionalID, s.StartTime, s.EndTime)
	if err != nil {
		return nil, fmt.Errorf("query overlapping slots: %w", err)
	}
	if ids := excludeID(slotIDs(overlapping), s.ID); len(ids) > 0 {
		conflicts = append(conflicts, Conflict{
			Type:     TypeSlotOverlap,
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("slot overlaps %d existing slot(s)", len(ids)),
			Details:  Details{SlotIDs: ids},
		})
	}

	blocks, err := d.repo.BlockedPeriodsOverlapping(ctx, s.ProfessionalID, s.StartTime, s.EndTime)
	if err != nil {
		return nil, fmt.Errorf("query blocked periods: %w", err)
	}
	if len(blocks) > 0 {
		conflicts = append(conflicts, Conflict{
			Type:     TypeBlockedTime,
			Severity: SeverityCritical,
			Message:  "slot falls inside blocked time",
			Details:  Details{BlockIDs: blockIDs(blocks)},
		})
	}

	conflicts = append(conflicts, d.businessRuleConflicts(s.StartTime, s.EndTime, nil)...)
	return conflicts, nil
}

// DetectAppointmentConflicts checks a candidate appointment for double
// bookings on either side of the engagement, verifies any referenced slot,
// and applies the business rules.
func (d *Detector) DetectAppointmentConflicts(ctx context.Context, a schedule.Appointment, opts DetectOptions) ([]Conflict, error) {
	var conflicts []Conflict

	own, err := d.repo.AppointmentsOverlapping(ctx, a.ProfessionalID, a.StartTime, a.EndTime)
	if err != nil {
		return nil, fmt.Errorf("query professional appointments: %w", err)
	}
	if ids := excludeID(appointmentIDs(own), a.ID); len(ids) > 0 {
		conflicts = append(conflicts, Conflict{
			Type:     TypeDoubleBooking,
			Severity: SeverityCritical,
			Message:  "professional already has an overlapping appointment",
			Details:  Details{AppointmentIDs: ids},
		})
	}

	if opts.checkClient() {
		clientAppts, err := d.repo.ClientAppointmentsOverlapping(ctx, a.ClientID, a.StartTime, a.EndTime)
		if err != nil {
			return nil, fmt.Errorf("query client appointments: %w", err)
		}
		var ids []uuid.UUID
		for _, other := range clientAppts {
			if other.ID != a.ID && other.ProfessionalID != a.ProfessionalID {
				ids = append(ids, other.ID)
			}
		}
		if len(ids) > 0 {
			conflicts = append(conflicts, Conflict{
				Type:     TypeDoubleBooking,
				Severity: SeverityMedium,
				Message:  "client has an overlapping appointment with another professional",
				Details:  Details{AppointmentIDs: ids},
			})
		}
	}

	if a.SlotID != nil {
		slot, err := d.repo.GetSlotByID(ctx, *a.SlotID)
		switch {
		case errors.Is(err, schedule.ErrSlotNotFound):
			conflicts = append(conflicts, Conflict{
				Type:     TypeResourceConstraint,
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("referenced slot %s not_found", a.SlotID),
				Details:  Details{SlotIDs: []uuid.UUID{*a.SlotID}},
			})
		case err != nil:
			return nil, fmt.Errorf("load referenced slot: %w", err)
		case !slot.Status.Bookable():
			conflicts = append(conflicts, Conflict{
				Type:     TypeResourceConstraint,
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("referenced slot is %s, not bookable", slot.Status),
				Details:  Details{SlotIDs: []uuid.UUID{slot.ID}},
			})
		}
	}

	price := a.Price
	conflicts = append(conflicts, d.businessRuleConflicts(a.StartTime, a.EndTime, &price)...)
	return conflicts, nil
}

// DetectBlockConflicts checks a candidate blocked period against existing
// appointments and still-available slots.
func (d *Detector) DetectBlockConflicts(ctx context.Context, b schedule.BlockedPeriod, opts DetectOptions) ([]Conflict, error) {
	var conflicts []Conflict

	appts, err := d.repo.AppointmentsOverlapping(ctx, b.ProfessionalID, b.StartTime, b.EndTime)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	if len(appts) > 0 {
		severity := SeverityCritical
		if opts.AllowOverride || b.AllowOverride {
			severity = SeverityMedium
		}
		conflicts = append(conflicts, Conflict{
			Type:     TypeDoubleBooking,
			Severity: severity,
			Message:  fmt.Sprintf("block covers %d existing appointment(s)", len(appts)),
			Details:  Details{AppointmentIDs: appointmentIDs(appts)},
		})
	}

	open, err := d.repo.AvailableSlotsOverlapping(ctx, b.ProfessionalID, b.StartTime, b.EndTime)
	if err != nil {
		return nil, fmt.Errorf("query available slots: %w", err)
	}
	if len(open) > 0 {
		conflicts = append(conflicts, Conflict{
			Type:     TypeResourceConstraint,
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("block covers %d open slot(s)", len(open)),
			Details:  Details{SlotIDs: slotIDs(open)},
		})
	}

	return conflicts, nil
}

// Statistics summarises a professional's scheduling load inside a window.
func (d *Detector) Statistics(ctx context.Context, professionalID uuid.UUID, from, to time.Time) (*StatisticsReport, error) {
	counts, err := d.repo.CountInRange(ctx, professionalID, from, to)
	if err != nil {
		return nil, fmt.Errorf("count scheduling entities: %w", err)
	}
	return &StatisticsReport{
		Period: Period{From: from, To: to},
		Statistics: Totals{
			TotalSlots:        counts.Slots,
			TotalAppointments: counts.Appointments,
			TotalBlocks:       counts.Blocks,
		},
	}, nil
}

type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type Totals struct {
	TotalSlots        int `json:"total_slots"`
	TotalAppointments int `json:"total_appointments"`
	TotalBlocks       int `json:"total_blocks"`
}

type StatisticsReport struct {
	Period     Period `json:"period"`
	Statistics Totals `json:"statistics"`
}

func slotIDs(slots []schedule.Slot) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.ID)
	}
	return out
}

func appointmentIDs(appts []schedule.Appointment) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(appts))
	for _, a := range appts {
		out = append(out, a.ID)
	}
	return out
}

func blockIDs(blocks []schedule.BlockedPeriod) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, b.ID)
	}
	return out
}

func excludeID(ids []uuid.UUID, self uuid.UUID) []uuid.UUID {
	out := ids[:0]
	for _, id := range ids {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}
