package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proserve/booking-core/internal/schedule"
)

// Detection is tested against a frozen clock so the lead-time and horizon
// rules are deterministic.
var testNow = time.Date(2026, 9, 7, 12, 0, 0, 0, time.UTC) // a Monday, noon

func newTestDetector(repo schedule.Repository) *Detector {
	d := NewDetector(repo, DefaultRules())
	d.now = func() time.Time { return testNow }
	return d
}

// bookableStart is comfortably inside every business rule: three days
// out, mid-morning.
func bookableStart(hour int) time.Time {
	return time.Date(2026, 9, 10, hour, 0, 0, 0, time.UTC)
}

func conflictsOfType(conflicts []Conflict, typ Type) []Conflict {
	var out []Conflict
	for _, c := range conflicts {
		if c.Type == typ {
			out = append(out, c)
		}
	}
	return out
}

func TestDetectSlotConflicts(t *testing.T) {
	professionalID := uuid.New()
	repo := schedule.NewMemoryRepository()
	existing := schedule.Slot{
		ID:             uuid.New(),
		ProfessionalID: professionalID,
		StartTime:      bookableStart(10).Add(30 * time.Minute), // 10:30
		EndTime:        bookableStart(11).Add(30 * time.Minute), // 11:30
		Status:         schedule.SlotAvailable,
	}
	repo.PutSlot(existing)

	d := newTestDetector(repo)
	ctx := context.Background()

	t.Run("overlapping slot conflicts", func(t *testing.T) {
		candidate := schedule.Slot{
			ID:             uuid.New(),
			ProfessionalID: professionalID,
			StartTime:      bookableStart(10), // [10:00,11:00) vs [10:30,11:30)
			EndTime:        bookableStart(11),
			Status:         schedule.SlotAvailable,
		}
		conflicts, err := d.DetectSlotConflicts(ctx, candidate, DetectOptions{})
		require.NoError(t, err)

		overlaps := conflictsOfType(conflicts, TypeSlotOverlap)
		require.Len(t, overlaps, 1)
		assert.Equal(t, SeverityHigh, overlaps[0].Severity)
		assert.Equal(t, []uuid.UUID{existing.ID}, overlaps[0].Details.SlotIDs)
	})

	t.Run("adjacent slot does not conflict", func(t *testing.T) {
		candidate := schedule.Slot{
			ID:             uuid.New(),
			ProfessionalID: professionalID,
			StartTime:      existing.EndTime, // touches at 11:30
			EndTime:        existing.EndTime.Add(time.Hour),
			Status:         schedule.SlotAvailable,
		}
		conflicts, err := d.DetectSlotConflicts(ctx, candidate, DetectOptions{})
		require.NoError(t, err)
		assert.Empty(t, conflictsOfType(conflicts, TypeSlotOverlap))
	})

	t.Run("other professional's slot does not conflict", func(t *testing.T) {
		candidate := schedule.Slot{
			ID:             uuid.New(),
			ProfessionalID: uuid.New(),
			StartTime:      existing.StartTime,
			EndTime:        existing.EndTime,
			Status:         schedule.SlotAvailable,
		}
		conflicts, err := d.DetectSlotConflicts(ctx, candidate, DetectOptions{})
		require.NoError(t, err)
		assert.Empty(t, conflictsOfType(conflicts, TypeSlotOverlap))
	})

	t.Run("blocked time is critical", func(t *testing.T) {
		block := schedule.BlockedPeriod{
			ID:             uuid.New(),
			ProfessionalID: professionalID,
			StartTime:      bookableStart(14),
			EndTime:        bookableStart(16),
			Reason:         "vacation",
		}
		repo.PutBlockedPeriod(block)

		candidate := schedule.Slot{
			ID:             uuid.New(),
			ProfessionalID: professionalID,
			StartTime:      bookableStart(15),
			EndTime:        bookableStart(16),
			Status:         schedule.SlotAvailable,
		}
		conflicts, err := d.DetectSlotConflicts(ctx, candidate, DetectOptions{})
		require.NoError(t, err)

		blocked := conflictsOfType(conflicts, TypeBlockedTime)
		require.Len(t, blocked, 1)
		assert.Equal(t, SeverityCritical, blocked[0].Severity)
		assert.Equal(t, []uuid.UUID{block.ID}, blocked[0].Details.BlockIDs)
	})
}

func TestBusinessRules(t *testing.T) {
	repo := schedule.NewMemoryRepository()
	d := newTestDetector(repo)
	ctx := context.Background()
	professionalID := uuid.New()

	detect := func(t *testing.T, start, end time.Time) []Conflict {
		t.Helper()
		conflicts, err := d.DetectSlotConflicts(ctx, schedule.Slot{
			ID:             uuid.New(),
			ProfessionalID: professionalID,
			StartTime:      start,
			EndTime:        end,
			Status:         schedule.SlotAvailable,
		}, DetectOptions{})
		require.NoError(t, err)
		return conflictsOfType(conflicts, TypeBusinessRule)
	}

	t.Run("one hour away is too soon", func(t *testing.T) {
		found := detect(t, testNow.Add(time.Hour), testNow.Add(2*time.Hour))
		require.Len(t, found, 1)
		assert.Equal(t, SeverityMedium, found[0].Severity)
		assert.Contains(t, found[0].Message, "too soon")
	})

	t.Run("100 days away is too far in advance", func(t *testing.T) {
		start := time.Date(2026, 12, 16, 10, 0, 0, 0, time.UTC) // exactly 100 days out
		found := detect(t, start, start.Add(time.Hour))
		require.Len(t, found, 1)
		assert.Contains(t, found[0].Message, "too far in advance")
	})

	t.Run("06:00 start is outside business hours", func(t *testing.T) {
		start := bookableStart(6)
		found := detect(t, start, start.Add(time.Hour))
		require.Len(t, found, 1)
		assert.Contains(t, found[0].Message, "outside business hours")
	})

	t.Run("ten hour booking exceeds max duration", func(t *testing.T) {
		start := bookableStart(9)
		found := detect(t, start, start.Add(10*time.Hour))
		require.Len(t, found, 1)
		assert.Contains(t, found[0].Message, "duration exceeds 8 hours")
	})

	t.Run("negative price on an appointment", func(t *testing.T) {
		conflicts, err := d.DetectAppointmentConflicts(ctx, schedule.Appointment{
			ID:             uuid.New(),
			ProfessionalID: professionalID,
			ClientID:       uuid.New(),
			StartTime:      bookableStart(10),
			EndTime:        bookableStart(11),
			Price:          -50,
		}, DetectOptions{})
		require.NoError(t, err)

		found := conflictsOfType(conflicts, TypeBusinessRule)
		require.Len(t, found, 1)
		assert.Contains(t, found[0].Message, "cannot be negative")
	})

	t.Run("clean candidate has no findings", func(t *testing.T) {
		start := bookableStart(10)
		assert.Empty(t, detect(t, start, start.Add(time.Hour)))
	})
}

func TestDetectAppointmentConflicts(t *testing.T) {
	professionalID := uuid.New()
	clientID := uuid.New()
	ctx := context.Background()

	t.Run("same professional overlap is critical", func(t *testing.T) {
		repo := schedule.NewMemoryRepository()
		other := schedule.Appointment{
			ID:             uuid.New(),
			ProfessionalID: professionalID,
			ClientID:       uuid.New(),
			StartTime:      bookableStart(10),
			EndTime:        bookableStart(11),
		}
		repo.PutAppointment(other)
		d := newTestDetector(repo)

		conflicts, err := d.DetectAppointmentConflicts(ctx, schedule.Appointment{
			ID:             uuid.New(),
			ProfessionalID: professionalID,
			ClientID:       clientID,
			StartTime:      bookableStart(10).Add(30 * time.Minute),
			EndTime:        bookableStart(11).Add(30 * time.Minute),
		}, DetectOptions{})
		require.NoError(t, err)

		doubles := conflictsOfType(conflicts, TypeDoubleBooking)
		require.Len(t, doubles, 1)
		assert.Equal(t, SeverityCritical, doubles[0].Severity)
		assert.Equal(t, []uuid.UUID{other.ID}, doubles[0].Details.AppointmentIDs)
	})

	t.Run("client overlap with another professional is medium", func(t *testing.T) {
		repo := schedule.NewMemoryRepository()
		elsewhere := schedule.Appointment{
			ID:             uuid.New(),
			ProfessionalID: uuid.New(), // different professional
			ClientID:       clientID,
			StartTime:      bookableStart(10),
			EndTime:        bookableStart(11),
		}
		repo.PutAppointment(elsewhere)
		d := newTestDetector(repo)

		candidate := schedule.Appointment{
			ID:             uuid.New(),
			ProfessionalID: professionalID,
			ClientID:       clientID,
			StartTime:      bookableStart(10),
			EndTime:        bookableStart(11),
		}

		conflicts, err := d.DetectAppointmentConflicts(ctx, candidate, DetectOptions{})
		require.NoError(t, err)
		doubles := conflictsOfType(conflicts, TypeDoubleBooking)
		require.Len(t, doubles, 1)
		assert.Equal(t, SeverityMedium, doubles[0].Severity)

		// The client-side scan is optional.
		off := false
		conflicts, err = d.DetectAppointmentConflicts(ctx, candidate, DetectOptions{CheckClientConflicts: &off})
		require.NoError(t, err)
		assert.Empty(t, conflictsOfType(conflicts, TypeDoubleBooking))
	})

	t.Run("missing referenced slot", func(t *testing.T) {
		repo := schedule.NewMemoryRepository()
		d := newTestDetector(repo)

		missing := uuid.New()
		conflicts, err := d.DetectAppointmentConflicts(ctx, schedule.Appointment{
			ID:             uuid.New(),
			ProfessionalID: professionalID,
			ClientID:       clientID,
			SlotID:         &missing,
			StartTime:      bookableStart(10),
			EndTime:        bookableStart(11),
		}, DetectOptions{})
		require.NoError(t, err)

		constraints := conflictsOfType(conflicts, TypeResourceConstraint)
		require.Len(t, constraints, 1)
		assert.Equal(t, SeverityCritical, constraints[0].Severity)
		assert.Contains(t, constraints[0].Message, "not_found")
	})

	t.Run("referenced slot no longer bookable", func(t *testing.T) {
		repo := schedule.NewMemoryRepository()
		taken := schedule.Slot{
			ID:             uuid.New(),
			ProfessionalID: professionalID,
			StartTime:      bookableStart(10),
			EndTime:        bookableStart(11),
			Status:         schedule.SlotBooked,
		}
		repo.PutSlot(taken)
		d := newTestDetector(repo)

		conflicts, err := d.DetectAppointmentConflicts(ctx, schedule.Appointment{
			ID:             uuid.New(),
			ProfessionalID: professionalID,
			ClientID:       clientID,
			SlotID:         &taken.ID,
			StartTime:      taken.StartTime,
			EndTime:        taken.EndTime,
		}, DetectOptions{})
		require.NoError(t, err)

		constraints := conflictsOfType(conflicts, TypeResourceConstraint)
		require.Len(t, constraints, 1)
		assert.Equal(t, SeverityCritical, constraints[0].Severity)
	})
}

func TestDetectBlockConflicts(t *testing.T) {
	professionalID := uuid.New()
	ctx := context.Background()

	repo := schedule.NewMemoryRepository()
	appt := schedule.Appointment{
		ID:             uuid.New(),
		ProfessionalID: professionalID,
		ClientID:       uuid.New(),
		StartTime:      bookableStart(10),
		EndTime:        bookableStart(11),
	}
	repo.PutAppointment(appt)
	open := schedule.Slot{
		ID:             uuid.New(),
		ProfessionalID: professionalID,
		StartTime:      bookableStart(14),
		EndTime:        bookableStart(15),
		Status:         schedule.SlotAvailable,
	}
	repo.PutSlot(open)
	d := newTestDetector(repo)

	block := schedule.BlockedPeriod{
		ID:             uuid.New(),
		ProfessionalID: professionalID,
		StartTime:      bookableStart(9),
		EndTime:        bookableStart(17),
		Reason:         "training",
	}

	conflicts, err := d.DetectBlockConflicts(ctx, block, DetectOptions{})
	require.NoError(t, err)

	doubles := conflictsOfType(conflicts, TypeDoubleBooking)
	require.Len(t, doubles, 1)
	assert.Equal(t, SeverityCritical, doubles[0].Severity)
	assert.Equal(t, []uuid.UUID{appt.ID}, doubles[0].Details.AppointmentIDs)

	constraints := conflictsOfType(conflicts, TypeResourceConstraint)
	require.Len(t, constraints, 1)
	assert.Equal(t, SeverityMedium, constraints[0].Severity)
	assert.Equal(t, []uuid.UUID{open.ID}, constraints[0].Details.SlotIDs)

	// Override softens the appointment collision.
	conflicts, err = d.DetectBlockConflicts(ctx, block, DetectOptions{AllowOverride: true})
	require.NoError(t, err)
	doubles = conflictsOfType(conflicts, TypeDoubleBooking)
	require.Len(t, doubles, 1)
	assert.Equal(t, SeverityMedium, doubles[0].Severity)
}

func TestDetectConflictsDispatch(t *testing.T) {
	repo := schedule.NewMemoryRepository()
	d := newTestDetector(repo)
	ctx := context.Background()

	_, err := d.DetectConflicts(ctx, struct{}{}, EntityType("meeting"), DetectOptions{})
	require.ErrorIs(t, err, ErrUnknownEntityType)
	assert.Contains(t, err.Error(), "meeting")

	_, err = d.DetectConflicts(ctx, "not a slot", EntitySlot, DetectOptions{})
	require.Error(t, err)
}

func TestValidateEntity(t *testing.T) {
	professionalID := uuid.New()
	repo := schedule.NewMemoryRepository()
	repo.PutBlockedPeriod(schedule.BlockedPeriod{
		ID:             uuid.New(),
		ProfessionalID: professionalID,
		StartTime:      bookableStart(9),
		EndTime:        bookableStart(17),
	})
	d := newTestDetector(repo)
	ctx := context.Background()

	candidate := schedule.Slot{
		ID:             uuid.New(),
		ProfessionalID: professionalID,
		StartTime:      bookableStart(10),
		EndTime:        bookableStart(11),
		Status:         schedule.SlotAvailable,
	}

	report, err := d.ValidateEntity(ctx, candidate, EntitySlot, ValidateOptions{})
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.False(t, report.CanProceed)
	assert.Equal(t, 1, report.Summary.CriticalCount)
	assert.Equal(t, len(report.Conflicts), report.Summary.TotalConflicts)
	require.Len(t, report.CriticalConflicts, 1)
	assert.Equal(t, TypeBlockedTime, report.CriticalConflicts[0].Type)

	report, err = d.ValidateEntity(ctx, candidate, EntitySlot, ValidateOptions{AllowCriticalConflicts: true})
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.True(t, report.CanProceed)
	assert.Equal(t, 1, report.Summary.CriticalCount, "override changes the verdict, not the findings")
}

func TestStatistics(t *testing.T) {
	professionalID := uuid.New()
	repo := schedule.NewMemoryRepository()
	repo.PutSlot(schedule.Slot{ID: uuid.New(), ProfessionalID: professionalID, StartTime: bookableStart(9), EndTime: bookableStart(10), Status: schedule.SlotAvailable})
	repo.PutSlot(schedule.Slot{ID: uuid.New(), ProfessionalID: professionalID, StartTime: bookableStart(10), EndTime: bookableStart(11), Status: schedule.SlotBooked})
	repo.PutAppointment(schedule.Appointment{ID: uuid.New(), ProfessionalID: professionalID, ClientID: uuid.New(), StartTime: bookableStart(10), EndTime: bookableStart(11)})
	repo.PutBlockedPeriod(schedule.BlockedPeriod{ID: uuid.New(), ProfessionalID: professionalID, StartTime: bookableStart(14), EndTime: bookableStart(16)})
	d := newTestDetector(repo)

	from := testNow
	to := testNow.AddDate(0, 1, 0)
	report, err := d.Statistics(context.Background(), professionalID, from, to)
	require.NoError(t, err)

	assert.Equal(t, Period{From: from, To: to}, report.Period)
	assert.Equal(t, 2, report.Statistics.TotalSlots)
	assert.Equal(t, 1, report.Statistics.TotalAppointments)
	assert.Equal(t, 1, report.Statistics.TotalBlocks)
}
