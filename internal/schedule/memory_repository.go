package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a map-backed Repository with the same overlap and
// compare-and-set semantics as the Postgres implementation. Tests and the
// offline simulator run against it.
type MemoryRepository struct {
	mu           sync.RWMutex
	slots        map[uuid.UUID]Slot
	appointments map[uuid.UUID]Appointment
	blocks       map[uuid.UUID]BlockedPeriod
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		slots:        make(map[uuid.UUID]Slot),
		appointments: make(map[uuid.UUID]Appointment),
		blocks:       make(map[uuid.UUID]BlockedPeriod),
	}
}

// Seed helpers, not part of the Repository interface.

func (r *MemoryRepository) PutSlot(s Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[s.ID] = s
}

func (r *MemoryRepository) PutAppointment(a Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments[a.ID] = a
}

func (r *MemoryRepository) PutBlockedPeriod(b BlockedPeriod) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks[b.ID] = b
}

func (r *MemoryRepository) GetSlotByID(_ context.Context, id uuid.UUID) (*Slot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &s, nil
}

func (r *MemoryRepository) SlotsOverlapping(_ context.Context, professionalID uuid.UUID, start, end time.Time) ([]Slot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Slot
	for _, s := range r.slots {
		if s.ProfessionalID == professionalID && s.Status != SlotCancelled && Overlaps(s.StartTime, s.EndTime, start, end) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *MemoryRepository) AvailableSlotsOverlapping(_ context.Context, professionalID uuid.UUID, start, end time.Time) ([]Slot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Slot
	for _, s := range r.slots {
		if s.ProfessionalID == professionalID && s.Status == SlotAvailable && Overlaps(s.StartTime, s.EndTime, start, end) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *MemoryRepository) AppointmentsOverlapping(_ context.Context, professionalID uuid.UUID, start, end time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.ProfessionalID == professionalID && Overlaps(a.StartTime, a.EndTime, start, end) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *MemoryRepository) ClientAppointmentsOverlapping(_ context.Context, clientID uuid.UUID, start, end time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Appointment
	for _, a := range r.appointments {
		if a.ClientID == clientID && Overlaps(a.StartTime, a.EndTime, start, end) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *MemoryRepository) BlockedPeriodsOverlapping(_ context.Context, professionalID uuid.UUID, start, end time.Time) ([]BlockedPeriod, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []BlockedPeriod
	for _, b := range r.blocks {
		if b.ProfessionalID == professionalID && Overlaps(b.StartTime, b.EndTime, start, end) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *MemoryRepository) CommitBooking(_ context.Context, a Appointment, slotID uuid.UUID, from, to SlotStatus) (*Appointment, *Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[slotID]
	if !ok || s.Status != from {
		return nil, nil, ErrSlotNotFound
	}

	now := time.Now()
	s.Status = to
	s.UpdatedAt = now
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = now
	a.UpdatedAt = now

	r.slots[slotID] = s
	r.appointments[a.ID] = a
	return &a, &s, nil
}

func (r *MemoryRepository) CountInRange(_ context.Context, professionalID uuid.UUID, start, end time.Time) (RangeCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var c RangeCounts
	for _, s := range r.slots {
		if s.ProfessionalID == professionalID && Overlaps(s.StartTime, s.EndTime, start, end) {
			c.Slots++
		}
	}
	for _, a := range r.appointments {
		if a.ProfessionalID == professionalID && Overlaps(a.StartTime, a.EndTime, start, end) {
			c.Appointments++
		}
	}
	for _, b := range r.blocks {
		if b.ProfessionalID == professionalID && Overlaps(b.StartTime, b.EndTime, start, end) {
			c.Blocks++
		}
	}
	return c, nil
}
