package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/proserve/booking-core/internal/conflict"
	"github.com/proserve/booking-core/internal/schedule"
)

type BookSlotRequest struct {
	SlotID   string  `json:"slot_id" validate:"required,uuid"`
	ClientID string  `json:"client_id" validate:"required,uuid"`
	Price    float64 `json:"price"`
}

type SlotPayload struct {
	ID             uuid.UUID `json:"id"`
	ProfessionalID uuid.UUID `json:"professional_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Status         string    `json:"status"`
}

type AppointmentPayload struct {
	ID             uuid.UUID  `json:"id"`
	ProfessionalID uuid.UUID  `json:"professional_id"`
	ClientID       uuid.UUID  `json:"client_id"`
	SlotID         *uuid.UUID `json:"slot_id,omitempty"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	Price          float64    `json:"price"`
}

type BookSlotResponse struct {
	Appointment AppointmentPayload `json:"appointment"`
	Slot        SlotPayload        `json:"slot"`
}

func slotPayload(s *schedule.Slot) SlotPayload {
	return SlotPayload{
		ID:             s.ID,
		ProfessionalID: s.ProfessionalID,
		StartTime:      s.StartTime,
		EndTime:        s.EndTime,
		Status:         string(s.Status),
	}
}

func appointmentPayload(a *schedule.Appointment) AppointmentPayload {
	return AppointmentPayload{
		ID:             a.ID,
		ProfessionalID: a.ProfessionalID,
		ClientID:       a.ClientID,
		SlotID:         a.SlotID,
		StartTime:      a.StartTime,
		EndTime:        a.EndTime,
		Price:          a.Price,
	}
}

// ValidateEntityRequest carries one candidate scheduling entity. Which
// fields are required depends on entity_type; the handler builds the
// matching schedule value.
type ValidateEntityRequest struct {
	EntityType     string     `json:"entity_type" validate:"required"`
	ProfessionalID string     `json:"professional_id" validate:"required,uuid"`
	ClientID       string     `json:"client_id" validate:"omitempty,uuid"`
	SlotID         string     `json:"slot_id" validate:"omitempty,uuid"`
	StartTime      time.Time  `json:"start_time" validate:"required"`
	EndTime        time.Time  `json:"end_time" validate:"required,gtfield=StartTime"`
	Price          *float64   `json:"price,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	AllowOverride  bool       `json:"allow_override,omitempty"`

	ResolutionStrategy     string `json:"resolution_strategy" validate:"omitempty,oneof=strict warn auto_resolve"`
	AllowCriticalConflicts bool   `json:"allow_critical_conflicts,omitempty"`
	CheckClientConflicts   *bool  `json:"check_client_conflicts,omitempty"`
}

type ValidateEntityResponse struct {
	Report      *conflict.ValidationReport `json:"report"`
	Resolutions []conflict.Resolved        `json:"resolutions"`
}

// LockPayload exposes lock rows without their tokens; a token in a
// response would let anyone release someone else's lock.
type LockPayload struct {
	ResourceKey string    `json:"resource_key"`
	AcquiredAt  time.Time `json:"acquired_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type LockStatusResponse struct {
	ResourceKey string        `json:"resource_key"`
	Locked      bool          `json:"locked"`
	Locks       []LockPayload `json:"locks"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
