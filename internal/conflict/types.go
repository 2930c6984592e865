package conflict

import (
	"github.com/google/uuid"
)

type Type string

const (
	TypeSlotOverlap        Type = "slot_overlap"
	TypeBlockedTime        Type = "blocked_time"
	TypeDoubleBooking      Type = "double_booking"
	TypeResourceConstraint Type = "resource_constraint"
	TypeBusinessRule       Type = "business_rule_violation"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// EntityType names the kinds of scheduling entities the detector handles.
type EntityType string

const (
	EntitySlot        EntityType = "slot"
	EntityAppointment EntityType = "appointment"
	EntityBlock       EntityType = "block"
)

// Details carries the records a conflict was detected against, keyed by
// kind so the resolver can hand the right ids to an auto-fix.
type Details struct {
	SlotIDs        []uuid.UUID `json:"slot_ids,omitempty"`
	AppointmentIDs []uuid.UUID `json:"appointment_ids,omitempty"`
	BlockIDs       []uuid.UUID `json:"block_ids,omitempty"`
	Field          string      `json:"field,omitempty"`
}

// Conflict is a detected inconsistency between a proposed scheduling
// entity and existing state or policy.
type Conflict struct {
	Type     Type     `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Details  Details  `json:"details"`
}

type Action string

const (
	ActionIgnore     Action = "ignore"
	ActionWarn       Action = "warn"
	ActionBlock      Action = "block"
	ActionAutoAdjust Action = "auto_adjust"
	ActionAutoRemove Action = "auto_remove"
)

// Blocking reports whether the action prevents the entity from proceeding.
func (a Action) Blocking() bool {
	return a == ActionBlock
}

// Resolution is the policy outcome for one conflict. Adjustments and
// RemovedItems carry the ids an auto-fix would touch.
type Resolution struct {
	Action       Action      `json:"action"`
	Message      string      `json:"message"`
	Adjustments  []uuid.UUID `json:"adjustments,omitempty"`
	RemovedItems []uuid.UUID `json:"removed_items,omitempty"`
}
