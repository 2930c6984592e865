package conflict

import (
	"context"
)

// ValidateOptions combines the detection knobs with the validation policy.
type ValidateOptions struct {
	DetectOptions

	// AllowCriticalConflicts lets callers proceed despite critical
	// findings, e.g. an administrator forcing a booking.
	AllowCriticalConflicts bool
}

type ValidationSummary struct {
	TotalConflicts int `json:"total_conflicts"`
	CriticalCount  int `json:"critical_count"`
}

// ValidationReport is the structured outcome of a validation pass.
// Blocking findings are data, never errors; the error return of
// ValidateEntity is reserved for infrastructure faults.
type ValidationReport struct {
	Valid             bool              `json:"valid"`
	Conflicts         []Conflict        `json:"conflicts"`
	CriticalConflicts []Conflict        `json:"critical_conflicts"`
	CanProceed        bool              `json:"can_proceed"`
	Summary           ValidationSummary `json:"summary"`
}

// ValidateEntity runs detection for the entity and folds the findings into
// a report. Valid and CanProceed are false whenever any critical conflict
// exists, unless AllowCriticalConflicts is set.
func (d *Detector) ValidateEntity(ctx context.Context, entity any, entityType EntityType, opts ValidateOptions) (*ValidationReport, error) {
	conflicts, err := d.DetectConflicts(ctx, entity, entityType, opts.DetectOptions)
	if err != nil {
		return nil, err
	}

	var critical []Conflict
	for _, c := range conflicts {
		if c.Severity == SeverityCritical {
			critical = append(critical, c)
		}
	}

	ok := len(critical) == 0 || opts.AllowCriticalConflicts
	return &ValidationReport{
		Valid:             ok,
		Conflicts:         conflicts,
		CriticalConflicts: critical,
		CanProceed:        ok,
		Summary: ValidationSummary{
			TotalConflicts: len(conflicts),
			CriticalCount:  len(critical),
		},
	}, nil
}
