package conflict

// Strategy is the policy converting detected conflicts into outcomes.
type Strategy string

const (
	StrategyStrict      Strategy = "strict"
	StrategyWarn        Strategy = "warn"
	StrategyAutoResolve Strategy = "auto_resolve"
)

// ResolveOptions carries the strategy for one resolution pass.
type ResolveOptions struct {
	Strategy Strategy
}

// Resolved pairs a conflict with its policy outcome.
type Resolved struct {
	Conflict   Conflict   `json:"conflict"`
	Resolution Resolution `json:"resolution"`
}

// ResolveConflicts applies the strategy to each conflict, dropping entries
// whose resolution action is ignore.
func ResolveConflicts(conflicts []Conflict, opts ResolveOptions) []Resolved {
	out := make([]Resolved, 0, len(conflicts))
	for _, c := range conflicts {
		r := ApplyStrategy(c, opts)
		if r.Action == ActionIgnore {
			continue
		}
		out = append(out, Resolved{Conflict: c, Resolution: r})
	}
	return out
}

// ApplyStrategy maps one conflict to a resolution. Critical conflicts
// block under every known strategy; an unknown strategy blocks outright.
func ApplyStrategy(c Conflict, opts ResolveOptions) Resolution {
	switch opts.Strategy {
	case StrategyStrict:
		if c.Severity == SeverityCritical || c.Severity == SeverityHigh {
			return Resolution{Action: ActionBlock, Message: c.Message}
		}
		return Resolution{Action: ActionWarn, Message: c.Message}

	case StrategyWarn:
		if c.Severity == SeverityCritical {
			return Resolution{Action: ActionBlock, Message: c.Message}
		}
		return Resolution{Action: ActionWarn, Message: c.Message}

	case StrategyAutoResolve:
		if c.Type == TypeSlotOverlap || c.Type == TypeBlockedTime {
			return AutoResolve(c)
		}
		return Resolution{Action: ActionBlock, Message: c.Message}

	default:
		return Resolution{Action: ActionBlock, Message: "unknown resolution strategy"}
	}
}

// AutoResolve proposes a concrete fix: shift the new entity off the
// overlapping slots, or remove the blocking periods. Anything else cannot
// be fixed mechanically and blocks.
func AutoResolve(c Conflict) Resolution {
	switch c.Type {
	case TypeSlotOverlap:
		return Resolution{
			Action:      ActionAutoAdjust,
			Message:     "adjust around overlapping slots",
			Adjustments: c.Details.SlotIDs,
		}
	case TypeBlockedTime:
		return Resolution{
			Action:       ActionAutoRemove,
			Message:      "remove conflicting blocked periods",
			RemovedItems: c.Details.BlockIDs,
		}
	default:
		return Resolution{Action: ActionBlock, Message: "conflict cannot be automatically resolved"}
	}
}
