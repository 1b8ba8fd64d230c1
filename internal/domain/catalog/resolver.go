package catalog

import (
	"sort"
	"time"

	"github.com/flexprice/invoicerecon/internal/types"
)

// ResolveAt picks the snapshot applicable at date: the latest effective date
// not after date, later versions winning ties. Returns nil when none applies.
func ResolveAt(snapshots []*Snapshot, date time.Time) *Snapshot {
	date = types.StartOfDay(date)

	var found *Snapshot
	for _, s := range snapshots {
		if types.StartOfDay(s.EffectiveDate).After(date) {
			continue
		}
		if found == nil ||
			s.EffectiveDate.After(found.EffectiveDate) ||
			(s.EffectiveDate.Equal(found.EffectiveDate) && s.Version > found.Version) {
			found = s
		}
	}
	return found
}

// SortByVersion orders snapshots by insertion version in place
func SortByVersion(snapshots []*Snapshot) {
	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].Version < snapshots[j].Version
	})
}

// PlanFor returns the named plan of a snapshot
func PlanFor(snapshot *Snapshot, planName string) (*Plan, error) {
	if snapshot == nil {
		return nil, NewUnknownPlanError("", planName)
	}
	for _, p := range snapshot.Plans {
		if p.Name == planName {
			return p, nil
		}
	}
	return nil, NewUnknownPlanError(snapshot.ID, planName)
}

// PhasesFor returns the ordered phases of the named plan
func PhasesFor(snapshot *Snapshot, planName string) ([]*Phase, error) {
	p, err := PlanFor(snapshot, planName)
	if err != nil {
		return nil, err
	}
	return p.Phases, nil
}

// PhaseEnd returns when a phase entered at start ends, nil when it never does
func PhaseEnd(phase *Phase, start time.Time) *time.Time {
	end, ok := types.AddPhaseDuration(start, phase.Duration.Number, phase.Duration.Unit)
	if !ok {
		return nil
	}
	return &end
}

// PhasePosition locates a subscription inside a plan's phase sequence
type PhasePosition struct {
	Index int
	Phase *Phase
	Start time.Time
	// End is nil for an unlimited phase
	End *time.Time
	// Elapsed is the number of days spent in the phase so far
	Elapsed int
}

// ActivePhase returns the phase active at `at` for a subscription that entered
// the first phase at entry. The boolean is false once every finite phase has
// elapsed and there is nothing left to be in.
func ActivePhase(plan *Plan, entry, at time.Time) (PhasePosition, bool) {
	entry, at = types.StartOfDay(entry), types.StartOfDay(at)
	if len(plan.Phases) == 0 {
		return PhasePosition{}, false
	}
	if at.Before(entry) {
		return PhasePosition{
			Index: 0,
			Phase: plan.Phases[0],
			Start: entry,
			End:   PhaseEnd(plan.Phases[0], entry),
		}, true
	}

	start := entry
	for i, phase := range plan.Phases {
		end := PhaseEnd(phase, start)
		if end == nil || at.Before(*end) {
			return PhasePosition{
				Index:   i,
				Phase:   phase,
				Start:   start,
				End:     end,
				Elapsed: types.DaysBetween(start, at),
			}, true
		}
		start = *end
	}
	return PhasePosition{}, false
}
