package entitlement

import (
	"time"

	"github.com/flexprice/invoicerecon/internal/domain/catalog"
	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/samber/lo"
)

// PlanLookup resolves the plan definition an event refers to. date is the
// event's effective date and snapshotID the version tagged on the event.
type PlanLookup func(planName string, date time.Time, snapshotID string) (*catalog.Plan, string, error)

// Segment is a stretch of time billed under a single plan phase
type Segment struct {
	Start time.Time
	// End is exclusive, nil while the segment is still open
	End        *time.Time
	Plan       *catalog.Plan
	SnapshotID string
	PhaseIndex int
	PhaseStart time.Time
	// PhaseEnd is the natural end of the phase, nil when unlimited
	PhaseEnd *time.Time
	// Anchor is the date recurring billing periods are aligned to
	Anchor time.Time
	// PhaseEntered is set when the segment starts exactly where its phase starts
	PhaseEntered bool
}

// Phase returns the catalog phase the segment bills
func (s *Segment) Phase() *catalog.Phase {
	return s.Plan.PhaseAt(s.PhaseIndex)
}

// Bound returns the earlier of the segment end and the phase end, nil when
// the segment is open ended
func (s *Segment) Bound() *time.Time {
	switch {
	case s.End == nil:
		return s.PhaseEnd
	case s.PhaseEnd == nil:
		return s.End
	}
	return lo.ToPtr(types.MinTime(*s.End, *s.PhaseEnd))
}

// State is the result of folding a timeline up to a horizon
type State struct {
	Status     types.SubscriptionState
	Blocked    bool
	StartDate  time.Time
	Plan       *catalog.Plan
	SnapshotID string
	PhaseIndex int
	PhaseStart time.Time
	Anchor     time.Time
	// Expired is set once every finite phase of the plan has elapsed
	Expired bool
	// NextPhaseChange is the phase timer still ahead of the horizon
	NextPhaseChange *time.Time
	// PendingPhaseChanges are transitions at or before the horizon that have
	// no PHASE_CHANGE marker on the timeline yet, oldest first
	PendingPhaseChanges []time.Time
	Segments            []*Segment
	EventCount          int
}

// Phase returns the active phase or nil
func (s *State) Phase() *catalog.Phase {
	if s.Plan == nil || s.Expired {
		return nil
	}
	return s.Plan.PhaseAt(s.PhaseIndex)
}

type folder struct {
	st       *State
	lookup   PlanLookup
	open     *Segment
	phaseEnd *time.Time
}

// Fold replays a timeline in effective date order and derives the billing
// segments and lifecycle state at horizon. Phase transitions are implied by
// phase durations and applied before any event on the same day.
func Fold(events []*Event, lookup PlanLookup, horizon time.Time) (*State, error) {
	f := &folder{
		st: &State{
			Status:     types.SubscriptionStatePending,
			PhaseIndex: -1,
			EventCount: len(events),
		},
		lookup: lookup,
	}
	horizon = types.StartOfDay(horizon)

	for _, e := range SortEvents(events) {
		date := types.StartOfDay(e.EffectiveDate)
		f.advance(date)
		if err := f.apply(e, date); err != nil {
			return nil, err
		}
	}
	f.advance(horizon)

	if f.open != nil {
		f.st.Segments = append(f.st.Segments, f.open)
		f.open = nil
	}
	if f.st.Status == types.SubscriptionStateActive && !f.st.Expired && f.phaseEnd != nil {
		f.st.NextPhaseChange = lo.ToPtr(*f.phaseEnd)
	}
	return f.st, nil
}

// advance applies every implied phase transition that happens on or before to
func (f *folder) advance(to time.Time) {
	st := f.st
	for st.Status == types.SubscriptionStateActive && !st.Expired && f.phaseEnd != nil && !f.phaseEnd.After(to) {
		at := *f.phaseEnd
		f.close(at)

		st.PhaseIndex++
		phase := st.Plan.PhaseAt(st.PhaseIndex)
		if phase == nil {
			st.Expired = true
			f.phaseEnd = nil
			return
		}

		st.PhaseStart = at
		st.Anchor = at
		f.phaseEnd = catalog.PhaseEnd(phase, at)
		st.PendingPhaseChanges = append(st.PendingPhaseChanges, at)
		if !st.Blocked {
			f.openAt(at)
		}
	}
}

func (f *folder) apply(e *Event, date time.Time) error {
	st := f.st

	switch e.Type {
	case types.EntitlementEventCreate:
		if st.Status != types.SubscriptionStatePending {
			return f.invalid(e, "subscription already created")
		}
		plan, snapshotID, err := f.lookup(e.PlanName, date, e.SnapshotID)
		if err != nil {
			return err
		}
		st.Status = types.SubscriptionStateActive
		st.StartDate = date
		if f.enterPlan(plan, snapshotID, date) {
			st.Anchor = st.PhaseStart
			f.openAt(date)
		}

	case types.EntitlementEventChangePlan:
		if st.Status != types.SubscriptionStateActive {
			return f.invalid(e, "plan can only be changed on an active subscription")
		}
		plan, snapshotID, err := f.lookup(e.PlanName, date, e.SnapshotID)
		if err != nil {
			return err
		}
		f.close(date)
		if f.enterPlan(plan, snapshotID, date) {
			// keep billing aligned unless the new phase starts later, in which
			// case the billing day moves to that phase start
			st.Anchor = types.MaxTime(st.Anchor, st.PhaseStart)
			if !st.Blocked {
				f.openAt(date)
			}
		}

	case types.EntitlementEventPhaseChange:
		if st.Status != types.SubscriptionStateActive {
			return f.invalid(e, "phase change on an inactive subscription")
		}
		st.PendingPhaseChanges = lo.Reject(st.PendingPhaseChanges, func(t time.Time, _ int) bool {
			return t.Equal(date)
		})

	case types.EntitlementEventCancel:
		if st.Status != types.SubscriptionStateActive {
			return f.invalid(e, "only an active subscription can be cancelled")
		}
		f.close(date)
		st.Status = types.SubscriptionStateCancelled
		f.phaseEnd = nil

	case types.EntitlementEventBlock:
		if st.Status != types.SubscriptionStateActive || st.Blocked {
			return f.invalid(e, "subscription is not active or already blocked")
		}
		f.close(date)
		st.Blocked = true

	case types.EntitlementEventUnblock:
		if st.Status != types.SubscriptionStateActive || !st.Blocked {
			return f.invalid(e, "subscription is not blocked")
		}
		st.Blocked = false
		if !st.Expired {
			f.openAt(date)
		}

	default:
		return e.Type.Validate()
	}
	return nil
}

// enterPlan positions the subscription inside plan as of date. Phases are
// counted from the subscription start so a plan change keeps trial progress.
// Returns false when the plan has no phase left at date.
func (f *folder) enterPlan(plan *catalog.Plan, snapshotID string, date time.Time) bool {
	st := f.st
	st.Plan = plan
	st.SnapshotID = snapshotID

	pos, ok := catalog.ActivePhase(plan, st.StartDate, date)
	if !ok {
		st.Expired = true
		st.PhaseIndex = len(plan.Phases)
		f.phaseEnd = nil
		return false
	}
	st.Expired = false
	st.PhaseIndex = pos.Index
	st.PhaseStart = pos.Start
	f.phaseEnd = pos.End
	return true
}

func (f *folder) openAt(date time.Time) {
	st := f.st
	f.open = &Segment{
		Start:        date,
		Plan:         st.Plan,
		SnapshotID:   st.SnapshotID,
		PhaseIndex:   st.PhaseIndex,
		PhaseStart:   st.PhaseStart,
		PhaseEnd:     f.phaseEnd,
		Anchor:       st.Anchor,
		PhaseEntered: st.PhaseStart.Equal(date),
	}
}

// close ends the open segment at date, dropping it when empty
func (f *folder) close(date time.Time) {
	if f.open == nil {
		return
	}
	if date.After(f.open.Start) {
		f.open.End = lo.ToPtr(date)
		f.st.Segments = append(f.st.Segments, f.open)
	}
	f.open = nil
}

func (f *folder) invalid(e *Event, reason string) error {
	return ierr.NewErrorf("%s event not allowed: %s", e.Type, reason).
		WithHint(reason).
		WithReportableDetails(map[string]any{
			"subscription_id": e.SubscriptionID,
			"event_type":      e.Type,
			"effective_date":  types.FormatDate(e.EffectiveDate),
			"status":          f.st.Status,
		}).
		Mark(ierr.ErrInvalidOperation)
}
