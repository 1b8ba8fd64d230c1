package catalog

import (
	"time"

	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Duration is the length of a phase. UNLIMITED ignores Number.
type Duration struct {
	Number int                `json:"number"`
	Unit   types.DurationUnit `json:"unit"`
}

// IsUnlimited reports whether the phase never ends on its own
func (d Duration) IsUnlimited() bool {
	return d.Unit == types.DURATION_UNIT_UNLIMITED
}

// Phase is a priced sub-period of a plan
type Phase struct {
	Type     types.PhaseType `json:"type"`
	Duration Duration        `json:"duration"`
	// RecurringPrice is charged once per billing period, nil means no recurring charge
	RecurringPrice *decimal.Decimal `json:"recurring_price,omitempty"`
	// FixedPrice is charged once when the phase is entered
	FixedPrice *decimal.Decimal `json:"fixed_price,omitempty"`
}

// HasRecurringCharge reports whether the phase produces recurring items
func (p *Phase) HasRecurringCharge() bool {
	return p.RecurringPrice != nil && !p.RecurringPrice.IsZero()
}

func (p *Phase) Validate() error {
	if err := p.Type.Validate(); err != nil {
		return err
	}
	if err := p.Duration.Unit.Validate(); err != nil {
		return err
	}
	if p.Duration.Number < 0 {
		return ierr.NewError("phase duration must not be negative").
			WithHint("Phase durations are non-negative").
			WithReportableDetails(map[string]any{
				"phase_type": p.Type,
				"number":     p.Duration.Number,
			}).
			Mark(ierr.ErrValidation)
	}
	if p.RecurringPrice != nil && p.RecurringPrice.IsNegative() {
		return ierr.NewError("recurring price must not be negative").
			WithHint("Phase prices are non-negative").
			Mark(ierr.ErrValidation)
	}
	if p.FixedPrice != nil && p.FixedPrice.IsNegative() {
		return ierr.NewError("fixed price must not be negative").
			WithHint("Phase prices are non-negative").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Plan belongs to exactly one snapshot and is identified by its name in it
type Plan struct {
	Name               string                `json:"name"`
	Product            string                `json:"product"`
	Category           types.ProductCategory `json:"category"`
	Currency           string                `json:"currency"`
	BillingPeriod      types.BillingPeriod   `json:"billing_period"`
	BillingPeriodCount int                   `json:"billing_period_count"`
	Phases             []*Phase              `json:"phases"`
	// Timezone in which proration counts calendar days, UTC when empty
	Timezone string `json:"timezone,omitempty"`
}

func (p *Plan) Validate() error {
	if p.Name == "" {
		return ierr.NewError("plan name is required").
			WithHint("Every plan needs a name unique within its catalog version").
			Mark(ierr.ErrValidation)
	}
	if len(p.Currency) != 3 {
		return ierr.NewError("invalid plan currency").
			WithHint("Currency must be a three letter ISO code").
			WithReportableDetails(map[string]any{
				"plan":     p.Name,
				"currency": p.Currency,
			}).
			Mark(ierr.ErrValidation)
	}
	if err := p.Category.Validate(); err != nil {
		return err
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return ierr.WithError(err).
				WithHintf("Unknown billing timezone %s", p.Timezone).
				WithReportableDetails(map[string]any{
					"plan":     p.Name,
					"timezone": p.Timezone,
				}).
				Mark(ierr.ErrValidation)
		}
	}
	if err := p.BillingPeriod.Validate(); err != nil {
		return err
	}
	if p.BillingPeriodCount < 1 {
		return ierr.NewError("billing period count must be positive").
			WithHint("Billing period count must be at least 1").
			WithReportableDetails(map[string]any{
				"plan": p.Name,
			}).
			Mark(ierr.ErrValidation)
	}
	if len(p.Phases) == 0 {
		return ierr.NewError("plan has no phases").
			WithHint("A plan needs at least one phase").
			WithReportableDetails(map[string]any{
				"plan": p.Name,
			}).
			Mark(ierr.ErrValidation)
	}

	for i, phase := range p.Phases {
		if phase == nil {
			return ierr.NewError("plan contains an empty phase").
				WithHint("Remove empty phases from the plan").
				Mark(ierr.ErrValidation)
		}
		if err := phase.Validate(); err != nil {
			return err
		}
		// only the last phase may run forever
		if phase.Duration.IsUnlimited() && i != len(p.Phases)-1 {
			return ierr.NewError("unlimited phase must be last").
				WithHint("At most one phase may be unlimited and it must be the last one").
				WithReportableDetails(map[string]any{
					"plan":  p.Name,
					"phase": i,
				}).
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}

// PhaseAt returns the phase at index i or nil when out of range
func (p *Plan) PhaseAt(i int) *Phase {
	if i < 0 || i >= len(p.Phases) {
		return nil
	}
	return p.Phases[i]
}

// Snapshot is an immutable dated catalog version for one tenant
type Snapshot struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	Version       int       `json:"version"`
	EffectiveDate time.Time `json:"effective_date"`
	Plans         []*Plan   `json:"plans"`
	CreatedAt     time.Time `json:"created_at"`
}

func (s *Snapshot) Validate() error {
	if s.EffectiveDate.IsZero() {
		return ierr.NewError("snapshot effective date is required").
			WithHint("Provide the date from which the catalog version applies").
			Mark(ierr.ErrValidation)
	}

	seen := make(map[string]struct{}, len(s.Plans))
	for _, p := range s.Plans {
		if p == nil {
			return ierr.NewError("snapshot contains an empty plan").
				WithHint("Remove empty plans from the catalog version").
				Mark(ierr.ErrValidation)
		}
		if err := p.Validate(); err != nil {
			return err
		}
		if _, ok := seen[p.Name]; ok {
			return ierr.NewError("plan name is not unique").
				WithHintf("Plan %s is defined more than once in the same catalog version", p.Name).
				WithReportableDetails(map[string]any{
					"plan": p.Name,
				}).
				Mark(ierr.ErrValidation)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

// PlanNames lists the plan names defined by the snapshot
func (s *Snapshot) PlanNames() []string {
	return lo.Map(s.Plans, func(p *Plan, _ int) string { return p.Name })
}

// Block marks a tenant catalog as unusable after corruption was detected
type Block struct {
	TenantID  string    `json:"tenant_id"`
	Reason    string    `json:"reason"`
	BlockedAt time.Time `json:"blocked_at"`
}

// SimplePlanDescriptor describes a single product plan with an optional
// trial followed by an evergreen recurring phase
type SimplePlanDescriptor struct {
	PlanName      string                `json:"plan_name" validate:"required"`
	ProductName   string                `json:"product_name" validate:"required"`
	Category      types.ProductCategory `json:"category" validate:"required"`
	Currency      string                `json:"currency" validate:"required,len=3"`
	Amount        decimal.Decimal       `json:"amount"`
	BillingPeriod types.BillingPeriod   `json:"billing_period" validate:"required"`
	TrialLength   int                   `json:"trial_length" validate:"min=0"`
	TrialTimeUnit types.DurationUnit    `json:"trial_time_unit"`
	Timezone      string                `json:"timezone,omitempty"`
}

// ToPlan expands the descriptor into a full plan definition
func (d *SimplePlanDescriptor) ToPlan() *Plan {
	phases := make([]*Phase, 0, 2)
	if d.TrialLength > 0 {
		unit := d.TrialTimeUnit
		if unit == "" {
			unit = types.DURATION_UNIT_DAYS
		}
		phases = append(phases, &Phase{
			Type:       types.PHASE_TYPE_TRIAL,
			Duration:   Duration{Number: d.TrialLength, Unit: unit},
			FixedPrice: lo.ToPtr(decimal.Zero),
		})
	}
	phases = append(phases, &Phase{
		Type:           types.PHASE_TYPE_EVERGREEN,
		Duration:       Duration{Unit: types.DURATION_UNIT_UNLIMITED},
		RecurringPrice: lo.ToPtr(d.Amount),
	})

	return &Plan{
		Name:               d.PlanName,
		Product:            d.ProductName,
		Category:           d.Category,
		Currency:           d.Currency,
		BillingPeriod:      d.BillingPeriod,
		BillingPeriodCount: 1,
		Phases:             phases,
		Timezone:           d.Timezone,
	}
}
