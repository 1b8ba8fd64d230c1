package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/flexprice/invoicerecon/internal/clock"
	"github.com/flexprice/invoicerecon/internal/domain/catalog"
	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/flexprice/invoicerecon/internal/logger"
	"github.com/flexprice/invoicerecon/internal/service"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/flexprice/invoicerecon/internal/validator"
	jsoniter "github.com/json-iterator/go"
	"github.com/k0kubun/pp"
	"github.com/samber/lo"
	"go.uber.org/fx"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StepOp names an action of a scenario
type StepOp string

const (
	OpAddSimplePlan      StepOp = "add_simple_plan"
	OpAddSnapshot        StepOp = "add_snapshot"
	OpCreateSubscription StepOp = "create_subscription"
	OpChangePlan         StepOp = "change_plan"
	OpCancel             StepOp = "cancel"
	OpBlock              StepOp = "block"
	OpUnblock            StepOp = "unblock"
	OpAdvance            StepOp = "advance"
)

// Scenario is a scripted run of catalog, entitlement and clock operations
// for one tenant
type Scenario struct {
	TenantID  string  `json:"tenant_id"`
	StartDate string  `json:"start_date" validate:"required"`
	Steps     []*Step `json:"steps" validate:"required,min=1,dive"`
}

// Step is one scenario action. Dates are YYYY-MM-DD and default to the
// current clock date.
type Step struct {
	Op StepOp `json:"op" validate:"required,oneof=add_simple_plan add_snapshot create_subscription change_plan cancel block unblock advance"`

	Date           string                        `json:"date,omitempty"`
	Plan           *catalog.SimplePlanDescriptor `json:"plan,omitempty"`
	Snapshot       *catalog.Snapshot             `json:"snapshot,omitempty"`
	SubscriptionID string                        `json:"subscription_id,omitempty"`
	AccountID      string                        `json:"account_id,omitempty"`
	PlanName       string                        `json:"plan_name,omitempty"`
	Policy         types.ChangePlanPolicy        `json:"policy,omitempty"`
	Days           int                           `json:"days,omitempty" validate:"min=0"`
}

// LoadScenario reads and validates a scenario file
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Could not open scenario %s", path).
			Mark(ierr.ErrNotFound)
	}
	defer f.Close()
	return DecodeScenario(f)
}

func DecodeScenario(r io.Reader) (*Scenario, error) {
	var sc Scenario
	if err := json.NewDecoder(r).Decode(&sc); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Scenario is not valid JSON").
			Mark(ierr.ErrValidation)
	}
	if err := validator.ValidateRequest(&sc); err != nil {
		return nil, err
	}
	if _, err := sc.Start(); err != nil {
		return nil, err
	}
	sc.TenantID = lo.CoalesceOrEmpty(sc.TenantID, types.DefaultTenantID)
	return &sc, nil
}

// Start is the date the scenario clock begins at
func (sc *Scenario) Start() (time.Time, error) {
	return parseDate(sc.StartDate)
}

func parseDate(s string) (time.Time, error) {
	t, err := types.ParseDate(s)
	if err != nil {
		return time.Time{}, ierr.WithError(err).
			WithHintf("Date %q must be formatted as YYYY-MM-DD", s).
			Mark(ierr.ErrValidation)
	}
	return t, nil
}

// Runner executes a scenario against the wired services
type Runner struct {
	scenario     *Scenario
	debug        bool
	out          io.Writer
	clock        *clock.ManualClock
	logger       *logger.Logger
	catalog      service.CatalogService
	entitlements service.EntitlementService
	invoices     service.InvoiceService
	coordinator  service.Coordinator

	accounts []string
}

type RunnerParams struct {
	fx.In

	Scenario     *Scenario
	Options      Options
	Clock        *clock.ManualClock
	Logger       *logger.Logger
	Catalog      service.CatalogService
	Entitlements service.EntitlementService
	Invoices     service.InvoiceService
	Coordinator  service.Coordinator
}

func NewRunner(p RunnerParams) *Runner {
	return &Runner{
		scenario:     p.Scenario,
		debug:        p.Options.Debug,
		out:          os.Stdout,
		clock:        p.Clock,
		logger:       p.Logger,
		catalog:      p.Catalog,
		entitlements: p.Entitlements,
		invoices:     p.Invoices,
		coordinator:  p.Coordinator,
	}
}

// Run executes every step in order and prints the resulting invoices. The
// first failing step stops the run.
func (r *Runner) Run(ctx context.Context) error {
	ctx = types.SetTenantID(ctx, r.scenario.TenantID)
	for i, step := range r.scenario.Steps {
		if err := r.apply(ctx, step); err != nil {
			return ierr.WithError(err).
				WithMessagef("scenario step %d (%s) failed", i, step.Op).
				WithReportableDetails(map[string]any{
					"step": i,
					"op":   step.Op,
				}).
				Error()
		}
	}
	return r.report(ctx)
}

func (r *Runner) date(step *Step) (time.Time, error) {
	if step.Date == "" {
		return r.clock.Now(), nil
	}
	return parseDate(step.Date)
}

func (r *Runner) apply(ctx context.Context, step *Step) error {
	date, err := r.date(step)
	if err != nil {
		return err
	}
	tenantID := r.scenario.TenantID

	r.logger.Infow("scenario step",
		"op", step.Op,
		"date", types.FormatDate(date),
		"clock", types.FormatDate(r.clock.Now()),
		"subscription_id", step.SubscriptionID,
	)

	switch step.Op {
	case OpAddSimplePlan:
		if step.Plan == nil {
			return ierr.NewError("plan is required").Mark(ierr.ErrValidation)
		}
		_, err = r.catalog.AddSimplePlan(ctx, tenantID, step.Plan, date)
	case OpAddSnapshot:
		if step.Snapshot == nil {
			return ierr.NewError("snapshot is required").Mark(ierr.ErrValidation)
		}
		if step.Snapshot.EffectiveDate.IsZero() {
			step.Snapshot.EffectiveDate = date
		}
		err = r.catalog.AddSnapshot(ctx, tenantID, step.Snapshot)
	case OpCreateSubscription:
		_, _, err = r.entitlements.CreateSubscription(ctx, service.CreateSubscriptionRequest{
			TenantID:       tenantID,
			SubscriptionID: step.SubscriptionID,
			AccountID:      step.AccountID,
			PlanName:       step.PlanName,
			EffectiveDate:  date,
		})
		if !lo.Contains(r.accounts, step.AccountID) {
			r.accounts = append(r.accounts, step.AccountID)
		}
	case OpChangePlan:
		_, err = r.entitlements.ChangePlan(ctx, service.ChangePlanRequest{
			SubscriptionID: step.SubscriptionID,
			PlanName:       step.PlanName,
			EffectiveDate:  date,
			Policy:         step.Policy,
		})
	case OpCancel:
		_, err = r.entitlements.Cancel(ctx, r.lifecycle(step, date))
	case OpBlock:
		_, err = r.entitlements.Block(ctx, r.lifecycle(step, date))
	case OpUnblock:
		_, err = r.entitlements.Unblock(ctx, r.lifecycle(step, date))
	case OpAdvance:
		err = r.advance(ctx, step.Days)
	}
	return err
}

func (r *Runner) lifecycle(step *Step, date time.Time) service.LifecycleRequest {
	return service.LifecycleRequest{
		SubscriptionID: step.SubscriptionID,
		EffectiveDate:  date,
	}
}

func (r *Runner) advance(ctx context.Context, days int) error {
	res, err := r.coordinator.OnClockAdvance(ctx, r.clock.AdvanceDays(days))
	if res != nil {
		for subID, failure := range res.Failures {
			r.logger.Errorw("timers failed",
				"subscription_id", subID,
				"error", failure,
			)
		}
		if r.debug {
			pp.Fprintln(r.out, res)
		}
	}
	return err
}

func (r *Runner) report(ctx context.Context) error {
	for _, accountID := range r.accounts {
		invoices, err := r.invoices.ListByAccount(ctx, r.scenario.TenantID, accountID)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "account %s: %d invoices\n", accountID, len(invoices))
		for _, inv := range invoices {
			fmt.Fprintf(r.out, "  %s %s %s %s %s\n",
				inv.Number, types.FormatDate(inv.InvoiceDate), inv.Status, inv.Balance.StringFixed(2), inv.Currency)
			for _, item := range inv.Items {
				fmt.Fprintf(r.out, "    %-10s %s..%s %-12s %10s\n",
					item.Type, types.FormatDate(item.StartDate), types.FormatDate(item.EndDate),
					item.PlanName, item.Amount.StringFixed(2))
			}
		}
		if r.debug {
			pp.Fprintln(r.out, invoices)
		}
	}
	return nil
}
