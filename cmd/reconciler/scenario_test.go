package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/flexprice/invoicerecon/internal/cache"
	"github.com/flexprice/invoicerecon/internal/clock"
	"github.com/flexprice/invoicerecon/internal/config"
	"github.com/flexprice/invoicerecon/internal/domain/payment"
	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/flexprice/invoicerecon/internal/logger"
	"github.com/flexprice/invoicerecon/internal/repository"
	"github.com/flexprice/invoicerecon/internal/service"
	"github.com/flexprice/invoicerecon/internal/testutil"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeScenario(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:  "defaults tenant",
			input: `{"start_date":"2024-01-01","steps":[{"op":"advance","days":1}]}`,
		},
		{
			name:    "not json",
			input:   `{"start_date":`,
			wantErr: true,
		},
		{
			name:    "no steps",
			input:   `{"start_date":"2024-01-01","steps":[]}`,
			wantErr: true,
		},
		{
			name:    "unknown op",
			input:   `{"start_date":"2024-01-01","steps":[{"op":"refund"}]}`,
			wantErr: true,
		},
		{
			name:    "bad start date",
			input:   `{"start_date":"01/01/2024","steps":[{"op":"advance","days":1}]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := DecodeScenario(strings.NewReader(tt.input))
			if tt.wantErr {
				assert.True(t, ierr.IsValidation(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, types.DefaultTenantID, sc.TenantID)
		})
	}
}

func TestRunTrialScenario(t *testing.T) {
	sc, err := LoadScenario("testdata/trial.json")
	require.NoError(t, err)
	start, err := sc.Start()
	require.NoError(t, err)

	cfg := config.GetDefaultConfig()
	log := logger.NewNoopLogger()
	repos := repository.NewMemoryRepositories()
	clk := clock.NewManualClock(start)
	notifier := testutil.NewRecordingNotifier()

	params := service.ServiceParams{
		Logger:          log,
		Config:          cfg,
		Cache:           cache.NewInMemoryCache(cfg, log),
		Clock:           clk,
		CatalogRepo:     repos.Catalog,
		EntitlementRepo: repos.Entitlement,
		InvoiceRepo:     repos.Invoice,
		Notifier:        notifier,
		PaymentGateway:  payment.NewMemoryGateway(true),
	}
	catalogSvc := service.NewCatalogService(params)
	entitlementSvc := service.NewEntitlementService(params, catalogSvc)
	invoiceSvc := service.NewInvoiceService(params)
	reconSvc := service.NewReconciliationService(params, catalogSvc, invoiceSvc)
	paymentSvc := service.NewPaymentService(params, invoiceSvc)
	coordinator := service.NewCoordinator(params, entitlementSvc, reconSvc, paymentSvc)

	var out bytes.Buffer
	runner := NewRunner(RunnerParams{
		Scenario:     sc,
		Clock:        clk,
		Logger:       log,
		Catalog:      catalogSvc,
		Entitlements: entitlementSvc,
		Invoices:     invoiceSvc,
		Coordinator:  coordinator,
	})
	runner.out = &out

	require.NoError(t, runner.Run(context.Background()))
	assert.Equal(t, "2024-05-15", types.FormatDate(clk.Now()))

	report := out.String()
	assert.Contains(t, report, "account acct_demo:")
	assert.Contains(t, report, "2024-03-15..2024-04-15")
	assert.Contains(t, report, "10.00")

	invoices, err := invoiceSvc.ListByAccount(types.SetTenantID(context.Background(), sc.TenantID), sc.TenantID, "acct_demo")
	require.NoError(t, err)
	require.NotEmpty(t, invoices)
	for _, inv := range invoices {
		assert.Equal(t, "USD", inv.Currency)
	}

	signals := notifier.Types("subs_demo")
	require.NotEmpty(t, signals)
	assert.Equal(t, types.SignalSubscriptionCreated, signals[0])
	assert.Contains(t, signals, types.SignalSubscriptionCancelled)
	assert.Contains(t, signals, types.SignalPaymentResult)
}
