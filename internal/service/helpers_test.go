package service

import (
	"github.com/flexprice/invoicerecon/internal/domain/invoice"
	"github.com/flexprice/invoicerecon/internal/testutil"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// engine wires every service over the suite's in-memory stores
type engine struct {
	params       ServiceParams
	catalog      CatalogService
	entitlements EntitlementService
	invoices     InvoiceService
	reconciler   ReconciliationService
	payments     PaymentService
	coordinator  Coordinator
}

// newEngine builds the services. With coordinate set every committed
// entitlement event runs through the coordinator pipeline.
func newEngine(s *testutil.BaseServiceTestSuite, coordinate bool) *engine {
	params := ServiceParams{
		Logger:          s.GetLogger(),
		Config:          s.GetConfig(),
		Cache:           s.GetCache(),
		Clock:           s.GetClock(),
		CatalogRepo:     s.GetStores().CatalogRepo,
		EntitlementRepo: s.GetStores().EntitlementRepo,
		InvoiceRepo:     s.GetStores().InvoiceRepo,
		Notifier:        s.GetNotifier(),
		PaymentGateway:  s.GetGateway(),
	}

	e := &engine{params: params}
	e.catalog = NewCatalogService(params)
	e.entitlements = NewEntitlementService(params, e.catalog)
	e.invoices = NewInvoiceService(params)
	e.reconciler = NewReconciliationService(params, e.catalog, e.invoices)
	e.payments = NewPaymentService(params, e.invoices)
	if coordinate {
		e.coordinator = NewCoordinator(params, e.entitlements, e.reconciler, e.payments)
	}
	return e
}

// accountItems returns every item invoiced to the account in commit order
func accountItems(s *testutil.BaseServiceTestSuite, accountID string) []*invoice.InvoiceItem {
	invoices, err := s.GetStores().InvoiceRepo.ListByAccount(s.GetContext(), types.DefaultTenantID, accountID)
	s.Require().NoError(err)
	return lo.FlatMap(invoices, func(inv *invoice.Invoice, _ int) []*invoice.InvoiceItem {
		return inv.Items
	})
}

func itemsOfType(items []*invoice.InvoiceItem, t types.InvoiceItemType) []*invoice.InvoiceItem {
	return lo.Filter(items, func(i *invoice.InvoiceItem, _ int) bool { return i.Type == t })
}

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}
