package service

import (
	"github.com/flexprice/invoicerecon/internal/cache"
	"github.com/flexprice/invoicerecon/internal/clock"
	"github.com/flexprice/invoicerecon/internal/config"
	"github.com/flexprice/invoicerecon/internal/domain/catalog"
	"github.com/flexprice/invoicerecon/internal/domain/entitlement"
	"github.com/flexprice/invoicerecon/internal/domain/invoice"
	"github.com/flexprice/invoicerecon/internal/domain/payment"
	"github.com/flexprice/invoicerecon/internal/logger"
	"github.com/flexprice/invoicerecon/internal/publisher"
	"github.com/flexprice/invoicerecon/internal/sentry"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	Cache  cache.Cache
	Clock  clock.Clock
	Sentry *sentry.Service

	// Repositories
	CatalogRepo     catalog.Repository
	EntitlementRepo entitlement.Repository
	InvoiceRepo     invoice.Repository

	// Collaborators
	Notifier       publisher.Notifier
	PaymentGateway payment.Gateway
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	cache cache.Cache,
	clock clock.Clock,
	sentry *sentry.Service,
	catalogRepo catalog.Repository,
	entitlementRepo entitlement.Repository,
	invoiceRepo invoice.Repository,
	notifier publisher.Notifier,
	paymentGateway payment.Gateway,
) ServiceParams {
	return ServiceParams{
		Logger:          logger,
		Config:          config,
		Cache:           cache,
		Clock:           clock,
		Sentry:          sentry,
		CatalogRepo:     catalogRepo,
		EntitlementRepo: entitlementRepo,
		InvoiceRepo:     invoiceRepo,
		Notifier:        notifier,
		PaymentGateway:  paymentGateway,
	}
}
