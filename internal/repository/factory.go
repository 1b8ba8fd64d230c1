package repository

import (
	"github.com/flexprice/invoicerecon/internal/domain/catalog"
	"github.com/flexprice/invoicerecon/internal/domain/entitlement"
	"github.com/flexprice/invoicerecon/internal/domain/invoice"
	"github.com/flexprice/invoicerecon/internal/logger"
	"github.com/flexprice/invoicerecon/internal/postgres"
	"github.com/flexprice/invoicerecon/internal/repository/memory"
	postgresRepo "github.com/flexprice/invoicerecon/internal/repository/postgres"
)

// Repositories groups the three stores the services are built on
type Repositories struct {
	Catalog     catalog.Repository
	Entitlement entitlement.Repository
	Invoice     invoice.Repository
}

// NewMemoryRepositories keeps everything in process. Used by scenario runs
// and tests.
func NewMemoryRepositories() Repositories {
	return Repositories{
		Catalog:     memory.NewCatalogStore(),
		Entitlement: memory.NewEntitlementStore(),
		Invoice:     memory.NewInvoiceStore(),
	}
}

func NewPostgresRepositories(db *postgres.DB, logger *logger.Logger) Repositories {
	return Repositories{
		Catalog:     postgresRepo.NewCatalogRepository(db, logger),
		Entitlement: postgresRepo.NewEntitlementRepository(db, logger),
		Invoice:     postgresRepo.NewInvoiceRepository(db, logger),
	}
}

func NewCatalogRepository(r Repositories) catalog.Repository {
	return r.Catalog
}

func NewEntitlementRepository(r Repositories) entitlement.Repository {
	return r.Entitlement
}

func NewInvoiceRepository(r Repositories) invoice.Repository {
	return r.Invoice
}
