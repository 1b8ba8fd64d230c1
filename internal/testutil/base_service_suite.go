package testutil

import (
	"context"
	"time"

	"github.com/flexprice/invoicerecon/internal/cache"
	"github.com/flexprice/invoicerecon/internal/clock"
	"github.com/flexprice/invoicerecon/internal/config"
	"github.com/flexprice/invoicerecon/internal/domain/catalog"
	"github.com/flexprice/invoicerecon/internal/domain/entitlement"
	"github.com/flexprice/invoicerecon/internal/domain/invoice"
	"github.com/flexprice/invoicerecon/internal/logger"
	"github.com/flexprice/invoicerecon/internal/repository/memory"
	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/flexprice/invoicerecon/internal/validator"
	"github.com/stretchr/testify/suite"
)

// Stores holds all the repository interfaces for testing
type Stores struct {
	CatalogRepo     catalog.Repository
	EntitlementRepo entitlement.Repository
	InvoiceRepo     invoice.Repository
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx      context.Context
	stores   Stores
	notifier *RecordingNotifier
	gateway  *ScriptedGateway
	clock    *clock.ManualClock
	cache    cache.Cache
	logger   *logger.Logger
	config   *config.Configuration
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	s.config = config.GetDefaultConfig()
	s.config.Reconciliation.RetryMaxElapsed = 200 * time.Millisecond

	var err error
	s.logger, err = logger.NewLogger(s.config)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.stores = Stores{
		CatalogRepo:     memory.NewCatalogStore(),
		EntitlementRepo: memory.NewEntitlementStore(),
		InvoiceRepo:     memory.NewInvoiceStore(),
	}
	s.notifier = NewRecordingNotifier()
	s.gateway = NewScriptedGateway()
	s.clock = clock.NewManualClock(types.Date(2024, time.January, 1))
	s.cache = cache.NewInMemoryCache(s.config, s.logger)
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.ClearStores()
}

func (s *BaseServiceTestSuite) ClearStores() {
	s.stores.CatalogRepo.(*memory.CatalogStore).Clear()
	s.stores.EntitlementRepo.(*memory.EntitlementStore).Clear()
	s.stores.InvoiceRepo.(*memory.InvoiceStore).Clear()
	s.notifier.Reset()
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetNotifier returns the signal recorder
func (s *BaseServiceTestSuite) GetNotifier() *RecordingNotifier {
	return s.notifier
}

// GetGateway returns the scripted payment gateway
func (s *BaseServiceTestSuite) GetGateway() *ScriptedGateway {
	return s.gateway
}

// GetClock returns the manual test clock, starting on 2024-01-01
func (s *BaseServiceTestSuite) GetClock() *clock.ManualClock {
	return s.clock
}

// GetCache returns the test cache
func (s *BaseServiceTestSuite) GetCache() cache.Cache {
	return s.cache
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}
